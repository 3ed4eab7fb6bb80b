// Package memory is an in-process implementation of the repository contract.
// Transactions serialize on a single mutex and restore a copy of the state on failure.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/google/uuid"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repository"
)

var _ repository.Repository = (*Store)(nil)

type txKey struct{}

type state struct {
	records      map[string]*models.MasterRecord
	logs         map[string]*models.MergeLog
	logSeq       map[string]int
	rules        map[string]*models.SurvivorshipRule
	participants map[string]string // tenant/record -> merge log id
	seq          int
}

func newState() *state {
	return &state{
		records:      map[string]*models.MasterRecord{},
		logs:         map[string]*models.MergeLog{},
		logSeq:       map[string]int{},
		rules:        map[string]*models.SurvivorshipRule{},
		participants: map[string]string{},
	}
}

func (s *state) clone() *state {
	out := newState()
	for k, v := range s.records {
		out.records[k] = v.Clone()
	}
	for k, v := range s.logs {
		out.logs[k] = v.Clone()
	}
	for k, v := range s.logSeq {
		out.logSeq[k] = v
	}
	for k, v := range s.rules {
		out.rules[k] = cloneRule(v)
	}
	for k, v := range s.participants {
		out.participants[k] = v
	}
	out.seq = s.seq
	return out
}

// Store keeps records, merge logs and rules in memory
type Store struct {
	mu       sync.Mutex
	state    *state
	now      func() time.Time
	failures map[string]error
}

type Option func(*Store)

// WithClock overrides the time source used for audit timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		state:    newState(),
		now:      func() time.Time { return time.Now().UTC() },
		failures: map[string]error{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FailOn makes the named operation return err until cleared with a nil err.
func (s *Store) FailOn(operation string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, operation)
		return
	}
	s.failures[operation] = err
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(txKey{}).(*Store)
	return ok && owner == s
}

// lock acquires the store mutex unless ctx already holds it through RunInTx.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func participantKey(tenantID, recordID string) string {
	return tenantID + "/" + recordID
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	backup := s.state.clone()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.state = backup
		return err
	}
	return nil
}

// Insert stores a record, assigning an id and timestamps when missing.
func (s *Store) Insert(ctx context.Context, record *models.MasterRecord) *models.MasterRecord {
	defer s.lock(ctx)()

	stored := record.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.Status == "" {
		stored.Status = models.RecordStatusActive
	}
	if stored.Fields == nil {
		stored.Fields = models.Fields{}
	}
	now := s.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}
	s.state.records[stored.ID] = stored
	return stored.Clone()
}

// SaveRule stores or replaces a survivorship rule.
func (s *Store) SaveRule(ctx context.Context, rule *models.SurvivorshipRule) *models.SurvivorshipRule {
	defer s.lock(ctx)()

	stored := cloneRule(rule)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	now := s.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.state.rules[stored.ID] = stored
	return cloneRule(stored)
}

func (s *Store) GetByID(ctx context.Context, tenantID, id string) (*models.MasterRecord, error) {
	defer s.lock(ctx)()
	if err := s.failures["GetByID"]; err != nil {
		return nil, err
	}

	record, ok := s.state.records[id]
	if !ok || record.TenantID != tenantID {
		return nil, fernerrors.NewNotFoundError("record", id)
	}
	return record.Clone(), nil
}

func (s *Store) ListActive(ctx context.Context, tenantID string) ([]*models.MasterRecord, error) {
	defer s.lock(ctx)()
	if err := s.failures["ListActive"]; err != nil {
		return nil, err
	}

	active := ectolinq.Filter(ectolinq.Values(s.state.records), func(record *models.MasterRecord) bool {
		return record.TenantID == tenantID && record.IsActive()
	})
	records := ectolinq.Map(active, (*models.MasterRecord).Clone)
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

func (s *Store) Update(ctx context.Context, tenantID, id string, fields models.Fields, status models.RecordStatus, updatedBy string) (*models.MasterRecord, error) {
	defer s.lock(ctx)()
	if err := s.failures["Update"]; err != nil {
		return nil, err
	}

	record, ok := s.state.records[id]
	if !ok || record.TenantID != tenantID {
		return nil, fernerrors.NewNotFoundError("record", id)
	}

	record.Fields = fields.Clone()
	if record.Fields == nil {
		record.Fields = models.Fields{}
	}
	record.Status = status
	record.UpdatedBy = updatedBy
	record.UpdatedAt = s.now()
	return record.Clone(), nil
}

func (s *Store) CreateMergeLog(ctx context.Context, entry *models.MergeLog) error {
	defer s.lock(ctx)()
	if err := s.failures["CreateMergeLog"]; err != nil {
		return err
	}

	taken := ectolinq.Filter([]string{entry.MasterRecordID, entry.DuplicateRecordID}, func(recordID string) bool {
		_, ok := s.state.participants[participantKey(entry.TenantID, recordID)]
		return ok
	})
	if len(taken) > 0 {
		recordID := ectolinq.First(taken)
		return fernerrors.NewAlreadyMergedError(recordID, s.state.participants[participantKey(entry.TenantID, recordID)])
	}

	stored := entry.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
		entry.ID = stored.ID
	}
	if stored.Status == "" {
		stored.Status = models.MergeLogStatusActive
	}
	if stored.MergedAt.IsZero() {
		stored.MergedAt = s.now()
		entry.MergedAt = stored.MergedAt
	}

	s.state.seq++
	s.state.logs[stored.ID] = stored
	s.state.logSeq[stored.ID] = s.state.seq
	s.state.participants[participantKey(stored.TenantID, stored.MasterRecordID)] = stored.ID
	s.state.participants[participantKey(stored.TenantID, stored.DuplicateRecordID)] = stored.ID
	return nil
}

func (s *Store) UpdateMergeLogStatus(ctx context.Context, tenantID, id string, status models.MergeLogStatus, reason *string, updatedBy string) (*models.MergeLog, error) {
	defer s.lock(ctx)()
	if err := s.failures["UpdateMergeLogStatus"]; err != nil {
		return nil, err
	}

	entry, ok := s.state.logs[id]
	if !ok || entry.TenantID != tenantID {
		return nil, fernerrors.NewNotFoundError("merge log", id)
	}
	if !entry.IsActive() {
		return nil, fernerrors.NewInvalidStateError("merge log", id, string(entry.Status), "already unmerged")
	}

	now := s.now()
	entry.Status = status
	entry.UnmergeReason = reason
	entry.UnmergedBy = &updatedBy
	entry.UnmergedAt = &now

	if status != models.MergeLogStatusActive {
		delete(s.state.participants, participantKey(tenantID, entry.MasterRecordID))
		delete(s.state.participants, participantKey(tenantID, entry.DuplicateRecordID))
	}
	return entry.Clone(), nil
}

func (s *Store) GetMergeLogByID(ctx context.Context, tenantID, id string) (*models.MergeLog, error) {
	defer s.lock(ctx)()

	entry, ok := s.state.logs[id]
	if !ok || entry.TenantID != tenantID {
		return nil, fernerrors.NewNotFoundError("merge log", id)
	}
	return entry.Clone(), nil
}

func (s *Store) ListMergeLogsForRecord(ctx context.Context, tenantID, recordID string, limit int) ([]*models.MergeLog, error) {
	defer s.lock(ctx)()

	involved := ectolinq.Filter(ectolinq.Values(s.state.logs), func(entry *models.MergeLog) bool {
		return entry.TenantID == tenantID && entry.Involves(recordID)
	})
	logs := ectolinq.Map(involved, (*models.MergeLog).Clone)
	sort.Slice(logs, func(i, j int) bool {
		return s.state.logSeq[logs[i].ID] > s.state.logSeq[logs[j].ID]
	})
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (s *Store) GetRuleByID(ctx context.Context, tenantID, id string) (*models.SurvivorshipRule, error) {
	defer s.lock(ctx)()

	rule, ok := s.state.rules[id]
	if !ok || rule.TenantID != tenantID {
		return nil, fernerrors.NewNotFoundError("survivorship rule", id)
	}
	return cloneRule(rule), nil
}

// ListRules returns the tenant's rules ordered by priority, then name.
func (s *Store) ListRules(ctx context.Context, tenantID string) ([]*models.SurvivorshipRule, error) {
	defer s.lock(ctx)()

	owned := ectolinq.Filter(ectolinq.Values(s.state.rules), func(rule *models.SurvivorshipRule) bool {
		return rule.TenantID == tenantID
	})
	rules := ectolinq.Map(owned, cloneRule)
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].Name < rules[j].Name
	})
	return rules, nil
}

func cloneRule(rule *models.SurvivorshipRule) *models.SurvivorshipRule {
	out := *rule
	out.FieldStrategies = maps.Clone(rule.FieldStrategies)
	if rule.CustomLogic != nil {
		logic := *rule.CustomLogic
		out.CustomLogic = &logic
	}
	return &out
}
