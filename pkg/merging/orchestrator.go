// Package merging executes reversible merges of master records and keeps their audit trail.
package merging

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repository"
	"github.com/Ramsey-B/fern/pkg/survivorship"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500

	operationMerge   = "merge"
	operationUnmerge = "unmerge"
)

// Locker serializes work on a set of records across processes
type Locker interface {
	LockRecords(ctx context.Context, tenantID string, recordIDs ...string) (func(context.Context), error)
}

// Emitter publishes merge lifecycle events
type Emitter interface {
	EmitRecordMerged(ctx context.Context, entry *models.MergeLog, merged *models.MasterRecord, quality *models.QualityScore) error
	EmitRecordUnmerged(ctx context.Context, entry *models.MergeLog) error
}

// QualityScorer scores a merged master
type QualityScorer interface {
	Score(record *models.MasterRecord) models.QualityScore
}

// Orchestrator runs merges and unmerges against the repository
type Orchestrator struct {
	repo         repository.Repository
	engine       *survivorship.Engine
	logger       ectologger.Logger
	locker       Locker
	emitter      Emitter
	quality      QualityScorer
	historyLimit int
}

type Option func(*Orchestrator)

// WithLocker takes a distributed lock on both records around each merge
func WithLocker(locker Locker) Option {
	return func(o *Orchestrator) {
		o.locker = locker
	}
}

// WithEmitter publishes an event after each committed merge and unmerge
func WithEmitter(emitter Emitter) Option {
	return func(o *Orchestrator) {
		o.emitter = emitter
	}
}

// WithQualityScorer scores the merged master after each committed merge
func WithQualityScorer(scorer QualityScorer) Option {
	return func(o *Orchestrator) {
		o.quality = scorer
	}
}

// WithHistoryLimit sets the page size used when History is called without a limit
func WithHistoryLimit(limit int) Option {
	return func(o *Orchestrator) {
		if limit > 0 && limit <= MaxHistoryLimit {
			o.historyLimit = limit
		}
	}
}

func NewOrchestrator(repo repository.Repository, engine *survivorship.Engine, logger ectologger.Logger, opts ...Option) *Orchestrator {
	if engine == nil {
		engine = survivorship.NewEngine(logger)
	}
	o := &Orchestrator{
		repo:         repo,
		engine:       engine,
		logger:       logger,
		historyLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Merge folds duplicate into master under the given rule, or the MASTER-wins
// default when ruleID is nil. The duplicate keeps its fields and becomes MERGED.
func (o *Orchestrator) Merge(ctx context.Context, tenantID, masterID, duplicateID string, ruleID, reason *string) (result *models.MergeResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Orchestrator.Merge")
	defer span.End()

	start := time.Now()
	defer func() {
		o.observe(tenantID, operationMerge, start, err)
		if err != nil {
			tracing.RecordError(span, err)
		}
	}()

	log := o.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":           tenantID,
		"master_record_id":    masterID,
		"duplicate_record_id": duplicateID,
	})

	if masterID == duplicateID {
		return nil, fernerrors.NewInvalidOperationError(operationMerge, "record '%s' cannot be merged with itself", masterID)
	}

	if o.locker != nil {
		release, lockErr := o.locker.LockRecords(ctx, tenantID, masterID, duplicateID)
		if lockErr != nil {
			log.WithError(lockErr).Warn("Failed to lock records for merge")
			return nil, httperror.NewHTTPError(http.StatusServiceUnavailable, "records are locked by another operation, retry later").
				AddMetaValue("master_record_id", masterID).
				AddMetaValue("duplicate_record_id", duplicateID)
		}
		defer release(context.WithoutCancel(ctx))
	}

	actor := appctx.GetActor(ctx)
	var entry *models.MergeLog
	var merged *models.MasterRecord

	err = o.repo.RunInTx(ctx, func(ctx context.Context) error {
		master, duplicate, err := o.loadMergePair(ctx, tenantID, masterID, duplicateID)
		if err != nil {
			return err
		}

		rule, err := o.loadRule(ctx, tenantID, ruleID)
		if err != nil {
			return err
		}

		masterSnapshot := master.Snapshot()
		duplicateSnapshot := duplicate.Snapshot()

		fields := o.engine.ResolveRecord(ctx, master, duplicate, rule)

		merged, err = o.repo.Update(ctx, tenantID, masterID, fields, master.Status, actor)
		if err != nil {
			return err
		}

		if _, err := o.repo.Update(ctx, tenantID, duplicateID, duplicate.Fields, models.RecordStatusMerged, actor); err != nil {
			return err
		}

		entry = &models.MergeLog{
			TenantID:          tenantID,
			MasterRecordID:    masterID,
			DuplicateRecordID: duplicateID,
			RuleID:            ruleID,
			MasterSnapshot:    masterSnapshot,
			DuplicateSnapshot: duplicateSnapshot,
			MergeReason:       reason,
			MergedBy:          actor,
			Status:            models.MergeLogStatusActive,
		}
		return o.repo.CreateMergeLog(ctx, entry)
	})
	if err != nil {
		log.WithError(err).Debug("Merge rejected")
		return nil, err
	}

	result = &models.MergeResult{
		MergeLogID:   entry.ID,
		MergedRecord: merged,
	}

	if o.quality != nil {
		score := o.quality.Score(merged)
		metrics.QualityScores.Observe(float64(score.Score))
		result.Quality = &score
	}

	if o.emitter != nil {
		if emitErr := o.emitter.EmitRecordMerged(ctx, entry, merged, result.Quality); emitErr != nil {
			log.WithError(emitErr).Warn("Merge committed but the merge event was not published")
		}
	}

	log.WithField("merge_log_id", entry.ID).Info("Merged records")
	return result, nil
}

// loadMergePair fetches both records in id order and checks they are free to merge.
// Participation in an active merge is reported before record status.
func (o *Orchestrator) loadMergePair(ctx context.Context, tenantID, masterID, duplicateID string) (*models.MasterRecord, *models.MasterRecord, error) {
	ids := []string{masterID, duplicateID}
	sort.Strings(ids)

	loaded := make(map[string]*models.MasterRecord, len(ids))
	for _, id := range ids {
		record, err := o.repo.GetByID(ctx, tenantID, id)
		if err != nil {
			return nil, nil, err
		}
		loaded[id] = record
	}
	master, duplicate := loaded[masterID], loaded[duplicateID]

	for _, record := range []*models.MasterRecord{master, duplicate} {
		active, err := o.activeMergeLog(ctx, tenantID, record.ID)
		if err != nil {
			return nil, nil, err
		}
		if active != nil {
			return nil, nil, fernerrors.NewAlreadyMergedError(record.ID, active.ID)
		}
	}

	for _, record := range []*models.MasterRecord{master, duplicate} {
		if !record.IsActive() {
			return nil, nil, fernerrors.NewInvalidStateError("record", record.ID, string(record.Status), "only ACTIVE records can be merged")
		}
	}

	return master, duplicate, nil
}

func (o *Orchestrator) activeMergeLog(ctx context.Context, tenantID, recordID string) (*models.MergeLog, error) {
	logs, err := o.repo.ListMergeLogsForRecord(ctx, tenantID, recordID, 0)
	if err != nil {
		return nil, err
	}
	for _, entry := range logs {
		if entry.IsActive() {
			return entry, nil
		}
	}
	return nil, nil
}

func (o *Orchestrator) loadRule(ctx context.Context, tenantID string, ruleID *string) (*models.SurvivorshipRule, error) {
	if ruleID == nil {
		return nil, nil
	}
	rule, err := o.repo.GetRuleByID(ctx, tenantID, *ruleID)
	if err != nil {
		return nil, err
	}
	if !rule.IsActive {
		return nil, fernerrors.NewInvalidStateError("survivorship rule", rule.ID, "INACTIVE", "rule is not active")
	}
	return rule, nil
}

// Unmerge restores both records of an active merge to their snapshots and
// marks the merge log REVERSED.
func (o *Orchestrator) Unmerge(ctx context.Context, tenantID, mergeLogID string, reason *string) (result *models.UnmergeResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Orchestrator.Unmerge")
	defer span.End()

	start := time.Now()
	defer func() {
		o.observe(tenantID, operationUnmerge, start, err)
		if err != nil {
			tracing.RecordError(span, err)
		}
	}()

	log := o.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":    tenantID,
		"merge_log_id": mergeLogID,
	})

	actor := appctx.GetActor(ctx)
	var reversed *models.MergeLog

	err = o.repo.RunInTx(ctx, func(ctx context.Context) error {
		entry, err := o.repo.GetMergeLogByID(ctx, tenantID, mergeLogID)
		if err != nil {
			return err
		}
		if !entry.IsActive() {
			return fernerrors.NewInvalidStateError("merge log", entry.ID, string(entry.Status), "already unmerged")
		}

		if _, err := o.repo.GetByID(ctx, tenantID, entry.MasterRecordID); err != nil {
			return err
		}
		duplicate, err := o.repo.GetByID(ctx, tenantID, entry.DuplicateRecordID)
		if err != nil {
			return err
		}
		if duplicate.Status != models.RecordStatusMerged {
			return fernerrors.NewInvalidStateError("record", duplicate.ID, string(duplicate.Status), "duplicate is no longer MERGED")
		}

		if err := o.restore(ctx, tenantID, entry.DuplicateSnapshot, actor); err != nil {
			return err
		}
		if err := o.restore(ctx, tenantID, entry.MasterSnapshot, actor); err != nil {
			return err
		}

		reversed, err = o.repo.UpdateMergeLogStatus(ctx, tenantID, entry.ID, models.MergeLogStatusReversed, reason, actor)
		return err
	})
	if err != nil {
		log.WithError(err).Debug("Unmerge rejected")
		return nil, err
	}

	if o.emitter != nil {
		if emitErr := o.emitter.EmitRecordUnmerged(ctx, reversed); emitErr != nil {
			log.WithError(emitErr).Warn("Unmerge committed but the unmerge event was not published")
		}
	}

	log.Info("Unmerged records")
	return &models.UnmergeResult{
		MasterRecordID:    reversed.MasterRecordID,
		DuplicateRecordID: reversed.DuplicateRecordID,
	}, nil
}

func (o *Orchestrator) restore(ctx context.Context, tenantID string, snapshot models.RecordSnapshot, actor string) error {
	_, err := o.repo.Update(ctx, tenantID, snapshot.ID, snapshot.Fields, snapshot.Status, actor)
	if err != nil {
		return fmt.Errorf("failed to restore record %s: %w", snapshot.ID, err)
	}
	return nil
}

// History returns the merge logs a record took part in, newest first.
// A limit <= 0 uses the configured default; limits above MaxHistoryLimit are capped.
func (o *Orchestrator) History(ctx context.Context, tenantID, recordID string, limit int) ([]*models.MergeLog, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Orchestrator.History")
	defer span.End()

	if limit <= 0 {
		limit = o.historyLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	logs, err := o.repo.ListMergeLogsForRecord(ctx, tenantID, recordID, limit)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	return logs, nil
}

func (o *Orchestrator) observe(tenantID, operation string, start time.Time, err error) {
	metrics.MergeOperationsTotal.WithLabelValues(tenantID, operation, metrics.StatusFor(err)).Inc()
	metrics.MergeOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
