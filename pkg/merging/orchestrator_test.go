package merging

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/repositories/memory"
	appctx "github.com/Ramsey-B/fern/pkg/context"
	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/quality"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func strPtr(s string) *string {
	return &s
}

var (
	older = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
)

func seedAcme(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	store.Insert(ctx, &models.MasterRecord{
		ID: "A", TenantID: "t1", Type: "vendor", UpdatedAt: older,
		Fields: models.Fields{"name": "Acme Inc", "tax_id": "123", "email": "ap@acme.de"},
	})
	store.Insert(ctx, &models.MasterRecord{
		ID: "B", TenantID: "t1", Type: "vendor", UpdatedAt: newer,
		Fields: models.Fields{"name": "Acme Incorporated", "tax_id": "123", "email": "billing@acme.de", "phone": "+49 30 1234567"},
	})
	store.Insert(ctx, &models.MasterRecord{
		ID: "C", TenantID: "t1", Type: "vendor",
		Fields: models.Fields{"name": "Acme GmbH", "tax_id": "123"},
	})
	return store
}

func mustGet(t *testing.T, store *memory.Store, id string) *models.MasterRecord {
	t.Helper()
	record, err := store.GetByID(context.Background(), "t1", id)
	require.NoError(t, err)
	return record
}

func TestOrchestrator_AcmeMergeAndUnmerge(t *testing.T) {
	ctx := context.Background()
	store := seedAcme(t)
	orchestrator := NewOrchestrator(store, nil, noopLogger())

	before := map[string]*models.MasterRecord{"A": mustGet(t, store, "A"), "B": mustGet(t, store, "B")}
	assert.GreaterOrEqual(t, matching.NewSimilarityScorer().Score(before["A"], before["B"]), 90.0)

	result, err := orchestrator.Merge(ctx, "t1", "A", "B", nil, strPtr("same tax id"))
	require.NoError(t, err)
	require.NotEmpty(t, result.MergeLogID)
	assert.Equal(t, before["A"].Fields, result.MergedRecord.Fields)

	duplicate := mustGet(t, store, "B")
	assert.Equal(t, models.RecordStatusMerged, duplicate.Status)
	assert.Equal(t, before["B"].Fields, duplicate.Fields)

	entry, err := store.GetMergeLogByID(ctx, "t1", result.MergeLogID)
	require.NoError(t, err)
	assert.Equal(t, models.MergeLogStatusActive, entry.Status)
	assert.Equal(t, "same tax id", *entry.MergeReason)
	assert.Nil(t, entry.RuleID)
	assert.Equal(t, before["A"].Fields, entry.MasterSnapshot.Fields)
	assert.Equal(t, before["B"].Fields, entry.DuplicateSnapshot.Fields)
	assert.Equal(t, appctx.SystemActor, entry.MergedBy)

	unmerged, err := orchestrator.Unmerge(ctx, "t1", result.MergeLogID, strPtr("false positive"))
	require.NoError(t, err)
	assert.Equal(t, "A", unmerged.MasterRecordID)
	assert.Equal(t, "B", unmerged.DuplicateRecordID)

	for id, original := range before {
		restored := mustGet(t, store, id)
		assert.Equal(t, original.Fields, restored.Fields, id)
		assert.Equal(t, models.RecordStatusActive, restored.Status, id)
	}

	entry, err = store.GetMergeLogByID(ctx, "t1", result.MergeLogID)
	require.NoError(t, err)
	assert.Equal(t, models.MergeLogStatusReversed, entry.Status)
	assert.Equal(t, "false positive", *entry.UnmergeReason)
	require.NotNil(t, entry.UnmergedAt)
}

func TestOrchestrator_RoundTripWithRule(t *testing.T) {
	ctx := context.Background()
	store := seedAcme(t)
	rule := store.SaveRule(ctx, &models.SurvivorshipRule{
		TenantID: "t1",
		Name:     "prefer fresh contact data",
		IsActive: true,
		FieldStrategies: models.FieldStrategies{
			"email": models.StrategyNewer,
			"phone": models.StrategyDuplicate,
			"name":  models.StrategyCustom,
		},
		CustomLogic: strPtr("duplicate"),
	})
	orchestrator := NewOrchestrator(store, nil, noopLogger())

	before := map[string]*models.MasterRecord{"A": mustGet(t, store, "A"), "B": mustGet(t, store, "B")}

	result, err := orchestrator.Merge(ctx, "t1", "A", "B", &rule.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.Fields{
		"name":   "Acme Incorporated",
		"tax_id": "123",
		"email":  "billing@acme.de",
		"phone":  "+49 30 1234567",
	}, result.MergedRecord.Fields)

	entry, err := store.GetMergeLogByID(ctx, "t1", result.MergeLogID)
	require.NoError(t, err)
	assert.Equal(t, rule.ID, *entry.RuleID)

	_, err = orchestrator.Unmerge(ctx, "t1", result.MergeLogID, nil)
	require.NoError(t, err)

	for id, original := range before {
		restored := mustGet(t, store, id)
		assert.Equal(t, original.Fields, restored.Fields, id)
		assert.Equal(t, original.Status, restored.Status, id)
	}
}

func TestOrchestrator_DefaultPolicyLeavesMasterUnchanged(t *testing.T) {
	ctx := context.Background()
	store := seedAcme(t)
	orchestrator := NewOrchestrator(store, nil, noopLogger())

	master := mustGet(t, store, "A")
	result, err := orchestrator.Merge(appctx.SetUserID(ctx, "user-7"), "t1", "A", "B", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, master.Fields, result.MergedRecord.Fields)
	assert.NotContains(t, result.MergedRecord.Fields, "phone")
	assert.Equal(t, "user-7", result.MergedRecord.UpdatedBy)
	assert.Equal(t, models.RecordStatusActive, result.MergedRecord.Status)
}

func TestOrchestrator_MergePreconditions(t *testing.T) {
	ctx := context.Background()
	store := seedAcme(t)
	store.Insert(ctx, &models.MasterRecord{ID: "inactive", TenantID: "t1", Status: models.RecordStatusInactive})
	store.Insert(ctx, &models.MasterRecord{ID: "foreign", TenantID: "t2"})
	offRule := store.SaveRule(ctx, &models.SurvivorshipRule{TenantID: "t1", Name: "off", IsActive: false})
	orchestrator := NewOrchestrator(store, nil, noopLogger())

	tests := []struct {
		name        string
		masterID    string
		duplicateID string
		ruleID      *string
		check       func(error) bool
	}{
		{name: "self merge", masterID: "A", duplicateID: "A", check: fernerrors.IsInvalidOperation},
		{name: "missing master", masterID: "nope", duplicateID: "B", check: fernerrors.IsNotFound},
		{name: "missing duplicate", masterID: "A", duplicateID: "nope", check: fernerrors.IsNotFound},
		{name: "other tenant", masterID: "A", duplicateID: "foreign", check: fernerrors.IsNotFound},
		{name: "inactive duplicate", masterID: "A", duplicateID: "inactive", check: fernerrors.IsInvalidState},
		{name: "inactive master", masterID: "inactive", duplicateID: "B", check: fernerrors.IsInvalidState},
		{name: "missing rule", masterID: "A", duplicateID: "B", ruleID: strPtr("nope"), check: fernerrors.IsNotFound},
		{name: "inactive rule", masterID: "A", duplicateID: "B", ruleID: &offRule.ID, check: fernerrors.IsInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := orchestrator.Merge(ctx, "t1", tt.masterID, tt.duplicateID, tt.ruleID, nil)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}

	assert.Equal(t, models.RecordStatusActive, mustGet(t, store, "B").Status)
}

func TestOrchestrator_AlreadyMerged(t *testing.T) {
	ctx := context.Background()
	store := seedAcme(t)
	orchestrator := NewOrchestrator(store, nil, noopLogger())

	first, err := orchestrator.Merge(ctx, "t1", "A", "B", nil, nil)
	require.NoError(t, err)

	_, err = orchestrator.Merge(ctx, "t1", "C", "B", nil, nil)
	require.Error(t, err)
	assert.True(t, fernerrors.IsAlreadyMerged(err))

	var merged *fernerrors.AlreadyMergedError
	require.ErrorAs(t, err, &merged)
	assert.Equal(t, "B", merged.RecordID)
	assert.Equal(t, first.MergeLogID, merged.MergeLogID)

	_, err = orchestrator.Merge(ctx, "t1", "A", "C", nil, nil)
	assert.True(t, fernerrors.IsAlreadyMerged(err))
}

func TestOrchestrator_ConcurrentMergesOfOneDuplicate(t *testing.T) {
	ctx := context.Background()
	store := seedAcme(t)
	orchestrator := NewOrchestrator(store, nil, noopLogger())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, masterID := range []string{"A", "C"} {
		wg.Add(1)
		go func(i int, masterID string) {
			defer wg.Done()
			_, errs[i] = orchestrator.Merge(ctx, "t1", masterID, "B", nil, nil)
		}(i, masterID)
	}
	wg.Wait()

	successes, alreadyMerged := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case fernerrors.IsAlreadyMerged(err):
			alreadyMerged++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, alreadyMerged)

	logs, err := store.ListMergeLogsForRecord(ctx, "t1", "B", 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestOrchestrator_MergeRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	store := seedAcme(t)
	rule := store.SaveRule(ctx, &models.SurvivorshipRule{
		TenantID: "t1", Name: "dup wins", IsActive: true,
		FieldStrategies: models.FieldStrategies{"name": models.StrategyDuplicate},
	})
	orchestrator := NewOrchestrator(store, nil, noopLogger())

	master := mustGet(t, store, "A")
	duplicate := mustGet(t, store, "B")

	store.FailOn("CreateMergeLog", errors.New("disk full"))
	_, err := orchestrator.Merge(ctx, "t1", "A", "B", &rule.ID, nil)
	require.EqualError(t, err, "disk full")

	assert.Equal(t, master, mustGet(t, store, "A"))
	assert.Equal(t, duplicate, mustGet(t, store, "B"))

	store.FailOn("CreateMergeLog", nil)
	_, err = orchestrator.Merge(ctx, "t1", "A", "B", &rule.ID, nil)
	require.NoError(t, err)
}

func TestOrchestrator_UnmergeRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	store := seedAcme(t)
	orchestrator := NewOrchestrator(store, nil, noopLogger())

	result, err := orchestrator.Merge(ctx, "t1", "A", "B", nil, nil)
	require.NoError(t, err)

	store.FailOn("UpdateMergeLogStatus", errors.New("connection reset"))
	_, err = orchestrator.Unmerge(ctx, "t1", result.MergeLogID, nil)
	require.Error(t, err)

	assert.Equal(t, models.RecordStatusMerged, mustGet(t, store, "B").Status)
	entry, err := store.GetMergeLogByID(ctx, "t1", result.MergeLogID)
	require.NoError(t, err)
	assert.True(t, entry.IsActive())
}

func TestOrchestrator_UnmergePreconditions(t *testing.T) {
	ctx := context.Background()
	store := seedAcme(t)
	orchestrator := NewOrchestrator(store, nil, noopLogger())

	_, err := orchestrator.Unmerge(ctx, "t1", "missing", nil)
	assert.True(t, fernerrors.IsNotFound(err))

	result, err := orchestrator.Merge(ctx, "t1", "A", "B", nil, nil)
	require.NoError(t, err)

	_, err = orchestrator.Unmerge(ctx, "t2", result.MergeLogID, nil)
	assert.True(t, fernerrors.IsNotFound(err))

	_, err = orchestrator.Unmerge(ctx, "t1", result.MergeLogID, nil)
	require.NoError(t, err)

	_, err = orchestrator.Unmerge(ctx, "t1", result.MergeLogID, nil)
	require.Error(t, err)
	assert.True(t, fernerrors.IsInvalidState(err))
}

func TestOrchestrator_UnmergeRequiresMergedDuplicate(t *testing.T) {
	ctx := context.Background()
	store := seedAcme(t)
	orchestrator := NewOrchestrator(store, nil, noopLogger())

	result, err := orchestrator.Merge(ctx, "t1", "A", "B", nil, nil)
	require.NoError(t, err)

	_, err = store.Update(ctx, "t1", "B", models.Fields{}, models.RecordStatusDeleted, "admin")
	require.NoError(t, err)

	_, err = orchestrator.Unmerge(ctx, "t1", result.MergeLogID, nil)
	assert.True(t, fernerrors.IsInvalidState(err))
}

func TestOrchestrator_ConcurrentUnmerge(t *testing.T) {
	ctx := context.Background()
	store := seedAcme(t)
	orchestrator := NewOrchestrator(store, nil, noopLogger())

	result, err := orchestrator.Merge(ctx, "t1", "A", "B", nil, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = orchestrator.Unmerge(ctx, "t1", result.MergeLogID, nil)
		}(i)
	}
	wg.Wait()

	successes, invalid := 0, 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else if fernerrors.IsInvalidState(err) {
			invalid++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, invalid)
}

func TestOrchestrator_RemergeAfterUnmerge(t *testing.T) {
	ctx := context.Background()
	store := seedAcme(t)
	orchestrator := NewOrchestrator(store, nil, noopLogger())

	first, err := orchestrator.Merge(ctx, "t1", "A", "B", nil, nil)
	require.NoError(t, err)
	_, err = orchestrator.Unmerge(ctx, "t1", first.MergeLogID, nil)
	require.NoError(t, err)

	second, err := orchestrator.Merge(ctx, "t1", "C", "B", nil, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.MergeLogID, second.MergeLogID)

	history, err := orchestrator.History(ctx, "t1", "B", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.MergeLogID, history[0].ID)
	assert.Equal(t, models.MergeLogStatusReversed, history[1].Status)
}

func TestOrchestrator_HistoryLimits(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	for i := 0; i < 3; i++ {
		entry := &models.MergeLog{TenantID: "t1", MasterRecordID: "m", DuplicateRecordID: "d"}
		require.NoError(t, store.CreateMergeLog(ctx, entry))
		_, err := store.UpdateMergeLogStatus(ctx, "t1", entry.ID, models.MergeLogStatusReversed, nil, "admin")
		require.NoError(t, err)
	}

	orchestrator := NewOrchestrator(store, nil, noopLogger(), WithHistoryLimit(2))

	logs, err := orchestrator.History(ctx, "t1", "m", 0)
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	logs, err = orchestrator.History(ctx, "t1", "m", 10)
	require.NoError(t, err)
	assert.Len(t, logs, 3)

	logs, err = orchestrator.History(ctx, "t1", "unknown", 0)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestWithHistoryLimit_IgnoresOutOfRange(t *testing.T) {
	assert.Equal(t, DefaultHistoryLimit, NewOrchestrator(nil, nil, noopLogger(), WithHistoryLimit(0)).historyLimit)
	assert.Equal(t, DefaultHistoryLimit, NewOrchestrator(nil, nil, noopLogger(), WithHistoryLimit(MaxHistoryLimit+1)).historyLimit)
	assert.Equal(t, 20, NewOrchestrator(nil, nil, noopLogger(), WithHistoryLimit(20)).historyLimit)
}

type fakeEmitter struct {
	mu       sync.Mutex
	merged   []*models.MergeLog
	scores   []*models.QualityScore
	unmerged []*models.MergeLog
	err      error
}

func (e *fakeEmitter) EmitRecordMerged(_ context.Context, entry *models.MergeLog, _ *models.MasterRecord, quality *models.QualityScore) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.merged = append(e.merged, entry)
	e.scores = append(e.scores, quality)
	return e.err
}

func (e *fakeEmitter) EmitRecordUnmerged(_ context.Context, entry *models.MergeLog) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unmerged = append(e.unmerged, entry)
	return e.err
}

func TestOrchestrator_EmitsEventsAfterCommit(t *testing.T) {
	ctx := context.Background()
	store := seedAcme(t)
	emitter := &fakeEmitter{}
	orchestrator := NewOrchestrator(store, nil, noopLogger(),
		WithEmitter(emitter),
		WithQualityScorer(quality.NewScorer()),
	)

	result, err := orchestrator.Merge(ctx, "t1", "A", "B", nil, nil)
	require.NoError(t, err)
	require.NotNil(t, result.Quality)
	assert.Equal(t, "A", result.Quality.RecordID)

	require.Len(t, emitter.merged, 1)
	assert.Equal(t, result.MergeLogID, emitter.merged[0].ID)
	assert.Equal(t, result.Quality, emitter.scores[0])

	_, err = orchestrator.Unmerge(ctx, "t1", result.MergeLogID, nil)
	require.NoError(t, err)
	require.Len(t, emitter.unmerged, 1)
	assert.Equal(t, models.MergeLogStatusReversed, emitter.unmerged[0].Status)
}

func TestOrchestrator_EventFailureDoesNotFailMerge(t *testing.T) {
	ctx := context.Background()
	store := seedAcme(t)
	emitter := &fakeEmitter{err: errors.New("broker down")}
	orchestrator := NewOrchestrator(store, nil, noopLogger(), WithEmitter(emitter))

	result, err := orchestrator.Merge(ctx, "t1", "A", "B", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RecordStatusMerged, mustGet(t, store, "B").Status)

	_, err = orchestrator.Unmerge(ctx, "t1", result.MergeLogID, nil)
	require.NoError(t, err)
}

type fakeLocker struct {
	keys     [][]string
	released int
	err      error
}

func (l *fakeLocker) LockRecords(_ context.Context, _ string, recordIDs ...string) (func(context.Context), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.keys = append(l.keys, recordIDs)
	return func(context.Context) { l.released++ }, nil
}

func TestOrchestrator_LocksRecordsAroundMerge(t *testing.T) {
	ctx := context.Background()
	store := seedAcme(t)
	locker := &fakeLocker{}
	orchestrator := NewOrchestrator(store, nil, noopLogger(), WithLocker(locker))

	_, err := orchestrator.Merge(ctx, "t1", "A", "B", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"A", "B"}}, locker.keys)
	assert.Equal(t, 1, locker.released)

	_, err = orchestrator.Merge(ctx, "t1", "C", "B", nil, nil)
	require.Error(t, err)
	assert.Equal(t, 2, locker.released)
}

func TestOrchestrator_LockFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	store := seedAcme(t)
	orchestrator := NewOrchestrator(store, nil, noopLogger(), WithLocker(&fakeLocker{err: errors.New("lock not acquired")}))

	_, err := orchestrator.Merge(ctx, "t1", "A", "B", nil, nil)
	require.Error(t, err)
	assert.False(t, fernerrors.IsAlreadyMerged(err))
	assert.Equal(t, http.StatusServiceUnavailable, httperror.GetStatusCode(err))
	assert.Equal(t, models.RecordStatusActive, mustGet(t, store, "B").Status)
}
