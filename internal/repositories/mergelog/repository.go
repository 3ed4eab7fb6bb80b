package mergelog

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	logsTable         = "merge_logs"
	participantsTable = "merge_participants"
	participantsPKey  = "merge_participants_pkey"
)

var columns = []string{
	"id", "tenant_id", "master_record_id", "duplicate_record_id", "rule_id",
	"master_snapshot", "duplicate_snapshot", "merge_reason", "merged_by", "merged_at",
	"status", "unmerge_reason", "unmerged_by", "unmerged_at",
}

// Repository handles the merge audit trail and active merge participation
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new merge log repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create appends an ACTIVE merge log and claims both records as participants.
// A record that already participates in an ACTIVE log yields an AlreadyMergedError.
func (r *Repository) Create(ctx context.Context, entry *models.MergeLog) error {
	ctx, span := tracing.StartSpan(ctx, "mergelog.Repository.Create")
	defer span.End()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.MergedAt.IsZero() {
		entry.MergedAt = time.Now().UTC()
	}
	entry.Status = models.MergeLogStatusActive

	err := r.db.RunInTx(ctx, func(ctx context.Context) error {
		sb := database.NewInsertBuilder()
		sb.InsertInto(logsTable)
		sb.Cols(columns...)
		sb.Values(
			entry.ID, entry.TenantID, entry.MasterRecordID, entry.DuplicateRecordID, entry.RuleID,
			entry.MasterSnapshot, entry.DuplicateSnapshot, entry.MergeReason, entry.MergedBy, entry.MergedAt,
			entry.Status, entry.UnmergeReason, entry.UnmergedBy, entry.UnmergedAt,
		)

		query, args := sb.Build()
		if _, err := r.db.ExecutorFor(ctx).ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to create merge log")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create merge log")
		}

		for _, recordID := range []string{entry.MasterRecordID, entry.DuplicateRecordID} {
			if err := r.claim(ctx, entry.TenantID, recordID, entry.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":                  entry.ID,
		"master_record_id":    entry.MasterRecordID,
		"duplicate_record_id": entry.DuplicateRecordID,
	}).Debug("Created merge log")
	return nil
}

// claim inserts the participation row. ON CONFLICT keeps the transaction usable
// so the holder of the record can be reported.
func (r *Repository) claim(ctx context.Context, tenantID, recordID, mergeLogID string) error {
	sb := database.NewInsertBuilder()
	sb.InsertInto(participantsTable)
	sb.Cols("tenant_id", "record_id", "merge_log_id")
	sb.Values(tenantID, recordID, mergeLogID)

	query, args := sb.Build()
	query += " ON CONFLICT (tenant_id, record_id) DO NOTHING"

	result, err := r.db.ExecutorFor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		if database.IsUniqueViolation(err, participantsPKey) {
			return fernerrors.NewAlreadyMergedError(recordID, "")
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to claim merge participant")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create merge log")
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		return nil
	}

	holder, err := r.activeLogID(ctx, tenantID, recordID)
	if err != nil {
		return err
	}
	return fernerrors.NewAlreadyMergedError(recordID, holder)
}

func (r *Repository) activeLogID(ctx context.Context, tenantID, recordID string) (string, error) {
	sb := database.NewSelectBuilder()
	sb.Select("merge_log_id")
	sb.From(participantsTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("record_id", recordID),
	)

	query, args := sb.Build()
	var id string
	if err := r.db.ExecutorFor(ctx).GetContext(ctx, &id, query, args...); err != nil {
		if database.IsNoRows(err) {
			return "", nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to look up merge participant")
		return "", httperror.NewHTTPError(http.StatusInternalServerError, "failed to look up merge participant")
	}
	return id, nil
}

// GetByID returns the merge log
func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*models.MergeLog, error) {
	ctx, span := tracing.StartSpan(ctx, "mergelog.Repository.GetByID")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(logsTable)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var entry models.MergeLog
	if err := r.db.ExecutorFor(ctx).GetContext(ctx, &entry, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, fernerrors.NewNotFoundError("merge log", id)
		}
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get merge log")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get merge log")
	}

	return &entry, nil
}

// ListForRecord returns logs with the record on either side, newest first. limit <= 0 returns all.
func (r *Repository) ListForRecord(ctx context.Context, tenantID, recordID string, limit int) ([]*models.MergeLog, error) {
	ctx, span := tracing.StartSpan(ctx, "mergelog.Repository.ListForRecord")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(logsTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Or(
			sb.Equal("master_record_id", recordID),
			sb.Equal("duplicate_record_id", recordID),
		),
	)
	sb.OrderBy("seq").Desc()
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	logs := make([]*models.MergeLog, 0)
	if err := r.db.ExecutorFor(ctx).SelectContext(ctx, &logs, query, args...); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list merge logs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list merge logs")
	}

	return logs, nil
}

// UpdateStatus moves an ACTIVE log to status and releases its participants.
// The transition only applies while the log is still ACTIVE.
func (r *Repository) UpdateStatus(ctx context.Context, tenantID, id string, status models.MergeLogStatus, reason *string, updatedBy string) (*models.MergeLog, error) {
	ctx, span := tracing.StartSpan(ctx, "mergelog.Repository.UpdateStatus")
	defer span.End()

	var updated *models.MergeLog
	err := r.db.RunInTx(ctx, func(ctx context.Context) error {
		sb := database.NewUpdateBuilder()
		sb.Update(logsTable)
		sb.Set(
			sb.Assign("status", status),
			sb.Assign("unmerge_reason", reason),
			sb.Assign("unmerged_by", updatedBy),
			sb.Assign("unmerged_at", time.Now().UTC()),
		)
		sb.Where(
			sb.Equal("id", id),
			sb.Equal("tenant_id", tenantID),
			sb.Equal("status", models.MergeLogStatusActive),
		)

		query, args := sb.Build()
		result, err := r.db.ExecutorFor(ctx).ExecContext(ctx, query, args...)
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to update merge log status")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update merge log")
		}

		rows, _ := result.RowsAffected()
		if rows == 0 {
			current, err := r.GetByID(ctx, tenantID, id)
			if err != nil {
				return err
			}
			return fernerrors.NewInvalidStateError("merge log", id, string(current.Status), "already unmerged")
		}

		if status != models.MergeLogStatusActive {
			db := database.NewDeleteBuilder()
			db.DeleteFrom(participantsTable)
			db.Where(
				db.Equal("tenant_id", tenantID),
				db.Equal("merge_log_id", id),
			)
			query, args := db.Build()
			if _, err := r.db.ExecutorFor(ctx).ExecContext(ctx, query, args...); err != nil {
				r.logger.WithContext(ctx).WithError(err).Error("Failed to release merge participants")
				return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update merge log")
			}
		}

		updated, err = r.GetByID(ctx, tenantID, id)
		return err
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	return updated, nil
}
