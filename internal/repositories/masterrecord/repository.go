package masterrecord

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

const table = "master_records"

var columns = []string{"id", "tenant_id", "type", "status", "fields", "created_by", "updated_by", "created_at", "updated_at"}

// Repository handles master record persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new master record repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new record, assigning an id when missing
func (r *Repository) Create(ctx context.Context, record *models.MasterRecord) (*models.MasterRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "masterrecord.Repository.Create")
	defer span.End()

	stored := record.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.Status == "" {
		stored.Status = models.RecordStatusActive
	}
	if stored.Fields == nil {
		stored.Fields = models.Fields{}
	}
	stored.CreatedAt = time.Now().UTC()
	stored.UpdatedAt = stored.CreatedAt
	if stored.UpdatedBy == "" {
		stored.UpdatedBy = stored.CreatedBy
	}

	sb := database.NewInsertBuilder()
	sb.InsertInto(table)
	sb.Cols(columns...)
	sb.Values(stored.ID, stored.TenantID, stored.Type, stored.Status, stored.Fields, stored.CreatedBy, stored.UpdatedBy, stored.CreatedAt, stored.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecutorFor(ctx).ExecContext(ctx, query, args...); err != nil {
		tracing.RecordError(span, err)
		if database.IsUniqueViolation(err, "") {
			return nil, fernerrors.NewInvalidOperationError("create record", "record '%s' already exists", stored.ID)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create master record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create master record")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": stored.ID, "tenant_id": stored.TenantID}).Debug("Created master record")
	return stored, nil
}

// GetByID returns the record. Inside a transaction the row is locked until commit.
func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*models.MasterRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "masterrecord.Repository.GetByID")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)
	if database.TxFromContext(ctx) != nil {
		sb.ForUpdate()
	}

	query, args := sb.Build()
	var record models.MasterRecord
	if err := r.db.ExecutorFor(ctx).GetContext(ctx, &record, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, fernerrors.NewNotFoundError("record", id)
		}
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get master record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get master record")
	}

	return &record, nil
}

// ListActive returns the tenant's ACTIVE records ordered by id
func (r *Repository) ListActive(ctx context.Context, tenantID string) ([]*models.MasterRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "masterrecord.Repository.ListActive")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("status", models.RecordStatusActive),
	)
	sb.OrderBy("id").Asc()

	query, args := sb.Build()
	records := make([]*models.MasterRecord, 0)
	if err := r.db.ExecutorFor(ctx).SelectContext(ctx, &records, query, args...); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list active master records")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list master records")
	}

	return records, nil
}

// Update replaces the record's fields and status
func (r *Repository) Update(ctx context.Context, tenantID, id string, fields models.Fields, status models.RecordStatus, updatedBy string) (*models.MasterRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "masterrecord.Repository.Update")
	defer span.End()

	if fields == nil {
		fields = models.Fields{}
	}

	sb := database.NewUpdateBuilder()
	sb.Update(table)
	sb.Set(
		sb.Assign("fields", fields),
		sb.Assign("status", status),
		sb.Assign("updated_by", updatedBy),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	result, err := r.db.ExecutorFor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update master record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update master record")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, fernerrors.NewNotFoundError("record", id)
	}

	return r.GetByID(ctx, tenantID, id)
}
