package survivorshiprule

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
	table          = "survivorship_rules"
	tenantNameUKey = "survivorship_rules_tenant_name_key"
)

var columns = []string{"id", "tenant_id", "name", "priority", "field_strategies", "custom_logic", "is_active", "created_at", "updated_at"}

// Validator checks a rule before it is stored
type Validator interface {
	Validate(rule *models.SurvivorshipRule) error
}

// Repository handles survivorship rule persistence
type Repository struct {
	db        database.DB
	logger    ectologger.Logger
	validator Validator
}

// NewRepository creates a new survivorship rule repository
func NewRepository(db database.DB, logger ectologger.Logger, validator Validator) *Repository {
	return &Repository{
		db:        db,
		logger:    logger,
		validator: validator,
	}
}

// Create validates and stores a new rule
func (r *Repository) Create(ctx context.Context, rule *models.SurvivorshipRule) (*models.SurvivorshipRule, error) {
	ctx, span := tracing.StartSpan(ctx, "survivorshiprule.Repository.Create")
	defer span.End()

	if r.validator != nil {
		if err := r.validator.Validate(rule); err != nil {
			return nil, err
		}
	}

	stored := *rule
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.FieldStrategies == nil {
		stored.FieldStrategies = models.FieldStrategies{}
	}
	stored.CreatedAt = time.Now().UTC()
	stored.UpdatedAt = stored.CreatedAt

	sb := database.NewInsertBuilder()
	sb.InsertInto(table)
	sb.Cols(columns...)
	sb.Values(stored.ID, stored.TenantID, stored.Name, stored.Priority, stored.FieldStrategies, stored.CustomLogic, stored.IsActive, stored.CreatedAt, stored.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecutorFor(ctx).ExecContext(ctx, query, args...); err != nil {
		tracing.RecordError(span, err)
		if database.IsUniqueViolation(err, tenantNameUKey) {
			return nil, fernerrors.NewInvalidOperationError("survivorship rule", "a rule named '%s' already exists", stored.Name)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create survivorship rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create survivorship rule")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": stored.ID, "name": stored.Name}).Info("Created survivorship rule")
	return &stored, nil
}

// GetByID returns the rule
func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*models.SurvivorshipRule, error) {
	ctx, span := tracing.StartSpan(ctx, "survivorshiprule.Repository.GetByID")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var rule models.SurvivorshipRule
	if err := r.db.ExecutorFor(ctx).GetContext(ctx, &rule, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, fernerrors.NewNotFoundError("survivorship rule", id)
		}
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get survivorship rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get survivorship rule")
	}

	return &rule, nil
}

// List returns the tenant's rules, highest precedence (lowest priority) first
func (r *Repository) List(ctx context.Context, tenantID string) ([]*models.SurvivorshipRule, error) {
	ctx, span := tracing.StartSpan(ctx, "survivorshiprule.Repository.List")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("priority", "name").Asc()

	query, args := sb.Build()
	rules := make([]*models.SurvivorshipRule, 0)
	if err := r.db.ExecutorFor(ctx).SelectContext(ctx, &rules, query, args...); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list survivorship rules")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list survivorship rules")
	}

	return rules, nil
}
