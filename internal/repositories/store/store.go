// Package store composes the Postgres repositories into the repository contract used by the engine.
package store

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/repositories/masterrecord"
	"github.com/Ramsey-B/fern/internal/repositories/mergelog"
	"github.com/Ramsey-B/fern/internal/repositories/survivorshiprule"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repository"
)

var _ repository.Repository = (*Store)(nil)

// Store is the Postgres-backed repository
type Store struct {
	db        database.DB
	Records   *masterrecord.Repository
	MergeLogs *mergelog.Repository
	Rules     *survivorshiprule.Repository
}

func New(db database.DB, logger ectologger.Logger, ruleValidator survivorshiprule.Validator) *Store {
	return &Store{
		db:        db,
		Records:   masterrecord.NewRepository(db, logger),
		MergeLogs: mergelog.NewRepository(db, logger),
		Rules:     survivorshiprule.NewRepository(db, logger, ruleValidator),
	}
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.db.RunInTx(ctx, fn)
}

func (s *Store) GetByID(ctx context.Context, tenantID, id string) (*models.MasterRecord, error) {
	return s.Records.GetByID(ctx, tenantID, id)
}

func (s *Store) ListActive(ctx context.Context, tenantID string) ([]*models.MasterRecord, error) {
	return s.Records.ListActive(ctx, tenantID)
}

func (s *Store) Update(ctx context.Context, tenantID, id string, fields models.Fields, status models.RecordStatus, updatedBy string) (*models.MasterRecord, error) {
	return s.Records.Update(ctx, tenantID, id, fields, status, updatedBy)
}

func (s *Store) CreateMergeLog(ctx context.Context, entry *models.MergeLog) error {
	return s.MergeLogs.Create(ctx, entry)
}

func (s *Store) UpdateMergeLogStatus(ctx context.Context, tenantID, id string, status models.MergeLogStatus, reason *string, updatedBy string) (*models.MergeLog, error) {
	return s.MergeLogs.UpdateStatus(ctx, tenantID, id, status, reason, updatedBy)
}

func (s *Store) GetMergeLogByID(ctx context.Context, tenantID, id string) (*models.MergeLog, error) {
	return s.MergeLogs.GetByID(ctx, tenantID, id)
}

func (s *Store) ListMergeLogsForRecord(ctx context.Context, tenantID, recordID string, limit int) ([]*models.MergeLog, error) {
	return s.MergeLogs.ListForRecord(ctx, tenantID, recordID, limit)
}

func (s *Store) GetRuleByID(ctx context.Context, tenantID, id string) (*models.SurvivorshipRule, error) {
	return s.Rules.GetByID(ctx, tenantID, id)
}
