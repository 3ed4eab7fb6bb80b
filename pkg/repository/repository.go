// Package repository defines the persistence contract the dedup and merge engine depends on.
package repository

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/models"
)

// RecordReader reads master records and their merge history
type RecordReader interface {
	// GetByID returns a NotFoundError when the record is absent or belongs to another tenant.
	GetByID(ctx context.Context, tenantID, id string) (*models.MasterRecord, error)
	ListActive(ctx context.Context, tenantID string) ([]*models.MasterRecord, error)
	// ListMergeLogsForRecord returns logs where the record is on either side, newest first.
	// A limit <= 0 returns every log.
	ListMergeLogsForRecord(ctx context.Context, tenantID, recordID string, limit int) ([]*models.MergeLog, error)
}

// Repository is the full collaborator used by the merge orchestrator
type Repository interface {
	RecordReader

	// Update replaces the record's fields and status and stamps updated_by/updated_at.
	Update(ctx context.Context, tenantID, id string, fields models.Fields, status models.RecordStatus, updatedBy string) (*models.MasterRecord, error)

	// CreateMergeLog appends an ACTIVE log. It returns an AlreadyMergedError when either
	// record already participates in an ACTIVE log.
	CreateMergeLog(ctx context.Context, entry *models.MergeLog) error

	// UpdateMergeLogStatus moves an ACTIVE log to status. It returns an InvalidStateError
	// when the log is no longer ACTIVE.
	UpdateMergeLogStatus(ctx context.Context, tenantID, id string, status models.MergeLogStatus, reason *string, updatedBy string) (*models.MergeLog, error)

	GetMergeLogByID(ctx context.Context, tenantID, id string) (*models.MergeLog, error)
	GetRuleByID(ctx context.Context, tenantID, id string) (*models.SurvivorshipRule, error)

	// RunInTx runs fn atomically. Nested calls join the outer transaction.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
