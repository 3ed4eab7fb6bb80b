// Package events emits record lifecycle events for merges and unmerges
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Event types
const (
	EventRecordMerged   = "record.merged"
	EventRecordUnmerged = "record.unmerged"
)

// Publisher delivers a record event
type Publisher interface {
	PublishRecordEvent(ctx context.Context, event *kafka.RecordEvent) error
}

// Emitter builds and publishes record lifecycle events
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// EmitRecordMerged announces a committed merge, carrying the merged master's fields
func (e *Emitter) EmitRecordMerged(ctx context.Context, entry *models.MergeLog, merged *models.MasterRecord, quality *models.QualityScore) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRecordMerged")
	defer span.End()

	data, err := json.Marshal(merged.Fields)
	if err != nil {
		return err
	}

	event := &kafka.RecordEvent{
		EventType:         EventRecordMerged,
		TenantID:          entry.TenantID,
		RecordID:          entry.MasterRecordID,
		RecordType:        merged.Type,
		MergeLogID:        entry.ID,
		MasterRecordID:    entry.MasterRecordID,
		DuplicateRecordID: entry.DuplicateRecordID,
		RuleID:            entry.RuleID,
		Reason:            entry.MergeReason,
		Actor:             entry.MergedBy,
		Data:              data,
		SchemaVersion:     SchemaVersion,
		Timestamp:         entry.MergedAt,
	}
	if quality != nil {
		score := quality.Score
		event.QualityScore = &score
	}

	return e.publish(ctx, event)
}

// EmitRecordUnmerged announces a committed unmerge
func (e *Emitter) EmitRecordUnmerged(ctx context.Context, entry *models.MergeLog) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRecordUnmerged")
	defer span.End()

	event := &kafka.RecordEvent{
		EventType:         EventRecordUnmerged,
		TenantID:          entry.TenantID,
		RecordID:          entry.MasterRecordID,
		MergeLogID:        entry.ID,
		MasterRecordID:    entry.MasterRecordID,
		DuplicateRecordID: entry.DuplicateRecordID,
		Reason:            entry.UnmergeReason,
		Actor:             appctx.GetActor(ctx),
		SchemaVersion:     SchemaVersion,
	}
	if entry.UnmergedBy != nil {
		event.Actor = *entry.UnmergedBy
	}
	if entry.UnmergedAt != nil {
		event.Timestamp = *entry.UnmergedAt
	}

	return e.publish(ctx, event)
}

func (e *Emitter) publish(ctx context.Context, event *kafka.RecordEvent) error {
	err := e.publisher.PublishRecordEvent(ctx, event)
	metrics.EventsPublishedTotal.WithLabelValues(event.EventType, metrics.StatusFor(err)).Inc()
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type":   event.EventType,
			"merge_log_id": event.MergeLogID,
		}).Errorf("Failed to emit %s event", event.EventType)
		return err
	}
	return nil
}
