// Package survivorship decides which field values survive when two records are merged.
package survivorship

import (
	"context"
	"sort"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Candidate is one side's value for a field
type Candidate struct {
	Value     any
	Present   bool
	UpdatedAt time.Time
}

// CandidateFrom reads a field of a record as a Candidate
func CandidateFrom(record *models.MasterRecord, field string) Candidate {
	if record == nil {
		return Candidate{}
	}
	value, ok := record.Fields[field]
	return Candidate{Value: value, Present: ok, UpdatedAt: record.UpdatedAt}
}

// Engine resolves fields using survivorship strategies
type Engine struct {
	custom CustomResolver
	logger ectologger.Logger
}

type Option func(*Engine)

// WithCustomResolver replaces the resolver used for CUSTOM fields
func WithCustomResolver(resolver CustomResolver) Option {
	return func(e *Engine) {
		e.custom = resolver
	}
}

func NewEngine(logger ectologger.Logger, opts ...Option) *Engine {
	e := &Engine{
		custom: NewExpressionResolver(nil),
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ResolveField returns the surviving value for one field and whether it is present.
// NEWER and OLDER ties go to the master. CUSTOM falls back to the master whenever
// the resolver fails or asks for the default; so does any unknown strategy.
func (e *Engine) ResolveField(ctx context.Context, field string, master, duplicate Candidate, strategy models.SurvivorshipStrategy, customLogic *string) (any, bool) {
	switch strategy {
	case models.StrategyMaster:
		return master.Value, master.Present
	case models.StrategyDuplicate:
		return duplicate.Value, duplicate.Present
	case models.StrategyNewer:
		if duplicate.UpdatedAt.After(master.UpdatedAt) {
			return duplicate.Value, duplicate.Present
		}
		return master.Value, master.Present
	case models.StrategyOlder:
		if duplicate.UpdatedAt.Before(master.UpdatedAt) {
			return duplicate.Value, duplicate.Present
		}
		return master.Value, master.Present
	case models.StrategyCustom:
		return e.resolveCustom(ctx, field, master, duplicate, customLogic)
	default:
		e.logger.WithContext(ctx).WithFields(map[string]any{
			"field":    field,
			"strategy": strategy,
		}).Warn("Unknown survivorship strategy, keeping master value")
		return master.Value, master.Present
	}
}

func (e *Engine) resolveCustom(ctx context.Context, field string, master, duplicate Candidate, customLogic *string) (any, bool) {
	if customLogic == nil || *customLogic == "" || e.custom == nil {
		return master.Value, master.Present
	}

	var masterValue, duplicateValue any
	if master.Present {
		masterValue = master.Value
	}
	if duplicate.Present {
		duplicateValue = duplicate.Value
	}

	value, useDefault, err := e.custom.Resolve(ctx, *customLogic, field, masterValue, duplicateValue)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("field", field).Warn("Custom survivorship logic failed, keeping master value")
		return master.Value, master.Present
	}
	if useDefault {
		return master.Value, master.Present
	}
	return value, true
}

// ResolveRecord builds the merged field map. Every field present in either record
// is resolved with the rule's strategy for it; unmapped fields and a nil rule use MASTER.
func (e *Engine) ResolveRecord(ctx context.Context, master, duplicate *models.MasterRecord, rule *models.SurvivorshipRule) models.Fields {
	ctx, span := tracing.StartSpan(ctx, "survivorship.Engine.ResolveRecord")
	defer span.End()

	var customLogic *string
	if rule != nil {
		customLogic = rule.CustomLogic
	}

	resolved := models.Fields{}
	for _, field := range unionFields(master, duplicate) {
		value, present := e.ResolveField(
			ctx,
			field,
			CandidateFrom(master, field),
			CandidateFrom(duplicate, field),
			rule.StrategyFor(field),
			customLogic,
		)
		if present {
			resolved[field] = value
		}
	}

	return resolved.Clone()
}

func unionFields(records ...*models.MasterRecord) []string {
	seen := map[string]string{}
	for _, r := range ectolinq.Filter(records, func(r *models.MasterRecord) bool { return r != nil }) {
		for field := range r.Fields {
			seen[field] = field
		}
	}
	fields := ectolinq.Values(seen)
	sort.Strings(fields)
	return fields
}
