package matching

import (
	"context"
	"math"
	"sort"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repository"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// FinderConfig tunes duplicate search
type FinderConfig struct {
	// MaxCandidates caps the result after ranking. 0 means unlimited.
	MaxCandidates int
}

// Finder scans a tenant's active records for duplicates of a target record
type Finder struct {
	records repository.RecordReader
	scorer  *SimilarityScorer
	logger  ectologger.Logger
	config  FinderConfig
}

func NewFinder(records repository.RecordReader, scorer *SimilarityScorer, logger ectologger.Logger, config FinderConfig) *Finder {
	if scorer == nil {
		scorer = NewSimilarityScorer()
	}
	return &Finder{
		records: records,
		scorer:  scorer,
		logger:  logger,
		config:  config,
	}
}

// FindDuplicates returns active records scoring at least threshold against the
// target, best first with ties broken by id. The target and every record linked
// to it by an active merge are excluded.
func (f *Finder) FindDuplicates(ctx context.Context, tenantID, targetRecordID string, threshold float64) ([]models.DuplicateCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Finder.FindDuplicates")
	defer span.End()

	if math.IsNaN(threshold) || threshold < 0 || threshold > 100 {
		return nil, fernerrors.NewInvalidOperationError("duplicate search", "threshold %.2f must be between 0 and 100", threshold)
	}

	target, err := f.records.GetByID(ctx, tenantID, targetRecordID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	linked, err := f.linkedRecords(ctx, tenantID, targetRecordID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	excluded := append(linked, targetRecordID)

	active, err := f.records.ListActive(ctx, tenantID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	eligible := ectolinq.Filter(active, func(record *models.MasterRecord) bool {
		return record.IsActive() && !ectolinq.Contains(excluded, record.ID)
	})

	candidates := make([]models.DuplicateCandidate, 0)
	for _, record := range eligible {
		result := f.scorer.Compare(target, record)
		if result.Score < threshold {
			continue
		}
		candidates = append(candidates, models.DuplicateCandidate{
			CandidateID: record.ID,
			Score:       result.Score,
			FieldScores: result.FieldScores,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].CandidateID < candidates[j].CandidateID
	})

	if f.config.MaxCandidates > 0 && len(candidates) > f.config.MaxCandidates {
		candidates = candidates[:f.config.MaxCandidates]
	}

	metrics.DuplicateSearchesTotal.WithLabelValues(tenantID).Inc()
	metrics.RecordsScanned.Observe(float64(len(active)))
	metrics.DuplicateCandidatesFound.Observe(float64(len(candidates)))

	f.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":  tenantID,
		"record_id":  targetRecordID,
		"threshold":  threshold,
		"scanned":    len(active),
		"candidates": len(candidates),
	}).Debug("Duplicate search completed")

	return candidates, nil
}

// linkedRecords returns the ids joined to recordID by an active merge
func (f *Finder) linkedRecords(ctx context.Context, tenantID, recordID string) ([]string, error) {
	logs, err := f.records.ListMergeLogsForRecord(ctx, tenantID, recordID, 0)
	if err != nil {
		return nil, err
	}

	active := ectolinq.Filter(logs, func(log *models.MergeLog) bool {
		return log.IsActive()
	})
	return ectolinq.Map(active, func(log *models.MergeLog) string {
		return log.Counterpart(recordID)
	}), nil
}
