package models

import "time"

// MergeLogStatus is the state of a merge log entry
type MergeLogStatus string

const (
	MergeLogStatusActive   MergeLogStatus = "ACTIVE"
	MergeLogStatusReversed MergeLogStatus = "REVERSED"
)

// MergeLog is the append-only audit entry for one merge
type MergeLog struct {
	ID                string         `json:"id" db:"id"`
	TenantID          string         `json:"tenant_id" db:"tenant_id"`
	MasterRecordID    string         `json:"master_record_id" db:"master_record_id"`
	DuplicateRecordID string         `json:"duplicate_record_id" db:"duplicate_record_id"`
	RuleID            *string        `json:"rule_id,omitempty" db:"rule_id"`
	MasterSnapshot    RecordSnapshot `json:"master_snapshot" db:"master_snapshot"`
	DuplicateSnapshot RecordSnapshot `json:"duplicate_snapshot" db:"duplicate_snapshot"`
	MergeReason       *string        `json:"merge_reason,omitempty" db:"merge_reason"`
	MergedBy          string         `json:"merged_by" db:"merged_by"`
	MergedAt          time.Time      `json:"merged_at" db:"merged_at"`
	Status            MergeLogStatus `json:"status" db:"status"`
	UnmergeReason     *string        `json:"unmerge_reason,omitempty" db:"unmerge_reason"`
	UnmergedBy        *string        `json:"unmerged_by,omitempty" db:"unmerged_by"`
	UnmergedAt        *time.Time     `json:"unmerged_at,omitempty" db:"unmerged_at"`
}

// IsActive reports whether the merge is still in effect
func (l *MergeLog) IsActive() bool {
	return l.Status == MergeLogStatusActive
}

// Involves reports whether the record takes part in the merge on either side
func (l *MergeLog) Involves(recordID string) bool {
	return l.MasterRecordID == recordID || l.DuplicateRecordID == recordID
}

// Counterpart returns the other record of the merge
func (l *MergeLog) Counterpart(recordID string) string {
	if l.MasterRecordID == recordID {
		return l.DuplicateRecordID
	}
	return l.MasterRecordID
}

// Clone returns a deep copy, including both snapshots.
func (l *MergeLog) Clone() *MergeLog {
	if l == nil {
		return nil
	}
	out := *l
	out.MasterSnapshot = l.MasterSnapshot.Clone()
	out.DuplicateSnapshot = l.DuplicateSnapshot.Clone()
	return &out
}

// MergeResult is returned by a successful merge
type MergeResult struct {
	MergeLogID   string        `json:"merge_log_id"`
	MergedRecord *MasterRecord `json:"merged_record"`
	Quality      *QualityScore `json:"quality,omitempty"`
}

// UnmergeResult is returned by a successful unmerge
type UnmergeResult struct {
	MasterRecordID    string `json:"master_record_id"`
	DuplicateRecordID string `json:"duplicate_record_id"`
}
