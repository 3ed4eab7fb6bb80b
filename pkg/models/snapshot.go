package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RecordSnapshot is the full pre-merge state of a record, owned by a merge log
type RecordSnapshot struct {
	ID        string       `json:"id"`
	Type      string       `json:"type"`
	Status    RecordStatus `json:"status"`
	Fields    Fields       `json:"fields"`
	UpdatedBy string       `json:"updated_by"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Clone returns a deep copy of the snapshot.
func (s RecordSnapshot) Clone() RecordSnapshot {
	s.Fields = s.Fields.Clone()
	return s
}

func (s *RecordSnapshot) Scan(src any) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("RecordSnapshot.Scan: expected []byte, got %T", src)
	}
	return json.Unmarshal(b, s)
}

func (s RecordSnapshot) Value() (driver.Value, error) {
	return json.Marshal(s)
}
