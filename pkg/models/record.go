package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RecordStatus is the lifecycle state of a master record
type RecordStatus string

const (
	RecordStatusActive   RecordStatus = "ACTIVE"
	RecordStatusInactive RecordStatus = "INACTIVE"
	RecordStatusMerged   RecordStatus = "MERGED"
	RecordStatusDeleted  RecordStatus = "DELETED"
)

// Well-known party field keys
const (
	FieldName               = "name"
	FieldLegalName          = "legal_name"
	FieldRegistrationNumber = "registration_number"
	FieldTaxID              = "tax_id"
	FieldEmail              = "email"
	FieldPhone              = "phone"
	FieldAddress            = "address"
	FieldCountry            = "country"
)

// Fields is the free-form attribute map of a master record
type Fields map[string]any

// Clone returns a deep copy so callers never share nested maps or slices.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, inner := range t {
			m[k] = cloneValue(inner)
		}
		return m
	case Fields:
		return t.Clone()
	case []any:
		s := make([]any, len(t))
		for i, inner := range t {
			s[i] = cloneValue(inner)
		}
		return s
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

func (f *Fields) Scan(src any) error {
	if src == nil {
		*f = Fields{}
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		s, isString := src.(string)
		if !isString {
			return fmt.Errorf("Fields.Scan: expected []byte, got %T", src)
		}
		b = []byte(s)
	}
	out := Fields{}
	if err := json.Unmarshal(b, &out); err != nil {
		return err
	}
	*f = out
	return nil
}

func (f Fields) Value() (driver.Value, error) {
	if f == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(f)
}

// MasterRecord is a tenant's canonical party record
type MasterRecord struct {
	ID        string       `json:"id" db:"id"`
	TenantID  string       `json:"tenant_id" db:"tenant_id"`
	Type      string       `json:"type" db:"type"`
	Status    RecordStatus `json:"status" db:"status"`
	Fields    Fields       `json:"fields" db:"fields"`
	CreatedBy string       `json:"created_by" db:"created_by"`
	UpdatedBy string       `json:"updated_by" db:"updated_by"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}

// IsActive reports whether the record can take part in matching and merging
func (r *MasterRecord) IsActive() bool {
	return r.Status == RecordStatusActive
}

// Clone returns a deep copy of the record.
func (r *MasterRecord) Clone() *MasterRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Fields = r.Fields.Clone()
	return &out
}

// Snapshot captures the record's current state as an immutable value.
func (r *MasterRecord) Snapshot() RecordSnapshot {
	return RecordSnapshot{
		ID:        r.ID,
		Type:      r.Type,
		Status:    r.Status,
		Fields:    r.Fields.Clone(),
		UpdatedBy: r.UpdatedBy,
		UpdatedAt: r.UpdatedAt,
	}
}
