package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SurvivorshipStrategy decides which value of a field survives a merge
type SurvivorshipStrategy string

const (
	// StrategyMaster keeps the master's value
	StrategyMaster SurvivorshipStrategy = "MASTER"
	// StrategyDuplicate takes the duplicate's value
	StrategyDuplicate SurvivorshipStrategy = "DUPLICATE"
	// StrategyNewer takes the value of the most recently updated record
	StrategyNewer SurvivorshipStrategy = "NEWER"
	// StrategyOlder takes the value of the least recently updated record
	StrategyOlder SurvivorshipStrategy = "OLDER"
	// StrategyCustom evaluates the rule's custom logic
	StrategyCustom SurvivorshipStrategy = "CUSTOM"
)

// FieldStrategies maps field names to their survivorship strategy
type FieldStrategies map[string]SurvivorshipStrategy

func (f *FieldStrategies) Scan(src any) error {
	if src == nil {
		*f = FieldStrategies{}
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("FieldStrategies.Scan: expected []byte, got %T", src)
	}
	out := FieldStrategies{}
	if err := json.Unmarshal(b, &out); err != nil {
		return err
	}
	*f = out
	return nil
}

func (f FieldStrategies) Value() (driver.Value, error) {
	if f == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(f)
}

// SurvivorshipRule is a tenant-defined field resolution policy
type SurvivorshipRule struct {
	ID              string          `json:"id" db:"id"`
	TenantID        string          `json:"tenant_id" db:"tenant_id" validate:"required"`
	Name            string          `json:"name" db:"name" validate:"required,max=255"`
	Priority        int             `json:"priority" db:"priority" validate:"gte=0"`
	FieldStrategies FieldStrategies `json:"field_strategies" db:"field_strategies" validate:"dive,keys,required,endkeys,oneof=MASTER DUPLICATE NEWER OLDER CUSTOM"`
	CustomLogic     *string         `json:"custom_logic,omitempty" db:"custom_logic"`
	IsActive        bool            `json:"is_active" db:"is_active"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// StrategyFor returns the strategy for a field, MASTER when unmapped
func (r *SurvivorshipRule) StrategyFor(field string) SurvivorshipStrategy {
	if r == nil {
		return StrategyMaster
	}
	if s, ok := r.FieldStrategies[field]; ok {
		return s
	}
	return StrategyMaster
}

// UsesCustom reports whether any field is resolved with custom logic
func (r *SurvivorshipRule) UsesCustom() bool {
	for _, s := range r.FieldStrategies {
		if s == StrategyCustom {
			return true
		}
	}
	return false
}
