// Package models defines the domain types for notegraph.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Importance bounds. DefaultImportance is used whenever a score is unset
// or cannot be assessed.
const (
	MinImportance     = 1
	MaxImportance     = 10
	DefaultImportance = 5
)

// GeneralCategory is the reserved label for notes no rule or model could place.
const GeneralCategory = "General"

// Note is a user-owned unit of text plus its derived analysis fields.
type Note struct {
	ID            int64      `json:"id"`
	UserID        int64      `json:"user_id"`
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	Category      string     `json:"category,omitempty"`
	Importance    int        `json:"importance"`
	Tags          Tags       `json:"tags"`
	Summary       string     `json:"summary,omitempty"`
	AIProcessed   bool       `json:"ai_processed"`
	AIProcessedAt *time.Time `json:"ai_processed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ClampImportance forces v into [MinImportance, MaxImportance].
func ClampImportance(v int) int {
	if v < MinImportance {
		return MinImportance
	}
	if v > MaxImportance {
		return MaxImportance
	}
	return v
}

// Tags is an ordered tag list persisted as JSON text.
// NULL, empty, and malformed column values all read back as an empty list.
type Tags []string

// Value implements driver.Valuer.
func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(t))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (t *Tags) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*t = Tags{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("models: cannot scan %T into Tags", src)
	}
	var out []string
	if len(raw) == 0 || json.Unmarshal(raw, &out) != nil || out == nil {
		*t = Tags{}
		return nil
	}
	*t = out
	return nil
}

// MarshalJSON keeps nil tags as [] in API payloads.
func (t Tags) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(t))
}
