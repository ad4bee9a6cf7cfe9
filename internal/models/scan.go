package models

import (
	"time"

	"github.com/google/uuid"
)

// ScanResult classifies the outcome of one kiosk scan.
type ScanResult string

const (
	ScanResultAllowed ScanResult = "allowed"
	ScanResultDenied  ScanResult = "denied"
	ScanResultNoMatch ScanResult = "no_match"
)

// ScanEvent is the audit record of one scan/search request. Events are
// published to the queue by the API and persisted by the event consumer.
type ScanEvent struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	PersonID    *uuid.UUID `json:"person_id,omitempty" db:"person_id"`
	RequesterID uuid.UUID  `json:"requester_id" db:"requester_id"`
	Method      ScanMode   `json:"method" db:"method"`
	Variant     Variant    `json:"variant,omitempty" db:"variant"`
	Confidence  float64    `json:"confidence" db:"confidence"`
	Distance    float64    `json:"distance" db:"distance"`
	Result      ScanResult `json:"result" db:"result"`
	Reasons     []string   `json:"reasons,omitempty" db:"reasons"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}
