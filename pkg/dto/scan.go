package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/idgate/internal/compliance"
	"github.com/your-org/idgate/internal/models"
)

// RepresentationInput is one face representation submitted by a kiosk.
// Either Vector (a precomputed embedding) or Crop (a preprocessed
// 3x112x112 CHW face crop, embedded server-side when a model is
// configured) must be set.
type RepresentationInput struct {
	Variant models.Variant `json:"variant" binding:"required"`
	Vector  []float32      `json:"vector,omitempty"`
	Crop    []float32      `json:"crop,omitempty"`
}

// ScanRequest is the face-scan payload.
type ScanRequest struct {
	Representations []RepresentationInput `json:"representations" binding:"required"`
}

// TextScanRequest is the text-search fallback payload.
type TextScanRequest struct {
	Query string `json:"query" binding:"required"`
}

// PersonSummary is the identity section of a scan response.
type PersonSummary struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	PhotoURL  string    `json:"photo_url,omitempty"`
}

// ScanResponse is the full response to a kiosk scan.
type ScanResponse struct {
	Matched        bool               `json:"matched"`
	Result         models.ScanResult  `json:"result"`
	Person         *PersonSummary     `json:"person,omitempty"`
	Confidence     float64            `json:"confidence"`
	BestDistance   float64            `json:"best_distance"`
	Variant        models.Variant     `json:"variant,omitempty"`
	VariantsTested []models.Variant   `json:"variants_tested"`
	Reason         string             `json:"reason,omitempty"`
	Compliance     *compliance.Result `json:"compliance,omitempty"`
	Fields         []FieldValue       `json:"fields,omitempty"`
}

// FieldValue is one attribute value visible to the requester.
type FieldValue struct {
	AttributeID uuid.UUID `json:"attribute_id"`
	Label       string    `json:"label"`
	Value       any       `json:"value"`
	Editable    bool      `json:"editable"`
}

// ScanEventDTO is the audit record published to the scan stream and
// broadcast over WebSocket.
type ScanEventDTO struct {
	ID          uuid.UUID         `json:"id"`
	PersonID    *uuid.UUID        `json:"person_id,omitempty"`
	RequesterID uuid.UUID         `json:"requester_id"`
	Method      models.ScanMode   `json:"method"`
	Variant     models.Variant    `json:"variant,omitempty"`
	Confidence  float64           `json:"confidence"`
	Distance    float64           `json:"distance"`
	Result      models.ScanResult `json:"result"`
	Reasons     []string          `json:"reasons,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// WSEvent is the envelope pushed to dashboard WebSocket clients.
type WSEvent struct {
	Type string       `json:"type"`
	Data ScanEventDTO `json:"data"`
}

// ScanSettings is the runtime-tunable matching configuration.
type ScanSettings struct {
	Threshold           float64 `json:"threshold"`
	ThresholdConfidence float64 `json:"threshold_confidence"`
}

// ExpiryNotification is published by the compliance sweeper for each
// person whose attributes are expiring or expired.
type ExpiryNotification struct {
	PersonID  uuid.UUID          `json:"person_id"`
	FullName  string             `json:"full_name"`
	Status    compliance.Status  `json:"status"`
	Issues    []compliance.Issue `json:"issues"`
	CheckedAt time.Time          `json:"checked_at"`
}
