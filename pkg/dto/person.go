package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/idgate/internal/compliance"
	"github.com/your-org/idgate/internal/models"
)

// CreatePersonRequest creates a directory entry.
type CreatePersonRequest struct {
	FirstName string            `json:"first_name" binding:"required"`
	LastName  string            `json:"last_name" binding:"required"`
	Values    map[uuid.UUID]any `json:"values"`
}

// UpdateValuesRequest patches attribute values. A null value clears
// the attribute.
type UpdateValuesRequest struct {
	Values map[uuid.UUID]any `json:"values" binding:"required"`
}

// ReplaceRepresentationsRequest replaces a person's face representations
// atomically. All variants should be supplied together so the stored
// generation stays consistent.
type ReplaceRepresentationsRequest struct {
	Representations []RepresentationInput `json:"representations" binding:"required"`
}

// PersonResponse is a directory entry filtered to the requester's
// visible attributes.
type PersonResponse struct {
	ID         uuid.UUID          `json:"id"`
	FirstName  string             `json:"first_name"`
	LastName   string             `json:"last_name"`
	PhotoURL   string             `json:"photo_url,omitempty"`
	Active     bool               `json:"active"`
	Fields     []FieldValue       `json:"fields"`
	Compliance *compliance.Result `json:"compliance,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// PersonListResponse is a paginated directory listing.
type PersonListResponse struct {
	Persons []PersonResponse `json:"persons"`
	Total   int              `json:"total"`
	Page    int              `json:"page"`
	PerPage int              `json:"per_page"`
}

// PersonFromModel builds the identity section; fields and compliance
// are filled in by the handler after permission resolution.
func PersonFromModel(p *models.Person) PersonResponse {
	return PersonResponse{
		ID:        p.ID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Active:    p.Active,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
