package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/idgate/internal/models"
)

// CreateAttributeRequest defines a new directory attribute.
type CreateAttributeRequest struct {
	Name          string                 `json:"name" binding:"required"`
	Label         string                 `json:"label" binding:"required"`
	Kind          models.AttributeKind   `json:"kind" binding:"required"`
	Order         int                    `json:"order"`
	Required      bool                   `json:"required"`
	Searchable    bool                   `json:"searchable"`
	Configuration json.RawMessage        `json:"configuration,omitempty"`
	Rule          *models.ComplianceRule `json:"rule,omitempty"`
}

// UpdateAttributeRequest patches an attribute definition. Nil fields are
// left unchanged; Rule set to an empty check removes the rule.
type UpdateAttributeRequest struct {
	Label         *string                `json:"label,omitempty"`
	Order         *int                   `json:"order,omitempty"`
	Required      *bool                  `json:"required,omitempty"`
	Searchable    *bool                  `json:"searchable,omitempty"`
	Configuration json.RawMessage        `json:"configuration,omitempty"`
	Rule          *models.ComplianceRule `json:"rule,omitempty"`
	ClearRule     bool                   `json:"clear_rule,omitempty"`
}

// AttributeResponse mirrors a stored attribute definition.
type AttributeResponse struct {
	ID            uuid.UUID              `json:"id"`
	Name          string                 `json:"name"`
	Label         string                 `json:"label"`
	Kind          models.AttributeKind   `json:"kind"`
	Order         int                    `json:"order"`
	Required      bool                   `json:"required"`
	Searchable    bool                   `json:"searchable"`
	System        bool                   `json:"system"`
	Configuration json.RawMessage        `json:"configuration,omitempty"`
	Rule          *models.ComplianceRule `json:"rule,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

func AttributeFromModel(d *models.AttributeDefinition) AttributeResponse {
	return AttributeResponse{
		ID:            d.ID,
		Name:          d.Name,
		Label:         d.Label,
		Kind:          d.Kind,
		Order:         d.Order,
		Required:      d.Required,
		Searchable:    d.Searchable,
		System:        d.System,
		Configuration: d.Configuration,
		Rule:          d.Rule,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}
