package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/idgate/internal/models"
	"github.com/your-org/idgate/internal/storage"
	"github.com/your-org/idgate/pkg/dto"
)

type AttributeHandler struct {
	db *storage.PostgresStore
}

func NewAttributeHandler(db *storage.PostgresStore) *AttributeHandler {
	return &AttributeHandler{db: db}
}

func (h *AttributeHandler) Create(c *gin.Context) {
	var req dto.CreateAttributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !models.ValidAttributeKind(req.Kind) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown attribute kind: " + string(req.Kind)})
		return
	}
	if err := validateRule(req.Rule, req.Kind); err != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}

	def := &models.AttributeDefinition{
		Name:          strings.TrimSpace(req.Name),
		Label:         req.Label,
		Kind:          req.Kind,
		Order:         req.Order,
		Required:      req.Required,
		Searchable:    req.Searchable,
		Configuration: req.Configuration,
		Rule:          req.Rule,
	}
	if def.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name must not be blank"})
		return
	}

	if err := h.db.CreateAttributeDefinition(c.Request.Context(), def); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, dto.AttributeFromModel(def))
}

func (h *AttributeHandler) List(c *gin.Context) {
	defs, err := h.db.GetAttributeDefinitions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.AttributeResponse, 0, len(defs))
	for i := range defs {
		resp = append(resp, dto.AttributeFromModel(&defs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"attributes": resp, "total": len(resp)})
}

func (h *AttributeHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attribute id"})
		return
	}

	def, err := h.db.GetAttributeDefinition(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if def == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "attribute not found"})
		return
	}
	c.JSON(http.StatusOK, dto.AttributeFromModel(def))
}

// Update patches an attribute definition. Name and kind are immutable:
// values already stored under the attribute were validated against the
// kind at write time.
func (h *AttributeHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attribute id"})
		return
	}

	var req dto.UpdateAttributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	def, err := h.db.GetAttributeDefinition(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if def == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "attribute not found"})
		return
	}

	if req.Label != nil {
		def.Label = *req.Label
	}
	if req.Order != nil {
		def.Order = *req.Order
	}
	if req.Required != nil {
		def.Required = *req.Required
	}
	if req.Searchable != nil {
		def.Searchable = *req.Searchable
	}
	if req.Configuration != nil {
		def.Configuration = req.Configuration
	}
	if req.ClearRule {
		def.Rule = nil
	} else if req.Rule != nil {
		if msg := validateRule(req.Rule, def.Kind); msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}
		def.Rule = req.Rule
	}

	if err := h.db.UpdateAttributeDefinition(c.Request.Context(), def); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.AttributeFromModel(def))
}

func (h *AttributeHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attribute id"})
		return
	}

	if err := h.db.DeleteAttributeDefinition(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// validateRule returns an error message, or "" when the rule may be
// attached to an attribute of the given kind.
func validateRule(rule *models.ComplianceRule, kind models.AttributeKind) string {
	if rule == nil {
		return ""
	}
	if !models.ValidCheckKind(rule.Check) {
		return "unknown check type: " + string(rule.Check)
	}
	if !models.CheckCompatible(rule.Check, kind) {
		return "check " + string(rule.Check) + " cannot be attached to a " + string(kind) + " attribute"
	}
	if rule.WarningDays < 0 {
		return "warning_days must not be negative"
	}
	return ""
}
