package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/idgate/internal/models"
	"github.com/your-org/idgate/internal/storage"
	"github.com/your-org/idgate/pkg/dto"
)

type RoleHandler struct {
	db *storage.PostgresStore
}

func NewRoleHandler(db *storage.PostgresStore) *RoleHandler {
	return &RoleHandler{db: db}
}

func (h *RoleHandler) Create(c *gin.Context) {
	var req dto.CreateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Scanner != nil {
		for _, mode := range req.Scanner.EnabledModes {
			if mode != models.ScanModeFace && mode != models.ScanModeText {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown scan mode: " + string(mode)})
				return
			}
		}
	}

	role := &models.Role{
		Name:               req.Name,
		Description:        req.Description,
		Permissions:        req.Permissions,
		VisibleAttributes:  req.VisibleAttributes,
		EditableAttributes: req.EditableAttributes,
		Scanner:            req.Scanner,
	}
	if role.Permissions == nil {
		role.Permissions = map[string]bool{}
	}

	if err := h.db.CreateRole(c.Request.Context(), role); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, dto.RoleFromModel(role))
}

func (h *RoleHandler) List(c *gin.Context) {
	roles, err := h.db.ListRoles(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.RoleResponse, 0, len(roles))
	for i := range roles {
		resp = append(resp, dto.RoleFromModel(&roles[i]))
	}
	c.JSON(http.StatusOK, gin.H{"roles": resp, "total": len(resp)})
}

func (h *RoleHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role id"})
		return
	}

	role, err := h.db.GetRole(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if role == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "role not found"})
		return
	}
	c.JSON(http.StatusOK, dto.RoleFromModel(role))
}
