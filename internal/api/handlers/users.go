package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/idgate/internal/models"
	"github.com/your-org/idgate/internal/permissions"
	"github.com/your-org/idgate/internal/storage"
	"github.com/your-org/idgate/pkg/dto"
)

type UserHandler struct {
	db *storage.PostgresStore
}

func NewUserHandler(db *storage.PostgresStore) *UserHandler {
	return &UserHandler{db: db}
}

func (h *UserHandler) Create(c *gin.Context) {
	var req dto.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	for _, roleID := range req.RoleIDs {
		role, err := h.db.GetRole(c.Request.Context(), roleID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if role == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role: " + roleID.String()})
			return
		}
	}

	user := &models.User{
		Email:      req.Email,
		FullName:   req.FullName,
		Superadmin: req.Superadmin,
		Override:   req.Override,
	}
	if err := h.db.CreateUser(c.Request.Context(), user, req.RoleIDs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, dto.UserFromModel(user, req.RoleIDs))
}

func (h *UserHandler) List(c *gin.Context) {
	users, err := h.db.ListUsers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		roleIDs, err := h.db.GetUserRoleIDs(c.Request.Context(), users[i].ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resp = append(resp, dto.UserFromModel(&users[i], roleIDs))
	}
	c.JSON(http.StatusOK, gin.H{"users": resp, "total": len(resp)})
}

func (h *UserHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	user, err := h.db.GetUser(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	roleIDs, err := h.db.GetUserRoleIDs(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.UserFromModel(user, roleIDs))
}

// EffectivePermissions resolves the user's attribute-level access: the
// override when set, the role union otherwise.
func (h *UserHandler) EffectivePermissions(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	requester, err := h.db.GetRequester(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if requester == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user unknown or inactive"})
		return
	}

	defs, err := h.db.GetAttributeDefinitions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resolved := permissions.Resolve(*requester, defs)
	c.JSON(http.StatusOK, dto.EffectivePermissionsResponse{
		UserID:       id,
		Superadmin:   requester.Superadmin,
		VisibleIDs:   resolved.Visible.IDs(defs),
		EditableIDs:  resolved.Editable.IDs(defs),
		FromOverride: requester.Override != nil && !requester.Superadmin,
	})
}
