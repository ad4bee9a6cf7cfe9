package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/idgate/internal/models"
)

// CreateRoleRequest defines an access role.
type CreateRoleRequest struct {
	Name               string                `json:"name" binding:"required"`
	Description        string                `json:"description"`
	Permissions        map[string]bool       `json:"permissions"`
	VisibleAttributes  []uuid.UUID           `json:"visible_attributes"`
	EditableAttributes []uuid.UUID           `json:"editable_attributes"`
	Scanner            *models.ScannerConfig `json:"scanner,omitempty"`
}

// RoleResponse mirrors a stored role.
type RoleResponse struct {
	ID                 uuid.UUID             `json:"id"`
	Name               string                `json:"name"`
	Description        string                `json:"description"`
	Permissions        map[string]bool       `json:"permissions"`
	VisibleAttributes  []uuid.UUID           `json:"visible_attributes"`
	EditableAttributes []uuid.UUID           `json:"editable_attributes"`
	Scanner            *models.ScannerConfig `json:"scanner,omitempty"`
	CreatedAt          time.Time             `json:"created_at"`
}

func RoleFromModel(r *models.Role) RoleResponse {
	return RoleResponse{
		ID:                 r.ID,
		Name:               r.Name,
		Description:        r.Description,
		Permissions:        r.Permissions,
		VisibleAttributes:  r.VisibleAttributes,
		EditableAttributes: r.EditableAttributes,
		Scanner:            r.Scanner,
		CreatedAt:          r.CreatedAt,
	}
}

// CreateUserRequest provisions an operator account.
type CreateUserRequest struct {
	Email      string                `json:"email" binding:"required"`
	FullName   string                `json:"full_name" binding:"required"`
	Superadmin bool                  `json:"superadmin"`
	RoleIDs    []uuid.UUID           `json:"role_ids"`
	Override   *models.FieldOverride `json:"override,omitempty"`
}

// UserResponse mirrors a stored user.
type UserResponse struct {
	ID         uuid.UUID             `json:"id"`
	Email      string                `json:"email"`
	FullName   string                `json:"full_name"`
	Superadmin bool                  `json:"superadmin"`
	Active     bool                  `json:"active"`
	RoleIDs    []uuid.UUID           `json:"role_ids"`
	Override   *models.FieldOverride `json:"override,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
}

func UserFromModel(u *models.User, roleIDs []uuid.UUID) UserResponse {
	return UserResponse{
		ID:         u.ID,
		Email:      u.Email,
		FullName:   u.FullName,
		Superadmin: u.Superadmin,
		Active:     u.Active,
		RoleIDs:    roleIDs,
		Override:   u.Override,
		CreatedAt:  u.CreatedAt,
	}
}

// EffectivePermissionsResponse is the resolved attribute access for a user.
type EffectivePermissionsResponse struct {
	UserID       uuid.UUID   `json:"user_id"`
	Superadmin   bool        `json:"superadmin"`
	VisibleIDs   []uuid.UUID `json:"visible_attribute_ids"`
	EditableIDs  []uuid.UUID `json:"editable_attribute_ids"`
	FromOverride bool        `json:"from_override"`
}
