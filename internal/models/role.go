package models

import (
	"time"

	"github.com/google/uuid"
)

// Permission keys understood by route guards. A flag not present in a
// role's Permissions map counts as false.
const (
	PermPersonsRead     = "persons.read"
	PermPersonsCreate   = "persons.create"
	PermPersonsUpdate   = "persons.update"
	PermPersonsDelete   = "persons.delete"
	PermFieldsRead      = "fields.read"
	PermFieldsCreate    = "fields.create"
	PermFieldsUpdate    = "fields.update"
	PermFieldsDelete    = "fields.delete"
	PermUsersRead       = "users.read"
	PermUsersCreate     = "users.create"
	PermRolesRead       = "roles.read"
	PermRolesCreate     = "roles.create"
	PermRecognitionFace = "recognition.face"
	PermRecognitionText = "recognition.text"
	PermAuditRead       = "audit.read"
	PermSettingsRead    = "settings.read"
	PermSettingsUpdate  = "settings.update"
)

// ScanMode is one of the recognition modes a role may enable at the kiosk.
type ScanMode string

const (
	ScanModeFace ScanMode = "face"
	ScanModeText ScanMode = "text"
)

// ScannerConfig is a role's kiosk configuration.
type ScannerConfig struct {
	EnabledModes     []ScanMode  `json:"enabled_modes"`
	DefaultMode      ScanMode    `json:"default_mode"`
	TextSearchFields []uuid.UUID `json:"text_search_fields,omitempty"`
	// MinConfidence is the display threshold in percent; matches below it
	// are still matches but the kiosk hides the number.
	MinConfidence       float64     `json:"min_confidence"`
	ResultDisplayFields []uuid.UUID `json:"result_display_fields,omitempty"`
}

type Role struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description,omitempty" db:"description"`
	Permissions map[string]bool `json:"permissions" db:"permissions"`
	// VisibleAttributes and EditableAttributes are the role's explicit
	// attribute-level grants. An absent list contributes nothing to the
	// union; it does not mean "everything".
	VisibleAttributes  []uuid.UUID    `json:"visible_attributes,omitempty" db:"visible_attributes"`
	EditableAttributes []uuid.UUID    `json:"editable_attributes,omitempty" db:"editable_attributes"`
	Scanner            *ScannerConfig `json:"scanner_config,omitempty" db:"scanner_config"`
	CreatedAt          time.Time      `json:"created_at" db:"created_at"`
}

// FieldOverride is a per-user explicit visible/editable attribute pair.
// Its presence (even with both lists empty) replaces role-level field
// permissions entirely.
type FieldOverride struct {
	Visible  []uuid.UUID `json:"visible"`
	Editable []uuid.UUID `json:"editable"`
}

type User struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Email      string    `json:"email" db:"email"`
	FullName   string    `json:"full_name" db:"full_name"`
	Active     bool      `json:"is_active" db:"is_active"`
	Superadmin bool      `json:"is_superadmin" db:"is_superadmin"`
	// Override, when non-nil, supersedes role-derived field permissions.
	Override  *FieldOverride `json:"field_override,omitempty" db:"field_override"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// Requester is a user resolved together with their roles, as seen by the
// permission resolver and the scan orchestrator.
type Requester struct {
	ID         uuid.UUID
	Superadmin bool
	Roles      []Role
	Override   *FieldOverride
}

// HasPermission reports whether any of the requester's roles grants the
// permission flag. Superadmins hold every flag.
func (r *Requester) HasPermission(key string) bool {
	if r.Superadmin {
		return true
	}
	for _, role := range r.Roles {
		if role.Permissions[key] {
			return true
		}
	}
	return false
}
