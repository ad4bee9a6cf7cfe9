package models

import (
	"time"

	"github.com/google/uuid"
)

// Variant tags one of the three alternate encodings of a face photo.
// A variant is only ever compared against stored vectors of the same
// variant.
type Variant string

const (
	VariantPrimary    Variant = "primary"
	VariantNormalized Variant = "normalized"
	VariantGrayscale  Variant = "grayscale"
)

// VariantOrder lists variants in fixed precedence order, used to break
// ties when two variants report the same best distance.
var VariantOrder = []Variant{VariantPrimary, VariantNormalized, VariantGrayscale}

// ValidVariant reports whether v is one of the three known variants.
func ValidVariant(v Variant) bool {
	for _, known := range VariantOrder {
		if v == known {
			return true
		}
	}
	return false
}

type Person struct {
	ID        uuid.UUID `json:"id" db:"id"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name" db:"last_name"`
	// Values holds the person's dynamic attribute values keyed by
	// attribute definition ID. A missing key means the attribute has not
	// been filled yet; that is not the same as an empty string.
	Values    map[uuid.UUID]any `json:"values" db:"values"`
	PhotoKey  string            `json:"photo_key,omitempty" db:"photo_key"`
	Active    bool              `json:"is_active" db:"is_active"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt time.Time         `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time        `json:"deleted_at,omitempty" db:"deleted_at"`
}

func (p *Person) FullName() string {
	if p.FirstName == "" {
		return p.LastName
	}
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// FaceRepresentation is one stored embedding for a person. Representations
// are immutable once stored; a photo re-upload replaces the person's whole
// set, it never patches individual vectors.
type FaceRepresentation struct {
	ID         uuid.UUID `json:"id" db:"id"`
	PersonID   uuid.UUID `json:"person_id" db:"person_id"`
	Variant    Variant   `json:"variant" db:"variant"`
	Vector     []float32 `json:"-" db:"embedding"`
	Generation int       `json:"generation" db:"generation"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
