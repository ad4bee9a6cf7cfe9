package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AttributeKind is the declared type of a dynamic attribute.
type AttributeKind string

const (
	KindText         AttributeKind = "text"
	KindLongText     AttributeKind = "long_text"
	KindEmail        AttributeKind = "email"
	KindNumber       AttributeKind = "number"
	KindDate         AttributeKind = "date"
	KindDateExpiry   AttributeKind = "date_expiry"
	KindBoolean      AttributeKind = "boolean"
	KindSingleChoice AttributeKind = "single_choice"
	KindPhoto        AttributeKind = "photo"
	KindDocument     AttributeKind = "document"
)

// CheckKind identifies a compliance check attached to an attribute.
type CheckKind string

const (
	CheckDateNotExpired    CheckKind = "date_not_expired"
	CheckDateBefore        CheckKind = "date_before"
	CheckDateAfter         CheckKind = "date_after"
	CheckBooleanIsTrue     CheckKind = "boolean_is_true"
	CheckBooleanIsFalse    CheckKind = "boolean_is_false"
	CheckValueEquals       CheckKind = "value_equals"
	CheckValueNotEquals    CheckKind = "value_not_equals"
	CheckNumberGreaterThan CheckKind = "number_greater_than"
	CheckNumberLessThan    CheckKind = "number_less_than"
	CheckNotEmpty          CheckKind = "not_empty"
)

// Anchor selects what a date_before/date_after rule compares against.
type Anchor string

const (
	AnchorToday     Anchor = "today"
	AnchorFixedDate Anchor = "fixed_date"
)

// ComplianceRule is the zero-or-one rule carried by an attribute definition.
// CompareValue holds the comparison operand serialized as a string: an ISO
// date for date checks, a decimal for number checks, the literal for
// value_equals/value_not_equals.
type ComplianceRule struct {
	Check        CheckKind `json:"check_type"`
	CompareTo    Anchor    `json:"compare_to,omitempty"`
	CompareValue string    `json:"compare_value,omitempty"`
	WarningDays  int       `json:"warning_days,omitempty"`
	Message      string    `json:"error_message,omitempty"`
}

// AttributeDefinition is a named, typed slot a person may carry.
// Name is the internal name, unique across all definitions; for system
// attributes both Name and Kind are immutable after creation.
type AttributeDefinition struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	Name          string          `json:"name" db:"name"`
	Label         string          `json:"label" db:"label"`
	Kind          AttributeKind   `json:"kind" db:"kind"`
	Order         int             `json:"field_order" db:"field_order"`
	Required      bool            `json:"is_required" db:"is_required"`
	Searchable    bool            `json:"is_searchable" db:"is_searchable"`
	System        bool            `json:"is_system" db:"is_system"`
	Configuration json.RawMessage `json:"configuration,omitempty" db:"configuration"`
	Rule          *ComplianceRule `json:"compliance_rule,omitempty" db:"compliance_rule"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// ruleKinds maps each check kind to the attribute kinds it may be attached
// to. Enforced at definition time; the compliance engine re-checks it at
// evaluation time and fails fast on a mismatch.
var ruleKinds = map[CheckKind][]AttributeKind{
	CheckDateNotExpired:    {KindDate, KindDateExpiry},
	CheckDateBefore:        {KindDate, KindDateExpiry},
	CheckDateAfter:         {KindDate, KindDateExpiry},
	CheckBooleanIsTrue:     {KindBoolean},
	CheckBooleanIsFalse:    {KindBoolean},
	CheckValueEquals:       {KindText, KindLongText, KindEmail, KindSingleChoice},
	CheckValueNotEquals:    {KindText, KindLongText, KindEmail, KindSingleChoice},
	CheckNumberGreaterThan: {KindNumber},
	CheckNumberLessThan:    {KindNumber},
	CheckNotEmpty: {KindText, KindLongText, KindEmail, KindNumber, KindDate,
		KindDateExpiry, KindBoolean, KindSingleChoice, KindPhoto, KindDocument},
}

var attributeKinds = map[AttributeKind]bool{
	KindText: true, KindLongText: true, KindEmail: true, KindNumber: true,
	KindDate: true, KindDateExpiry: true, KindBoolean: true,
	KindSingleChoice: true, KindPhoto: true, KindDocument: true,
}

// ValidAttributeKind reports whether kind names a known attribute kind.
func ValidAttributeKind(kind AttributeKind) bool {
	return attributeKinds[kind]
}

// CheckCompatible reports whether a check kind may be attached to an
// attribute of the given kind.
func CheckCompatible(check CheckKind, kind AttributeKind) bool {
	for _, k := range ruleKinds[check] {
		if k == kind {
			return true
		}
	}
	return false
}

// ValidCheckKind reports whether check names a known check kind.
func ValidCheckKind(check CheckKind) bool {
	_, ok := ruleKinds[check]
	return ok
}
