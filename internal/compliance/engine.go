package compliance

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/idgate/internal/models"
)

// Issue is one warning or error produced by a rule evaluation.
// DaysUntilExpiry is set for date_not_expired rules only; it is negative
// once the date has passed.
type Issue struct {
	AttributeID     uuid.UUID `json:"attribute_id"`
	AttributeName   string    `json:"attribute_name"`
	Label           string    `json:"label"`
	Message         string    `json:"message"`
	DaysUntilExpiry *int      `json:"days_until_expiry,omitempty"`
}

// Result is the aggregated compliance view of one person.
type Result struct {
	Status    Status    `json:"status"`
	Compliant bool      `json:"is_compliant"`
	Warnings  []Issue   `json:"warnings"`
	Errors    []Issue   `json:"errors"`
	CheckedAt time.Time `json:"checked_at"`
}

// Engine aggregates rule evaluations across all of a person's attributes.
// It is stateless; the same inputs always yield the same result.
type Engine struct {
	defaultWarningDays int
}

func NewEngine(defaultWarningDays int) *Engine {
	if defaultWarningDays <= 0 {
		defaultWarningDays = 30
	}
	return &Engine{defaultWarningDays: defaultWarningDays}
}

// Evaluate derives the person's compliance status from their attribute
// values. Precedence is fixed: a single error forces expired; otherwise a
// warning window forces warning; otherwise an unfilled rule-bearing
// attribute leaves the person pending; only a fully passing set is valid.
//
// A rule whose check kind is incompatible with its attribute's kind fails
// the whole evaluation with a *ConfigurationError rather than producing a
// partial, falsely permissive result.
func (e *Engine) Evaluate(defs []models.AttributeDefinition, values map[uuid.UUID]any, now time.Time) (Result, error) {
	res := Result{
		Warnings:  []Issue{},
		Errors:    []Issue{},
		CheckedAt: now,
	}
	pending := false

	for _, def := range defs {
		if def.Rule == nil && !def.Required {
			continue
		}

		value, present := values[def.ID]
		if value == nil {
			present = false
		}

		if !present {
			switch {
			case def.Required:
				res.Errors = append(res.Errors, Issue{
					AttributeID:   def.ID,
					AttributeName: def.Name,
					Label:         def.Label,
					Message:       "Required field '" + def.Label + "' is missing",
				})
			case def.Rule.Check == models.CheckNotEmpty:
				// Absence fails a presence rule outright.
				o := errorOutcome(*def.Rule, "'"+def.Label+"' must not be empty")
				res.Errors = append(res.Errors, issueFrom(def, o))
			default:
				// Not filled yet and not required: the rule has nothing to
				// judge, the person is simply not fully evaluated.
				pending = true
			}
			continue
		}

		if def.Rule == nil {
			continue
		}

		o, err := evaluateRule(def, *def.Rule, value, now, e.defaultWarningDays)
		if err != nil {
			return Result{}, err
		}
		switch o.status {
		case StatusExpired:
			res.Errors = append(res.Errors, issueFrom(def, o))
		case StatusWarning:
			res.Warnings = append(res.Warnings, issueFrom(def, o))
		}
	}

	switch {
	case len(res.Errors) > 0:
		res.Status = StatusExpired
	case len(res.Warnings) > 0:
		res.Status = StatusWarning
		res.Compliant = true
	case pending:
		res.Status = StatusPending
	default:
		res.Status = StatusValid
		res.Compliant = true
	}
	return res, nil
}

func issueFrom(def models.AttributeDefinition, o outcome) Issue {
	return Issue{
		AttributeID:     def.ID,
		AttributeName:   def.Name,
		Label:           def.Label,
		Message:         o.message,
		DaysUntilExpiry: o.daysUntil,
	}
}
