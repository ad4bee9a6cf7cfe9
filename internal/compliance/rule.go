// Package compliance evaluates per-attribute compliance rules and
// aggregates them into a person's overall status. All functions here are
// pure over their inputs and safe for concurrent use.
package compliance

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/your-org/idgate/internal/models"
)

// Status is a person's derived compliance status. It is a view, never
// persisted state.
type Status string

const (
	StatusPending Status = "pending"
	StatusValid   Status = "valid"
	StatusWarning Status = "warning"
	StatusExpired Status = "expired"
)

// ConfigurationError reports a rule whose check kind is incompatible with
// its attribute's declared kind. It is a data-integrity problem of the
// definition, not a compliance failure of the person, and fails the whole
// evaluation.
type ConfigurationError struct {
	AttributeID   string
	AttributeName string
	Check         models.CheckKind
	Kind          models.AttributeKind
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("compliance rule %s is not applicable to attribute %q of kind %s",
		e.Check, e.AttributeName, e.Kind)
}

// outcome is the result of evaluating one rule against one present value.
type outcome struct {
	status    Status // StatusValid, StatusWarning or StatusExpired
	message   string
	daysUntil *int // signed day count, date_not_expired only
}

// evaluateRule checks one present value against one rule. now anchors all
// "today" comparisons; defaultWarningDays applies when the rule omits its
// own lead time.
func evaluateRule(def models.AttributeDefinition, rule models.ComplianceRule, value any, now time.Time, defaultWarningDays int) (outcome, error) {
	if !models.ValidCheckKind(rule.Check) {
		return outcome{}, &ConfigurationError{
			AttributeID:   def.ID.String(),
			AttributeName: def.Name,
			Check:         rule.Check,
			Kind:          def.Kind,
		}
	}
	if !models.CheckCompatible(rule.Check, def.Kind) {
		return outcome{}, &ConfigurationError{
			AttributeID:   def.ID.String(),
			AttributeName: def.Name,
			Check:         rule.Check,
			Kind:          def.Kind,
		}
	}

	switch rule.Check {
	case models.CheckDateNotExpired:
		return checkDateNotExpired(def, rule, value, now, defaultWarningDays), nil
	case models.CheckDateBefore, models.CheckDateAfter:
		return checkDateOrder(def, rule, value, now), nil
	case models.CheckBooleanIsTrue, models.CheckBooleanIsFalse:
		return checkBoolean(def, rule, value), nil
	case models.CheckValueEquals, models.CheckValueNotEquals:
		return checkValueEquality(def, rule, value), nil
	case models.CheckNumberGreaterThan, models.CheckNumberLessThan:
		return checkNumberOrder(def, rule, value), nil
	case models.CheckNotEmpty:
		return checkNotEmpty(def, rule, value), nil
	}
	// Unreachable: ValidCheckKind covers every constant above.
	return outcome{status: StatusValid}, nil
}

func checkDateNotExpired(def models.AttributeDefinition, rule models.ComplianceRule, value any, now time.Time, defaultWarningDays int) outcome {
	date, err := parseDate(value)
	if err != nil {
		return errorOutcome(rule, fmt.Sprintf("Invalid date format for '%s'", def.Label))
	}

	warningDays := rule.WarningDays
	if warningDays <= 0 {
		warningDays = defaultWarningDays
	}

	days := daysBetween(startOfDay(now), date)
	switch {
	case days < 0:
		o := errorOutcome(rule, fmt.Sprintf("'%s' has expired", def.Label))
		o.daysUntil = &days
		return o
	case days <= warningDays:
		return outcome{
			status:    StatusWarning,
			message:   fmt.Sprintf("'%s' expires in %d days", def.Label, days),
			daysUntil: &days,
		}
	default:
		return outcome{status: StatusValid}
	}
}

func checkDateOrder(def models.AttributeDefinition, rule models.ComplianceRule, value any, now time.Time) outcome {
	date, err := parseDate(value)
	if err != nil {
		return errorOutcome(rule, fmt.Sprintf("Invalid date format for '%s'", def.Label))
	}

	var anchor time.Time
	switch rule.CompareTo {
	case models.AnchorFixedDate:
		anchor, err = parseDate(rule.CompareValue)
		if err != nil {
			return errorOutcome(rule, fmt.Sprintf("Invalid comparison date for '%s'", def.Label))
		}
	default:
		anchor = startOfDay(now)
	}

	if rule.Check == models.CheckDateBefore {
		if !date.Before(anchor) {
			return errorOutcome(rule, fmt.Sprintf("'%s' must be before %s", def.Label, anchor.Format("2006-01-02")))
		}
	} else {
		if !date.After(anchor) {
			return errorOutcome(rule, fmt.Sprintf("'%s' must be after %s", def.Label, anchor.Format("2006-01-02")))
		}
	}
	return outcome{status: StatusValid}
}

func checkBoolean(def models.AttributeDefinition, rule models.ComplianceRule, value any) outcome {
	checked := asBool(value)
	if rule.Check == models.CheckBooleanIsTrue && !checked {
		return errorOutcome(rule, fmt.Sprintf("'%s' must be checked", def.Label))
	}
	if rule.Check == models.CheckBooleanIsFalse && checked {
		return errorOutcome(rule, fmt.Sprintf("'%s' must be unchecked", def.Label))
	}
	return outcome{status: StatusValid}
}

func checkValueEquality(def models.AttributeDefinition, rule models.ComplianceRule, value any) outcome {
	got := asString(value)
	if rule.Check == models.CheckValueEquals && got != rule.CompareValue {
		return errorOutcome(rule, fmt.Sprintf("'%s' must be '%s'", def.Label, rule.CompareValue))
	}
	if rule.Check == models.CheckValueNotEquals && got == rule.CompareValue {
		return errorOutcome(rule, fmt.Sprintf("'%s' must not be '%s'", def.Label, rule.CompareValue))
	}
	return outcome{status: StatusValid}
}

func checkNumberOrder(def models.AttributeDefinition, rule models.ComplianceRule, value any) outcome {
	got, err := asNumber(value)
	if err != nil {
		return errorOutcome(rule, fmt.Sprintf("Invalid number format for '%s'", def.Label))
	}
	want, err := strconv.ParseFloat(rule.CompareValue, 64)
	if err != nil {
		return errorOutcome(rule, fmt.Sprintf("Invalid comparison number for '%s'", def.Label))
	}

	if rule.Check == models.CheckNumberGreaterThan && got <= want {
		return errorOutcome(rule, fmt.Sprintf("'%s' must be greater than %s", def.Label, rule.CompareValue))
	}
	if rule.Check == models.CheckNumberLessThan && got >= want {
		return errorOutcome(rule, fmt.Sprintf("'%s' must be less than %s", def.Label, rule.CompareValue))
	}
	return outcome{status: StatusValid}
}

func checkNotEmpty(def models.AttributeDefinition, rule models.ComplianceRule, value any) outcome {
	if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
		return errorOutcome(rule, fmt.Sprintf("'%s' must not be empty", def.Label))
	}
	if value == nil {
		return errorOutcome(rule, fmt.Sprintf("'%s' must not be empty", def.Label))
	}
	return outcome{status: StatusValid}
}

func errorOutcome(rule models.ComplianceRule, defaultMsg string) outcome {
	msg := defaultMsg
	if rule.Message != "" {
		msg = rule.Message
	}
	return outcome{status: StatusExpired, message: msg}
}

// parseDate accepts ISO dates with or without a time component. The result
// is truncated to the day in UTC; compliance has day granularity.
func parseDate(value any) (time.Time, error) {
	s, ok := value.(string)
	if !ok || s == "" {
		return time.Time{}, fmt.Errorf("not a date string: %v", value)
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return startOfDay(t.UTC()), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

func asBool(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "True" || v == "1"
	case float64:
		return v == 1
	default:
		return false
	}
}

func asString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func asNumber(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("not a number: %v", value)
	}
}
