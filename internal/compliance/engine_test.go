package compliance

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/idgate/internal/models"
)

var now = time.Date(2026, 3, 1, 15, 30, 0, 0, time.UTC)

func def(name string, kind models.AttributeKind, required bool, rule *models.ComplianceRule) models.AttributeDefinition {
	return models.AttributeDefinition{
		ID:       uuid.New(),
		Name:     name,
		Label:    name,
		Kind:     kind,
		Required: required,
		Rule:     rule,
	}
}

func TestEvaluateExpiredDateForcesExpired(t *testing.T) {
	cert := def("safety_cert", models.KindDateExpiry, false, &models.ComplianceRule{
		Check: models.CheckDateNotExpired,
	})
	e := NewEngine(30)

	res, err := e.Evaluate([]models.AttributeDefinition{cert},
		map[uuid.UUID]any{cert.ID: "2026-02-20"}, now)
	require.NoError(t, err)

	assert.Equal(t, StatusExpired, res.Status)
	assert.False(t, res.Compliant)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "'safety_cert' has expired", res.Errors[0].Message)
	require.NotNil(t, res.Errors[0].DaysUntilExpiry)
	assert.Equal(t, -9, *res.Errors[0].DaysUntilExpiry)
}

func TestEvaluateWarningWindow(t *testing.T) {
	cert := def("safety_cert", models.KindDateExpiry, false, &models.ComplianceRule{
		Check:       models.CheckDateNotExpired,
		WarningDays: 30,
	})
	e := NewEngine(30)

	res, err := e.Evaluate([]models.AttributeDefinition{cert},
		map[uuid.UUID]any{cert.ID: "2026-03-11"}, now)
	require.NoError(t, err)

	assert.Equal(t, StatusWarning, res.Status)
	assert.True(t, res.Compliant, "warnings alone keep the person compliant")
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "'safety_cert' expires in 10 days", res.Warnings[0].Message)
	require.NotNil(t, res.Warnings[0].DaysUntilExpiry)
	assert.Equal(t, 10, *res.Warnings[0].DaysUntilExpiry)
}

func TestEvaluateDateOutsideWarningWindowIsValid(t *testing.T) {
	cert := def("safety_cert", models.KindDateExpiry, false, &models.ComplianceRule{
		Check:       models.CheckDateNotExpired,
		WarningDays: 30,
	})
	e := NewEngine(30)

	res, err := e.Evaluate([]models.AttributeDefinition{cert},
		map[uuid.UUID]any{cert.ID: "2026-06-01"}, now)
	require.NoError(t, err)

	assert.Equal(t, StatusValid, res.Status)
	assert.True(t, res.Compliant)
	assert.Empty(t, res.Warnings)
	assert.Empty(t, res.Errors)
}

func TestEvaluateDefaultWarningDaysApplies(t *testing.T) {
	cert := def("safety_cert", models.KindDateExpiry, false, &models.ComplianceRule{
		Check: models.CheckDateNotExpired,
	})

	// Expiry in 45 days: inside a 60-day default window, outside a 30-day one.
	values := map[uuid.UUID]any{cert.ID: "2026-04-15"}

	res, err := NewEngine(60).Evaluate([]models.AttributeDefinition{cert}, values, now)
	require.NoError(t, err)
	assert.Equal(t, StatusWarning, res.Status)

	res, err = NewEngine(30).Evaluate([]models.AttributeDefinition{cert}, values, now)
	require.NoError(t, err)
	assert.Equal(t, StatusValid, res.Status)
}

func TestEvaluateCustomErrorMessage(t *testing.T) {
	agreed := def("nda_signed", models.KindBoolean, false, &models.ComplianceRule{
		Check:   models.CheckBooleanIsTrue,
		Message: "NDA must be signed before entry",
	})
	e := NewEngine(30)

	res, err := e.Evaluate([]models.AttributeDefinition{agreed},
		map[uuid.UUID]any{agreed.ID: false}, now)
	require.NoError(t, err)

	require.Len(t, res.Errors, 1)
	assert.Equal(t, "NDA must be signed before entry", res.Errors[0].Message)
}

func TestEvaluateRequiredMissingIsError(t *testing.T) {
	badge := def("badge_id", models.KindText, true, nil)
	e := NewEngine(30)

	res, err := e.Evaluate([]models.AttributeDefinition{badge}, nil, now)
	require.NoError(t, err)

	assert.Equal(t, StatusExpired, res.Status)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Required field 'badge_id' is missing", res.Errors[0].Message)
}

func TestEvaluateMissingOptionalRuleValueIsPending(t *testing.T) {
	cert := def("safety_cert", models.KindDateExpiry, false, &models.ComplianceRule{
		Check: models.CheckDateNotExpired,
	})
	e := NewEngine(30)

	res, err := e.Evaluate([]models.AttributeDefinition{cert}, nil, now)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, res.Status)
	assert.False(t, res.Compliant)
	assert.Empty(t, res.Errors)
}

func TestEvaluateNilValueCountsAsAbsent(t *testing.T) {
	cert := def("safety_cert", models.KindDateExpiry, false, &models.ComplianceRule{
		Check: models.CheckDateNotExpired,
	})
	e := NewEngine(30)

	res, err := e.Evaluate([]models.AttributeDefinition{cert},
		map[uuid.UUID]any{cert.ID: nil}, now)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, res.Status)
}

func TestEvaluateNotEmptyFailsOnAbsence(t *testing.T) {
	field := def("emergency_contact", models.KindText, false, &models.ComplianceRule{
		Check: models.CheckNotEmpty,
	})
	e := NewEngine(30)

	res, err := e.Evaluate([]models.AttributeDefinition{field}, nil, now)
	require.NoError(t, err)

	assert.Equal(t, StatusExpired, res.Status)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "'emergency_contact' must not be empty", res.Errors[0].Message)
}

func TestEvaluateErrorOutranksWarning(t *testing.T) {
	cert := def("safety_cert", models.KindDateExpiry, false, &models.ComplianceRule{
		Check: models.CheckDateNotExpired,
	})
	agreed := def("nda_signed", models.KindBoolean, false, &models.ComplianceRule{
		Check: models.CheckBooleanIsTrue,
	})
	e := NewEngine(30)

	res, err := e.Evaluate([]models.AttributeDefinition{cert, agreed}, map[uuid.UUID]any{
		cert.ID:   "2026-03-11", // warning window
		agreed.ID: false,        // error
	}, now)
	require.NoError(t, err)

	assert.Equal(t, StatusExpired, res.Status)
	assert.False(t, res.Compliant)
	assert.Len(t, res.Errors, 1)
	assert.Len(t, res.Warnings, 1)
}

func TestEvaluateValueChecks(t *testing.T) {
	cases := []struct {
		name   string
		kind   models.AttributeKind
		rule   models.ComplianceRule
		value  any
		status Status
	}{
		{"equals pass", models.KindSingleChoice,
			models.ComplianceRule{Check: models.CheckValueEquals, CompareValue: "cleared"}, "cleared", StatusValid},
		{"equals fail", models.KindSingleChoice,
			models.ComplianceRule{Check: models.CheckValueEquals, CompareValue: "cleared"}, "revoked", StatusExpired},
		{"not equals pass", models.KindText,
			models.ComplianceRule{Check: models.CheckValueNotEquals, CompareValue: "banned"}, "regular", StatusValid},
		{"greater than pass", models.KindNumber,
			models.ComplianceRule{Check: models.CheckNumberGreaterThan, CompareValue: "18"}, float64(21), StatusValid},
		{"greater than fail", models.KindNumber,
			models.ComplianceRule{Check: models.CheckNumberGreaterThan, CompareValue: "18"}, float64(17), StatusExpired},
		{"less than fail on equal", models.KindNumber,
			models.ComplianceRule{Check: models.CheckNumberLessThan, CompareValue: "100"}, float64(100), StatusExpired},
		{"boolean false required", models.KindBoolean,
			models.ComplianceRule{Check: models.CheckBooleanIsFalse}, true, StatusExpired},
		{"date before fixed pass", models.KindDate,
			models.ComplianceRule{Check: models.CheckDateBefore, CompareTo: models.AnchorFixedDate, CompareValue: "2027-01-01"},
			"2026-05-01", StatusValid},
		{"date after today fail", models.KindDate,
			models.ComplianceRule{Check: models.CheckDateAfter}, "2026-01-01", StatusExpired},
	}

	e := NewEngine(30)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := def("attr", tc.kind, false, &tc.rule)
			res, err := e.Evaluate([]models.AttributeDefinition{d},
				map[uuid.UUID]any{d.ID: tc.value}, now)
			require.NoError(t, err)
			assert.Equal(t, tc.status, res.Status)
		})
	}
}

func TestEvaluateIncompatibleRuleFailsWhole(t *testing.T) {
	bad := def("badge_id", models.KindText, false, &models.ComplianceRule{
		Check: models.CheckBooleanIsTrue,
	})
	ok := def("nda_signed", models.KindBoolean, false, &models.ComplianceRule{
		Check: models.CheckBooleanIsTrue,
	})
	e := NewEngine(30)

	_, err := e.Evaluate([]models.AttributeDefinition{ok, bad}, map[uuid.UUID]any{
		ok.ID:  true,
		bad.ID: "x",
	}, now)

	var confErr *ConfigurationError
	require.ErrorAs(t, err, &confErr)
	assert.Equal(t, bad.ID.String(), confErr.AttributeID)
	assert.Equal(t, models.CheckBooleanIsTrue, confErr.Check)
	assert.Equal(t, models.KindText, confErr.Kind)
}

func TestEvaluateInvalidDateValueIsError(t *testing.T) {
	cert := def("safety_cert", models.KindDateExpiry, false, &models.ComplianceRule{
		Check: models.CheckDateNotExpired,
	})
	e := NewEngine(30)

	res, err := e.Evaluate([]models.AttributeDefinition{cert},
		map[uuid.UUID]any{cert.ID: "not-a-date"}, now)
	require.NoError(t, err)

	assert.Equal(t, StatusExpired, res.Status)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Message, "Invalid date format")
}

func TestEvaluateDeterministic(t *testing.T) {
	cert := def("safety_cert", models.KindDateExpiry, false, &models.ComplianceRule{
		Check: models.CheckDateNotExpired,
	})
	agreed := def("nda_signed", models.KindBoolean, true, &models.ComplianceRule{
		Check: models.CheckBooleanIsTrue,
	})
	values := map[uuid.UUID]any{
		cert.ID:   "2026-03-11",
		agreed.ID: true,
	}
	e := NewEngine(30)

	first, err := e.Evaluate([]models.AttributeDefinition{cert, agreed}, values, now)
	require.NoError(t, err)
	second, err := e.Evaluate([]models.AttributeDefinition{cert, agreed}, values, now)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEvaluateNoRulesIsValid(t *testing.T) {
	name := def("nickname", models.KindText, false, nil)
	e := NewEngine(30)

	res, err := e.Evaluate([]models.AttributeDefinition{name}, nil, now)
	require.NoError(t, err)
	assert.Equal(t, StatusValid, res.Status)
	assert.True(t, res.Compliant)
}

func TestParseDateLayouts(t *testing.T) {
	for _, s := range []string{"2026-03-11", "2026-03-11T08:00:00Z", "2026-03-11T08:00:00"} {
		d, err := parseDate(s)
		require.NoError(t, err, s)
		assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), d)
	}
	_, err := parseDate(42)
	assert.Error(t, err)
}
