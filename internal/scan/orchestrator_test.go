package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/idgate/internal/compliance"
	"github.com/your-org/idgate/internal/match"
	"github.com/your-org/idgate/internal/models"
)

type fakeMatcher struct {
	result match.Result
	err    error
}

func (f *fakeMatcher) Identify(context.Context, []match.Representation, float64) (match.Result, error) {
	return f.result, f.err
}

type fakeDirectory struct {
	defs      []models.AttributeDefinition
	values    map[uuid.UUID]any
	person    *models.Person
	requester *models.Requester

	defsErr      error
	valuesErr    error
	personErr    error
	requesterErr error

	lookups int
}

func (f *fakeDirectory) GetAttributeDefinitions(context.Context) ([]models.AttributeDefinition, error) {
	f.lookups++
	return f.defs, f.defsErr
}

func (f *fakeDirectory) GetPersonAttributeValues(context.Context, uuid.UUID) (map[uuid.UUID]any, error) {
	f.lookups++
	return f.values, f.valuesErr
}

func (f *fakeDirectory) GetPerson(context.Context, uuid.UUID) (*models.Person, error) {
	f.lookups++
	return f.person, f.personErr
}

func (f *fakeDirectory) GetRequester(context.Context, uuid.UUID) (*models.Requester, error) {
	f.lookups++
	return f.requester, f.requesterErr
}

func matchedResult(personID uuid.UUID) match.Result {
	return match.Result{
		Matched:        true,
		PersonID:       personID,
		Variant:        models.VariantPrimary,
		Confidence:     85,
		BestDistance:   0.15,
		VariantsTested: []models.Variant{models.VariantPrimary},
	}
}

func TestHandleScanMatchedFlow(t *testing.T) {
	personID := uuid.New()
	visibleAttr := uuid.New()
	hiddenAttr := uuid.New()

	dir := &fakeDirectory{
		defs: []models.AttributeDefinition{
			{ID: visibleAttr, Name: "badge_id", Label: "Badge"},
			{ID: hiddenAttr, Name: "salary", Label: "Salary"},
		},
		values: map[uuid.UUID]any{
			visibleAttr: "B-1042",
			hiddenAttr:  "classified",
		},
		person: &models.Person{ID: personID, FirstName: "Dana", LastName: "Reyes", PhotoKey: "photos/x"},
		requester: &models.Requester{
			ID:    uuid.New(),
			Roles: []models.Role{{VisibleAttributes: []uuid.UUID{visibleAttr}}},
		},
	}
	o := New(&fakeMatcher{result: matchedResult(personID)}, dir, compliance.NewEngine(30))

	resp, err := o.HandleScan(context.Background(), nil, dir.requester.ID, 0.6)
	require.NoError(t, err)

	assert.True(t, resp.Matched)
	require.NotNil(t, resp.Person)
	assert.Equal(t, personID, resp.Person.ID)
	assert.Equal(t, "Dana", resp.Person.FirstName)
	assert.Equal(t, "Reyes", resp.Person.LastName)
	assert.InDelta(t, 85, resp.Confidence, 1e-9)

	require.NotNil(t, resp.Compliance)
	assert.Equal(t, compliance.StatusValid, resp.Compliance.Status)

	assert.Contains(t, resp.Values, visibleAttr)
	assert.NotContains(t, resp.Values, hiddenAttr, "hidden attributes never leave the orchestrator")
	assert.Contains(t, resp.Labels, visibleAttr)
	assert.NotContains(t, resp.Labels, hiddenAttr)
}

func TestHandleScanUnmatchedSkipsLookups(t *testing.T) {
	dir := &fakeDirectory{}
	o := New(&fakeMatcher{result: match.Result{
		Matched:        false,
		BestDistance:   0.9,
		Confidence:     10,
		VariantsTested: []models.Variant{models.VariantPrimary},
		Reason:         "best distance 0.9000 above threshold 0.6000",
	}}, dir, compliance.NewEngine(30))

	resp, err := o.HandleScan(context.Background(), nil, uuid.New(), 0.6)
	require.NoError(t, err)

	assert.False(t, resp.Matched)
	assert.Nil(t, resp.Person)
	assert.Nil(t, resp.Compliance)
	assert.Contains(t, resp.Reason, "above threshold")
	assert.Zero(t, dir.lookups, "no compliance or permission work for an unknown face")
}

func TestHandleScanMatcherErrorPassesThrough(t *testing.T) {
	o := New(&fakeMatcher{err: match.ErrInvalidProbe}, &fakeDirectory{}, compliance.NewEngine(30))

	_, err := o.HandleScan(context.Background(), nil, uuid.New(), 0.6)
	assert.ErrorIs(t, err, match.ErrInvalidProbe)
}

func TestHandleScanCollaboratorErrors(t *testing.T) {
	personID := uuid.New()
	boom := errors.New("directory offline")

	base := func() *fakeDirectory {
		return &fakeDirectory{
			person:    &models.Person{ID: personID},
			requester: &models.Requester{ID: uuid.New()},
			values:    map[uuid.UUID]any{},
		}
	}

	cases := []struct {
		name string
		mod  func(*fakeDirectory)
		op   string
	}{
		{"person lookup", func(d *fakeDirectory) { d.personErr = boom }, "get person"},
		{"person missing", func(d *fakeDirectory) { d.person = nil }, "get person"},
		{"definitions", func(d *fakeDirectory) { d.defsErr = boom }, "get attribute definitions"},
		{"values", func(d *fakeDirectory) { d.valuesErr = boom }, "get person values"},
		{"requester lookup", func(d *fakeDirectory) { d.requesterErr = boom }, "get requester"},
		{"requester missing", func(d *fakeDirectory) { d.requester = nil }, "get requester"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := base()
			tc.mod(dir)
			o := New(&fakeMatcher{result: matchedResult(personID)}, dir, compliance.NewEngine(30))

			_, err := o.HandleScan(context.Background(), nil, uuid.New(), 0.6)
			var collab *CollaboratorError
			require.ErrorAs(t, err, &collab)
			assert.Equal(t, tc.op, collab.Op)
		})
	}
}

func TestHandleScanComplianceConfigurationErrorAborts(t *testing.T) {
	personID := uuid.New()
	attr := uuid.New()
	dir := &fakeDirectory{
		defs: []models.AttributeDefinition{{
			ID: attr, Name: "badge_id", Label: "Badge", Kind: models.KindText,
			Rule: &models.ComplianceRule{Check: models.CheckBooleanIsTrue},
		}},
		values:    map[uuid.UUID]any{attr: "x"},
		person:    &models.Person{ID: personID},
		requester: &models.Requester{ID: uuid.New()},
	}
	o := New(&fakeMatcher{result: matchedResult(personID)}, dir, compliance.NewEngine(30))

	_, err := o.HandleScan(context.Background(), nil, uuid.New(), 0.6)
	var confErr *compliance.ConfigurationError
	assert.ErrorAs(t, err, &confErr)
}

func TestHandleScanExpiredPersonStillReported(t *testing.T) {
	personID := uuid.New()
	attr := uuid.New()
	dir := &fakeDirectory{
		defs: []models.AttributeDefinition{{
			ID: attr, Name: "safety_cert", Label: "Safety cert", Kind: models.KindDateExpiry,
			Rule: &models.ComplianceRule{Check: models.CheckDateNotExpired},
		}},
		values:    map[uuid.UUID]any{attr: "2000-01-01"},
		person:    &models.Person{ID: personID},
		requester: &models.Requester{ID: uuid.New(), Superadmin: true},
	}
	o := New(&fakeMatcher{result: matchedResult(personID)}, dir, compliance.NewEngine(30))
	o.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	resp, err := o.HandleScan(context.Background(), nil, uuid.New(), 0.6)
	require.NoError(t, err)

	assert.True(t, resp.Matched, "a non-compliant person is still identified")
	require.NotNil(t, resp.Compliance)
	assert.Equal(t, compliance.StatusExpired, resp.Compliance.Status)
	assert.False(t, resp.Compliance.Compliant)
}

func TestMergedScannerConfig(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	fallback := models.ScannerConfig{
		EnabledModes:  []models.ScanMode{models.ScanModeFace},
		DefaultMode:   models.ScanModeFace,
		MinConfidence: 40,
	}

	t.Run("union across roles", func(t *testing.T) {
		requester := models.Requester{Roles: []models.Role{
			{Scanner: &models.ScannerConfig{
				EnabledModes:     []models.ScanMode{models.ScanModeFace},
				DefaultMode:      models.ScanModeFace,
				MinConfidence:    60,
				TextSearchFields: []uuid.UUID{a},
			}},
			{Scanner: &models.ScannerConfig{
				EnabledModes:     []models.ScanMode{models.ScanModeText},
				MinConfidence:    45,
				TextSearchFields: []uuid.UUID{a, b},
			}},
		}}

		merged := MergedScannerConfig(requester, fallback)
		assert.ElementsMatch(t, []models.ScanMode{models.ScanModeFace, models.ScanModeText}, merged.EnabledModes)
		assert.Equal(t, models.ScanModeFace, merged.DefaultMode)
		assert.InDelta(t, 45, merged.MinConfidence, 1e-9, "lowest declared display threshold wins")
		assert.ElementsMatch(t, []uuid.UUID{a, b}, merged.TextSearchFields)
	})

	t.Run("fallback when no role configures a scanner", func(t *testing.T) {
		requester := models.Requester{Roles: []models.Role{{}, {}}}
		assert.Equal(t, fallback, MergedScannerConfig(requester, fallback))
	})

	t.Run("superadmin gets fallback", func(t *testing.T) {
		requester := models.Requester{Superadmin: true, Roles: []models.Role{
			{Scanner: &models.ScannerConfig{MinConfidence: 99}},
		}}
		assert.Equal(t, fallback, MergedScannerConfig(requester, fallback))
	})
}
