package match

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/idgate/internal/models"
)

// fakeRetriever serves canned nearest neighbors per variant.
type fakeRetriever struct {
	neighbors map[models.Variant]Neighbor
	err       error
	calls     []models.Variant
}

func (f *fakeRetriever) RetrieveNearest(_ context.Context, variant models.Variant, _ []float32) (Neighbor, error) {
	f.calls = append(f.calls, variant)
	if f.err != nil {
		return Neighbor{}, f.err
	}
	n, ok := f.neighbors[variant]
	if !ok {
		return Neighbor{}, ErrNoCandidates
	}
	return n, nil
}

func probe(variant models.Variant) Representation {
	return Representation{Variant: variant, Vector: []float32{0.1, 0.2, 0.3}}
}

func TestIdentifyMatchBelowThreshold(t *testing.T) {
	personID := uuid.New()
	r := &fakeRetriever{neighbors: map[models.Variant]Neighbor{
		models.VariantPrimary: {PersonID: personID, Distance: 0.3},
	}}
	e := NewEngine(r, 40)

	res, err := e.Identify(context.Background(), []Representation{probe(models.VariantPrimary)}, 0.6)
	require.NoError(t, err)

	assert.True(t, res.Matched)
	assert.Equal(t, personID, res.PersonID)
	assert.Equal(t, models.VariantPrimary, res.Variant)
	assert.InDelta(t, 0.3, res.BestDistance, 1e-9)
	assert.InDelta(t, 70.0, res.Confidence, 1e-9)
	assert.Equal(t, []models.Variant{models.VariantPrimary}, res.VariantsTested)
}

func TestIdentifyNoMatchAboveThreshold(t *testing.T) {
	r := &fakeRetriever{neighbors: map[models.Variant]Neighbor{
		models.VariantPrimary: {PersonID: uuid.New(), Distance: 0.9},
	}}
	e := NewEngine(r, 40)

	res, err := e.Identify(context.Background(), []Representation{probe(models.VariantPrimary)}, 0.6)
	require.NoError(t, err)

	assert.False(t, res.Matched)
	assert.Equal(t, uuid.Nil, res.PersonID)
	assert.InDelta(t, 0.9, res.BestDistance, 1e-9)
	assert.InDelta(t, 10.0, res.Confidence, 1e-9)
	assert.Contains(t, res.Reason, "above threshold")
}

func TestIdentifyExactThresholdMatches(t *testing.T) {
	r := &fakeRetriever{neighbors: map[models.Variant]Neighbor{
		models.VariantPrimary: {PersonID: uuid.New(), Distance: 0.6},
	}}
	e := NewEngine(r, 40)

	res, err := e.Identify(context.Background(), []Representation{probe(models.VariantPrimary)}, 0.6)
	require.NoError(t, err)

	assert.True(t, res.Matched)
	assert.InDelta(t, 40.0, res.Confidence, 1e-9)
}

func TestIdentifyMinDistanceWinsAcrossVariants(t *testing.T) {
	winner := uuid.New()
	r := &fakeRetriever{neighbors: map[models.Variant]Neighbor{
		models.VariantPrimary:    {PersonID: uuid.New(), Distance: 0.5},
		models.VariantNormalized: {PersonID: uuid.New(), Distance: 0.4},
		models.VariantGrayscale:  {PersonID: winner, Distance: 0.2},
	}}
	e := NewEngine(r, 40)

	probes := []Representation{
		probe(models.VariantPrimary),
		probe(models.VariantNormalized),
		probe(models.VariantGrayscale),
	}
	res, err := e.Identify(context.Background(), probes, 0.6)
	require.NoError(t, err)

	assert.Equal(t, winner, res.PersonID)
	assert.Equal(t, models.VariantGrayscale, res.Variant)
	assert.InDelta(t, 0.2, res.BestDistance, 1e-9)
	assert.Len(t, res.VariantsTested, 3)
}

func TestIdentifyTieBreaksByVariantPrecedence(t *testing.T) {
	primaryPerson := uuid.New()
	r := &fakeRetriever{neighbors: map[models.Variant]Neighbor{
		models.VariantPrimary:   {PersonID: primaryPerson, Distance: 0.3},
		models.VariantGrayscale: {PersonID: uuid.New(), Distance: 0.3},
	}}
	e := NewEngine(r, 40)

	probes := []Representation{
		probe(models.VariantGrayscale),
		probe(models.VariantPrimary),
	}
	res, err := e.Identify(context.Background(), probes, 0.6)
	require.NoError(t, err)

	assert.Equal(t, primaryPerson, res.PersonID)
	assert.Equal(t, models.VariantPrimary, res.Variant)
}

func TestIdentifySkipsVariantsWithoutCandidates(t *testing.T) {
	personID := uuid.New()
	r := &fakeRetriever{neighbors: map[models.Variant]Neighbor{
		models.VariantNormalized: {PersonID: personID, Distance: 0.1},
	}}
	e := NewEngine(r, 40)

	probes := []Representation{
		probe(models.VariantPrimary),
		probe(models.VariantNormalized),
	}
	res, err := e.Identify(context.Background(), probes, 0.6)
	require.NoError(t, err)

	assert.True(t, res.Matched)
	assert.Equal(t, personID, res.PersonID)
	assert.Equal(t, []models.Variant{models.VariantNormalized}, res.VariantsTested)
}

func TestIdentifyEmptyPopulation(t *testing.T) {
	r := &fakeRetriever{neighbors: map[models.Variant]Neighbor{}}
	e := NewEngine(r, 40)

	res, err := e.Identify(context.Background(), []Representation{probe(models.VariantPrimary)}, 0.6)
	require.NoError(t, err)

	assert.False(t, res.Matched)
	assert.Equal(t, -1.0, res.BestDistance)
	assert.Equal(t, "no candidates", res.Reason)
	assert.Zero(t, res.Confidence)
}

func TestIdentifyFirstProbePerVariantWins(t *testing.T) {
	r := &fakeRetriever{neighbors: map[models.Variant]Neighbor{
		models.VariantPrimary: {PersonID: uuid.New(), Distance: 0.1},
	}}
	e := NewEngine(r, 40)

	probes := []Representation{
		probe(models.VariantPrimary),
		{Variant: models.VariantPrimary, Vector: []float32{0.9, 0.9, 0.9}},
	}
	_, err := e.Identify(context.Background(), probes, 0.6)
	require.NoError(t, err)

	// Only one retrieval per variant.
	assert.Equal(t, []models.Variant{models.VariantPrimary}, r.calls)
}

func TestIdentifyInvalidProbes(t *testing.T) {
	e := NewEngine(&fakeRetriever{}, 40)

	cases := []struct {
		name      string
		probes    []Representation
		threshold float64
	}{
		{"empty probe set", nil, 0.6},
		{"empty vector", []Representation{{Variant: models.VariantPrimary}}, 0.6},
		{"unknown variant", []Representation{{Variant: "sepia", Vector: []float32{1}}}, 0.6},
		{"dimension mismatch", []Representation{
			{Variant: models.VariantPrimary, Vector: []float32{1, 2}},
			{Variant: models.VariantNormalized, Vector: []float32{1, 2, 3}},
		}, 0.6},
		{"zero threshold", []Representation{probe(models.VariantPrimary)}, 0},
		{"negative threshold", []Representation{probe(models.VariantPrimary)}, -0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Identify(context.Background(), tc.probes, tc.threshold)
			assert.ErrorIs(t, err, ErrInvalidProbe)
		})
	}
}

func TestIdentifyRetrieverFailure(t *testing.T) {
	boom := errors.New("index offline")
	e := NewEngine(&fakeRetriever{err: boom}, 40)

	_, err := e.Identify(context.Background(), []Representation{probe(models.VariantPrimary)}, 0.6)
	assert.ErrorIs(t, err, boom)
}

func TestDistance(t *testing.T) {
	d, err := Distance([]float32{0, 0}, []float32{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, d, 1e-9)

	rev, err := Distance([]float32{3, 4}, []float32{0, 0})
	require.NoError(t, err)
	assert.Equal(t, d, rev)

	zero, err := Distance([]float32{1, 2, 3}, []float32{1, 2, 3})
	require.NoError(t, err)
	assert.Zero(t, zero)

	_, err = Distance([]float32{1}, []float32{1, 2})
	assert.ErrorIs(t, err, ErrInvalidProbe)

	_, err = Distance(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidProbe)
}

func TestConfidenceCurve(t *testing.T) {
	assert.InDelta(t, 100.0, Confidence(0, 0.6, 40), 1e-9)
	assert.InDelta(t, 40.0, Confidence(0.6, 0.6, 40), 1e-9)
	assert.InDelta(t, 70.0, Confidence(0.3, 0.6, 40), 1e-9)
	assert.Zero(t, Confidence(10, 0.6, 40))

	// Strictly decreasing until the clamp.
	prev := Confidence(0, 0.6, 40)
	for d := 0.05; d <= 0.95; d += 0.05 {
		c := Confidence(d, 0.6, 40)
		assert.Less(t, c, prev, "confidence must decrease at distance %.2f", d)
		prev = c
	}
}
