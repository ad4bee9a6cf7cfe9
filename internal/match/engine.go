// Package match decides whether a freshly captured face representation
// belongs to a known person. It is pure decision logic over vectors
// supplied by a retrieval collaborator; it owns no index and no state.
package match

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/your-org/idgate/internal/models"
)

// ErrInvalidProbe is returned when the probe set is empty, a probe vector
// has zero length, probe dimensions disagree, or a variant tag is unknown.
// An invalid probe is rejected before any comparison happens.
var ErrInvalidProbe = errors.New("invalid probe")

// ErrNoCandidates is the retriever's sentinel for an empty population of
// the requested variant. It is a normal outcome, not a failure.
var ErrNoCandidates = errors.New("no candidates")

// Representation is one probe vector tagged with its variant.
type Representation struct {
	Variant models.Variant `json:"variant"`
	Vector  []float32      `json:"vector"`
}

// Neighbor is the nearest stored vector for one variant.
type Neighbor struct {
	PersonID uuid.UUID
	Distance float64
}

// Retriever returns the single nearest stored vector of the given variant
// across the whole population. Any index structure satisfies the contract
// as long as it returns the true nearest neighbor and its Euclidean
// distance, or ErrNoCandidates when no vectors of that variant exist.
type Retriever interface {
	RetrieveNearest(ctx context.Context, variant models.Variant, probe []float32) (Neighbor, error)
}

// Result is the outcome of one Identify call. BestDistance is -1 when no
// variant produced a candidate.
type Result struct {
	Matched        bool
	PersonID       uuid.UUID
	Variant        models.Variant
	Confidence     float64
	BestDistance   float64
	VariantsTested []models.Variant
	Reason         string
}

// Engine compares probe representations against the stored population.
// Safe for concurrent use; it holds no mutable state.
type Engine struct {
	retriever Retriever
	// thresholdConfidence is the confidence percentage displayed at
	// exactly the threshold distance, so operators can tune in either unit.
	thresholdConfidence float64
}

func NewEngine(retriever Retriever, thresholdConfidence float64) *Engine {
	return &Engine{retriever: retriever, thresholdConfidence: thresholdConfidence}
}

// Identify finds the best matching stored identity for the probe set.
// Each probe variant is compared only against stored vectors of the same
// variant; across variants the minimum distance wins, ties broken by
// primary > normalized > grayscale. A candidate matches iff its distance
// is <= threshold.
func (e *Engine) Identify(ctx context.Context, probes []Representation, threshold float64) (Result, error) {
	if err := validateProbes(probes); err != nil {
		return Result{}, err
	}
	if threshold <= 0 {
		return Result{}, fmt.Errorf("%w: threshold must be positive", ErrInvalidProbe)
	}

	// First probe per variant wins; variants are visited in precedence
	// order so equal distances resolve deterministically.
	byVariant := make(map[models.Variant][]float32, len(probes))
	for _, p := range probes {
		if _, ok := byVariant[p.Variant]; !ok {
			byVariant[p.Variant] = p.Vector
		}
	}

	res := Result{BestDistance: -1}
	for _, variant := range models.VariantOrder {
		vec, ok := byVariant[variant]
		if !ok {
			continue
		}
		neighbor, err := e.retriever.RetrieveNearest(ctx, variant, vec)
		if errors.Is(err, ErrNoCandidates) {
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("retrieve nearest %s: %w", variant, err)
		}
		res.VariantsTested = append(res.VariantsTested, variant)
		if res.BestDistance < 0 || neighbor.Distance < res.BestDistance {
			res.BestDistance = neighbor.Distance
			res.PersonID = neighbor.PersonID
			res.Variant = variant
		}
	}

	if res.BestDistance < 0 {
		res.Reason = "no candidates"
		return res, nil
	}

	res.Confidence = Confidence(res.BestDistance, threshold, e.thresholdConfidence)
	if res.BestDistance <= threshold {
		res.Matched = true
		return res, nil
	}

	res.PersonID = uuid.Nil
	res.Reason = fmt.Sprintf("best distance %.4f above threshold %.4f", res.BestDistance, threshold)
	return res, nil
}

func validateProbes(probes []Representation) error {
	if len(probes) == 0 {
		return fmt.Errorf("%w: no representations supplied", ErrInvalidProbe)
	}
	dim := 0
	for _, p := range probes {
		if !models.ValidVariant(p.Variant) {
			return fmt.Errorf("%w: unknown variant %q", ErrInvalidProbe, p.Variant)
		}
		if len(p.Vector) == 0 {
			return fmt.Errorf("%w: empty vector for variant %s", ErrInvalidProbe, p.Variant)
		}
		if dim == 0 {
			dim = len(p.Vector)
		} else if len(p.Vector) != dim {
			return fmt.Errorf("%w: dimension mismatch (%d vs %d)", ErrInvalidProbe, len(p.Vector), dim)
		}
	}
	return nil
}

// Distance returns the Euclidean distance between two equal-length vectors.
func Distance(a, b []float32) (float64, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, fmt.Errorf("%w: vectors must be equal non-zero length", ErrInvalidProbe)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Confidence maps a distance to a percentage in [0, 100]. The curve is
// linear, strictly decreasing until it clamps, and pinned at two points:
// distance 0 yields 100 and the threshold distance yields exactly
// thresholdConfidence.
func Confidence(distance, threshold, thresholdConfidence float64) float64 {
	if distance <= 0 {
		return 100
	}
	c := 100 - distance*(100-thresholdConfidence)/threshold
	return math.Max(0, math.Min(100, c))
}
