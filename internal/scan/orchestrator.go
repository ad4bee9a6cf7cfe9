// Package scan sequences match → compliance → permissions for one kiosk
// request and assembles the response shown to the requester.
package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/idgate/internal/compliance"
	"github.com/your-org/idgate/internal/match"
	"github.com/your-org/idgate/internal/models"
	"github.com/your-org/idgate/internal/permissions"
)

// CollaboratorError wraps a failed retrieval/lookup call. It is propagated
// to the caller unmodified and never retried here.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("collaborator %s: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// Directory is the external lookup collaborator for people, attribute
// definitions and requesters.
type Directory interface {
	GetAttributeDefinitions(ctx context.Context) ([]models.AttributeDefinition, error)
	GetPersonAttributeValues(ctx context.Context, personID uuid.UUID) (map[uuid.UUID]any, error)
	GetPerson(ctx context.Context, personID uuid.UUID) (*models.Person, error)
	GetRequester(ctx context.Context, requesterID uuid.UUID) (*models.Requester, error)
}

// Matcher identifies a probe set against the stored population.
type Matcher interface {
	Identify(ctx context.Context, probes []match.Representation, threshold float64) (match.Result, error)
}

// PersonSummary is the matched person reduced to what the kiosk shows.
type PersonSummary struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	PhotoKey  string    `json:"photo_key,omitempty"`
}

// Response is the single terminal outcome of one scan request. When the
// probe did not match, only the diagnostics fields are populated: no
// compliance or permission computation happens for an unknown face.
type Response struct {
	Matched        bool                 `json:"matched"`
	Person         *PersonSummary       `json:"person,omitempty"`
	Confidence     float64              `json:"confidence"`
	BestDistance   float64              `json:"best_distance"`
	Variant        models.Variant       `json:"variant,omitempty"`
	VariantsTested []models.Variant     `json:"variants_tested"`
	Reason         string               `json:"reason,omitempty"`
	Compliance     *compliance.Result   `json:"compliance,omitempty"`
	Values         map[uuid.UUID]any    `json:"values,omitempty"`
	Labels         map[uuid.UUID]string `json:"labels,omitempty"`
	EditableIDs    []uuid.UUID          `json:"editable_ids,omitempty"`
}

// Orchestrator runs one scan request end to end. Instances are stateless
// and may serve any number of concurrent requests.
type Orchestrator struct {
	matcher    Matcher
	dir        Directory
	compliance *compliance.Engine
	now        func() time.Time
}

func New(matcher Matcher, dir Directory, engine *compliance.Engine) *Orchestrator {
	return &Orchestrator{
		matcher:    matcher,
		dir:        dir,
		compliance: engine,
		now:        time.Now,
	}
}

// HandleScan identifies the probe, evaluates the matched person's
// compliance, resolves the requester's attribute permissions, and filters
// the person's values down to the visible set. Exactly one response is
// produced per request; any component failure aborts with a typed error.
func (o *Orchestrator) HandleScan(ctx context.Context, probes []match.Representation, requesterID uuid.UUID, threshold float64) (*Response, error) {
	result, err := o.matcher.Identify(ctx, probes, threshold)
	if err != nil {
		return nil, err
	}

	if !result.Matched {
		return &Response{
			Confidence:     result.Confidence,
			BestDistance:   result.BestDistance,
			VariantsTested: result.VariantsTested,
			Reason:         result.Reason,
		}, nil
	}

	person, err := o.dir.GetPerson(ctx, result.PersonID)
	if err != nil {
		return nil, &CollaboratorError{Op: "get person", Err: err}
	}
	if person == nil {
		return nil, &CollaboratorError{Op: "get person", Err: fmt.Errorf("matched person %s not found", result.PersonID)}
	}

	defs, err := o.dir.GetAttributeDefinitions(ctx)
	if err != nil {
		return nil, &CollaboratorError{Op: "get attribute definitions", Err: err}
	}

	values, err := o.dir.GetPersonAttributeValues(ctx, result.PersonID)
	if err != nil {
		return nil, &CollaboratorError{Op: "get person values", Err: err}
	}

	comp, err := o.compliance.Evaluate(defs, values, o.now())
	if err != nil {
		return nil, err
	}

	requester, err := o.dir.GetRequester(ctx, requesterID)
	if err != nil {
		return nil, &CollaboratorError{Op: "get requester", Err: err}
	}
	if requester == nil {
		return nil, &CollaboratorError{Op: "get requester", Err: fmt.Errorf("requester %s not found", requesterID)}
	}

	perms := permissions.Resolve(*requester, defs)

	visible := make(map[uuid.UUID]any)
	labels := make(map[uuid.UUID]string)
	for _, def := range defs {
		if !perms.Visible.Contains(def.ID) {
			continue
		}
		labels[def.ID] = def.Label
		if v, ok := values[def.ID]; ok {
			visible[def.ID] = v
		}
	}

	return &Response{
		Matched:        true,
		Person:         &PersonSummary{ID: person.ID, FirstName: person.FirstName, LastName: person.LastName, PhotoKey: person.PhotoKey},
		Confidence:     result.Confidence,
		BestDistance:   result.BestDistance,
		Variant:        result.Variant,
		VariantsTested: result.VariantsTested,
		Compliance:     &comp,
		Values:         visible,
		Labels:         labels,
		EditableIDs:    perms.Editable.IDs(defs),
	}, nil
}

// MergedScannerConfig folds the scanner configuration of every role the
// requester holds into one kiosk config: modes union, the lowest declared
// display threshold, field lists union. A requester with no configured
// role gets the fallback.
func MergedScannerConfig(requester models.Requester, fallback models.ScannerConfig) models.ScannerConfig {
	if requester.Superadmin {
		return fallback
	}

	merged := models.ScannerConfig{MinConfidence: -1}
	seen := false
	for _, role := range requester.Roles {
		sc := role.Scanner
		if sc == nil {
			continue
		}
		seen = true
		for _, m := range sc.EnabledModes {
			if !containsMode(merged.EnabledModes, m) {
				merged.EnabledModes = append(merged.EnabledModes, m)
			}
		}
		if merged.DefaultMode == "" {
			merged.DefaultMode = sc.DefaultMode
		}
		if merged.MinConfidence < 0 || sc.MinConfidence < merged.MinConfidence {
			merged.MinConfidence = sc.MinConfidence
		}
		merged.TextSearchFields = appendUniqueIDs(merged.TextSearchFields, sc.TextSearchFields)
		merged.ResultDisplayFields = appendUniqueIDs(merged.ResultDisplayFields, sc.ResultDisplayFields)
	}
	if !seen {
		return fallback
	}
	if merged.MinConfidence < 0 {
		merged.MinConfidence = fallback.MinConfidence
	}
	return merged
}

func containsMode(modes []models.ScanMode, m models.ScanMode) bool {
	for _, existing := range modes {
		if existing == m {
			return true
		}
	}
	return false
}

func appendUniqueIDs(dst, src []uuid.UUID) []uuid.UUID {
	for _, id := range src {
		dup := false
		for _, existing := range dst {
			if existing == id {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, id)
		}
	}
	return dst
}
