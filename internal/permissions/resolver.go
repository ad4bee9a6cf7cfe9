// Package permissions computes the effective visible/editable attribute
// sets for a requester from their roles and optional per-user override.
package permissions

import (
	"github.com/google/uuid"

	"github.com/your-org/idgate/internal/models"
)

// Set is an attribute-ID set.
type Set map[uuid.UUID]bool

func (s Set) Contains(id uuid.UUID) bool { return s[id] }

// IDs returns the members in the order they appear in defs, so output
// ordering is stable regardless of map iteration.
func (s Set) IDs(defs []models.AttributeDefinition) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s))
	for _, def := range defs {
		if s[def.ID] {
			ids = append(ids, def.ID)
		}
	}
	return ids
}

// Result holds the resolved sets. Editable is always a subset of Visible.
type Result struct {
	Visible  Set
	Editable Set
}

// Resolve computes the requester's effective attribute permissions.
//
// A non-nil override is authoritative, even when both its lists are empty;
// role-level grants are ignored entirely. Otherwise the sets are the union
// of the requester's role grants. A role that lists an attribute as
// editable but not visible implicitly extends visibility to it: an
// attribute can never be editable without being visible.
//
// An attribute no role (and no override) references at all is hidden.
// Granting by default would widen access on a compliance system, so
// resolution fails toward least privilege.
//
// IDs that do not correspond to any known definition are dropped.
// The result depends only on the inputs; Resolve keeps no state and is
// safe for concurrent use.
func Resolve(requester models.Requester, defs []models.AttributeDefinition) Result {
	known := make(Set, len(defs))
	for _, def := range defs {
		known[def.ID] = true
	}

	if requester.Superadmin {
		all := make(Set, len(defs))
		for _, def := range defs {
			all[def.ID] = true
		}
		return Result{Visible: all, Editable: copySet(all)}
	}

	res := Result{Visible: Set{}, Editable: Set{}}

	if requester.Override != nil {
		addKnown(res.Visible, requester.Override.Visible, known)
		addKnown(res.Editable, requester.Override.Editable, known)
	} else {
		for _, role := range requester.Roles {
			addKnown(res.Visible, role.VisibleAttributes, known)
			addKnown(res.Editable, role.EditableAttributes, known)
		}
	}

	// Editable wins over a missing visible grant.
	for id := range res.Editable {
		res.Visible[id] = true
	}
	return res
}

func addKnown(dst Set, ids []uuid.UUID, known Set) {
	for _, id := range ids {
		if known[id] {
			dst[id] = true
		}
	}
}

func copySet(s Set) Set {
	out := make(Set, len(s))
	for id := range s {
		out[id] = true
	}
	return out
}
