package permissions

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/your-org/idgate/internal/models"
)

func defs(ids ...uuid.UUID) []models.AttributeDefinition {
	out := make([]models.AttributeDefinition, 0, len(ids))
	for i, id := range ids {
		out = append(out, models.AttributeDefinition{ID: id, Name: string(rune('a' + i))})
	}
	return out
}

func TestResolveRoleUnion(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	requester := models.Requester{
		Roles: []models.Role{
			{VisibleAttributes: []uuid.UUID{a}},
			{VisibleAttributes: []uuid.UUID{b}, EditableAttributes: []uuid.UUID{c}},
		},
	}

	res := Resolve(requester, defs(a, b, c))

	assert.True(t, res.Visible.Contains(a))
	assert.True(t, res.Visible.Contains(b))
	assert.True(t, res.Visible.Contains(c), "editable implies visible")
	assert.False(t, res.Editable.Contains(a))
	assert.False(t, res.Editable.Contains(b))
	assert.True(t, res.Editable.Contains(c))
}

func TestResolveEditableSubsetOfVisible(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	requester := models.Requester{
		Roles: []models.Role{
			{VisibleAttributes: []uuid.UUID{a}, EditableAttributes: []uuid.UUID{b}},
		},
	}

	res := Resolve(requester, defs(a, b))
	for id := range res.Editable {
		assert.True(t, res.Visible.Contains(id), "editable attribute %s must be visible", id)
	}
}

func TestResolveOverrideReplacesRoles(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	requester := models.Requester{
		Roles: []models.Role{
			{VisibleAttributes: []uuid.UUID{a, b}, EditableAttributes: []uuid.UUID{a}},
		},
		Override: &models.FieldOverride{
			Visible:  []uuid.UUID{c},
			Editable: []uuid.UUID{c},
		},
	}

	res := Resolve(requester, defs(a, b, c))

	assert.False(t, res.Visible.Contains(a), "role grants are ignored under an override")
	assert.False(t, res.Visible.Contains(b))
	assert.True(t, res.Visible.Contains(c))
	assert.True(t, res.Editable.Contains(c))
}

func TestResolveEmptyOverrideHidesEverything(t *testing.T) {
	a := uuid.New()
	requester := models.Requester{
		Roles:    []models.Role{{VisibleAttributes: []uuid.UUID{a}}},
		Override: &models.FieldOverride{},
	}

	res := Resolve(requester, defs(a))

	assert.Empty(t, res.Visible)
	assert.Empty(t, res.Editable)
}

func TestResolveOverrideEditableExtendsVisible(t *testing.T) {
	a := uuid.New()
	requester := models.Requester{
		Override: &models.FieldOverride{Editable: []uuid.UUID{a}},
	}

	res := Resolve(requester, defs(a))
	assert.True(t, res.Visible.Contains(a))
	assert.True(t, res.Editable.Contains(a))
}

func TestResolveSuperadminSeesAll(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	requester := models.Requester{
		Superadmin: true,
		// Even an explicit empty override must not restrict a superadmin.
		Override: &models.FieldOverride{},
	}

	res := Resolve(requester, defs(a, b))

	assert.True(t, res.Visible.Contains(a))
	assert.True(t, res.Visible.Contains(b))
	assert.True(t, res.Editable.Contains(a))
	assert.True(t, res.Editable.Contains(b))
}

func TestResolveUnreferencedAttributeHidden(t *testing.T) {
	a, hidden := uuid.New(), uuid.New()
	requester := models.Requester{
		Roles: []models.Role{{VisibleAttributes: []uuid.UUID{a}}},
	}

	res := Resolve(requester, defs(a, hidden))
	assert.False(t, res.Visible.Contains(hidden))
}

func TestResolveDropsUnknownIDs(t *testing.T) {
	a := uuid.New()
	stale := uuid.New() // not among the definitions
	requester := models.Requester{
		Roles: []models.Role{{VisibleAttributes: []uuid.UUID{a, stale}}},
	}

	res := Resolve(requester, defs(a))
	assert.True(t, res.Visible.Contains(a))
	assert.False(t, res.Visible.Contains(stale))
	assert.Len(t, res.Visible, 1)
}

func TestResolveNoRolesNoAccess(t *testing.T) {
	res := Resolve(models.Requester{}, defs(uuid.New()))
	assert.Empty(t, res.Visible)
	assert.Empty(t, res.Editable)
}

func TestSetIDsFollowDefinitionOrder(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	all := defs(a, b, c)
	s := Set{c: true, a: true}

	assert.Equal(t, []uuid.UUID{a, c}, s.IDs(all))
}
