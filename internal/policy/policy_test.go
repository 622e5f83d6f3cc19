package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veridocs/veridocs/internal/model"
)

func strPtr(s string) *string { return &s }

func viewerCtx() model.AuthorityContext {
	return model.AuthorityContext{
		User:                  "alice",
		Roles:                 []string{"viewer"},
		ProjectCodes:          []string{"P2"},
		Discipline:            "process",
		Classification:        "internal",
		CommercialSensitivity: "low",
	}
}

func TestMatch_AllWildcardsWithRole(t *testing.T) {
	rule := model.AccessRule{AllowedRoles: []string{"viewer"}}
	ok, reason := Match(rule, viewerCtx())
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestMatch_FirstFailureOrder(t *testing.T) {
	tests := []struct {
		name   string
		rule   model.AccessRule
		reason string
	}{
		{
			name:   "project checked first",
			rule:   model.AccessRule{ProjectCode: strPtr("P0"), Discipline: strPtr("wrong"), AllowedRoles: nil},
			reason: model.ReasonProjectMismatch,
		},
		{
			name:   "discipline second",
			rule:   model.AccessRule{ProjectCode: strPtr("P2"), Discipline: strPtr("piping"), AllowedRoles: nil},
			reason: model.ReasonDisciplineMismatch,
		},
		{
			name:   "classification third",
			rule:   model.AccessRule{Discipline: strPtr("process"), Classification: strPtr("secret"), AllowedRoles: nil},
			reason: model.ReasonClassificationMismatch,
		},
		{
			name:   "commercial sensitivity fourth",
			rule:   model.AccessRule{Classification: strPtr("internal"), CommercialSensitivity: strPtr("high"), AllowedRoles: nil},
			reason: model.ReasonCommercialMismatch,
		},
		{
			name:   "empty allowed_roles never matches",
			rule:   model.AccessRule{CommercialSensitivity: strPtr("low")},
			reason: model.ReasonAllowedRolesEmpty,
		},
		{
			name:   "role intersection required",
			rule:   model.AccessRule{AllowedRoles: []string{"admin"}},
			reason: model.ReasonRoleMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := Match(tt.rule, viewerCtx())
			assert.False(t, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestMatch_AllConstraintsSatisfied(t *testing.T) {
	rule := model.AccessRule{
		ProjectCode:           strPtr("P2"),
		Discipline:            strPtr("process"),
		Classification:        strPtr("internal"),
		CommercialSensitivity: strPtr("low"),
		AllowedRoles:          []string{"admin", "viewer"},
	}
	ok, reason := Match(rule, viewerCtx())
	assert.True(t, ok)
	assert.Empty(t, reason)
}

// A present rule field against a missing context field must mismatch, not
// match: the predicate fails closed.
func TestMatch_MissingContextFieldFailsClosed(t *testing.T) {
	ctx := model.AuthorityContext{User: "bob", Roles: []string{"viewer"}}

	ok, reason := Match(model.AccessRule{Classification: strPtr("internal"), AllowedRoles: []string{"viewer"}}, ctx)
	assert.False(t, ok)
	assert.Equal(t, model.ReasonClassificationMismatch, reason)

	ok, reason = Match(model.AccessRule{ProjectCode: strPtr("P2"), AllowedRoles: []string{"viewer"}}, ctx)
	assert.False(t, ok)
	assert.Equal(t, model.ReasonProjectMismatch, reason)
}

func TestMatch_MultipleRolesIntersect(t *testing.T) {
	ctx := viewerCtx()
	ctx.Roles = []string{"viewer", "engineer"}

	ok, _ := Match(model.AccessRule{AllowedRoles: []string{"engineer", "admin"}}, ctx)
	assert.True(t, ok)
}

func TestMatch_NoRolesInContext(t *testing.T) {
	ctx := viewerCtx()
	ctx.Roles = nil

	ok, reason := Match(model.AccessRule{AllowedRoles: []string{"viewer"}}, ctx)
	assert.False(t, ok)
	assert.Equal(t, model.ReasonRoleMismatch, reason)
}
