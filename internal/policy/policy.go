// Package policy implements the pure access-rule predicate. It has no I/O
// and no dependencies beyond the domain model; the authority engine layers
// catalog access and audit emission on top.
package policy

import "github.com/veridocs/veridocs/internal/model"

// Match evaluates a single rule against a context and returns whether it
// matched plus the first-failure mismatch reason (empty when matched).
//
// Constraints are checked in a fixed order so the reported reason is
// deterministic: project_code, discipline, classification,
// commercial_sensitivity, then the role-set constraint. Nil rule fields are
// wildcards. A present rule field against a missing context field is a
// mismatch (fail-closed).
func Match(rule model.AccessRule, ctx model.AuthorityContext) (bool, string) {
	if rule.ProjectCode != nil && *rule.ProjectCode != "" && !ctx.HasProjectCode(*rule.ProjectCode) {
		return false, model.ReasonProjectMismatch
	}
	if rule.Discipline != nil && *rule.Discipline != "" && *rule.Discipline != ctx.Discipline {
		return false, model.ReasonDisciplineMismatch
	}
	if rule.Classification != nil && *rule.Classification != "" && *rule.Classification != ctx.Classification {
		return false, model.ReasonClassificationMismatch
	}
	if rule.CommercialSensitivity != nil && *rule.CommercialSensitivity != "" && *rule.CommercialSensitivity != ctx.CommercialSensitivity {
		return false, model.ReasonCommercialMismatch
	}
	if len(rule.AllowedRoles) == 0 {
		return false, model.ReasonAllowedRolesEmpty
	}
	if !rolesIntersect(rule.AllowedRoles, ctx.Roles) {
		return false, model.ReasonRoleMismatch
	}
	return true, ""
}

func rolesIntersect(allowed, held []string) bool {
	for _, a := range allowed {
		for _, h := range held {
			if a == h {
				return true
			}
		}
	}
	return false
}
