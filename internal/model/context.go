// Package model defines the domain types shared across the retrieval core:
// authority contexts, access rules and decisions, scored chunks, audit
// events, and the wire-level search response.
package model

// AuthorityContext describes the requester at query time. It is created at
// the request boundary, passed by value through the core, and never mutated.
type AuthorityContext struct {
	User                  string   `json:"user"`
	Roles                 []string `json:"roles"`
	ProjectCodes          []string `json:"project_codes"`
	Discipline            string   `json:"discipline"`
	Classification        string   `json:"classification,omitempty"`
	CommercialSensitivity string   `json:"commercial_sensitivity,omitempty"`
}

// HasRole reports whether the context carries the given role.
func (c AuthorityContext) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasProjectCode reports whether the context carries the given project code.
func (c AuthorityContext) HasProjectCode(code string) bool {
	for _, p := range c.ProjectCodes {
		if p == code {
			return true
		}
	}
	return false
}

// Snapshot copies the context into a plain map for embedding into audit
// event details. Slices are copied so later context reuse cannot alias the
// recorded event.
func (c AuthorityContext) Snapshot() map[string]any {
	roles := make([]string, len(c.Roles))
	copy(roles, c.Roles)
	projects := make([]string, len(c.ProjectCodes))
	copy(projects, c.ProjectCodes)

	return map[string]any{
		"user":                   c.User,
		"roles":                  roles,
		"project_codes":          projects,
		"discipline":             c.Discipline,
		"classification":         c.Classification,
		"commercial_sensitivity": c.CommercialSensitivity,
	}
}
