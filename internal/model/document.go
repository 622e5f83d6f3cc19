package model

import "strings"

// AuthorityLevel is the categorical trust tier of a document.
// Stored uppercase; comparison is case-insensitive via Normalize.
type AuthorityLevel string

const (
	LevelAuthoritative AuthorityLevel = "AUTHORITATIVE"
	LevelDraft         AuthorityLevel = "DRAFT"
	LevelReference     AuthorityLevel = "REFERENCE"
	LevelExternal      AuthorityLevel = "EXTERNAL"
)

// NormalizeAuthorityLevel uppercases a stored level string.
func NormalizeAuthorityLevel(s string) AuthorityLevel {
	return AuthorityLevel(strings.ToUpper(s))
}

// Valid reports whether the level is in the allowed vocabulary.
// Anything else is unknown authority and denies access.
func (l AuthorityLevel) Valid() bool {
	switch l {
	case LevelAuthoritative, LevelDraft, LevelReference, LevelExternal:
		return true
	}
	return false
}

// AccessRule is a conjunction of attribute constraints plus a role-set
// constraint. Nil attribute fields are wildcards. AllowedRoles requires a
// non-empty intersection with the context roles; a rule with no allowed
// roles can never match.
type AccessRule struct {
	RuleID                *int64   `json:"rule_id"`
	ProjectCode           *string  `json:"project_code,omitempty"`
	Discipline            *string  `json:"discipline,omitempty"`
	Classification        *string  `json:"classification,omitempty"`
	CommercialSensitivity *string  `json:"commercial_sensitivity,omitempty"`
	AllowedRoles          []string `json:"allowed_roles"`
}

// Document is the catalog view consumed by the authority engine: identity,
// trust tier, and the ordered access rules. Zero rules means deny.
type Document struct {
	ID             string
	AuthorityLevel string
	Rules          []AccessRule
}

// CatalogRow is one row of the documents ⋈ access_rules left join. Rule
// columns are nil for documents without rules.
type CatalogRow struct {
	DocumentID         string
	AuthorityLevel     string
	RuleID             *int64
	RuleProjectCode    *string
	RuleDiscipline     *string
	RuleClassification *string
	RuleCommercialSens *string
	RuleAllowedRoles   []string
}

// ChunkLineage is the chunk → artefact → document resolution used for
// hydration. Content and DocumentID must be present for a chunk to be
// returned in a response.
type ChunkLineage struct {
	ChunkID    string
	Content    string
	ArtefactID string
	DocumentID string
}
