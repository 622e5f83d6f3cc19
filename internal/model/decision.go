package model

// Decision outcome strings used in responses and audit events.
const (
	DecisionAllow = "ALLOW"
	DecisionDeny  = "DENY"
)

// Structured reason codes emitted by the authority engine and policy rules.
const (
	ReasonDocumentNotFound = "document_not_found"
	ReasonUnknownAuthority = "unknown_authority"
	ReasonNoAccessRules    = "no_access_rules"
	ReasonRuleMatch        = "rule_match"
	ReasonNoRuleMatch      = "no_rule_match"

	ReasonProjectMismatch        = "project_mismatch"
	ReasonDisciplineMismatch     = "discipline_mismatch"
	ReasonClassificationMismatch = "classification_mismatch"
	ReasonCommercialMismatch     = "commercial_sensitivity_mismatch"
	ReasonAllowedRolesEmpty      = "allowed_roles_empty"
	ReasonRoleMismatch           = "role_mismatch"
)

// AccessDecision is the authority engine's verdict for one (context,
// document) pair.
//
// Invariants: Allowed implies MatchedRuleIDs is non-empty; denied implies
// MatchedRuleIDs is empty and Reasons is non-empty.
type AccessDecision struct {
	DocumentID     string   `json:"document_id"`
	Allowed        bool     `json:"allowed"`
	Reasons        []string `json:"reasons"`
	MatchedRuleIDs []int64  `json:"matched_rule_ids"`
}

// Outcome returns "ALLOW" or "DENY" for audit and response rendering.
func (d AccessDecision) Outcome() string {
	if d.Allowed {
		return DecisionAllow
	}
	return DecisionDeny
}
