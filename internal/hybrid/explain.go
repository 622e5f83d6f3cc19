package hybrid

import (
	"fmt"
	"strings"

	"github.com/veridocs/veridocs/internal/model"
)

// explainMatch describes which backends produced the candidate. At least one
// raw score must be positive; a candidate with neither cannot exist after a
// valid merge.
func explainMatch(lexicalScore, semanticScore float64) (string, error) {
	switch {
	case lexicalScore > 0 && semanticScore > 0:
		return fmt.Sprintf("Matched lexical and semantic retrieval (lexical_score=%.6f, semantic_score=%.6f).", lexicalScore, semanticScore), nil
	case lexicalScore > 0:
		return fmt.Sprintf("Matched lexical retrieval (lexical_score=%.6f).", lexicalScore), nil
	case semanticScore > 0:
		return fmt.Sprintf("Matched semantic retrieval (semantic_score=%.6f).", semanticScore), nil
	}
	return "", &model.ContractError{Field: "explanation", Msg: "no positive match score"}
}

// explainAllowed names the matched rule ids and reasons behind an ALLOW.
func explainAllowed(decision model.AccessDecision) (string, error) {
	if len(decision.MatchedRuleIDs) == 0 {
		return "", &model.ContractError{Field: "matched_rule_ids", Msg: "empty for ALLOW"}
	}
	reasons := model.ReasonRuleMatch
	if len(decision.Reasons) > 0 {
		reasons = strings.Join(decision.Reasons, ", ")
	}
	return fmt.Sprintf("Access decision ALLOW via %s; matched_rule_ids=%v.", reasons, decision.MatchedRuleIDs), nil
}

// explainRanked states the blending formula with the concrete values.
func explainRanked(lexicalNorm, semanticNorm, finalScore float64) string {
	return fmt.Sprintf("Ranked by hybrid score = 0.5*lexical_norm + 0.5*semantic_norm (%.6f = 0.5*%.6f + 0.5*%.6f).", finalScore, lexicalNorm, semanticNorm)
}
