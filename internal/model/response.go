package model

// ScoreSet carries the raw per-backend scores and the blended final score
// for one result.
type ScoreSet struct {
	Lexical  float64 `json:"lexical"`
	Semantic float64 `json:"semantic"`
	Final    float64 `json:"final"`
}

// AuthorityInfo is the access verdict attached to a returned result.
// Decision is always "ALLOW" in responses; denied chunks are dropped.
type AuthorityInfo struct {
	Decision       string  `json:"decision"`
	MatchedRuleIDs []int64 `json:"matched_rule_ids"`
}

// Explanation is the machine-readable three-sentence account of why a
// result matched, why access was permitted, and why it ranked where it did.
type Explanation struct {
	WhyMatched string `json:"why_matched"`
	WhyAllowed string `json:"why_allowed"`
	WhyRanked  string `json:"why_ranked"`
}

// SearchResult is one ranked, authorized chunk in a response.
type SearchResult struct {
	DocumentID  string        `json:"document_id"`
	ChunkID     string        `json:"chunk_id"`
	Snippet     string        `json:"snippet"`
	Scores      ScoreSet      `json:"scores"`
	Authority   AuthorityInfo `json:"authority"`
	Explanation Explanation   `json:"explanation"`
}

// Response is the stable wire contract for one query. Results are ordered
// by final score descending, chunk_id ascending on ties.
type Response struct {
	QueryID   string         `json:"query_id"`
	Timestamp string         `json:"timestamp"`
	Query     string         `json:"query"`
	Results   []SearchResult `json:"results"`
}
