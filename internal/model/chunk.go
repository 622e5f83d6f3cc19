package model

// ScoredChunk is one backend hit before merging. Exactly one of
// LexicalScore/SemanticScore is positive depending on the source backend.
// Identity is ChunkID; DocumentID, ArtefactID and Content may be absent and
// are hydrated from the catalog later.
type ScoredChunk struct {
	ChunkID       string
	DocumentID    string
	ArtefactID    string
	Content       string
	LexicalScore  float64
	SemanticScore float64
}

// MergedCandidate is a chunk after merging both backend result lists.
// The orchestrator owns candidates for the lifetime of one query.
type MergedCandidate struct {
	ChunkID       string
	DocumentID    string
	ArtefactID    string
	Content       string
	LexicalScore  float64
	SemanticScore float64
	LexicalNorm   float64
	SemanticNorm  float64
	FinalScore    float64
}
