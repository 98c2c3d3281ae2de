package rag

import (
	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/scoring"
)

// Confidence model.
const (
	BaselineConfidence = 0.75

	// SynthesisThreshold is the top score below which results are weak.
	SynthesisThreshold = 0.55
	// ShortAnswerLength is the answer length below which confidence drops.
	ShortAnswerLength = 80

	weakResultPenalty  = 0.2
	shortAnswerPenalty = 0.15
	noContextPenalty   = 0.1
	lexicalOnlyPenalty = 0.1
)

// ScoreConfidence estimates how far a caller should trust an answer.
// answer is the draft before grounding, so missing source language is
// still visible.
func ScoreConfidence(answer string, results []core.ScoredResult) float64 {
	if len(results) == 0 {
		return 0
	}
	confidence := BaselineConfidence
	if TopScore(results) < SynthesisThreshold {
		confidence -= weakResultPenalty
	}
	if len([]rune(answer)) < ShortAnswerLength {
		confidence -= shortAnswerPenalty
	}
	if !ReferencesSource(answer) {
		confidence -= noContextPenalty
	}
	if LexicalOnly(results) {
		confidence -= lexicalOnlyPenalty
	}
	return max(confidence, 0)
}

// TopScore returns the best combined score among results.
func TopScore(results []core.ScoredResult) float64 {
	var top float64
	for _, r := range results {
		top = max(top, r.Score)
	}
	return top
}

// LexicalOnly reports whether no result was scored with embeddings.
func LexicalOnly(results []core.ScoredResult) bool {
	for _, r := range results {
		if r.Metadata[core.MetaStrategy] == scoring.EmbeddingStrategyName {
			return false
		}
	}
	return len(results) > 0
}
