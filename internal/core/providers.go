package core

import "context"

// DialogueProvider turns a prompt envelope into a structured utterance.
// The call is the only long-blocking operation in a step and must honor
// context cancellation.
type DialogueProvider interface {
	Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error)
}

// SimilarityFunc scores two strings in [0,1]. The default is a deterministic
// lexical metric; an embedding-backed provider can be swapped in behind the
// same contract.
type SimilarityFunc func(a, b string) float64
