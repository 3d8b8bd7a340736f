// Package voiceprint verifies speaker identity against enrolled voiceprints.
//
// # Architecture
//
// The pipeline has four pieces:
//
//  1. Model: PCM16 16kHz mono audio → fixed-size embedding vector
//  2. Store: enrolled speaker name → stored embedding vector(s)
//  3. Gateway: serialized, pooled access to the one shared Model
//  4. Orchestrator: multi-pass verification with early exit
//
// The Model is a black box; typical deployments run an ECAPA-TDNN or
// ERes2Net speaker model producing 192-dimensional embeddings. Similarity
// is plain cosine similarity against every enrolled vector, best match
// wins, match when the best score reaches the configured threshold.
package voiceprint

import "errors"

// EmbeddingDim is the vector length produced by the standard speaker
// models and expected in stored voiceprint files.
const EmbeddingDim = 192

// ErrModel indicates a failed embedding invocation (malformed input
// length, resource failure). Verification passes that hit it are treated
// as non-matching; remaining passes still run.
var ErrModel = errors.New("voiceprint: model error")

// Model extracts speaker embedding vectors from raw audio.
//
// The input audio must be PCM16 signed little-endian, 16kHz, mono.
// The output is a dense float32 vector whose dimensionality is
// returned by Dimension().
//
// Implementations need not be safe for concurrent use: the [Gateway]
// guarantees at most one in-flight Extract per process.
type Model interface {
	// Extract computes a speaker embedding from raw PCM16 audio.
	// Errors wrap ErrModel.
	Extract(audio []byte) ([]float32, error)

	// Dimension returns the dimensionality of the embedding vectors
	// produced by Extract (e.g., 192).
	Dimension() int

	// Close releases any resources held by the model.
	Close() error
}

// Result is the outcome of one verification run.
type Result struct {
	// Matched reports whether any enrolled speaker reached the threshold.
	Matched bool

	// Speaker is the best-matching enrolled speaker name. Empty when the
	// store is empty or no embedding could be computed.
	Speaker string

	// Score is the best cosine similarity seen, in [-1, 1].
	Score float64

	// Pass is the 1-based verification pass that produced the final
	// score (see Orchestrator).
	Pass int
}
