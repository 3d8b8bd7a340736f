// Package gateway implements the speaker-verifying recognition gateway:
// a listener that accepts audio streams over the line-oriented event
// protocol, buffers and verifies them against enrolled voiceprints, and
// either relays the audio to the real recognizer and returns its
// transcript or answers with an empty transcript so the pipeline stops
// silently.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/haivivi/voicegate/pkg/voiceprint"
)

// ASRMax bounds the audio forwarded upstream per session. Recognition
// quality plateaus after the first few seconds of a wake-word command,
// so anything past this is cost without benefit.
const ASRMax = 3 * time.Second

// ErrRelay indicates an upstream connection or transcription failure.
// Sessions convert it into an empty transcript instead of propagating it
// to the inbound caller.
var ErrRelay = errors.New("gateway: upstream relay failed")

// Verifier scores a frozen audio buffer against the enrolled speakers.
// Satisfied by *voiceprint.Orchestrator.
type Verifier interface {
	Verify(ctx context.Context, buf []byte) (voiceprint.Result, error)

	// MaxVerify is the buffered duration at which a session starts its
	// early background verification.
	MaxVerify() time.Duration
}

// Transcriber turns audio into text via the upstream recognizer.
// Satisfied by *Relay.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, language string) (string, error)
}
