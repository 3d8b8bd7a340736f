package voiceprint

import (
	"context"
	"log/slog"
	"time"

	"github.com/haivivi/voicegate/pkg/audio/segment"
)

// Embedder computes speaker embeddings. Satisfied by *Gateway.
type Embedder interface {
	Embed(ctx context.Context, audio []byte) ([]float32, error)
}

// Config tunes the verification strategy.
type Config struct {
	// Threshold is the minimum cosine similarity for a match.
	Threshold float64

	// MaxVerify is the audio prefix length for the first-prefix pass and
	// the early-verification trigger used by sessions.
	MaxVerify time.Duration

	// Window and Step shape the sliding-window pass. The pass only runs
	// on buffers longer than Window.
	Window time.Duration
	Step   time.Duration

	// Segment configures the speech-segment pass.
	Segment segment.Config

	// Logger for per-pass diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the standard strategy: threshold 0.45, 4 s prefix,
// 3 s window sliding by 1.5 s.
func DefaultConfig() Config {
	return Config{
		Threshold: 0.45,
		MaxVerify: 4 * time.Second,
		Window:    3 * time.Second,
		Step:      1500 * time.Millisecond,
		Segment:   segment.DefaultConfig(),
	}
}

// Orchestrator runs the multi-pass verification strategy: up to three
// passes in a fixed order, each a (segment selection, embedding,
// comparison) attempt, stopping at the first pass that reaches the
// threshold so the cheap passes spare the expensive ones.
//
//	Pass 1: the energy-isolated speech segment
//	Pass 2: the first MaxVerify of raw audio
//	Pass 3: a Window-long window slid across the whole buffer
//
// A failed embedding degrades its pass to non-matching; later passes
// still run. Safe for concurrent use across sessions.
type Orchestrator struct {
	embedder Embedder
	store    *Store
	cfg      Config
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator. Zero fields of cfg are filled
// from DefaultConfig.
func NewOrchestrator(embedder Embedder, store *Store, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.Threshold == 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.MaxVerify == 0 {
		cfg.MaxVerify = def.MaxVerify
	}
	if cfg.Window == 0 {
		cfg.Window = def.Window
	}
	if cfg.Step == 0 {
		cfg.Step = def.Step
	}
	if cfg.Segment == (segment.Config{}) {
		cfg.Segment = def.Segment
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{embedder: embedder, store: store, cfg: cfg, logger: logger}
}

// Threshold returns the configured match threshold.
func (o *Orchestrator) Threshold() float64 { return o.cfg.Threshold }

// MaxVerify returns the early-verification trigger duration.
func (o *Orchestrator) MaxVerify() time.Duration { return o.cfg.MaxVerify }

// Verify scores the frozen buffer against the enrolled voiceprints.
// The buffer must be PCM16 16 kHz mono and is never mutated. The returned
// error is non-nil only when ctx is done; model failures degrade passes
// instead of failing the run.
func (o *Orchestrator) Verify(ctx context.Context, buf []byte) (Result, error) {
	format := o.cfg.Segment.Format
	best := Result{Score: -1}

	// Pass 1: loudest speech segment.
	seg := o.cfg.Segment.Locate(buf)
	if seg.Samples() > 0 {
		if done, err := o.scorePass(ctx, 1, seg.Slice(buf), &best); done || err != nil {
			return best, err
		}
	}

	// Pass 2: raw prefix, clamped to the buffer.
	prefix := format.TrimDuration(buf, o.cfg.MaxVerify)
	if len(prefix) > 0 {
		if done, err := o.scorePass(ctx, 2, prefix, &best); done || err != nil {
			return best, err
		}
	}

	// Pass 3: sliding window, only for buffers longer than the window.
	window := format.BytesInDuration(o.cfg.Window)
	step := format.BytesInDuration(o.cfg.Step)
	if len(buf) > window && step > 0 {
		for start := 0; ; start += step {
			end := start + window
			last := false
			if end >= len(buf) {
				// Clamp the final window to the buffer end.
				start, end = len(buf)-window, len(buf)
				last = true
			}
			if done, err := o.scorePass(ctx, 3, buf[start:end], &best); done || err != nil {
				return best, err
			}
			if last {
				break
			}
		}
	}

	return best, nil
}

// scorePass embeds one audio slice, compares it to every enrolled
// speaker, and folds the outcome into best. done is true when the
// threshold has been reached and remaining passes can be skipped.
func (o *Orchestrator) scorePass(ctx context.Context, pass int, audio []byte, best *Result) (done bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	emb, err := o.embedder.Embed(ctx, audio)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		// Treat this attempt as the lowest possible score; other passes
		// still get their chance.
		o.logger.Warn("embedding failed, pass degraded", "pass", pass, "err", err)
		return false, nil
	}

	speaker, score, ok := o.store.Best(emb)
	if !ok {
		return false, nil
	}
	if score > best.Score {
		best.Score = score
		best.Speaker = speaker
		best.Pass = pass
	}
	if score >= o.cfg.Threshold {
		best.Matched = true
		best.Speaker = speaker
		best.Score = score
		best.Pass = pass
		return true, nil
	}
	return false, nil
}
