package voiceprint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/haivivi/voicegate/pkg/embcache"
)

// Gateway serializes access to the one shared embedding Model.
//
// The underlying inference resource (a single accelerator context, a
// single subprocess) does not tolerate concurrent invocations, so a
// capacity-1 permit guards Extract regardless of how many sessions are
// active. Invocations run on a small fixed worker pool, never on the
// caller's goroutine, so a slow model stalls only the sessions waiting
// for embeddings and not protocol I/O.
//
// An optional cache short-circuits repeat extractions of identical audio.
type Gateway struct {
	model  Model
	cache  embcache.Cache
	logger *slog.Logger

	permit  chan struct{}
	jobs    chan embedJob
	workers int

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

type embedJob struct {
	ctx   context.Context
	audio []byte
	resp  chan embedResult
}

type embedResult struct {
	embedding []float32
	err       error
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithCache attaches an embedding cache consulted before inference.
func WithCache(c embcache.Cache) GatewayOption {
	return func(g *Gateway) { g.cache = c }
}

// WithWorkers sets the worker pool size (default 2). The pool bounds how
// many embedding requests can be staged at once; the permit still allows
// only one model invocation at a time.
func WithWorkers(n int) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			g.workers = n
		}
	}
}

// WithGatewayLogger sets the logger. Default: slog.Default().
func WithGatewayLogger(l *slog.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = l }
}

// NewGateway creates a Gateway around model and starts its workers.
func NewGateway(model Model, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		model:   model,
		logger:  slog.Default(),
		permit:  make(chan struct{}, 1),
		jobs:    make(chan embedJob),
		done:    make(chan struct{}),
		workers: 2,
	}
	for _, opt := range opts {
		opt(g)
	}
	for range g.workers {
		g.wg.Add(1)
		go g.worker()
	}
	return g
}

// Embed computes the speaker embedding for the given PCM16 audio. It
// blocks until a worker picks up the job and the shared permit is free,
// or ctx is done. Errors from the model wrap ErrModel.
func (g *Gateway) Embed(ctx context.Context, audio []byte) ([]float32, error) {
	if len(audio) == 0 || len(audio)%2 != 0 {
		return nil, fmt.Errorf("%w: bad audio length %d", ErrModel, len(audio))
	}

	job := embedJob{ctx: ctx, audio: audio, resp: make(chan embedResult, 1)}
	select {
	case g.jobs <- job:
	case <-g.done:
		return nil, fmt.Errorf("%w: gateway closed", ErrModel)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-job.resp:
		return res.embedding, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *Gateway) worker() {
	defer g.wg.Done()
	for {
		select {
		case job := <-g.jobs:
			job.resp <- g.run(job.ctx, job.audio)
		case <-g.done:
			return
		}
	}
}

// run performs one embedding: cache probe, permit, model, cache fill.
// The permit is released unconditionally, including on model failure.
func (g *Gateway) run(ctx context.Context, audio []byte) embedResult {
	var key string
	if g.cache != nil {
		key = embcache.Key(audio)
		if emb, err := g.cache.Get(ctx, key); err == nil {
			return embedResult{embedding: emb}
		} else if !errors.Is(err, embcache.ErrNotFound) {
			g.logger.Warn("embedding cache read failed", "err", err)
		}
	}

	select {
	case g.permit <- struct{}{}:
	case <-g.done:
		return embedResult{err: fmt.Errorf("%w: gateway closed", ErrModel)}
	case <-ctx.Done():
		return embedResult{err: ctx.Err()}
	}
	emb, err := g.model.Extract(audio)
	<-g.permit

	if err != nil {
		if !errors.Is(err, ErrModel) {
			err = fmt.Errorf("%w: %v", ErrModel, err)
		}
		return embedResult{err: err}
	}
	if g.cache != nil {
		if err := g.cache.Put(ctx, key, emb); err != nil {
			g.logger.Warn("embedding cache write failed", "err", err)
		}
	}
	return embedResult{embedding: emb}
}

// Dimension returns the model's embedding dimensionality.
func (g *Gateway) Dimension() int { return g.model.Dimension() }

// Close stops the workers and closes the model. In-flight embeddings
// finish first; subsequent Embed calls fail.
func (g *Gateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	close(g.done)
	g.mu.Unlock()

	g.wg.Wait()
	return g.model.Close()
}
