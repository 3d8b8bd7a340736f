package voiceprint

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
)

// scriptEmbedder dispatches each Embed call to fn with a 0-based call
// index, so tests can script per-pass outcomes.
type scriptEmbedder struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, audio []byte) ([]float32, error)
}

func (e *scriptEmbedder) Embed(_ context.Context, audio []byte) ([]float32, error) {
	e.mu.Lock()
	call := e.calls
	e.calls++
	e.mu.Unlock()
	return e.fn(call, audio)
}

func (e *scriptEmbedder) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func axisVec(axis int) []float32 {
	vec := make([]float32, EmbeddingDim)
	vec[axis] = 1
	return vec
}

func singleSpeakerStore() *Store {
	return &Store{speakers: map[string][][]float32{"alice": {axisVec(0)}}}
}

func silence(d time.Duration) []byte {
	return make([]byte, pcm.L16Mono16K.BytesInDuration(d))
}

func testOrchestrator(e Embedder) *Orchestrator {
	cfg := DefaultConfig()
	cfg.Logger = discardLogger()
	return NewOrchestrator(e, singleSpeakerStore(), cfg)
}

func TestVerifyFirstPassMatch(t *testing.T) {
	e := &scriptEmbedder{fn: func(int, []byte) ([]float32, error) {
		return axisVec(0), nil
	}}
	res, err := testOrchestrator(e).Verify(context.Background(), silence(6*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Matched || res.Speaker != "alice" || res.Pass != 1 {
		t.Fatalf("result = %+v", res)
	}
	if res.Score < 0.999 {
		t.Errorf("score = %f, want ~1.0", res.Score)
	}
	// A matching first pass must skip the remaining passes.
	if e.count() != 1 {
		t.Errorf("embed calls = %d, want 1", e.count())
	}
}

func TestVerifyNoMatchRunsAllPasses(t *testing.T) {
	e := &scriptEmbedder{fn: func(int, []byte) ([]float32, error) {
		return axisVec(1), nil
	}}
	res, err := testOrchestrator(e).Verify(context.Background(), silence(6*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if res.Matched {
		t.Fatalf("result = %+v, want no match", res)
	}
	// 6 s of audio: speech segment, 4 s prefix, then windows at 0 s,
	// 1.5 s, and one clamped to the end.
	if e.count() != 5 {
		t.Errorf("embed calls = %d, want 5", e.count())
	}
}

func TestVerifyShortBufferSkipsWindowPass(t *testing.T) {
	e := &scriptEmbedder{fn: func(int, []byte) ([]float32, error) {
		return axisVec(1), nil
	}}
	if _, err := testOrchestrator(e).Verify(context.Background(), silence(2*time.Second)); err != nil {
		t.Fatal(err)
	}
	// 2 s is shorter than the 3 s window, so only passes 1 and 2 run.
	if e.count() != 2 {
		t.Errorf("embed calls = %d, want 2", e.count())
	}
}

func TestVerifyWindowSlicesAreWindowSized(t *testing.T) {
	window := pcm.L16Mono16K.BytesInDuration(3 * time.Second)
	var windowLens []int
	e := &scriptEmbedder{}
	e.fn = func(call int, audio []byte) ([]float32, error) {
		if call >= 2 {
			windowLens = append(windowLens, len(audio))
		}
		return axisVec(1), nil
	}
	if _, err := testOrchestrator(e).Verify(context.Background(), silence(5*time.Second)); err != nil {
		t.Fatal(err)
	}
	// 5 s: windows at 0 s and 1.5 s, plus the clamped final window.
	if len(windowLens) != 3 {
		t.Fatalf("window passes = %d, want 3", len(windowLens))
	}
	for i, n := range windowLens {
		if n != window {
			t.Errorf("window %d: %d bytes, want %d", i, n, window)
		}
	}
}

func TestVerifyDegradedPassFallsThrough(t *testing.T) {
	e := &scriptEmbedder{fn: func(call int, _ []byte) ([]float32, error) {
		if call == 0 {
			return nil, errors.New("model crashed")
		}
		return axisVec(0), nil
	}}
	res, err := testOrchestrator(e).Verify(context.Background(), silence(6*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	// The failed first pass scores nothing; the second pass matches.
	if !res.Matched || res.Pass != 2 {
		t.Fatalf("result = %+v", res)
	}
	if e.count() != 2 {
		t.Errorf("embed calls = %d, want 2", e.count())
	}
}

func TestVerifyAllPassesDegraded(t *testing.T) {
	e := &scriptEmbedder{fn: func(int, []byte) ([]float32, error) {
		return nil, errors.New("model crashed")
	}}
	res, err := testOrchestrator(e).Verify(context.Background(), silence(2*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if res.Matched {
		t.Fatalf("result = %+v, want no match", res)
	}
}

func TestVerifyContextCancelled(t *testing.T) {
	e := &scriptEmbedder{fn: func(int, []byte) ([]float32, error) {
		return axisVec(1), nil
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := testOrchestrator(e).Verify(ctx, silence(6*time.Second)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestVerifyKeepsBestAcrossPasses(t *testing.T) {
	// Scores climb across passes but never reach the threshold; the best
	// one wins.
	scores := []float32{0.1, 0.3}
	e := &scriptEmbedder{fn: func(call int, _ []byte) ([]float32, error) {
		vec := make([]float32, EmbeddingDim)
		vec[0] = scores[call]
		vec[1] = 1
		return vec, nil
	}}
	res, err := testOrchestrator(e).Verify(context.Background(), silence(3*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if res.Matched || res.Pass != 2 {
		t.Fatalf("result = %+v, want best from pass 2", res)
	}
}
