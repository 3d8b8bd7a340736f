package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
	"github.com/haivivi/voicegate/pkg/audio/resampler"
	"github.com/haivivi/voicegate/pkg/voiceprint"
	"github.com/haivivi/voicegate/pkg/wyoming"
)

// State is a session's position in the protocol state machine.
type State int

const (
	StateAwaitingStart State = iota
	StateBuffering
	StateResponded
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingStart:
		return "awaiting-start"
	case StateBuffering:
		return "buffering"
	case StateResponded:
		return "responded"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// verifyAttempt is the handle to the one allowed background verification.
// res and err are valid only after done is closed.
type verifyAttempt struct {
	done chan struct{}
	res  voiceprint.Result
	err  error
}

// Session drives one inbound connection through the protocol state
// machine: buffer audio, verify the speaker, respond with exactly one
// transcript per stream.
//
// The audio buffer is append-only and owned by the read loop. The early
// background verification runs on an immutable snapshot taken when the
// buffer first crosses the verifier's MaxVerify, so the two never race;
// the responded flag is the only state shared with the background
// goroutine and is guarded by mu.
type Session struct {
	id       string
	verifier Verifier
	relay    Transcriber
	writer   *wyoming.Writer
	logger   *slog.Logger
	monitor  *Monitor
	info     wyoming.Info

	state    State
	buf      []byte
	language string
	resample *resampler.Stream
	verify   *verifyAttempt
	started  time.Time

	mu        sync.Mutex
	responded bool
}

// newSession wires a session for one connection. All fields are required
// except monitor, which may be nil.
func newSession(id string, verifier Verifier, relay Transcriber, w *wyoming.Writer, info wyoming.Info, monitor *Monitor, logger *slog.Logger) *Session {
	return &Session{
		id:       id,
		verifier: verifier,
		relay:    relay,
		writer:   w,
		info:     info,
		monitor:  monitor,
		logger:   logger.With("session", id),
	}
}

// run consumes events until EOF or a protocol failure. A returned error
// terminates this session only.
func (s *Session) run(ctx context.Context, r *wyoming.Reader) error {
	defer s.closeResampler()
	for {
		ev, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.handle(ctx, ev); err != nil {
			return err
		}
	}
}

func (s *Session) handle(ctx context.Context, ev *wyoming.Event) error {
	switch ev.Type {
	case wyoming.TypeDescribe:
		return s.writer.Write(wyoming.NewInfo(s.info))

	case wyoming.TypeTranscribe:
		return s.handleTranscribe(ev)

	case wyoming.TypeAudioStart:
		return s.handleAudioStart(ctx, ev)

	case wyoming.TypeAudioChunk:
		return s.handleAudioChunk(ctx, ev)

	case wyoming.TypeAudioStop:
		return s.handleAudioStop(ctx)

	default:
		// Unknown event types are skipped so protocol extensions do not
		// break older gateways.
		s.logger.Debug("ignoring event", "type", ev.Type)
		return nil
	}
}

func (s *Session) handleTranscribe(ev *wyoming.Event) error {
	if s.state == StateBuffering {
		return fmt.Errorf("%w: transcribe while %s", wyoming.ErrProtocol, s.state)
	}
	var t wyoming.Transcribe
	if len(ev.Data) > 0 {
		if err := ev.Unmarshal(&t); err != nil {
			return err
		}
	}
	s.language = t.Language
	return nil
}

// handleAudioStart resets the session for a fresh stream. A connection
// may carry several streams back to back; each one gets a clean buffer
// and a fresh respond-once flag.
func (s *Session) handleAudioStart(_ context.Context, ev *wyoming.Event) error {
	if s.state == StateBuffering {
		return fmt.Errorf("%w: audio-start while %s", wyoming.ErrProtocol, s.state)
	}
	var f wyoming.AudioFormat
	if err := ev.Unmarshal(&f); err != nil {
		return err
	}
	if f.Width != 2 || f.Channels != 1 {
		return fmt.Errorf("%w: unsupported format %dbit/%dch", wyoming.ErrProtocol, f.Width*8, f.Channels)
	}

	s.closeResampler()
	if f.Rate != pcm.L16Mono16K.SampleRate() {
		src, ok := pcm.ByRate(f.Rate)
		if !ok {
			return fmt.Errorf("%w: unsupported sample rate %d", wyoming.ErrProtocol, f.Rate)
		}
		rs, err := resampler.New(src, pcm.L16Mono16K)
		if err != nil {
			return fmt.Errorf("gateway: resampler: %w", err)
		}
		s.resample = rs
		s.logger.Info("resampling inbound audio", "from", f.Rate, "to", pcm.L16Mono16K.SampleRate())
	}

	s.buf = nil
	s.verify = nil
	s.started = time.Now()
	s.setResponded(false)
	s.state = StateBuffering
	return nil
}

func (s *Session) handleAudioChunk(ctx context.Context, ev *wyoming.Event) error {
	if s.state != StateBuffering {
		return fmt.Errorf("%w: audio-chunk while %s", wyoming.ErrProtocol, s.state)
	}
	if s.isResponded() {
		// Decision already made; drain the rest of the stream unprocessed.
		return nil
	}

	chunk := ev.Payload
	if s.resample != nil {
		out, err := s.resample.Process(chunk)
		if err != nil {
			return fmt.Errorf("%w: bad audio chunk: %v", wyoming.ErrProtocol, err)
		}
		chunk = out
	} else if len(chunk)%2 != 0 {
		return fmt.Errorf("%w: audio chunk of %d bytes is not whole samples", wyoming.ErrProtocol, len(chunk))
	}
	s.buf = append(s.buf, chunk...)

	// One early attempt per stream, started the moment enough audio
	// exists. The snapshot freezes the buffer for the background pass
	// while chunks keep appending to the live buffer.
	if s.verify == nil && pcm.L16Mono16K.Duration(len(s.buf)) >= s.verifier.MaxVerify() {
		snapshot := slices.Clone(s.buf)
		s.beginBackgroundVerify(ctx, snapshot)
	}
	return nil
}

func (s *Session) handleAudioStop(ctx context.Context) error {
	if s.state != StateBuffering {
		return fmt.Errorf("%w: audio-stop while %s", wyoming.ErrProtocol, s.state)
	}
	s.closeResampler()

	// Join the outstanding early attempt before anything else; a
	// concurrent fallback would double up on the shared model permit.
	if s.verify != nil {
		select {
		case <-s.verify.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.isResponded() {
		s.state = StateClosed
		return nil
	}

	// The early attempt missed or never ran; score the final buffer,
	// which may hold more audio than the snapshot did.
	res, err := s.verifier.Verify(ctx, s.buf)
	if err != nil {
		return err
	}
	s.respond(ctx, s.buf, res)
	s.state = StateClosed
	return nil
}

// beginBackgroundVerify launches the one-shot early verification over the
// snapshot. A matching verdict responds immediately so the caller is not
// kept waiting for a silence the upstream detector may never declare.
func (s *Session) beginBackgroundVerify(ctx context.Context, snapshot []byte) {
	a := &verifyAttempt{done: make(chan struct{})}
	s.verify = a
	s.logger.Debug("early verification started", "buffered", pcm.L16Mono16K.Duration(len(snapshot)))
	go func() {
		defer close(a.done)
		a.res, a.err = s.verifier.Verify(ctx, snapshot)
		if a.err != nil {
			s.logger.Warn("early verification failed", "err", a.err)
			return
		}
		if a.res.Matched {
			s.respond(ctx, snapshot, a.res)
		}
	}()
}

// respond emits this stream's single transcript: the upstream text on a
// match, the empty string otherwise. The first caller wins; later calls
// are no-ops, so the background goroutine and the stop path cannot both
// answer.
func (s *Session) respond(ctx context.Context, audio []byte, res voiceprint.Result) {
	s.mu.Lock()
	if s.responded {
		s.mu.Unlock()
		return
	}
	s.responded = true
	s.mu.Unlock()

	text := ""
	if res.Matched {
		trimmed := pcm.L16Mono16K.TrimDuration(audio, ASRMax)
		t, err := s.relay.Transcribe(ctx, trimmed, s.language)
		if err != nil {
			// Silence is always a safe outcome; never leave the caller hanging.
			s.logger.Error("relay failed, rejecting", "err", err)
		} else {
			text = t
		}
	}

	elapsed := time.Since(s.started)
	if res.Matched {
		s.logger.Info("speaker verified",
			"speaker", res.Speaker, "score", res.Score, "pass", res.Pass,
			"buffered", pcm.L16Mono16K.Duration(len(audio)), "elapsed", elapsed)
	} else {
		s.logger.Info("speaker rejected",
			"score", res.Score, "buffered", pcm.L16Mono16K.Duration(len(audio)), "elapsed", elapsed)
	}

	if err := s.writer.Write(wyoming.NewTranscript(text)); err != nil {
		s.logger.Warn("writing transcript failed", "err", err)
	}
	s.monitor.publish(s.verdict(res, len(audio), elapsed))
}

func (s *Session) isResponded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.responded
}

func (s *Session) setResponded(v bool) {
	s.mu.Lock()
	s.responded = v
	s.mu.Unlock()
}

func (s *Session) closeResampler() {
	if s.resample != nil {
		s.resample.Close()
		s.resample = nil
	}
}
