package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
	"github.com/haivivi/voicegate/pkg/wyoming"
)

// relayChunk is the payload size used when replaying audio upstream,
// 100 ms per chunk.
const relayChunk = 3200

// Relay forwards verified audio to the upstream recognizer over a fresh
// connection per request, speaking the same event protocol as the
// inbound side, and returns the transcript it answers with.
type Relay struct {
	addr    string
	timeout time.Duration
	dialer  net.Dialer
	logger  *slog.Logger
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithRelayTimeout bounds one whole transcription round trip
// (default 30 s).
func WithRelayTimeout(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRelayLogger sets the logger. Default: slog.Default().
func WithRelayLogger(l *slog.Logger) RelayOption {
	return func(r *Relay) { r.logger = l }
}

// NewRelay creates a Relay targeting the upstream recognizer at addr.
func NewRelay(addr string, opts ...RelayOption) *Relay {
	r := &Relay{
		addr:    addr,
		timeout: 30 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Transcribe replays the audio upstream and returns the transcript text.
// All failures wrap ErrRelay.
func (r *Relay) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	conn, err := r.dialer.DialContext(ctx, "tcp", r.addr)
	if err != nil {
		return "", fmt.Errorf("%w: dial %s: %v", ErrRelay, r.addr, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	format := wyoming.AudioFormat{
		Rate:     pcm.L16Mono16K.SampleRate(),
		Width:    2,
		Channels: 1,
	}
	w := wyoming.NewWriter(conn)
	events := []*wyoming.Event{
		wyoming.NewTranscribe(language),
		wyoming.NewAudioStart(format),
	}
	for _, ev := range events {
		if err := w.Write(ev); err != nil {
			return "", fmt.Errorf("%w: %v", ErrRelay, err)
		}
	}
	for off := 0; off < len(audio); off += relayChunk {
		end := min(off+relayChunk, len(audio))
		if err := w.Write(wyoming.NewAudioChunk(format, audio[off:end])); err != nil {
			return "", fmt.Errorf("%w: %v", ErrRelay, err)
		}
	}
	if err := w.Write(wyoming.NewAudioStop()); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRelay, err)
	}

	rd := wyoming.NewReader(conn)
	for {
		ev, err := rd.Read()
		if err == io.EOF {
			return "", fmt.Errorf("%w: upstream closed before transcript", ErrRelay)
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrRelay, err)
		}
		if ev.Type != wyoming.TypeTranscript {
			continue
		}
		var t wyoming.Transcript
		if err := ev.Unmarshal(&t); err != nil {
			return "", fmt.Errorf("%w: %v", ErrRelay, err)
		}
		r.logger.Debug("upstream transcript", "chars", len(t.Text))
		return t.Text, nil
	}
}

var _ Transcriber = (*Relay)(nil)
