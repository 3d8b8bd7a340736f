// Package resampler converts 16-bit mono PCM between sample rates so that
// streams arriving at a non-canonical rate can still feed the 16 kHz
// verification pipeline.
//
// Conversion is push-based: sessions hand over audio chunk by chunk as they
// arrive on the wire and receive the converted bytes back immediately.
package resampler

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
)

// Stream resamples a continuous 16-bit mono PCM stream from src to dst.
//
// Stream is not safe for concurrent use; each session owns one.
type Stream struct {
	src pcm.Format
	dst pcm.Format

	resampler resampling.Resampler
	closed    bool
}

// New creates a Stream converting from src to dst. When the rates are equal
// Process is a cheap passthrough.
func New(src, dst pcm.Format) (*Stream, error) {
	s := &Stream{src: src, dst: dst}
	if src.SampleRate() != dst.SampleRate() {
		cfg := &resampling.Config{
			InputRate:  float64(src.SampleRate()),
			OutputRate: float64(dst.SampleRate()),
			Channels:   dst.Channels(),
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		}
		r, err := resampling.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("resampler: %w", err)
		}
		s.resampler = r
	}
	return s, nil
}

// Process converts one chunk. The chunk must be a whole number of samples;
// the returned slice may be empty while the resampler accumulates input.
func (s *Stream) Process(chunk []byte) ([]byte, error) {
	if s.closed {
		return nil, fmt.Errorf("resampler: stream closed")
	}
	if len(chunk)%2 != 0 {
		return nil, fmt.Errorf("resampler: chunk is not a whole number of samples: %d bytes", len(chunk))
	}
	if s.resampler == nil {
		return chunk, nil
	}

	// int16 LE → normalized float64.
	n := len(chunk) / 2
	input := make([]float64, n)
	for i := range n {
		v := int16(chunk[i*2]) | int16(chunk[i*2+1])<<8
		input[i] = float64(v) / 32768.0
	}

	output, err := s.resampler.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resampler: %w", err)
	}

	out := make([]byte, len(output)*2)
	for i, f := range output {
		v := int16(f * 32767.0)
		if f > 1.0 {
			v = 32767
		} else if f < -1.0 {
			v = -32768
		}
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out, nil
}

// Passthrough reports whether the stream performs no conversion.
func (s *Stream) Passthrough() bool { return s.resampler == nil }

// Close releases the underlying resampler. Subsequent Process calls fail.
func (s *Stream) Close() error {
	s.closed = true
	s.resampler = nil
	return nil
}
