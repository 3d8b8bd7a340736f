package resampler

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
)

func sine(samples, rate int, freq float64) []byte {
	b := make([]byte, 2*samples)
	for i := range samples {
		v := int16(8000 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
		binary.LittleEndian.PutUint16(b[2*i:], uint16(v))
	}
	return b
}

func TestPassthrough(t *testing.T) {
	s, err := New(pcm.L16Mono16K, pcm.L16Mono16K)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if !s.Passthrough() {
		t.Fatal("expected passthrough for equal rates")
	}

	in := sine(1600, 16000, 440)
	out, err := s.Process(in)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(in) {
		t.Errorf("passthrough changed length: %d -> %d", len(in), len(out))
	}
}

func TestDownsample48kTo16k(t *testing.T) {
	s, err := New(pcm.L16Mono48K, pcm.L16Mono16K)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	// Feed 1 s of 48 kHz audio in 20 ms chunks; expect roughly 1 s of
	// 16 kHz audio out (minus resampler latency).
	chunk := pcm.L16Mono48K.BytesInDuration(20 * time.Millisecond)
	in := sine(48000, 48000, 440)
	var total int
	for off := 0; off+chunk <= len(in); off += chunk {
		out, err := s.Process(in[off : off+chunk])
		if err != nil {
			t.Fatal(err)
		}
		if len(out)%2 != 0 {
			t.Fatalf("output not whole samples: %d bytes", len(out))
		}
		total += len(out) / 2
	}

	// Within 10% of the ideal 16000 output samples.
	if total < 14400 || total > 17600 {
		t.Errorf("got %d output samples, want ~16000", total)
	}
}

func TestProcessOddChunk(t *testing.T) {
	s, err := New(pcm.L16Mono48K, pcm.L16Mono16K)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.Process([]byte{0x01}); err == nil {
		t.Error("expected error for odd-length chunk")
	}
}

func TestProcessAfterClose(t *testing.T) {
	s, err := New(pcm.L16Mono16K, pcm.L16Mono16K)
	if err != nil {
		t.Fatal(err)
	}
	s.Close()
	if _, err := s.Process(make([]byte, 4)); err == nil {
		t.Error("expected error after Close")
	}
}
