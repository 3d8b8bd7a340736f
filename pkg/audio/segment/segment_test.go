package segment

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
)

// tone writes a sine burst of the given amplitude into b starting at sample
// offset off for n samples.
func tone(b []byte, off, n int, amplitude float64) {
	for i := range n {
		v := int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(b[2*(off+i):], uint16(v))
	}
}

func seconds(d time.Duration) int {
	return pcm.L16Mono16K.SamplesInDuration(d)
}

func TestLocateFindsLoudBurst(t *testing.T) {
	// 5 s of near-silence with a 1.5 s burst in the middle.
	total := seconds(5 * time.Second)
	b := make([]byte, 2*total)
	burstStart := seconds(2 * time.Second)
	burstLen := seconds(1500 * time.Millisecond)
	tone(b, burstStart, burstLen, 8000)

	seg := Locate(b)
	if seg.Start >= seg.End || seg.End > total {
		t.Fatalf("segment out of bounds: %+v (total %d)", seg, total)
	}
	// The burst must be inside the segment, with at most one frame of slack
	// on either side.
	frame := seconds(50 * time.Millisecond)
	if seg.Start > burstStart || seg.Start < burstStart-frame {
		t.Errorf("segment start %d, burst at %d", seg.Start, burstStart)
	}
	if seg.End < burstStart+burstLen-frame {
		t.Errorf("segment end %d misses burst end %d", seg.End, burstStart+burstLen)
	}
}

func TestLocateMinimumLength(t *testing.T) {
	// A very short loud click should still yield a >= 1 s segment.
	total := seconds(3 * time.Second)
	b := make([]byte, 2*total)
	tone(b, seconds(1500*time.Millisecond), seconds(100*time.Millisecond), 12000)

	seg := Locate(b)
	if got := seg.Samples(); got < seconds(time.Second) {
		t.Errorf("segment %d samples, want >= %d", got, seconds(time.Second))
	}
	if seg.Start < 0 || seg.End > total {
		t.Errorf("segment out of bounds: %+v", seg)
	}
}

func TestLocateMinimumLengthAtBufferEdge(t *testing.T) {
	// Burst at the very end: extension must shift backward, not overflow.
	total := seconds(2 * time.Second)
	b := make([]byte, 2*total)
	tone(b, total-seconds(200*time.Millisecond), seconds(200*time.Millisecond), 12000)

	seg := Locate(b)
	if seg.End > total || seg.Start < 0 {
		t.Fatalf("segment out of bounds: %+v", seg)
	}
	if seg.Samples() < seconds(time.Second) {
		t.Errorf("segment %d samples, want >= 1s", seg.Samples())
	}
}

func TestLocateNearSilenceFallback(t *testing.T) {
	// All-quiet buffer: degenerate prefix segment, clamped to the fallback.
	total := seconds(6 * time.Second)
	b := make([]byte, 2*total)

	seg := Locate(b)
	if seg.Start != 0 {
		t.Errorf("fallback segment should start at 0, got %d", seg.Start)
	}
	if seg.End != seconds(4*time.Second) {
		t.Errorf("fallback segment end %d, want %d", seg.End, seconds(4*time.Second))
	}
}

func TestLocateShortBuffer(t *testing.T) {
	// Shorter than the minimum: whole buffer.
	total := seconds(500 * time.Millisecond)
	b := make([]byte, 2*total)
	tone(b, 0, total, 8000)

	seg := Locate(b)
	if seg.Start != 0 || seg.End != total {
		t.Errorf("expected whole buffer, got %+v", seg)
	}
}

func TestLocateEmptyBuffer(t *testing.T) {
	seg := Locate(nil)
	if seg.Start != 0 || seg.End != 0 {
		t.Errorf("expected empty segment, got %+v", seg)
	}
}

func TestSegmentSlice(t *testing.T) {
	b := make([]byte, 2*100)
	seg := Segment{Start: 10, End: 20}
	if got := len(seg.Slice(b)); got != 20 {
		t.Errorf("slice length %d, want 20", got)
	}
	if seg.Duration(pcm.L16Mono16K) != 10*time.Second/16000 {
		t.Errorf("unexpected duration %v", seg.Duration(pcm.L16Mono16K))
	}
}
