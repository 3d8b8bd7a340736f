// Package segment isolates the most likely voiced-speech region of a raw
// PCM buffer using frame energy analysis.
//
// The target speaker is typically closest to the microphone, so the loudest
// contiguous region of the buffer is the most reliable speech candidate.
// This avoids running a full VAD model: whatever upstream voice activity
// detection triggered the stream already decided there is speech somewhere.
package segment

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
)

// Segment is a half-open sample-index range [Start, End) into a PCM buffer.
type Segment struct {
	Start int
	End   int
}

// Samples returns the segment length in samples.
func (s Segment) Samples() int { return s.End - s.Start }

// Duration returns the segment length at the given format's sample rate.
func (s Segment) Duration(f pcm.Format) time.Duration {
	return f.Duration(f.Bytes(s.Samples()))
}

// Slice returns the sub-slice of b covered by the segment. b must be 16-bit
// mono PCM; the result aliases b.
func (s Segment) Slice(b []byte) []byte {
	return b[2*s.Start : 2*s.End]
}

// Config tunes the energy analysis.
type Config struct {
	// Format is the PCM format of analyzed buffers.
	Format pcm.Format

	// FrameLength is the analysis frame size.
	FrameLength time.Duration

	// SilenceRMS is the near-silence cutoff: if the loudest frame is below
	// this RMS the buffer is treated as unsegmentable and the fallback
	// prefix is returned.
	SilenceRMS float64

	// ExpandRatio is the fraction of the peak RMS a neighboring frame must
	// reach to be pulled into the segment.
	ExpandRatio float64

	// MinLength is the minimum returned segment length, provided the buffer
	// is at least that long. Embeddings on shorter audio are unreliable.
	MinLength time.Duration

	// Fallback is the prefix length returned when no usable peak exists.
	Fallback time.Duration
}

// DefaultConfig returns the standard configuration: 50 ms frames at 16 kHz,
// silence cutoff RMS 100, 15% expansion threshold, 1 s minimum segment,
// 4 s fallback prefix.
func DefaultConfig() Config {
	return Config{
		Format:      pcm.L16Mono16K,
		FrameLength: 50 * time.Millisecond,
		SilenceRMS:  100,
		ExpandRatio: 0.15,
		MinLength:   time.Second,
		Fallback:    4 * time.Second,
	}
}

// Locate returns the sample range of b most likely to contain voiced speech.
// Deterministic and allocation-light; no I/O.
func (c Config) Locate(b []byte) Segment {
	samples := c.Format.Samples(len(b))
	if samples == 0 {
		return Segment{}
	}

	frame := c.Format.SamplesInDuration(c.FrameLength)
	nFrames := samples / frame // final partial frame dropped
	if nFrames == 0 {
		return Segment{Start: 0, End: samples}
	}

	rms := make([]float64, nFrames)
	peak := 0
	for i := range nFrames {
		rms[i] = frameRMS(b, i*frame, frame)
		if rms[i] > rms[peak] {
			peak = i
		}
	}

	if rms[peak] < c.SilenceRMS {
		return c.fallback(samples)
	}

	// Expand outward from the peak frame while neighbors stay above the
	// threshold. Expansion stops per direction at the first failing frame.
	threshold := c.ExpandRatio * rms[peak]
	lo, hi := peak, peak
	for lo > 0 && rms[lo-1] >= threshold {
		lo--
	}
	for hi < nFrames-1 && rms[hi+1] >= threshold {
		hi++
	}

	seg := Segment{Start: lo * frame, End: (hi + 1) * frame}
	return c.ensureMinLength(seg, samples)
}

// Locate runs Config.Locate with DefaultConfig.
func Locate(b []byte) Segment {
	return DefaultConfig().Locate(b)
}

func (c Config) fallback(samples int) Segment {
	end := c.Format.SamplesInDuration(c.Fallback)
	if end > samples {
		end = samples
	}
	return Segment{Start: 0, End: end}
}

// ensureMinLength grows seg symmetrically to MinLength, shifting the extra
// growth to the other side when a buffer boundary is hit.
func (c Config) ensureMinLength(seg Segment, samples int) Segment {
	min := c.Format.SamplesInDuration(c.MinLength)
	if samples <= min {
		return Segment{Start: 0, End: samples}
	}
	need := min - seg.Samples()
	if need <= 0 {
		return seg
	}
	seg.Start -= need / 2
	seg.End += need - need/2
	if seg.Start < 0 {
		seg.End -= seg.Start
		seg.Start = 0
	}
	if seg.End > samples {
		seg.Start -= seg.End - samples
		seg.End = samples
		if seg.Start < 0 {
			seg.Start = 0
		}
	}
	return seg
}

// frameRMS computes the root-mean-square energy of one frame of 16-bit LE
// mono samples starting at sample offset off.
func frameRMS(b []byte, off, n int) float64 {
	var sum float64
	for i := range n {
		v := int16(binary.LittleEndian.Uint16(b[2*(off+i):]))
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(n))
}
