// Package pcm provides conversion math for raw PCM audio buffers:
// bytes ↔ samples ↔ duration for the fixed formats the gateway handles.
package pcm

import "time"

const (
	// L16Mono16K represents audio/L16; rate=16000; channels=1.
	// This is the canonical verification format: everything downstream of
	// the session buffer is 16 kHz 16-bit mono.
	L16Mono16K Format = iota
	// L16Mono22K05 represents audio/L16; rate=22050; channels=1
	L16Mono22K05
	// L16Mono24K represents audio/L16; rate=24000; channels=1
	L16Mono24K
	// L16Mono44K1 represents audio/L16; rate=44100; channels=1
	L16Mono44K1
	// L16Mono48K represents audio/L16; rate=48000; channels=1
	L16Mono48K
)

// Format represents an audio format configuration.
type Format int

// ByRate returns the mono 16-bit format with the given sample rate.
// ok is false for unsupported rates.
func ByRate(rate int) (f Format, ok bool) {
	switch rate {
	case 16000:
		return L16Mono16K, true
	case 22050:
		return L16Mono22K05, true
	case 24000:
		return L16Mono24K, true
	case 44100:
		return L16Mono44K1, true
	case 48000:
		return L16Mono48K, true
	}
	return 0, false
}

// SampleRate returns the sample rate in Hz for this format.
func (f Format) SampleRate() int {
	switch f {
	case L16Mono16K:
		return 16000
	case L16Mono22K05:
		return 22050
	case L16Mono24K:
		return 24000
	case L16Mono44K1:
		return 44100
	case L16Mono48K:
		return 48000
	}
	panic("pcm: invalid audio format")
}

// Channels returns the number of audio channels for this format.
func (f Format) Channels() int { return 1 }

// Depth returns the bit depth for this format.
func (f Format) Depth() int { return 16 }

// SampleBytes returns the size of one sample frame in bytes.
func (f Format) SampleBytes() int {
	return f.Channels() * f.Depth() / 8
}

// Samples returns the number of samples in the given number of bytes.
func (f Format) Samples(bytes int) int {
	return bytes / f.SampleBytes()
}

// Bytes returns the number of bytes occupied by the given number of samples.
func (f Format) Bytes(samples int) int {
	return samples * f.SampleBytes()
}

// SamplesInDuration returns the number of samples in the given duration.
func (f Format) SamplesInDuration(d time.Duration) int {
	return int(time.Duration(f.SampleRate()) * d / time.Second)
}

// BytesInDuration returns the number of bytes in the given duration,
// always a whole number of samples.
func (f Format) BytesInDuration(d time.Duration) int {
	return f.Bytes(f.SamplesInDuration(d))
}

// Duration returns the duration of the given number of bytes.
func (f Format) Duration(bytes int) time.Duration {
	return time.Duration(f.Samples(bytes)) * time.Second / time.Duration(f.SampleRate())
}

// TrimDuration returns b truncated to at most d worth of samples.
// The result is always a whole number of samples and aliases b.
func (f Format) TrimDuration(b []byte, d time.Duration) []byte {
	max := f.BytesInDuration(d)
	if len(b) <= max {
		return b[:len(b)/f.SampleBytes()*f.SampleBytes()]
	}
	return b[:max]
}
