package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Block is one captured slice of normalized samples together with its stream
// shape. Blocks flow from an [InputDevice] through conversion to the encoder.
type Block struct {
	// Samples are normalized float32 values in [-1, 1]. Multi-channel data is
	// interleaved.
	Samples []float32

	// Format describes the sample rate and channel count of Samples.
	Format Format
}

// FormatConverter converts capture blocks to a target format. It logs a
// warning on the first format mismatch only. Create one per stream; not
// designed for shared use across goroutines.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
}

// Convert converts a block to the target format. If the source format already
// matches the target, the block is returned unchanged (zero allocation).
// Conversion order: channel downmix first, then resample.
func (c *FormatConverter) Convert(b Block) Block {
	if b.Format == c.Target {
		return b
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", formatString(b.Format),
			"to", formatString(c.Target),
		)
	})

	samples := b.Samples
	cur := b.Format

	// Downmix before resampling so the interpolation runs once per frame.
	if cur.Channels == 2 && c.Target.Channels == 1 {
		samples = StereoToMono(samples)
		cur.Channels = 1
	}

	if cur.SampleRate != c.Target.SampleRate && cur.Channels == 1 {
		samples = ResampleMono(samples, cur.SampleRate, c.Target.SampleRate)
		cur.SampleRate = c.Target.SampleRate
	}

	return Block{Samples: samples, Format: cur}
}

// StereoToMono averages each interleaved L+R pair into a single mono sample.
func StereoToMono(samples []float32) []float32 {
	frames := len(samples) / 2
	out := make([]float32, frames)
	for i := range frames {
		out[i] = (samples[i*2] + samples[i*2+1]) / 2
	}
	return out
}

// ResampleMono resamples mono samples from srcRate to dstRate using linear
// interpolation. If srcRate == dstRate, the input is returned unchanged.
func ResampleMono(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 {
		return samples
	}
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstSamples := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]float32, dstSamples)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}

		out[i] = float32(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

// formatString returns a human-readable string for a format,
// e.g. "48000Hz stereo".
func formatString(f Format) string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}
