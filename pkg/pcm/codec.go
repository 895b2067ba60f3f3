// Package pcm converts between float32 audio samples and the 16-bit
// little-endian PCM wire representation used by streaming speech providers.
//
// Samples are normalized to [-1, 1]. Encoding clamps out-of-range values
// instead of wrapping, so a slightly hot capture signal distorts rather than
// folding over. Decoding divides by 32768, which makes encode followed by
// decode lossless for every representable sample.
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"
)

// DefaultInputRate is the sample rate exchanged with providers on the
// microphone path.
const DefaultInputRate = 16000

// DefaultOutputRate is the sample rate of audio returned by providers.
const DefaultOutputRate = 24000

// CodecError reports malformed input to one of the codec operations. It wraps
// the underlying cause when one exists (for example a base64 decode failure).
type CodecError struct {
	// Op is the codec operation that failed, such as "decode" or "from-text".
	Op string
	// Cause is the underlying error, if any.
	Cause error
	// Detail describes the problem when there is no underlying error.
	Detail string
}

// Error implements the error interface.
func (e *CodecError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("pcm: %s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("pcm: %s: %s", e.Op, e.Detail)
}

// Unwrap returns the underlying cause.
func (e *CodecError) Unwrap() error { return e.Cause }

// Buffer holds decoded audio samples together with the rate they were
// captured or synthesized at.
type Buffer struct {
	// Samples are normalized float32 values in [-1, 1].
	Samples []float32
	// SampleRate is the number of samples per second, e.g. 24000.
	SampleRate int
}

// Duration returns the playback length of the buffer. A buffer with a
// non-positive sample rate has zero duration.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 || len(b.Samples) == 0 {
		return 0
	}
	return time.Duration(float64(len(b.Samples)) / float64(b.SampleRate) * float64(time.Second))
}

// Encode converts normalized float32 samples to 16-bit little-endian PCM.
// Values outside [-1, 1] are clamped to the int16 range.
func Encode(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		s := int32(v * 32768)
		if s > 32767 {
			s = 32767
		} else if s < -32768 {
			s = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s)))
	}
	return out
}

// Decode converts 16-bit little-endian PCM bytes into a Buffer at the given
// sample rate. A trailing odd byte is dropped. It returns a *CodecError when
// sampleRate is not positive.
func Decode(data []byte, sampleRate int) (Buffer, error) {
	if sampleRate <= 0 {
		return Buffer{}, &CodecError{Op: "decode", Detail: fmt.Sprintf("invalid sample rate %d", sampleRate)}
	}
	n := len(data) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(s) / 32768
	}
	return Buffer{Samples: samples, SampleRate: sampleRate}, nil
}

// ToTransportText encodes raw PCM bytes as standard base64 for embedding in a
// JSON protocol message.
func ToTransportText(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// FromTransportText decodes a base64 payload back into raw PCM bytes. It
// returns a *CodecError when the text is not valid base64.
func FromTransportText(text string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, &CodecError{Op: "from-text", Cause: err}
	}
	return data, nil
}

// DecodeTransport combines FromTransportText and Decode: it takes the base64
// payload of a provider audio message and returns playable samples.
func DecodeTransport(text string, sampleRate int) (Buffer, error) {
	data, err := FromTransportText(text)
	if err != nil {
		return Buffer{}, err
	}
	return Decode(data, sampleRate)
}

// EncodeTransport combines Encode and ToTransportText for the capture path.
func EncodeTransport(samples []float32) string {
	return ToTransportText(Encode(samples))
}
