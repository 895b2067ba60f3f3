// Package transport defines the interfaces for bidirectional streaming
// speech sessions with a conversational model provider.
//
// A [Provider] dials the provider's realtime endpoint and returns a
// [Session]. The session accepts raw PCM microphone audio via SendAudio and
// delivers everything the provider sends back as [ServerEvent] values on a
// single ordered channel: synthesized audio, live transcription fragments,
// turn boundaries, and barge-in notices.
//
// This package lives under pkg/ because external code (alternative provider
// adapters) is expected to implement [Provider] and [Session].
package transport

import "context"

// Config holds the parameters sent to the provider during session setup.
type Config struct {
	// Model is the provider model identifier, e.g.
	// "gemini-2.5-flash-native-audio-preview-09-2025".
	Model string

	// SystemInstruction primes the model's persona and behavior for the
	// whole session.
	SystemInstruction string

	// Voice selects the synthesized voice, e.g. "Orus". Empty uses the
	// provider default.
	Voice string

	// InputSampleRate is the rate of PCM passed to SendAudio, in Hz.
	InputSampleRate int

	// TranscribeInput requests live transcription of user speech.
	TranscribeInput bool

	// TranscribeOutput requests live transcription of model speech.
	TranscribeOutput bool
}

// ServerEvent is one message from the provider, delivered in arrival order.
// Any combination of fields may be populated by a single message.
type ServerEvent struct {
	// AudioText is a base64 payload of synthesized 16-bit PCM, empty when the
	// message carries no audio. Decoding is left to the caller so that
	// malformed payloads can be counted and dropped at the session layer.
	AudioText string

	// AudioSampleRate is the rate of the audio payload in Hz. Zero when
	// AudioText is empty.
	AudioSampleRate int

	// InputTranscription is a fragment of transcribed user speech.
	InputTranscription string

	// OutputTranscription is a fragment of transcribed model speech.
	OutputTranscription string

	// TurnComplete signals the model finished its reply for the current turn.
	TurnComplete bool

	// Interrupted signals the model detected the user speaking over its
	// reply; pending playback should be discarded.
	Interrupted bool
}

// Session is an established streaming session.
//
// Implementations must be safe for concurrent use: SendAudio is called from
// the capture goroutine while Events is drained elsewhere.
type Session interface {
	// SendAudio transmits a chunk of raw 16-bit little-endian PCM at the
	// configured input rate. It returns an error once the session is closed.
	SendAudio(chunk []byte) error

	// Events returns the ordered stream of provider messages. The channel is
	// closed when the session ends, whether by Close, provider close, or
	// failure. After it closes, Err reports why.
	Events() <-chan ServerEvent

	// Err returns the terminal session error, or nil for a clean shutdown.
	// Only valid after Events has been closed.
	Err() error

	// Close tears down the session. It is safe to call more than once;
	// subsequent calls are no-ops and return nil.
	Close() error
}

// Provider dials realtime speech sessions.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Connect establishes a session with the given configuration. The
	// supplied ctx governs the lifetime of the whole session, not just the
	// dial: cancelling it closes the session.
	Connect(ctx context.Context, cfg Config) (Session, error)
}
