// Package transcript accumulates streamed transcription fragments into
// per-turn conversation records.
//
// Providers deliver transcription in small fragments that arrive interleaved
// with audio. The aggregator buffers fragments per speaker and, when the
// provider signals the end of a turn, freezes them into exactly one user
// record and one assistant record, in that order. A side of the conversation
// with no recognized speech still yields a record, carrying a placeholder, so
// the history always alternates cleanly.
package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Placeholder is recorded for a turn side that produced no recognized text.
const Placeholder = "…"

// Sender identifies which side of the conversation produced a record.
type Sender string

const (
	// SenderUser marks transcribed user speech.
	SenderUser Sender = "user"

	// SenderAssistant marks transcribed model speech.
	SenderAssistant Sender = "assistant"
)

// Record is one finalized side of a completed turn.
type Record struct {
	// ID is a unique identifier for the record.
	ID string

	// Sender is who spoke.
	Sender Sender

	// Text is the concatenated transcription, or Placeholder when the side
	// produced nothing.
	Text string

	// CompletedAt is when the turn was finalized.
	CompletedAt time.Time
}

// Aggregator buffers transcription fragments and finalizes them at turn
// boundaries. Safe for concurrent use.
type Aggregator struct {
	now func() time.Time

	mu      sync.Mutex
	user    strings.Builder
	model   strings.Builder
	history []Record
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the time source used for record timestamps.
// Primarily used in tests.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// New creates an empty aggregator.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Append adds a fragment to the given sender's pending turn. Fragments are
// concatenated in arrival order with no separator; providers chunk text
// mid-word, so inserting anything would corrupt it.
func (a *Aggregator) Append(sender Sender, fragment string) {
	if fragment == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	switch sender {
	case SenderAssistant:
		a.model.WriteString(fragment)
	default:
		a.user.WriteString(fragment)
	}
}

// CompleteTurn finalizes the pending fragments into a user record followed by
// an assistant record, appends both to the history, clears the accumulators,
// and returns the two new records.
func (a *Aggregator) CompleteTurn() (user, assistant Record) {
	a.mu.Lock()
	defer a.mu.Unlock()

	completedAt := a.now()
	user = newRecord(SenderUser, a.user.String(), completedAt)
	assistant = newRecord(SenderAssistant, a.model.String(), completedAt)
	a.user.Reset()
	a.model.Reset()
	a.history = append(a.history, user, assistant)
	return user, assistant
}

func newRecord(sender Sender, text string, completedAt time.Time) Record {
	if text == "" {
		text = Placeholder
	}
	return Record{
		ID:          uuid.NewString(),
		Sender:      sender,
		Text:        text,
		CompletedAt: completedAt,
	}
}

// Partial returns the not-yet-finalized text for the given sender.
func (a *Aggregator) Partial(sender Sender) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if sender == SenderAssistant {
		return a.model.String()
	}
	return a.user.String()
}

// History returns a copy of all finalized records in completion order.
func (a *Aggregator) History() []Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := make([]Record, len(a.history))
	copy(cp, a.history)
	return cp
}

// Reset discards pending fragments without finalizing them. Committed history
// is kept; it records what was actually said.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user.Reset()
	a.model.Reset()
}
