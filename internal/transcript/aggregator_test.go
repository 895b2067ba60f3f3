package transcript_test

import (
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxlink/internal/transcript"
)

func TestAppendConcatenatesInArrivalOrder(t *testing.T) {
	t.Parallel()

	agg := transcript.New()
	agg.Append(transcript.SenderUser, "how do ")
	agg.Append(transcript.SenderUser, "I medi")
	agg.Append(transcript.SenderUser, "tate")

	if got := agg.Partial(transcript.SenderUser); got != "how do I meditate" {
		t.Errorf("partial = %q, want %q", got, "how do I meditate")
	}
}

func TestAppendKeepsSendersSeparate(t *testing.T) {
	t.Parallel()

	agg := transcript.New()
	agg.Append(transcript.SenderUser, "hello")
	agg.Append(transcript.SenderAssistant, "greetings")

	if got := agg.Partial(transcript.SenderUser); got != "hello" {
		t.Errorf("user partial = %q", got)
	}
	if got := agg.Partial(transcript.SenderAssistant); got != "greetings" {
		t.Errorf("assistant partial = %q", got)
	}
}

func TestCompleteTurnEmitsUserThenAssistant(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	agg := transcript.New(transcript.WithClock(func() time.Time { return now }))
	agg.Append(transcript.SenderUser, "what is patience")
	agg.Append(transcript.SenderAssistant, "patience is acceptance")

	user, assistant := agg.CompleteTurn()
	if user.Sender != transcript.SenderUser || user.Text != "what is patience" {
		t.Errorf("user record = %+v", user)
	}
	if assistant.Sender != transcript.SenderAssistant || assistant.Text != "patience is acceptance" {
		t.Errorf("assistant record = %+v", assistant)
	}
	if user.ID == "" || assistant.ID == "" || user.ID == assistant.ID {
		t.Errorf("records need distinct non-empty IDs: %q, %q", user.ID, assistant.ID)
	}
	if !user.CompletedAt.Equal(now) {
		t.Errorf("CompletedAt = %v, want %v", user.CompletedAt, now)
	}

	hist := agg.History()
	if len(hist) != 2 {
		t.Fatalf("history length = %d, want 2", len(hist))
	}
	if hist[0].Sender != transcript.SenderUser || hist[1].Sender != transcript.SenderAssistant {
		t.Errorf("history order = %v, %v", hist[0].Sender, hist[1].Sender)
	}
}

func TestCompleteTurnUsesPlaceholderForSilentSide(t *testing.T) {
	t.Parallel()

	agg := transcript.New()
	agg.Append(transcript.SenderAssistant, "unprompted wisdom")

	user, assistant := agg.CompleteTurn()
	if user.Text != transcript.Placeholder {
		t.Errorf("silent user text = %q, want placeholder", user.Text)
	}
	if assistant.Text != "unprompted wisdom" {
		t.Errorf("assistant text = %q", assistant.Text)
	}
}

func TestCompleteTurnClearsAccumulators(t *testing.T) {
	t.Parallel()

	agg := transcript.New()
	agg.Append(transcript.SenderUser, "first turn")
	agg.CompleteTurn()

	if got := agg.Partial(transcript.SenderUser); got != "" {
		t.Errorf("partial after turn = %q, want empty", got)
	}

	agg.Append(transcript.SenderUser, "second turn")
	user, _ := agg.CompleteTurn()
	if user.Text != "second turn" {
		t.Errorf("second turn text = %q", user.Text)
	}
	if len(agg.History()) != 4 {
		t.Errorf("history length = %d, want 4", len(agg.History()))
	}
}

func TestResetDiscardsPendingKeepsHistory(t *testing.T) {
	t.Parallel()

	agg := transcript.New()
	agg.Append(transcript.SenderUser, "kept")
	agg.CompleteTurn()
	agg.Append(transcript.SenderUser, "discarded")
	agg.Append(transcript.SenderAssistant, "also discarded")

	agg.Reset()

	if got := agg.Partial(transcript.SenderUser); got != "" {
		t.Errorf("user partial after reset = %q", got)
	}
	if got := agg.Partial(transcript.SenderAssistant); got != "" {
		t.Errorf("assistant partial after reset = %q", got)
	}
	if len(agg.History()) != 2 {
		t.Errorf("history length = %d, want 2", len(agg.History()))
	}
}

func TestHistoryReturnsCopy(t *testing.T) {
	t.Parallel()

	agg := transcript.New()
	agg.Append(transcript.SenderUser, "original")
	agg.CompleteTurn()

	hist := agg.History()
	hist[0].Text = "mutated"

	if agg.History()[0].Text != "original" {
		t.Error("History must return a copy, not the backing slice")
	}
}

func TestConcurrentAppendDoesNotRace(t *testing.T) {
	t.Parallel()

	agg := transcript.New()
	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 64 {
				agg.Append(transcript.SenderUser, "a")
				agg.Append(transcript.SenderAssistant, "b")
			}
		})
	}
	wg.Wait()

	user, assistant := agg.CompleteTurn()
	if len(user.Text) != 8*64 {
		t.Errorf("user text length = %d, want %d", len(user.Text), 8*64)
	}
	if len(assistant.Text) != 8*64 {
		t.Errorf("assistant text length = %d, want %d", len(assistant.Text), 8*64)
	}
}
