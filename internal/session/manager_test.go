package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxlink/internal/transcript"
	"github.com/MrWong99/voxlink/pkg/audio"
	audiomock "github.com/MrWong99/voxlink/pkg/audio/mock"
	"github.com/MrWong99/voxlink/pkg/pcm"
	"github.com/MrWong99/voxlink/pkg/transport"
	transportmock "github.com/MrWong99/voxlink/pkg/transport/mock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// fixture bundles a manager with its mocks wired to healthy defaults.
type fixture struct {
	provider *transportmock.Provider
	session  *transportmock.Session
	opener   *audiomock.Opener
	device   *audiomock.Device
	sink     *audiomock.Sink
	manager  *Manager
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		session: transportmock.NewSession(),
		device:  &audiomock.Device{Blocks: make(chan []float32, 64), DeviceFormat: audio.CaptureFormat},
		sink:    &audiomock.Sink{},
	}
	f.provider = &transportmock.Provider{Session: f.session}
	f.opener = &audiomock.Opener{Device: f.device}
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	f.manager = NewManager(ManagerConfig{
		Provider: f.provider,
		Opener:   f.opener,
		NewSink:  func() (audio.OutputSink, error) { return f.sink, nil },
		Transport: transport.Config{
			Model:           "test-model",
			Voice:           "Puck",
			InputSampleRate: pcm.DefaultInputRate,
		},
	}, opts...)
	t.Cleanup(func() { _ = f.manager.Stop() })
	return f
}

// audioEvent builds a server event carrying the given samples as playback
// audio at the standard output rate.
func audioEvent(samples []float32) transport.ServerEvent {
	return transport.ServerEvent{
		AudioText:       pcm.EncodeTransport(samples),
		AudioSampleRate: pcm.DefaultOutputRate,
	}
}

func TestStartTransitions(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var states []State
	f := newFixture(t, WithStateFunc(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}))

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if got := f.manager.State(); got != StateConnected {
		t.Errorf("State() = %v, want %v", got, StateConnected)
	}
	mu.Lock()
	defer mu.Unlock()
	want := []State{StateConnecting, StateConnected}
	if len(states) != len(want) {
		t.Fatalf("state transitions = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, states[i], want[i])
		}
	}

	calls := f.provider.Calls()
	if len(calls) != 1 {
		t.Fatalf("Connect called %d times, want 1", len(calls))
	}
	if calls[0].Cfg.Model != "test-model" {
		t.Errorf("connected with model %q, want %q", calls[0].Cfg.Model, "test-model")
	}
}

func TestStartWhileActive(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.manager.Start(context.Background()); !errors.Is(err, ErrActive) {
		t.Errorf("second Start() error = %v, want ErrActive", err)
	}
}

func TestStartConnectError(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.provider.ConnectErr = errors.New("dial refused")

	if err := f.manager.Start(context.Background()); err == nil {
		t.Fatal("Start() succeeded, want error")
	}
	if got := f.manager.State(); got != StateError {
		t.Fatalf("State() after failed connect = %v, want %v", got, StateError)
	}

	// The failure has to be acknowledged before a new session may start.
	if err := f.manager.Start(context.Background()); !errors.Is(err, ErrFailed) {
		t.Errorf("Start() in error state = %v, want ErrFailed", err)
	}
	if err := f.manager.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := f.manager.State(); got != StateDisconnected {
		t.Fatalf("State() after Stop = %v, want %v", got, StateDisconnected)
	}

	f.provider.ConnectErr = nil
	if err := f.manager.Start(context.Background()); err != nil {
		t.Errorf("Start() after recovery error = %v", err)
	}
}

func TestSinkErrorFailsStart(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	sinkErr := errors.New("no audio output")
	mgr := NewManager(ManagerConfig{
		Provider: f.provider,
		Opener:   f.opener,
		NewSink:  func() (audio.OutputSink, error) { return nil, sinkErr },
	}, WithLogger(discardLogger()))

	if err := mgr.Start(context.Background()); !errors.Is(err, sinkErr) {
		t.Fatalf("Start() error = %v, want wrapping %v", err, sinkErr)
	}
	if got := mgr.State(); got != StateError {
		t.Errorf("State() = %v, want %v", got, StateError)
	}
	if got := f.session.Closed(); got != 1 {
		t.Errorf("session close count = %d, want 1", got)
	}
}

func TestAudioEventSchedulesPlayback(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	samples := []float32{0.25, -0.25, 0.5, -0.5}
	f.session.Emit(audioEvent(samples))

	waitFor(t, func() bool { return len(f.sink.Played()) == 1 }, "audio was never played")
	unit := f.sink.Played()[0]
	if got := len(unit.Buffer.Samples); got != len(samples) {
		t.Errorf("played %d samples, want %d", got, len(samples))
	}
	if unit.Buffer.SampleRate != pcm.DefaultOutputRate {
		t.Errorf("played sample rate = %d, want %d", unit.Buffer.SampleRate, pcm.DefaultOutputRate)
	}
}

func TestMalformedAudioDropped(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	f.session.Emit(transport.ServerEvent{AudioText: "not base64!!!", AudioSampleRate: pcm.DefaultOutputRate})
	f.session.Emit(audioEvent([]float32{0.1, 0.2}))

	waitFor(t, func() bool { return len(f.sink.Played()) == 1 }, "valid audio after malformed payload was never played")
	if got := f.manager.State(); got != StateConnected {
		t.Errorf("State() after malformed payload = %v, want %v", got, StateConnected)
	}
}

func TestInterruptedClearsPlayback(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// One second of audio so it is still playing when the interrupt lands.
	long := make([]float32, pcm.DefaultOutputRate)
	f.session.Emit(audioEvent(long))
	waitFor(t, func() bool { return len(f.sink.Played()) == 1 }, "audio was never played")
	id := f.sink.Played()[0].ID

	f.session.Emit(transport.ServerEvent{Interrupted: true})
	waitFor(t, func() bool {
		for _, stopped := range f.sink.Stopped() {
			if stopped == id {
				return true
			}
		}
		return false
	}, "interrupt never stopped the playing unit")
}

func TestStopClearsSpeaking(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var transitions []bool
	f := newFixture(t, WithSpeakingFunc(func(on bool) {
		mu.Lock()
		transitions = append(transitions, on)
		mu.Unlock()
	}))
	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Ten seconds of audio so playback is still running when Stop lands.
	long := make([]float32, 10*pcm.DefaultOutputRate)
	f.session.Emit(audioEvent(long))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(transitions) == 1 && transitions[0]
	}, "speaking never turned on")

	if err := f.manager.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if n := len(transitions); n == 0 || transitions[n-1] {
		t.Fatalf("speaking transitions = %v, want trailing false after stop", transitions)
	}
}

func TestTurnCompleteEmitsRecords(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var records []transcript.Record
	f := newFixture(t, WithRecordFunc(func(r transcript.Record) {
		mu.Lock()
		records = append(records, r)
		mu.Unlock()
	}))
	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	f.session.Emit(transport.ServerEvent{InputTranscription: "what is"})
	f.session.Emit(transport.ServerEvent{InputTranscription: " the time"})
	f.session.Emit(transport.ServerEvent{OutputTranscription: "It is noon."})
	f.session.Emit(transport.ServerEvent{TurnComplete: true})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(records) == 2
	}, "turn records were never emitted")

	mu.Lock()
	defer mu.Unlock()
	if records[0].Sender != transcript.SenderUser || records[0].Text != "what is the time" {
		t.Errorf("record 0 = %+v, want user %q", records[0], "what is the time")
	}
	if records[1].Sender != transcript.SenderAssistant || records[1].Text != "It is noon." {
		t.Errorf("record 1 = %+v, want assistant %q", records[1], "It is noon.")
	}

	history := f.manager.History()
	if len(history) != 2 {
		t.Errorf("History() returned %d records, want 2", len(history))
	}
}

func TestTurnCompleteWithoutUserSpeech(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var records []transcript.Record
	f := newFixture(t, WithRecordFunc(func(r transcript.Record) {
		mu.Lock()
		records = append(records, r)
		mu.Unlock()
	}))
	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	f.session.Emit(transport.ServerEvent{OutputTranscription: "Hello there."})
	f.session.Emit(transport.ServerEvent{TurnComplete: true})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(records) == 2
	}, "turn records were never emitted")

	mu.Lock()
	defer mu.Unlock()
	if records[0].Text != transcript.Placeholder {
		t.Errorf("silent user record text = %q, want placeholder", records[0].Text)
	}
}

func TestCaptureChunksForwarded(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	samples := []float32{0.5, -0.5, 0.25}
	f.device.Blocks <- samples

	waitFor(t, func() bool { return len(f.session.Sent()) >= 1 }, "captured audio was never sent")
	got := f.session.Sent()[0].Chunk
	want := pcm.Encode(samples)
	if len(got) != len(want) {
		t.Fatalf("sent %d bytes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sent chunk differs at byte %d", i)
		}
	}
}

func TestCaptureFailureFailsSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	f.device.SetReadErr(errors.New("device unplugged"))
	// Unblock the pending Read so the next one observes the error.
	f.device.Blocks <- []float32{0}

	waitFor(t, func() bool { return f.manager.State() == StateError }, "device failure never failed the session")
	waitFor(t, func() bool { return f.session.Closed() >= 1 }, "provider session was never closed")

	if err := f.manager.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := f.manager.State(); got != StateDisconnected {
		t.Errorf("State() after Stop = %v, want %v", got, StateDisconnected)
	}
}

func TestRemoteCloseDisconnects(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	f.session.CloseEvents()

	waitFor(t, func() bool { return f.manager.State() == StateDisconnected }, "remote close never disconnected the session")
	waitFor(t, func() bool { return f.sink.Closed() == 1 }, "sink was never closed")
	waitFor(t, func() bool { return f.device.Closed() >= 1 }, "capture device was never closed")
}

func TestServerErrorParksInErrorState(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	f.session.SetErr(errors.New("quota exceeded"))
	f.session.CloseEvents()

	waitFor(t, func() bool { return f.manager.State() == StateError }, "server error never failed the session")
	if err := f.manager.Start(context.Background()); !errors.Is(err, ErrFailed) {
		t.Errorf("Start() in error state = %v, want ErrFailed", err)
	}
}

func TestStopReleasesEverything(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := f.manager.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := f.manager.State(); got != StateDisconnected {
		t.Fatalf("State() = %v, want %v", got, StateDisconnected)
	}
	if got := f.session.Closed(); got != 1 {
		t.Errorf("session close count = %d, want 1", got)
	}
	if got := f.sink.Closed(); got != 1 {
		t.Errorf("sink close count = %d, want 1", got)
	}
	if got := f.device.Closed(); got < 1 {
		t.Errorf("device close count = %d, want >= 1", got)
	}
}

func TestStopIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.manager.Stop(); err != nil {
		t.Errorf("Stop() on idle manager error = %v", err)
	}

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.manager.Stop(); err != nil {
		t.Fatalf("first Stop() error = %v", err)
	}
	if err := f.manager.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestRestartAfterStop(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.manager.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	// A fresh session needs a fresh event stream and device.
	f.session = transportmock.NewSession()
	f.provider.Session = f.session
	f.device = &audiomock.Device{Blocks: make(chan []float32, 64), DeviceFormat: audio.CaptureFormat}
	f.opener.Device = f.device

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	if got := f.manager.State(); got != StateConnected {
		t.Errorf("State() after restart = %v, want %v", got, StateConnected)
	}
	if got := len(f.provider.Calls()); got != 2 {
		t.Errorf("Connect called %d times, want 2", got)
	}
}
