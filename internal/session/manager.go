// Package session orchestrates one full-duplex voice conversation: it wires
// the capture pipeline, provider transport, playback scheduler, and turn
// aggregator together and drives them through a small state machine.
//
// Only one session can be active at a time. Stopping — whether user
// initiated, remote initiated, or failure driven — releases every resource
// the session acquired: the capture device, the playback timeline, the output
// sink, and the provider connection. A failed session parks in StateError so
// the failure stays visible; an explicit Stop acknowledges it and returns to
// StateDisconnected.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voxlink/internal/capture"
	"github.com/MrWong99/voxlink/internal/observe"
	"github.com/MrWong99/voxlink/internal/playback"
	"github.com/MrWong99/voxlink/internal/transcript"
	"github.com/MrWong99/voxlink/pkg/audio"
	"github.com/MrWong99/voxlink/pkg/pcm"
	"github.com/MrWong99/voxlink/pkg/transport"
)

// ErrActive is returned by Start when a session is already running.
var ErrActive = errors.New("session: a session is already active")

// ErrFailed is returned by Start while a previous failure has not been
// acknowledged with Stop.
var ErrFailed = errors.New("session: previous session failed; stop it first")

// SinkFactory creates the output sink for one session. Sinks hold devices or
// child processes, so each session gets a fresh one.
type SinkFactory func() (audio.OutputSink, error)

// ManagerConfig holds all dependencies for a [Manager].
type ManagerConfig struct {
	// Provider dials the streaming speech session.
	Provider transport.Provider

	// Opener acquires the capture device.
	Opener audio.InputOpener

	// NewSink creates the playback sink for each session.
	NewSink SinkFactory

	// Transport is the provider session configuration.
	Transport transport.Config

	// BlockSize overrides the capture pipeline's samples-per-block. Zero
	// keeps the pipeline default.
	BlockSize int

	// Metrics receives session telemetry. Defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics
}

// Manager owns the lifecycle of voice sessions.
// All exported methods are safe for concurrent use.
type Manager struct {
	provider  transport.Provider
	opener    audio.InputOpener
	newSink   SinkFactory
	cfg       transport.Config
	blockSize int
	metrics   *observe.Metrics
	logger    *slog.Logger

	onState    func(State)
	onSpeaking func(bool)
	onRecord   func(transcript.Record)

	mu        sync.Mutex
	state     State
	gen       uint64
	sess      transport.Session
	sched     *playback.Scheduler
	agg       *transcript.Aggregator
	cancel    context.CancelFunc
	startedAt time.Time

	// closers are called in reverse order during teardown.
	closers []func() error
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithStateFunc registers a callback invoked on every state transition. The
// callback runs with internal locks released; it may call Manager methods.
func WithStateFunc(fn func(State)) Option {
	return func(m *Manager) { m.onState = fn }
}

// WithSpeakingFunc registers a callback for transitions between the assistant
// audibly speaking and silent.
func WithSpeakingFunc(fn func(bool)) Option {
	return func(m *Manager) { m.onSpeaking = fn }
}

// WithRecordFunc registers a callback invoked for every finalized transcript
// record, in completion order.
func WithRecordFunc(fn func(transcript.Record)) Option {
	return func(m *Manager) { m.onRecord = fn }
}

// NewManager creates a Manager with the given dependencies.
func NewManager(cfg ManagerConfig, opts ...Option) *Manager {
	m := &Manager{
		provider:  cfg.Provider,
		opener:    cfg.Opener,
		newSink:   cfg.NewSink,
		cfg:       cfg.Transport,
		blockSize: cfg.BlockSize,
		metrics:   cfg.Metrics,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	return m
}

// Start establishes a new session: it dials the provider, creates the
// playback sink and scheduler, and begins capturing. Returns ErrActive when a
// session is running and ErrFailed when a previous failure has not been
// acknowledged.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnecting, StateConnected:
		m.mu.Unlock()
		return ErrActive
	case StateError:
		m.mu.Unlock()
		return ErrFailed
	}
	m.gen++
	myGen := m.gen
	m.state = StateConnecting
	m.mu.Unlock()
	m.notifyState(StateConnecting)

	sessCtx, cancel := context.WithCancel(context.Background())

	sess, err := m.provider.Connect(sessCtx, m.cfg)
	if err != nil {
		cancel()
		m.abortStart(myGen)
		return fmt.Errorf("session: connect: %w", err)
	}

	sink, err := m.newSink()
	if err != nil {
		_ = sess.Close()
		cancel()
		m.abortStart(myGen)
		return fmt.Errorf("session: create sink: %w", err)
	}

	sched := playback.New(sink,
		playback.WithLogger(m.logger),
		playback.WithSpeakingFunc(func(on bool) { m.handleSpeaking(myGen, on) }),
		playback.WithUnitDoneFunc(func(audio.Unit) {
			m.metrics.ActivePlaybackUnits.Add(context.Background(), -1)
		}),
	)

	agg := transcript.New()

	pipeline := capture.New(m.opener, m.sendFunc(myGen),
		capture.WithLogger(m.logger),
		capture.WithBlockSize(m.blockSize),
		capture.WithSampleRate(m.cfg.InputSampleRate),
		capture.WithFailureFunc(func(err error) {
			m.fail(myGen, fmt.Errorf("session: capture: %w", err))
		}),
	)

	if err := pipeline.Start(ctx); err != nil {
		_ = sched.Close()
		_ = sink.Close()
		_ = sess.Close()
		cancel()
		m.abortStart(myGen)
		return fmt.Errorf("session: start capture: %w", err)
	}

	m.mu.Lock()
	if m.gen != myGen {
		// Stop raced with Start; release everything we just built.
		m.mu.Unlock()
		_ = pipeline.Stop()
		_ = sched.Close()
		_ = sink.Close()
		_ = sess.Close()
		cancel()
		return fmt.Errorf("session: stopped during start")
	}
	m.state = StateConnected
	m.sess = sess
	m.sched = sched
	m.agg = agg
	m.cancel = cancel
	m.startedAt = time.Now()
	m.closers = []func() error{sess.Close, sink.Close, sched.Close, pipeline.Stop}
	m.mu.Unlock()

	m.metrics.ActiveSessions.Add(ctx, 1)
	m.notifyState(StateConnected)
	m.logger.Info("session started",
		"model", m.cfg.Model,
		"voice", m.cfg.Voice,
		"input_rate", m.cfg.InputSampleRate,
	)

	go m.eventLoop(myGen, sess, sched, agg)
	return nil
}

// abortStart rolls the state machine back after a failed Start, unless a
// concurrent Stop already moved it.
func (m *Manager) abortStart(myGen uint64) {
	m.mu.Lock()
	if m.gen != myGen {
		m.mu.Unlock()
		return
	}
	m.state = StateError
	m.mu.Unlock()
	m.notifyState(StateError)
}

// sendFunc builds the capture transmit function for one session generation.
func (m *Manager) sendFunc(myGen uint64) capture.SendFunc {
	return func(chunk []byte) error {
		m.mu.Lock()
		sess := m.sess
		stale := m.gen != myGen
		m.mu.Unlock()
		if stale || sess == nil {
			return fmt.Errorf("session: not connected")
		}
		if err := sess.SendAudio(chunk); err != nil {
			m.metrics.RecordCaptureChunk(context.Background(), "dropped")
			return err
		}
		m.metrics.RecordCaptureChunk(context.Background(), "sent")
		return nil
	}
}

// eventLoop drains the provider event stream for one session generation and
// decides how the session ends when the stream closes.
func (m *Manager) eventLoop(myGen uint64, sess transport.Session, sched *playback.Scheduler, agg *transcript.Aggregator) {
	for ev := range sess.Events() {
		m.handleEvent(myGen, ev, sched, agg)
	}

	m.mu.Lock()
	stale := m.gen != myGen
	m.mu.Unlock()
	if stale {
		return // Stop already tore the session down
	}

	if err := sess.Err(); err != nil {
		m.fail(myGen, fmt.Errorf("session: transport: %w", err))
		return
	}

	// Remote closed cleanly; release everything and return to idle.
	m.logger.Info("session closed by provider")
	m.teardown(myGen, StateDisconnected)
}

// handleEvent routes one provider message. Events for a stale generation are
// dropped: they belong to a session that has already been torn down.
func (m *Manager) handleEvent(myGen uint64, ev transport.ServerEvent, sched *playback.Scheduler, agg *transcript.Aggregator) {
	m.mu.Lock()
	if m.gen != myGen {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	ctx := context.Background()

	if ev.AudioText != "" {
		buf, err := pcm.DecodeTransport(ev.AudioText, ev.AudioSampleRate)
		if err != nil {
			m.logger.Warn("malformed audio payload dropped", "error", err)
			m.metrics.RecordCodecError(ctx, "inbound")
		} else if len(buf.Samples) > 0 {
			unit, err := sched.Schedule(buf)
			if err == nil {
				m.metrics.ActivePlaybackUnits.Add(ctx, 1)
				m.metrics.RecordScheduledUnit(ctx, time.Until(unit.StartAt))
			}
		}
	}

	if ev.InputTranscription != "" {
		agg.Append(transcript.SenderUser, ev.InputTranscription)
	}
	if ev.OutputTranscription != "" {
		agg.Append(transcript.SenderAssistant, ev.OutputTranscription)
	}

	if ev.Interrupted {
		sched.Interrupt()
		m.metrics.RecordInterruption(ctx)
		m.logger.Debug("playback interrupted by barge-in")
	}

	if ev.TurnComplete {
		user, assistant := agg.CompleteTurn()
		m.metrics.RecordTurn(ctx)
		if m.onRecord != nil {
			m.onRecord(user)
			m.onRecord(assistant)
		}
	}
}

// handleSpeaking forwards speaking transitions for the current generation.
func (m *Manager) handleSpeaking(myGen uint64, on bool) {
	m.mu.Lock()
	stale := m.gen != myGen
	m.mu.Unlock()
	if stale || m.onSpeaking == nil {
		return
	}
	m.onSpeaking(on)
}

// Stop ends the active session and releases all resources. Stopping an idle
// manager is a no-op; stopping a failed one acknowledges the failure and
// returns to StateDisconnected.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.state == StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	if m.state == StateError {
		// Resources were already released when the session failed.
		m.gen++
		m.state = StateDisconnected
		m.mu.Unlock()
		m.notifyState(StateDisconnected)
		return nil
	}
	m.mu.Unlock()

	m.teardown(m.currentGen(), StateDisconnected)
	m.logger.Info("session stopped")
	return nil
}

// currentGen returns the live generation counter.
func (m *Manager) currentGen() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

// teardown releases every session resource and moves to final. It is the
// single exit path for user stops, remote closes, and failures; generation
// checking makes concurrent exits settle on whoever gets the lock first.
func (m *Manager) teardown(myGen uint64, final State) {
	m.mu.Lock()
	if m.gen != myGen {
		m.mu.Unlock()
		return
	}
	m.gen++
	closers := m.closers
	sched := m.sched
	cancel := m.cancel
	startedAt := m.startedAt
	wasConnected := m.state == StateConnected
	m.sess = nil
	m.sched = nil
	m.cancel = nil
	m.closers = nil
	m.startedAt = time.Time{}
	m.state = final
	m.mu.Unlock()

	// The generation bump above makes the scheduler's own drain callback
	// stale, so teardown must emit the final silence transition itself.
	wasSpeaking := sched != nil && sched.Speaking()

	// Close outside the lock: closers may fire callbacks that re-enter the
	// manager.
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			m.logger.Warn("session closer error", "index", i, "error", err)
		}
	}
	if cancel != nil {
		cancel()
	}

	if wasSpeaking && m.onSpeaking != nil {
		m.onSpeaking(false)
	}

	if wasConnected {
		ctx := context.Background()
		m.metrics.ActiveSessions.Add(ctx, -1)
		m.metrics.SessionDuration.Record(ctx, time.Since(startedAt).Seconds())
	}
	m.notifyState(final)
}

// fail tears the session down after an unrecoverable error, parking the
// state machine in StateError until Stop acknowledges it.
func (m *Manager) fail(myGen uint64, err error) {
	m.mu.Lock()
	if m.gen != myGen {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.logger.Error("session failed", "error", err)
	m.teardown(myGen, StateError)
}

// notifyState invokes the state callback, if any.
func (m *Manager) notifyState(s State) {
	if m.onState != nil {
		m.onState(s)
	}
}

// State reports the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// History returns the finalized transcript records of the current session,
// or of the most recent one when no session is active.
func (m *Manager) History() []transcript.Record {
	m.mu.Lock()
	agg := m.agg
	m.mu.Unlock()
	if agg == nil {
		return nil
	}
	return agg.History()
}
