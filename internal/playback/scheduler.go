// Package playback schedules decoded audio buffers onto a gapless output
// timeline.
//
// The scheduler keeps a running cursor: each buffer is placed at the later of
// the cursor and the current time, and the cursor advances by the buffer's
// duration. Buffers that arrive while earlier ones are still playing queue up
// back to back with no gaps; a buffer that arrives after the timeline drained
// starts immediately. Barge-in clears everything at once and rewinds the
// cursor so the next reply starts fresh.
package playback

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voxlink/pkg/audio"
	"github.com/MrWong99/voxlink/pkg/pcm"
)

// ErrClosed is returned by Schedule after the scheduler has been closed.
var ErrClosed = errors.New("playback: scheduler closed")

// scheduledUnit tracks one in-flight unit together with its timers.
type scheduledUnit struct {
	unit       audio.Unit
	startTimer *time.Timer
	endTimer   *time.Timer
}

// Scheduler owns the playback timeline for one session.
type Scheduler struct {
	sink     audio.OutputSink
	logger   *slog.Logger
	now      func() time.Time
	speaking func(bool)
	unitDone func(audio.Unit)

	mu        sync.Mutex
	active    map[uint64]*scheduledUnit
	nextID    uint64
	nextStart time.Time
	closed    bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithClock overrides the time source. Primarily used in tests to pin the
// timeline to a fake clock.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithSpeakingFunc registers a callback invoked on every transition between
// "at least one unit active" and "timeline drained". The callback runs with
// internal locks released but must still return quickly.
func WithSpeakingFunc(fn func(bool)) Option {
	return func(s *Scheduler) { s.speaking = fn }
}

// WithUnitDoneFunc registers a callback invoked whenever a unit leaves the
// timeline, whether it finished, was interrupted, or the scheduler closed.
func WithUnitDoneFunc(fn func(audio.Unit)) Option {
	return func(s *Scheduler) { s.unitDone = fn }
}

// New creates a scheduler that renders units through sink.
func New(sink audio.OutputSink, opts ...Option) *Scheduler {
	s := &Scheduler{
		sink:   sink,
		logger: slog.Default(),
		now:    time.Now,
		active: make(map[uint64]*scheduledUnit),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule places buf on the timeline and returns the resulting unit. The
// unit starts at the later of the timeline cursor and now, and the cursor
// advances by the buffer's duration.
func (s *Scheduler) Schedule(buf pcm.Buffer) (audio.Unit, error) {
	dur := buf.Duration()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return audio.Unit{}, ErrClosed
	}

	now := s.now()
	startAt := s.nextStart
	if startAt.Before(now) {
		startAt = now
	}
	s.nextStart = startAt.Add(dur)

	s.nextID++
	unit := audio.Unit{ID: s.nextID, Buffer: buf, StartAt: startAt}
	su := &scheduledUnit{unit: unit}
	s.active[unit.ID] = su
	wasSilent := len(s.active) == 1

	su.startTimer = time.AfterFunc(startAt.Sub(now), func() { s.start(unit.ID) })
	su.endTimer = time.AfterFunc(s.nextStart.Sub(now), func() { s.finish(unit.ID) })
	s.mu.Unlock()

	if wasSilent && s.speaking != nil {
		s.speaking(true)
	}
	return unit, nil
}

// start hands the unit to the sink when its start time arrives. A unit that
// was interrupted between scheduling and its start time is skipped.
func (s *Scheduler) start(id uint64) {
	s.mu.Lock()
	su, ok := s.active[id]
	s.mu.Unlock()
	if !ok {
		return
	}

	if err := s.sink.Play(su.unit); err != nil {
		s.logger.Warn("playback unit failed to start", "unitID", id, "error", err)
		s.finish(id)
		return
	}

	// An interrupt may have cleared the unit while the sink was taking the
	// handoff; its Stop call arrived before the sink knew the id.
	s.mu.Lock()
	_, alive := s.active[id]
	s.mu.Unlock()
	if !alive {
		s.sink.Stop(id)
	}
}

// finish removes a completed unit from the active set.
func (s *Scheduler) finish(id uint64) {
	s.mu.Lock()
	su, ok := s.active[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.active, id)
	drained := len(s.active) == 0
	s.mu.Unlock()

	if s.unitDone != nil {
		s.unitDone(su.unit)
	}
	if drained && s.speaking != nil {
		s.speaking(false)
	}
}

// Interrupt discards every pending and in-flight unit and rewinds the
// timeline cursor, so the next scheduled buffer starts immediately.
// Interrupting an empty timeline is a no-op; calling it repeatedly is safe.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	cleared := s.clearLocked()
	s.nextStart = time.Time{}
	s.mu.Unlock()

	for _, su := range cleared {
		s.sink.Stop(su.unit.ID)
		if s.unitDone != nil {
			s.unitDone(su.unit)
		}
	}
	if len(cleared) > 0 && s.speaking != nil {
		s.speaking(false)
	}
}

// Close interrupts all playback and rejects further scheduling. Safe to call
// more than once.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cleared := s.clearLocked()
	s.mu.Unlock()

	for _, su := range cleared {
		s.sink.Stop(su.unit.ID)
		if s.unitDone != nil {
			s.unitDone(su.unit)
		}
	}
	if len(cleared) > 0 && s.speaking != nil {
		s.speaking(false)
	}
	return nil
}

// clearLocked stops all timers and empties the active set. Caller holds s.mu.
func (s *Scheduler) clearLocked() []*scheduledUnit {
	cleared := make([]*scheduledUnit, 0, len(s.active))
	for _, su := range s.active {
		su.startTimer.Stop()
		su.endTimer.Stop()
		cleared = append(cleared, su)
	}
	s.active = make(map[uint64]*scheduledUnit)
	return cleared
}

// NextStart reports the current timeline cursor. The zero time means the
// timeline is at its origin and the next buffer starts immediately.
func (s *Scheduler) NextStart() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

// ActiveCount reports the number of scheduled or playing units.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Speaking reports whether any unit is scheduled or playing.
func (s *Scheduler) Speaking() bool {
	return s.ActiveCount() > 0
}
