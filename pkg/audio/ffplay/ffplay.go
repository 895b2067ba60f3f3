// Package ffplay implements audio.OutputSink on top of a local ffplay
// process. Decoded samples are streamed as raw s16le PCM into ffplay's stdin,
// which keeps the dependency surface at "ffmpeg is installed" instead of
// linking a platform audio library.
//
// ffplay buffers internally, so cutting playback short requires killing and
// respawning the process. Stop does exactly that when the identified unit has
// been written but may still be audible.
package ffplay

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"

	"github.com/MrWong99/voxlink/pkg/audio"
	"github.com/MrWong99/voxlink/pkg/pcm"
)

// ErrClosed is returned by Play after the sink has been closed.
var ErrClosed = errors.New("ffplay: sink closed")

// Sink renders playback units through an ffplay child process.
type Sink struct {
	format audio.Format
	logger *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	pending map[uint64]struct{}
	closed  bool
}

// Option configures a Sink.
type Option func(*Sink)

// WithLogger sets the logger used for process lifecycle messages.
// Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) { s.logger = l }
}

// New creates a sink for streams of the given format and spawns the first
// ffplay process. It fails when ffplay is not on PATH or cannot start.
func New(format audio.Format, opts ...Option) (*Sink, error) {
	s := &Sink{
		format:  format,
		logger:  slog.Default(),
		pending: make(map[uint64]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.spawnLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// spawnLocked starts a fresh ffplay process. Caller holds s.mu (or is New).
func (s *Sink) spawnLocked() error {
	cmd := exec.Command("ffplay",
		"-f", "s16le",
		"-ch_layout", "mono",
		"-ar", strconv.Itoa(s.format.SampleRate),
		"-nodisp", "-autoexit",
		"-loglevel", "quiet",
		"-i", "-",
	)
	if runtime.GOOS == "darwin" {
		cmd.Env = append(os.Environ(), "SDL_AUDIODRIVER=coreaudio")
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("ffplay: stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffplay: start: %w", err)
	}
	s.cmd = cmd
	s.stdin = stdin
	s.logger.Debug("ffplay process started", "pid", cmd.Process.Pid, "sampleRate", s.format.SampleRate)
	return nil
}

// Play writes the unit's samples to the ffplay stdin pipe. The scheduler
// calls this at the unit's start time, so writes arrive in timeline order.
func (s *Sink) Play(u audio.Unit) error {
	data := pcm.Encode(u.Buffer.Samples)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.stdin == nil {
		if err := s.spawnLocked(); err != nil {
			return err
		}
	}
	if _, err := s.stdin.Write(data); err != nil {
		return fmt.Errorf("ffplay: write unit %d: %w", u.ID, err)
	}
	s.pending[u.ID] = struct{}{}
	return nil
}

// Stop truncates playback if the identified unit was written to the current
// process. ffplay cannot drop buffered audio selectively, so the process is
// killed and respawned, which silences every pending unit at once.
func (s *Sink) Stop(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, ok := s.pending[id]; !ok {
		return
	}
	s.pending = make(map[uint64]struct{})
	s.killLocked()
	if err := s.spawnLocked(); err != nil {
		s.logger.Error("ffplay restart after stop failed", "error", err)
		s.cmd = nil
		s.stdin = nil
	}
}

// Close kills the ffplay process. Safe to call more than once.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.killLocked()
	return nil
}

// killLocked tears down the current process. Caller holds s.mu.
func (s *Sink) killLocked() {
	if s.stdin != nil {
		_ = s.stdin.Close()
		s.stdin = nil
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		// Reap the child so killed processes do not accumulate as zombies.
		go func(cmd *exec.Cmd) { _ = cmd.Wait() }(s.cmd)
	}
	s.cmd = nil
}

// Ensure Sink implements audio.OutputSink at compile time.
var _ audio.OutputSink = (*Sink)(nil)
