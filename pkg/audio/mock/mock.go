// Package mock provides test doubles for the audio package interfaces.
//
// Use Opener to verify device acquisition and feed controlled capture blocks.
// Use Sink to inspect which playback units were rendered or stopped.
//
// Example:
//
//	dev := &mock.Device{Blocks: make(chan []float32, 8)}
//	op := &mock.Opener{Device: dev}
//	sink := &mock.Sink{}
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/voxlink/pkg/audio"
)

// ErrClosed is returned by Device.Read after Close.
var ErrClosed = errors.New("mock: device closed")

// OpenCall records a single invocation of Opener.Open.
type OpenCall struct {
	// Ctx is the context passed to Open.
	Ctx context.Context
	// Format is the stream shape requested.
	Format audio.Format
}

// Opener is a mock implementation of audio.InputOpener.
type Opener struct {
	mu sync.Mutex

	// Device is the InputDevice returned by Open. If nil, Open returns a new
	// default Device with a buffered block channel.
	Device audio.InputDevice

	// OpenErr, if non-nil, is returned as the error from Open.
	OpenErr error

	// OpenCalls records every call to Open in order.
	OpenCalls []OpenCall
}

// Open records the call and returns Device, OpenErr.
func (o *Opener) Open(ctx context.Context, format audio.Format) (audio.InputDevice, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.OpenCalls = append(o.OpenCalls, OpenCall{Ctx: ctx, Format: format})
	if o.OpenErr != nil {
		return nil, o.OpenErr
	}
	if o.Device != nil {
		return o.Device, nil
	}
	return &Device{Blocks: make(chan []float32, 64), DeviceFormat: format}, nil
}

// Ensure Opener implements audio.InputOpener at compile time.
var _ audio.InputOpener = (*Opener)(nil)

// Device is a mock implementation of audio.InputDevice. Callers pre-populate
// Blocks with capture data; closing the channel makes Read return ErrClosed.
type Device struct {
	mu sync.Mutex

	// Blocks delivers capture blocks to Read. Callers own this channel.
	Blocks chan []float32

	// DeviceFormat is returned by Format.
	DeviceFormat audio.Format

	// ReadErr, if non-nil, is returned by every Read call.
	ReadErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	closed chan struct{}
	once   sync.Once
}

// Read copies the next block from Blocks into dst. It returns ErrClosed once
// the device is closed or Blocks is closed.
func (d *Device) Read(dst []float32) (int, error) {
	d.mu.Lock()
	if d.ReadErr != nil {
		err := d.ReadErr
		d.mu.Unlock()
		return 0, err
	}
	d.ensureClosedCh()
	blocks, closed := d.Blocks, d.closed
	d.mu.Unlock()

	select {
	case block, ok := <-blocks:
		if !ok {
			return 0, ErrClosed
		}
		return copy(dst, block), nil
	case <-closed:
		return 0, ErrClosed
	}
}

// Format returns DeviceFormat.
func (d *Device) Format() audio.Format {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.DeviceFormat
}

// Close records the call, unblocks pending Reads, and returns CloseErr.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CloseCallCount++
	d.ensureClosedCh()
	d.once.Do(func() { close(d.closed) })
	return d.CloseErr
}

// SetReadErr sets ReadErr. Thread-safe.
func (d *Device) SetReadErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ReadErr = err
}

// Closed returns CloseCallCount. Thread-safe.
func (d *Device) Closed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.CloseCallCount
}

func (d *Device) ensureClosedCh() {
	if d.closed == nil {
		d.closed = make(chan struct{})
	}
}

// Ensure Device implements audio.InputDevice at compile time.
var _ audio.InputDevice = (*Device)(nil)

// Sink is a mock implementation of audio.OutputSink.
type Sink struct {
	mu sync.Mutex

	// PlayErr, if non-nil, is returned by every Play call.
	PlayErr error

	// PlayFunc, if non-nil, is invoked by Play after recording the unit,
	// with the sink's lock released. Its error takes precedence over PlayErr.
	PlayFunc func(u audio.Unit) error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// PlayCalls records every unit passed to Play in order.
	PlayCalls []audio.Unit

	// StopCalls records every unit ID passed to Stop in order.
	StopCalls []uint64

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Play records the unit, runs PlayFunc if set, and returns PlayErr.
func (s *Sink) Play(u audio.Unit) error {
	s.mu.Lock()
	s.PlayCalls = append(s.PlayCalls, u)
	hook := s.PlayFunc
	playErr := s.PlayErr
	s.mu.Unlock()
	if hook != nil {
		if err := hook(u); err != nil {
			return err
		}
	}
	return playErr
}

// Stop records the unit ID.
func (s *Sink) Stop(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StopCalls = append(s.StopCalls, id)
}

// Close records the call and returns CloseErr.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// Closed returns CloseCallCount. Thread-safe.
func (s *Sink) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount
}

// Played returns a copy of PlayCalls. Thread-safe.
func (s *Sink) Played() []audio.Unit {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]audio.Unit, len(s.PlayCalls))
	copy(cp, s.PlayCalls)
	return cp
}

// Stopped returns a copy of StopCalls. Thread-safe.
func (s *Sink) Stopped() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]uint64, len(s.StopCalls))
	copy(cp, s.StopCalls)
	return cp
}

// ResetCalls clears all recorded calls. Thread-safe.
func (s *Sink) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PlayCalls = nil
	s.StopCalls = nil
	s.CloseCallCount = 0
}

// Ensure Sink implements audio.OutputSink at compile time.
var _ audio.OutputSink = (*Sink)(nil)
