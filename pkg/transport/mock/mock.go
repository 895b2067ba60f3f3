// Package mock provides test doubles for the transport package interfaces.
//
// Use Provider to verify Connect calls and feed controlled sessions. Use
// Session to drive the server event stream and inspect which methods were
// invoked by the session manager.
//
// Example:
//
//	sess := &mock.Session{EventsCh: make(chan transport.ServerEvent, 8)}
//	p := &mock.Provider{Session: sess}
//	s, _ := p.Connect(ctx, cfg)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxlink/pkg/transport"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Ctx is the context passed to Connect.
	Ctx context.Context
	// Cfg is the Config passed to Connect.
	Cfg transport.Config
}

// Provider is a mock implementation of transport.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the Session returned by Connect. If nil, Connect returns a
	// new default Session with a buffered event channel.
	Session transport.Session

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns Session, ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg transport.Config) (transport.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return NewSession(), nil
}

// Calls returns a copy of ConnectCalls. Thread-safe.
func (p *Provider) Calls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]ConnectCall, len(p.ConnectCalls))
	copy(cp, p.ConnectCalls)
	return cp
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = nil
}

// Ensure Provider implements transport.Provider at compile time.
var _ transport.Provider = (*Provider)(nil)

// SendAudioCall records a single invocation of Session.SendAudio.
type SendAudioCall struct {
	// Chunk is a copy of the audio bytes that were passed to SendAudio.
	Chunk []byte
}

// Session is a mock implementation of transport.Session. Tests push events
// into EventsCh to simulate provider messages; CloseEvents (or Close) ends
// the stream.
type Session struct {
	mu sync.Mutex

	// EventsCh is the channel returned by Events(). Callers own this channel
	// but should end the stream via CloseEvents so double closes are safe.
	EventsCh chan transport.ServerEvent

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// TerminalErr is returned by Err.
	TerminalErr error

	// SendAudioCalls records every call to SendAudio in order.
	SendAudioCalls []SendAudioCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	closeOnce sync.Once
}

// NewSession returns a Session with a buffered event channel.
func NewSession() *Session {
	return &Session{EventsCh: make(chan transport.ServerEvent, 64)}
}

// SendAudio records the call and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SendAudioCalls = append(s.SendAudioCalls, SendAudioCall{Chunk: cp})
	return s.SendAudioErr
}

// Events returns EventsCh.
func (s *Session) Events() <-chan transport.ServerEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.EventsCh
}

// Err returns TerminalErr.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.TerminalErr
}

// Emit pushes an event onto EventsCh. Thread-safe convenience for tests.
func (s *Session) Emit(ev transport.ServerEvent) {
	s.mu.Lock()
	ch := s.EventsCh
	s.mu.Unlock()
	ch <- ev
}

// SetErr sets TerminalErr. Thread-safe.
func (s *Session) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TerminalErr = err
}

// CloseEvents closes EventsCh exactly once.
func (s *Session) CloseEvents() {
	s.closeOnce.Do(func() { close(s.EventsCh) })
}

// Close records the call, ends the event stream, and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	s.CloseCallCount++
	err := s.CloseErr
	s.mu.Unlock()
	s.CloseEvents()
	return err
}

// Closed returns CloseCallCount. Thread-safe.
func (s *Session) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount
}

// Sent returns a copy of SendAudioCalls. Thread-safe.
func (s *Session) Sent() []SendAudioCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]SendAudioCall, len(s.SendAudioCalls))
	copy(cp, s.SendAudioCalls)
	return cp
}

// ResetCalls clears all recorded calls. Thread-safe.
func (s *Session) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendAudioCalls = nil
	s.CloseCallCount = 0
}

// Ensure Session implements transport.Session at compile time.
var _ transport.Session = (*Session)(nil)
