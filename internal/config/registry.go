package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/voxlink/pkg/audio"
)

// ErrSinkNotRegistered is returned by CreateSink when no factory has been
// registered under the requested sink name.
var ErrSinkNotRegistered = errors.New("config: sink not registered")

// SinkEntry carries the audio settings a sink factory may need.
type SinkEntry struct {
	// Format is the playback stream shape the sink must render.
	Format audio.Format
}

// Registry maps playback sink names to their constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	sinks map[string]func(SinkEntry) (audio.OutputSink, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		sinks: make(map[string]func(SinkEntry) (audio.OutputSink, error)),
	}
}

// RegisterSink registers a playback sink factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSink(name string, factory func(SinkEntry) (audio.OutputSink, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[name] = factory
}

// CreateSink instantiates the playback sink registered under name.
// Returns [ErrSinkNotRegistered] if no factory has been registered for it.
func (r *Registry) CreateSink(name string, entry SinkEntry) (audio.OutputSink, error) {
	r.mu.RLock()
	factory, ok := r.sinks[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSinkNotRegistered, name)
	}
	return factory(entry)
}

// Names returns the registered sink names in no particular order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sinks))
	for name := range r.sinks {
		names = append(names, name)
	}
	return names
}
