// Package capture runs the microphone side of a voice session: it acquires
// an input device, reads fixed-size sample blocks, converts them to the
// provider's stream format, and hands the encoded PCM to a send function.
//
// A single goroutine owns the device, so blocks are encoded and transmitted
// strictly in capture order. A failed send drops that one chunk and keeps
// capturing; live conversation cannot wait for retransmission.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/voxlink/pkg/audio"
	"github.com/MrWong99/voxlink/pkg/pcm"
)

// ErrAlreadyActive is returned by Start when the pipeline is already running.
var ErrAlreadyActive = errors.New("capture: pipeline already active")

// ErrDeviceAcquisition wraps failures to open the input device.
var ErrDeviceAcquisition = errors.New("capture: device acquisition failed")

// defaultBlockSize is the number of samples read per block, roughly 256ms at
// 16kHz. Small enough for responsive barge-in detection upstream, large
// enough to keep the message rate reasonable.
const defaultBlockSize = 4096

// SendFunc transmits one encoded PCM chunk. Returning an error drops the
// chunk; the pipeline keeps running.
type SendFunc func(chunk []byte) error

// Pipeline captures, converts, and transmits microphone audio.
type Pipeline struct {
	opener    audio.InputOpener
	send      SendFunc
	logger    *slog.Logger
	blockSize int
	target    audio.Format
	onFailure func(error)

	mu     sync.Mutex
	device audio.InputDevice
	active bool

	wg sync.WaitGroup
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithBlockSize overrides the number of samples read per block.
func WithBlockSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.blockSize = n
		}
	}
}

// WithSampleRate overrides the mono stream rate chunks are encoded at.
// Defaults to the rate in [audio.CaptureFormat].
func WithSampleRate(rate int) Option {
	return func(p *Pipeline) {
		if rate > 0 {
			p.target = audio.Format{SampleRate: rate, Channels: 1}
		}
	}
}

// WithFailureFunc registers a callback invoked when the device fails
// mid-capture (not when Stop closes it). The callback runs on the capture
// goroutine.
func WithFailureFunc(fn func(error)) Option {
	return func(p *Pipeline) { p.onFailure = fn }
}

// New creates a pipeline that opens devices through opener and transmits
// chunks through send.
func New(opener audio.InputOpener, send SendFunc, opts ...Option) *Pipeline {
	p := &Pipeline{
		opener:    opener,
		send:      send,
		logger:    slog.Default(),
		blockSize: defaultBlockSize,
		target:    audio.CaptureFormat,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start acquires the device and begins the capture loop. It returns
// ErrAlreadyActive if the pipeline is running, or an error wrapping
// ErrDeviceAcquisition when the device cannot be opened.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.active {
		p.mu.Unlock()
		return ErrAlreadyActive
	}
	p.active = true
	p.mu.Unlock()

	device, err := p.opener.Open(ctx, p.target)
	if err != nil {
		p.mu.Lock()
		p.active = false
		p.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrDeviceAcquisition, err)
	}

	p.mu.Lock()
	if !p.active {
		// Stop won the race while the device was opening.
		p.mu.Unlock()
		_ = device.Close()
		return errors.New("capture: stopped during start")
	}
	p.device = device
	p.mu.Unlock()

	p.wg.Add(1)
	go p.loop(device)
	return nil
}

// loop is the single goroutine that owns the device for one activation.
func (p *Pipeline) loop(device audio.InputDevice) {
	defer p.wg.Done()

	conv := audio.FormatConverter{Target: p.target}
	format := device.Format()
	buf := make([]float32, p.blockSize)

	for {
		n, err := device.Read(buf)
		if err != nil {
			p.mu.Lock()
			stopping := !p.active
			p.mu.Unlock()
			if stopping {
				return
			}
			p.logger.Error("capture device failed", "error", err)
			p.mu.Lock()
			p.active = false
			p.device = nil
			p.mu.Unlock()
			_ = device.Close()
			if p.onFailure != nil {
				p.onFailure(err)
			}
			return
		}
		if n == 0 {
			continue
		}

		block := conv.Convert(audio.Block{Samples: buf[:n], Format: format})
		if err := p.send(pcm.Encode(block.Samples)); err != nil {
			p.logger.Warn("capture chunk dropped", "samples", len(block.Samples), "error", err)
		}
	}
}

// Stop closes the device and waits for the capture goroutine to exit. Safe to
// call when the pipeline is not running, and safe to call more than once.
// The pipeline can be started again afterwards.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return nil
	}
	p.active = false
	device := p.device
	p.device = nil
	p.mu.Unlock()

	var err error
	if device != nil {
		err = device.Close()
	}
	p.wg.Wait()
	if err != nil {
		return fmt.Errorf("capture: close device: %w", err)
	}
	return nil
}

// Active reports whether the capture loop is running.
func (p *Pipeline) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}
