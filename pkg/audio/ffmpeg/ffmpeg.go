// Package ffmpeg implements audio.InputOpener on top of a local ffmpeg
// process recording from the platform's default microphone. Raw s16le PCM is
// read from ffmpeg's stdout and decoded to float32 blocks, which keeps the
// dependency surface at "ffmpeg is installed" instead of linking a platform
// audio library.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"sync"

	"github.com/MrWong99/voxlink/pkg/audio"
	"github.com/MrWong99/voxlink/pkg/pcm"
)

// ErrClosed is returned by Read after the device has been closed.
var ErrClosed = errors.New("ffmpeg: device closed")

// Opener opens microphone devices backed by ffmpeg child processes.
type Opener struct {
	// Input overrides the capture source passed to ffmpeg's -i flag.
	// Empty selects the platform default microphone.
	Input string
}

// inputArgs returns the platform capture flags for ffmpeg.
func (o *Opener) inputArgs() []string {
	input := o.Input
	switch runtime.GOOS {
	case "darwin":
		if input == "" {
			input = ":default"
		}
		return []string{"-f", "avfoundation", "-i", input}
	case "windows":
		if input == "" {
			input = "audio=default"
		}
		return []string{"-f", "dshow", "-i", input}
	default:
		if input == "" {
			input = "default"
		}
		return []string{"-f", "alsa", "-i", input}
	}
}

// Open spawns an ffmpeg process recording mono s16le at the requested sample
// rate. The process is killed when ctx is cancelled or the device is closed.
func (o *Opener) Open(ctx context.Context, format audio.Format) (audio.InputDevice, error) {
	args := o.inputArgs()
	args = append(args,
		"-ac", "1",
		"-ar", strconv.Itoa(format.SampleRate),
		"-f", "s16le",
		"-loglevel", "quiet",
		"-",
	)
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg: start: %w", err)
	}
	return &device{
		cmd:    cmd,
		stdout: stdout,
		format: audio.Format{SampleRate: format.SampleRate, Channels: 1},
	}, nil
}

// device is one live recording process.
type device struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	format audio.Format
	raw    []byte

	mu     sync.Mutex
	closed bool
}

// Read fills dst with the next captured samples. It blocks until ffmpeg has
// produced at least one full frame. Only one goroutine may call Read.
func (d *device) Read(dst []float32) (int, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	if need := len(dst) * 2; cap(d.raw) < need {
		d.raw = make([]byte, need)
	}
	raw := d.raw[:len(dst)*2]
	n, err := io.ReadFull(d.stdout, raw)
	if n < 2 {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return 0, fmt.Errorf("ffmpeg: read: %w", err)
	}
	buf, derr := pcm.Decode(raw[:n-n%2], d.format.SampleRate)
	if derr != nil {
		return 0, derr
	}
	copy(dst, buf.Samples)
	return len(buf.Samples), nil
}

// Format reports the stream shape ffmpeg was asked to produce.
func (d *device) Format() audio.Format {
	return d.format
}

// Close kills the recording process and unblocks a pending Read. Safe to call
// more than once.
func (d *device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	_ = d.stdout.Close()
	if d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
		// Reap the child so killed processes do not accumulate as zombies.
		go func(cmd *exec.Cmd) { _ = cmd.Wait() }(d.cmd)
	}
	return nil
}

// Ensure the ffmpeg types implement the audio contracts at compile time.
var (
	_ audio.InputOpener = (*Opener)(nil)
	_ audio.InputDevice = (*device)(nil)
)
