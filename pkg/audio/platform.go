// Package audio defines the device interfaces and stream types for the
// capture and playback sides of a voice session.
//
// The two primary abstractions are:
//
//   - [InputDevice] — an acquired microphone (or equivalent) that delivers
//     fixed-size blocks of normalized samples.
//   - [OutputSink] — a speaker (or equivalent) that renders scheduled
//     playback units and can cut them short on interruption.
//
// Implementations are provided by adapter packages (e.g., audio/ffplay for a
// local speaker, audio/mock for tests). The interfaces are intentionally
// narrow to keep the session orchestrator decoupled from device details.
//
// This package lives under pkg/ because external code (alternative device
// adapters) is expected to implement [InputDevice] and [OutputSink].
package audio

import "context"

// InputDevice represents an acquired audio capture device.
//
// An InputDevice is obtained from an [InputOpener] and remains valid until
// [InputDevice.Close] is called. Read delivers blocks in capture order;
// implementations must not reorder or drop blocks internally.
type InputDevice interface {
	// Read blocks until the next capture block is available and appends its
	// samples into dst, returning the number of samples written. It returns
	// an error once the device is closed or fails.
	Read(dst []float32) (int, error)

	// Format reports the stream shape the device was opened with.
	Format() Format

	// Close releases the device. It is safe to call more than once;
	// subsequent calls are no-ops and return nil.
	Close() error
}

// InputOpener acquires capture devices. Acquisition can fail (permission
// denied, device busy), so it is a separate fallible step from construction.
//
// Implementations must be safe for concurrent use.
type InputOpener interface {
	// Open acquires a capture device producing streams of the given format.
	// The supplied ctx governs the acquisition attempt only; once opened, the
	// device remains alive until [InputDevice.Close].
	Open(ctx context.Context, format Format) (InputDevice, error)
}

// OutputSink renders playback units.
//
// Play is called when a unit's scheduled start time arrives; Stop cuts a
// specific in-flight unit short. Implementations must be safe for concurrent
// use: Stop and Play race during barge-in.
type OutputSink interface {
	// Play renders the unit's samples. It returns once rendering of the unit
	// has been handed to the device, not once it finishes audibly.
	Play(u Unit) error

	// Stop halts the identified unit if it is still rendering. Stopping an
	// unknown or finished unit is a no-op.
	Stop(id uint64)

	// Close stops all rendering and releases the device. Safe to call more
	// than once.
	Close() error
}
