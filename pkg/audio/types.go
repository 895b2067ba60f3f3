package audio

import (
	"time"

	"github.com/MrWong99/voxlink/pkg/pcm"
)

// Format describes the shape of an audio stream.
type Format struct {
	// SampleRate in Hz (e.g., 16000 for capture, 24000 for playback).
	SampleRate int

	// Channels: 1 for mono. Voice sessions are mono on both directions.
	Channels int
}

// CaptureFormat is the stream shape expected by providers on the microphone
// path.
var CaptureFormat = Format{SampleRate: pcm.DefaultInputRate, Channels: 1}

// PlaybackFormat is the stream shape of audio returned by providers.
var PlaybackFormat = Format{SampleRate: pcm.DefaultOutputRate, Channels: 1}

// Unit is one scheduled slice of playback audio. Units are the atomic
// playback element: each decoded provider chunk becomes exactly one Unit with
// a fixed start time on the output timeline.
type Unit struct {
	// ID uniquely identifies the unit within its scheduler.
	ID uint64

	// Buffer holds the decoded samples.
	Buffer pcm.Buffer

	// StartAt is the wall-clock instant the unit is due to start rendering.
	StartAt time.Time
}

// Duration returns the playback length of the unit's buffer.
func (u Unit) Duration() time.Duration { return u.Buffer.Duration() }
