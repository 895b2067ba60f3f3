// Package config provides the configuration schema, loader, file watcher, and
// sink registry for the Voxlink voice session server.
package config

import (
	"os"

	"github.com/MrWong99/voxlink/pkg/pcm"
	"github.com/MrWong99/voxlink/pkg/transport"
)

// APIKeyEnv is the environment variable holding the Gemini API key. Secrets
// stay out of the config file so it can be committed and hot-reloaded freely.
const APIKeyEnv = "GEMINI_API_KEY"

// APIKey returns the provider API key from the environment.
func APIKey() string {
	return os.Getenv(APIKeyEnv)
}

// LogLevel controls log verbosity for the Voxlink server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Voxlink.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	Audio     AudioConfig     `yaml:"audio"`
}

// ServerConfig holds network and logging settings for the debug HTTP server.
type ServerConfig struct {
	// ListenAddr is the TCP address the metrics and health endpoints listen
	// on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// TransportConfig describes the conversational model session. Changes take
// effect the next time a session is started.
type TransportConfig struct {
	// Model is the streaming speech model identifier
	// (e.g., "gemini-2.5-flash-native-audio-preview-09-2025").
	// Leave empty to use the provider's default.
	Model string `yaml:"model"`

	// Voice selects the prebuilt synthesis voice (e.g., "Puck", "Kore").
	Voice string `yaml:"voice"`

	// SystemInstruction is free-text guidance injected into the model's
	// system prompt.
	SystemInstruction string `yaml:"system_instruction"`

	// TranscribeInput requests text transcription of the user's speech.
	// Defaults to true when omitted.
	TranscribeInput *bool `yaml:"transcribe_input"`

	// TranscribeOutput requests text transcription of the model's speech.
	// Defaults to true when omitted.
	TranscribeOutput *bool `yaml:"transcribe_output"`

	// BaseURL overrides the provider's default WebSocket endpoint.
	BaseURL string `yaml:"base_url"`
}

// AudioConfig holds capture and playback settings.
type AudioConfig struct {
	// InputSampleRate is the rate in Hz that captured audio is encoded at
	// before streaming. Defaults to 16000.
	InputSampleRate int `yaml:"input_sample_rate"`

	// BlockSize is the number of samples read from the capture device per
	// block. Defaults to 4096.
	BlockSize int `yaml:"block_size"`

	// Sink selects the registered playback sink implementation
	// (e.g., "ffplay").
	Sink string `yaml:"sink"`
}

// SessionConfig converts the transport section into the session configuration
// passed to the provider.
func (c *Config) SessionConfig() transport.Config {
	return transport.Config{
		Model:             c.Transport.Model,
		SystemInstruction: c.Transport.SystemInstruction,
		Voice:             c.Transport.Voice,
		InputSampleRate:   c.Audio.InputSampleRate,
		TranscribeInput:   c.Transport.TranscribeInput == nil || *c.Transport.TranscribeInput,
		TranscribeOutput:  c.Transport.TranscribeOutput == nil || *c.Transport.TranscribeOutput,
	}
}

// applyDefaults fills zero-valued fields with their documented defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Audio.InputSampleRate == 0 {
		cfg.Audio.InputSampleRate = pcm.DefaultInputRate
	}
	if cfg.Audio.BlockSize == 0 {
		cfg.Audio.BlockSize = 4096
	}
	if cfg.Audio.Sink == "" {
		cfg.Audio.Sink = "ffplay"
	}
}
