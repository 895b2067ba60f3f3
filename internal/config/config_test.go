package config

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/MrWong99/voxlink/pkg/pcm"
)

func TestLoadFromReaderFull(t *testing.T) {
	t.Parallel()

	yml := `
server:
  listen_addr: ":9090"
  log_level: debug
transport:
  model: gemini-2.5-flash-native-audio-preview-09-2025
  voice: Kore
  system_instruction: "You are a terse assistant."
  transcribe_input: true
  transcribe_output: false
audio:
  input_sample_rate: 16000
  block_size: 2048
  sink: ffplay
`
	cfg, err := LoadFromReader(strings.NewReader(yml))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Server.LogLevel != LogDebug {
		t.Errorf("LogLevel = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Transport.Voice != "Kore" {
		t.Errorf("Voice = %q, want Kore", cfg.Transport.Voice)
	}
	if cfg.Audio.BlockSize != 2048 {
		t.Errorf("BlockSize = %d, want 2048", cfg.Audio.BlockSize)
	}

	sc := cfg.SessionConfig()
	if !sc.TranscribeInput {
		t.Error("SessionConfig().TranscribeInput = false, want true")
	}
	if sc.TranscribeOutput {
		t.Error("SessionConfig().TranscribeOutput = true, want false")
	}
	if sc.InputSampleRate != 16000 {
		t.Errorf("SessionConfig().InputSampleRate = %d, want 16000", sc.InputSampleRate)
	}
	if sc.SystemInstruction != "You are a terse assistant." {
		t.Errorf("SessionConfig().SystemInstruction = %q", sc.SystemInstruction)
	}
}

func TestLoadFromReaderDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader() on empty input error = %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("default ListenAddr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != LogInfo {
		t.Errorf("default LogLevel = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Audio.InputSampleRate != pcm.DefaultInputRate {
		t.Errorf("default InputSampleRate = %d, want %d", cfg.Audio.InputSampleRate, pcm.DefaultInputRate)
	}
	if cfg.Audio.BlockSize != 4096 {
		t.Errorf("default BlockSize = %d, want 4096", cfg.Audio.BlockSize)
	}
	if cfg.Audio.Sink != "ffplay" {
		t.Errorf("default Sink = %q, want ffplay", cfg.Audio.Sink)
	}

	sc := cfg.SessionConfig()
	if !sc.TranscribeInput || !sc.TranscribeOutput {
		t.Error("transcription should default to enabled on both sides")
	}
}

func TestLoadFromReaderUnknownField(t *testing.T) {
	t.Parallel()

	yml := `
transport:
  voice: Puck
  pitch_shift: 3
`
	if _, err := LoadFromReader(strings.NewReader(yml)); err == nil {
		t.Fatal("LoadFromReader() accepted an unknown field, want error")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Server.LogLevel = "loud" },
			wantSub: "server.log_level",
		},
		{
			name:    "sample rate too low",
			mutate:  func(c *Config) { c.Audio.InputSampleRate = 4000 },
			wantSub: "audio.input_sample_rate",
		},
		{
			name:    "block size too small",
			mutate:  func(c *Config) { c.Audio.BlockSize = 8 },
			wantSub: "audio.block_size",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Config{}
			applyDefaults(cfg)
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantSub)
			}
		})
	}
}

func TestValidateJoinsAllErrors(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Server.LogLevel = "loud"
	cfg.Audio.BlockSize = 1

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "server.log_level") || !strings.Contains(msg, "audio.block_size") {
		t.Errorf("Validate() error %q should list both failures", msg)
	}
}

func TestAPIKeyFromEnv(t *testing.T) {
	t.Setenv(APIKeyEnv, "test-key-123")
	if got := APIKey(); got != "test-key-123" {
		t.Errorf("APIKey() = %q, want test-key-123", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load("/nonexistent/voxlink.yaml")
	if err == nil {
		t.Fatal("Load() on missing file = nil, want error")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load() error = %v, want wrapping os.ErrNotExist", err)
	}
}
