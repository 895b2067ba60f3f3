package config

import "testing"

func base() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Transport.Model = "model-a"
	cfg.Transport.Voice = "Puck"
	cfg.Transport.SystemInstruction = "be brief"
	return cfg
}

func TestDiffNoChanges(t *testing.T) {
	t.Parallel()

	old, new := base(), base()
	d := Diff(old, new)
	if d.LogLevelChanged || d.TransportChanged || d.AudioChanged {
		t.Errorf("Diff() of identical configs = %+v, want empty", d)
	}
}

func TestDiffLogLevel(t *testing.T) {
	t.Parallel()

	old, new := base(), base()
	new.Server.LogLevel = LogDebug

	d := Diff(old, new)
	if !d.LogLevelChanged {
		t.Fatal("LogLevelChanged = false, want true")
	}
	if d.NewLogLevel != LogDebug {
		t.Errorf("NewLogLevel = %q, want debug", d.NewLogLevel)
	}
	if d.TransportChanged || d.AudioChanged {
		t.Error("log level change should not flag transport or audio")
	}
}

func TestDiffTransportFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		check  func(TransportDiff) bool
	}{
		{
			name:   "model",
			mutate: func(c *Config) { c.Transport.Model = "model-b" },
			check:  func(td TransportDiff) bool { return td.ModelChanged },
		},
		{
			name:   "voice",
			mutate: func(c *Config) { c.Transport.Voice = "Kore" },
			check:  func(td TransportDiff) bool { return td.VoiceChanged },
		},
		{
			name:   "system instruction",
			mutate: func(c *Config) { c.Transport.SystemInstruction = "be verbose" },
			check:  func(td TransportDiff) bool { return td.SystemInstructionChanged },
		},
		{
			name:   "base url",
			mutate: func(c *Config) { c.Transport.BaseURL = "wss://proxy.example.com" },
			check:  func(td TransportDiff) bool { return td.BaseURLChanged },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, new := base(), base()
			tt.mutate(new)

			d := Diff(old, new)
			if !d.TransportChanged {
				t.Fatal("TransportChanged = false, want true")
			}
			if !tt.check(d.Transport) {
				t.Errorf("per-field diff not set: %+v", d.Transport)
			}
		})
	}
}

func TestDiffTranscriptionNilEqualsTrue(t *testing.T) {
	t.Parallel()

	enabled := true
	old, new := base(), base()
	// Explicit true is the same as the unset default.
	new.Transport.TranscribeInput = &enabled

	d := Diff(old, new)
	if d.TransportChanged {
		t.Errorf("explicit true vs unset flagged a change: %+v", d.Transport)
	}

	disabled := false
	new.Transport.TranscribeInput = &disabled
	d = Diff(old, new)
	if !d.Transport.TranscriptionChanged {
		t.Error("disabling transcription was not flagged")
	}
}

func TestDiffAudio(t *testing.T) {
	t.Parallel()

	old, new := base(), base()
	new.Audio.BlockSize = 8192

	d := Diff(old, new)
	if !d.AudioChanged {
		t.Error("AudioChanged = false, want true")
	}
}
