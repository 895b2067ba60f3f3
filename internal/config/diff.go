package config

// ConfigDiff describes what changed between two configs. Log level changes
// apply immediately; transport and audio changes take effect the next time a
// session is started.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TransportChanged is true if any session parameter changed.
	TransportChanged bool
	Transport        TransportDiff

	// AudioChanged is true if any capture or playback setting changed.
	AudioChanged bool
}

// TransportDiff describes which session parameters changed.
type TransportDiff struct {
	ModelChanged             bool
	VoiceChanged             bool
	SystemInstructionChanged bool
	TranscriptionChanged     bool
	BaseURLChanged           bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.Transport = diffTransport(old.Transport, new.Transport)
	if d.Transport != (TransportDiff{}) {
		d.TransportChanged = true
	}

	if old.Audio != new.Audio {
		d.AudioChanged = true
	}

	return d
}

func diffTransport(old, new TransportConfig) TransportDiff {
	td := TransportDiff{
		ModelChanged:             old.Model != new.Model,
		VoiceChanged:             old.Voice != new.Voice,
		SystemInstructionChanged: old.SystemInstruction != new.SystemInstruction,
		BaseURLChanged:           old.BaseURL != new.BaseURL,
	}
	if boolOrTrue(old.TranscribeInput) != boolOrTrue(new.TranscribeInput) ||
		boolOrTrue(old.TranscribeOutput) != boolOrTrue(new.TranscribeOutput) {
		td.TranscriptionChanged = true
	}
	return td
}

func boolOrTrue(b *bool) bool {
	return b == nil || *b
}
