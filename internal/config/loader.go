package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidVoices lists the prebuilt voice names the provider is known to accept.
// Used by [Validate] to warn about likely typos; unknown names are not an
// error because the provider ships new voices faster than this list updates.
var ValidVoices = []string{
	"Puck", "Charon", "Kore", "Fenrir", "Aoede", "Leda", "Orus", "Zephyr",
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Transport
	if cfg.Transport.Voice != "" && !slices.Contains(ValidVoices, cfg.Transport.Voice) {
		slog.Warn("unknown voice name, may be a typo or a newly released voice",
			"voice", cfg.Transport.Voice,
			"known", ValidVoices,
		)
	}

	// Audio
	if cfg.Audio.InputSampleRate < 8000 || cfg.Audio.InputSampleRate > 48000 {
		errs = append(errs, fmt.Errorf("audio.input_sample_rate %d is out of range [8000, 48000]", cfg.Audio.InputSampleRate))
	}
	if cfg.Audio.BlockSize < 64 || cfg.Audio.BlockSize > 65536 {
		errs = append(errs, fmt.Errorf("audio.block_size %d is out of range [64, 65536]", cfg.Audio.BlockSize))
	}

	return errors.Join(errs...)
}
