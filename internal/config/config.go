// Package config loads the one-shot, process-wide configuration: the
// engine endpoint and the profile manifest. It mirrors the original
// runtime's configure() — a single replace-the-whole-table call made
// once at startup, not a hot-reloadable settings store.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sandboxrun/epicbox/internal/profile"
)

// EngineURLEnv and ManifestPathEnv name the environment variables
// consulted by Load.
const (
	EngineURLEnv    = "EPICBOX_ENGINE_URL"
	ManifestPathEnv = "EPICBOX_PROFILES"
)

// Config is the fully resolved, ready-to-use configuration.
type Config struct {
	EngineURL string
	Profiles  []profile.Profile
}

// manifest is the on-disk YAML shape for EPICBOX_PROFILES: a list of
// profiles keyed by name.
type manifest struct {
	Profiles []manifestProfile `yaml:"profiles"`
}

type manifestProfile struct {
	Name            string `yaml:"name"`
	Image           string `yaml:"image"`
	DefaultCommand  string `yaml:"default_command"`
	User            string `yaml:"user"`
	ReadOnly        bool   `yaml:"read_only"`
	NetworkDisabled bool   `yaml:"network_disabled"`
}

// Load reads EPICBOX_ENGINE_URL and, if set, the YAML manifest named by
// EPICBOX_PROFILES. A missing EPICBOX_ENGINE_URL defers to the engine
// client's own environment-derived default; a missing EPICBOX_PROFILES
// yields an empty profile table (the caller registers profiles in
// code instead).
func Load() (Config, error) {
	cfg := Config{EngineURL: os.Getenv(EngineURLEnv)}

	path := os.Getenv(ManifestPathEnv)
	if path == "" {
		return cfg, nil
	}

	profiles, err := LoadManifest(path)
	if err != nil {
		return Config{}, fmt.Errorf("load profile manifest %s: %w", path, err)
	}
	cfg.Profiles = profiles
	return cfg, nil
}

// LoadManifest parses a YAML profile manifest from path into Profile
// values, applying profile.DefaultUser where User is blank.
func LoadManifest(path string) ([]profile.Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseManifest(raw)
}

// ParseManifest parses YAML bytes into Profile values. Exposed
// separately from LoadManifest so tests can exercise it without
// touching the filesystem.
func ParseManifest(raw []byte) ([]profile.Profile, error) {
	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse profile manifest: %w", err)
	}

	profiles := make([]profile.Profile, 0, len(m.Profiles))
	for _, p := range m.Profiles {
		user := p.User
		if user == "" {
			user = profile.DefaultUser
		}
		profiles = append(profiles, profile.Profile{
			Name:            p.Name,
			Image:           p.Image,
			DefaultCommand:  p.DefaultCommand,
			User:            user,
			ReadOnly:        p.ReadOnly,
			NetworkDisabled: p.NetworkDisabled,
		})
	}
	return profiles, nil
}
