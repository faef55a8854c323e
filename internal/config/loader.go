package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix marks environment variables that override file values.
	EnvPrefix = "HOPIPE_"

	// ConfigPathEnvVar names the file to load when no explicit path is
	// given.
	ConfigPathEnvVar = "CONFIG_PATH"
)

// DefaultConfigPaths is searched in order when neither an explicit path nor
// CONFIG_PATH is set.
var DefaultConfigPaths = []string{
	"handover.yaml",
	"handover.yml",
	"/etc/handover-pipeline/config.yaml",
}

// Load assembles the configuration: built-in defaults, then the YAML file if
// one is found, then HOPIPE_ environment overrides. The result is validated
// before it is returned. An empty path falls back to CONFIG_PATH and then
// the default search list; a missing file is only an error when the path was
// explicit.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	explicit := path != ""
	if !explicit {
		if p := os.Getenv(ConfigPathEnvVar); p != "" {
			path, explicit = p, true
		} else {
			path = findConfigFile()
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config: load %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envToPath), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	// LOG_LEVEL and LOG_FORMAT stay honored for parity with the logging
	// package; they outrank the HOPIPE_ overrides.
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile walks the default search list. Empty means "defaults
// only".
func findConfigFile() string {
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envToPath maps HOPIPE_SECTION_LEAF_NAME to section.leaf_name. The events
// and constellations sections carry one extra path level, so
// HOPIPE_EVENTS_A4_THRESHOLD_DBM becomes events.a4.threshold_dbm and
// HOPIPE_CONSTELLATIONS_STARLINK_TARGET_COUNT becomes
// constellations.starlink.target_count.
func envToPath(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	parts := strings.Split(key, "_")
	levels := 1
	if parts[0] == "events" || parts[0] == "constellations" {
		levels = 2
	}
	if len(parts) <= levels {
		return strings.Join(parts, ".")
	}
	return strings.Join(parts[:levels], ".") + "." + strings.Join(parts[levels:], "_")
}
