package config

import "os"

// EnvConfigDir is the environment variable consulted when no explicit
// --config-dir flag is given.
const EnvConfigDir = "OXIDUX_CONFIG_DIR"

// Resolve picks the config directory to use, trying in order: an
// explicit path (from a CLI flag), the environment variable, then the
// default (home directory plus the fixed subfolder).
func Resolve(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return env
	}
	return DefaultConfigDir()
}
