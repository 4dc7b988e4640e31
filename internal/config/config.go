// Package config loads oxidux's on-disk TOML configuration: a top-level
// oxidux.toml for proxy-wide settings and one apps/*.toml file per app.
package config

import (
	"fmt"

	"github.com/oxidux/oxidux/internal/procfile"
)

// Global holds the proxy-wide configuration keys recognized by the core
// (spec.md §6's "Configuration keys"), decoded from oxidux.toml.
type Global struct {
	ProxyPort       uint16 `toml:"proxy_port"` // 0 = ephemeral
	Domain          string `toml:"domain"`
	IdleTimeoutSecs uint64 `toml:"idle_timeout_secs"`
	ConfigDir       string `toml:"config_dir"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	LogFile   string `toml:"log_file"` // empty = stdout
}

// App is one apps/*.toml record.
type App struct {
	Name      string            `toml:"name"`
	Directory string            `toml:"directory"`
	Port      *int              `toml:"port"`
	Headers   map[string]string `toml:"headers"`
	Aliases   []string          `toml:"aliases"`

	// Command spec: exactly one of these three is meaningful, checked
	// in this order by Commands().
	Command  string            `toml:"command"`
	Commands map[string]string `toml:"commands"`
	Procfile bool              `toml:"procfile"`
}

// TmuxSocket is the process-wide constant terminal-multiplexer socket
// name referenced by spec.md §6 ("a process-wide constant name").
const TmuxSocket = "oxidux"

// Commands resolves the app's command spec per spec.md §6: a single
// shell string, a named map, or a directive to parse a Procfile in the
// app's directory. Exactly one form wins, checked in that order.
func (a App) Commands() (map[string]string, error) {
	switch {
	case a.Command != "":
		return map[string]string{"web": a.Command}, nil
	case len(a.Commands) > 0:
		return a.Commands, nil
	case a.Procfile:
		cmds := procfile.ParseInDir(a.Directory)
		if len(cmds) == 0 {
			return nil, fmt.Errorf("app %q: procfile directive set but no Procfile/Procfile.dev found in %s", a.Name, a.Directory)
		}
		return cmds, nil
	default:
		return nil, fmt.Errorf("app %q: no command, commands, or procfile directive given", a.Name)
	}
}

// DefaultProcessLabel returns "web" if present among names, else the
// first name in iteration order. Callers should prefer a stable input
// (e.g. a sorted slice) when determinism matters.
func DefaultProcessLabel(names []string) string {
	for _, n := range names {
		if n == "web" {
			return "web"
		}
	}
	if len(names) > 0 {
		return names[0]
	}
	return ""
}
