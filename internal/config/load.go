package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
)

// LoadGlobal decodes the top-level oxidux.toml at path. A missing file
// is not an error; it yields a Global with defaults applied.
func LoadGlobal(path string, logger *slog.Logger) (Global, error) {
	var g Global
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyDefaults(&g)
			return g, nil
		}
		return g, fmt.Errorf("read %s: %w", path, err)
	}

	md, err := toml.Decode(string(data), &g)
	if err != nil {
		return g, fmt.Errorf("decode %s: %w", path, err)
	}
	warnUndecoded(logger, path, md)

	ApplyDefaults(&g)
	return g, nil
}

// LoadApps reads every apps/*.toml file under configDir/apps, decodes
// each into an App, expands its directory, and returns them sorted by
// name for deterministic registry seeding.
func LoadApps(configDir string, logger *slog.Logger) ([]App, error) {
	appsDir := filepath.Join(configDir, "apps")
	entries, err := os.ReadDir(appsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read apps dir %s: %w", appsDir, err)
	}

	var apps []App
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".toml" {
			continue
		}
		path := filepath.Join(appsDir, entry.Name())
		app, err := loadApp(path, logger)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}

	sort.Slice(apps, func(i, j int) bool { return apps[i].Name < apps[j].Name })
	return apps, nil
}

func loadApp(path string, logger *slog.Logger) (App, error) {
	var app App
	data, err := os.ReadFile(path)
	if err != nil {
		return app, fmt.Errorf("read %s: %w", path, err)
	}

	md, err := toml.Decode(string(data), &app)
	if err != nil {
		return app, fmt.Errorf("decode %s: %w", path, err)
	}
	warnUndecoded(logger, path, md)

	app.Directory = ExpandDirectory(app.Directory)
	return app, nil
}

func warnUndecoded(logger *slog.Logger, path string, md toml.MetaData) {
	if logger == nil {
		return
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		logger.Warn("unrecognized config keys", "path", path, "keys", undecoded)
	}
}
