package config

import (
	"fmt"
	"os"
)

// Validate checks app-name uniqueness, alias uniqueness, fixed-port
// conflicts, and that each app's directory exists.
func Validate(apps []App) error {
	names := make(map[string]bool, len(apps))
	ports := make(map[int]string, len(apps))

	for _, app := range apps {
		if app.Name == "" {
			return fmt.Errorf("app has no name (directory %q)", app.Directory)
		}
		if names[app.Name] {
			return fmt.Errorf("duplicate app name %q", app.Name)
		}
		names[app.Name] = true

		for _, alias := range app.Aliases {
			if names[alias] {
				return fmt.Errorf("app %q: alias %q collides with another app or alias name", app.Name, alias)
			}
			names[alias] = true
		}

		if info, err := os.Stat(app.Directory); err != nil || !info.IsDir() {
			return fmt.Errorf("app %q: directory %q does not exist", app.Name, app.Directory)
		}

		if app.Port != nil {
			if owner, taken := ports[*app.Port]; taken {
				return fmt.Errorf("app %q: port %d already claimed by app %q", app.Name, *app.Port, owner)
			}
			ports[*app.Port] = app.Name
		}

		if _, err := app.Commands(); err != nil {
			return err
		}
	}

	return nil
}
