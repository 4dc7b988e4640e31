package config

// ApplyDefaults fills zero-valued Global fields with spec.md §6 defaults.
func ApplyDefaults(g *Global) {
	if g.Domain == "" {
		g.Domain = "test"
	}
	if g.IdleTimeoutSecs == 0 {
		g.IdleTimeoutSecs = 3600
	}
	if g.LogLevel == "" {
		g.LogLevel = "info"
	}
	if g.LogFormat == "" {
		g.LogFormat = "json"
	}
	if g.ConfigDir == "" {
		g.ConfigDir = DefaultConfigDir()
	}
}
