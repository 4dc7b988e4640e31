package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oxidux/oxidux/internal/config"
	"github.com/oxidux/oxidux/internal/logging"
	"github.com/oxidux/oxidux/internal/supervisor"
	"github.com/spf13/cobra"
)

var configDirFlag string

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the oxidux proxy and process supervisor",
	RunE:  daemonRun,
}

func init() {
	daemonCmd.Flags().StringVarP(&configDirFlag, "config-dir", "c", "", "config directory (default: search paths, spec.md §6)")
	rootCmd.AddCommand(daemonCmd)
}

func daemonRun(cmd *cobra.Command, args []string) error {
	configDir := config.Resolve(configDirFlag)

	bootstrap := logging.New(logging.LogConfig{Level: "info", Format: "json"})
	global, err := config.LoadGlobal(filepath.Join(configDir, "oxidux.toml"), bootstrap)
	if err != nil {
		return err
	}
	global.ConfigDir = configDir

	if lv := os.Getenv("OXIDUX_LOG_LEVEL"); lv != "" {
		if err := logging.ValidateLevel(lv); err == nil {
			global.LogLevel = lv
		}
	}

	logger, cleanup, err := logging.DaemonLogger(global.LogLevel, global.LogFormat, global.LogFile)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	apps, err := config.LoadApps(configDir, logger)
	if err != nil {
		return err
	}
	if err := config.Validate(apps); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	d, err := supervisor.New(global, apps, logger)
	if err != nil {
		return err
	}

	return d.Run(context.Background())
}
