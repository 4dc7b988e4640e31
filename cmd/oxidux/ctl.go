package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/oxidux/oxidux/internal/config"
	"github.com/oxidux/oxidux/internal/control"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	processFlag string
	appNameFlag string
)

func init() {
	restartCmd.Flags().StringVarP(&processFlag, "process", "p", "", "process label (default: the app's default process)")
	connectCmd.Flags().StringVarP(&processFlag, "process", "p", "", "process label (default: the app's default process)")
	stopCmd.Flags().StringVarP(&appNameFlag, "app", "a", "", "app name (default: resolved from the current directory)")

	rootCmd.AddCommand(restartCmd, connectCmd, stopCmd, pingCmd)
}

func socketPath() (string, error) {
	configDir := config.Resolve(configDirFlag)
	return filepath.Join(configDir, control.SocketName), nil
}

func currentDirectory() (string, error) {
	return os.Getwd()
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the app's process and return its connection details",
	RunE: func(cmd *cobra.Command, args []string) error {
		sock, err := socketPath()
		if err != nil {
			return err
		}
		dir, err := currentDirectory()
		if err != nil {
			return err
		}
		resp, err := control.NewClient(sock).Restart(optionalString(processFlag), dir)
		if err != nil {
			return err
		}
		return printResponse(cmd, resp)
	},
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Attach a terminal to the app's process",
	RunE: func(cmd *cobra.Command, args []string) error {
		sock, err := socketPath()
		if err != nil {
			return err
		}
		dir, err := currentDirectory()
		if err != nil {
			return err
		}
		resp, err := control.NewClient(sock).Connect(optionalString(processFlag), dir)
		if err != nil {
			return err
		}
		details, ok := resp.(control.ConnectionDetailsResponse)
		if !ok {
			return printResponse(cmd, resp)
		}
		return control.Attach(details)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop and deregister an app",
	RunE: func(cmd *cobra.Command, args []string) error {
		sock, err := socketPath()
		if err != nil {
			return err
		}
		dir, err := currentDirectory()
		if err != nil {
			return err
		}
		resp, err := control.NewClient(sock).Stop(optionalString(appNameFlag), dir)
		if err != nil {
			return err
		}
		return printResponse(cmd, resp)
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the oxidux daemon is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		sock, err := socketPath()
		if err != nil {
			return err
		}
		raw, err := control.NewClient(sock).Ping()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(raw))
		return nil
	},
}

// printResponse renders a control.Response and maps NotFound to a
// non-zero exit code (spec.md §6, "CLI exit codes").
func printResponse(cmd *cobra.Command, resp control.Response) error {
	switch r := resp.(type) {
	case control.NotFoundResponse:
		return fmt.Errorf("%s", r.Message)
	case control.StatusResponse:
		fmt.Fprintln(cmd.OutOrStdout(), colorize(r.Message, "32"))
		return nil
	case control.ConnectionDetailsResponse:
		fmt.Fprintf(cmd.OutOrStdout(), "app=%s tmux_socket=%s tmux_session=%s\n", r.AppName, r.TmuxSocket, r.TmuxSession)
		return nil
	default:
		return fmt.Errorf("unrecognized response %T", resp)
	}
}

// colorize wraps s in an ANSI color code when stdout is a real
// terminal, leaving piped/redirected output (scripts, CI logs) plain.
func colorize(s, ansiCode string) string {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return s
	}
	return "\x1b[" + ansiCode + "m" + s + "\x1b[0m"
}
