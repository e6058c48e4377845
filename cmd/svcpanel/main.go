package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and wires all subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	serviceFlags := &ServiceFlags{}
	statusFlags := &StatusFlags{}
	bulkFlags := &BulkFlags{}
	logFlags := &LogFlags{}
	stopAllFlags := &APIFlags{}
	listFlags := &APIFlags{}

	panelCommand := command{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createListCommand(panelCommand, listFlags),
		createStatusCommand(panelCommand, statusFlags),
		createStartCommand(panelCommand, serviceFlags),
		createStopCommand(panelCommand, serviceFlags),
		createStartAllCommand(panelCommand, bulkFlags),
		createStopAllCommand(panelCommand, stopAllFlags),
		createLogCommand(panelCommand, logFlags),
		createServeCommand(globalFlags),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags.
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "svcpanel",
		Short: "Service panel daemon and control CLI",
		Long: `Svcpanel supervises a fixed set of configured services: it starts them,
stops them with graceful escalation, and serves their status over HTTP.

Examples:
  svcpanel serve --config=svcpanel.toml   # Start daemon
  svcpanel start --name=auth              # Start one service
  svcpanel status                         # Show all service states
  svcpanel status --api-url=http://remote:8080/api`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func addAPIFlags(cmd *cobra.Command, f *APIFlags) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", "daemon URL (default: http://127.0.0.1:8080/api)")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 10*time.Second, "request timeout")
}

func createListCommand(panelCommand command, flags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured services",
		RunE: func(cmd *cobra.Command, args []string) error {
			return panelCommand.List(*flags)
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createStatusCommand(panelCommand command, flags *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show service status",
		Long: `Show the state of one service or of all services.

Examples:
  svcpanel status
  svcpanel status --name=auth
  svcpanel status --watch --interval=2s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return panelCommand.Status(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.Name, "name", "", "service name (all services when empty)")
	cmd.Flags().BoolVar(&flags.Watch, "watch", false, "refresh continuously")
	cmd.Flags().DurationVar(&flags.Interval, "interval", 2*time.Second, "watch refresh interval")
	addAPIFlags(cmd, &flags.APIFlags)
	return cmd
}

func createStartCommand(panelCommand command, flags *ServiceFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a service",
		Long: `Start one configured service. Starting an already running service is a no-op.

Examples:
  svcpanel start --name=auth`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return panelCommand.Start(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.Name, "name", "", "service name (required)")
	_ = cmd.MarkFlagRequired("name")
	addAPIFlags(cmd, &flags.APIFlags)
	return cmd
}

func createStopCommand(panelCommand command, flags *ServiceFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a service",
		Long: `Stop one service. The daemon signals it to terminate and force kills it
if the grace period expires.

Examples:
  svcpanel stop --name=auth`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return panelCommand.Stop(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.Name, "name", "", "service name (required)")
	_ = cmd.MarkFlagRequired("name")
	addAPIFlags(cmd, &flags.APIFlags)
	return cmd
}

func createStartAllCommand(panelCommand command, flags *BulkFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start-all",
		Short: "Start all services",
		Long: `Start every configured service through the daemon's bounded worker pool.
With --auto only services flagged auto_start are started.

Examples:
  svcpanel start-all
  svcpanel start-all --auto`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return panelCommand.StartAll(*flags)
		},
	}
	cmd.Flags().BoolVar(&flags.AutoOnly, "auto", false, "only start services flagged auto_start")
	addAPIFlags(cmd, &flags.APIFlags)
	return cmd
}

func createStopAllCommand(panelCommand command, flags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop-all",
		Short: "Stop all services",
		RunE: func(cmd *cobra.Command, args []string) error {
			return panelCommand.StopAll(*flags)
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createLogCommand(panelCommand command, flags *LogFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the daemon activity log",
		Long: `Print the daemon's in-memory activity log of lifecycle events.

Examples:
  svcpanel log
  svcpanel log --tail=50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return panelCommand.Log(*flags)
		},
	}
	cmd.Flags().IntVar(&flags.Tail, "tail", 0, "only the last N entries (all when 0)")
	addAPIFlags(cmd, &flags.APIFlags)
	return cmd
}

// createServeCommand creates the serve subcommand.
func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}

	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the svcpanel daemon",
		Long: `Start the svcpanel daemon. All services, storage and server settings are
loaded from the TOML config file.

Examples:
  svcpanel serve --config=svcpanel.toml
  svcpanel serve svcpanel.toml
  svcpanel serve svcpanel.toml --daemonize`,
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			if len(args) > 0 {
				serveFlags.ConfigPath = args[0]
			}
			return runServeCommand(serveFlags)
		},
	}

	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write daemon PID to file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon logs to file")

	return cmd
}
