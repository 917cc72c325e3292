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

// buildRoot creates the root command and wires the subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	serviceFlags := &ServiceFlags{}
	stackFlags := &StackFlags{}
	statusFlags := &StatusFlags{}

	cmd := command{global: globalFlags}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createStartCommand(cmd, serviceFlags),
		createStopCommand(cmd, serviceFlags),
		createRestartCommand(cmd, serviceFlags),
		createUpCommand(cmd, stackFlags),
		createDownCommand(cmd, stackFlags),
		createRestartAllCommand(cmd, stackFlags),
		createStatusCommand(cmd, statusFlags),
		createServeCommand(globalFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "stackd",
		Short: "Supervisor for a fixed stack of local services",
		Long: `Stackd starts, stops and health-monitors a fixed set of long-running
local services declared in a TOML config file.

Commands act on a running daemon when one is reachable, and fall back to
operating directly from the config file otherwise.

Examples:
  stackd serve --config=stack.toml     # Run the daemon with health monitoring
  stackd up --config=stack.toml        # Start every service in order
  stackd start --name=backend          # Start one service
  stackd status                        # Show the whole stack`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "stack.toml", "path to TOML config file")
	return root
}

func createStartCommand(c command, flags *ServiceFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start one service",
		Long: `Start a single service and wait until it passes its health check.

Examples:
  stackd start --name=backend
  stackd start --name=frontend --api-url=http://remote:8080/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Start(*flags)
		},
	}
	addServiceFlags(cmd, flags)
	return cmd
}

func createStopCommand(c command, flags *ServiceFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop one service",
		Long: `Stop a single service, killing its whole process tree.

Examples:
  stackd stop --name=backend`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Stop(*flags)
		},
	}
	addServiceFlags(cmd, flags)
	return cmd
}

func createRestartCommand(c command, flags *ServiceFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart one service",
		Long: `Stop then start a single service.

Examples:
  stackd restart --name=backend`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Restart(*flags)
		},
	}
	addServiceFlags(cmd, flags)
	return cmd
}

func addServiceFlags(cmd *cobra.Command, flags *ServiceFlags) {
	cmd.Flags().StringVar(&flags.Name, "name", "", "service name (required)")
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "remote daemon URL (e.g. http://host:8080/api)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 60*time.Second, "request timeout")
	if err := cmd.MarkFlagRequired("name"); err != nil {
		panic(err)
	}
}

func createUpCommand(c command, flags *StackFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Start the whole stack",
		Long: `Start every declared service in declaration order. Every service is
attempted even when an earlier one fails.

Examples:
  stackd up --config=stack.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Up(*flags)
		},
	}
	addStackFlags(cmd, flags)
	return cmd
}

func createDownCommand(c command, flags *StackFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop the whole stack",
		Long: `Stop every declared service, then sweep any stray managed processes.

Examples:
  stackd down --config=stack.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Down(*flags)
		},
	}
	addStackFlags(cmd, flags)
	return cmd
}

func createRestartAllCommand(c command, flags *StackFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart-all",
		Short: "Restart the whole stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.RestartAll(*flags)
		},
	}
	addStackFlags(cmd, flags)
	return cmd
}

func addStackFlags(cmd *cobra.Command, flags *StackFlags) {
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "remote daemon URL (e.g. http://host:8080/api)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 5*time.Minute, "request timeout")
}

func createStatusCommand(c command, flags *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show service status",
		Long: `Show the status of managed services.

Examples:
  stackd status                # Whole stack
  stackd status --name=backend # One service
  stackd status --api-url=http://remote:8080/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Status(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.Name, "name", "", "service name (optional)")
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "remote daemon URL (e.g. http://host:8080/api)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 30*time.Second, "request timeout")
	return cmd
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Run the stackd daemon",
		Long: `Run the daemon: reattach to services recorded in the state file, expose
the control API, and run the background health monitor.

Examples:
  stackd serve --config=stack.toml
  stackd serve stack.toml --no-monitor`,
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			if len(args) > 0 {
				serveFlags.ConfigPath = args[0]
			}
			return runServe(serveFlags)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.NoMonitor, "no-monitor", false, "disable the background health monitor")
	return cmd
}
