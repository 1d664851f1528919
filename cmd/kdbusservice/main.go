package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sailfishos-mirror/kdbusaddons/pkg/client"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and its subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	runFlags := &RunFlags{}
	activateFlags := &TargetFlags{}
	openFlags := &OpenFlags{}
	actionFlags := &ActionFlags{}
	commandLineFlags := &CommandLineFlags{}
	quitFlags := &TargetFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createRunCommand(globalFlags, runFlags),
		createActivateCommand(activateFlags),
		createOpenCommand(openFlags),
		createActionCommand(actionFlags),
		createCommandLineCommand(commandLineFlags),
		createQuitCommand(quitFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "kdbusservice",
		Short: "Single-instance application coordination over D-Bus",
		Long: `kdbusservice claims an application's canonical D-Bus name and keeps
exactly one instance per session: later invocations forward their
command line to the running one, replace it, or run independently.

Examples:
  kdbusservice run --domain=kde.org --name=konqueror
  kdbusservice run --config=/etc/kdbusservice.toml
  kdbusservice activate --domain=kde.org --name=konqueror
  kdbusservice open --domain=kde.org --name=konqueror file:///tmp/a.txt`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func createRunCommand(globalFlags *GlobalFlags, runFlags *RunFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Register on the bus and serve activation calls",
		Long: `Run registers this process as the owner of the application's bus name
and serves activation calls until asked to quit. When another instance
already owns the name, the invocation is forwarded to it and the
process exits with the code the owner returned.

Examples:
  kdbusservice run --domain=kde.org --name=konqueror
  kdbusservice run --domain=kde.org --name=kate --replace
  kdbusservice run --domain=kde.org --name=krita --multiple`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(globalFlags.ConfigPath, *runFlags)
		},
	}
	cmd.Flags().StringVar(&runFlags.Domain, "domain", "", "organization domain (e.g. kde.org)")
	cmd.Flags().StringVar(&runFlags.Name, "name", "", "application name (e.g. konqueror)")
	cmd.Flags().BoolVar(&runFlags.Multiple, "multiple", false, "run independently under a pid-qualified name")
	cmd.Flags().BoolVar(&runFlags.Replace, "replace", false, "ask the current owner to quit and take over")
	cmd.Flags().BoolVar(&runFlags.NoExitOnFailure, "no-exit-on-failure", false, "keep running when registration fails")
	cmd.Flags().DurationVar(&runFlags.ReplaceTimeout, "replace-timeout", 0, "how long to wait for the old owner to leave")
	cmd.Flags().BoolVar(&runFlags.Queued, "queued", false, "deliver activation events through a queue instead of inline")
	cmd.Flags().StringVar(&runFlags.HTTPListen, "http-listen", "", "serve the status/injection API on this address")
	cmd.Flags().StringVar(&runFlags.HTTPBasePath, "http-base-path", "", "base path for the HTTP API")
	cmd.Flags().StringVar(&runFlags.MetricsListen, "metrics-listen", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringSliceVar(&runFlags.HistoryDSNs, "history-dsn", nil, "activation history sink DSNs (sqlite path, postgres:// or clickhouse:// URL)")
	return cmd
}

func addTargetFlags(cmd *cobra.Command, flags *TargetFlags) {
	cmd.Flags().StringVar(&flags.Domain, "domain", "", "organization domain of the target (required)")
	cmd.Flags().StringVar(&flags.Name, "name", "", "application name of the target (required)")
	cmd.Flags().IntVar(&flags.PID, "pid", 0, "target a specific multiple-mode instance")
	cmd.Flags().DurationVar(&flags.Timeout, "timeout", 10*time.Second, "call timeout")
	if err := cmd.MarkFlagRequired("domain"); err != nil {
		panic(err)
	}
	if err := cmd.MarkFlagRequired("name"); err != nil {
		panic(err)
	}
}

func dialTarget(flags TargetFlags) (*client.Client, error) {
	return client.New(client.Config{
		Domain:  flags.Domain,
		Name:    flags.Name,
		PID:     flags.PID,
		Timeout: flags.Timeout,
	})
}

func createActivateCommand(flags *TargetFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Ask the running instance to present itself",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dialTarget(*flags)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			return c.Activate(cmd.Context(), tokenPlatformData())
		},
	}
	addTargetFlags(cmd, flags)
	return cmd
}

func createOpenCommand(flags *OpenFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open URI...",
		Short: "Ask the running instance to open URIs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dialTarget(flags.Target)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			return c.Open(cmd.Context(), args, tokenPlatformData())
		},
	}
	addTargetFlags(cmd, &flags.Target)
	return cmd
}

func createActionCommand(flags *ActionFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "action NAME",
		Short: "Trigger a named action on the running instance",
		Long: `Action triggers a named application action, optionally with a single
JSON-encoded parameter value.

Examples:
  kdbusservice action new-window --domain=kde.org --name=konqueror
  kdbusservice action goto-line --param=42 --domain=kde.org --name=kate`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parameter, err := parseActionParameter(flags.JSON)
			if err != nil {
				return err
			}
			c, err := dialTarget(flags.Target)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			return c.ActivateAction(cmd.Context(), args[0], parameter, tokenPlatformData())
		},
	}
	addTargetFlags(cmd, &flags.Target)
	cmd.Flags().StringVar(&flags.JSON, "param", "", "single parameter value as JSON")
	return cmd
}

func createCommandLineCommand(flags *CommandLineFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "command-line -- ARG...",
		Short: "Forward a command line to the running instance",
		Long: `Command-line forwards an argument vector and working directory to the
running instance and exits with the code it returned, mirroring what a
second invocation of the application itself would do.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workdir := flags.WorkDir
			if workdir == "" {
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				workdir = wd
			}
			c, err := dialTarget(flags.Target)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			code, err := c.CommandLine(cmd.Context(), args, workdir, tokenPlatformData())
			if err != nil {
				return err
			}
			if code != 0 {
				os.Exit(code)
			}
			return nil
		},
	}
	addTargetFlags(cmd, &flags.Target)
	cmd.Flags().StringVar(&flags.WorkDir, "workdir", "", "working directory to report (default: current)")
	return cmd
}

func createQuitCommand(flags *TargetFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quit",
		Short: "Ask the running instance to shut down",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dialTarget(*flags)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			return c.Quit(cmd.Context())
		},
	}
	addTargetFlags(cmd, flags)
	return cmd
}
