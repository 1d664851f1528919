package main

import "time"

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

// RunFlags holds flags for the run command. Flags override the config
// file when both are given.
type RunFlags struct {
	Domain          string
	Name            string
	Multiple        bool
	Replace         bool
	NoExitOnFailure bool
	ReplaceTimeout  time.Duration
	Queued          bool

	HTTPListen    string
	HTTPBasePath  string
	MetricsListen string
	HistoryDSNs   []string
}

// TargetFlags identify the running instance the client commands call.
type TargetFlags struct {
	Domain  string
	Name    string
	PID     int
	Timeout time.Duration
}

// OpenFlags holds flags for the open command.
type OpenFlags struct {
	Target TargetFlags
}

// ActionFlags holds flags for the action command.
type ActionFlags struct {
	Target TargetFlags
	JSON   string
}

// CommandLineFlags holds flags for the command-line command.
type CommandLineFlags struct {
	Target  TargetFlags
	WorkDir string
}
