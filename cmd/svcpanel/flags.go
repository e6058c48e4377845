package main

import "time"

// Flag structs to decouple cobra from logic for testing.

// GlobalFlags holds minimal global/persistent flags for CLI commands.
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags holds remote daemon connection flags shared by client commands.
type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

// ServiceFlags selects one service for start/stop/status.
type ServiceFlags struct {
	Name string
	APIFlags
}

// BulkFlags configures the start-all command.
type BulkFlags struct {
	AutoOnly bool
	APIFlags
}

// LogFlags configures the log command.
type LogFlags struct {
	Tail int
	APIFlags
}

// StatusFlags configures the status command.
type StatusFlags struct {
	Name     string
	Watch    bool
	Interval time.Duration
	APIFlags
}

// ServeFlags configures the serve command.
type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
}
