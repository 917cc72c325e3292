package main

import "time"

// Flag structs decouple cobra from the command logic for testing.

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

// ServiceFlags holds flags for the per-service lifecycle commands.
type ServiceFlags struct {
	Name string
	// Remote daemon connection
	APIUrl     string
	APITimeout time.Duration
}

// StackFlags holds flags for the whole-stack commands.
type StackFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

// StatusFlags holds flags for the status command.
type StatusFlags struct {
	Name       string
	APIUrl     string
	APITimeout time.Duration
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	ConfigPath string
	NoMonitor  bool
}
