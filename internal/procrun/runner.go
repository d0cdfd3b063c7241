// Copyright © 2026 The modelitf Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package procrun spawns a sequence of shell commands and supervises them
// under a cancellation flag, guaranteeing that no descendant process
// outlives the command it was launched for. The simulator a command line
// names is often itself a shell script that forks workers of its own;
// killing only the immediate child would orphan them.
//
// The platform divide is handled by a single narrow contract — spawn, poll,
// kill — implemented once per OS family in runner_unix.go and
// runner_windows.go. Runner itself is oblivious to which one it's linked
// against.
package procrun

import (
	"fmt"
	"sync/atomic"
	"time"
)

// DefaultPollInterval is how often Run samples a running command's exit
// status and the cancellation flag.
const DefaultPollInterval = 500 * time.Millisecond

// CancelFlag is a boolean cell safe to set from one goroutine and poll from
// another. The zero value is unset.
type CancelFlag struct {
	set atomic.Bool
}

// Cancel requests that the current evaluation stop at the next poll tick.
func (c *CancelFlag) Cancel() { c.set.Store(true) }

// IsSet reports whether Cancel has been called.
func (c *CancelFlag) IsSet() bool { return c.set.Load() }

// SpawnError reports that a command could not be started.
type SpawnError struct {
	Cmd string
	Err error
}

func (e SpawnError) Error() string { return fmt.Sprintf("procrun: spawning %q: %v", e.Cmd, e.Err) }
func (e SpawnError) Unwrap() error { return e.Err }

// TerminateFailedError reports that a running command's process group or
// job object could not be torn down after cancellation.
type TerminateFailedError struct {
	Cmd string
	Err error
}

func (e TerminateFailedError) Error() string {
	return fmt.Sprintf("procrun: terminating %q: %v", e.Cmd, e.Err)
}
func (e TerminateFailedError) Unwrap() error { return e.Err }

// pollState is the outcome of one non-blocking poll of a running command.
type pollState int

const (
	stateRunning pollState = iota
	stateExited
)

// processHandle is the narrow per-platform contract: spawn, poll, kill.
// runner_unix.go and runner_windows.go each supply spawnCommand; Runner
// never branches on GOOS itself.
type processHandle interface {
	poll() (pollState, error)
	kill() error
}

// Runner executes an ordered command list under a shared cancellation
// flag. The zero value is ready to use.
type Runner struct {
	// PollInterval overrides DefaultPollInterval; zero means use the
	// default.
	PollInterval time.Duration
}

// Run spawns each command in commands in order, in the current working
// directory, waiting for each to exit before starting the next. If cancel
// becomes set while a command is running, Run terminates that command's
// process group/job and returns without starting any further commands.
// Commands that have not yet started when cancellation is observed are
// never spawned.
func (r *Runner) Run(commands []string, cancel *CancelFlag) error {
	interval := r.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	for _, cmdLine := range commands {
		if cancel.IsSet() {
			return nil
		}

		handle, err := spawnCommand(cmdLine)
		if err != nil {
			return SpawnError{Cmd: cmdLine, Err: err}
		}

		for {
			if cancel.IsSet() {
				if err := handle.kill(); err != nil {
					return TerminateFailedError{Cmd: cmdLine, Err: err}
				}
				return nil
			}

			state, err := handle.poll()
			if err != nil {
				return fmt.Errorf("procrun: polling %q: %w", cmdLine, err)
			}
			if state == stateExited {
				break
			}

			time.Sleep(interval)
		}
	}

	return nil
}
