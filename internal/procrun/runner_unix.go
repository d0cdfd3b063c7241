// Copyright © 2026 The modelitf Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

//go:build !windows

package procrun

import (
	"os"
	"os/exec"
	"syscall"
)

// unixHandle runs a command in its own process group so that cancellation
// can kill the whole group, not just the immediate child.
type unixHandle struct {
	cmd    *exec.Cmd
	waitCh chan error
}

func spawnCommand(cmdLine string) (processHandle, error) {
	cmd := exec.Command("/bin/sh", "-c", cmdLine)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	return &unixHandle{cmd: cmd, waitCh: waitCh}, nil
}

func (h *unixHandle) poll() (pollState, error) {
	select {
	case <-h.waitCh:
		// Exit code is not inspected; a nonzero exit is not itself an
		// evaluation failure (spec open question, resolved in DESIGN.md).
		return stateExited, nil
	default:
		return stateRunning, nil
	}
}

func (h *unixHandle) kill() error {
	pgid := h.cmd.Process.Pid
	if err := syscall.Kill(-pgid, syscall.SIGKILL); err != nil {
		if err2 := h.cmd.Process.Kill(); err2 != nil {
			return err2
		}
	}
	<-h.waitCh
	return nil
}
