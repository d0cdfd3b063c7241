// Copyright © 2026 The modelitf Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

//go:build windows

package procrun

import (
	"fmt"
	"os"
	"os/exec"
	"unsafe"

	"golang.org/x/sys/windows"
)

// windowsHandle runs a command attached to a job object created with
// "kill on job close" semantics, so that closing the job reaps the command
// and everything it spawned in one call. A process started via os/exec is
// briefly running outside the job before AssignProcessToJobObject returns;
// this is the same race every job-object wrapper built on os/exec accepts,
// since os/exec offers no way to start a process pre-suspended.
type windowsHandle struct {
	cmd    *exec.Cmd
	job    windows.Handle
	waitCh chan error
}

func spawnCommand(cmdLine string) (processHandle, error) {
	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("CreateJobObject: %w", err)
	}

	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}
	if _, err := windows.SetInformationJobObject(
		job,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	); err != nil {
		windows.CloseHandle(job)
		return nil, fmt.Errorf("SetInformationJobObject: %w", err)
	}

	cmd := exec.Command("cmd", "/C", cmdLine)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		windows.CloseHandle(job)
		return nil, err
	}

	procHandle, err := windows.OpenProcess(windows.PROCESS_SET_QUOTA|windows.PROCESS_TERMINATE, false, uint32(cmd.Process.Pid))
	if err != nil {
		windows.CloseHandle(job)
		cmd.Process.Kill()
		return nil, fmt.Errorf("OpenProcess: %w", err)
	}
	if err := windows.AssignProcessToJobObject(job, procHandle); err != nil {
		windows.CloseHandle(procHandle)
		windows.CloseHandle(job)
		cmd.Process.Kill()
		return nil, fmt.Errorf("AssignProcessToJobObject: %w", err)
	}
	windows.CloseHandle(procHandle)

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	return &windowsHandle{cmd: cmd, job: job, waitCh: waitCh}, nil
}

func (h *windowsHandle) poll() (pollState, error) {
	select {
	case <-h.waitCh:
		return stateExited, nil
	default:
		return stateRunning, nil
	}
}

func (h *windowsHandle) kill() error {
	// Closing a job object created with JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE
	// terminates every process still assigned to it, descendants included.
	if err := windows.CloseHandle(h.job); err != nil {
		return err
	}
	<-h.waitCh
	return nil
}
