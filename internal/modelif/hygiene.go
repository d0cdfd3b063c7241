// Copyright © 2026 The modelitf Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package modelif

import (
	"fmt"
	"os"
	"sort"
	"time"
)

// hygieneAttempts is the number of delete rounds attempted before giving up
// on a stubborn file (e.g. one a slow-to-exit antivirus scanner or network
// filesystem still has open from the previous evaluation).
const hygieneAttempts = 5

// hygieneBackoff is the pause between delete rounds.
const hygieneBackoff = time.Second

// FileHygieneError reports that one or more stale input/output files could
// not be removed before an evaluation, after exhausting retries. A caller
// seeing a fresh input file with the previous evaluation's contents is a
// worse failure mode than refusing to proceed.
type FileHygieneError struct {
	Paths []string
}

func (e FileHygieneError) Error() string {
	return fmt.Sprintf("modelif: could not remove stale file(s) before run: %v", e.Paths)
}

// deleteStaleFiles removes every path that exists, retrying the whole
// batch up to hygieneAttempts times with hygieneBackoff between rounds. A
// path that does not exist is not an error. It gives up only when the same
// paths keep failing across every attempt.
func deleteStaleFiles(paths []string) error {
	var failing map[string]error
	for attempt := 1; attempt <= hygieneAttempts; attempt++ {
		failing = make(map[string]error)
		for _, p := range paths {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				failing[p] = err
			}
		}
		if len(failing) == 0 {
			return nil
		}
		if attempt < hygieneAttempts {
			time.Sleep(hygieneBackoff)
		}
	}

	names := make([]string, 0, len(failing))
	for p := range failing {
		names = append(names, p)
	}
	sort.Strings(names)
	return FileHygieneError{Paths: names}
}
