// Copyright © 2026 The modelitf Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package modelif orchestrates one evaluation of an opaque external
// simulator: clean stale files, instantiate inputs from templates, run the
// simulator's command line under cancellation, extract observations from
// its outputs, and hand the results back to the caller. It is the only
// package in this repository that knows about tplfile, insfile, and
// procrun all at once; everything else is a leaf.
package modelif

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gmofishsauce/modelitf/internal/insfile"
	"github.com/gmofishsauce/modelitf/internal/procrun"
	"github.com/gmofishsauce/modelitf/internal/tplfile"
)

// ConfigError reports a malformed Initialize call: mismatched file-list
// counts, an empty required list, a duplicated command, or a name a
// template/instruction file references that the caller never declared.
type ConfigError struct {
	Msg string
}

func (e ConfigError) Error() string { return "modelif: " + e.Msg }

// ParamsView is the value-lookup, ordered-extraction, and value-update
// contract Run needs from the caller's parameter container. Run writes the
// extracted values back through Update alongside the observations update,
// mirroring the original's paired `pars->update(...)`/`obs->update(...)`
// calls at the end of one evaluation.
type ParamsView interface {
	tplfile.ValueLookup
	GetDataVec(names []string) []float64
	Update(names []string, values []float64)
}

// ObsUpdater is the value-update contract Run needs from the caller's
// observation container.
type ObsUpdater interface {
	Update(names []string, values []float64)
}

// DoneFlag is a boolean cell set exactly once per Run, on every exit path,
// for a caller polling from another goroutine.
type DoneFlag struct {
	ch chan struct{}
}

// NewDoneFlag returns a DoneFlag ready for one Run call.
func NewDoneFlag() *DoneFlag { return &DoneFlag{ch: make(chan struct{})} }

// Signal marks the flag done. Safe to call more than once.
func (d *DoneFlag) Signal() {
	select {
	case <-d.ch:
	default:
		close(d.ch)
	}
}

// IsDone reports whether Signal has been called.
func (d *DoneFlag) IsDone() bool {
	select {
	case <-d.ch:
		return true
	default:
		return false
	}
}

// Wait blocks until Signal has been called.
func (d *DoneFlag) Wait() { <-d.ch }

// ErrorSink accepts at most one error per Run; the caller drains it after
// observing Done.
type ErrorSink struct {
	err error
}

// Set records err if no error has been recorded yet for this run.
func (s *ErrorSink) Set(err error) {
	if s.err == nil {
		s.err = err
	}
}

// Err returns the recorded error, or nil if the run succeeded.
func (s *ErrorSink) Err() error { return s.err }

// Interface is one model interface instance: a fixed set of templates,
// instruction files, commands, and the parameter/observation namespaces
// they're allowed to touch. It is not safe for concurrent Run calls;
// concurrent evaluations are the caller's responsibility using independent
// instances in independent working directories.
type Interface struct {
	tplFiles    []*tplfile.TemplateFile
	inputPaths  []string
	insFiles    []*insfile.InstructionFile
	outputPaths []string
	commands    []string
	parNames    []string
	obsNames    []string
}

// Initialize validates the file-list shape, parses every template and
// instruction file once, and checks that every name they reference is one
// the caller declared. It reports synchronously, unlike Run.
func (m *Interface) Initialize(tplPaths, inpPaths, insPaths, outPaths, commands, parNames, obsNames []string) error {
	if len(tplPaths) != len(inpPaths) {
		return ConfigError{Msg: fmt.Sprintf("%d template paths but %d input paths", len(tplPaths), len(inpPaths))}
	}
	if len(insPaths) != len(outPaths) {
		return ConfigError{Msg: fmt.Sprintf("%d instruction paths but %d output paths", len(insPaths), len(outPaths))}
	}
	if len(tplPaths) == 0 {
		return ConfigError{Msg: "no template files given"}
	}
	if len(insPaths) == 0 {
		return ConfigError{Msg: "no instruction files given"}
	}

	seenCmd := make(map[string]struct{}, len(commands))
	for _, c := range commands {
		if _, dup := seenCmd[c]; dup {
			return ConfigError{Msg: fmt.Sprintf("command list contains %q twice", c)}
		}
		seenCmd[c] = struct{}{}
	}

	parSet := canonicalSet(parNames)
	obsSet := canonicalSet(obsNames)

	tpls := make([]*tplfile.TemplateFile, 0, len(tplPaths))
	for _, p := range tplPaths {
		tf, err := tplfile.Open(p)
		if err != nil {
			return err
		}
		names, err := tf.ParseAndCheck()
		if err != nil {
			return err
		}
		for n := range names {
			if _, ok := parSet[n]; !ok {
				return ConfigError{Msg: fmt.Sprintf("template %s references undeclared parameter %s", p, n)}
			}
		}
		tpls = append(tpls, tf)
	}

	inss := make([]*insfile.InstructionFile, 0, len(insPaths))
	for _, p := range insPaths {
		inf, err := insfile.Open(p)
		if err != nil {
			return err
		}
		names, err := inf.ParseAndCheck()
		if err != nil {
			return err
		}
		for n := range names {
			if _, ok := obsSet[n]; !ok {
				return ConfigError{Msg: fmt.Sprintf("instruction file %s defines undeclared observation %s", p, n)}
			}
		}
		inss = append(inss, inf)
	}

	m.tplFiles = tpls
	m.inputPaths = append([]string(nil), inpPaths...)
	m.insFiles = inss
	m.outputPaths = append([]string(nil), outPaths...)
	m.commands = append([]string(nil), commands...)
	m.parNames = append([]string(nil), parNames...)
	m.obsNames = append([]string(nil), obsNames...)
	return nil
}

func canonicalSet(names []string) map[string]struct{} {
	s := make(map[string]struct{}, len(names))
	for _, n := range names {
		s[tplfile.Canonical(n)] = struct{}{}
	}
	return s
}

// Run performs one evaluation: delete stale files, write inputs, run the
// commands, read outputs, update both params and observations. Every exit
// path — success, cancellation, or error — signals done exactly once;
// errors are captured into errSink rather than returned, so a caller
// waiting on done never misses a failure.
//
// Side effects are strictly ordered: file deletion precedes input writes,
// which precede command launches, which precede output reads, which
// precede the container updates. No step runs if an earlier one failed.
func (m *Interface) Run(params ParamsView, observations ObsUpdater, cancel *procrun.CancelFlag, done *DoneFlag, errSink *ErrorSink) {
	defer done.Signal()

	if err := m.run(params, observations, cancel); err != nil {
		errSink.Set(err)
	}
}

func (m *Interface) run(params ParamsView, observations ObsUpdater, cancel *procrun.CancelFlag) (err error) {
	// paramset.Set.GetDataVec (and any other ParamsView a caller supplies)
	// panics on a name missing from the container; §7 requires that no
	// error, including this one, escape Run uncaught, so it is recovered
	// here and reported through the normal error path instead.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("modelif: extracting parameter values: %v", r)
		}
	}()

	if err := deleteStaleFiles(unionPaths(m.inputPaths, m.outputPaths)); err != nil {
		return err
	}

	// Extracting in canonical order surfaces a missing parameter before any
	// input file is written, rather than partway through writing templates.
	parVals := params.GetDataVec(m.parNames)

	var writeErrs []error
	for i, tf := range m.tplFiles {
		if err := tf.WriteInputFile(m.inputPaths[i], params); err != nil {
			writeErrs = append(writeErrs, err)
		}
	}
	if len(writeErrs) > 0 {
		return errors.Join(writeErrs...)
	}

	var runner procrun.Runner
	if err := runner.Run(m.commands, cancel); err != nil {
		return err
	}
	if cancel.IsSet() {
		return nil
	}

	aggregate := make(map[string]float64)
	var readErrs []error
	for i, inf := range m.insFiles {
		values, err := inf.ReadOutputFile(m.outputPaths[i])
		if err != nil {
			readErrs = append(readErrs, err)
			continue
		}
		for name, v := range values {
			aggregate[name] = v
		}
	}
	if len(readErrs) > 0 {
		return errors.Join(readErrs...)
	}

	names := make([]string, 0, len(aggregate))
	for name := range aggregate {
		names = append(names, name)
	}
	sort.Strings(names)
	values := make([]float64, len(names))
	for i, name := range names {
		values[i] = aggregate[name]
	}
	params.Update(m.parNames, parVals)
	observations.Update(names, values)

	return nil
}

func unionPaths(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, p := range append(append([]string(nil), a...), b...) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}
