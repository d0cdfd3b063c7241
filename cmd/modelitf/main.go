// Copyright © 2026 The modelitf Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.

// Command modelitf is a reference driver for one model interface
// evaluation: it reads a TOML run specification, writes input files from
// templates, runs the simulator's command line, extracts observations,
// and prints the result. A real optimizer embeds the internal/modelif
// package directly and calls Run once per iterate; this binary exists so
// the model interface can be exercised and debugged standalone.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/term"

	"github.com/gmofishsauce/modelitf/internal/modelif"
	"github.com/gmofishsauce/modelitf/internal/paramset"
	"github.com/gmofishsauce/modelitf/internal/procrun"
)

var (
	timeout     = flag.Duration("timeout", 0, "Cancel the run after this long (0 = no timeout)")
	showVersion = flag.Bool("version", false, "Show version and exit")
)

const version = "1.0.0"

// runSpec is the on-disk shape of a model interface run: the file lists
// that pair up positionally (template[i] writes input[i], instruction[i]
// reads output[i]), the command line to run between writing and reading,
// and the starting parameter values.
type runSpec struct {
	TemplateFiles    []string           `toml:"template_files"`
	InputFiles       []string           `toml:"input_files"`
	InstructionFiles []string           `toml:"instruction_files"`
	OutputFiles      []string           `toml:"output_files"`
	Commands         []string           `toml:"commands"`
	Parameters       map[string]float64 `toml:"parameters"`
	Observations     []string           `toml:"observations"`
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("modelitf v%s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) != 1 {
		usage()
		os.Exit(1)
	}

	if err := run(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "modelitf: %v\n", err)
		os.Exit(1)
	}
}

func run(specPath string) error {
	var spec runSpec
	if _, err := toml.DecodeFile(specPath, &spec); err != nil {
		return fmt.Errorf("reading run specification %s: %w", specPath, err)
	}

	parNames := make([]string, 0, len(spec.Parameters))
	for name := range spec.Parameters {
		parNames = append(parNames, name)
	}
	sort.Strings(parNames)

	params := paramset.New(parNames)
	for name, value := range spec.Parameters {
		params.Update([]string{name}, []float64{value})
	}
	observations := paramset.New(spec.Observations)

	var iface modelif.Interface
	if err := iface.Initialize(
		spec.TemplateFiles, spec.InputFiles,
		spec.InstructionFiles, spec.OutputFiles,
		spec.Commands, parNames, spec.Observations,
	); err != nil {
		return fmt.Errorf("initializing model interface: %w", err)
	}

	var cancel procrun.CancelFlag
	installSignalHandler(&cancel)
	if *timeout > 0 {
		time.AfterFunc(*timeout, cancel.Cancel)
	}

	done := modelif.NewDoneFlag()
	var errSink modelif.ErrorSink

	progress := term.IsTerminal(int(os.Stderr.Fd()))
	if progress {
		fmt.Fprintln(os.Stderr, "modelitf: running model...")
	}

	start := time.Now()
	iface.Run(params, observations, &cancel, done, &errSink)
	done.Wait()
	elapsed := time.Since(start)

	if progress {
		fmt.Fprintf(os.Stderr, "modelitf: finished in %v\n", elapsed.Round(time.Millisecond))
	}

	if err := errSink.Err(); err != nil {
		return err
	}
	if cancel.IsSet() {
		return fmt.Errorf("run cancelled")
	}

	for _, name := range observations.GetKeys() {
		v, _ := observations.GetRec(name)
		fmt.Printf("%s %.10g\n", name, v)
	}
	return nil
}

// installSignalHandler arms cancel on SIGINT/SIGTERM so an interactive run
// can be stopped cleanly instead of leaving the simulator's process group
// running after the driver exits.
func installSignalHandler(cancel *procrun.CancelFlag) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel.Cancel()
	}()
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options] <run-spec.toml>\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "modelitf runs one model interface evaluation from a TOML run specification.\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nThe run specification lists template/input and instruction/output file\n")
	fmt.Fprintf(os.Stderr, "pairs, the command line to execute, starting parameter values, and the\n")
	fmt.Fprintf(os.Stderr, "observation names to extract. Results are printed to stdout as\n")
	fmt.Fprintf(os.Stderr, "\"<name> <value>\" lines.\n")
}
