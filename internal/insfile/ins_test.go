// Copyright © 2026 The modelitf Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package insfile

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

func openIns(t *testing.T, dir, insBody string) *InstructionFile {
	t.Helper()
	path := writeTemp(t, dir, "model.ins", "PIF @\n"+insBody)
	inf, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return inf
}

func TestParseAndCheckNames(t *testing.T) {
	dir := t.TempDir()
	inf := openIns(t, dir, "L1 !obs1! [OBS2]1:5 {obs3}1:5 (OBS4)1:5\n")

	names, err := inf.ParseAndCheck()
	if err != nil {
		t.Fatalf("ParseAndCheck: %v", err)
	}
	want := map[string]struct{}{"OBS1": {}, "OBS2": {}, "OBS3": {}, "OBS4": {}}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for n := range want {
		if _, ok := names[n]; !ok {
			t.Errorf("missing observation %s in %v", n, names)
		}
	}
}

// TestFixedReadColumnSpan exercises the concrete scenario from the
// instruction table: a line advance followed by two fixed-column reads on
// the landed line, one of which runs past the physical end of the line and
// must clip rather than error.
func TestFixedReadColumnSpan(t *testing.T) {
	dir := t.TempDir()
	inf := openIns(t, dir, "L3 [OBS_A]11:16 [OBS_B]26:32\n")

	outPath := writeTemp(t, dir, "model.out",
		"ignored line 1\nignored line 2\n  OBS_A    42.5   OBS_B   -1e3\n")

	values, err := inf.ReadOutputFile(outPath)
	if err != nil {
		t.Fatalf("ReadOutputFile: %v", err)
	}
	if values["OBS_A"] != 42.5 {
		t.Errorf("OBS_A = %v, want 42.5", values["OBS_A"])
	}
	if values["OBS_B"] != -1e3 {
		t.Errorf("OBS_B = %v, want -1e3", values["OBS_B"])
	}
}

// TestSemiReadExpandsToTokenBoundary checks that a semi-fixed {name}start:end
// read, unlike the exact-span fixed read, widens outward to the full token
// when the declared span lands inside a longer run of non-whitespace.
func TestSemiReadExpandsToTokenBoundary(t *testing.T) {
	dir := t.TempDir()
	inf := openIns(t, dir, "L1 {OBS1}1:3\n")

	// Columns 1:3 land inside "12345.6" (which starts at column 1), so a
	// fixed read would see only "123" while a semi-fixed read expands to
	// capture the whole token.
	outPath := writeTemp(t, dir, "model.out", "12345.6 trailing\n")

	values, err := inf.ReadOutputFile(outPath)
	if err != nil {
		t.Fatalf("ReadOutputFile: %v", err)
	}
	if values["OBS1"] != 12345.6 {
		t.Errorf("OBS1 = %v, want 12345.6", values["OBS1"])
	}
}

func TestFreeReadSkipsLabelViaDum(t *testing.T) {
	dir := t.TempDir()
	inf := openIns(t, dir, "L1 DUM !OBS1!\n")

	outPath := writeTemp(t, dir, "model.out", "head    3.14159\n")

	values, err := inf.ReadOutputFile(outPath)
	if err != nil {
		t.Fatalf("ReadOutputFile: %v", err)
	}
	if values["OBS1"] != 3.14159 {
		t.Errorf("OBS1 = %v, want 3.14159", values["OBS1"])
	}
}

func TestSkipWhitespaceInstruction(t *testing.T) {
	dir := t.TempDir()
	inf := openIns(t, dir, "L1 W !OBS1!\n")

	outPath := writeTemp(t, dir, "model.out", "   7.5\n")

	values, err := inf.ReadOutputFile(outPath)
	if err != nil {
		t.Fatalf("ReadOutputFile: %v", err)
	}
	if values["OBS1"] != 7.5 {
		t.Errorf("OBS1 = %v, want 7.5", values["OBS1"])
	}
}

// TestPrimaryThenSecondarySearch exercises marker search tokens within one
// logical line: the first is a primary search (scans forward from the
// current cursor, across lines if necessary); the second, on the same
// logical line, is a secondary search restricted to the line the primary
// search landed on.
func TestPrimaryThenSecondarySearch(t *testing.T) {
	dir := t.TempDir()
	inf := openIns(t, dir, "@HEAD@ @VAL=@ !OBS1!\n")

	outPath := writeTemp(t, dir, "model.out", "noise\nHEAD line VAL=9.5 tail\n")

	values, err := inf.ReadOutputFile(outPath)
	if err != nil {
		t.Fatalf("ReadOutputFile: %v", err)
	}
	if values["OBS1"] != 9.5 {
		t.Errorf("OBS1 = %v, want 9.5", values["OBS1"])
	}
}

// TestContinuationJoinsLogicalLine checks that a "&"-prefixed physical line
// is folded into the preceding logical line rather than executed as its own
// instruction sequence, and that the anchored search state carries across
// the join.
func TestContinuationJoinsLogicalLine(t *testing.T) {
	dir := t.TempDir()
	inf := openIns(t, dir, "@HEAD@ !OBS1!\n&@TAIL@ !OBS2!\n")

	if len(inf.lines) != 1 {
		t.Fatalf("got %d logical lines, want 1 (continuation should join)", len(inf.lines))
	}

	outPath := writeTemp(t, dir, "model.out", "HEAD 1.0 TAIL 2.0\n")
	values, err := inf.ReadOutputFile(outPath)
	if err != nil {
		t.Fatalf("ReadOutputFile: %v", err)
	}
	if values["OBS1"] != 1.0 || values["OBS2"] != 2.0 {
		t.Fatalf("got %v, want OBS1=1.0 OBS2=2.0", values)
	}
}

func TestDuplicateObservationWarns(t *testing.T) {
	dir := t.TempDir()
	// Each logical line's "L1" advances one line relative to wherever the
	// cursor already is, so two of them in sequence land on lines 1 and 2.
	inf := openIns(t, dir, "L1 !OBS1!\nL1 !OBS1!\n")

	outPath := writeTemp(t, dir, "model.out", "1.0\n2.0\n")
	values, err := inf.ReadOutputFile(outPath)
	if err != nil {
		t.Fatalf("ReadOutputFile: %v", err)
	}
	if values["OBS1"] != 2.0 {
		t.Fatalf("OBS1 = %v, want 2.0 (later binding wins)", values["OBS1"])
	}
	if len(inf.Warnings) != 1 {
		t.Fatalf("got %d warnings, want 1", len(inf.Warnings))
	}
}

// The instruction language has no conditional or skip form, so any
// ReadOutputFile call that reaches the declared-vs-bound check at all has
// already bound every name ParseAndCheck reports; a run that fails to bind
// a declared name fails earlier, as an UnexpectedEOFError or ObsReadError.
// MissingObsError's formatting is still checked directly here as the
// defensive guard spec §4.3 calls for.
func TestMissingObsErrorFormatting(t *testing.T) {
	err := MissingObsError{Path: "model.ins", Name: "OBS2"}
	want := `insfile: model.ins: observation "OBS2" declared but never bound`
	if got := err.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

// TestReadInstructionWithoutTrailingFieldIsEOF documents the path an
// exhausted read instruction actually takes: the missing field is reported
// as running past the end of the output, not as a missing observation.
func TestReadInstructionWithoutTrailingFieldIsEOF(t *testing.T) {
	dir := t.TempDir()
	inf := openIns(t, dir, "L1 !OBS1! !OBS2!\n")

	outPath := writeTemp(t, dir, "model.out", "1.0\n")
	_, err := inf.ReadOutputFile(outPath)
	if err == nil {
		t.Fatal("expected UnexpectedEOFError")
	}
	if _, ok := err.(UnexpectedEOFError); !ok {
		t.Fatalf("expected UnexpectedEOFError, got %T: %v", err, err)
	}
}

func TestLineAdvancePastEOFError(t *testing.T) {
	dir := t.TempDir()
	inf := openIns(t, dir, "L5 !OBS1!\n")

	outPath := writeTemp(t, dir, "model.out", "only one line\n")
	_, err := inf.ReadOutputFile(outPath)
	if err == nil {
		t.Fatal("expected UnexpectedEOFError")
	}
	if _, ok := err.(UnexpectedEOFError); !ok {
		t.Fatalf("expected UnexpectedEOFError, got %T: %v", err, err)
	}
}

func TestHeaderError(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "model.ins", "not a header\n")
	if _, err := Open(path); err == nil {
		t.Fatal("expected HeaderError")
	}
}

func TestUnbalancedTagError(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "model.ins", "PIF @\nL1 !OBS1\n")
	if _, err := Open(path); err == nil {
		t.Fatal("expected UnbalancedTagError")
	} else if _, ok := err.(UnbalancedTagError); !ok {
		t.Fatalf("expected UnbalancedTagError, got %T: %v", err, err)
	}
}

func TestBadInstructionError(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "model.ins", "PIF @\nL1 ###garbage\n")
	if _, err := Open(path); err == nil {
		t.Fatal("expected BadInstructionError")
	} else if _, ok := err.(BadInstructionError); !ok {
		t.Fatalf("expected BadInstructionError, got %T: %v", err, err)
	}
}

func TestParseDoubleUnparseable(t *testing.T) {
	dir := t.TempDir()
	inf := openIns(t, dir, "L1 !OBS1!\n")

	outPath := writeTemp(t, dir, "model.out", "not-a-number\n")
	_, err := inf.ReadOutputFile(outPath)
	if err == nil {
		t.Fatal("expected ObsReadError")
	}
	if _, ok := err.(ObsReadError); !ok {
		t.Fatalf("expected ObsReadError, got %T: %v", err, err)
	}
}
