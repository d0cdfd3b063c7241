// Copyright © 2026 The modelitf Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package tplfile

import (
	"os"
	"path/filepath"
	"testing"
)

type mapLookup map[string]float64

func (m mapLookup) GetRec(name string) (float64, bool) {
	v, ok := m[Canonical(name)]
	return v, ok
}

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

func TestParseAndCheck(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "model.tpl", "PTF ~\nx= ~PAR1    ~ end\ny= ~PAR2~ ~PAR1~\n")

	tf, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	names, err := tf.ParseAndCheck()
	if err != nil {
		t.Fatalf("ParseAndCheck: %v", err)
	}
	want := map[string]struct{}{"PAR1": {}, "PAR2": {}}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for n := range want {
		if _, ok := names[n]; !ok {
			t.Errorf("missing parameter %s in %v", n, names)
		}
	}
}

func TestWriteInputFileWidths(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "model.tpl", "PTF ~\nx= ~PAR1    ~ end\n")
	tf, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	out := filepath.Join(dir, "model.in")
	if err := tf.WriteInputFile(out, mapLookup{"PAR1": 1.23456789e10}); err != nil {
		t.Fatalf("WriteInputFile: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	// The field "~PAR1    ~" spans 10 columns including both markers, so
	// the rendered value must be exactly 10 characters wide.
	want := "x= 1.2346E+10 end\n"
	if string(data) != want {
		t.Fatalf("got %q, want %q", data, want)
	}
}

func TestWriteInputFileUnknownParameter(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "model.tpl", "PTF ~\nx= ~PAR1~ end\n")
	tf, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	out := filepath.Join(dir, "model.in")
	err = tf.WriteInputFile(out, mapLookup{})
	if err == nil {
		t.Fatal("expected error for unresolved parameter")
	}
	if _, ok := err.(UnknownParameterError); !ok {
		t.Fatalf("expected UnknownParameterError, got %T: %v", err, err)
	}
	if _, statErr := os.Stat(out); statErr == nil {
		t.Fatal("expected output file to not exist after failed write")
	}
}

func TestUnbalancedMarker(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "model.tpl", "PTF ~\n~PAR1 end\n")
	tf, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, err = tf.ParseAndCheck()
	if err == nil {
		t.Fatal("expected UnbalancedMarkerError")
	}
	ube, ok := err.(UnbalancedMarkerError)
	if !ok {
		t.Fatalf("expected UnbalancedMarkerError, got %T: %v", err, err)
	}
	if ube.Line != 2 {
		t.Fatalf("expected line 2, got %d", ube.Line)
	}
}

func TestHeaderError(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "model.tpl", "not a header\n")
	if _, err := Open(path); err == nil {
		t.Fatal("expected HeaderError")
	}
}

func TestRoundTripNonFieldBytesUntouched(t *testing.T) {
	dir := t.TempDir()
	tpl := "PTF ~\nprefix ~A   ~ middle ~B  ~ suffix\n"
	path := writeTemp(t, dir, "model.tpl", tpl)
	tf, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	out := filepath.Join(dir, "model.in")
	if err := tf.WriteInputFile(out, mapLookup{"A": 1.0, "B": -2.0}); err != nil {
		t.Fatalf("WriteInputFile: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	got := string(data)
	if got[:7] != "prefix " {
		t.Errorf("prefix corrupted: %q", got)
	}
	if !containsAll(got, []string{"prefix ", " middle ", " suffix"}) {
		t.Errorf("non-field text corrupted: %q", got)
	}
}

func containsAll(s string, subs []string) bool {
	for _, sub := range subs {
		found := false
		for i := 0; i+len(sub) <= len(s); i++ {
			if s[i:i+len(sub)] == sub {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
