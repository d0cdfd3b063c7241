// Copyright © 2026 The modelitf Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package tplfile implements the TPL template-file language: a simulator
// input file with parameter-bearing fields marked by a pair of repeated
// marker characters, e.g.
//
//	PTF ~
//	x= ~PAR1    ~ end
//
// ParseAndCheck discovers the parameter names a template references;
// WriteInputFile instantiates the template against a value lookup,
// replacing each marked field in place with a numfmt-rendered value of
// exactly the field's declared width.
package tplfile

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/gmofishsauce/modelitf/internal/numfmt"
)

// ValueLookup is the narrow contract the template writer needs from a
// caller's parameter container: resolve a canonical name to a value.
type ValueLookup interface {
	GetRec(name string) (float64, bool)
}

// Canonical upper-cases and trims a parameter or observation name to its
// canonical form, per the case-insensitive namespace rule shared by
// parameters and observations.
func Canonical(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// HeaderError reports a malformed "PTF <c>" header line.
type HeaderError struct {
	Path string
	Line string
}

func (e HeaderError) Error() string {
	return fmt.Sprintf("tplfile: %s: malformed header line %q, want \"PTF <marker>\"", e.Path, e.Line)
}

// UnbalancedMarkerError reports an odd number of marker occurrences on a
// data line: the last marker has no matching close.
type UnbalancedMarkerError struct {
	Path string
	Line int
}

func (e UnbalancedMarkerError) Error() string {
	return fmt.Sprintf("tplfile: %s: line %d: unbalanced marker", e.Path, e.Line)
}

// UnknownParameterError reports a field whose name has no binding in the
// value lookup passed to WriteInputFile.
type UnknownParameterError struct {
	Path string
	Name string
}

func (e UnknownParameterError) Error() string {
	return fmt.Sprintf("tplfile: %s: unknown parameter %q", e.Path, e.Name)
}

// field is one marker-delimited span on a template line.
type field struct {
	name  string
	start int // byte offset of opening marker
	end   int // byte offset of closing marker, inclusive
}

func (f field) width() int { return f.end - f.start + 1 }

// TemplateFile is a parsed handle on one TPL source file. It is reusable
// across evaluations; each operation re-opens and re-scans the underlying
// file, so edits to the template between evaluations are picked up.
type TemplateFile struct {
	path   string
	marker byte
}

// Open reads and validates the header line of path, returning a reusable
// TemplateFile. It does not scan the body; use ParseAndCheck for that.
func Open(path string) (*TemplateFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tplfile: %s: %w", path, err)
	}
	lines := splitLinesKeepEnds(data)
	if len(lines) == 0 {
		return nil, HeaderError{Path: path, Line: ""}
	}
	marker, err := parseHeader(path, stripEnd(lines[0]))
	if err != nil {
		return nil, err
	}
	return &TemplateFile{path: path, marker: marker}, nil
}

func parseHeader(path, line string) (byte, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "PTF") || len(fields[1]) != 1 {
		return 0, HeaderError{Path: path, Line: line}
	}
	c := fields[1][0]
	if unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c)) {
		return 0, HeaderError{Path: path, Line: line}
	}
	return c, nil
}

// ParseAndCheck scans the template body and returns the set of parameter
// names it references. It validates the header and marker pairing but does
// not check that names resolve anywhere.
func (t *TemplateFile) ParseAndCheck() (map[string]struct{}, error) {
	lines, err := t.readBody()
	if err != nil {
		return nil, err
	}
	names := make(map[string]struct{})
	for i, line := range lines {
		fields, err := splitFields(stripEnd(line), t.marker)
		if err != nil {
			return nil, UnbalancedMarkerError{Path: t.path, Line: i + 2}
		}
		for _, f := range fields {
			names[f.name] = struct{}{}
		}
	}
	return names, nil
}

// WriteInputFile instantiates the template against params, writing the
// result to path. Replacement is purely positional on the original line
// text: each field's byte span is overwritten with a numfmt rendering of
// exactly the field's width, and non-field bytes are untouched.
//
// All fields across the template are resolved before anything is written;
// if any name is missing, no output file is produced (any previous file at
// path is removed rather than left stale or partially written).
func (t *TemplateFile) WriteInputFile(path string, params ValueLookup) error {
	lines, err := t.readBody()
	if err != nil {
		return err
	}

	type replacement struct {
		lineIdx    int
		start, end int
		rendered   string
	}
	var replacements []replacement

	for i, raw := range lines {
		line := stripEnd(raw)
		fields, ferr := splitFields(line, t.marker)
		if ferr != nil {
			return UnbalancedMarkerError{Path: t.path, Line: i + 2}
		}
		for _, f := range fields {
			v, ok := params.GetRec(f.name)
			if !ok {
				os.Remove(path)
				return UnknownParameterError{Path: t.path, Name: f.name}
			}
			rendered, ferr := numfmt.Format(v, f.width(), f.name)
			if ferr != nil {
				os.Remove(path)
				return fmt.Errorf("tplfile: %s: field %s: %w", t.path, f.name, ferr)
			}
			replacements = append(replacements, replacement{i, f.start, f.end, rendered})
		}
	}

	var out strings.Builder
	byLine := make(map[int][]replacement)
	for _, r := range replacements {
		byLine[r.lineIdx] = append(byLine[r.lineIdx], r)
	}
	for i, raw := range lines {
		line := stripEnd(raw)
		ending := lineEnding(raw)
		rs := byLine[i]
		b := []byte(line)
		for _, r := range rs {
			copy(b[r.start:r.end+1], r.rendered)
		}
		out.Write(b)
		out.WriteString(ending)
	}

	if err := os.WriteFile(path, []byte(out.String()), 0644); err != nil {
		return fmt.Errorf("tplfile: %s: writing %s: %w", t.path, path, err)
	}
	return nil
}

// readBody returns the template's lines after the header, with original
// line endings intact.
func (t *TemplateFile) readBody() ([]string, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		return nil, fmt.Errorf("tplfile: %s: %w", t.path, err)
	}
	lines := splitLinesKeepEnds(data)
	if len(lines) == 0 {
		return nil, HeaderError{Path: t.path, Line: ""}
	}
	if _, err := parseHeader(t.path, stripEnd(lines[0])); err != nil {
		return nil, err
	}
	return lines[1:], nil
}

// splitFields scans one line for marker-delimited fields. Marker
// occurrences must come in pairs; consecutive occurrences delimit one
// field each.
func splitFields(line string, marker byte) ([]field, error) {
	var positions []int
	for i := 0; i < len(line); i++ {
		if line[i] == marker {
			positions = append(positions, i)
		}
	}
	if len(positions)%2 != 0 {
		return nil, fmt.Errorf("unbalanced marker")
	}
	var fields []field
	for i := 0; i+1 < len(positions); i += 2 {
		start, end := positions[i], positions[i+1]
		name := Canonical(line[start+1 : end])
		fields = append(fields, field{name: name, start: start, end: end})
	}
	return fields, nil
}

// splitLinesKeepEnds splits data into lines, each retaining its original
// terminator ("\n" or "\r\n"), except possibly the final line if the file
// does not end with a newline.
func splitLinesKeepEnds(data []byte) []string {
	var lines []string
	start := 0
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' {
			lines = append(lines, string(data[start:i+1]))
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, string(data[start:]))
	}
	return lines
}

func lineEnding(line string) string {
	if strings.HasSuffix(line, "\r\n") {
		return "\r\n"
	}
	if strings.HasSuffix(line, "\n") {
		return "\n"
	}
	return ""
}

func stripEnd(line string) string {
	return strings.TrimRight(line, "\r\n")
}
