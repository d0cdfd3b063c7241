// Copyright © 2026 The modelitf Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package insfile implements the INS instruction-file language: a small
// stack-less interpreter that scans a simulator's textual output and binds
// named scalar observations out of it, e.g.
//
//	PIF @
//	L1 [OBS1]10:20 !OBS2!
//	@keyword@ W !OBS3!
//
// Open parses each line once into a typed instruction sequence (per the
// tagged-variant-plus-cursor shape called for over ad-hoc character
// dispatch at read time); ParseAndCheck discovers the set of observation
// names that sequence defines. ReadOutputFile then executes the sequence
// against one output file and returns the bound values.
package insfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
)

// Canonical upper-cases and trims an observation name to its canonical
// form, the same namespace rule shared with parameter names.
func Canonical(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// InstructionFile is a parsed handle on one INS source file, reusable
// across evaluations.
type InstructionFile struct {
	path   string
	marker byte
	lines  []logicalLine

	// Warnings from the most recent ReadOutputFile call, e.g. duplicate
	// observation bindings. Non-fatal by design (spec: a later binding
	// wins but the implementation must warn).
	Warnings []string
}

// Open reads, validates the header of, and parses path into a reusable
// InstructionFile.
func Open(path string) (*InstructionFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("insfile: %s: %w", path, err)
	}
	rawLines := strings.Split(string(data), "\n")
	for len(rawLines) > 0 && rawLines[len(rawLines)-1] == "" {
		rawLines = rawLines[:len(rawLines)-1]
	}
	if len(rawLines) == 0 {
		return nil, HeaderError{Path: path, Line: ""}
	}

	marker, err := parseHeader(path, strings.TrimRight(rawLines[0], "\r"))
	if err != nil {
		return nil, err
	}

	inf := &InstructionFile{path: path, marker: marker}
	if err := inf.parseBody(rawLines[1:]); err != nil {
		return nil, err
	}
	return inf, nil
}

func parseHeader(path, line string) (byte, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "PIF") || len(fields[1]) != 1 {
		return 0, HeaderError{Path: path, Line: line}
	}
	c := fields[1][0]
	if unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c)) {
		return 0, HeaderError{Path: path, Line: line}
	}
	return c, nil
}

// parseBody groups physical lines into logical lines (joining "&"
// continuations with the preceding line) and tokenizes each into a typed
// instruction sequence.
func (inf *InstructionFile) parseBody(body []string) error {
	var lines []logicalLine
	for i, raw := range body {
		lineNum := i + 2 // body is 0-indexed after a 1-indexed header line
		line := strings.TrimRight(raw, "\r")
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		continuation := strings.HasPrefix(fields[0], "&")
		if continuation {
			fields[0] = strings.TrimPrefix(fields[0], "&")
			if fields[0] == "" {
				fields = fields[1:]
			}
		}

		instrs := make([]instruction, 0, len(fields))
		for _, f := range fields {
			in, err := parseToken(f, inf.marker, inf.path, lineNum)
			if err != nil {
				return err
			}
			instrs = append(instrs, in)
		}

		if continuation && len(lines) > 0 {
			last := &lines[len(lines)-1]
			last.instructions = append(last.instructions, instrs...)
			continue
		}
		lines = append(lines, logicalLine{sourceLine: lineNum, instructions: instrs})
	}
	inf.lines = lines
	return nil
}

// ParseAndCheck returns the set of observation names this instruction file
// defines, across every read instruction in every logical line.
func (inf *InstructionFile) ParseAndCheck() (map[string]struct{}, error) {
	names := make(map[string]struct{})
	for _, ll := range inf.lines {
		for _, in := range ll.instructions {
			switch in.kind {
			case kindFreeRead, kindFixedRead, kindSemiRead, kindAltFreeRead:
				names[in.name] = struct{}{}
			}
		}
	}
	return names, nil
}

// cursor tracks the logical scan position within the output file: all of
// the file's lines, the current line number (1-indexed, 0
// before any line has been read), and the current column (0-indexed, byte
// offset of the next unread character).
type cursor struct {
	lines   []string
	lineNum int
	col     int
}

func (c *cursor) currentLine() (string, bool) {
	if c.lineNum < 1 || c.lineNum > len(c.lines) {
		return "", false
	}
	return c.lines[c.lineNum-1], true
}

// advanceLines moves the cursor forward by n whole lines, resetting the
// column to the start of the new line.
func (c *cursor) advanceLines(n int) error {
	target := c.lineNum + n
	if target > len(c.lines) {
		return fmt.Errorf("advance past end of output (line %d of %d)", target, len(c.lines))
	}
	c.lineNum = target
	c.col = 0
	return nil
}

// ReadOutputFile executes the parsed instruction sequence against the
// output file at path and returns the bound observation values. All names
// declared by ParseAndCheck must be bound by the time execution completes;
// any that are not is a fatal MissingObsError.
func (inf *InstructionFile) ReadOutputFile(path string) (map[string]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("insfile: %s: reading output %s: %w", inf.path, path, err)
	}
	raw := strings.Split(string(data), "\n")
	lines := make([]string, len(raw))
	for i, l := range raw {
		lines[i] = strings.TrimRight(l, "\r")
	}

	inf.Warnings = nil
	cur := &cursor{lines: lines}
	values := make(map[string]float64)

	declared, _ := inf.ParseAndCheck()

	for _, ll := range inf.lines {
		anchored := false
		for _, in := range ll.instructions {
			switch in.kind {
			case kindLineAdvance:
				if err := cur.advanceLines(in.n); err != nil {
					return nil, UnexpectedEOFError{Path: inf.path, Line: ll.sourceLine, Tok: in.raw}
				}

			case kindSkipWhitespace:
				if err := skipWhitespace(cur); err != nil {
					return nil, UnexpectedEOFError{Path: inf.path, Line: ll.sourceLine, Tok: in.raw}
				}

			case kindDiscard:
				if _, err := readField(cur); err != nil {
					return nil, UnexpectedEOFError{Path: inf.path, Line: ll.sourceLine, Tok: in.raw}
				}

			case kindFreeRead, kindAltFreeRead:
				field, err := readField(cur)
				if err != nil {
					return nil, UnexpectedEOFError{Path: inf.path, Line: ll.sourceLine, Tok: in.raw}
				}
				v, perr := parseDouble(field)
				if perr != nil {
					return nil, ObsReadError{Name: in.name, Line: cur.lineNum, Col: cur.col}
				}
				bindValue(values, inf, in.name, v)

			case kindFixedRead:
				line, ok := cur.currentLine()
				if !ok {
					return nil, UnexpectedEOFError{Path: inf.path, Line: ll.sourceLine, Tok: in.raw}
				}
				field := columnSpan(line, in.start, in.end)
				v, perr := parseDouble(field)
				if perr != nil {
					return nil, ObsReadError{Name: in.name, Line: cur.lineNum, Col: in.start}
				}
				bindValue(values, inf, in.name, v)
				cur.col = clampCol(line, in.end)

			case kindSemiRead:
				line, ok := cur.currentLine()
				if !ok {
					return nil, UnexpectedEOFError{Path: inf.path, Line: ll.sourceLine, Tok: in.raw}
				}
				field := locateToken(line, in.start, in.end)
				v, perr := parseDouble(field)
				if perr != nil {
					return nil, ObsReadError{Name: in.name, Line: cur.lineNum, Col: in.start}
				}
				bindValue(values, inf, in.name, v)
				cur.col = clampCol(line, in.end)

			case kindSearch:
				if !anchored {
					if err := searchPrimary(cur, in.text); err != nil {
						return nil, UnexpectedEOFError{Path: inf.path, Line: ll.sourceLine, Tok: in.raw}
					}
					anchored = true
				} else {
					if err := searchSecondary(cur, in.text); err != nil {
						return nil, UnexpectedEOFError{Path: inf.path, Line: ll.sourceLine, Tok: in.raw}
					}
				}
			}
		}
	}

	var missing []string
	for name := range declared {
		if _, ok := values[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, MissingObsError{Path: inf.path, Name: missing[0]}
	}

	return values, nil
}

func bindValue(values map[string]float64, inf *InstructionFile, name string, v float64) {
	if _, dup := values[name]; dup {
		inf.Warnings = append(inf.Warnings, fmt.Sprintf("insfile: %s: duplicate binding for observation %s, later value wins", inf.path, name))
	}
	values[name] = v
}

// skipWhitespace advances col past any run of whitespace starting at the
// current position, per the instruction table's literal description: skip
// whitespace until a non-whitespace column. The numeric suffix some INS
// dialects attach to "W" is accepted by the lexer but does not change this
// behavior; see DESIGN.md for why.
func skipWhitespace(cur *cursor) error {
	line, ok := cur.currentLine()
	if !ok {
		return fmt.Errorf("no current line")
	}
	for cur.col < len(line) && isSpace(line[cur.col]) {
		cur.col++
	}
	return nil
}

// readField consumes the next whitespace-delimited field starting at the
// current column, skipping leading whitespace first, and returns its text.
func readField(cur *cursor) (string, error) {
	line, ok := cur.currentLine()
	if !ok {
		return "", fmt.Errorf("no current line")
	}
	i := cur.col
	for i < len(line) && isSpace(line[i]) {
		i++
	}
	start := i
	for i < len(line) && !isSpace(line[i]) {
		i++
	}
	if start == i {
		cur.col = i
		return "", fmt.Errorf("no field at end of line")
	}
	cur.col = i
	return line[start:i], nil
}

// columnSpan extracts 1-indexed inclusive columns [start, end] from line,
// clipped to the line's length, and trims surrounding whitespace.
func columnSpan(line string, start, end int) string {
	s, e := spanBounds(line, start, end)
	if s >= e {
		return ""
	}
	return strings.TrimSpace(line[s:e])
}

// locateToken extracts the span like columnSpan but then expands outward
// through any contiguous non-whitespace run touching the span's edges, so
// a value that straddles the declared columns is still captured whole.
func locateToken(line string, start, end int) string {
	s, e := spanBounds(line, start, end)
	for s > 0 && !isSpace(line[s-1]) {
		s--
	}
	for e < len(line) && !isSpace(line[e]) {
		e++
	}
	if s >= e {
		return ""
	}
	return strings.TrimSpace(line[s:e])
}

func spanBounds(line string, start, end int) (int, int) {
	s := start - 1
	e := end
	if s < 0 {
		s = 0
	}
	if e > len(line) {
		e = len(line)
	}
	if s > len(line) {
		s = len(line)
	}
	return s, e
}

func clampCol(line string, end int) int {
	if end > len(line) {
		return len(line)
	}
	if end < 0 {
		return 0
	}
	return end
}

// searchPrimary scans forward from the current cursor position, across
// lines if necessary, for the literal text, and repositions the cursor
// immediately after the match.
func searchPrimary(cur *cursor, text string) error {
	startLine := cur.lineNum
	if startLine < 1 {
		startLine = 1
	}
	for lineNum := startLine; lineNum <= len(cur.lines); lineNum++ {
		line := cur.lines[lineNum-1]
		from := 0
		if lineNum == cur.lineNum {
			from = cur.col
		}
		if from > len(line) {
			continue
		}
		if idx := strings.Index(line[from:], text); idx >= 0 {
			cur.lineNum = lineNum
			cur.col = from + idx + len(text)
			return nil
		}
	}
	return fmt.Errorf("text %q not found", text)
}

// searchSecondary scans only within the current line, from the current
// column forward.
func searchSecondary(cur *cursor, text string) error {
	line, ok := cur.currentLine()
	if !ok {
		return fmt.Errorf("no current line")
	}
	if cur.col > len(line) {
		return fmt.Errorf("text %q not found", text)
	}
	idx := strings.Index(line[cur.col:], text)
	if idx < 0 {
		return fmt.Errorf("text %q not found", text)
	}
	cur.col = cur.col + idx + len(text)
	return nil
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t'
}

// parseDouble accepts an optionally-signed decimal with an optional
// exponent, trimming surrounding whitespace first.
func parseDouble(field string) (float64, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseFloat(field, 64)
}
