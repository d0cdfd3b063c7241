// Copyright © 2026 The modelitf Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package insfile

import (
	"strconv"
	"strings"
)

// parseToken classifies one whitespace-delimited instruction token. It is
// the character-by-character dispatcher the rest of the package builds on,
// written as an index walk in the style of asm/lexer.go's tokenizeLine
// rather than a regexp cascade.
func parseToken(tok string, marker byte, path string, lineNum int) (instruction, error) {
	if strings.EqualFold(tok, "DUM") {
		return instruction{kind: kindDiscard, raw: tok}, nil
	}

	if n, ok := parseLetterNumber(tok, 'L', 'l'); ok {
		if n < 1 {
			return instruction{}, BadInstructionError{Path: path, Line: lineNum, Tok: tok}
		}
		return instruction{kind: kindLineAdvance, raw: tok, n: n}, nil
	}

	if n, ok := parseLetterNumber(tok, 'W', 'w'); ok {
		return instruction{kind: kindSkipWhitespace, raw: tok, n: n}, nil
	}

	switch {
	case strings.HasPrefix(tok, "!"):
		name, ok := matchedPair(tok, '!', '!')
		if !ok {
			return instruction{}, UnbalancedTagError{Path: path, Line: lineNum, Tok: tok}
		}
		return instruction{kind: kindFreeRead, raw: tok, name: Canonical(name)}, nil

	case strings.HasPrefix(tok, "["):
		return parseSpanForm(tok, '[', ']', kindFixedRead, path, lineNum)

	case strings.HasPrefix(tok, "{"):
		return parseSpanForm(tok, '{', '}', kindSemiRead, path, lineNum)

	case strings.HasPrefix(tok, "("):
		return parseSpanForm(tok, '(', ')', kindAltFreeRead, path, lineNum)

	case len(tok) >= 2 && tok[0] == marker && tok[len(tok)-1] == marker:
		return instruction{kind: kindSearch, raw: tok, text: tok[1 : len(tok)-1]}, nil
	}

	return instruction{}, BadInstructionError{Path: path, Line: lineNum, Tok: tok}
}

// parseLetterNumber recognizes a token of the form "<letter><digits>" or a
// bare "<letter>" (digits optional), case-insensitively on the letter. It
// returns ok=false if the token doesn't start with either case of the
// letter, or has non-digit trailing characters.
func parseLetterNumber(tok string, upper, lower byte) (int, bool) {
	if len(tok) == 0 || (tok[0] != upper && tok[0] != lower) {
		return 0, false
	}
	rest := tok[1:]
	if rest == "" {
		return 0, true
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

// matchedPair returns the text between the first occurrence of open and the
// last occurrence of close in tok, provided tok starts with open and ends
// with close and is at least two characters long.
func matchedPair(tok string, open, close byte) (string, bool) {
	if len(tok) < 2 || tok[0] != open || tok[len(tok)-1] != close {
		return "", false
	}
	return tok[1 : len(tok)-1], true
}

// parseSpanForm parses "<open>name<close>start:end" forms shared by the
// fixed, semi-fixed, and alternate-free read instructions.
func parseSpanForm(tok string, open, close byte, kind instrKind, path string, lineNum int) (instruction, error) {
	closeIdx := strings.IndexByte(tok, close)
	if closeIdx <= 0 {
		return instruction{}, UnbalancedTagError{Path: path, Line: lineNum, Tok: tok}
	}
	name := Canonical(tok[1:closeIdx])
	spanStr := tok[closeIdx+1:]
	start, end, err := parseSpan(spanStr)
	if err != nil {
		return instruction{}, BadInstructionError{Path: path, Line: lineNum, Tok: tok}
	}
	return instruction{kind: kind, raw: tok, name: name, start: start, end: end}, nil
}

func parseSpan(s string) (int, int, error) {
	before, after, found := strings.Cut(s, ":")
	if !found {
		return 0, 0, strconv.ErrSyntax
	}
	start, err := strconv.Atoi(before)
	if err != nil {
		return 0, 0, err
	}
	end, err := strconv.Atoi(after)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}
