// Copyright © 2026 The modelitf Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package paramset implements the narrow value-lookup and value-update
// containers the model interface exchanges with its caller: Parameters
// going in, Observations coming out. Names in both are compared
// case-insensitively in a canonical upper-cased, trimmed form; the two are
// distinct namespaces even when a parameter and an observation happen to
// share a spelling.
//
// A real optimizer driver is free to supply its own types satisfying the
// same narrow interfaces (tplfile.ValueLookup, modelif's GetRec/Update
// contracts) instead of these; they exist so this repository is
// self-contained and testable end to end.
package paramset

import "strings"

// Canonical upper-cases and trims name to its canonical form.
func Canonical(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Set is an ordered, case-insensitive name-to-value container shared by
// Parameters and Observations.
type Set struct {
	order []string
	byKey map[string]float64
}

// New returns a Set whose keys are names, in the given order, all
// initialized to zero.
func New(names []string) *Set {
	s := &Set{
		order: make([]string, len(names)),
		byKey: make(map[string]float64, len(names)),
	}
	for i, n := range names {
		c := Canonical(n)
		s.order[i] = c
		s.byKey[c] = 0
	}
	return s
}

// GetRec resolves name to its current value. The second return is false if
// name is not a member of this set.
func (s *Set) GetRec(name string) (float64, bool) {
	v, ok := s.byKey[Canonical(name)]
	return v, ok
}

// GetDataVec returns the values for names, in the order given. It panics if
// any name is not a member of this set, since that is a caller programming
// error rather than a data error.
func (s *Set) GetDataVec(names []string) []float64 {
	out := make([]float64, len(names))
	for i, n := range names {
		v, ok := s.GetRec(n)
		if !ok {
			panic("paramset: GetDataVec: unknown name " + n)
		}
		out[i] = v
	}
	return out
}

// Update overwrites the values for names with values, which must be the
// same length. Names not already present are added.
func (s *Set) Update(names []string, values []float64) {
	if len(names) != len(values) {
		panic("paramset: Update: names and values length mismatch")
	}
	for i, n := range names {
		c := Canonical(n)
		if _, ok := s.byKey[c]; !ok {
			s.order = append(s.order, c)
		}
		s.byKey[c] = values[i]
	}
}

// GetKeys returns the set's names in their original insertion order.
func (s *Set) GetKeys() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
