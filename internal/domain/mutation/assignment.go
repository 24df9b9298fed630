package mutation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrOddAssignments is returned when a flat key/value list has a dangling key.
var ErrOddAssignments = errors.New("assignments must be given as key/value pairs")

// ErrInvalidAssignment is returned for an assignment with an empty key.
var ErrInvalidAssignment = errors.New("invalid assignment")

// Assignment sets Key to Value in a managed file.
type Assignment struct {
	Key   string `yaml:"key" toml:"key" json:"key"`
	Value string `yaml:"value" toml:"value" json:"value"`
}

// Assignments is an ordered set of assignments. When a key repeats, the
// last value wins.
type Assignments []Assignment

// ParsePairs turns "k1 v1 k2 v2 ..." into assignments.
func ParsePairs(args []string) (Assignments, error) {
	if len(args)%2 != 0 {
		return nil, fmt.Errorf("%w: got %d values, last key %q has no value", ErrOddAssignments, len(args), args[len(args)-1])
	}
	out := make(Assignments, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		out = append(out, Assignment{Key: args[i], Value: args[i+1]})
	}
	return out, out.Validate()
}

// Keys returns assigned keys, first occurrence order, without duplicates.
func (a Assignments) Keys() []string {
	seen := make(map[string]bool, len(a))
	keys := make([]string, 0, len(a))
	for _, as := range a {
		if seen[as.Key] {
			continue
		}
		seen[as.Key] = true
		keys = append(keys, as.Key)
	}
	return keys
}

// Collapse returns one assignment per key, in first occurrence order,
// carrying the last value given for that key.
func (a Assignments) Collapse() Assignments {
	last := make(map[string]string, len(a))
	for _, as := range a {
		last[as.Key] = as.Value
	}
	keys := a.Keys()
	out := make(Assignments, 0, len(keys))
	for _, k := range keys {
		out = append(out, Assignment{Key: k, Value: last[k]})
	}
	return out
}

// Normalize returns a copy with surrounding whitespace trimmed from keys,
// the form every merger matches keys in.
func (a Assignments) Normalize() Assignments {
	if a == nil {
		return nil
	}
	out := make(Assignments, len(a))
	for i, as := range a {
		out[i] = Assignment{Key: strings.TrimSpace(as.Key), Value: as.Value}
	}
	return out
}

// Validate rejects assignments with blank keys.
func (a Assignments) Validate() error {
	for i, as := range a {
		if strings.TrimSpace(as.Key) == "" {
			return fmt.Errorf("%w: assignment %d has an empty key", ErrInvalidAssignment, i)
		}
	}
	return nil
}
