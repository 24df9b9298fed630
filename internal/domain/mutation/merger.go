package mutation

import (
	"fmt"

	"github.com/felixgeelhaar/clusterprep/internal/domain/lines"
	"github.com/felixgeelhaar/clusterprep/internal/domain/property"
)

// Merged is the output of a Merger.
type Merged struct {
	Content string
	// Warnings are non-fatal problems found in the input.
	Warnings []string
}

// Merger applies assignments to one file shape.
type Merger interface {
	// Name identifies the file shape, e.g. "property" or "lines:export".
	Name() string
	// Merge returns content with assignments applied.
	Merge(content string, assignments Assignments) (Merged, error)
	// Lookup returns the value key currently holds in content.
	Lookup(content, key string) (string, bool)
	// Check rejects assignments the file shape cannot hold.
	Check(assignments Assignments) error
}

// check normalizes assignments and validates them for m.
func check(assignments Assignments, m Merger) (Assignments, error) {
	assignments = assignments.Normalize()
	if err := assignments.Validate(); err != nil {
		return nil, err
	}
	if err := m.Check(assignments); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAssignment, err)
	}
	return assignments, nil
}

// PropertyMerger upserts records of XML property-list documents.
type PropertyMerger struct{}

// NewPropertyMerger creates a PropertyMerger.
func NewPropertyMerger() PropertyMerger {
	return PropertyMerger{}
}

// Name returns "property".
func (PropertyMerger) Name() string {
	return "property"
}

// Merge applies assignments with property.Apply.
func (PropertyMerger) Merge(content string, assignments Assignments) (Merged, error) {
	props := make([]property.Property, 0, len(assignments))
	for _, a := range assignments {
		props = append(props, property.Property{Name: a.Key, Value: a.Value})
	}

	res := property.Apply(content, props)

	var warnings []string
	if res.Recovered {
		warnings = append(warnings, fmt.Sprintf("document did not parse, starting from an empty <%s>: %v", property.RootElement, res.ParseError))
	}
	for _, s := range res.Skipped {
		if s.Name != "" {
			warnings = append(warnings, fmt.Sprintf("record %d (%s) left as-is: %s", s.Position, s.Name, s.Reason))
			continue
		}
		warnings = append(warnings, fmt.Sprintf("record %d left as-is: %s", s.Position, s.Reason))
	}
	return Merged{Content: res.Content, Warnings: warnings}, nil
}

// Lookup returns the value of the first record named key.
func (PropertyMerger) Lookup(content, key string) (string, bool) {
	return property.Lookup(content, key)
}

// Check accepts any assignment; values may span lines in XML.
func (PropertyMerger) Check(Assignments) error {
	return nil
}

// LineMerger upserts key-anchored lines of one kind.
type LineMerger struct {
	kind lines.Kind
}

// NewLineMerger creates a LineMerger for kind.
func NewLineMerger(kind lines.Kind) LineMerger {
	return LineMerger{kind: kind}
}

// Kind returns the line kind.
func (m LineMerger) Kind() lines.Kind {
	return m.kind
}

// Name returns "lines:<kind>".
func (m LineMerger) Name() string {
	return "lines:" + string(m.kind)
}

// Merge applies each assignment as a separate single-key upsert.
func (m LineMerger) Merge(content string, assignments Assignments) (Merged, error) {
	pairs := make([]lines.Pair, 0, len(assignments))
	for _, a := range assignments {
		pairs = append(pairs, lines.Pair{Key: a.Key, Value: a.Value})
	}
	out, err := lines.ApplyAll(content, pairs, m.kind)
	if err != nil {
		return Merged{}, err
	}
	return Merged{Content: out}, nil
}

// Check rejects keys and values holding line breaks.
func (m LineMerger) Check(assignments Assignments) error {
	for _, a := range assignments {
		if err := lines.Check(a.Key, a.Value); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the decoded value on the line anchored on key.
func (m LineMerger) Lookup(content, key string) (string, bool) {
	return lines.Lookup(content, key, m.kind)
}

var (
	_ Merger = PropertyMerger{}
	_ Merger = LineMerger{}
)
