// Package targeting resolves host selectors such as "@slave,!slave2" to the
// hosts of an inventory.
//
// A selector is one of:
//
//	@all or *    every host
//	@role        the hosts playing role
//	glob         hosts whose ID or hostname matches, e.g. slave*
//	~regex       hosts whose ID or hostname matches the expression
//	name         the host with that ID or hostname
//
// Prefixing a selector with ! excludes the hosts it matches.
package targeting

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet"
)

// Kind is the kind of a selector.
type Kind string

const (
	KindAll   Kind = "all"   // @all or *
	KindRole  Kind = "role"  // @role
	KindGlob  Kind = "glob"  // slave*
	KindRegex Kind = "regex" // ~^slave[0-9]+$
	KindName  Kind = "name"  // master.lan
)

// Selector matches hosts by role or by name.
type Selector struct {
	kind   Kind
	value  string
	re     *regexp.Regexp
	negate bool
}

// ParseSelector parses one selector.
func ParseSelector(s string) (*Selector, error) {
	raw := strings.TrimSpace(s)
	sel := &Selector{}
	if rest, ok := strings.CutPrefix(raw, "!"); ok {
		sel.negate = true
		raw = rest
	}
	if raw == "" {
		return nil, fmt.Errorf("empty selector %q", s)
	}

	switch {
	case raw == "@all" || raw == "*":
		sel.kind, sel.value = KindAll, "@all"
	case strings.HasPrefix(raw, "@"):
		role, err := fleet.NewRole(raw[1:])
		if err != nil {
			return nil, err
		}
		sel.kind, sel.value = KindRole, role.String()
	case strings.HasPrefix(raw, "~"):
		re, err := regexp.Compile(raw[1:])
		if err != nil {
			return nil, fmt.Errorf("selector %q: %w", raw, err)
		}
		sel.kind, sel.value, sel.re = KindRegex, raw, re
	case strings.ContainsAny(raw, "*?["):
		if _, err := path.Match(raw, ""); err != nil {
			return nil, fmt.Errorf("selector %q: %w", raw, err)
		}
		sel.kind, sel.value = KindGlob, raw
	default:
		if _, err := fleet.NewHostID(raw); err != nil {
			return nil, err
		}
		sel.kind, sel.value = KindName, raw
	}
	return sel, nil
}

// Kind returns the selector kind.
func (s *Selector) Kind() Kind {
	return s.kind
}

// Negated reports whether the selector excludes the hosts it matches.
func (s *Selector) Negated() bool {
	return s.negate
}

// Matches reports whether host is matched, ignoring negation.
func (s *Selector) Matches(host *fleet.Host) bool {
	switch s.kind {
	case KindAll:
		return true
	case KindRole:
		return host.HasRole(fleet.Role(s.value))
	}
	for _, name := range []string{host.ID().String(), host.SSH().Hostname} {
		if name != "" && s.matchName(name) {
			return true
		}
	}
	return false
}

func (s *Selector) matchName(name string) bool {
	switch s.kind {
	case KindRegex:
		return s.re.MatchString(name)
	case KindGlob:
		ok, _ := path.Match(s.value, name)
		return ok
	default:
		return s.value == name
	}
}

func (s *Selector) String() string {
	if s.kind == KindRole {
		return s.prefix() + "@" + s.value
	}
	return s.prefix() + s.value
}

func (s *Selector) prefix() string {
	if s.negate {
		return "!"
	}
	return ""
}

// Target selects the hosts matching any include and no exclude. Without
// includes every host is included.
type Target struct {
	includes []*Selector
	excludes []*Selector
}

// NewTarget parses each selector.
func NewTarget(selectors ...string) (*Target, error) {
	t := &Target{}
	for _, raw := range selectors {
		s, err := ParseSelector(raw)
		if err != nil {
			return nil, err
		}
		if s.Negated() {
			t.excludes = append(t.excludes, s)
		} else {
			t.includes = append(t.includes, s)
		}
	}
	return t, nil
}

// ParseTarget parses a comma separated selector list. Blank entries are
// ignored.
func ParseTarget(expr string) (*Target, error) {
	var selectors []string
	for _, part := range strings.Split(expr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			selectors = append(selectors, part)
		}
	}
	return NewTarget(selectors...)
}

// Select returns the matching hosts in inventory order.
func (t *Target) Select(inv *fleet.Inventory) []*fleet.Host {
	var out []*fleet.Host
	for _, h := range inv.AllHosts() {
		if t.matches(h) {
			out = append(out, h)
		}
	}
	return out
}

func (t *Target) matches(host *fleet.Host) bool {
	for _, s := range t.excludes {
		if s.Matches(host) {
			return false
		}
	}
	if len(t.includes) == 0 {
		return true
	}
	for _, s := range t.includes {
		if s.Matches(host) {
			return true
		}
	}
	return false
}

func (t *Target) String() string {
	if len(t.includes) == 0 && len(t.excludes) == 0 {
		return "@all"
	}
	parts := make([]string, 0, len(t.includes)+len(t.excludes))
	for _, s := range t.includes {
		parts = append(parts, s.String())
	}
	for _, s := range t.excludes {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, ",")
}
