package lines

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind selects how a key is anchored in a file and how its line is rendered.
type Kind string

const (
	// KindShellExport matches "export KEY=..." and renders "export KEY=VALUE".
	KindShellExport Kind = "export"
	// KindHostEntry matches a line whose first token is the host name and
	// renders "HOSTNAME IP".
	KindHostEntry Kind = "hosts"
	// KindIniAssign matches "KEY=..." or "KEY = ..." and renders "KEY=VALUE".
	KindIniAssign Kind = "ini"
	// KindExactLine matches a line equal to the key and renders the key.
	// The value is ignored.
	KindExactLine Kind = "exact"
)

// Kinds lists every supported kind.
func Kinds() []Kind {
	return []Kind{KindShellExport, KindHostEntry, KindIniAssign, KindExactLine}
}

// ParseKind parses a kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown line kind %q", s)
}

// anchor returns the pattern that identifies the line owning key.
func (k Kind) anchor(key string) (*regexp.Regexp, error) {
	quoted := regexp.QuoteMeta(key)
	switch k {
	case KindShellExport:
		return regexp.Compile(`^\s*export\s+` + quoted + `=`)
	case KindHostEntry:
		return regexp.Compile(`^` + quoted + `(\s|$)`)
	case KindIniAssign:
		return regexp.Compile(`^` + quoted + `\s*=`)
	case KindExactLine:
		return regexp.Compile(`^` + quoted + `$`)
	default:
		return nil, fmt.Errorf("unknown line kind %q", string(k))
	}
}

// Render returns the canonical line for key and value.
func (k Kind) Render(key, value string) string {
	switch k {
	case KindShellExport:
		return "export " + key + "=" + value
	case KindHostEntry:
		return key + " " + value
	case KindIniAssign:
		return key + "=" + value
	default:
		return key
	}
}
