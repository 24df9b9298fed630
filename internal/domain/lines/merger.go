// Package lines upserts key-anchored lines in flat, line-oriented files:
// shell environment files, /etc/hosts, KEY=VALUE defaults files and plain
// configuration lists.
package lines

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// ErrEmptyKey is returned when an assignment has no key.
var ErrEmptyKey = errors.New("line key cannot be empty")

// ErrMultiline is returned when a key or value would span several lines.
var ErrMultiline = errors.New("line key and value cannot contain line breaks")

// Pair is one key/value assignment.
type Pair struct {
	Key   string
	Value string
}

// Split breaks content into lines. A trailing newline does not produce an
// empty final line.
func Split(content string) []string {
	if content == "" {
		return nil
	}
	content = strings.TrimSuffix(content, "\n")
	return strings.Split(content, "\n")
}

// Join is the inverse of Split. Non-empty output always ends with a newline.
func Join(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// Check validates one pair. A line break in either half would let the
// rendering inject extra lines into the file.
func Check(key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if strings.ContainsAny(key, "\r\n") {
		return fmt.Errorf("%w: key %q", ErrMultiline, key)
	}
	if strings.ContainsAny(value, "\r\n") {
		return fmt.Errorf("%w: value of %q", ErrMultiline, key)
	}
	return nil
}

// Apply upserts a single key. The first line anchored on key is replaced by
// the canonical rendering at the same position; when no line matches, the
// rendering is appended. The input slice is not modified.
func Apply(in []string, key, value string, kind Kind) ([]string, error) {
	if err := Check(key, value); err != nil {
		return nil, err
	}
	re, err := kind.anchor(key)
	if err != nil {
		return nil, err
	}

	out := make([]string, len(in), len(in)+1)
	copy(out, in)

	line := kind.Render(key, value)
	for i, l := range out {
		if re.MatchString(l) {
			out[i] = line
			return out, nil
		}
	}
	return append(out, line), nil
}

// ApplyAll runs Apply once per pair, in order, so every pair sees the lines
// produced by the pairs before it.
func ApplyAll(content string, pairs []Pair, kind Kind) (string, error) {
	current := Split(content)
	for _, p := range pairs {
		next, err := Apply(current, p.Key, p.Value, kind)
		if err != nil {
			return "", err
		}
		current = next
	}
	return Join(current), nil
}

// Find returns the index of the first line anchored on key, or -1.
func Find(in []string, key string, kind Kind) int {
	re, err := kind.anchor(key)
	if err != nil || key == "" {
		return -1
	}
	for i, l := range in {
		if re.MatchString(l) {
			return i
		}
	}
	return -1
}

// Lookup returns the value currently assigned to key in content, decoded
// for display: quotes are removed from export and ini values.
func Lookup(content, key string, kind Kind) (string, bool) {
	all := Split(content)
	i := Find(all, key, kind)
	if i < 0 {
		return "", false
	}
	line := all[i]

	switch kind {
	case KindShellExport:
		if strings.Contains(line, "$") {
			// godotenv would expand the reference against the process environment.
			return rawValue(line), true
		}
		if env, err := godotenv.Unmarshal(strings.TrimSpace(line)); err == nil {
			if v, ok := env[key]; ok {
				return v, true
			}
		}
		return rawValue(line), true
	case KindIniAssign:
		if cfg, err := ini.Load([]byte(line)); err == nil {
			if k, err := cfg.Section(ini.DefaultSection).GetKey(key); err == nil {
				return k.String(), true
			}
		}
		return rawValue(line), true
	case KindHostEntry:
		fields := strings.Fields(line)
		return strings.Join(fields[1:], " "), true
	default:
		return key, true
	}
}

// Current returns the line anchored on key, if any.
func Current(content, key string, kind Kind) (string, bool) {
	all := Split(content)
	i := Find(all, key, kind)
	if i < 0 {
		return "", false
	}
	return all[i], true
}

func rawValue(line string) string {
	_, v, _ := strings.Cut(line, "=")
	return strings.TrimSpace(v)
}
