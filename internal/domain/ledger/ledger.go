// Package ledger tracks the numbered backups kept alongside a managed file.
//
// A backup of "core-site.xml" is a sibling named "core-site.xml.bak<N>" where
// N is a non-negative integer. The ledger holds no state of its own: every
// query is answered from the directory listing the caller passes in.
package ledger

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
)

// Suffix separates the managed file name from the backup sequence number.
const Suffix = ".bak"

// NoBackup is the sequence number reported when a file has no backups.
const NoBackup = -1

// ErrInvalidBackupName is returned when a name is not a backup of the file.
var ErrInvalidBackupName = errors.New("invalid backup name")

// Ordering selects how the most recent backup is located in a listing.
type Ordering string

const (
	// OrderingNumeric picks the backup with the highest sequence number.
	OrderingNumeric Ordering = "numeric"
	// OrderingLexicographic sorts the raw names and picks the last one.
	// This reproduces the "ls | grep | tail -n 1" lookup of the original
	// shell tooling, where "x.bak9" sorts after "x.bak10".
	OrderingLexicographic Ordering = "lexicographic"
)

// IsValid reports whether the ordering is known.
func (o Ordering) IsValid() bool {
	switch o {
	case OrderingNumeric, OrderingLexicographic:
		return true
	default:
		return false
	}
}

// ParseOrdering parses an ordering name. The empty string selects numeric.
func ParseOrdering(s string) (Ordering, error) {
	if s == "" {
		return OrderingNumeric, nil
	}
	o := Ordering(strings.ToLower(strings.TrimSpace(s)))
	if !o.IsValid() {
		return "", fmt.Errorf("unknown backup ordering %q (want %q or %q)", s, OrderingNumeric, OrderingLexicographic)
	}
	return o, nil
}

// Backup identifies one snapshot of a managed file.
type Backup struct {
	// File is the path of the managed file.
	File string
	// ID is the sequence number.
	ID int
}

// Name returns the base name of the backup, e.g. "hosts.bak3".
func (b Backup) Name() string {
	return BackupName(path.Base(b.File), b.ID)
}

// Path returns the backup path next to the managed file.
func (b Backup) Path() string {
	return BackupPath(b.File, b.ID)
}

// BackupName returns the backup name for a file base name and sequence number.
func BackupName(base string, id int) string {
	return base + Suffix + strconv.Itoa(id)
}

// BackupPath returns the sibling backup path for file.
func BackupPath(file string, id int) string {
	return path.Join(path.Dir(file), BackupName(path.Base(file), id))
}

// ParseBackupID extracts the sequence number from name, which must be
// exactly base + ".bak" + digits.
func ParseBackupID(base, name string) (int, error) {
	prefix := base + Suffix
	if !strings.HasPrefix(name, prefix) {
		return 0, fmt.Errorf("%w: %q is not a backup of %q", ErrInvalidBackupName, name, base)
	}
	digits := name[len(prefix):]
	if digits == "" {
		return 0, fmt.Errorf("%w: %q has no sequence number", ErrInvalidBackupName, name)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: %q has a non-numeric suffix", ErrInvalidBackupName, name)
		}
	}
	id, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidBackupName, name, err)
	}
	return id, nil
}

// Ledger answers backup sequence questions for a managed file.
type Ledger struct {
	ordering Ordering
}

// New creates a ledger. An invalid ordering falls back to numeric.
func New(ordering Ordering) *Ledger {
	if !ordering.IsValid() {
		ordering = OrderingNumeric
	}
	return &Ledger{ordering: ordering}
}

// Ordering returns the lookup ordering in use.
func (l *Ledger) Ordering() Ordering {
	return l.ordering
}

// Latest returns the sequence number of the most recent backup of file
// among names. Names that are not backups of file are ignored. ok is false
// when no backup exists.
func (l *Ledger) Latest(file string, names []string) (id int, ok bool) {
	base := path.Base(file)

	if l.ordering == OrderingLexicographic {
		matching := make([]string, 0, len(names))
		for _, name := range names {
			if _, err := ParseBackupID(base, name); err == nil {
				matching = append(matching, name)
			}
		}
		if len(matching) == 0 {
			return NoBackup, false
		}
		sort.Strings(matching)
		id, _ = ParseBackupID(base, matching[len(matching)-1])
		return id, true
	}

	id = NoBackup
	for _, name := range names {
		n, err := ParseBackupID(base, name)
		if err != nil {
			continue
		}
		if n > id {
			id = n
		}
	}
	return id, id != NoBackup
}

// Next returns the sequence number the next backup of file must use:
// one past the latest backup, or 0 when there is none.
func (l *Ledger) Next(file string, names []string) int {
	id, ok := l.Latest(file, names)
	if !ok {
		return 0
	}
	return id + 1
}

// List returns every backup of file found in names, in ascending order.
func (l *Ledger) List(file string, names []string) []Backup {
	base := path.Base(file)
	backups := make([]Backup, 0, len(names))
	for _, name := range names {
		id, err := ParseBackupID(base, name)
		if err != nil {
			continue
		}
		backups = append(backups, Backup{File: file, ID: id})
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].ID < backups[j].ID })
	return backups
}
