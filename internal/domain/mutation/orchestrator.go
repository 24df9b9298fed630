// Package mutation applies assignments to managed files with a numbered
// backup taken before every change, and reverts the most recent change.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/clusterprep/internal/domain/ledger"
	"github.com/felixgeelhaar/clusterprep/internal/ports"
)

// ErrBackupFailed is returned when the pre-mutation backup could not be
// taken. The managed file is not written in that case.
var ErrBackupFailed = errors.New("backup failed")

// Policy decides what happens to the live file when its backup is taken.
type Policy string

const (
	// PolicyMerge copies the live file into the backup and merges the
	// assignments into its current content.
	PolicyMerge Policy = "merge"
	// PolicyClean moves the live file into the backup and applies the
	// assignments to an empty file.
	PolicyClean Policy = "clean"
)

// ParsePolicy parses a policy name. The empty string selects merge.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyMerge, nil
	case PolicyMerge, PolicyClean:
		return p, nil
	default:
		return "", fmt.Errorf("unknown backup policy %q (want %q or %q)", s, PolicyMerge, PolicyClean)
	}
}

// PolicyFor maps a "clean" flag to a policy.
func PolicyFor(clean bool) Policy {
	if clean {
		return PolicyClean
	}
	return PolicyMerge
}

// Request describes one mutation computed by Plan.
type Request struct {
	// File is the managed file path.
	File string
	// Current is the file content; ignored when Exists is false.
	Current []byte
	// Exists reports whether the file is present.
	Exists bool
	// Siblings are the names returned by ListSiblingBackups.
	Siblings []string
	// Assignments are the values to upsert.
	Assignments Assignments
	// Merger handles the file shape.
	Merger Merger
	// Policy is merge (default) or clean.
	Policy Policy
}

// BackupDirective tells the collaborator how to persist the backup.
type BackupDirective struct {
	Backup ledger.Backup
	// Move is set for the clean policy: the live file is renamed instead
	// of copied.
	Move bool
}

// Plan is the pure outcome of a mutation: what to back up and what to write.
type Plan struct {
	File string
	// Create is set when the file is absent and must be created empty
	// before the backup is taken.
	Create   bool
	Backup   BackupDirective
	Content  string
	Warnings []string
}

// Result reports a completed mutation.
type Result struct {
	File        string
	Created     bool
	BackupTaken bool
	Backup      ledger.Backup
	Content     string
	Warnings    []string
}

// RevertResult reports a revert.
type RevertResult struct {
	File     string
	Reverted bool
	// Backup is the backup that was restored, when Reverted.
	Backup ledger.Backup
}

// Orchestrator runs mutations against a RemoteFS.
type Orchestrator struct {
	fs     ports.RemoteFS
	ledger *ledger.Ledger
	logger ports.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLedger sets the backup ledger (default: numeric ordering).
func WithLedger(l *ledger.Ledger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.ledger = l
		}
	}
}

// WithLogger sets the logger (default: discard).
func WithLogger(l ports.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewOrchestrator creates an Orchestrator over fs.
func NewOrchestrator(fs ports.RemoteFS, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fs:     fs,
		ledger: ledger.New(ledger.OrderingNumeric),
		logger: ports.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Ledger returns the ledger in use.
func (o *Orchestrator) Ledger() *ledger.Ledger {
	return o.ledger
}

// Plan computes a mutation without touching any file.
func (o *Orchestrator) Plan(req Request) (*Plan, error) {
	if req.Merger == nil {
		return nil, errors.New("no merger for " + req.File)
	}
	assignments, err := check(req.Assignments, req.Merger)
	if err != nil {
		return nil, err
	}
	policy := req.Policy
	if policy == "" {
		policy = PolicyMerge
	}

	base := ""
	if req.Exists {
		base = string(req.Current)
	}
	if policy == PolicyClean {
		base = ""
	}

	merged, err := req.Merger.Merge(base, assignments)
	if err != nil {
		return nil, fmt.Errorf("merge %s: %w", req.File, err)
	}

	id := o.ledger.Next(req.File, req.Siblings)
	return &Plan{
		File:   req.File,
		Create: !req.Exists,
		Backup: BackupDirective{
			Backup: ledger.Backup{File: req.File, ID: id},
			Move:   policy == PolicyClean,
		},
		Content:  merged.Content,
		Warnings: merged.Warnings,
	}, nil
}

// Mutate backs up file and writes the merged content. A missing file is
// created empty first, so it gets a backup like any other. With no
// assignments nothing is touched.
func (o *Orchestrator) Mutate(ctx context.Context, file string, assignments Assignments, m Merger, policy Policy) (*Result, error) {
	if len(assignments) == 0 {
		return &Result{File: file}, nil
	}
	if m == nil {
		return nil, errors.New("no merger for " + file)
	}
	assignments, err := check(assignments, m)
	if err != nil {
		return nil, err
	}

	current, exists, err := o.fs.ReadFile(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}

	siblings, err := o.fs.ListSiblingBackups(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("%w: list backups of %s: %v", ErrBackupFailed, file, err)
	}

	plan, err := o.Plan(Request{
		File:        file,
		Current:     current,
		Exists:      exists,
		Siblings:    siblings,
		Assignments: assignments,
		Merger:      m,
		Policy:      policy,
	})
	if err != nil {
		return nil, err
	}

	log := o.logger.With(ports.F("file", file), ports.F("merger", m.Name()))
	for _, w := range plan.Warnings {
		log.Warn(ctx, w)
	}

	if plan.Create {
		if err := o.fs.WriteFile(ctx, file, nil); err != nil {
			return nil, fmt.Errorf("create %s: %w", file, err)
		}
	}

	if err := o.takeBackup(ctx, plan.Backup); err != nil {
		return nil, err
	}
	log.Info(ctx, "backup taken",
		ports.F("backup", plan.Backup.Backup.Name()),
		ports.F("moved", plan.Backup.Move))

	if err := o.fs.WriteFile(ctx, file, []byte(plan.Content)); err != nil {
		return nil, fmt.Errorf("write %s (backup %s holds the previous content): %w", file, plan.Backup.Backup.Name(), err)
	}
	log.Debug(ctx, "file updated", ports.F("keys", len(assignments.Keys())))

	return &Result{
		File:        file,
		Created:     plan.Create,
		BackupTaken: true,
		Backup:      plan.Backup.Backup,
		Content:     plan.Content,
		Warnings:    plan.Warnings,
	}, nil
}

// Replace backs up file and overwrites it with content. It is used for
// files rendered whole, which Revert then undoes like any merge.
func (o *Orchestrator) Replace(ctx context.Context, file string, content []byte) (*Result, error) {
	current, exists, err := o.fs.ReadFile(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}

	siblings, err := o.fs.ListSiblingBackups(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("%w: list backups of %s: %v", ErrBackupFailed, file, err)
	}

	log := o.logger.With(ports.F("file", file))
	b := ledger.Backup{File: file, ID: o.ledger.Next(file, siblings)}

	if !exists {
		if err := o.fs.WriteFile(ctx, file, nil); err != nil {
			return nil, fmt.Errorf("create %s: %w", file, err)
		}
	}
	if err := o.takeBackup(ctx, BackupDirective{Backup: b}); err != nil {
		return nil, err
	}
	log.Info(ctx, "backup taken", ports.F("backup", b.Name()), ports.F("moved", false))

	if err := o.fs.WriteFile(ctx, file, content); err != nil {
		return nil, fmt.Errorf("write %s (backup %s holds the previous content): %w", file, b.Name(), err)
	}
	log.Debug(ctx, "file replaced", ports.F("bytes", len(content)), ports.F("previous_bytes", len(current)))

	return &Result{
		File:        file,
		Created:     !exists,
		BackupTaken: true,
		Backup:      b,
		Content:     string(content),
	}, nil
}

func (o *Orchestrator) takeBackup(ctx context.Context, d BackupDirective) error {
	var err error
	if d.Move {
		err = o.fs.Rename(ctx, d.Backup.File, d.Backup.Path())
	} else {
		err = o.fs.CopyFile(ctx, d.Backup.File, d.Backup.Path())
	}
	if err != nil {
		return fmt.Errorf("%w: %s -> %s: %v", ErrBackupFailed, d.Backup.File, d.Backup.Path(), err)
	}
	return nil
}

// Revert restores the most recent backup of file over it and consumes
// that backup. Without backups it reports Reverted=false and does nothing.
func (o *Orchestrator) Revert(ctx context.Context, file string) (*RevertResult, error) {
	siblings, err := o.fs.ListSiblingBackups(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("list backups of %s: %w", file, err)
	}

	log := o.logger.With(ports.F("file", file))

	id, ok := o.ledger.Latest(file, siblings)
	if !ok {
		log.Info(ctx, "nothing to revert")
		return &RevertResult{File: file}, nil
	}

	b := ledger.Backup{File: file, ID: id}
	if err := o.fs.Rename(ctx, b.Path(), file); err != nil {
		return nil, fmt.Errorf("restore %s from %s: %w", file, b.Name(), err)
	}
	log.Info(ctx, "backup restored", ports.F("backup", b.Name()))

	return &RevertResult{File: file, Reverted: true, Backup: b}, nil
}

// LatestBackup returns the backup Revert would restore.
func (o *Orchestrator) LatestBackup(ctx context.Context, file string) (ledger.Backup, bool, error) {
	siblings, err := o.fs.ListSiblingBackups(ctx, file)
	if err != nil {
		return ledger.Backup{}, false, fmt.Errorf("list backups of %s: %w", file, err)
	}
	id, ok := o.ledger.Latest(file, siblings)
	if !ok {
		return ledger.Backup{}, false, nil
	}
	return ledger.Backup{File: file, ID: id}, true, nil
}

// Backups lists the backups of file in ascending order.
func (o *Orchestrator) Backups(ctx context.Context, file string) ([]ledger.Backup, error) {
	siblings, err := o.fs.ListSiblingBackups(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("list backups of %s: %w", file, err)
	}
	return o.ledger.List(file, siblings), nil
}

// Diff reads file and reports how assignments would change it.
func (o *Orchestrator) Diff(ctx context.Context, file string, assignments Assignments, m Merger) ([]Change, error) {
	current, _, err := o.fs.ReadFile(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	return Diff(string(current), assignments, m)
}
