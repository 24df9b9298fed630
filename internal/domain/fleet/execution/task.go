package execution

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet"
	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet/transport"
	"github.com/felixgeelhaar/clusterprep/internal/ports"
)

// Scope decides which hosts a task runs on.
type Scope struct {
	// Role restricts the task to hosts playing it; empty means every host.
	Role fleet.Role
	// Exclusive runs the task only on the first targeted host holding Role.
	Exclusive bool
}

// AllHosts runs on every targeted host.
func AllHosts() Scope {
	return Scope{}
}

// OnRole runs on every targeted host playing role.
func OnRole(role fleet.Role) Scope {
	return Scope{Role: role}
}

// ExclusiveTo runs on the first targeted host playing role, once per run.
func ExclusiveTo(role fleet.Role) Scope {
	return Scope{Role: role, Exclusive: true}
}

// String describes the scope.
func (s Scope) String() string {
	switch {
	case s.Role == "":
		return "all"
	case s.Exclusive:
		return "first @" + s.Role.String()
	default:
		return "@" + s.Role.String()
	}
}

// HostContext is what a task sees of the host it runs on.
type HostContext struct {
	Host   *fleet.Host
	Conn   transport.Connection
	FS     ports.RemoteFS
	Logger ports.Logger
	// RunID identifies the fleet run.
	RunID string
	// Sudo is set when commands must run as root.
	Sudo bool
}

// Command wraps cmd with sudo when the run asks for it.
func (hc *HostContext) Command(cmd string) string {
	if hc.Sudo {
		return transport.Sudo(cmd)
	}
	return cmd
}

// Exec runs cmd and turns a non-zero exit into an error. It returns the
// combined output.
func (hc *HostContext) Exec(ctx context.Context, cmd string) (string, error) {
	res, err := hc.Conn.Run(ctx, hc.Command(cmd))
	if err != nil {
		return "", err
	}
	if err := res.Err(); err != nil {
		return string(res.CombinedOutput()), err
	}
	return string(res.CombinedOutput()), nil
}

// Task is one unit of work run on each host in scope.
type Task interface {
	ID() string
	Description() string
	Scope() Scope
	// Critical tasks stop the remaining tasks on their host when they fail.
	Critical() bool
	// Run performs the task and returns its output.
	Run(ctx context.Context, hc *HostContext) (string, error)
}

// Checker is implemented by tasks that can tell whether they are already
// satisfied on a host. Satisfied tasks are not run.
type Checker interface {
	Check(ctx context.Context, hc *HostContext) (StepStatus, error)
}

// Planner is implemented by tasks that can describe, without side effects,
// what Run would do. It drives dry runs.
type Planner interface {
	Plan(ctx context.Context, hc *HostContext) (string, error)
}

// TaskOption configures the built-in tasks.
type TaskOption func(*baseTask)

// WithDescription sets the task description.
func WithDescription(desc string) TaskOption {
	return func(t *baseTask) {
		t.description = desc
	}
}

// WithScope sets the task scope (default: all hosts).
func WithScope(scope Scope) TaskOption {
	return func(t *baseTask) {
		t.scope = scope
	}
}

// WithCritical marks the task critical.
func WithCritical() TaskOption {
	return func(t *baseTask) {
		t.critical = true
	}
}

type baseTask struct {
	id          string
	description string
	scope       Scope
	critical    bool
}

func newBaseTask(id string, opts []TaskOption) baseTask {
	b := baseTask{id: id, description: id}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (t *baseTask) ID() string          { return t.id }
func (t *baseTask) Description() string { return t.description }
func (t *baseTask) Scope() Scope        { return t.scope }
func (t *baseTask) Critical() bool      { return t.critical }

// CommandTask runs a shell command, optionally guarded by a check command
// whose success means the task is already satisfied.
type CommandTask struct {
	baseTask
	command  string
	checkCmd string
}

// NewCommandTask creates a command task.
func NewCommandTask(id, command string, opts ...TaskOption) *CommandTask {
	return &CommandTask{baseTask: newBaseTask(id, opts), command: command}
}

// WithCheck sets the check command.
func (t *CommandTask) WithCheck(cmd string) *CommandTask {
	t.checkCmd = cmd
	return t
}

// Command returns the command to execute.
func (t *CommandTask) Command() string {
	return t.command
}

// CheckCommand returns the check command.
func (t *CommandTask) CheckCommand() string {
	return t.checkCmd
}

// Check runs the check command on the host.
func (t *CommandTask) Check(ctx context.Context, hc *HostContext) (StepStatus, error) {
	if t.checkCmd == "" {
		return StepStatusNeeds, nil
	}

	result, err := hc.Conn.Run(ctx, hc.Command(t.checkCmd))
	if err != nil {
		return StepStatusUnknown, fmt.Errorf("check command failed: %w", err)
	}

	if result.Success() {
		return StepStatusSatisfied, nil
	}
	return StepStatusNeeds, nil
}

// Run runs the command on the host.
func (t *CommandTask) Run(ctx context.Context, hc *HostContext) (string, error) {
	out, err := hc.Exec(ctx, t.command)
	if err != nil {
		return out, fmt.Errorf("%s: %w", t.id, err)
	}
	return out, nil
}

// Plan describes the command.
func (t *CommandTask) Plan(_ context.Context, _ *HostContext) (string, error) {
	return "would run: " + t.command, nil
}

// FuncTask runs a Go function against the host context.
type FuncTask struct {
	baseTask
	run  func(ctx context.Context, hc *HostContext) (string, error)
	plan func(ctx context.Context, hc *HostContext) (string, error)
}

// NewFuncTask creates a task from a function.
func NewFuncTask(id string, run func(ctx context.Context, hc *HostContext) (string, error), opts ...TaskOption) *FuncTask {
	return &FuncTask{baseTask: newBaseTask(id, opts), run: run}
}

// WithPlan sets the dry-run function.
func (t *FuncTask) WithPlan(plan func(ctx context.Context, hc *HostContext) (string, error)) *FuncTask {
	t.plan = plan
	return t
}

// Run calls the task function.
func (t *FuncTask) Run(ctx context.Context, hc *HostContext) (string, error) {
	return t.run(ctx, hc)
}

// Plan calls the dry-run function, if any.
func (t *FuncTask) Plan(ctx context.Context, hc *HostContext) (string, error) {
	if t.plan == nil {
		return "would run: " + t.description, nil
	}
	return t.plan(ctx, hc)
}

var (
	_ Task    = (*CommandTask)(nil)
	_ Checker = (*CommandTask)(nil)
	_ Planner = (*CommandTask)(nil)
	_ Task    = (*FuncTask)(nil)
	_ Planner = (*FuncTask)(nil)
)
