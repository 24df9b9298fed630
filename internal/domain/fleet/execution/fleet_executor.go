package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet"
	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet/transport"
	"github.com/felixgeelhaar/clusterprep/internal/ports"
)

// Strategy defines how hosts are processed.
type Strategy string

const (
	// StrategyParallel processes all hosts in parallel.
	StrategyParallel Strategy = "parallel"
	// StrategyRolling processes hosts in batches.
	StrategyRolling Strategy = "rolling"
	// StrategyCanary processes a canary host first, then the rest.
	StrategyCanary Strategy = "canary"
)

// ParseStrategy parses a strategy name. The empty string means parallel.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyParallel:
		return StrategyParallel, nil
	case StrategyRolling, StrategyCanary:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown execution strategy %q (want parallel, rolling or canary)", s)
	}
}

// ExecutorConfig configures the fleet executor.
type ExecutorConfig struct {
	// Strategy is the execution strategy.
	Strategy Strategy
	// MaxParallel is the maximum concurrent host executions.
	MaxParallel int
	// BatchSize is the batch size for rolling strategy.
	BatchSize int
	// StopOnError skips hosts not yet started once a host has failed.
	StopOnError bool
	// Timeout is the per-host timeout.
	Timeout time.Duration
	// DryRun plans tasks instead of running them.
	DryRun bool
	// Sudo runs task commands and file access as root.
	Sudo bool
}

// DefaultExecutorConfig returns sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Strategy:    StrategyParallel,
		MaxParallel: 10,
		BatchSize:   5,
		StopOnError: false,
		Timeout:     5 * time.Minute,
		DryRun:      false,
	}
}

// ExecutorOption configures a FleetExecutor.
type ExecutorOption func(*FleetExecutor)

// WithExecutorLogger sets the logger (default: no-op).
func WithExecutorLogger(logger ports.Logger) ExecutorOption {
	return func(e *FleetExecutor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRunID fixes the run ID instead of generating one.
func WithRunID(id string) ExecutorOption {
	return func(e *FleetExecutor) {
		e.newRunID = func() string { return id }
	}
}

// WithFileSystem replaces the file access given to tasks. By default it
// goes through the host connection.
func WithFileSystem(fsFor func(host *fleet.Host, conn transport.Connection) ports.RemoteFS) ExecutorOption {
	return func(e *FleetExecutor) {
		if fsFor != nil {
			e.fsFor = fsFor
		}
	}
}

// FleetExecutor fans tasks out across hosts.
//
// Each host runs its tasks in order. A failing task is recorded and logged
// as a warning and the host carries on, unless the task is critical. One
// host failing, including failing to connect, never stops the others.
type FleetExecutor struct {
	pool     *transport.ConnectionPool
	config   ExecutorConfig
	logger   ports.Logger
	newRunID func() string
	fsFor    func(host *fleet.Host, conn transport.Connection) ports.RemoteFS
}

// NewFleetExecutor creates a new fleet executor.
func NewFleetExecutor(t transport.Transport, config ExecutorConfig, opts ...ExecutorOption) *FleetExecutor {
	if config.MaxParallel <= 0 {
		config.MaxParallel = 10
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 5
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Minute
	}
	e := &FleetExecutor{
		pool:     transport.NewConnectionPool(t),
		config:   config,
		logger:   ports.NewNopLogger(),
		newRunID: func() string { return uuid.NewString() },
	}
	e.fsFor = func(_ *fleet.Host, conn transport.Connection) ports.RemoteFS {
		return transport.NewHostFS(conn, transport.WithSudo(e.config.Sudo))
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the executor configuration.
func (e *FleetExecutor) Config() ExecutorConfig {
	return e.config
}

// Pool returns the connection pool shared by every run of the executor.
func (e *FleetExecutor) Pool() *transport.ConnectionPool {
	return e.pool
}

// Close closes the pooled connections.
func (e *FleetExecutor) Close() error {
	return e.pool.Close()
}

// run is the state shared by every host of one Execute call.
type run struct {
	id    string
	tasks []Task
	// owners maps an exclusive task ID to the host chosen to run it.
	owners map[string]fleet.HostID
}

func (r *run) inScope(task Task, host *fleet.Host) bool {
	scope := task.Scope()
	if scope.Role == "" {
		return true
	}
	if !scope.Exclusive {
		return host.HasRole(scope.Role)
	}
	owner, ok := r.owners[task.ID()]
	return ok && owner == host.ID()
}

// Execute runs tasks on hosts and returns one result per host, in host order.
func (e *FleetExecutor) Execute(ctx context.Context, hosts []*fleet.Host, tasks []Task) *FleetResult {
	r := &run{
		id:     e.newRunID(),
		tasks:  tasks,
		owners: exclusiveOwners(hosts, tasks),
	}

	result := NewFleetResult(r.id)
	logger := e.logger.With(ports.F("run", r.id))

	if len(hosts) == 0 {
		result.Complete()
		return result
	}

	for _, task := range tasks {
		if task.Scope().Exclusive {
			if _, ok := r.owners[task.ID()]; !ok {
				logger.Warn(ctx, "no targeted host holds the role, task runs nowhere",
					ports.F("task", task.ID()), ports.F("role", task.Scope().Role.String()))
			}
		}
	}

	logger.Info(ctx, "fleet run started",
		ports.F("hosts", len(hosts)), ports.F("tasks", len(tasks)),
		ports.F("strategy", string(e.config.Strategy)), ports.F("dry_run", e.config.DryRun))

	switch e.config.Strategy {
	case StrategyRolling:
		e.executeRolling(ctx, r, hosts, result)
	case StrategyCanary:
		e.executeCanary(ctx, r, hosts, result)
	default:
		e.executeParallel(ctx, r, hosts, result)
	}

	result.sortBy(hosts)
	result.Complete()

	s := result.Summary()
	logger.Info(ctx, "fleet run finished",
		ports.F("succeeded", s.SuccessfulHosts), ports.F("failed", s.FailedHosts),
		ports.F("skipped", s.SkippedHosts), ports.F("elapsed", s.TotalDuration.Round(time.Millisecond)))
	return result
}

// Owner returns the host an ExclusiveTo(role) task runs on when hosts are
// targeted: the first of them holding role.
func Owner(hosts []*fleet.Host, role fleet.Role) (*fleet.Host, bool) {
	for _, h := range hosts {
		if h.HasRole(role) {
			return h, true
		}
	}
	return nil, false
}

func exclusiveOwners(hosts []*fleet.Host, tasks []Task) map[string]fleet.HostID {
	owners := make(map[string]fleet.HostID)
	for _, task := range tasks {
		scope := task.Scope()
		if !scope.Exclusive {
			continue
		}
		if h, ok := Owner(hosts, scope.Role); ok {
			owners[task.ID()] = h.ID()
		}
	}
	return owners
}

func (e *FleetExecutor) executeParallel(ctx context.Context, r *run, hosts []*fleet.Host, result *FleetResult) {
	sem := make(chan struct{}, e.config.MaxParallel)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var stopFlag bool

	for _, host := range hosts {
		sem <- struct{}{}

		mu.Lock()
		if e.config.StopOnError && stopFlag {
			result.AddHostResult(skippedHost(host, r.id, nil))
			mu.Unlock()
			<-sem
			continue
		}
		mu.Unlock()

		wg.Add(1)

		go func(h *fleet.Host) {
			defer wg.Done()
			defer func() { <-sem }()

			hr := e.executeOnHost(ctx, r, h)

			mu.Lock()
			result.AddHostResult(hr)
			if hr.Status == HostStatusFailed && e.config.StopOnError {
				stopFlag = true
			}
			mu.Unlock()
		}(host)
	}

	wg.Wait()
}

func (e *FleetExecutor) executeRolling(ctx context.Context, r *run, hosts []*fleet.Host, result *FleetResult) {
	for i := 0; i < len(hosts); i += e.config.BatchSize {
		end := i + e.config.BatchSize
		if end > len(hosts) {
			end = len(hosts)
		}

		batchResult := NewFleetResult(r.id)
		e.executeParallel(ctx, r, hosts[i:end], batchResult)
		for _, hr := range batchResult.HostResults {
			result.AddHostResult(hr)
		}

		if e.config.StopOnError && batchResult.FailedHosts() > 0 {
			for _, h := range hosts[end:] {
				result.AddHostResult(skippedHost(h, r.id, nil))
			}
			return
		}
	}
}

func (e *FleetExecutor) executeCanary(ctx context.Context, r *run, hosts []*fleet.Host, result *FleetResult) {
	canary := hosts[0]
	canaryResult := e.executeOnHost(ctx, r, canary)
	result.AddHostResult(canaryResult)

	if canaryResult.Status == HostStatusFailed {
		err := fmt.Errorf("skipped due to canary failure on %s", canary.ID())
		for _, h := range hosts[1:] {
			result.AddHostResult(skippedHost(h, r.id, err))
		}
		return
	}

	if len(hosts) > 1 {
		e.executeRolling(ctx, r, hosts[1:], result)
	}
}

func skippedHost(host *fleet.Host, runID string, err error) *HostResult {
	return &HostResult{
		RunID:    runID,
		HostID:   host.ID(),
		Hostname: host.SSH().Hostname,
		Status:   HostStatusSkipped,
		Error:    err,
	}
}

func (e *FleetExecutor) executeOnHost(ctx context.Context, r *run, host *fleet.Host) *HostResult {
	hr := &HostResult{
		RunID:       r.id,
		HostID:      host.ID(),
		Hostname:    host.SSH().Hostname,
		Status:      HostStatusRunning,
		StartTime:   time.Now(),
		StepResults: make([]StepResult, 0, len(r.tasks)),
	}

	logger := e.logger.With(ports.F(ports.HostField, host.ID().String()), ports.F("run", r.id))

	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	conn, err := e.pool.Get(ctx, host)
	if err != nil {
		host.MarkError(err)
		logger.Warn(ctx, "connection failed, host skipped", ports.Err(err))
		hr.Status = HostStatusFailed
		hr.Error = fmt.Errorf("connection failed: %w", err)
		hr.EndTime = time.Now()
		return hr
	}

	hc := &HostContext{
		Host:   host,
		Conn:   conn,
		FS:     e.fsFor(host, conn),
		Logger: logger,
		RunID:  r.id,
		Sudo:   e.config.Sudo,
	}
	ctx = ports.ContextWithLogger(ctx, logger)

	halted := ""
	for _, task := range r.tasks {
		if halted != "" {
			hr.StepResults = append(hr.StepResults, StepResult{
				StepID: task.ID(),
				Status: StepStatusSkipped,
				Output: "skipped after critical task " + halted + " failed",
			})
			continue
		}

		if !r.inScope(task, host) {
			logger.Debug(ctx, "task out of scope", ports.F("task", task.ID()), ports.F("scope", task.Scope().String()))
			hr.StepResults = append(hr.StepResults, StepResult{StepID: task.ID(), Status: StepStatusSkipped})
			continue
		}

		sr := e.executeStep(ctx, hc, task)
		hr.StepResults = append(hr.StepResults, sr)

		if sr.Error != nil {
			logger.Warn(ctx, "task failed", ports.F("task", task.ID()), ports.Err(sr.Error))
			if task.Critical() {
				halted = task.ID()
				hr.Error = fmt.Errorf("critical task %s failed: %w", task.ID(), sr.Error)
			}
		}
	}

	if hr.StepsFailed() > 0 {
		hr.Status = HostStatusFailed
	} else {
		hr.Status = HostStatusSuccess
	}

	hr.EndTime = time.Now()
	return hr
}

func (e *FleetExecutor) executeStep(ctx context.Context, hc *HostContext, task Task) StepResult {
	sr := StepResult{
		StepID: task.ID(),
	}

	start := time.Now()

	if checker, ok := task.(Checker); ok {
		status, err := checker.Check(ctx, hc)
		if err != nil {
			sr.Status = StepStatusUnknown
			sr.Error = err
			sr.Duration = time.Since(start)
			return sr
		}
		sr.Status = status
		if status == StepStatusSatisfied {
			sr.Duration = time.Since(start)
			return sr
		}
	} else {
		sr.Status = StepStatusNeeds
	}

	if e.config.DryRun {
		if planner, ok := task.(Planner); ok {
			out, err := planner.Plan(ctx, hc)
			sr.Output = "[dry-run] " + out
			sr.Error = err
		} else {
			sr.Output = "[dry-run] would run: " + task.Description()
		}
		sr.Duration = time.Since(start)
		return sr
	}

	out, err := task.Run(ctx, hc)
	sr.Output = out
	if err != nil {
		sr.Error = err
	} else {
		sr.Applied = true
		hc.Logger.Debug(ctx, "task applied", ports.F("task", task.ID()))
	}
	sr.Duration = time.Since(start)
	return sr
}

// Plan runs every task in dry-run mode. Nothing is written to any host.
func (e *FleetExecutor) Plan(ctx context.Context, hosts []*fleet.Host, tasks []Task) *FleetPlan {
	dry := *e
	dry.config.DryRun = true
	result := dry.Execute(ctx, hosts, tasks)

	plan := &FleetPlan{RunID: result.RunID, Hosts: make([]*HostPlan, 0, len(result.HostResults))}
	descriptions := make(map[string]string, len(tasks))
	for _, t := range tasks {
		descriptions[t.ID()] = t.Description()
	}
	for _, hr := range result.HostResults {
		hp := &HostPlan{HostID: hr.HostID, Hostname: hr.Hostname, Error: hr.Error}
		for _, sr := range hr.StepResults {
			hp.Steps = append(hp.Steps, StepPlan{
				StepID:      sr.StepID,
				Description: descriptions[sr.StepID],
				Detail:      sr.Output,
				Status:      sr.Status,
				Error:       sr.Error,
			})
		}
		plan.Hosts = append(plan.Hosts, hp)
	}
	return plan
}

// FleetPlan represents the planned changes for all hosts.
type FleetPlan struct {
	RunID string
	Hosts []*HostPlan
}

// TotalChanges returns the total number of changes across all hosts.
func (p *FleetPlan) TotalChanges() int {
	count := 0
	for _, hp := range p.Hosts {
		for _, sp := range hp.Steps {
			if sp.Status == StepStatusNeeds {
				count++
			}
		}
	}
	return count
}

// HostsWithChanges returns the number of hosts that have changes.
func (p *FleetPlan) HostsWithChanges() int {
	count := 0
	for _, hp := range p.Hosts {
		if hp.HasChanges() {
			count++
		}
	}
	return count
}

// HostPlan represents the plan for a single host.
type HostPlan struct {
	HostID   fleet.HostID
	Hostname string
	Steps    []StepPlan
	Error    error
}

// HasChanges returns true if this host has changes to apply.
func (p *HostPlan) HasChanges() bool {
	for _, sp := range p.Steps {
		if sp.Status == StepStatusNeeds {
			return true
		}
	}
	return false
}

// StepPlan represents the plan for a single step.
type StepPlan struct {
	StepID      string
	Description string
	Detail      string
	Status      StepStatus
	Error       error
}
