// Package execution fans tasks out across a fleet of hosts and collects
// per-host results.
package execution

import (
	"sort"
	"time"

	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet"
)

// StepStatus is what the check of a step found.
type StepStatus string

const (
	StepStatusSatisfied StepStatus = "satisfied" // nothing to do
	StepStatusNeeds     StepStatus = "needs"     // the step must run
	StepStatusUnknown   StepStatus = "unknown"   // the check itself failed
	// StepStatusSkipped marks a step out of scope for the host, or one
	// after a failed critical step.
	StepStatusSkipped StepStatus = "skipped"
)

// StepResult is the outcome of one task on one host.
type StepResult struct {
	StepID   string
	Status   StepStatus
	Applied  bool
	Duration time.Duration
	// Output is what the task reported, or its plan in a dry run.
	Output string
	Error  error
}

// HostStatus is the state of a host within a run.
type HostStatus string

const (
	HostStatusPending HostStatus = "pending"
	HostStatusRunning HostStatus = "running"
	// HostStatusSuccess means no step in scope failed.
	HostStatusSuccess HostStatus = "success"
	// HostStatusFailed means the host was unreachable or a step failed.
	HostStatusFailed HostStatus = "failed"
	// HostStatusSkipped means the run stopped before reaching the host.
	HostStatusSkipped HostStatus = "skipped"
)

// HostResult is the outcome of a run on one host.
type HostResult struct {
	RunID     string
	HostID    fleet.HostID
	Hostname  string
	Status    HostStatus
	StartTime time.Time
	EndTime   time.Time
	// StepResults holds one entry per task, in task order.
	StepResults []StepResult
	// Error is set when the host was unreachable or skipped, or when a
	// critical step failed.
	Error error
}

// Duration returns how long the host took; zero until it finished.
func (r *HostResult) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// StepsApplied counts the steps that changed the host.
func (r *HostResult) StepsApplied() int {
	n := 0
	for _, s := range r.StepResults {
		if s.Applied {
			n++
		}
	}
	return n
}

// StepsFailed counts the steps that returned an error.
func (r *HostResult) StepsFailed() int {
	n := 0
	for _, s := range r.StepResults {
		if s.Error != nil {
			n++
		}
	}
	return n
}

// StepsSkipped counts the steps that did not run on the host.
func (r *HostResult) StepsSkipped() int {
	n := 0
	for _, s := range r.StepResults {
		if s.Status == StepStatusSkipped {
			n++
		}
	}
	return n
}

// Step returns the result of task id.
func (r *HostResult) Step(id string) (StepResult, bool) {
	for _, s := range r.StepResults {
		if s.StepID == id {
			return s, true
		}
	}
	return StepResult{}, false
}

// FleetResult is the outcome of a run on every selected host.
type FleetResult struct {
	RunID     string
	StartTime time.Time
	EndTime   time.Time
	// HostResults is in the order the hosts were selected.
	HostResults []*HostResult
}

// NewFleetResult starts the result of run runID.
func NewFleetResult(runID string) *FleetResult {
	return &FleetResult{RunID: runID, StartTime: time.Now()}
}

// AddHostResult records the result of one host.
func (r *FleetResult) AddHostResult(hr *HostResult) {
	r.HostResults = append(r.HostResults, hr)
}

// Host returns the result of host id.
func (r *FleetResult) Host(id fleet.HostID) (*HostResult, bool) {
	for _, hr := range r.HostResults {
		if hr.HostID == id {
			return hr, true
		}
	}
	return nil, false
}

// Complete records the end of the run.
func (r *FleetResult) Complete() {
	r.EndTime = time.Now()
}

// Duration returns how long the run took, or has taken so far.
func (r *FleetResult) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return time.Since(r.StartTime)
	}
	return r.EndTime.Sub(r.StartTime)
}

// TotalHosts returns the number of hosts in the run.
func (r *FleetResult) TotalHosts() int {
	return len(r.HostResults)
}

// SuccessfulHosts returns the number of hosts that succeeded.
func (r *FleetResult) SuccessfulHosts() int {
	return len(r.withStatus(HostStatusSuccess))
}

// FailedHosts returns the number of hosts that failed.
func (r *FleetResult) FailedHosts() int {
	return len(r.withStatus(HostStatusFailed))
}

// SkippedHosts returns the number of hosts the run never reached.
func (r *FleetResult) SkippedHosts() int {
	return len(r.withStatus(HostStatusSkipped))
}

// Unsuccessful returns the IDs of the hosts that failed or were skipped.
func (r *FleetResult) Unsuccessful() []fleet.HostID {
	var ids []fleet.HostID
	for _, hr := range r.HostResults {
		if hr.Status != HostStatusSuccess {
			ids = append(ids, hr.HostID)
		}
	}
	return ids
}

func (r *FleetResult) withStatus(status HostStatus) []fleet.HostID {
	var ids []fleet.HostID
	for _, hr := range r.HostResults {
		if hr.Status == status {
			ids = append(ids, hr.HostID)
		}
	}
	return ids
}

// AllSuccessful reports whether the run reached at least one host and
// every host succeeded.
func (r *FleetResult) AllSuccessful() bool {
	return len(r.HostResults) > 0 && len(r.Unsuccessful()) == 0
}

// sortBy orders the host results like hosts.
func (r *FleetResult) sortBy(hosts []*fleet.Host) {
	index := make(map[fleet.HostID]int, len(hosts))
	for i, h := range hosts {
		index[h.ID()] = i
	}
	sort.SliceStable(r.HostResults, func(i, j int) bool {
		return index[r.HostResults[i].HostID] < index[r.HostResults[j].HostID]
	})
}

// Summary holds the totals of a run.
type Summary struct {
	RunID           string        `json:"run_id" yaml:"run_id"`
	TotalHosts      int           `json:"total_hosts" yaml:"total_hosts"`
	SuccessfulHosts int           `json:"successful_hosts" yaml:"successful_hosts"`
	FailedHosts     int           `json:"failed_hosts" yaml:"failed_hosts"`
	SkippedHosts    int           `json:"skipped_hosts" yaml:"skipped_hosts"`
	StepsApplied    int           `json:"steps_applied" yaml:"steps_applied"`
	StepsFailed     int           `json:"steps_failed" yaml:"steps_failed"`
	TotalDuration   time.Duration `json:"total_duration" yaml:"total_duration"`
}

// Summary returns the totals of the run.
func (r *FleetResult) Summary() Summary {
	s := Summary{
		RunID:         r.RunID,
		TotalHosts:    len(r.HostResults),
		TotalDuration: r.Duration(),
	}
	for _, hr := range r.HostResults {
		switch hr.Status {
		case HostStatusSuccess:
			s.SuccessfulHosts++
		case HostStatusFailed:
			s.FailedHosts++
		case HostStatusSkipped:
			s.SkippedHosts++
		}
		s.StepsApplied += hr.StepsApplied()
		s.StepsFailed += hr.StepsFailed()
	}
	return s
}
