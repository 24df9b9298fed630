package mutation

// Action classifies a Change.
type Action string

const (
	ActionAdd       Action = "add"
	ActionUpdate    Action = "update"
	ActionUnchanged Action = "unchanged"
)

// Change is the effect of one assignment on a file.
type Change struct {
	Key    string `json:"key" yaml:"key"`
	Old    string `json:"old,omitempty" yaml:"old,omitempty"`
	New    string `json:"new" yaml:"new"`
	Action Action `json:"action" yaml:"action"`
}

// Diff compares content before and after assignments are merged. Keys are
// trimmed like Merge trims them and reported once, in first occurrence
// order.
func Diff(content string, assignments Assignments, m Merger) ([]Change, error) {
	if len(assignments) == 0 {
		return nil, nil
	}
	assignments, err := check(assignments, m)
	if err != nil {
		return nil, err
	}
	merged, err := m.Merge(content, assignments)
	if err != nil {
		return nil, err
	}

	collapsed := assignments.Collapse()
	changes := make([]Change, 0, len(collapsed))
	for _, a := range collapsed {
		after, _ := m.Lookup(merged.Content, a.Key)
		before, existed := m.Lookup(content, a.Key)
		c := Change{Key: a.Key, Old: before, New: after}
		switch {
		case !existed:
			c.Action = ActionAdd
		case before == after:
			c.Action = ActionUnchanged
		default:
			c.Action = ActionUpdate
		}
		changes = append(changes, c)
	}
	return changes, nil
}

// Pending reports whether any change would modify the file.
func Pending(changes []Change) bool {
	for _, c := range changes {
		if c.Action != ActionUnchanged {
			return true
		}
	}
	return false
}
