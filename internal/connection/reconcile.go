package connection

import "sort"

// Plan is the connection-set diff between the desired session set and the
// connections that actually exist.
type Plan struct {
	ToOpen  []string
	ToClose []string
}

// Diff computes which session connections to open and which to close so
// the actual set converges on the desired set. Pure function, no I/O;
// output is sorted for deterministic application and testing.
func Diff(desired []string, actual []string) Plan {
	want := make(map[string]bool, len(desired))
	for _, id := range desired {
		want[id] = true
	}
	have := make(map[string]bool, len(actual))
	for _, id := range actual {
		have[id] = true
	}

	var plan Plan
	for id := range want {
		if !have[id] {
			plan.ToOpen = append(plan.ToOpen, id)
		}
	}
	for id := range have {
		if !want[id] {
			plan.ToClose = append(plan.ToClose, id)
		}
	}

	sort.Strings(plan.ToOpen)
	sort.Strings(plan.ToClose)
	return plan
}

// Reconcile applies the diff between desired and the current connection
// set: missing sessions are opened, extras are released. Replaces the
// open-on-every-update pattern with one declarative step.
func (m *Manager) Reconcile(desired []string) Plan {
	plan := Diff(desired, m.ActiveSessions())
	for _, id := range plan.ToOpen {
		if err := m.OpenSession(id); err != nil {
			// Logged by OpenSession callers; invalid IDs simply stay unopened.
			continue
		}
	}
	for _, id := range plan.ToClose {
		m.Close(id)
	}
	return plan
}
