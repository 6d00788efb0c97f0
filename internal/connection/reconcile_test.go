package connection

import (
	"reflect"
	"testing"
	"time"
)

// TestDiff covers the open/close split across set shapes.
func TestDiff(t *testing.T) {
	tests := []struct {
		name    string
		desired []string
		actual  []string
		toOpen  []string
		toClose []string
	}{
		{"both empty", nil, nil, nil, nil},
		{"all new", []string{"s1", "s2"}, nil, []string{"s1", "s2"}, nil},
		{"all stale", nil, []string{"s1", "s2"}, nil, []string{"s1", "s2"}},
		{"converged", []string{"s1", "s2"}, []string{"s2", "s1"}, nil, nil},
		{"mixed", []string{"s1", "s3"}, []string{"s1", "s2"}, []string{"s3"}, []string{"s2"}},
		{"duplicates collapse", []string{"s1", "s1"}, nil, []string{"s1"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Diff(tt.desired, tt.actual)
			if !reflect.DeepEqual(plan.ToOpen, tt.toOpen) {
				t.Errorf("ToOpen: expected %v, got %v", tt.toOpen, plan.ToOpen)
			}
			if !reflect.DeepEqual(plan.ToClose, tt.toClose) {
				t.Errorf("ToClose: expected %v, got %v", tt.toClose, plan.ToClose)
			}
		})
	}
}

// TestManager_Reconcile verifies the manager converges its connection set
// on the desired session list.
func TestManager_Reconcile(t *testing.T) {
	m, _, rec := newTestManager()
	defer m.CloseAll()

	plan := m.Reconcile([]string{"s1", "s2"})
	if !reflect.DeepEqual(plan.ToOpen, []string{"s1", "s2"}) || plan.ToClose != nil {
		t.Errorf("Unexpected initial plan: %+v", plan)
	}
	waitFor(t, time.Second, func() bool { return rec.has("open:s1") && rec.has("open:s2") })

	plan = m.Reconcile([]string{"s2", "s3"})
	if !reflect.DeepEqual(plan.ToOpen, []string{"s3"}) || !reflect.DeepEqual(plan.ToClose, []string{"s1"}) {
		t.Errorf("Unexpected second plan: %+v", plan)
	}
	waitFor(t, time.Second, func() bool { return rec.has("open:s3") })
	waitFor(t, time.Second, func() bool { return !m.HasSession("s1") })

	if !m.HasSession("s2") || !m.HasSession("s3") {
		t.Error("Expected s2 and s3 connections after reconcile")
	}
}

// TestManager_ReconcileSkipsInvalidIDs verifies a bad desired id does not
// abort the rest of the plan.
func TestManager_ReconcileSkipsInvalidIDs(t *testing.T) {
	m, _, rec := newTestManager()
	defer m.CloseAll()

	m.Reconcile([]string{"bad id!", "s1"})
	waitFor(t, time.Second, func() bool { return rec.has("open:s1") })
	if m.HasSession("bad id!") {
		t.Error("Invalid id must not gain a connection")
	}
}
