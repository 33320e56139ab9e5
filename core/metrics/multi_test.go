package metrics

import (
	"errors"
	"testing"
)

type recordSink struct {
	plans       int
	transitions int
	err         error
}

func (r *recordSink) RecordPlan(PlanEvent) error {
	r.plans++
	return r.err
}

func (r *recordSink) RecordTransition(TransitionEvent) error {
	r.transitions++
	return nil
}

type planOnly struct{ plans int }

func (p *planOnly) RecordPlan(PlanEvent) error {
	p.plans++
	return nil
}

// TestMultiSink ensures records reach every sink that supports them.
func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &planOnly{}
	m := NewMultiSink(s1, s2)
	if err := m.RecordPlan(PlanEvent{}); err != nil {
		t.Fatalf("record plan: %v", err)
	}
	if err := m.RecordTransition(TransitionEvent{}); err != nil {
		t.Fatalf("record transition: %v", err)
	}
	if s1.plans != 1 || s2.plans != 1 || s1.transitions != 1 {
		t.Fatalf("records not forwarded: %+v %+v", s1, s2)
	}
}

func TestMultiSinkContinuesAfterError(t *testing.T) {
	boom := errors.New("boom")
	s1 := &recordSink{err: boom}
	s2 := &recordSink{}
	err := NewMultiSink(s1, s2).RecordPlan(PlanEvent{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if s2.plans != 1 {
		t.Fatalf("second sink skipped")
	}
}
