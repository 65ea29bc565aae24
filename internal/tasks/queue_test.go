package tasks

import (
	"testing"
	"time"
)

func TestQueueOrdersByPriorityThenFIFO(t *testing.T) {
	q := NewQueue()

	low := New("low", "d", TypeCode, 3)
	high := New("high", "d", TypeCode, 9)
	mid := New("mid", "d", TypeCode, 5)

	q.Add(low)
	time.Sleep(time.Millisecond)
	q.Add(high)
	time.Sleep(time.Millisecond)
	q.Add(mid)

	all := q.All()
	if all[0].ID != high.ID {
		t.Errorf("expected highest priority first, got %s", all[0].Title)
	}
	if all[len(all)-1].ID != low.ID {
		t.Errorf("expected lowest priority last, got %s", all[len(all)-1].Title)
	}
}

func TestQueueFIFOAtEqualPriority(t *testing.T) {
	q := NewQueue()
	first := New("first", "d", TypeCode, 5)
	q.Add(first)
	time.Sleep(time.Millisecond)
	second := New("second", "d", TypeCode, 5)
	q.Add(second)

	all := q.All()
	if all[0].ID != first.ID {
		t.Error("expected the older task to win at equal priority")
	}
}

func TestQueueGetByIDNotFound(t *testing.T) {
	q := NewQueue()
	if _, err := q.GetByID("missing"); err == nil {
		t.Error("expected NotFound error for missing id")
	}
}

func TestQueueRemove(t *testing.T) {
	q := NewQueue()
	task := New("t", "d", TypeCode, 5)
	q.Add(task)
	q.Remove(task.ID)
	if q.Len() != 0 {
		t.Errorf("expected empty queue after remove, got %d", q.Len())
	}
}

func TestQueuePendingCandidatesFiltersRequiredAgent(t *testing.T) {
	q := NewQueue()
	generic := New("generic", "d", TypeCode, 5)
	restricted := New("restricted", "d", TypeCode, 5)
	restricted.RequiredAgent = "cto"
	q.Add(generic)
	q.Add(restricted)

	candidates := q.PendingCandidates("coder", nil)
	for _, c := range candidates {
		if c.ID == restricted.ID {
			t.Error("task requiring cto should not be a candidate for coder")
		}
	}

	ctoCandidates := q.PendingCandidates("cto", nil)
	found := false
	for _, c := range ctoCandidates {
		if c.ID == restricted.ID {
			found = true
		}
	}
	if !found {
		t.Error("task requiring cto should be a candidate for cto")
	}
}

func TestQueuePendingCandidatesExcludes(t *testing.T) {
	q := NewQueue()
	task := New("t", "d", TypeCode, 5)
	q.Add(task)

	candidates := q.PendingCandidates("coder", map[string]bool{task.ID: true})
	if len(candidates) != 0 {
		t.Errorf("expected excluded task to be filtered out, got %d candidates", len(candidates))
	}
}
