package agents

import "testing"

func TestCanServeTier(t *testing.T) {
	coder := New("a1", "Coder One", TypeCoder)
	if !coder.CanServeTier("ollama") {
		t.Error("coder should serve ollama")
	}
	if coder.CanServeTier("haiku") {
		t.Error("coder should not serve haiku")
	}

	qa := New("a2", "QA One", TypeQA)
	if !qa.CanServeTier("haiku") {
		t.Error("qa should serve haiku")
	}

	cto := New("a3", "CTO", TypeCTO)
	if !cto.CanServeTier("opus") {
		t.Error("cto should serve opus")
	}
	if cto.CanServeTier("ollama") {
		t.Error("cto should not serve ollama")
	}
}

func TestMarkBusyIdleInvariant(t *testing.T) {
	a := New("a1", "Coder", TypeCoder)
	a.MarkBusy("t1")
	if a.Status != StatusBusy || a.CurrentTaskID != "t1" {
		t.Error("expected busy status with current task set")
	}
	a.MarkIdle()
	if a.Status != StatusIdle || a.CurrentTaskID != "" {
		t.Error("expected idle status with current task cleared")
	}
}

func TestRecordCompletionAndFailure(t *testing.T) {
	a := New("a1", "Coder", TypeCoder)
	a.RecordCompletion(0.001, 1000)
	a.RecordFailure()

	if a.Stats.Completed != 1 || a.Stats.Failed != 1 {
		t.Fatalf("expected 1 completed and 1 failed, got %+v", a.Stats)
	}
	if a.Stats.SuccessRate != 0.5 {
		t.Errorf("expected success rate 0.5, got %f", a.Stats.SuccessRate)
	}
}

func TestRequireIdle(t *testing.T) {
	a := New("a1", "Coder", TypeCoder)
	if err := a.RequireIdle(); err != nil {
		t.Errorf("expected idle agent to pass, got %v", err)
	}
	a.MarkBusy("t1")
	if err := a.RequireIdle(); err == nil {
		t.Error("expected busy agent to fail RequireIdle")
	}
}
