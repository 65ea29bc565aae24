package agents

import "testing"

func TestRegistryPutGet(t *testing.T) {
	reg := NewRegistry()
	a := New("a1", "Coder", TypeCoder)
	reg.Put(a)

	got, err := reg.Get("a1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "a1" {
		t.Errorf("expected a1, got %s", got.ID)
	}

	if _, err := reg.Get("missing"); err == nil {
		t.Error("expected NotFound for missing agent")
	}
}

func TestRegistryIdleOfType(t *testing.T) {
	reg := NewRegistry()
	coder := New("a1", "Coder", TypeCoder)
	qa := New("a2", "QA", TypeQA)
	reg.Put(coder)
	reg.Put(qa)

	if got := reg.IdleOfType(TypeCoder); got == nil || got.ID != "a1" {
		t.Error("expected to find idle coder")
	}

	coder.MarkBusy("t1")
	reg.Put(coder)
	if got := reg.IdleOfType(TypeCoder); got != nil {
		t.Error("expected no idle coder once busy")
	}
}

func TestRegistryCountIdleOfType(t *testing.T) {
	reg := NewRegistry()
	reg.Put(New("a1", "Coder1", TypeCoder))
	reg.Put(New("a2", "Coder2", TypeCoder))
	busy := New("a3", "Coder3", TypeCoder)
	busy.MarkBusy("t1")
	reg.Put(busy)

	if n := reg.CountIdleOfType(TypeCoder); n != 2 {
		t.Errorf("expected 2 idle coders, got %d", n)
	}
}

func TestRegistryRemove(t *testing.T) {
	reg := NewRegistry()
	reg.Put(New("a1", "Coder", TypeCoder))
	reg.Remove("a1")
	if _, err := reg.Get("a1"); err == nil {
		t.Error("expected agent to be removed")
	}
}
