package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agentctl/engine/internal/agents"
)

func TestListAndGetAgent(t *testing.T) {
	h := newTestHarness()
	h.registry.Put(agents.New("a1", "Coder One", agents.TypeCoder))

	listReq := httptest.NewRequest("GET", "/agents", nil)
	listW := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(listW, listReq)
	if listW.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", listW.Code)
	}

	getReq := httptest.NewRequest("GET", "/agents/a1", nil)
	getW := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(getW, getReq)
	if getW.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", getW.Code)
	}

	missingReq := httptest.NewRequest("GET", "/agents/ghost", nil)
	missingW := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(missingW, missingReq)
	if missingW.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown agent, got %d", missingW.Code)
	}
}

func TestPatchAgentPreferredModel(t *testing.T) {
	h := newTestHarness()
	h.registry.Put(agents.New("a1", "Coder One", agents.TypeCoder))

	body := bytes.NewBufferString(`{"preferredModel":"haiku"}`)
	req := httptest.NewRequest("PATCH", "/agents/a1", body)
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	got, _ := h.registry.Get("a1")
	if got.Config.PreferredModel != "haiku" {
		t.Errorf("expected preferredModel updated, got %q", got.Config.PreferredModel)
	}
}

func TestResetAllAgentsMarksIdle(t *testing.T) {
	h := newTestHarness()
	busy := agents.New("a1", "Coder One", agents.TypeCoder)
	busy.MarkBusy("t1")
	h.registry.Put(busy)

	req := httptest.NewRequest("POST", "/agents/reset-all", nil)
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got []*agents.Agent
	json.NewDecoder(w.Body).Decode(&got)
	if len(got) != 1 || got[0].Status != agents.StatusIdle {
		t.Errorf("expected agent reset to idle, got %+v", got)
	}
}
