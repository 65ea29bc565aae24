package executor

import (
	"encoding/json"
	"strings"
)

// Result is the agent runtime's report as handed to handleTaskCompletion.
// Output is the raw text the runtime returned; it may itself be a JSON
// document the safety-net check inspects.
type Result struct {
	Output  string         `json:"output"`
	Success bool           `json:"success"`
	Extra   map[string]any `json:"-"`
}

// safetyNetFailureReason catches the case where an agent that
// reports success but whose own output says otherwise must be redirected
// to handleTaskFailure. Returns ("", false) when the output looks like a
// genuine success.
func safetyNetFailureReason(output string) (reason string, failed bool) {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return "", false
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return "", false
	}

	if success, ok := parsed["success"].(bool); ok && !success {
		return "agent reported success=false", true
	}

	if testResults, ok := parsed["test_results"].(string); ok {
		if containsFailurePattern(testResults) {
			return "test_results indicates failing tests", true
		}
	}

	return "", false
}

// containsFailurePattern detects the "FAILURE ... FAILED/ERRORS" shape:
// a summary line followed by enumerated failures.
func containsFailurePattern(s string) bool {
	upper := strings.ToUpper(s)
	if !strings.Contains(upper, "FAILURE") {
		return false
	}
	return strings.Contains(upper, "FAILED") || strings.Contains(upper, "ERRORS")
}
