package executor

// ActualComplexity derives the post-hoc ("actual") complexity from an
// execution's log stream: step count, detected loops,
// distinct tools used, total duration and whether retries were needed.
// This is training signal for the Router — it never reroutes the task
// that produced it.
func ActualComplexity(logs []*ExecutionLog, retriesUsed int) float64 {
	if len(logs) == 0 {
		return 1
	}

	score := 1.0
	score += float64(len(logs)) * 0.3

	loopCount := 0
	tools := map[string]bool{}
	var totalDurationMs int64
	for _, l := range logs {
		if l.IsLoop {
			loopCount++
		}
		if l.Action != "" {
			tools[l.Action] = true
		}
		totalDurationMs += l.DurationMs
	}
	score += float64(loopCount) * 1.0
	score += float64(len(tools)) * 0.5
	score += float64(totalDurationMs) / 60000.0 // +1 per minute of wall time
	score += float64(retriesUsed) * 1.5

	return clampComplexity(score)
}

func clampComplexity(v float64) float64 {
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}
