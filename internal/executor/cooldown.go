package executor

import (
	"math/rand"
	"time"
)

// cooldownDelay picks a rest duration within [min, max), the jittered
// local-tier cooldown (default 2-5s) to avoid
// hammering the underlying model runtime with back-to-back requests.
func cooldownDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
