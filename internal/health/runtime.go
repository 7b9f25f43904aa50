package health

import (
	"context"
	"runtime"
)

// RuntimeLimits are the process thresholds above which the bot reports
// itself degraded.
type RuntimeLimits struct {
	MaxAllocMB    float64
	MaxGoroutines int
}

// DefaultRuntimeLimits returns limits suited to a single-channel bot.
func DefaultRuntimeLimits() RuntimeLimits {
	return RuntimeLimits{MaxAllocMB: 500, MaxGoroutines: 500}
}

// RuntimeCheck reports degraded when heap allocation or the goroutine count
// exceeds limits. A goroutine count above twice the limit usually means a
// leak and reports down.
func RuntimeCheck(limits RuntimeLimits) CheckFunc {
	return func(context.Context) Status {
		goroutines := runtime.NumGoroutine()
		if limits.MaxGoroutines > 0 && goroutines > 2*limits.MaxGoroutines {
			return StatusDown
		}

		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		allocMB := float64(ms.Alloc) / (1024 * 1024)

		if limits.MaxAllocMB > 0 && allocMB > limits.MaxAllocMB {
			return StatusDegraded
		}
		if limits.MaxGoroutines > 0 && goroutines > limits.MaxGoroutines {
			return StatusDegraded
		}
		return StatusOK
	}
}
