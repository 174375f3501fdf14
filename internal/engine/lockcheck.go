package engine

import (
	"time"

	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"
)

// DetectStalls configures the deadlock detector behind the engine and store
// locks. It is process-wide and must be called before the first operation.
//
// A zero timeout turns off wait-time detection, so a slow store never ends
// the process. A positive timeout reports waits longer than timeout through
// logger; the process keeps running.
func DetectStalls(timeout time.Duration, logger *zap.Logger) {
	deadlock.Opts.DeadlockTimeout = timeout
	deadlock.Opts.OnPotentialDeadlock = func() {
		logger.Error("lock wait exceeded deadlock timeout", zap.Duration("timeout", timeout))
	}
}
