// Package lifecycle holds the process-wide draining state read by /health.
package lifecycle

import (
	"sync/atomic"
	"time"
)

// shutdownAt is the drain start in unix nanoseconds; zero while serving.
var shutdownAt atomic.Int64

// SetShuttingDown marks the process as draining (on SIGTERM/SIGINT) or serving.
func SetShuttingDown(v bool) {
	if !v {
		shutdownAt.Store(0)
		return
	}
	shutdownAt.CompareAndSwap(0, time.Now().UnixNano())
}

// IsShuttingDown reports whether the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return shutdownAt.Load() != 0
}

// ShutdownStartedAt returns when draining began.
func ShutdownStartedAt() (time.Time, bool) {
	ns := shutdownAt.Load()
	if ns == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}
