package dectmon

import "fmt"

// assertf panics on a violated internal invariant (a bug in this
// package, never a condition an attacker or a malformed burst can
// trigger). Protocol-level malformation is always a recorded
// *MonitorError, never a panic; see errors.go.
func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("dectmon: invariant violated: "+format, args...))
	}
}
