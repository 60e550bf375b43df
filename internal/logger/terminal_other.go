//go:build !linux && !darwin

package logger

// isTerminal reports false on platforms without a terminal probe.
func isTerminal(fd uintptr) bool {
	return false
}
