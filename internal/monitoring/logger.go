// Package monitoring holds the replay server's diagnostic logger and its
// Prometheus collectors.
package monitoring

import "log"

// Logf is the package-level diagnostic logger used on hot paths (streaming,
// transports). It defaults to log.Printf and may be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Prefixed returns a logger that tags every line with "[component] ".
// The returned func resolves Logf on each call, so SetLogger still applies.
func Prefixed(component string) func(format string, v ...interface{}) {
	prefix := "[" + component + "] "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
