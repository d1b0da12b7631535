// Package monitoring carries the process-wide diagnostic logger shared by
// the tracking, behavior, config and delivery packages. It exists so tests
// can capture or silence diagnostics without threading a logger through
// every constructor.
package monitoring

import "log"

// Logf is the process-wide diagnostic logger. It defaults to log.Printf.
// Swap it with SetLogger to redirect or silence diagnostics.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger installs f as the package logger. A nil f silences logging.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Scoped returns a logging func that prefixes every line with tag. The
// returned func reads Logf at call time, so a later SetLogger still takes
// effect.
func Scoped(tag string) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		Logf(tag+": "+format, v...)
	}
}
