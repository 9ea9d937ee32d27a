// Package monitoring holds the bridge's diagnostic logger.
package monitoring

import (
	"fmt"
	"log"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger so tests can capture or mute pipeline chatter.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Warnf logs a highlighted warning line through Logf. Used for the periodic
// drop/error summaries so they stand out in a scrolling console.
func Warnf(format string, v ...interface{}) {
	Logf("\033[93m%s\033[0m", fmt.Sprintf(format, v...))
}

// Prefixed returns a logger that tags every line with "[component] ".
func Prefixed(component string) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		Logf("["+component+"] "+format, v...)
	}
}
