// Package debug provides global debug logging flags
package debug

import "fmt"

// Enabled controls whether debug logging is active
var Enabled bool

// Gates controls whether verbose debounce-gate logs are shown (every
// accepted/rejected fix with distances and cooldowns)
// Use --debug-gates flag to enable these very verbose logs
var Gates bool

// Log prints a message only if debug mode is enabled
func Log(format string, args ...interface{}) {
	if Enabled {
		fmt.Printf(format, args...)
	}
}

// Logln prints a message with newline only if debug mode is enabled
func Logln(msg string) {
	if Enabled {
		fmt.Println(msg)
	}
}

// GateLog prints a message only if gate debug mode is enabled
func GateLog(format string, args ...interface{}) {
	if Gates {
		fmt.Printf(format, args...)
	}
}

// GateLogln prints a message with newline only if gate debug mode is enabled
func GateLogln(msg string) {
	if Gates {
		fmt.Println(msg)
	}
}
