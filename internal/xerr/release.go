package xerr

import (
	"fmt"
	"os"
	"runtime/debug"
)

// Release selects the build mode the engine was compiled for. It scales
// default sizing constants (see mm2.DefaultConfig) and gates whether
// Critical and Severe print a stack trace; whether they panic is gated
// by DEBUG.
var Release = "standard"

const (
	// ReleaseDev is used for developer builds; it gets the same defaults
	// and stack-trace printing as ReleaseStandard.
	ReleaseDev = "dev"
	// ReleaseStandard is the production build: production-sized limits.
	ReleaseStandard = "standard"
	// ReleaseTesting shrinks the default pool capacity and shutdown
	// deadline (mm2.DefaultConfig) and silences the stack traces Critical
	// and Severe otherwise print.
	ReleaseTesting = "testing"
)

// DEBUG controls whether Critical and Severe panic instead of merely
// printing. It defaults to false and nothing in this module sets it.
var DEBUG = false

// Critical reports a violated internal invariant. It panics only when
// DEBUG is set; otherwise it prints the stack trace (except under
// ReleaseTesting) and returns, and the caller carries on.
func Critical(v ...interface{}) {
	s := "mm2 critical error: " + fmt.Sprintln(v...) + "this indicates a broken internal invariant, not a bad input\n"
	if Release != ReleaseTesting {
		debug.PrintStack()
		os.Stderr.WriteString(s)
	}
	if DEBUG {
		panic(s)
	}
}

// Severe reports a serious but non-fatal condition (disk failure, quota
// exhaustion). Unlike Critical it does not imply a broken invariant.
func Severe(v ...interface{}) {
	s := "mm2 severe error: " + fmt.Sprintln(v...)
	if Release != ReleaseTesting {
		debug.PrintStack()
		os.Stderr.WriteString(s)
	}
	if DEBUG {
		panic(s)
	}
}
