// Package panics provides a goroutine wrapper that recovers panics,
// logs them, and exits the process cleanly rather than letting a
// background goroutine crash silently. Adapted from
// daglabs-btcd/util/panics/panics.go for simbtc's background tasks
// (accept loop, per-connection handler, liveness sweep, block
// production loop).
package panics

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/simbtc/simbtc/internal/logs"
)

const handlerTimeout = 5 * time.Second

// HandlePanic recovers a panic, logs it along with the goroutine's
// stack trace captured at spawn time, and terminates the process.
func HandlePanic(log *logs.Logger, goroutineStackTrace []byte) {
	err := recover()
	if err == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		log.Criticalf("Fatal error: %+v", err)
		if goroutineStackTrace != nil {
			log.Criticalf("Goroutine stack trace: %s", goroutineStackTrace)
		}
		log.Criticalf("Stack trace: %s", debug.Stack())
		log.Backend().Close()
		close(done)
	}()

	select {
	case <-time.After(handlerTimeout):
		fmt.Fprintln(os.Stderr, "couldn't handle a fatal error in time, exiting")
	case <-done:
	}
	os.Exit(1)
}

// GoroutineWrapperFunc returns a spawn function that launches f in a
// new goroutine guarded by HandlePanic.
func GoroutineWrapperFunc(log *logs.Logger) func(func()) {
	return func(f func()) {
		stackTrace := debug.Stack()
		go func() {
			defer HandlePanic(log, stackTrace)
			f()
		}()
	}
}

// Exit logs reason and terminates the process. Used for fatal startup
// errors (keygen failure, listener bind failure — see spec §7).
func Exit(log *logs.Logger, reason string) {
	done := make(chan struct{})
	go func() {
		log.Criticalf("Exiting: %s", reason)
		log.Backend().Close()
		close(done)
	}()

	select {
	case <-time.After(handlerTimeout):
		fmt.Fprintln(os.Stderr, "couldn't exit gracefully")
	case <-done:
	}
	os.Exit(1)
}
