// Package threadgroup provides a ThreadGroup primitive used to implement
// the engine's graceful-shutdown semantics (spec.md C9, §5
// "Cancellation / timeouts"). It is ported from the teacher's
// sync.ThreadGroup (NebulousLabs-Sia/sync): the engine's write entry
// points and ConfigureSensor Add themselves before running and Done on
// return (reads, acks and Tick do not); Stop blocks new
// entries, runs OnStop callbacks (closing the stop channel so in-flight
// blocking operations can bail out early), waits for in-flight Adds to
// finish, then runs AfterStop callbacks.
package threadgroup

import (
	"errors"
	"sync"
)

// ErrStopped is returned by Add and Stop once the group has already
// been stopped.
var ErrStopped = errors.New("threadgroup: already stopped")

// ThreadGroup allows code to wait for a group of threads to finish, and
// signals them to terminate early via a shared stop channel. The zero
// value is ready to use.
type ThreadGroup struct {
	onStopFns    []func()
	afterStopFns []func()

	stopChan chan struct{}

	bmu     sync.Mutex // guards stopChan lazy-init
	mu      sync.Mutex // guards everything else
	wg      sync.WaitGroup
	stopped bool
}

func (tg *ThreadGroup) init() {
	tg.bmu.Lock()
	defer tg.bmu.Unlock()
	if tg.stopChan == nil {
		tg.stopChan = make(chan struct{})
	}
}

// StopChan returns a channel that is closed when Stop is called.
func (tg *ThreadGroup) StopChan() <-chan struct{} {
	tg.init()
	return tg.stopChan
}

func (tg *ThreadGroup) isStopped() bool {
	tg.init()
	select {
	case <-tg.stopChan:
		return true
	default:
		return false
	}
}

// Add increments the group's counter. The caller must call Done when
// its work is complete. Returns ErrStopped if Stop has already been
// called.
func (tg *ThreadGroup) Add() error {
	tg.init()
	tg.mu.Lock()
	defer tg.mu.Unlock()
	if tg.stopped {
		return ErrStopped
	}
	tg.wg.Add(1)
	return nil
}

// Done decrements the group's counter.
func (tg *ThreadGroup) Done() {
	tg.wg.Done()
}

// OnStop registers a function to be called when Stop is invoked, before
// Stop waits for outstanding Add calls to finish. Functions run in LIFO
// order. If the group is already stopped, fn runs immediately.
func (tg *ThreadGroup) OnStop(fn func()) {
	tg.init()
	tg.mu.Lock()
	if tg.stopped {
		tg.mu.Unlock()
		fn()
		return
	}
	tg.onStopFns = append(tg.onStopFns, fn)
	tg.mu.Unlock()
}

// AfterStop registers a function to be called after Stop has finished
// waiting for outstanding Add calls. Functions run in LIFO order. If the
// group is already stopped, fn runs immediately.
func (tg *ThreadGroup) AfterStop(fn func()) {
	tg.init()
	tg.mu.Lock()
	if tg.stopped {
		tg.mu.Unlock()
		fn()
		return
	}
	tg.afterStopFns = append(tg.afterStopFns, fn)
	tg.mu.Unlock()
}

// Flush runs every OnStop/AfterStop-equivalent wait without marking the
// group stopped: it simply blocks until the current outstanding Add
// calls reach zero, without preventing future work. No engine code
// calls it.
func (tg *ThreadGroup) Flush() {
	tg.wg.Wait()
}

// Stop signals StopChan, runs the OnStop callbacks, waits for
// outstanding Add calls to finish, then runs the AfterStop callbacks.
// Calling Stop more than once returns ErrStopped on the second and
// subsequent calls.
func (tg *ThreadGroup) Stop() error {
	tg.init()
	tg.mu.Lock()
	if tg.stopped {
		tg.mu.Unlock()
		return ErrStopped
	}
	tg.stopped = true
	close(tg.stopChan)
	onStop := tg.onStopFns
	afterStop := tg.afterStopFns
	tg.mu.Unlock()

	for i := len(onStop) - 1; i >= 0; i-- {
		onStop[i]()
	}
	tg.wg.Wait()
	for i := len(afterStop) - 1; i >= 0; i-- {
		afterStop[i]()
	}
	return nil
}
