package mm2

// ShutdownStatus reports the outcome of a Shutdown call (spec.md C9).
type ShutdownStatus struct {
	// Accepted is true if this call initiated shutdown; false if
	// shutdown was already in progress (a second Shutdown call is a
	// no-op, not an error).
	Accepted bool
	// FlushTicksGranted is the number of Tick calls the migration engine
	// will spend trying to drain RAM to disk before giving up and
	// emergency-spilling whatever remains (deadlineMs/1000, minimum 1).
	FlushTicksGranted int
}

// Shutdown begins graceful drain: new writes and ConfigureSensor calls
// are refused (ErrShutdownInProgress) once any already-in-flight ones
// return (reads are still served),
// and the migration state machine is pushed into FlushAll on its next
// Tick (spec.md C9 shutdown). deadlineMs bounds how many ticks FlushAll
// gets before it force-spills the remainder via emergencySpillAll and
// declares itself done — Shutdown itself does not block on that drain
// completing, since engine progress only happens inside Tick (spec.md
// §5's cooperative scheduling model); the host loop observes completion
// via IsShutdownComplete or a TickResult.StateEntered of
// "ShutdownComplete".
func (e *Engine) Shutdown(deadlineMs uint32) ShutdownStatus {
	e.lock()
	already := e.migShutdownReq
	if !already {
		ticks := int(deadlineMs / 1000)
		if ticks < 1 {
			ticks = 1
		}
		e.migShutdownReq = true
		e.migFlushTicksLeft = ticks
	}
	ticksGranted := e.migFlushTicksLeft
	e.unlock()

	if !already {
		if err := e.tg.Stop(); err != nil {
			e.log.Warnln("shutdown: thread group already stopped:", err)
		}
	}
	return ShutdownStatus{Accepted: !already, FlushTicksGranted: ticksGranted}
}

// IsShutdownComplete reports whether the migration engine has finished
// draining (or force-spilling) every sensor's RAM chain.
func (e *Engine) IsShutdownComplete() bool {
	e.lock()
	defer e.unlock()
	return e.migState == migShutdownComplete
}

// Close releases the engine's file handles: the bbolt address index,
// the recovery journal, and the log file (Sia's
// ContractManager.Close plays the same role). bbolt holds its index
// file locked for as long as the process keeps it open, so the host
// must call Close — after IsShutdownComplete, or after
// PowerEventImminent — before anything reopens the same spool root in
// this process.
func (e *Engine) Close() error {
	e.lock()
	defer e.unlock()

	var firstErr error
	if e.db != nil {
		if err := e.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := e.jrnl.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.log.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// PowerEventImminent is the emergency path (spec.md §4.8): called when
// the host detects imminent power loss with no time to wait for normal
// ticked drain. When EmergencyEnabled is set it force-migrates every
// sensor's full chain, including tails, into emergency-magic spool
// files immediately; either way it marks the engine done, skipping
// FlushAll's gradual batches entirely.
func (e *Engine) PowerEventImminent(nowMs uint64) {
	e.lock()
	defer e.unlock()
	if e.cfg.EmergencyEnabled {
		e.emergencySpillAll(nowMs)
	}
	e.migShutdownReq = true
	e.migState = migShutdownComplete
}
