package mm2

// allocateTail gives st a fresh tail sector, linking it from the old
// tail (or making it the head, for an empty chain). On pool exhaustion
// it makes exactly one retry after a best-effort migration step, per
// spec.md C3: "fails OutOfMemory only if... migration cannot free a
// sector within a bounded retry".
func (e *Engine) allocateTail(st *sensorState, key sourceSensor, nowMs uint64) error {
	id, err := e.pool.allocate(key)
	if err == ErrPoolExhausted {
		e.bestEffortMigrate(nowMs)
		id, err = e.pool.allocate(key)
	}
	if err != nil {
		return ErrPoolExhausted
	}
	if st.Head == NullSector {
		st.Head = id
	} else {
		old, rerr := e.pool.rawRef(st.Tail)
		if rerr != nil {
			criticalf("allocateTail: tail sector vanished", st.Tail)
			return rerr
		}
		old.Next = id
		if err := e.pool.rawMut(st.Tail, old); err != nil {
			return err
		}
	}
	st.Tail = id
	st.tailFillCount = 0
	return nil
}

// WriteTSD appends one time-series sample. See spec.md C5 write_tsd.
func (e *Engine) WriteTSD(src UploadSource, sensor uint32, value uint32, utcMs uint64) error {
	if err := e.tg.Add(); err != nil {
		return ErrShutdownInProgress
	}
	defer e.tg.Done()
	e.lock()
	defer e.unlock()

	st, err := e.getSensor(src, sensor)
	if err != nil {
		return err
	}
	if st.Kind != KindTSD {
		return ErrUnsupportedRecord
	}
	key := sourceSensor{Source: src, Sensor: sensor}
	if st.Tail == NullSector || int(st.tailFillCount) >= tsdMaxSamples {
		if err := e.allocateTail(st, key, utcMs); err != nil {
			return err
		}
	}
	sec, err := e.pool.rawRef(st.Tail)
	if err != nil {
		return err
	}
	idx := int(st.tailFillCount)
	if idx == 0 {
		sec.AnchorUTCMs = utcMs
	}
	writeTSDSampleInto(&sec, idx, value)
	if err := e.pool.rawMut(st.Tail, sec); err != nil {
		return err
	}
	st.tailFillCount++
	st.SampleCountTotal++
	st.SampleCountNew++
	return nil
}

// WriteEVT appends one explicit (utc_ms, value) event pair. See
// spec.md C5 write_evt.
func (e *Engine) WriteEVT(src UploadSource, sensor uint32, value uint32, utcMs uint64) error {
	if err := e.tg.Add(); err != nil {
		return ErrShutdownInProgress
	}
	defer e.tg.Done()
	e.lock()
	defer e.unlock()
	return e.writeEVTLocked(src, sensor, value, utcMs)
}

func (e *Engine) writeEVTLocked(src UploadSource, sensor uint32, value uint32, utcMs uint64) error {
	st, err := e.getSensor(src, sensor)
	if err != nil {
		return err
	}
	if st.Kind != KindEVT {
		return ErrUnsupportedRecord
	}
	key := sourceSensor{Source: src, Sensor: sensor}

	needNew := st.Tail == NullSector || int(st.tailFillCount) >= evtMaxPairs
	if !needNew {
		sec, rerr := e.pool.rawRef(st.Tail)
		if rerr != nil {
			return rerr
		}
		if setEVTPair(&sec, int(st.tailFillCount), utcMs, value) {
			if err := e.pool.rawMut(st.Tail, sec); err != nil {
				return err
			}
			st.tailFillCount++
			st.SampleCountTotal++
			st.SampleCountNew++
			return nil
		}
		needNew = true
	}
	if err := e.allocateTail(st, key, utcMs); err != nil {
		return err
	}
	sec, err := e.pool.rawRef(st.Tail)
	if err != nil {
		return err
	}
	setEVTPair(&sec, 0, utcMs, value)
	if err := e.pool.rawMut(st.Tail, sec); err != nil {
		return err
	}
	st.tailFillCount = 1
	st.SampleCountTotal++
	st.SampleCountNew++
	return nil
}

// WriteEventWithGPS atomically writes the primary event plus any bound
// GPS fields, all stamped with the identical utcMs (spec.md C5
// write_event_with_gps). Fields left at InvalidSensorEntry are skipped.
// "Atomically" here means: validate every target sensor up front, then
// commit every write while still holding the engine lock — an error
// partway aborts before any write is made visible. See DESIGN.md's
// domain-stack notes for why this commits serially under the lock
// rather than fanning the writes out over goroutines: spec.md §5's
// single global engine mutex guards every map this would touch.
func (e *Engine) WriteEventWithGPS(src UploadSource, eventSensor uint32, value uint32, utcMs uint64) error {
	if err := e.tg.Add(); err != nil {
		return ErrShutdownInProgress
	}
	defer e.tg.Done()
	e.lock()
	defer e.unlock()

	if _, err := e.getSensor(src, eventSensor); err != nil {
		return err
	}
	gps, hasGPS := e.gps[src]

	targets := []uint32{eventSensor}
	if hasGPS {
		for _, entry := range gps.entries() {
			if entry == InvalidSensorEntry {
				continue
			}
			targets = append(targets, uint32(entry))
		}
	}
	for _, t := range targets {
		if _, err := e.getSensor(src, t); err != nil {
			return err
		}
	}

	for _, t := range targets {
		if err := e.writeEVTLocked(src, t, value, utcMs); err != nil {
			criticalf("write_event_with_gps: partial commit", src, t, err)
			return err
		}
	}
	return nil
}

// advanceCursor moves c to the next record position following sec,
// which must be the sector c currently addresses. Past the last record
// of the chain's final sector the cursor stays on that sector with
// Index == Count, so a later append to it is read next.
func advanceCursor(c cursor, sec Sector) cursor {
	c.Index++
	if int(c.Index) >= int(sec.Count) && sec.Next != NullSector {
		return cursor{Sector: sec.Next, Index: 0}
	}
	return c
}

// readOne decodes the record at st.ReadCursor and advances it. It
// returns ok=false, leaving the cursor untouched, when the chain is
// exhausted — callers must not mutate ReadCursor themselves in that
// branch (spec.md C5 read_bulk regression requirement).
func (e *Engine) readOne(st *sensorState) (Record, bool, error) {
	if st.ReadCursor.isNull() {
		if st.Head == NullSector {
			return Record{}, false, nil
		}
		st.ReadCursor = cursor{Sector: st.Head, Index: 0}
	}
	sec, err := e.resolveSector(st.ReadCursor.Sector)
	if err != nil {
		return Record{}, false, err
	}
	if int(st.ReadCursor.Index) >= int(sec.Count) {
		if sec.Next == NullSector {
			return Record{}, false, nil
		}
		st.ReadCursor = cursor{Sector: sec.Next, Index: 0}
		sec, err = e.resolveSector(st.ReadCursor.Sector)
		if err != nil {
			return Record{}, false, err
		}
	}
	var rec Record
	if st.Kind == KindTSD {
		rec, err = DecodeTSD(sec, st.SampleRateMs, int(st.ReadCursor.Index))
	} else {
		rec, err = DecodeEVT(sec, int(st.ReadCursor.Index))
	}
	if err != nil {
		return Record{}, false, err
	}
	st.ReadCursor = advanceCursor(st.ReadCursor, sec)
	return rec, true, nil
}

// peekOne is readOne without advancing state, used by PeekNext/PeekBulk.
func (e *Engine) peekOne(st *sensorState, at cursor) (Record, cursor, bool, error) {
	if at.isNull() {
		if st.Head == NullSector {
			return Record{}, at, false, nil
		}
		at = cursor{Sector: st.Head, Index: 0}
	}
	sec, err := e.resolveSector(at.Sector)
	if err != nil {
		return Record{}, at, false, err
	}
	if int(at.Index) >= int(sec.Count) {
		if sec.Next == NullSector {
			return Record{}, at, false, nil
		}
		at = cursor{Sector: sec.Next, Index: 0}
		sec, err = e.resolveSector(at.Sector)
		if err != nil {
			return Record{}, at, false, err
		}
	}
	var rec Record
	if st.Kind == KindTSD {
		rec, err = DecodeTSD(sec, st.SampleRateMs, int(at.Index))
	} else {
		rec, err = DecodeEVT(sec, int(at.Index))
	}
	if err != nil {
		return Record{}, at, false, err
	}
	return rec, advanceCursor(at, sec), true, nil
}

// markPendingWindow registers that count freshly-read records starting
// at the pre-read cursor value are now awaiting ACK, opening a new
// pending window only if none is currently outstanding.
func (st *sensorState) markPendingWindow(preReadCursor cursor, count uint32) {
	if count == 0 {
		return
	}
	if st.SampleCountPending == 0 {
		st.PendingCursor = preReadCursor
	}
	if count > st.SampleCountNew {
		st.SampleCountNew = 0
	} else {
		st.SampleCountNew -= count
	}
	st.SampleCountPending += count
}

// ReadNext returns and consumes the next unread record. See spec.md C5
// read_next.
func (e *Engine) ReadNext(src UploadSource, sensor uint32) (Record, error) {
	e.lock()
	defer e.unlock()
	st, err := e.getSensor(src, sensor)
	if err != nil {
		return Record{}, err
	}
	pre := startingCursor(st)
	rec, ok, err := e.readOne(st)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, ErrNoData
	}
	st.markPendingWindow(pre, 1)
	return rec, nil
}

// startingCursor returns the position a read beginning right now would
// start from, resolving the lazy head-init readOne performs internally
// so callers can capture the pre-read cursor without racing readOne's
// own mutation of it. Without this, a sensor's very first read would
// capture pre as nullCursor (simply because ReadCursor had never been
// touched yet) rather than {Head, 0} — and markPendingWindow would then
// install nullCursor as PendingCursor, which ErasePending reads as
// "disk-only pending" even though every record is still in RAM.
func startingCursor(st *sensorState) cursor {
	if st.ReadCursor.isNull() && st.Head != NullSector {
		return cursor{Sector: st.Head, Index: 0}
	}
	return st.ReadCursor
}

// ReadBulk returns up to max unread records starting at read_cursor.
// Per spec.md C5/§8: a zero-record result MUST leave read_cursor
// unchanged — this is an explicit regression requirement (a production
// GPS-upload outage traced to a prior implementation resetting the
// cursor to the sentinel on an empty read).
func (e *Engine) ReadBulk(src UploadSource, sensor uint32, max int) ([]Record, error) {
	e.lock()
	defer e.unlock()
	st, err := e.getSensor(src, sensor)
	if err != nil {
		return nil, err
	}
	pre := startingCursor(st)
	out := make([]Record, 0, max)
	for len(out) < max {
		rec, ok, err := e.readOne(st)
		if err != nil {
			return out, err
		}
		if !ok {
			break
		}
		out = append(out, rec)
	}
	st.markPendingWindow(pre, uint32(len(out)))
	return out, nil
}

// PeekNext / PeekBulk are read_next/read_bulk without any state
// mutation (spec.md C5).
func (e *Engine) PeekNext(src UploadSource, sensor uint32) (Record, error) {
	e.lock()
	defer e.unlock()
	st, err := e.getSensor(src, sensor)
	if err != nil {
		return Record{}, err
	}
	rec, _, ok, err := e.peekOne(st, st.ReadCursor)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, ErrNoData
	}
	return rec, nil
}

func (e *Engine) PeekBulk(src UploadSource, sensor uint32, max int) ([]Record, error) {
	e.lock()
	defer e.unlock()
	st, err := e.getSensor(src, sensor)
	if err != nil {
		return nil, err
	}
	at := st.ReadCursor
	out := make([]Record, 0, max)
	for len(out) < max {
		rec, next, ok, err := e.peekOne(st, at)
		if err != nil {
			return out, err
		}
		if !ok {
			break
		}
		out = append(out, rec)
		at = next
	}
	return out, nil
}

// ErasePending is called on upload ACK (spec.md C5 erase_pending / C10
// ack). A null PendingCursor takes the "disk-only pending" branch
// handled first below.
func (e *Engine) ErasePending(src UploadSource, sensor uint32) error {
	e.lock()
	defer e.unlock()
	st, err := e.getSensor(src, sensor)
	if err != nil {
		return err
	}
	key := sourceSensor{Source: src, Sensor: sensor}

	if st.PendingCursor.isNull() {
		e.log.Println("erase_pending: disk-only pending path, sensor", sensor, "count", st.SampleCountPending)
		st.SampleCountTotal -= uint64(st.SampleCountPending)
		st.SampleCountPending = 0
		e.cleanupFullyAckedFiles(key, st)
		e.log.Println("erase_pending: disk-only pending path succeeded, sensor", sensor)
		return nil
	}

	limit := e.hopLimit()
	id := st.PendingCursor.Sector
	for hops := 0; id != NullSector && id != st.ReadCursor.Sector; hops++ {
		if hops > limit {
			return ErrCorruptChain
		}
		sec, err := e.resolveSector(id)
		if err != nil {
			return err
		}
		next := sec.Next
		if e.addr.isRAM(id) {
			e.pool.free(id)
		} else {
			e.markDiskSectorFreed(id)
		}
		id = next
	}
	st.Head = st.ReadCursor.Sector
	st.PendingCursor = st.ReadCursor
	st.SampleCountTotal -= uint64(st.SampleCountPending)
	st.SampleCountPending = 0
	return nil
}

// RevertPending is called on upload NACK (spec.md C5 revert_pending /
// C10 nack): rewinds read_cursor to pending_cursor without freeing
// anything, restoring the reverted records to "new".
func (e *Engine) RevertPending(src UploadSource, sensor uint32) error {
	e.lock()
	defer e.unlock()
	st, err := e.getSensor(src, sensor)
	if err != nil {
		return err
	}
	if st.SampleCountPending == 0 {
		return nil
	}
	if !st.PendingCursor.isNull() {
		st.ReadCursor = st.PendingCursor
	}
	st.SampleCountNew += st.SampleCountPending
	st.SampleCountPending = 0
	st.PendingCursor = nullCursor
	return nil
}

// TotalCount / NewCount are O(1) reads from state, never a chain walk
// (spec.md C5).
func (e *Engine) TotalCount(src UploadSource, sensor uint32) (uint64, error) {
	e.lock()
	defer e.unlock()
	st, err := e.getSensor(src, sensor)
	if err != nil {
		return 0, err
	}
	return st.SampleCountTotal, nil
}

func (e *Engine) NewCount(src UploadSource, sensor uint32) (uint32, error) {
	e.lock()
	defer e.unlock()
	st, err := e.getSensor(src, sensor)
	if err != nil {
		return 0, err
	}
	return st.SampleCountNew, nil
}

func (e *Engine) HasPending(src UploadSource, sensor uint32) (bool, error) {
	e.lock()
	defer e.unlock()
	st, err := e.getSensor(src, sensor)
	if err != nil {
		return false, err
	}
	return st.hasPending(), nil
}

// SectorCount returns the chain length for (src, sensor), measured by
// walking it with the hop limit — never tail.index-head.index (the
// source's 754-vs-5 miscount bug, spec.md C5).
func (e *Engine) SectorCount(src UploadSource, sensor uint32) (int, error) {
	e.lock()
	defer e.unlock()
	st, err := e.getSensor(src, sensor)
	if err != nil {
		return 0, err
	}
	if st.isEmpty() {
		return 0, nil
	}
	return e.chainLength(st.Head)
}
