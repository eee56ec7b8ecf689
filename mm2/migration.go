package mm2

import "path/filepath"

// Tick advances the migration state machine by one step. The host main
// loop calls this at ~1 Hz (spec.md §5); all progress — spilling to
// disk, deleting reclaimed files, draining for shutdown — happens only
// inside a Tick call, never on a background goroutine.
func (e *Engine) Tick(nowMs uint64) TickResult {
	e.lock()
	defer e.unlock()
	return e.tickLocked(nowMs)
}

func (e *Engine) tickLocked(nowMs uint64) TickResult {
	var result TickResult
	switch e.migState {
	case migIdle:
		switch {
		case e.migShutdownReq:
			e.migState = migFlushAll
		case e.pool.usagePct() >= int(e.cfg.SpillHighPct):
			e.migState = migCheckUsage
		case e.anyFileMarkedForDeletion():
			e.migState = migCleanupDisk
		}
		result.StateEntered = e.migState.String()

	case migCheckUsage:
		if e.diskUsagePct() >= int(e.cfg.DiskAcceptablePct) {
			e.log.Warnln("disk full — cannot spill")
			e.migState = migIdle
		} else {
			e.migSensorCursor = 0
			e.migState = migMoveToDisk
		}
		result.StateEntered = e.migState.String()

	case migMoveToDisk:
		moved := e.moveToDiskStep(nowMs)
		result.SectorsMigrated = moved
		e.migSensorCursor++
		if e.migSensorCursor >= len(e.sensorKeys) || e.pool.usagePct() < int(e.cfg.SpillHighPct) {
			e.migState = migIdle
		}
		result.StateEntered = e.migState.String()

	case migCleanupDisk:
		if e.cleanupOneMarkedFile(nowMs) {
			result.FilesDeleted = 1
		}
		if !e.anyFileMarkedForDeletion() {
			e.migState = migIdle
		}
		result.StateEntered = e.migState.String()

	case migFlushAll:
		result = e.flushAllStep(nowMs)

	case migShutdownComplete:
		result.StateEntered = e.migState.String()
	}
	return result
}

// moveToDiskStep migrates one sensor's oldest batch. Sensors are
// visited round-robin (migSensorCursor), lower sensor id first on ties
// since sensorKeys is append-ordered by ConfigureSensor and ids are
// assigned in increasing order by callers in the test/scenario corpus
// (spec.md §4.5's deterministic tie-break).
func (e *Engine) moveToDiskStep(nowMs uint64) int {
	if len(e.sensorKeys) == 0 {
		return 0
	}
	key := e.sensorKeys[e.migSensorCursor%len(e.sensorKeys)]
	st := e.sensors[key]
	batch := int(e.cfg.MaxBatchTSD)
	if st.Kind == KindEVT {
		batch = int(e.cfg.MaxBatchEVT)
	}
	n, err := e.migrateSensorBatch(key, st, nowMs, batch, false)
	if err != nil {
		e.log.Severe("migration batch failed for sensor", key.Sensor, err)
		return 0
	}
	e.migSectorsMigrated += uint64(n)
	return n
}

// bestEffortMigrate is the single migration step a write may trigger
// on pool exhaustion (spec.md C3: "migration cannot free a sector
// within a bounded retry" — this is that one attempt).
func (e *Engine) bestEffortMigrate(nowMs uint64) {
	for _, key := range e.sensorKeys {
		st := e.sensors[key]
		if st == nil || st.isEmpty() {
			continue
		}
		batch := int(e.cfg.MaxBatchTSD)
		if st.Kind == KindEVT {
			batch = int(e.cfg.MaxBatchEVT)
		}
		n, err := e.migrateSensorBatch(key, st, nowMs, batch, false)
		if err == nil && n > 0 {
			return
		}
	}
}

// migrateSensorBatch moves up to maxBatch of the sensor's oldest
// non-tail RAM sectors into one new disk file (spec.md §4.5/§4.6).
// includeTail additionally allows the tail sector to move, used only
// by the emergency shutdown spill — normal migration must never touch
// the sector a writer may still be appending to.
func (e *Engine) migrateSensorBatch(key sourceSensor, st *sensorState, nowMs uint64, maxBatch int, includeTail bool) (int, error) {
	if st.Head == NullSector {
		return 0, nil
	}
	if st.Head == st.Tail && !includeTail {
		return 0, nil
	}

	// Walk via resolveSector, not pool.rawRef directly: once an earlier
	// batch has moved the chain's oldest sectors to disk, st.Head itself
	// is a disk id, and the next still-RAM sector may be several hops
	// further along. Only RAM-resident sectors are collected for this
	// batch; already-migrated disk sectors are passed through.
	var ramIDs []SectorID
	var sectors []Sector
	id := st.Head
	stopAt := st.Tail
	if includeTail {
		stopAt = NullSector
	}
	hops := 0
	limit := e.hopLimit()
	for len(ramIDs) < maxBatch && id != stopAt && id != NullSector {
		if hops > limit {
			return 0, ErrCorruptChain
		}
		hops++
		sec, err := e.resolveSector(id)
		if err != nil {
			return 0, err
		}
		if e.addr.isRAM(id) {
			ramIDs = append(ramIDs, id)
			sectors = append(sectors, sec)
		}
		id = sec.Next
	}
	if len(ramIDs) == 0 {
		return 0, nil
	}
	continuation := id

	dir := filepath.Join(e.cfg.SpoolRoot, key.Source.String())
	finalPath, err := nextFreeSpoolPath(e.deps, dir, key.Sensor, nowMs)
	if err != nil {
		return 0, err
	}

	diskIDs := make([]SectorID, len(ramIDs))
	for i := range ramIDs {
		entry := LookupEntry{FilePath: finalPath, FileOffset: uint32(i), SensorID: key.Sensor, CreatedUTCMs: nowMs}
		diskID, err := e.addr.allocateDiskID(entry)
		if err != nil {
			return 0, err
		}
		diskIDs[i] = diskID
	}

	toWrite := make([]Sector, len(sectors))
	for i, sec := range sectors {
		if i+1 < len(diskIDs) {
			sec.Next = diskIDs[i+1]
		} else {
			sec.Next = continuation
		}
		toWrite[i] = sec
	}

	// includeTail is set only by emergencySpillAll's force-drain path, so
	// it doubles as the "write with the emergency magic" signal.
	df, err := writeDiskFile(e.deps, e.jrnl, finalPath, key.Sensor, st.Kind, toWrite, sectors[0].AnchorUTCMs, nowMs, includeTail)
	if err != nil {
		return 0, err
	}
	e.files[finalPath] = &df
	e.filesBySrc[key] = append(e.filesBySrc[key], finalPath)
	e.migFilesCreated++

	oldToNew := make(map[SectorID]SectorID, len(ramIDs))
	for i, old := range ramIDs {
		oldToNew[old] = diskIDs[i]
	}
	if newHead, ok := oldToNew[st.Head]; ok {
		st.Head = newHead
	}
	if st.Tail != NullSector {
		if newTail, ok := oldToNew[st.Tail]; ok && includeTail {
			st.Tail = newTail
		}
	}
	if newID, ok := oldToNew[st.ReadCursor.Sector]; ok {
		st.ReadCursor.Sector = newID
	}
	if _, ok := oldToNew[st.PendingCursor.Sector]; ok {
		// Migrating the sector a sensor's pending window starts in
		// degrades tracking to "disk-only pending" (spec.md C3) rather
		// than following the pointer: once a pending sector is spilled,
		// the engine stops tracking its exact position and relies on
		// sample_count_pending plus cleanupFullyAckedFiles at ACK time.
		st.PendingCursor = nullCursor
	}

	for _, old := range ramIDs {
		e.pool.free(old)
	}

	return len(ramIDs), nil
}

func (e *Engine) anyFileMarkedForDeletion() bool {
	for _, df := range e.files {
		if df.MarkedForDeletion {
			return true
		}
	}
	return false
}

func (e *Engine) diskUsagePct() int {
	if e.cfg.DiskQuotaBytes == 0 {
		return 0
	}
	var used uint64
	for _, df := range e.files {
		if df.MarkedForDeletion {
			continue
		}
		used += uint64(df.SectorCount)*uint64(SectorSize) + fileHeaderSize
	}
	return int(used * 100 / e.cfg.DiskQuotaBytes)
}

// cleanupOneMarkedFile deletes the first marked-for-deletion file it
// finds, reporting whether it deleted anything.
func (e *Engine) cleanupOneMarkedFile(nowMs uint64) bool {
	for path, df := range e.files {
		if !df.MarkedForDeletion {
			continue
		}
		if err := deleteDiskFile(e.deps, e.jrnl, df, nowMs); err != nil {
			e.log.Severe("failed to delete reclaimed spool file", path, err)
			return false
		}
		delete(e.files, path)
		e.removeFromFilesBySrc(path)
		e.migFilesDeleted++
		return true
	}
	return false
}

func (e *Engine) removeFromFilesBySrc(path string) {
	for key, paths := range e.filesBySrc {
		for i, p := range paths {
			if p == path {
				e.filesBySrc[key] = append(paths[:i], paths[i+1:]...)
				return
			}
		}
	}
}

// markDiskSectorFreed increments the owning file's free_count and marks
// the LookupEntry Freed (spec.md §4.6 mark_sector_freed).
func (e *Engine) markDiskSectorFreed(id SectorID) {
	entry, ok := e.addr.resolve(id)
	if !ok {
		return
	}
	df, ok := e.files[entry.FilePath]
	if !ok {
		return
	}
	df.incrementFree()
	_ = e.addr.markFreed(id)
}

// cleanupFullyAckedFiles marks every file for (src, sensor) that lies
// strictly before the sensor's current read position as fully freed,
// leaving actual unlinking to the next CleanupDisk tick. This is the
// "disk-only pending" ACK path's C7 call (spec.md §4.3 erase_pending):
// with pending_cursor already nulled out by migration, the engine no
// longer has a precise sector boundary for the acked window, so it
// conservatively reclaims every older, fully-superseded file for this
// sensor rather than tracking per-sector boundaries across the RAM/disk
// transition.
func (e *Engine) cleanupFullyAckedFiles(key sourceSensor, st *sensorState) {
	currentFile := ""
	if !st.ReadCursor.isNull() && !e.addr.isRAM(st.ReadCursor.Sector) {
		if entry, ok := e.addr.resolve(st.ReadCursor.Sector); ok {
			currentFile = entry.FilePath
		}
	}
	for _, p := range e.filesBySrc[key] {
		if p == currentFile {
			break
		}
		df, ok := e.files[p]
		if !ok || df.MarkedForDeletion {
			continue
		}
		df.FreeCount = df.SectorCount
		df.MarkedForDeletion = true
	}
}

// flushAllStep drains every sensor's RAM chain toward disk with an
// aggressive batch size, tracking progress against the shutdown
// deadline (spec.md §4.5 FlushAll).
func (e *Engine) flushAllStep(nowMs uint64) TickResult {
	var result TickResult
	movedTotal := 0
	remaining := 0
	for _, key := range e.sensorKeys {
		st := e.sensors[key]
		batch := int(e.cfg.MaxBatchTSD) * 10
		if st.Kind == KindEVT {
			batch = int(e.cfg.MaxBatchEVT) * 10
		}
		n, err := e.migrateSensorBatch(key, st, nowMs, batch, false)
		if err != nil {
			e.log.Severe("flush-all migration failed for sensor", key.Sensor, err)
		}
		movedTotal += n
		if st.Head != NullSector && st.Head != st.Tail {
			remaining++
		}
	}
	result.SectorsMigrated = movedTotal
	e.migSectorsMigrated += uint64(movedTotal)

	if remaining == 0 {
		e.migState = migShutdownComplete
		result.StateEntered = e.migState.String()
		return result
	}

	e.migFlushTicksLeft--
	if e.migFlushTicksLeft <= 0 {
		e.log.Warnln("shutdown timeout; partial flush — sectors retained in emergency file")
		if e.cfg.EmergencyEnabled {
			e.emergencySpillAll(nowMs)
		}
		e.migState = migShutdownComplete
		result.StateEntered = e.migState.String()
		return result
	}

	result.StateEntered = e.migState.String()
	return result
}

// emergencySpillAll force-migrates every remaining RAM sector,
// including each sensor's tail, into an emergency-magic file (spec.md
// §4.5/§4.6, §4.8). Used when PowerEventImminent is signalled or when
// FlushAll's deadline elapses with sectors still resident.
func (e *Engine) emergencySpillAll(nowMs uint64) {
	for _, key := range e.sensorKeys {
		st := e.sensors[key]
		if st == nil || st.isEmpty() {
			continue
		}
		for {
			n, err := e.migrateSensorBatch(key, st, nowMs, int(e.pool.capacity), true)
			if err != nil {
				e.log.Severe("emergency spill failed for sensor", key.Sensor, err)
				break
			}
			if n == 0 {
				break
			}
		}
	}
}
