package mm2

import (
	"path/filepath"
	"strings"
)

// recover runs once at startup (spec.md §4.7 / C8): replay the journal
// to finish or undo whatever an unclean shutdown left mid-flight, then
// rescan every spool directory so the address table and file map match
// what is actually on disk — the journal and bbolt index are both
// durability accelerators, never the sole authority (SPEC_FULL.md §2).
func (e *Engine) recover() error {
	entries, err := readJournal(e.jrnl.path, e.deps)
	if err != nil {
		return err
	}
	e.replayJournal(entries)

	persisted, err := e.addr.loadAll()
	if err != nil {
		e.log.Warnln("addressing index unreadable, rebuilding from directory scan:", err)
		persisted = nil
	}
	for id, entry := range persisted {
		e.addr.registerRecovered(id, entry)
	}

	for _, src := range []UploadSource{Gateway, HostedDevice, BleDevice, CanDevice} {
		if err := e.rescanSourceDir(src); err != nil {
			return err
		}
	}

	return nil
}

// replayJournal resolves every incomplete entry left by an unclean
// shutdown: an unfinished CreateFile means the rename never happened,
// so the temp file is garbage and is removed; an unfinished DeleteFile
// means the unlink may or may not have completed, so it is retried
// (deleting an already-absent file is not an error here).
func (e *Engine) replayJournal(entries []JournalEntry) {
	for _, je := range entries {
		if je.Completed {
			continue
		}
		switch je.Op {
		case opCreateFile:
			if err := e.deps.remove(je.TempPath); err != nil {
				e.log.Warnln("recovery: cleanup of abandoned temp file failed (may not exist):", je.TempPath, err)
			}
		case opDeleteFile:
			if err := e.deps.remove(je.FinalPath); err != nil {
				e.log.Warnln("recovery: retry delete failed (may already be gone):", je.FinalPath, err)
			}
		}
	}
}

// rescanSourceDir walks one upload source's spool directory, validating
// every .dat file it finds. Files already present in e.files are
// skipped; anything else is opened and CRC-checked. At startup e.files
// is empty, so every spool file is re-read, and the LookupEntries
// loadAll restored are not matched against the files found.
func (e *Engine) rescanSourceDir(src UploadSource) error {
	dir := filepath.Join(e.cfg.SpoolRoot, src.String())
	names, err := e.deps.readDir(dir)
	if err != nil {
		return wrapDiskIO("scan spool directory", err)
	}

	known := make(map[string]bool, len(e.files))
	for path := range e.files {
		known[path] = true
	}

	for _, name := range names {
		if name == "corrupted" || !strings.HasSuffix(name, ".dat") {
			continue
		}
		path := filepath.Join(dir, name)
		if known[path] {
			continue
		}
		if err := e.recoverOneFile(src, path); err != nil {
			e.quarantineFile(src, path, err)
		}
	}
	return nil
}

// recoverOneFile validates one previously-unknown spool file and wires
// it into the engine's live state: a DiskFile entry, LookupEntrys for
// each of its sectors, and — since its sensor's RAM chain may not even
// exist yet this boot — a SensorState rebuilt from the file's header if
// needed, with the file appended as that sensor's chain tail.
func (e *Engine) recoverOneFile(src UploadSource, path string) error {
	header, sectors, err := readDiskFile(e.deps, path)
	if err != nil {
		return err
	}

	key := sourceSensor{Source: src, Sensor: header.SensorID}
	st, ok := e.sensors[key]
	if !ok {
		st = newSensorState(header.RecordKind, 0)
		e.sensors[key] = st
		e.sensorKeys = append(e.sensorKeys, key)
	}

	diskIDs := make([]SectorID, len(sectors))
	for i := range sectors {
		entry := LookupEntry{FilePath: path, FileOffset: uint32(i), SensorID: header.SensorID, CreatedUTCMs: header.FirstUTCMs}
		id := SectorID(e.addr.nextDiskID)
		e.addr.registerRecovered(id, entry)
		diskIDs[i] = id
	}
	for i, s := range sectors {
		if i+1 < len(diskIDs) {
			s.Next = diskIDs[i+1]
		}
		if err := e.addr.persist(diskIDs[i], LookupEntry{
			Location: locDisk, FilePath: path, FileOffset: uint32(i),
			SensorID: header.SensorID, CreatedUTCMs: header.FirstUTCMs,
		}); err != nil {
			return err
		}
	}

	df := DiskFile{Path: path, SensorID: header.SensorID, SectorCount: header.SectorCount, CreatedUTC: header.FirstUTCMs}
	e.files[path] = &df
	e.filesBySrc[key] = append(e.filesBySrc[key], path)

	if len(diskIDs) > 0 {
		if st.Head == NullSector {
			st.Head = diskIDs[0]
		}
		if st.Tail == NullSector {
			st.Tail = diskIDs[len(diskIDs)-1]
		}
		if st.ReadCursor.isNull() {
			st.ReadCursor = cursor{Sector: diskIDs[0], Index: 0}
		}
		st.SampleCountTotal += uint64(header.RecordCount)
	}
	return nil
}

// quarantineFile moves an unreadable spool file to <source>/corrupted/
// and records it for QuarantinedFiles() reporting (spec.md §4.7:
// "files failing validation are quarantined, not deleted").
func (e *Engine) quarantineFile(src UploadSource, path string, cause error) {
	e.log.Severe("quarantining unreadable spool file", path, cause)
	dest := filepath.Join(e.cfg.SpoolRoot, src.String(), "corrupted", filepath.Base(path))
	if err := e.deps.rename(path, dest); err != nil {
		e.log.Severe("failed to quarantine spool file, leaving in place", path, err)
		return
	}
	e.quarantined = append(e.quarantined, dest)
}
