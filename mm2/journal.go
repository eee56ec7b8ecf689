package mm2

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

// journalOp names the kind of in-progress file operation a JournalEntry
// records (spec.md C8).
type journalOp uint8

const (
	opCreateFile journalOp = iota
	opDeleteFile
)

// JournalEntry is one append-only recovery-journal record: a pending or
// completed file operation, replayed on startup to resolve anything an
// unclean shutdown left mid-flight.
type JournalEntry struct {
	Seq       uint64
	Op        journalOp
	TempPath  string
	FinalPath string
	UTCMs     uint64
	Completed bool
}

// journalMaxBytes caps the journal file before it rotates to `.1`
// (spec.md §4.7: "Journal file is capped; when full, rotate").
const journalMaxBytes = 4 << 20

// journal is the append-only recovery log: each entry is written as a
// fixed prefix (payload length + IEEE crc32) followed by the
// JSON-encoded entry, the same prefix+checksum+JSON shape as the
// teacher's stateChangePrefix/stateChange pair in writeaheadlog.go,
// narrowed from crypto.Hash to crc32 (DESIGN.md's domain-stack
// rationale: nothing in the retrieval pack motivates a cryptographic
// hash for a single file-operation journal).
type journal struct {
	path string
	deps dependencies
	f    syncFile
	size int64
	seq  uint64
}

// openJournal opens the recovery journal for append. It must not
// truncate: any entries a prior run left unreplayed are exactly what
// recover() needs to read back before this journal accepts new writes
// (callers read the journal via readJournal before relying on this
// handle for fresh appends).
func openJournal(path string, deps dependencies) (*journal, error) {
	f, err := deps.openForAppend(path)
	if err != nil {
		return nil, wrapDiskIO("open journal", err)
	}
	return &journal{path: path, deps: deps, f: f}, nil
}

// append writes one entry, assigning it the next sequence number.
func (j *journal) append(e JournalEntry) error {
	j.seq++
	e.Seq = j.seq
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("mm2: encode journal entry: %w", err)
	}
	var prefix [12]byte
	binary.LittleEndian.PutUint64(prefix[0:8], uint64(len(payload)))
	binary.LittleEndian.PutUint32(prefix[8:12], crc32.ChecksumIEEE(payload))
	if _, err := j.f.Write(prefix[:]); err != nil {
		return wrapDiskIO("write journal prefix", err)
	}
	if _, err := j.f.Write(payload); err != nil {
		return wrapDiskIO("write journal entry", err)
	}
	if err := j.f.Sync(); err != nil {
		return wrapDiskIO("sync journal", err)
	}
	j.size += int64(len(prefix)) + int64(len(payload))
	if j.size >= journalMaxBytes {
		return j.rotate()
	}
	return nil
}

// rotate renames the current journal to <path>.1 (overwriting any
// previous rotation) and starts a fresh, empty journal file.
func (j *journal) rotate() error {
	if err := j.f.Close(); err != nil {
		return wrapDiskIO("close journal before rotate", err)
	}
	rotated := j.path + ".1"
	_ = j.deps.remove(rotated)
	if err := j.deps.rename(j.path, rotated); err != nil {
		return wrapDiskIO("rotate journal", err)
	}
	f, err := j.deps.createFile(j.path)
	if err != nil {
		return wrapDiskIO("recreate journal", err)
	}
	j.f = f
	j.size = 0
	return nil
}

func (j *journal) close() error {
	return j.f.Close()
}

// readJournal replays every entry from path in order. A truncated or
// corrupt trailing record (the tail end of an unclean shutdown) is
// dropped silently rather than failing the whole replay — spec.md §4.7:
// "Corrupt journal is non-fatal — delete and continue" generalizes to
// "corrupt tail, keep the valid prefix".
func readJournal(path string, deps dependencies) ([]JournalEntry, error) {
	rc, err := deps.openFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDiskIO("open journal for replay", err)
	}
	defer rc.Close()

	r := bufio.NewReader(rc)
	var entries []JournalEntry
	for {
		var prefix [12]byte
		if _, err := io.ReadFull(r, prefix[:]); err != nil {
			break
		}
		length := binary.LittleEndian.Uint64(prefix[0:8])
		wantCRC := binary.LittleEndian.Uint32(prefix[8:12])
		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			break
		}
		if crc32.ChecksumIEEE(payload) != wantCRC {
			break
		}
		var e JournalEntry
		if err := json.Unmarshal(payload, &e); err != nil {
			break
		}
		entries = append(entries, e)
	}
	return entries, nil
}
