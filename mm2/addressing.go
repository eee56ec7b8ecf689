package mm2

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// location is where a disk-resident sector currently lives.
type location uint8

const (
	locRAM location = iota
	locDisk
	locFreed
)

// LookupEntry exists for every disk sector (spec.md C4). RAM sectors
// never get an entry; their location is implicit in SectorID < capacity.
type LookupEntry struct {
	Location     location
	FilePath     string
	FileOffset   uint32
	SensorID     uint32
	CreatedUTCMs uint64
}

var addressingBucket = []byte("addressing")

// addressTable is the unified 32-bit address space: ids below capacity
// resolve straight into the RAM pool; ids at or above it are disk
// sectors, assigned monotonically and never reused within a boot
// session (spec.md C4). The in-memory map is authoritative for the
// running process; bbolt is a durability cache whose entries recover()
// restores on startup (SPEC_FULL.md §1/§2). The restored entries do not
// spare the directory scan: recover() still re-reads every spool file.
type addressTable struct {
	capacity   uint32
	nextDiskID uint32
	entries    map[SectorID]*LookupEntry
	db         *bolt.DB
}

func newAddressTable(capacity uint32, db *bolt.DB) (*addressTable, error) {
	if db != nil {
		if err := db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(addressingBucket)
			return err
		}); err != nil {
			return nil, wrapDiskIO("create addressing bucket", err)
		}
	}
	return &addressTable{
		capacity:   capacity,
		nextDiskID: capacity,
		entries:    make(map[SectorID]*LookupEntry),
		db:         db,
	}, nil
}

func (a *addressTable) isRAM(id SectorID) bool { return uint32(id) < a.capacity }

// allocateDiskID assigns the next monotonic disk SectorID to entry,
// persists it, and registers it in the in-memory table.
func (a *addressTable) allocateDiskID(entry LookupEntry) (SectorID, error) {
	id := SectorID(a.nextDiskID)
	a.nextDiskID++
	entry.Location = locDisk
	cp := entry
	a.entries[id] = &cp
	if err := a.persist(id, cp); err != nil {
		return NullSector, err
	}
	return id, nil
}

// registerRecovered installs a LookupEntry discovered during journal
// replay/directory scan without advancing nextDiskID past what it
// already covers (the caller ensures ids are assigned in scan order).
func (a *addressTable) registerRecovered(id SectorID, entry LookupEntry) {
	cp := entry
	a.entries[id] = &cp
	if uint32(id)+1 > a.nextDiskID {
		a.nextDiskID = uint32(id) + 1
	}
}

func (a *addressTable) resolve(id SectorID) (*LookupEntry, bool) {
	e, ok := a.entries[id]
	return e, ok
}

// markFreed transitions a disk sector to locFreed; the owning DiskFile
// tracks free_count (diskfile.go) and decides when to delete itself.
func (a *addressTable) markFreed(id SectorID) error {
	e, ok := a.entries[id]
	if !ok {
		return ErrInvalidSector
	}
	e.Location = locFreed
	return a.persist(id, *e)
}

func (a *addressTable) persist(id SectorID, e LookupEntry) error {
	if a.db == nil {
		return nil
	}
	buf, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("mm2: encode lookup entry: %w", err)
	}
	var key [4]byte
	binary.BigEndian.PutUint32(key[:], uint32(id))
	err = a.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(addressingBucket).Put(key[:], buf)
	})
	return wrapDiskIO("persist lookup entry", err)
}

// loadAll restores every persisted LookupEntry, used by recover()
// (recovery.go) to repopulate the table before the directory scan.
func (a *addressTable) loadAll() (map[SectorID]LookupEntry, error) {
	out := make(map[SectorID]LookupEntry)
	if a.db == nil {
		return out, nil
	}
	err := a.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(addressingBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if len(k) != 4 {
				return nil
			}
			id := SectorID(binary.BigEndian.Uint32(k))
			var e LookupEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("mm2: decode lookup entry %d: %w", id, err)
			}
			out[id] = e
			return nil
		})
	})
	if err != nil {
		return nil, wrapDiskIO("load addressing table", err)
	}
	return out, nil
}
