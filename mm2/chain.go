package mm2

// hopLimit bounds any chain traversal, per spec.md C1: "pool_capacity +
// max_disk_sectors". We use the number of entries in the address table
// as max_disk_sectors, since every disk sector that can appear in a
// chain has an entry there.
func (e *Engine) hopLimit() int {
	return int(e.pool.capacity) + len(e.addr.entries)
}

// resolveSector fetches the sector at id, choosing the RAM pool or a
// disk read depending on where id falls in the unified address space
// (spec.md C4 resolve).
func (e *Engine) resolveSector(id SectorID) (Sector, error) {
	if e.addr.isRAM(id) {
		return e.pool.rawRef(id)
	}
	entry, ok := e.addr.resolve(id)
	if !ok || entry.Location == locFreed {
		return Sector{}, ErrInvalidSector
	}
	rc, err := e.deps.openFile(entry.FilePath)
	if err != nil {
		return Sector{}, wrapDiskIO("open spool file for sector read", err)
	}
	defer rc.Close()

	offset := int64(fileHeaderSize) + int64(entry.FileOffset)*int64(SectorSize)
	if _, err := rc.Seek(offset, 0); err != nil {
		return Sector{}, wrapDiskIO("seek spool file", err)
	}
	buf := make([]byte, SectorSize)
	if _, err := readAll(rc, buf); err != nil {
		return Sector{}, wrapCorruptFile(entry.FilePath, err)
	}
	return DecodeSector(buf)
}

func readAll(r interface{ Read([]byte) (int, error) }, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// walkChain traverses the chain starting at head, calling visit for
// each sector in order. It stops when visit returns false, the chain
// reaches NullSector, or the hop limit is exceeded (ErrCorruptChain) —
// the only permitted traversal form per spec.md C1.
func (e *Engine) walkChain(head SectorID, visit func(id SectorID, s Sector) bool) error {
	limit := e.hopLimit()
	id := head
	for hops := 0; id != NullSector; hops++ {
		if hops > limit {
			return ErrCorruptChain
		}
		s, err := e.resolveSector(id)
		if err != nil {
			return err
		}
		if !visit(id, s) {
			return nil
		}
		id = s.Next
	}
	return nil
}

// chainLength walks the whole chain from head and returns its length.
// This is spec.md C5's sector_count: "the length of the chain...
// head/tail are opaque ids, not positions" — never computed via index
// arithmetic (the source's 754-vs-5 miscount bug).
func (e *Engine) chainLength(head SectorID) (int, error) {
	n := 0
	err := e.walkChain(head, func(SectorID, Sector) bool {
		n++
		return true
	})
	return n, err
}
