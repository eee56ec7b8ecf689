package mm2

import "testing"

// linkChain writes n allocated RAM sectors in sequence via the pool
// directly (bypassing WriteTSD) so chain tests can shape chains
// precisely, including corrupt ones.
func linkChain(t *testing.T, p *sectorPool, owner sourceSensor, n int) []SectorID {
	t.Helper()
	ids := make([]SectorID, n)
	for i := 0; i < n; i++ {
		id, err := p.allocate(owner)
		if err != nil {
			t.Fatal(err)
		}
		ids[i] = id
	}
	for i := 0; i < n; i++ {
		sec, _ := p.rawRef(ids[i])
		sec.Count = 1
		if i+1 < n {
			sec.Next = ids[i+1]
		} else {
			sec.Next = NullSector
		}
		if err := p.rawMut(ids[i], sec); err != nil {
			t.Fatal(err)
		}
	}
	return ids
}

// TestChainLengthIsTrueLength is the regression test for the source's
// 754-vs-5 miscount bug (spec.md §8): sector_count must equal the
// number of sectors actually visited by walking Next pointers, never a
// computation derived from head/tail addresses.
func TestChainLengthIsTrueLength(t *testing.T) {
	et := newEngineTester(t, nil)
	owner := sourceSensor{Source: Gateway, Sensor: 1}
	ids := linkChain(t, et.e.pool, owner, 5)

	n, err := et.e.chainLength(ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Fatalf("chainLength = %d, want 5", n)
	}
}

// TestWalkChainDetectsCycle checks a corrupted Next pointer forming a
// cycle is caught by the hop limit rather than looping forever
// (spec.md C1: "a length-counted traversal is the only permitted
// form").
func TestWalkChainDetectsCycle(t *testing.T) {
	et := newEngineTester(t, nil)
	owner := sourceSensor{Source: Gateway, Sensor: 1}
	ids := linkChain(t, et.e.pool, owner, 3)

	// Corrupt the chain into a cycle: last sector points back to the first.
	last, _ := et.e.pool.rawRef(ids[2])
	last.Next = ids[0]
	if err := et.e.pool.rawMut(ids[2], last); err != nil {
		t.Fatal(err)
	}

	if _, err := et.e.chainLength(ids[0]); err != ErrCorruptChain {
		t.Fatalf("err = %v, want ErrCorruptChain", err)
	}
}

func TestResolveSectorInvalidID(t *testing.T) {
	et := newEngineTester(t, nil)
	if _, err := et.e.resolveSector(SectorID(999)); err != ErrInvalidSector {
		t.Fatalf("err = %v, want ErrInvalidSector", err)
	}
}
