package mm2

import "testing"

// TestPoolAllocateDeterministicLowestIndex checks the bitmap scan
// always returns the lowest free index rather than the teacher's
// random scan (spec.md C1's explicit reproducibility requirement).
func TestPoolAllocateDeterministicLowestIndex(t *testing.T) {
	p := newSectorPool(8)
	owner := sourceSensor{Source: Gateway, Sensor: 1}

	var ids []SectorID
	for i := 0; i < 4; i++ {
		id, err := p.allocate(owner)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	for i, id := range ids {
		if int(id) != i {
			t.Fatalf("allocation %d returned id %d, want %d (non-deterministic scan order)", i, id, i)
		}
	}

	// Freeing the middle allocation must make its index the next one
	// handed out, not the next-highest unused index.
	p.free(ids[1])
	reused, err := p.allocate(owner)
	if err != nil {
		t.Fatal(err)
	}
	if reused != ids[1] {
		t.Fatalf("reallocated id = %d, want %d (the freed, lowest index)", reused, ids[1])
	}
}

func TestPoolExhaustion(t *testing.T) {
	p := newSectorPool(4)
	owner := sourceSensor{Source: Gateway, Sensor: 1}
	for i := 0; i < 4; i++ {
		if _, err := p.allocate(owner); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := p.allocate(owner); err != ErrPoolExhausted {
		t.Fatalf("err = %v, want ErrPoolExhausted", err)
	}
	stats := p.stats()
	if stats.FailedAllocs != 1 {
		t.Fatalf("FailedAllocs = %d, want 1", stats.FailedAllocs)
	}
	if stats.Used != 4 || stats.Free != 0 {
		t.Fatalf("stats = %+v, want Used=4 Free=0", stats)
	}
}

func TestPoolFreeIsIdempotent(t *testing.T) {
	p := newSectorPool(4)
	owner := sourceSensor{Source: Gateway, Sensor: 1}
	id, err := p.allocate(owner)
	if err != nil {
		t.Fatal(err)
	}
	p.free(id)
	p.free(id) // must not panic or double-decrement Used
	p.free(SectorID(99)) // out of range, must not panic
	if p.used != 0 {
		t.Fatalf("used = %d, want 0", p.used)
	}
}

func TestPoolRawRefRejectsFreeSector(t *testing.T) {
	p := newSectorPool(2)
	if _, err := p.rawRef(0); err != ErrInvalidSector {
		t.Fatalf("err = %v, want ErrInvalidSector for an unallocated sector", err)
	}
}

func TestPoolPeakUsedTracksHighWaterMark(t *testing.T) {
	p := newSectorPool(4)
	owner := sourceSensor{Source: Gateway, Sensor: 1}
	a, _ := p.allocate(owner)
	_, _ = p.allocate(owner)
	p.free(a)
	if p.stats().PeakUsed != 2 {
		t.Fatalf("PeakUsed = %d, want 2 (freeing must not lower the high-water mark)", p.stats().PeakUsed)
	}
}
