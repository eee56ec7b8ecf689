package mm2

// sensorState is the per-(upload_source, sensor) bookkeeping of
// spec.md C3. It mixes durable configuration (Kind, SampleRateMs,
// Active) with chain endpoints and runtime counters, the same split the
// teacher's storageFolder struct draws between persisted fields
// (index, path, usage) and hot runtime atomics (atomicFailedReads).
type sensorState struct {
	Kind         RecordKind
	SampleRateMs uint32 // 0 => EVT, per spec.md C3
	Active       bool

	Head SectorID
	Tail SectorID

	ReadCursor    cursor
	PendingCursor cursor

	SampleCountTotal   uint64
	SampleCountPending uint32
	SampleCountNew     uint32

	// tailFillCount is how many of the tail sector's slots are used;
	// mirrors Sector.Count for the sector currently being written.
	tailFillCount uint8
}

func newSensorState(kind RecordKind, sampleRateMs uint32) *sensorState {
	return &sensorState{
		Kind:          kind,
		SampleRateMs:  sampleRateMs,
		Active:        true,
		Head:          NullSector,
		Tail:          NullSector,
		ReadCursor:    nullCursor,
		PendingCursor: nullCursor,
	}
}

func (s *sensorState) maxFill() int {
	if s.Kind == KindTSD {
		return tsdMaxSamples
	}
	return evtMaxPairs
}

func (s *sensorState) isEmpty() bool { return s.Head == NullSector }

// hasPending reports whether any records are outstanding between
// pending_cursor and read_cursor, including disk-only pending (spec.md
// C10 has_pending).
func (s *sensorState) hasPending() bool { return s.SampleCountPending > 0 }
