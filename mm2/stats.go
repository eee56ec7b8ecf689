package mm2

// Stats is a point-in-time snapshot of engine-wide and per-sensor state
// (SPEC_FULL.md §3's supplemented feature: the distilled spec names
// per-sensor counters individually but never a single aggregate view,
// which every engine of this kind ends up needing for its own
// diagnostics endpoint — modeled on the teacher's contractmanager
// ContractorSpending-style rollup).
type Stats struct {
	Pool        poolStats
	DiskUsedPct int
	MigState    string
	FilesOpen   int
	Sensors     map[SourceSensorKey]SensorStats
}

// SourceSensorKey is the exported, comparable identity of a (upload
// source, sensor id) pair, used only at the Stats API boundary so
// callers outside the package can index a map without reaching into
// unexported fields.
type SourceSensorKey struct {
	Source UploadSource
	Sensor uint32
}

// SensorStats is one sensor's slice of a Stats snapshot.
type SensorStats struct {
	Kind               RecordKind
	Active             bool
	SampleCountTotal   uint64
	SampleCountNew     uint32
	SampleCountPending uint32
	HasPending         bool
}

// Stats returns a consistent snapshot of every configured sensor plus
// pool/disk/migration-engine totals.
func (e *Engine) Stats() Stats {
	e.lock()
	defer e.unlock()

	sensors := make(map[SourceSensorKey]SensorStats, len(e.sensors))
	for key, st := range e.sensors {
		sensors[SourceSensorKey{Source: key.Source, Sensor: key.Sensor}] = SensorStats{
			Kind:               st.Kind,
			Active:             st.Active,
			SampleCountTotal:   st.SampleCountTotal,
			SampleCountNew:     st.SampleCountNew,
			SampleCountPending: st.SampleCountPending,
			HasPending:         st.hasPending(),
		}
	}

	return Stats{
		Pool:        e.pool.stats(),
		DiskUsedPct: e.diskUsagePct(),
		MigState:    e.migState.String(),
		FilesOpen:   len(e.files),
		Sensors:     sensors,
	}
}

// QuarantinedFiles lists spool files recovery found unreadable and
// moved aside into <source>/corrupted/ rather than deleting (spec.md
// §4.7).
func (e *Engine) QuarantinedFiles() []string {
	e.lock()
	defer e.unlock()
	out := make([]string, len(e.quarantined))
	copy(out, e.quarantined)
	return out
}
