package mm2

import (
	"fmt"

	"github.com/greg-phillips/mm2/internal/xerr"
)

// Config enumerates every engine knob. There are no hidden knobs: a
// behavior not controlled by a field here is not configurable (spec.md
// §6).
type Config struct {
	// PoolCapacity is the number of fixed-size sectors in the RAM arena.
	PoolCapacity uint32
	// SpoolRoot is the directory the engine owns exclusively for
	// <source>/*.dat files, <source>/corrupted/, and recovery.journal.
	SpoolRoot string

	// SpillHighPct is the pool usage percentage at or above which the
	// migration engine enters MoveToDisk.
	SpillHighPct uint8
	// DiskAcceptablePct is the disk quota usage percentage that must
	// hold below itself for CheckUsage to allow a spill to proceed.
	DiskAcceptablePct uint8
	// DiskQuotaBytes bounds total spool directory size; 0 means
	// host-controlled (no quota enforced by the engine itself).
	DiskQuotaBytes uint64

	// ShutdownDeadlineMs is the default deadline passed to Shutdown
	// when the caller does not override it.
	ShutdownDeadlineMs uint32

	// MaxBatchTSD / MaxBatchEVT bound how many sectors a single
	// migration-engine batch moves per tick, per sensor.
	MaxBatchTSD uint8
	MaxBatchEVT uint8

	// EmergencyEnabled controls whether emergency-magic spill files are
	// written: by PowerEventImminent for every RAM sector, and by
	// FlushAll for sectors still in RAM when its tick budget runs out.
	EmergencyEnabled bool
}

// DefaultConfig returns the spec-mandated defaults (spec.md §6),
// scaled down under xerr.ReleaseTesting the way the teacher's consts.go
// scales storage-folder limits for test builds.
func DefaultConfig() Config {
	c := Config{
		PoolCapacity:       2048,
		SpoolRoot:          "/var/lib/mm2",
		SpillHighPct:       80,
		DiskAcceptablePct:  80,
		DiskQuotaBytes:     0,
		ShutdownDeadlineMs: 10_000,
		MaxBatchTSD:        6,
		MaxBatchEVT:        3,
		EmergencyEnabled:   true,
	}
	if xerr.Release == xerr.ReleaseTesting {
		c.PoolCapacity = 64
		c.ShutdownDeadlineMs = 200
	}
	return c
}

// Validate rejects configurations that would make the engine's
// invariants unsatisfiable from the start.
func (c Config) Validate() error {
	if c.PoolCapacity == 0 {
		return fmt.Errorf("mm2: pool_capacity must be > 0")
	}
	if c.SpoolRoot == "" {
		return fmt.Errorf("mm2: spool_root must be set")
	}
	if c.SpillHighPct == 0 || c.SpillHighPct > 100 {
		return fmt.Errorf("mm2: spill_high_pct must be in (0, 100]")
	}
	if c.DiskAcceptablePct == 0 || c.DiskAcceptablePct > 100 {
		return fmt.Errorf("mm2: disk_acceptable_pct must be in (0, 100]")
	}
	if c.MaxBatchTSD == 0 || c.MaxBatchEVT == 0 {
		return fmt.Errorf("mm2: max_batch_tsd and max_batch_evt must be > 0")
	}
	return nil
}
