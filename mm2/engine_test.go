package mm2

import (
	"os"
	"testing"
)

// engineTester bundles an Engine under test with its mock dependencies
// and temp spool directory, mirroring the teacher's
// storageManagerTester (contractmanager_test.go): a constructor plus a
// handful of small helper methods shared across the package's test
// files.
type engineTester struct {
	t    *testing.T
	e    *Engine
	deps *mockDependencies
	dir  string
}

func newEngineTester(t *testing.T, configure func(*Config)) *engineTester {
	t.Helper()
	dir, err := os.MkdirTemp("", "mm2test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := DefaultConfig()
	cfg.PoolCapacity = 16
	cfg.SpoolRoot = dir
	cfg.ShutdownDeadlineMs = 3000
	cfg.SpillHighPct = 75
	cfg.DiskAcceptablePct = 90
	if configure != nil {
		configure(&cfg)
	}

	deps := newMockDependencies()
	e, err := newEngine(cfg, deps)
	if err != nil {
		t.Fatal(err)
	}
	return &engineTester{t: t, e: e, deps: deps, dir: dir}
}

// configureTSD registers and activates a TSD sensor.
func (et *engineTester) configureTSD(src UploadSource, sensor uint32, sampleRateMs uint32) {
	et.t.Helper()
	if err := et.e.ConfigureSensor(src, sensor, KindTSD, sampleRateMs); err != nil {
		et.t.Fatal(err)
	}
}

// configureEVT registers and activates an EVT sensor.
func (et *engineTester) configureEVT(src UploadSource, sensor uint32) {
	et.t.Helper()
	if err := et.e.ConfigureSensor(src, sensor, KindEVT, 0); err != nil {
		et.t.Fatal(err)
	}
}

func (et *engineTester) state(src UploadSource, sensor uint32) *sensorState {
	return et.e.sensors[sourceSensor{Source: src, Sensor: sensor}]
}
