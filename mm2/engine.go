package mm2

import (
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/greg-phillips/mm2/internal/threadgroup"
	"github.com/greg-phillips/mm2/internal/xerr"
	"github.com/greg-phillips/mm2/internal/xlog"
)

// gpsConfig binds four sensor ids to the GPS fields write_event_with_gps
// co-writes alongside its primary event (spec.md C10).
type gpsConfig struct {
	LatEntry uint16
	LonEntry uint16
	AltEntry uint16
	SpdEntry uint16
}

func (g gpsConfig) entries() []uint16 {
	return []uint16{g.LatEntry, g.LonEntry, g.AltEntry, g.SpdEntry}
}

// Engine is the single owning value of spec.md §9's "one engine per
// process": a RAM sector pool, the unified address space, per-sensor
// state, the migration state machine, and the recovery journal, all
// guarded by one mutex (spec.md §5: "a single global engine mutex
// guards all engine state").
type Engine struct {
	cfg  Config
	deps dependencies
	log  *xlog.Logger
	tg   threadgroup.ThreadGroup

	bootSessionID uuid.UUID

	mu sync.Mutex

	pool *sectorPool
	addr *addressTable
	db   *bolt.DB

	sensors    map[sourceSensor]*sensorState
	sensorKeys []sourceSensor // stable order for round-robin migration

	gps map[UploadSource]gpsConfig

	files      map[string]*DiskFile
	filesBySrc map[sourceSensor][]string

	jrnl *journal

	migState            migState
	migSensorCursor     int
	migShutdownReq      bool
	migFlushTicksLeft   int
	migFilesCreated     uint64
	migFilesDeleted     uint64
	migSectorsMigrated  uint64

	quarantined []string
}

// TickResult is the public tick() return value (SPEC_FULL.md §3's
// "supplemented feature": the distilled spec's tick() shape is
// expanded with enough detail that the host main loop can log progress
// without polling Stats() separately every second).
type TickResult struct {
	StateEntered    string
	SectorsMigrated int
	FilesDeleted    int
	FilesCreated    int
	JournalRotated  bool
}

func (s migState) String() string {
	switch s {
	case migIdle:
		return "Idle"
	case migCheckUsage:
		return "CheckUsage"
	case migMoveToDisk:
		return "MoveToDisk"
	case migCleanupDisk:
		return "CleanupDisk"
	case migFlushAll:
		return "FlushAll"
	case migShutdownComplete:
		return "ShutdownComplete"
	default:
		return "Unknown"
	}
}

// migState is the migration engine's state machine (spec.md C6).
type migState uint8

const (
	migIdle migState = iota
	migCheckUsage
	migMoveToDisk
	migCleanupDisk
	migFlushAll
	migShutdownComplete
)

// New constructs an Engine, opening (or creating) its bbolt index and
// recovery journal under cfg.SpoolRoot, then running the C8 recovery
// procedure (spec.md §4.7) before returning.
func New(cfg Config) (*Engine, error) {
	return newEngine(cfg, productionDependencies{})
}

func newEngine(cfg Config, deps dependencies) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := deps.mkdirAll(cfg.SpoolRoot, 0755); err != nil {
		return nil, wrapDiskIO("create spool root", err)
	}
	for _, src := range []UploadSource{Gateway, HostedDevice, BleDevice, CanDevice} {
		if err := deps.mkdirAll(filepath.Join(cfg.SpoolRoot, src.String()), 0755); err != nil {
			return nil, wrapDiskIO("create source directory", err)
		}
		if err := deps.mkdirAll(filepath.Join(cfg.SpoolRoot, src.String(), "corrupted"), 0755); err != nil {
			return nil, wrapDiskIO("create corrupted directory", err)
		}
	}

	logger, err := deps.newLogger(filepath.Join(cfg.SpoolRoot, "mm2.log"))
	if err != nil {
		logger = xlog.Discard()
	}

	db, err := bolt.Open(filepath.Join(cfg.SpoolRoot, "mm2-index.db"), 0644, nil)
	if err != nil {
		logger.Warnln("bbolt index unavailable, falling back to directory rescan only:", err)
		db = nil
	}

	addr, err := newAddressTable(cfg.PoolCapacity, db)
	if err != nil {
		return nil, err
	}

	jrnl, err := openJournal(filepath.Join(cfg.SpoolRoot, "recovery.journal"), deps)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:           cfg,
		deps:          deps,
		log:           logger,
		bootSessionID: uuid.New(),
		pool:          newSectorPool(cfg.PoolCapacity),
		addr:          addr,
		db:            db,
		sensors:       make(map[sourceSensor]*sensorState),
		gps:           make(map[UploadSource]gpsConfig),
		files:         make(map[string]*DiskFile),
		filesBySrc:    make(map[sourceSensor][]string),
		jrnl:          jrnl,
	}

	if err := e.recover(); err != nil {
		return nil, err
	}

	e.log.Println("engine started, boot session", e.bootSessionID.String())
	return e, nil
}

func (e *Engine) lock()   { e.mu.Lock() }
func (e *Engine) unlock() { e.mu.Unlock() }

// ConfigureSensor registers a (src, sensor) pair for writing, creating
// its SensorState if absent (spec.md §6 configure_sensor).
func (e *Engine) ConfigureSensor(src UploadSource, sensor uint32, kind RecordKind, sampleRateMs uint32) error {
	if err := e.tg.Add(); err != nil {
		return ErrShutdownInProgress
	}
	defer e.tg.Done()
	e.lock()
	defer e.unlock()

	key := sourceSensor{Source: src, Sensor: sensor}
	if _, ok := e.sensors[key]; ok {
		return nil
	}
	e.sensors[key] = newSensorState(kind, sampleRateMs)
	e.sensorKeys = append(e.sensorKeys, key)
	return nil
}

// ActivateSensor / DeactivateSensor toggle whether writes are accepted.
func (e *Engine) ActivateSensor(src UploadSource, sensor uint32) error {
	return e.setActive(src, sensor, true)
}

func (e *Engine) DeactivateSensor(src UploadSource, sensor uint32) error {
	return e.setActive(src, sensor, false)
}

func (e *Engine) setActive(src UploadSource, sensor uint32, active bool) error {
	e.lock()
	defer e.unlock()
	st, ok := e.sensors[sourceSensor{Source: src, Sensor: sensor}]
	if !ok {
		return ErrInvalidSensor
	}
	st.Active = active
	return nil
}

// InitGPSConfig binds the four GPS-field sensor ids for src (spec.md
// C10). Any entry equal to InvalidSensorEntry disables that field.
func (e *Engine) InitGPSConfig(src UploadSource, latEntry, lonEntry, altEntry, spdEntry uint16) {
	e.lock()
	defer e.unlock()
	e.gps[src] = gpsConfig{LatEntry: latEntry, LonEntry: lonEntry, AltEntry: altEntry, SpdEntry: spdEntry}
}

func (e *Engine) getSensor(src UploadSource, sensor uint32) (*sensorState, error) {
	st, ok := e.sensors[sourceSensor{Source: src, Sensor: sensor}]
	if !ok || !st.Active {
		return nil, ErrInvalidSensor
	}
	return st, nil
}

// criticalf reports a broken internal invariant via xerr.Critical,
// matching the teacher's build.Critical call sites on "this should
// never happen" branches.
func criticalf(msg string, v ...interface{}) {
	args := append([]interface{}{msg}, v...)
	xerr.Critical(args...)
}
