package mm2

import (
	"io"
	"os"

	"github.com/greg-phillips/mm2/internal/xlog"
)

// dependencies defines every external-world call the engine makes,
// mirroring the teacher's contractmanager/dependencies.go pattern: each
// is the minimum subset of the real dependency needed, so tests can
// substitute a mock that injects named faults at fixed points. There is
// no clock dependency: callers pass the current time in explicitly.
type dependencies interface {
	// createFile creates (or truncates) a file for writing.
	createFile(path string) (syncFile, error)
	// openForAppend opens a file for append, creating it if absent,
	// without truncating any existing content — the recovery journal
	// must never lose entries a prior run wrote but never got to
	// replay (spec.md §4.7).
	openForAppend(path string) (syncFile, error)
	// openFile opens an existing file read-only, seekable so callers can
	// read a single sector out of a file without loading the whole thing
	// (spec.md §4.4: "open-seek-read-close per call").
	openFile(path string) (seekReadCloser, error)
	// mkdirAll creates a chain of directories.
	mkdirAll(path string, perm os.FileMode) error
	// rename performs an atomic rename within the same filesystem.
	rename(oldpath, newpath string) error
	// remove deletes a file.
	remove(path string) error
	// syncDir fsyncs a directory so a prior rename is durable.
	syncDir(path string) error
	// readDir lists directory entry names (not full paths).
	readDir(path string) ([]string, error)
	// exists reports whether path names an existing file.
	exists(path string) bool
	// newLogger creates the engine's file-backed logger.
	newLogger(path string) (*xlog.Logger, error)
	// disrupt is the fault-injection hook: production code never
	// returns true; tests key specific strings to force specific
	// failure points (e.g. "crashAfterRename" for the power-loss
	// recovery scenario, spec.md §8 scenario 5).
	disrupt(string) bool
}

// syncFile is the subset of *os.File the atomic writer (diskfile.go)
// needs.
type syncFile interface {
	io.WriteCloser
	Sync() error
}

// seekReadCloser is the subset of *os.File single-sector disk reads
// need (chain.go's resolveSector, diskfile.go's readDiskFile).
type seekReadCloser interface {
	io.ReadCloser
	io.Seeker
}

// productionDependencies implements dependencies against the real
// operating system.
type productionDependencies struct{}

func (productionDependencies) createFile(path string) (syncFile, error) {
	return os.Create(path)
}

func (productionDependencies) openForAppend(path string) (syncFile, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

func (productionDependencies) openFile(path string) (seekReadCloser, error) {
	return os.Open(path)
}

func (productionDependencies) mkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (productionDependencies) rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

func (productionDependencies) remove(path string) error {
	return os.Remove(path)
}

func (productionDependencies) syncDir(path string) error {
	d, err := os.Open(path)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

func (productionDependencies) readDir(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (productionDependencies) newLogger(path string) (*xlog.Logger, error) {
	return xlog.New(path)
}

func (productionDependencies) exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (productionDependencies) disrupt(string) bool { return false }

// mockDependencies wraps productionDependencies but lets tests trigger
// specific named faults, the same role the
// teacher's dependencyXxx mock types play in contractmanager's test
// files.
type mockDependencies struct {
	productionDependencies
	disruptions map[string]bool
}

func newMockDependencies() *mockDependencies {
	return &mockDependencies{disruptions: make(map[string]bool)}
}

// fail arms a named disruption point so the next disrupt(name) call
// (and every subsequent one) returns true.
func (m *mockDependencies) fail(name string) {
	m.disruptions[name] = true
}

func (m *mockDependencies) disrupt(name string) bool {
	return m.disruptions[name]
}
