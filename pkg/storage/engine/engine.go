// Package engine owns the storage-engine singleton: selecting and opening
// the underlying key-value store, and persisting that choice to an ENGINE
// marker file so a restart with a different configured engine fails fast
// instead of silently reinterpreting existing data.
package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/nexusdb/pkg/log"
)

// Name identifies a storage-engine implementation. nexusdb carries a single
// implementation (bbolt-backed, log-structured-like in its append-only
// freelist/mmap model) but the marker-file contract is engine-name-agnostic
// so a second backend could be added without touching existing data
// directories.
type Name string

const (
	// Bolt is the default and only engine nexusdb currently ships.
	Bolt Name = "bolt"

	markerFile = "ENGINE"
)

// lifecycle states, enforced by the package-level singleton below.
type lifecycle int

const (
	lifecycleUnselected lifecycle = iota
	lifecycleSelected
	lifecycleServing
	lifecycleShutdown
)

// Engine is the process-wide storage-engine handle. Engine selection must
// complete before any collection is opened; never allow re-selection after
// serving starts.
type Engine struct {
	mu        sync.Mutex
	state     lifecycle
	name      Name
	dataDir   string
	db        *bolt.DB
}

var (
	singleton     *Engine
	singletonOnce sync.Once
)

// Select opens (or initializes) the singleton engine rooted at dataDir. It
// reads the ENGINE marker file if present and requires it to match name;
// otherwise it writes the marker. Calling Select after Serve has been
// called on the same process is a programming error and returns an error
// rather than silently reopening.
func Select(dataDir string, name Name) (*Engine, error) {
	e := getSingleton()
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != lifecycleUnselected {
		return nil, fmt.Errorf("engine: already selected (state=%d); re-selection after serving start is forbidden", e.state)
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: creating data directory: %w", err)
	}

	markerPath := filepath.Join(dataDir, markerFile)
	existing, err := os.ReadFile(markerPath)
	switch {
	case err == nil:
		got := Name(strings.TrimSpace(string(existing)))
		if got != name {
			return nil, fmt.Errorf("engine: data directory was initialized with engine %q, configured engine is %q", got, name)
		}
	case os.IsNotExist(err):
		if werr := os.WriteFile(markerPath, []byte(string(name)+"\n"), 0o644); werr != nil {
			return nil, fmt.Errorf("engine: writing engine marker: %w", werr)
		}
	default:
		return nil, fmt.Errorf("engine: reading engine marker: %w", err)
	}

	db, err := bolt.Open(filepath.Join(dataDir, "nexusdb.db"), 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("engine: opening store: %w", err)
	}

	e.name = name
	e.dataDir = dataDir
	e.db = db
	e.state = lifecycleSelected
	log.WithComponent("engine").Info().Str("engine", string(name)).Str("data_dir", dataDir).Msg("storage engine selected")
	return e, nil
}

func getSingleton() *Engine {
	singletonOnce.Do(func() { singleton = &Engine{} })
	return singleton
}

// Serve transitions the engine from selected to serving; collections may
// only be opened once this has been called.
func (e *Engine) Serve() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != lifecycleSelected {
		return fmt.Errorf("engine: cannot serve from state %d", e.state)
	}
	e.state = lifecycleServing
	return nil
}

// DB returns the underlying bbolt handle. Valid once Select has succeeded.
func (e *Engine) DB() *bolt.DB {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.db
}

// Name returns the selected engine name.
func (e *Engine) Name() Name {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.name
}

// Shutdown closes the underlying store and marks the engine shut down.
// Re-selection is still forbidden afterward: a process that wants a fresh
// engine must restart.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.state = lifecycleShutdown
	log.WithComponent("engine").Info().Msg("storage engine shut down")
	return err
}

// resetForTest clears the process-wide singleton so package tests can
// exercise Select's marker-file logic in isolation. Exported only to _test
// files in this package via the lowercase name + same-package visibility.
func resetForTest() {
	singletonOnce = sync.Once{}
	singleton = nil
}
