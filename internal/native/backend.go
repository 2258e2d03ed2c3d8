package native

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/vk/madxbind/internal/errdefs"
)

// Backend is the process-global engine state behind a driver. Methods are
// called from a single goroutine; a Backend is never used concurrently.
//
// The record graphs returned by the accessor methods belong to the engine
// and stay valid only until the next call to Input, Evaluate or Finish.
type Backend interface {
	// Start initialises the engine's global state.
	Start(ctx context.Context) error
	// Finish tears the global state down.
	Finish(ctx context.Context) error
	// Input hands a chunk of command text to the engine's interpreter.
	Input(ctx context.Context, text CString) error
	// Evaluate parses and evaluates a single expression.
	Evaluate(ctx context.Context, expr CString) (float64, error)

	Sequences() *SequenceList
	// CurrentSequence returns the active sequence, or nil if none is active.
	CurrentSequence() *Sequence
	Tables() *TableList
	Commands() *CommandList
}

// Factory creates a fresh Backend.
type Factory func() Backend

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Factory)
)

// Register makes a backend available under name. It panics if the name is
// taken or the factory is nil; registration happens from init functions.
func Register(name string, f Factory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if f == nil {
		panic("native: Register factory is nil")
	}
	if _, exists := drivers[name]; exists {
		panic(fmt.Sprintf("native: backend with name '%s' already registered", name))
	}
	slog.Debug("Registering engine backend.", "name", name)
	drivers[name] = f
}

// Open creates a backend from the factory registered under name.
func Open(name string) (Backend, error) {
	driversMu.RLock()
	f, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, errdefs.NotFound(errdefs.KindBackend, name)
	}
	return f(), nil
}

// Drivers returns the sorted names of the registered backends.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
