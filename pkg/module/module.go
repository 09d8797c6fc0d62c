// Package module defines the capability contract and the global registry.
// Modules register themselves from init() when their package is imported;
// plugin packs register through the same entry point.
package module

import (
	"context"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/vsantiago113/AnsibleCraft/pkg/errs"
)

// Result is the outcome of a single module invocation.
type Result struct {
	Changed   bool
	Msg       string
	Data      map[string]any // registered for later tasks
	Artifacts map[string]any // diagnostics, surfaced at -vv
}

// Conn is the transport surface a module sees. Implementations live in
// pkg/conn; tests substitute fakes.
type Conn interface {
	// Exec runs cmd remotely. elevate requests privilege escalation via
	// the session's configured method; escalation problems come back as
	// *errs.EscalationError.
	Exec(ctx context.Context, cmd string, env map[string]string, elevate bool) (stdout, stderr string, exit int, err error)
	Put(ctx context.Context, src io.Reader, dst string, mode os.FileMode) error
	Get(ctx context.Context, src string) (io.ReadCloser, error)
	// Family is the target OS family, "posix" or "windows".
	Family() string
}

// Module is one idempotent capability. Check predicts whether Apply would
// change anything and must not mutate remote state.
type Module interface {
	Name() string
	Params() Params
	Check(ctx context.Context, c Conn, args Args) (Result, error)
	Apply(ctx context.Context, c Conn, args Args) (Result, error)
}

// Namespaced is optionally implemented by plugin-pack modules to group
// themselves in listings.
type Namespaced interface{ Namespace() string }

var (
	mu       sync.RWMutex
	registry = map[string]Module{}
)

func Register(m Module) {
	mu.Lock()
	defer mu.Unlock()
	registry[m.Name()] = m
}

// Get resolves a declared module name; unknown names are
// *errs.ModuleNotFoundError.
func Get(name string) (Module, error) {
	mu.RLock()
	defer mu.RUnlock()
	m, ok := registry[name]
	if !ok {
		return nil, &errs.ModuleNotFoundError{Name: name}
	}
	return m, nil
}

// Names lists every registered module, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
