package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethDreamer/lighthouse/libs/service"
)

// Criticality classifies whether a subsystem's fatal failure brings the whole
// node down.
type Criticality int

const (
	Critical Criticality = iota
	Optional
)

func (c Criticality) String() string {
	switch c {
	case Critical:
		return "critical"
	case Optional:
		return "optional"
	default:
		return fmt.Sprintf("criticality(%d)", int(c))
	}
}

// Entry tracks one spawned subsystem task and its supervision metadata.
type Entry struct {
	Name        string
	Criticality Criticality

	// RequiredOnFailure escalates a fatal failure of an Optional subsystem
	// to a full shutdown.
	RequiredOnFailure bool

	Service service.Service

	cancel context.CancelFunc

	mtx       sync.Mutex
	completed bool
	outcome   error
}

// markCompleted records the entry's terminal outcome. The first call wins;
// later calls are ignored so a fatal classification cannot be overwritten by
// the clean-exit observer.
func (e *Entry) markCompleted(outcome error) bool {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.completed {
		return false
	}
	e.completed = true
	e.outcome = outcome
	return true
}

// Completed reports whether the entry has reached a terminal outcome, and the
// outcome itself (nil for a clean exit).
func (e *Entry) Completed() (bool, error) {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.completed, e.outcome
}

// Alive reports whether the subsystem is still considered live: registered,
// running, and not yet marked completed.
func (e *Entry) Alive() bool {
	done, _ := e.Completed()
	return !done && e.Service.IsRunning()
}

// Registry is the bookkeeping of every spawned background task. Entries keep
// insertion order, used only for deterministic shutdown logging. All mutation
// goes through the owning Coordinator.
type Registry struct {
	mtx     sync.Mutex
	entries []*Entry
	byName  map[string]*Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Entry),
	}
}

// Register appends an entry. Names must be unique.
func (r *Registry) Register(entry *Entry) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if _, ok := r.byName[entry.Name]; ok {
		return fmt.Errorf("service %q already registered", entry.Name)
	}
	r.byName[entry.Name] = entry
	r.entries = append(r.entries, entry)
	return nil
}

// MarkCompleted records a terminal outcome for the named entry. Unknown names
// are ignored.
func (r *Registry) MarkCompleted(name string, outcome error) {
	if entry, ok := r.Lookup(name); ok {
		entry.markCompleted(outcome)
	}
}

// Lookup returns the entry with the given name.
func (r *Registry) Lookup(name string) (*Entry, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	entry, ok := r.byName[name]
	return entry, ok
}

// Entries returns all registered entries in insertion order.
func (r *Registry) Entries() []*Entry {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	out := make([]*Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of registered entries.
func (r *Registry) Len() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return len(r.entries)
}
