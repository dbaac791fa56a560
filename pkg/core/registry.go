package core

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
)

// DefaultNamespace is used when a caller names none
const DefaultNamespace = "default"

var namespacePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidNamespace reports whether ns can name a storage unit
func ValidNamespace(ns string) bool {
	return namespacePattern.MatchString(ns)
}

// Opener creates the store of a namespace
type Opener func(namespace string, jobs *JobTable) (*SQLiteStore, error)

// FileOpener opens <dir>/<namespace>.db, or a private in-memory database per
// namespace when dir is empty
func FileOpener(base Config, dir string) Opener {
	return func(namespace string, jobs *JobTable) (*SQLiteStore, error) {
		cfg := base
		cfg.Namespace = namespace
		cfg.Jobs = jobs
		cfg.Path = MemoryPath
		if dir != "" {
			cfg.Path = filepath.Join(dir, namespace+".db")
		}
		return New(cfg)
	}
}

type unit struct {
	store *SQLiteStore
	mu    sync.Mutex
}

// Registry hands out one store per namespace, opening it on first use.
// Lock serializes callers of a namespace.
type Registry struct {
	mu    sync.Mutex
	units map[string]*unit
	open  Opener
	jobs  *JobTable
}

// NewRegistry creates a registry that opens stores with open
func NewRegistry(open Opener) *Registry {
	return &Registry{
		units: make(map[string]*unit),
		open:  open,
		jobs:  NewJobTable(),
	}
}

func (r *Registry) unit(ns string) (*unit, error) {
	if !ValidNamespace(ns) {
		return nil, wrapError("namespace", invalidf("namespace %q must match %s", ns, namespacePattern))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.units[ns]; ok {
		return u, nil
	}
	store, err := r.open(ns, r.jobs)
	if err != nil {
		return nil, wrapError("namespace", fmt.Errorf("open %s: %w", ns, err))
	}
	u := &unit{store: store}
	r.units[ns] = u
	return u, nil
}

// Get returns the store of a namespace
func (r *Registry) Get(ns string) (*SQLiteStore, error) {
	u, err := r.unit(ns)
	if err != nil {
		return nil, err
	}
	return u.store, nil
}

// Lock returns the store of a namespace with its request lock held. The
// caller must call the returned unlock function.
func (r *Registry) Lock(ns string) (*SQLiteStore, func(), error) {
	u, err := r.unit(ns)
	if err != nil {
		return nil, nil, err
	}
	u.mu.Lock()
	return u.store, u.mu.Unlock, nil
}

// Namespaces lists the opened namespaces
func (r *Registry) Namespaces() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.units))
	for ns := range r.units {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Jobs returns the job table shared by every store of the registry
func (r *Registry) Jobs() *JobTable {
	return r.jobs
}

// Close closes every store and forgets them
func (r *Registry) Close() error {
	r.mu.Lock()
	units := r.units
	r.units = make(map[string]*unit)
	r.mu.Unlock()

	var errs []error
	for _, u := range units {
		if err := u.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.jobs.Reset()
	return errors.Join(errs...)
}
