package vcs

import (
	"fmt"
	"slices"
	"sync"
)

// Constructor creates a backend. Backends are stateless; the working copy
// is passed to each operation.
type Constructor func() (VCS, error)

// registry maps VCS types to their constructors
var (
	registry      = make(map[Type]Constructor)
	registryMutex sync.RWMutex
)

// Register registers a VCS implementation constructor.
// This is called from init() functions in implementation packages (git, hg, svn).
//
// Example:
//
//	func init() {
//	    vcs.Register(vcs.TypeGit, func() (vcs.VCS, error) { return New(), nil })
//	}
func Register(t Type, constructor Constructor) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if constructor == nil {
		panic(fmt.Sprintf("vcs: Register constructor is nil for type %s", t))
	}

	if _, exists := registry[t]; exists {
		panic(fmt.Sprintf("vcs: Register called twice for type %s", t))
	}

	registry[t] = constructor
}

// getConstructor retrieves the constructor for a VCS type.
// Returns nil if the type is not registered.
func getConstructor(t Type) Constructor {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	return registry[t]
}

// New creates a backend for an explicit repository type.
func New(t Type) (VCS, error) {
	constructor := getConstructor(t)
	if constructor == nil {
		return nil, fmt.Errorf("%w: no backend registered for %q (registered: %v)",
			ErrNotSupported, t, RegisteredTypes())
	}
	return constructor()
}

// IsRegistered returns true if a constructor is registered for the given type.
func IsRegistered(t Type) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, exists := registry[t]
	return exists
}

// RegisteredTypes returns all registered VCS types, sorted.
func RegisteredTypes() []Type {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	types := make([]Type, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

