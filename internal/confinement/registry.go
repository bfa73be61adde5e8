package confinement

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"hardspheres/internal/geom"
)

var ErrConfinementExists = errors.New("confinement already registered")

// Factory builds a functor for the given box.
type Factory func(extents geom.Extents) (Functor, error)

var registry = struct {
	mu sync.RWMutex
	m  map[string]Factory
}{
	m: make(map[string]Factory),
}

func init() {
	initializeBuiltInConfinements()
}

func initializeBuiltInConfinements() {
	MustRegister("bulk", adapt(NewBulk))
	MustRegister("point-defect", adapt(NewPointDefect))
	MustRegister("line-defect", adapt(NewLineDefect))
	MustRegister("plane-defect", adapt(NewPlaneDefect))
	MustRegister("p-surface", adapt(NewPSurface))
	MustRegister("d-surface", adapt(NewDSurface))
	MustRegister("g-surface", adapt(NewGSurface))
	MustRegister("inner-iwp-surface", adapt(NewInnerIWPSurface))
	MustRegister("outer-iwp-surface", adapt(NewOuterIWPSurface))
	MustRegister("inner-sphere", adapt(NewInnerSphere))
	MustRegister("outer-sphere", adapt(NewOuterSphere))
	MustRegister("inner-cylinder", adapt(NewInnerCylinder))
	MustRegister("outer-cylinder", adapt(NewOuterCylinder))
}

func adapt[T Functor](ctor func(geom.Extents) (T, error)) Factory {
	return func(extents geom.Extents) (Functor, error) {
		f, err := ctor(extents)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
}

func Register(name string, factory Factory) error {
	if name == "" {
		return errors.New("confinement name is required")
	}
	if factory == nil {
		return errors.New("confinement factory is required")
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, exists := registry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrConfinementExists, name)
	}
	registry.m[name] = factory
	return nil
}

func MustRegister(name string, factory Factory) {
	if err := Register(name, factory); err != nil {
		panic(err)
	}
}

// New validates the extents and builds the named confinement.
func New(name string, extents geom.Extents) (Functor, error) {
	if err := extents.Validate(); err != nil {
		return nil, err
	}

	registry.mu.RLock()
	factory, ok := registry.m[name]
	registry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConfinement, name)
	}
	return factory(extents)
}

func Names() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	names := make([]string, 0, len(registry.m))
	for name := range registry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
