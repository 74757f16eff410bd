// Package psf models point-spread functions: an interface for analytic
// profiles, a registry of named PSF factories, a double-Gaussian
// implementation, and moment-based shape attributes.
package psf

import (
	"sync"

	"github.com/pkg/errors"

	"starmeasure/pkg/errkind"
	"starmeasure/pkg/kernel"
)

// Psf is an analytic point-spread function centered on its peak.
type Psf interface {
	// Value returns the profile at offset (dx, dy) from the center,
	// normalized so the peak value is one.
	Value(dx, dy float64) float64
	// ComputeImage renders the PSF as an image whose peak lands at the
	// continuous position (x, y), with sub-pixel centering.
	ComputeImage(x, y float64) (*kernel.Image, error)
	// Width returns the rendered image width.
	Width() int
	// Height returns the rendered image height.
	Height() int
}

// Factory builds a Psf of the given stamp size from up to three shape
// parameters.
type Factory func(width, height int, p0, p1, p2 float64) (Psf, error)

// Registry maps PSF type names to factories. It is safe for concurrent
// use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Declare registers a factory under a name. Declaring a name twice is
// an error.
func (r *Registry) Declare(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return errors.Wrapf(errkind.ErrInvalidArgument, "psf type %q already declared", name)
	}
	r.factories[name] = f
	return nil
}

// Lookup returns the factory declared under a name.
func (r *Registry) Lookup(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		return nil, errors.Wrapf(errkind.ErrNotFound, "psf type %q", name)
	}
	return f, nil
}

// Create builds a Psf of the named type.
func (r *Registry) Create(name string, width, height int, p0, p1, p2 float64) (Psf, error) {
	f, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return f(width, height, p0, p1, p2)
}

// DefaultRegistry holds the PSF types bundled with the package.
var DefaultRegistry = NewRegistry()

// CreatePsf builds a Psf of the named type from the default registry.
func CreatePsf(name string, width, height int, p0, p1, p2 float64) (Psf, error) {
	return DefaultRegistry.Create(name, width, height, p0, p1, p2)
}
