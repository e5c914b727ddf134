package usbd480

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Registry tracks attached display sessions by device key (typically the
// transport's bus:address string). It is the process-level replacement for
// a global driver table: construct one at start, detach everything through
// it at shutdown.
type Registry struct {
	mu   sync.Mutex
	devs map[string]*Dev
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{devs: make(map[string]*Dev)}
}

// Attach creates a session over the transport and registers it under key.
// The key must not already be registered.
func (r *Registry) Attach(key string, t Transport, opts *Opts) (*Dev, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devs[key]; ok {
		return nil, fmt.Errorf("usbd480: device %q already attached", key)
	}
	d, err := New(t, opts)
	if err != nil {
		return nil, err
	}
	r.devs[key] = d
	return d, nil
}

// Get returns the session registered under key.
func (r *Registry) Get(key string) (*Dev, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devs[key]
	return d, ok
}

// Detach closes the session registered under key and removes it. Detach
// blocks until the session's in-flight refresh cycle, if any, has finished.
func (r *Registry) Detach(key string) error {
	r.mu.Lock()
	d, ok := r.devs[key]
	delete(r.devs, key)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("usbd480: device %q not attached", key)
	}
	return d.Close()
}

// Close detaches all registered sessions. Sessions are closed in parallel:
// each close can block for several seconds joining an in-flight transfer,
// and shutdown should not pay that serially per display.
func (r *Registry) Close() error {
	r.mu.Lock()
	devs := r.devs
	r.devs = make(map[string]*Dev)
	r.mu.Unlock()

	var g errgroup.Group
	for _, d := range devs {
		g.Go(d.Close)
	}
	return g.Wait()
}
