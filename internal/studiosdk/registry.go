package studiosdk

import (
	"fmt"
	"sort"
	"sync"
)

// Registry resolves instance identifiers recorded in metadata to API clients.
type Registry struct {
	services map[string]Service
	mu       sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		services: make(map[string]Service),
	}
}

// NewRegistryFromConfig creates one client per configured instance.
func NewRegistryFromConfig(instances map[string]*Config) (*Registry, error) {
	r := NewRegistry()
	for name, cfg := range instances {
		client, err := New(cfg)
		if err != nil {
			return nil, fmt.Errorf("instance %q: %w", name, err)
		}
		r.Register(name, client)
	}
	return r, nil
}

func (r *Registry) Register(instance string, svc Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[instance] = svc
}

// Get returns the service for instance or ErrUnknownInstance.
func (r *Registry) Get(instance string) (Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	svc, ok := r.services[instance]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownInstance, instance)
	}
	return svc, nil
}

func (r *Registry) Instances() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
