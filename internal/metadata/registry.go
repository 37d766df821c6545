package metadata

import "sync"

type Registry struct {
	mu        sync.RWMutex
	resources map[string]*Resource
	order     []string
}

func NewRegistry() *Registry {
	return &Registry{
		resources: make(map[string]*Resource),
	}
}

// Get returns the resource with the given name, or nil.
func (r *Registry) Get(name string) *Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resources[name]
}

// All returns all registered resources in registration order.
func (r *Registry) All() []*Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	resources := make([]*Resource, 0, len(r.order))
	for _, name := range r.order {
		resources = append(resources, r.resources[name])
	}
	return resources
}

// Load replaces all resources in the registry.
// Called during startup, before the server accepts requests.
func (r *Registry) Load(resources []*Resource) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.resources = make(map[string]*Resource, len(resources))
	r.order = make([]string, 0, len(resources))
	for _, res := range resources {
		if _, dup := r.resources[res.Name]; !dup {
			r.order = append(r.order, res.Name)
		}
		r.resources[res.Name] = res
	}
}
