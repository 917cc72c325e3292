package service

// Registry is the fixed name -> descriptor mapping built once at supervisor
// construction. The key set never changes at runtime; only per-descriptor
// fields mutate. Order preserves the config file's declaration order, which
// is also the start order.
type Registry struct {
	order []string
	byKey map[string]*Descriptor
}

func NewRegistry(cfgs []Config) *Registry {
	r := &Registry{byKey: make(map[string]*Descriptor, len(cfgs))}
	for _, c := range cfgs {
		if _, dup := r.byKey[c.Name]; dup {
			continue
		}
		r.byKey[c.Name] = New(c)
		r.order = append(r.order, c.Name)
	}
	return r
}

// Get returns the descriptor for name, or nil for unknown names.
func (r *Registry) Get(name string) *Descriptor { return r.byKey[name] }

// Names returns service names in declaration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns descriptors in declaration order.
func (r *Registry) All() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.byKey[n])
	}
	return out
}

// Ports returns the set of configured ports in declaration order.
func (r *Registry) Ports() []int {
	out := make([]int, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.byKey[n].Port())
	}
	return out
}
