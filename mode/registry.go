package mode

import (
	"go-inkdeck/errcode"
)

// Registry holds the configured modes in declaration order
type Registry struct {
	order  []Mode
	byName map[string]Mode
}

func NewRegistry(modes ...Mode) *Registry {
	r := &Registry{byName: make(map[string]Mode)}
	for _, m := range modes {
		r.Add(m)
	}
	return r
}

// Add appends m, replacing a mode with the same name in place
func (r *Registry) Add(m Mode) {
	if _, exists := r.byName[m.Name()]; exists {
		for i, old := range r.order {
			if old.Name() == m.Name() {
				r.order[i] = m
			}
		}
	} else {
		r.order = append(r.order, m)
	}
	r.byName[m.Name()] = m
}

// Get looks a mode up by name
func (r *Registry) Get(name string) (Mode, error) {
	m, ok := r.byName[name]
	if !ok {
		return nil, errcode.New(errcode.UnknownMode, "lookup", name)
	}
	return m, nil
}

// Names lists mode names in declaration order
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	for i, m := range r.order {
		out[i] = m.Name()
	}
	return out
}

// Next returns the mode after name, wrapping around
func (r *Registry) Next(name string) Mode {
	if len(r.order) == 0 {
		return nil
	}
	for i, m := range r.order {
		if m.Name() == name {
			return r.order[(i+1)%len(r.order)]
		}
	}
	return r.order[0]
}

func (r *Registry) Len() int {
	return len(r.order)
}
