package provider

import (
	"fmt"
)

// Registry holds all configured OAuth providers and allows
// lookup by provider name. It is built once at startup and is
// read-only afterwards.
type Registry struct {
	providers map[string]OAuthProvider
	names     []string
}

// NewRegistry registers the given OAuth providers by name, keeping
// registration order. Provider names must be unique.
func NewRegistry(list ...OAuthProvider) (*Registry, error) {
	r := &Registry{providers: make(map[string]OAuthProvider, len(list))}
	for _, p := range list {
		name := p.Name()
		if _, dup := r.providers[name]; dup {
			return nil, fmt.Errorf("provider: duplicate provider name %q", name)
		}
		r.providers[name] = p
		r.names = append(r.names, name)
	}
	return r, nil
}

// Get returns the OAuth provider by name.
func (r *Registry) Get(name string) (OAuthProvider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Names returns the registered provider names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}
