package policy

import (
	"sort"
)

// Registry holds the essential app policies.
// This is the in-memory policy store; the daemon builds one at startup.
type Registry struct {
	policies map[string]AppPolicy
	patterns map[string]string // normalized pattern -> policy ID
}

// NewRegistry creates a registry with all default essential policies.
func NewRegistry(lockBinary string) *Registry {
	return NewRegistryWithPolicies(
		NewLockSurfacePolicy(lockBinary),
		NewDialerPolicy(),
		NewSystemShellPolicy(),
	)
}

// NewRegistryWithPolicies creates a registry with custom policies (for testing).
func NewRegistryWithPolicies(policies ...AppPolicy) *Registry {
	r := &Registry{
		policies: make(map[string]AppPolicy),
		patterns: make(map[string]string),
	}
	for _, p := range policies {
		r.Register(p)
	}
	return r
}

// Register adds a policy to the registry.
func (r *Registry) Register(p AppPolicy) {
	r.policies[p.ID()] = p
	for _, pattern := range p.ProcessPatterns() {
		if n := Normalize(pattern); n != "" {
			r.patterns[n] = p.ID()
		}
	}
}

// Get returns a policy by ID.
func (r *Registry) Get(id string) (AppPolicy, bool) {
	p, ok := r.policies[id]
	return p, ok
}

// Match returns the ID of the essential policy covering packageID.
func (r *Registry) Match(packageID string) (string, bool) {
	if r == nil {
		return "", false
	}
	id, ok := r.patterns[Normalize(packageID)]
	return id, ok
}

// List returns all policy IDs, sorted.
func (r *Registry) List() []string {
	ids := make([]string, 0, len(r.policies))
	for id := range r.policies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
