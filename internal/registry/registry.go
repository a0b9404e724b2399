package registry

import (
	"context"
	"sync"

	"github.com/platformbuilds/mcp-federation-broker/internal/brokererr"
	"github.com/platformbuilds/mcp-federation-broker/internal/mcpuri"
)

// FederatedResource is one flattened entry returned by ListAll: a
// resource belonging to a specific attached server, addressed by its
// full federated URI.
type FederatedResource struct {
	ServerAlias string
	FullURI     string
	Name        string
	MimeType    string
}

// Registry maintains the alias -> Descriptor map.
type Registry struct {
	mu        sync.RWMutex
	byAlias   map[string]*Descriptor
}

func New() *Registry {
	return &Registry{byAlias: make(map[string]*Descriptor)}
}

// Register adds a descriptor under its alias. Fails if the alias is
// already taken, leaving the registry unchanged (testable property 1).
func (r *Registry) Register(d *Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byAlias[d.Alias]; exists {
		return brokererr.NewConfigError("alias already registered: "+d.Alias, nil)
	}
	r.byAlias[d.Alias] = d
	return nil
}

// Unregister removes a descriptor by alias. Returns
// AlreadyDetachedError if the alias is not present, per testable
// property 9 (idempotent close).
func (r *Registry) Unregister(alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byAlias[alias]; !exists {
		return brokererr.NewAlreadyDetachedError(alias)
	}
	delete(r.byAlias, alias)
	return nil
}

// Get returns the descriptor for an alias, if attached.
func (r *Registry) Get(alias string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byAlias[alias]
	return d, ok
}

// Resolve parses either the federated form (mcp://alias/uri) or,
// given an explicit alias, the relative form, and returns the
// matching descriptor.
func (r *Registry) Resolve(uriOrRelative string, explicitAlias string) (alias, remoteURI string, desc *Descriptor, err error) {
	if ref, ok := mcpuri.Parse(uriOrRelative); ok {
		d, found := r.Get(ref.Alias)
		if !found {
			return "", "", nil, brokererr.NewReferenceUnresolved(uriOrRelative, "unknown alias: "+ref.Alias)
		}
		return ref.Alias, ref.RemoteURI, d, nil
	}
	if explicitAlias == "" {
		return "", "", nil, brokererr.NewReferenceUnresolved(uriOrRelative, "not a federated URI and no alias provided")
	}
	d, found := r.Get(explicitAlias)
	if !found {
		return "", "", nil, brokererr.NewReferenceUnresolved(uriOrRelative, "unknown alias: "+explicitAlias)
	}
	return explicitAlias, uriOrRelative, d, nil
}

// ListAll flattens every attached server's last-seen resource listing
// into federated-form entries.
func (r *Registry) ListAll() []FederatedResource {
	r.mu.RLock()
	descriptors := make([]*Descriptor, 0, len(r.byAlias))
	for _, d := range r.byAlias {
		descriptors = append(descriptors, d)
	}
	r.mu.RUnlock()

	var out []FederatedResource
	for _, d := range descriptors {
		for _, res := range d.Resources() {
			out = append(out, FederatedResource{
				ServerAlias: d.Alias,
				FullURI:     mcpuri.Reference{Alias: d.Alias, RemoteURI: res.URI}.Federated(),
				Name:        res.Name,
				MimeType:    res.MimeType,
			})
		}
	}
	return out
}

// RefreshListing re-fetches resources/list and tools/list for alias
// and atomically updates its descriptor.
func (r *Registry) RefreshListing(ctx context.Context, alias string) error {
	d, ok := r.Get(alias)
	if !ok {
		return brokererr.NewReferenceUnresolved(alias, "unknown alias")
	}
	resources, err := d.Client.ListResources(ctx)
	if err != nil {
		return err
	}
	tools, err := d.Client.ListTools(ctx)
	if err != nil {
		return err
	}
	d.SetListing(resources, tools)
	return nil
}

// Aliases returns every currently-registered alias.
func (r *Registry) Aliases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byAlias))
	for a := range r.byAlias {
		out = append(out, a)
	}
	return out
}
