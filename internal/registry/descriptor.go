// Package registry implements the ResourceRegistry: the alias to
// server descriptor map and mcp://alias/path resolution.
package registry

import (
	"sync"
	"time"

	"github.com/platformbuilds/mcp-federation-broker/internal/protocol"
	"github.com/platformbuilds/mcp-federation-broker/internal/transport"
)

// Descriptor holds everything the broker knows about one attached
// server, keyed by its alias. Invariant I1: alias is present in the
// registry iff the descriptor's Client is non-nil and the pool holds a
// live client for it.
type Descriptor struct {
	Alias     string
	URL       string
	Transport transport.Tag
	Client    *protocol.Client

	mu        sync.RWMutex
	resources []protocol.ResourceDescriptor
	tools     []protocol.ToolDescriptor
	lastSeen  time.Time
}

// SetListing atomically updates the resource and tool listings and
// bumps the last-seen timestamp.
func (d *Descriptor) SetListing(resources []protocol.ResourceDescriptor, tools []protocol.ToolDescriptor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resources = resources
	d.tools = tools
	d.lastSeen = time.Now()
}

// Resources returns a snapshot of the last-seen resource listing.
func (d *Descriptor) Resources() []protocol.ResourceDescriptor {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]protocol.ResourceDescriptor, len(d.resources))
	copy(out, d.resources)
	return out
}

// Tools returns a snapshot of the last-seen tool listing.
func (d *Descriptor) Tools() []protocol.ToolDescriptor {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]protocol.ToolDescriptor, len(d.tools))
	copy(out, d.tools)
	return out
}

// LastSeen reports when the listing was last refreshed.
func (d *Descriptor) LastSeen() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastSeen
}
