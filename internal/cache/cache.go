// Package cache implements the ResourceCache: a TTL-keyed store from
// cache key (alias+":"+remoteUri) to decoded payload.
package cache

import (
	"github.com/platformbuilds/mcp-federation-broker/internal/payload"
)

// Cache is the ResourceCache contract. Implementations must never
// store a Payload with Kind == KindParquetFile (invariant I5): its
// on-disk file is consumed, and possibly unlinked, by the mapper.
type Cache interface {
	GetFresh(key string) (payload.Payload, bool)
	Put(key string, p payload.Payload, ttlSeconds int)
	Invalidate(key string)
	InvalidateByPrefix(prefix string)
	Clear()
	Size() int
}
