package cache

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint returns a short, stable hex digest of a cache key for
// log correlation and metrics labels, without exposing the (possibly
// sensitive) remote URI verbatim in structured logs.
func Fingerprint(key string) string {
	sum := xxhash.Sum64String(key)
	return strconv.FormatUint(sum, 16)
}
