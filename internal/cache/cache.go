package cache

import (
	"time"

	"github.com/Badsworth/pfml-scripts-sub007/internal/model"
)

// Cache holds tracker entries keyed by claim key
type Cache interface {
	Get(key string) (model.TrackerEntry, bool)
	Set(key string, entry model.TrackerEntry, ttl time.Duration)
	Delete(key string)
	Clear()
}

// CacheKey namespaces a claim key inside the cache
func CacheKey(claimKey string) string {
	return "pfml:tracker:v1:" + claimKey
}
