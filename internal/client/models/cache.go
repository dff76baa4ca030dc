package models

import "time"

// CacheMetaSuffix is appended to a response-cache key to address its paired
// metadata row.
const CacheMetaSuffix = ":metadata"

// CacheMeta is the bookkeeping sibling of a cached response.
type CacheMeta struct {
	Timestamp time.Time `json:"timestamp"`
	Expires   time.Time `json:"expires"`
}

// Fresh reports whether the cached response may still be served at now.
func (m CacheMeta) Fresh(now time.Time) bool {
	return now.Before(m.Expires)
}

// CachedResponse is a serialized HTTP response kept by the request
// interception layer.
type CachedResponse struct {
	Status int                 `json:"status"`
	Header map[string][]string `json:"header"`
	Body   []byte              `json:"body"`
}
