package server

import (
	"time"

	cache "github.com/patrickmn/go-cache"
)

// LiveSessions holds the in-memory, secret-bearing side of a session — the
// live *psi.Party1/*psi.Party2 value — keyed by session ID, with a TTL
// counted from the last Put (Get does not extend it). The teacher used the same patrickmn/go-cache library for its issuer
// lookup cache; here it is the only place a session's key material lives,
// so an expired entry must have Close() called on it before eviction.
type LiveSessions struct {
	c *cache.Cache
}

// NewLiveSessions builds a cache with the given TTL and a cleanup interval
// of half the TTL, passing each expired session to onEvict.
func NewLiveSessions(ttl time.Duration, onEvict func(key string, value any)) *LiveSessions {
	c := cache.New(ttl, ttl/2)
	if onEvict != nil {
		c.OnEvicted(func(key string, value interface{}) {
			onEvict(key, value)
		})
	}
	return &LiveSessions{c: c}
}

// Put stores value under id, resetting its TTL.
func (s *LiveSessions) Put(id string, value any) {
	s.c.SetDefault(id, value)
}

// Get retrieves the live session for id, if present and unexpired.
func (s *LiveSessions) Get(id string) (any, bool) {
	return s.c.Get(id)
}

// Delete removes id. go-cache runs the eviction callback for a deleted
// entry as well.
func (s *LiveSessions) Delete(id string) {
	s.c.Delete(id)
}

// Len reports how many sessions are currently live.
func (s *LiveSessions) Len() int {
	return s.c.ItemCount()
}
