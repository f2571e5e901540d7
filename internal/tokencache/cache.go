package tokencache

import (
	"time"

	"github.com/aussiebroadwan/evesso/pkg/jwtx"
	"github.com/patrickmn/go-cache"
)

// expiryBuffer is taken off a token's own expiry so a cached token is never
// handed out moments before it stops working.
const expiryBuffer = 30 * time.Second

// Cache of exchanged launcher tokens keyed by account.
type Cache struct {
	store *cache.Cache
}

// New creates a new token cache. Tokens without a readable expiry live for
// defaultExpiration.
func New(defaultExpiration, cleanupInterval time.Duration) *Cache {
	return &Cache{store: cache.New(defaultExpiration, cleanupInterval)}
}

// Add the token with the cache with the given key
func (c *Cache) Add(key, token string) {
	// use the exp claim if the token is a JWT, otherwise the default expiry
	exp, err := jwtx.UnverifiedExpiry(token)
	if err != nil {
		c.store.SetDefault(key, token)
		return
	}

	ttl := time.Until(exp) - expiryBuffer
	if ttl <= 0 {
		c.store.Delete(key)
		return
	}
	c.store.Set(key, token, ttl)
}

// Get a token from the cache
func (c *Cache) Get(key string) (token string, ok bool) {
	value, ok := c.store.Get(key)
	if !ok {
		return "", ok
	}
	token, ok = value.(string)
	return token, ok
}

// Delete drops a cached token, e.g. after the game rejected it.
func (c *Cache) Delete(key string) {
	c.store.Delete(key)
}

// Len is the number of tokens currently held, including expired ones not yet swept.
func (c *Cache) Len() int {
	return c.store.ItemCount()
}
