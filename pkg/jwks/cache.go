// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package jwks

import (
	"context"
	"crypto/rsa"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/telekom/authy/pkg/metrics"
)

// DefaultCacheTTL is used when a CachedResolver is created with a non-positive TTL.
const DefaultCacheTTL = 10 * time.Minute

// CachedResolver keeps resolved keys for a fixed TTL. Failed lookups are never cached,
// so a key published after a rotation is picked up on the next request.
type CachedResolver struct {
	next  Resolver
	cache *ttlcache.Cache[string, *rsa.PublicKey]
}

// NewCachedResolver wraps next with a TTL cache keyed by key id.
// Call Stop to release the expiry goroutine.
func NewCachedResolver(next Resolver, ttl time.Duration) *CachedResolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *rsa.PublicKey](ttl),
		ttlcache.WithDisableTouchOnHit[string, *rsa.PublicKey](),
	)
	go cache.Start()
	return &CachedResolver{next: next, cache: cache}
}

func (c *CachedResolver) ResolveKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if item := c.cache.Get(kid); item != nil {
		metrics.JWKSCacheLookups.WithLabelValues("hit").Inc()
		return item.Value(), nil
	}
	metrics.JWKSCacheLookups.WithLabelValues("miss").Inc()

	key, err := c.next.ResolveKey(ctx, kid)
	if err != nil {
		return nil, err
	}
	c.cache.Set(kid, key, ttlcache.DefaultTTL)
	return key, nil
}

// Len returns the number of cached keys.
func (c *CachedResolver) Len() int {
	return c.cache.Len()
}

// Stop stops the expiry goroutine.
func (c *CachedResolver) Stop() {
	c.cache.Stop()
}
