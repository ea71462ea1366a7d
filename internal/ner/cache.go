package ner

import (
	"context"
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/dativo-io/piiguard/internal/classifier"
)

// DefaultCacheTTL is the default lifetime of a cached NER result.
const DefaultCacheTTL = 2 * time.Minute

// CachedModel wraps a NERModel with a TTL cache keyed on (name, language,
// text). Concurrent identical requests share one backend call; each caller
// waits on its own context. Errors are never cached.
type CachedModel struct {
	model   classifier.NERModel
	name    string
	cache   *ttlcache.Cache[string, []classifier.Detection]
	sfGroup singleflight.Group

	hits   atomic.Uint64
	misses atomic.Uint64
	sfHits atomic.Uint64
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Model            string `json:"model"`
	Hits             uint64 `json:"hits"`
	Misses           uint64 `json:"misses"`
	SingleflightHits uint64 `json:"singleflight_hits"`
	Size             int    `json:"size"`
}

// NewCachedModel wraps model. A non-positive ttl uses DefaultCacheTTL.
// Call Close to stop the expiry goroutine.
func NewCachedModel(model classifier.NERModel, name string, ttl time.Duration) *CachedModel {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	cache := ttlcache.New[string, []classifier.Detection](
		ttlcache.WithTTL[string, []classifier.Detection](ttl),
		ttlcache.WithDisableTouchOnHit[string, []classifier.Detection](),
	)
	go cache.Start()
	return &CachedModel{model: model, name: name, cache: cache}
}

// Detect implements classifier.NERModel.
func (c *CachedModel) Detect(ctx context.Context, text, language string) ([]classifier.Detection, error) {
	key := c.cacheKey(text, language)

	if item := c.cache.Get(key); item != nil {
		c.hits.Add(1)
		return clone(item.Value()), nil
	}

	ch := c.sfGroup.DoChan(key, func() (any, error) {
		// The call is shared by every waiter on key, so no single caller's
		// cancellation may end it. The first caller's deadline still bounds it.
		callCtx := context.WithoutCancel(ctx)
		if dl, ok := ctx.Deadline(); ok {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithDeadline(callCtx, dl)
			defer cancel()
		}
		c.misses.Add(1)
		start := time.Now()
		detections, err := c.model.Detect(callCtx, text, language)
		if err != nil {
			return nil, err
		}
		c.cache.Set(key, detections, ttlcache.DefaultTTL)
		log.Debug().
			Str("model", c.name).
			Int("entities", len(detections)).
			Dur("duration", time.Since(start)).
			Msg("ner_cached")
		return detections, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, wrapBackendError(ctx, c.name, res.Err)
		}
		if res.Shared {
			c.sfHits.Add(1)
		}
		return clone(res.Val.([]classifier.Detection)), nil
	case <-ctx.Done():
		return nil, wrapBackendError(ctx, c.name, ctx.Err())
	}
}

// Health forwards to the wrapped model when it supports health checks.
func (c *CachedModel) Health(ctx context.Context) error {
	if hc, ok := c.model.(HealthChecker); ok {
		return hc.Health(ctx)
	}
	return nil
}

// Stats returns cache statistics.
func (c *CachedModel) Stats() CacheStats {
	return CacheStats{
		Model:            c.name,
		Hits:             c.hits.Load(),
		Misses:           c.misses.Load(),
		SingleflightHits: c.sfHits.Load(),
		Size:             c.cache.Len(),
	}
}

// Close stops the expiry goroutine.
func (c *CachedModel) Close() {
	c.cache.Stop()
}

func (c *CachedModel) cacheKey(text, language string) string {
	h := xxhash.New()
	_, _ = h.WriteString(c.name)
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(language)
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(text)

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], h.Sum64())
	return string(buf[:])
}

func clone(ds []classifier.Detection) []classifier.Detection {
	return append([]classifier.Detection{}, ds...)
}
