package telemetry

import (
	"context"
	"sync"
)

type metaKey struct{}

type metaCarrier struct {
	mu   sync.Mutex
	meta SampleMeta
}

// WithSampleMeta returns a context in which wrapped operations can annotate the
// sample that the caller will record, and a function reading the annotations.
func WithSampleMeta(ctx context.Context) (context.Context, func() SampleMeta) {
	c := &metaCarrier{}
	return context.WithValue(ctx, metaKey{}, c), func() SampleMeta {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.meta
	}
}

// MarkCacheHit records whether the current call was served from cache. It is a
// no-op when ctx carries no sample meta.
func MarkCacheHit(ctx context.Context, hit bool) {
	c, ok := ctx.Value(metaKey{}).(*metaCarrier)
	if !ok {
		return
	}
	c.mu.Lock()
	if hit {
		c.meta.CacheHit = Hit()
	} else {
		c.meta.CacheHit = Miss()
	}
	c.mu.Unlock()
}
