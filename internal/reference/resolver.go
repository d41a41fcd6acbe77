package reference

import (
	"context"
	"errors"
	"time"
	"weak"

	"github.com/zjrosen/catalog/internal/cachemanager"
	"github.com/zjrosen/catalog/internal/domain/catalog"
	"github.com/zjrosen/catalog/internal/log"
)

var errUnresolved = errors.New("reference did not resolve")

// Resolver shares resolved Records between Refs that name the same target,
// keyed by the reference's text form. Entries hold weak pointers, so a
// cached resolution never keeps a Record alive.
type Resolver struct {
	lookup Lookup
	cache  *cachemanager.InMemoryCacheManager[string, weak.Pointer[catalog.Record]]
	reads  *cachemanager.ReadThroughCache[string, weak.Pointer[catalog.Record], *Ref]
	ttl    time.Duration
}

// NewResolver creates a Resolver over lookup. Entries expire after ttl.
func NewResolver(lookup Lookup, ttl, cleanupInterval time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = cachemanager.DefaultExpiration
	}
	if cleanupInterval <= 0 {
		cleanupInterval = cachemanager.DefaultCleanupInterval
	}
	res := &Resolver{
		lookup: lookup,
		cache:  cachemanager.NewInMemoryCacheManager[string, weak.Pointer[catalog.Record]]("references", ttl, cleanupInterval),
		ttl:    ttl,
	}
	res.reads = cachemanager.NewReadThroughCache[string, weak.Pointer[catalog.Record], *Ref](
		res.cache,
		func(ctx context.Context, ref *Ref) (weak.Pointer[catalog.Record], error) {
			rec, ok := ref.Resolve(res.lookup)
			if !ok {
				return weak.Pointer[catalog.Record]{}, errUnresolved
			}
			return weak.Make(rec), nil
		},
		cachemanager.WithValidator[string, weak.Pointer[catalog.Record], *Ref](func(p weak.Pointer[catalog.Record]) bool {
			rec := p.Value()
			return rec != nil && !rec.IsDestroyed()
		}),
	)
	return res
}

// Resolve returns the Record ref names, consulting the shared cache first.
func (r *Resolver) Resolve(ctx context.Context, ref *Ref) (*catalog.Record, bool) {
	if ref.IsZero() {
		return nil, false
	}
	if rec, ok := ref.Cached(); ok {
		return rec, true
	}
	p, err := r.reads.GetWithRefresh(ctx, ref.String(), ref, r.ttl)
	if err != nil {
		log.Debug(log.CatResolve, "Reference unresolved", "ref", ref)
		return nil, false
	}
	rec := p.Value()
	if !ref.matches(rec) {
		_ = r.reads.Forget(ctx, ref.String())
		return ref.Resolve(r.lookup)
	}
	ref.cached = weak.Make(rec)
	return rec, true
}

// Forget drops cached resolutions for refs.
func (r *Resolver) Forget(ctx context.Context, refs ...*Ref) {
	keys := make([]string, 0, len(refs))
	for _, ref := range refs {
		keys = append(keys, ref.String())
	}
	_ = r.reads.Forget(ctx, keys...)
}

// Flush drops every cached resolution.
func (r *Resolver) Flush(ctx context.Context) {
	_ = r.cache.Flush(ctx)
}

// Stats returns cache counters.
func (r *Resolver) Stats() cachemanager.Stats {
	return r.cache.Stats()
}
