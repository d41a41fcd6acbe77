package cachemanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type cachedRecord struct {
	ID       string
	Location string
}

func newTestCache[V any]() *InMemoryCacheManager[string, V] {
	return NewInMemoryCacheManager[string, V]("test", DefaultExpiration, DefaultCleanupInterval)
}

func TestInMemoryCacheManager_GetSetStruct(t *testing.T) {
	cache := newTestCache[cachedRecord]()
	rec := cachedRecord{ID: "r1", Location: "decks/a.yaml"}
	cache.Set(context.Background(), "g1:r1", rec, DefaultExpiration)

	got, ok := cache.Get(context.Background(), "g1:r1")
	require.True(t, ok)
	require.Equal(t, rec, got)
}

func TestInMemoryCacheManager_GetMiss(t *testing.T) {
	cache := newTestCache[string]()

	got, ok := cache.Get(context.Background(), "missing")
	require.False(t, ok)
	require.Empty(t, got)
}

func TestInMemoryCacheManager_GetWrongType(t *testing.T) {
	cache := newTestCache[string]()
	cache.cache.Set("key", 123, DefaultExpiration)

	got, ok := cache.Get(context.Background(), "key")
	require.False(t, ok)
	require.Empty(t, got)
}

func TestInMemoryCacheManager_GetMultiple(t *testing.T) {
	tests := []struct {
		name   string
		seed   map[string]any
		keys   []string
		want   map[string]string
		wantOK bool
	}{
		{name: "no keys", keys: nil, want: nil, wantOK: false},
		{
			name:   "partial hit",
			seed:   map[string]any{"a": "deck", "b": "card"},
			keys:   []string{"a", "b", "missing"},
			want:   map[string]string{"a": "deck", "b": "card"},
			wantOK: true,
		},
		{name: "all miss", keys: []string{"a", "b"}, want: nil, wantOK: false},
		{
			name:   "wrong type skipped",
			seed:   map[string]any{"a": "deck", "b": 123},
			keys:   []string{"a", "b"},
			want:   map[string]string{"a": "deck"},
			wantOK: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := newTestCache[string]()
			for k, v := range tt.seed {
				cache.cache.Set(k, v, DefaultExpiration)
			}
			got, ok := cache.GetMultiple(context.Background(), tt.keys)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestInMemoryCacheManager_GetWithRefresh(t *testing.T) {
	cache := newTestCache[string]()

	got, ok := cache.GetWithRefresh(context.Background(), "key", time.Hour)
	require.False(t, ok)
	require.Equal(t, "", got)

	cache.Set(context.Background(), "key", "value", 50*time.Millisecond)
	got, ok = cache.GetWithRefresh(context.Background(), "key", time.Hour)
	require.True(t, ok)
	require.Equal(t, "value", got)

	time.Sleep(100 * time.Millisecond)
	_, ok = cache.Get(context.Background(), "key")
	require.True(t, ok, "refresh extended the ttl")
}

func TestInMemoryCacheManager_DeleteAndFlush(t *testing.T) {
	cache := newTestCache[string]()
	require.NoError(t, cache.Delete(context.Background()))

	cache.Set(context.Background(), "a", "1", DefaultExpiration)
	cache.Set(context.Background(), "b", "2", DefaultExpiration)

	require.NoError(t, cache.Delete(context.Background(), "a"))
	_, ok := cache.Get(context.Background(), "a")
	require.False(t, ok)

	require.NoError(t, cache.Flush(context.Background()))
	_, ok = cache.Get(context.Background(), "b")
	require.False(t, ok)
}

func TestInMemoryCacheManager_Stats(t *testing.T) {
	cache := newTestCache[string]()
	cache.Set(context.Background(), "a", "1", DefaultExpiration)

	cache.Get(context.Background(), "a")
	cache.Get(context.Background(), "a")
	cache.Get(context.Background(), "b")

	require.Equal(t, Stats{Hits: 2, Misses: 1, Items: 1}, cache.Stats())
}
