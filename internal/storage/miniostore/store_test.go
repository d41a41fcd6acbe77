package miniostore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/catalog/internal/identity"
	"github.com/zjrosen/catalog/internal/storage"
)

func TestKeyMapping(t *testing.T) {
	s := New(nil, "bucket", "/catalog/")
	require.Equal(t, "catalog/decks/a.yaml", s.key("decks/a.yaml"))
	require.Equal(t, storage.Location("decks/a.yaml"), s.location("catalog/decks/a.yaml"))

	bare := New(nil, "bucket", "")
	require.Equal(t, "decks/a.yaml", bare.key("decks/a.yaml"))
	require.Equal(t, storage.Location("decks/a.yaml"), bare.location("decks/a.yaml"))
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	s := New(nil, "bucket", "")
	s.SetReadOnly(true)
	require.ErrorIs(t, s.Save("a.yaml", &storage.Asset{Tag: "deck"}), storage.ErrReadOnly)
	require.ErrorIs(t, s.Delete("a.yaml"), storage.ErrReadOnly)
	require.ErrorIs(t, s.Move("a.yaml", "b.yaml"), storage.ErrReadOnly)
}

// TestStore_Integration requires a running MinIO instance.
func TestStore_Integration(t *testing.T) {
	ctx := context.Background()
	client, err := minio.New("localhost:9000", &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}
	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	s, err := Connect(ctx, Options{
		Endpoint:  "localhost:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "test-catalog",
		Prefix:    fmt.Sprintf("run-%d", time.Now().UnixNano()),
	})
	require.NoError(t, err)

	deckID := identity.New()
	require.NoError(t, s.Save("decks/starter.yaml", &storage.Asset{Tag: "deck", ID: deckID}))
	require.NoError(t, s.Save("decks/fireball.yaml", &storage.Asset{Tag: "card", ID: identity.New(), Collection: deckID}))

	decks, err := s.Enumerate("deck")
	require.NoError(t, err)
	require.Equal(t, []storage.Location{"decks/starter.yaml"}, decks)

	got, err := s.Load("decks/starter.yaml")
	require.NoError(t, err)
	require.Equal(t, deckID, got.ID)

	require.NoError(t, s.Move("decks/fireball.yaml", "decks/fire/fireball.yaml"))
	require.False(t, storage.Exists(s, "decks/fireball.yaml"))
	require.True(t, storage.Exists(s, "decks/fire/fireball.yaml"))
	require.ErrorIs(t, s.Move("decks/fireball.yaml", "x.yaml"), storage.ErrNotFound)

	require.NoError(t, s.Delete("decks/fire/fireball.yaml"))
	require.ErrorIs(t, s.Delete("decks/fire/fireball.yaml"), storage.ErrNotFound)
	require.NoError(t, s.Delete("decks/starter.yaml"))
}
