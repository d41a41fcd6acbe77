// Package miniostore keeps catalog assets as YAML objects in a MinIO or
// S3-compatible bucket. Locations map to object keys under a root prefix.
package miniostore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/zjrosen/catalog/internal/log"
	"github.com/zjrosen/catalog/internal/storage"
)

// kindMeta is the user metadata key carrying the asset kind.
const kindMeta = "Kind"

const defaultTimeout = 10 * time.Second

// Options configures a connection to an object store.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Secure    bool
	Timeout   time.Duration
}

// Store is a storage.Store backed by an object bucket.
type Store struct {
	client  *minio.Client
	bucket  string
	prefix  string
	timeout time.Duration

	mu       sync.Mutex
	readOnly bool
	kinds    map[string]taggedETag
}

type taggedETag struct {
	etag string
	tag  storage.TypeTag
}

var _ storage.Store = (*Store)(nil)

// Connect creates a client from opts and makes sure the bucket exists.
func Connect(ctx context.Context, opts Options) (*Store, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("creating object store client: %w", err)
	}
	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("creating bucket %s: %w", opts.Bucket, err)
		}
		log.Info(log.CatStore, "created bucket", "bucket", opts.Bucket)
	}
	s := New(client, opts.Bucket, opts.Prefix)
	if opts.Timeout > 0 {
		s.timeout = opts.Timeout
	}
	return s, nil
}

// New wraps an existing client. prefix is prepended to every key.
func New(client *minio.Client, bucket, prefix string) *Store {
	return &Store{
		client:  client,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		timeout: defaultTimeout,
		kinds:   make(map[string]taggedETag),
	}
}

// SetReadOnly makes every mutating call fail with storage.ErrReadOnly.
func (s *Store) SetReadOnly(readOnly bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readOnly = readOnly
}

func (s *Store) key(loc storage.Location) string {
	return path.Join(s.prefix, string(loc))
}

func (s *Store) location(key string) storage.Location {
	name := strings.TrimPrefix(key, s.prefix)
	return storage.Location(strings.TrimPrefix(name, "/"))
}

func (s *Store) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

// Enumerate lists the objects under the prefix and keeps those whose kind
// matches tag. The kind comes from object metadata when present, otherwise
// from the document itself; either way it is cached per ETag.
func (s *Store) Enumerate(tag storage.TypeTag) ([]storage.Location, error) {
	ctx, cancel := s.opContext()
	defer cancel()

	listPrefix := s.prefix
	if listPrefix != "" {
		listPrefix += "/"
	}
	var locs []storage.Location
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:       listPrefix,
		Recursive:    true,
		WithMetadata: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("enumerating %s: %w", tag, obj.Err)
		}
		if !strings.HasSuffix(obj.Key, storage.Extension) {
			continue
		}
		got, err := s.kindOf(ctx, obj)
		if err != nil {
			log.Debug(log.CatStore, "skipping unreadable object", "key", obj.Key, "error", err)
			continue
		}
		if got == tag {
			locs = append(locs, s.location(obj.Key))
		}
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i] < locs[j] })
	return locs, nil
}

func (s *Store) kindOf(ctx context.Context, obj minio.ObjectInfo) (storage.TypeTag, error) {
	for k, v := range obj.UserMetadata {
		if strings.EqualFold(k, "X-Amz-Meta-"+kindMeta) {
			return storage.TypeTag(v), nil
		}
	}

	s.mu.Lock()
	cached, ok := s.kinds[obj.Key]
	s.mu.Unlock()
	if ok && cached.etag == obj.ETag {
		return cached.tag, nil
	}

	data, err := s.read(ctx, obj.Key)
	if err != nil {
		return "", err
	}
	tag, err := storage.PeekTag(data)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.kinds[obj.Key] = taggedETag{etag: obj.ETag, tag: tag}
	s.mu.Unlock()
	return tag, nil
}

func (s *Store) read(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = obj.Close() }()
	return io.ReadAll(obj)
}

// Load fetches and decodes the object at loc.
func (s *Store) Load(loc storage.Location) (*storage.Asset, error) {
	ctx, cancel := s.opContext()
	defer cancel()

	data, err := s.read(ctx, s.key(loc))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, loc)
		}
		return nil, fmt.Errorf("loading %s: %w", loc, err)
	}
	asset, err := storage.DecodeAsset(data)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", loc, err)
	}
	return asset, nil
}

// Save uploads the encoded asset, tagging the object with its kind.
func (s *Store) Save(loc storage.Location, asset *storage.Asset) error {
	if asset == nil {
		return errors.New("asset cannot be nil")
	}
	if err := s.writable(); err != nil {
		return err
	}
	data, err := storage.EncodeAsset(asset)
	if err != nil {
		return err
	}
	ctx, cancel := s.opContext()
	defer cancel()

	_, err = s.client.PutObject(ctx, s.bucket, s.key(loc), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  "application/yaml",
		UserMetadata: map[string]string{kindMeta: string(asset.Tag)},
	})
	if err != nil {
		return fmt.Errorf("saving %s: %w", loc, err)
	}
	return nil
}

// Delete removes the object at loc.
func (s *Store) Delete(loc storage.Location) error {
	if err := s.writable(); err != nil {
		return err
	}
	ctx, cancel := s.opContext()
	defer cancel()

	key := s.key(loc)
	if err := s.stat(ctx, loc); err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil && !isNotFound(err) {
		return fmt.Errorf("deleting %s: %w", loc, err)
	}
	s.mu.Lock()
	delete(s.kinds, key)
	s.mu.Unlock()
	return nil
}

// Move copies the object to its new key and removes the original.
func (s *Store) Move(from, to storage.Location) error {
	if err := s.writable(); err != nil {
		return err
	}
	ctx, cancel := s.opContext()
	defer cancel()

	if err := s.stat(ctx, from); err != nil {
		return err
	}
	if err := s.stat(ctx, to); err == nil {
		return fmt.Errorf("%w: %s", storage.ErrExists, to)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: s.key(to)},
		minio.CopySrcOptions{Bucket: s.bucket, Object: s.key(from)},
	)
	if err != nil {
		return fmt.Errorf("moving %s to %s: %w", from, to, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, s.key(from), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("removing %s after copy: %w", from, err)
	}
	return nil
}

func (s *Store) stat(ctx context.Context, loc storage.Location) error {
	_, err := s.client.StatObject(ctx, s.bucket, s.key(loc), minio.StatObjectOptions{})
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, loc)
	}
	return err
}

// IsNestedUnder applies the shared directory locality rule to object keys.
func (s *Store) IsNestedUnder(loc, ancestor storage.Location) bool {
	return storage.NestedUnder(loc, ancestor)
}

func (s *Store) writable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly {
		return storage.ErrReadOnly
	}
	return nil
}
