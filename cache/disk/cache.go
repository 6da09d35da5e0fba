// Package disk provides the disk-backed icon asset store.
//
// The store root holds a metadata record and two bucket directories:
//
//	<dir>/.cache-meta.json
//	<dir>/vector/<sanitized key>.svg
//	<dir>/raster/<sanitized key>.png|.webp
//
// A schema version change, an idle period longer than the maximum age, or an
// aggregate size above the maximum wipes the whole store on Init.
package disk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meigma/iconcache/cache"
)

// Defaults for store limits.
const (
	DefaultSchemaVersion       = 2
	DefaultMaxAge              = 7 * 24 * time.Hour
	DefaultMaxBytes      int64 = 50 << 20 // 50 MB

	defaultDirPerm = 0o700
)

// Store implements cache.Store using the local filesystem.
// The store is safe for concurrent use.
type Store struct {
	dir           string
	schemaVersion int
	maxAge        time.Duration
	maxBytes      int64
	dirPerm       os.FileMode
	logger        *slog.Logger
	now           func() time.Time

	initOnce sync.Once
	initErr  error

	bytes   atomic.Int64 // current total size of bucket files
	writeMu sync.Mutex   // serializes writes against Clear
}

// Interface compliance.
var _ cache.Store = (*Store)(nil)

// Option configures a disk store.
type Option func(*Store)

// WithSchemaVersion sets the schema version recorded in the metadata.
// A different version on disk wipes the store.
func WithSchemaVersion(v int) Option {
	return func(s *Store) {
		s.schemaVersion = v
	}
}

// WithMaxAge sets how long the store may sit unused before it is wiped.
func WithMaxAge(d time.Duration) Option {
	return func(s *Store) {
		s.maxAge = d
	}
}

// WithMaxBytes sets the maximum aggregate size in bytes.
// Values <= 0 disable the limit.
func WithMaxBytes(n int64) Option {
	return func(s *Store) {
		s.maxBytes = n
	}
}

// WithDirPerm sets the directory permissions used for store directories.
func WithDirPerm(mode os.FileMode) Option {
	return func(s *Store) {
		s.dirPerm = mode
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNow sets the clock used for metadata timestamps.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open creates a disk store rooted at dir. The directory is created if
// needed; the metadata and buckets are prepared lazily by Init.
func Open(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, errors.New("cache dir is empty")
	}
	s := &Store{
		dir:           dir,
		schemaVersion: DefaultSchemaVersion,
		maxAge:        DefaultMaxAge,
		maxBytes:      DefaultMaxBytes,
		dirPerm:       defaultDirPerm,
		logger:        slog.New(slog.DiscardHandler),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(dir, s.dirPerm); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return s, nil
}

// OpenOrNoop opens a disk store, degrading to cache.Noop when the directory
// cannot be used. The returned store is never nil.
func OpenOrNoop(ctx context.Context, dir string, opts ...Option) cache.Store {
	s, err := Open(dir, opts...)
	if err != nil {
		return cache.Noop{}
	}
	if err := s.Init(ctx); err != nil {
		s.logger.Warn("icon store unavailable, continuing without persistence",
			slog.String("dir", dir), slog.Any("error", err))
		return cache.Noop{}
	}
	return s
}

// Dir returns the store root.
func (s *Store) Dir() string {
	return s.dir
}

// Init reads or creates the metadata record, wipes the store when it is
// stale, and (re)creates the buckets. Concurrent and repeated calls share the
// outcome of the first call, which is not cancelled by ctx.
func (s *Store) Init(_ context.Context) error {
	s.initOnce.Do(func() {
		s.initErr = s.initialize()
		if s.initErr != nil {
			s.logger.Warn("icon store init failed", slog.String("dir", s.dir), slog.Any("error", s.initErr))
		}
	})
	return s.initErr
}

func (s *Store) initialize() error {
	meta, exists, err := s.readMeta()
	if err != nil {
		return err
	}
	now := s.now()

	var wipeReason string
	switch {
	case exists && meta == nil:
		wipeReason = "unreadable metadata"
	case meta != nil && meta.SchemaVersion != s.schemaVersion:
		wipeReason = "schema version mismatch"
	case meta != nil && s.maxAge > 0 && now.Sub(meta.LastAccessedAt) > s.maxAge:
		wipeReason = "expired"
	default:
		size, err := s.bucketBytes()
		if err != nil {
			return fmt.Errorf("measure cache: %w", err)
		}
		if s.maxBytes > 0 && size > s.maxBytes {
			wipeReason = "size exceeded"
		}
	}

	if wipeReason != "" {
		s.logger.Info("clearing icon store", slog.String("reason", wipeReason), slog.String("dir", s.dir))
		if err := s.wipe(); err != nil {
			return fmt.Errorf("wipe cache: %w", err)
		}
		meta = nil
	}

	if err := s.ensureBuckets(); err != nil {
		return err
	}
	size, err := s.bucketBytes()
	if err != nil {
		return fmt.Errorf("measure cache: %w", err)
	}
	s.bytes.Store(size)

	created := now
	if meta != nil && !meta.CreatedAt.IsZero() {
		created = meta.CreatedAt
	}
	if err := s.writeMeta(Metadata{
		SchemaVersion:  s.schemaVersion,
		CreatedAt:      created,
		LastAccessedAt: now,
	}); err != nil {
		return err
	}
	return nil
}

func (s *Store) ensureBuckets() error {
	for _, b := range []cache.Bucket{cache.BucketVector, cache.BucketRaster} {
		if err := os.MkdirAll(filepath.Join(s.dir, string(b)), s.dirPerm); err != nil {
			return fmt.Errorf("create %s bucket: %w", b, err)
		}
	}
	return nil
}

// wipe removes everything under the root except the metadata record.
func (s *Store) wipe() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name() == metaFileName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
			return err
		}
	}
	s.bytes.Store(0)
	return nil
}

// ready runs Init and maps a failed init to cache.ErrUnavailable.
func (s *Store) ready(ctx context.Context) error {
	if err := s.Init(ctx); err != nil {
		return fmt.Errorf("%w: %w", cache.ErrUnavailable, err)
	}
	return nil
}

// Put stores data under key, replacing any existing entry in the bucket.
// Writes that would push the store past its size limit are skipped.
func (s *Store) Put(ctx context.Context, bucket cache.Bucket, key string, data []byte) error {
	if !bucket.Valid() {
		return cache.ErrInvalidBucket
	}
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	root, err := os.OpenRoot(s.dir)
	if err != nil {
		return fmt.Errorf("open cache root: %w", err)
	}
	defer root.Close()

	name := filepath.Join(string(bucket), sanitizeKey(key)+extensionFor(bucket, data))
	var replaced int64
	if info, err := root.Stat(name); err == nil {
		replaced = info.Size()
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat cache entry: %w", err)
	}

	written := int64(len(data))
	if s.maxBytes > 0 && s.bytes.Load()-replaced+written > s.maxBytes {
		s.logger.Debug("icon store full, skipping write", slog.String("key", key))
		return nil
	}

	tmp, tmpPath, err := createTemp(root, string(bucket), ".put-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = root.Remove(tmpPath)
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = root.Remove(tmpPath)
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := root.Rename(tmpPath, name); err != nil {
		_ = root.Remove(tmpPath)
		return fmt.Errorf("rename cache file: %w", err)
	}
	s.bytes.Add(written - replaced)

	if bucket == cache.BucketRaster {
		s.removeSiblings(root, key, name)
	}
	return nil
}

// removeSiblings drops raster entries for key stored under another extension.
func (s *Store) removeSiblings(root *os.Root, key, keep string) {
	for _, ext := range rasterExts {
		other := filepath.Join(string(cache.BucketRaster), sanitizeKey(key)+ext)
		if other == keep {
			continue
		}
		if info, err := root.Stat(other); err == nil {
			if root.Remove(other) == nil {
				s.bytes.Add(-info.Size())
			}
		}
	}
}

// Get returns the stored bytes for key. Missing, empty and unreadable entries
// are reported as misses.
func (s *Store) Get(ctx context.Context, bucket cache.Bucket, key string) ([]byte, bool) {
	if !bucket.Valid() || s.ready(ctx) != nil || ctx.Err() != nil {
		return nil, false
	}
	root, err := os.OpenRoot(s.dir)
	if err != nil {
		return nil, false
	}
	defer root.Close()

	for _, ext := range extensionsFor(bucket) {
		data, err := root.ReadFile(filepath.Join(string(bucket), sanitizeKey(key)+ext))
		if err != nil || len(data) == 0 {
			continue
		}
		return data, true
	}
	return nil, false
}

// Stats walks both buckets and returns entry counts and total size.
func (s *Store) Stats(ctx context.Context) (cache.Stats, error) {
	if err := s.ready(ctx); err != nil {
		return cache.Stats{}, err
	}
	return s.stats()
}

// Clear removes every entry and rewrites fresh metadata.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.wipe(); err != nil {
		return fmt.Errorf("wipe cache: %w", err)
	}
	if err := s.ensureBuckets(); err != nil {
		return err
	}
	now := s.now()
	return s.writeMeta(Metadata{SchemaVersion: s.schemaVersion, CreatedAt: now, LastAccessedAt: now})
}

var rasterExts = []string{".png", ".webp"}

func extensionFor(bucket cache.Bucket, data []byte) string {
	if bucket == cache.BucketVector {
		return ".svg"
	}
	if len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")) {
		return ".webp"
	}
	return ".png"
}

func extensionsFor(bucket cache.Bucket) []string {
	if bucket == cache.BucketVector {
		return []string{".svg"}
	}
	return rasterExts
}
