package disk

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/meigma/iconcache/cache"
)

const testSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24"><path d="M0 0h24v24H0z"/></svg>`

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func openStore(t *testing.T, dir string, opts ...Option) *Store {
	t.Helper()
	s, err := Open(dir, opts...)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return s
}

func writeMetaFile(t *testing.T, dir string, m Metadata) {
	t.Helper()
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metaFileName), data, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestStorePutGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	s := openStore(t, dir)

	key := "https://cdn.example.net/icons/house.svg"
	if err := s.Put(ctx, cache.BucketVector, key, []byte(testSVG)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, ok := s.Get(ctx, cache.BucketVector, key)
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if string(got) != testSVG {
		t.Fatalf("Get() content = %q, want %q", got, testSVG)
	}

	if _, ok := s.Get(ctx, cache.BucketRaster, key); ok {
		t.Fatal("Get(raster) ok = true, buckets should be independent")
	}

	path := filepath.Join(dir, "vector", sanitizeKey(key)+".svg")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected cache file at %s: %v", path, err)
	}
}

func TestStoreRejectsUnknownBucket(t *testing.T) {
	t.Parallel()

	s := openStore(t, t.TempDir())
	if err := s.Put(context.Background(), cache.Bucket("other"), "k", []byte("x")); err != cache.ErrInvalidBucket {
		t.Fatalf("Put() error = %v, want %v", err, cache.ErrInvalidBucket)
	}
	if _, ok := s.Get(context.Background(), cache.Bucket("other"), "k"); ok {
		t.Fatal("Get() ok = true for unknown bucket")
	}
}

func TestStoreEmptyEntryIsMiss(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := openStore(t, dir)
	path := filepath.Join(dir, "vector", sanitizeKey("k")+".svg")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, ok := s.Get(context.Background(), cache.BucketVector, "k"); ok {
		t.Fatal("Get() ok = true for empty entry")
	}
}

func TestStoreRasterReplacesOtherFormat(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	s := openStore(t, dir)

	webpish := []byte("RIFF\x00\x00\x00\x00WEBPVP8 ")
	if err := s.Put(ctx, cache.BucketRaster, "k", webpish); err != nil {
		t.Fatalf("Put(webp) error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "raster", "k.webp")); err != nil {
		t.Fatalf("expected webp entry: %v", err)
	}

	pngData := testPNG(t)
	if err := s.Put(ctx, cache.BucketRaster, "k", pngData); err != nil {
		t.Fatalf("Put(png) error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "raster", "k.webp")); !os.IsNotExist(err) {
		t.Fatalf("webp entry should be removed, stat error = %v", err)
	}
	got, ok := s.Get(ctx, cache.BucketRaster, "k")
	if !ok || !bytes.Equal(got, pngData) {
		t.Fatalf("Get() = %v, %v; want png bytes", len(got), ok)
	}
}

func TestStoreSkipsWritesPastLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t, t.TempDir(), WithMaxBytes(int64(len(testSVG))+10))

	if err := s.Put(ctx, cache.BucketVector, "a", []byte(testSVG)); err != nil {
		t.Fatalf("Put(a) error = %v", err)
	}
	if err := s.Put(ctx, cache.BucketVector, "b", []byte(testSVG)); err != nil {
		t.Fatalf("Put(b) error = %v", err)
	}
	if _, ok := s.Get(ctx, cache.BucketVector, "b"); ok {
		t.Fatal("Get(b) ok = true, write past limit should be skipped")
	}

	// Overwriting an entry only counts the difference.
	if err := s.Put(ctx, cache.BucketVector, "a", []byte(testSVG)); err != nil {
		t.Fatalf("Put(a) again error = %v", err)
	}
	if _, ok := s.Get(ctx, cache.BucketVector, "a"); !ok {
		t.Fatal("Get(a) ok = false after overwrite")
	}
}

func TestStoreStats(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t, t.TempDir())
	pngData := testPNG(t)

	for _, k := range []string{"a", "b"} {
		if err := s.Put(ctx, cache.BucketVector, k, []byte(testSVG)); err != nil {
			t.Fatalf("Put(%s) error = %v", k, err)
		}
	}
	if err := s.Put(ctx, cache.BucketRaster, "c", pngData); err != nil {
		t.Fatalf("Put(c) error = %v", err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	want := cache.Stats{
		VectorCount: 2,
		RasterCount: 1,
		TotalBytes:  int64(2*len(testSVG) + len(pngData)),
	}
	if st != want {
		t.Fatalf("Stats() = %+v, want %+v", st, want)
	}
}

func TestInitWipesOnSchemaMismatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	s := openStore(t, dir)
	if err := s.Put(ctx, cache.BucketVector, "k", []byte(testSVG)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	now := time.Now()
	writeMetaFile(t, dir, Metadata{SchemaVersion: 1, CreatedAt: now, LastAccessedAt: now})

	reopened := openStore(t, dir)
	if _, ok := reopened.Get(ctx, cache.BucketVector, "k"); ok {
		t.Fatal("Get() ok = true, store should be wiped on schema mismatch")
	}
	st, err := reopened.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if st != (cache.Stats{}) {
		t.Fatalf("Stats() = %+v, want empty", st)
	}

	meta, _, err := reopened.readMeta()
	if err != nil || meta == nil {
		t.Fatalf("readMeta() = %v, %v", meta, err)
	}
	if meta.SchemaVersion != DefaultSchemaVersion {
		t.Fatalf("SchemaVersion = %d, want %d", meta.SchemaVersion, DefaultSchemaVersion)
	}
}

func TestInitWipesExpiredStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	s := openStore(t, dir)
	if err := s.Put(ctx, cache.BucketVector, "k", []byte(testSVG)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	old := time.Now().Add(-8 * 24 * time.Hour)
	writeMetaFile(t, dir, Metadata{SchemaVersion: DefaultSchemaVersion, CreatedAt: old, LastAccessedAt: old})

	reopened := openStore(t, dir)
	if _, ok := reopened.Get(ctx, cache.BucketVector, "k"); ok {
		t.Fatal("Get() ok = true, expired store should be wiped")
	}
}

func TestInitKeepsFreshStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := openStore(t, dir, WithNow(func() time.Time { return created }), WithMaxAge(0))
	if err := s.Put(ctx, cache.BucketVector, "k", []byte(testSVG)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	later := created.Add(time.Hour)
	reopened := openStore(t, dir, WithNow(func() time.Time { return later }), WithMaxAge(0))
	if _, ok := reopened.Get(ctx, cache.BucketVector, "k"); !ok {
		t.Fatal("Get() ok = false, fresh store should be kept")
	}
	meta, _, err := reopened.readMeta()
	if err != nil || meta == nil {
		t.Fatalf("readMeta() = %v, %v", meta, err)
	}
	if !meta.CreatedAt.Equal(created) {
		t.Fatalf("CreatedAt = %v, want %v", meta.CreatedAt, created)
	}
	if !meta.LastAccessedAt.Equal(later) {
		t.Fatalf("LastAccessedAt = %v, want %v", meta.LastAccessedAt, later)
	}
}

func TestInitWipesOversizedStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	s := openStore(t, dir)
	if err := s.Put(ctx, cache.BucketVector, "k", []byte(testSVG)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	reopened := openStore(t, dir, WithMaxBytes(10))
	if _, ok := reopened.Get(ctx, cache.BucketVector, "k"); ok {
		t.Fatal("Get() ok = true, oversized store should be wiped")
	}
}

func TestInitWipesCorruptMetadata(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	s := openStore(t, dir)
	if err := s.Put(ctx, cache.BucketVector, "k", []byte(testSVG)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metaFileName), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	reopened := openStore(t, dir)
	if _, ok := reopened.Get(ctx, cache.BucketVector, "k"); ok {
		t.Fatal("Get() ok = true, corrupt metadata should wipe the store")
	}
}

func TestInitConcurrent(t *testing.T) {
	t.Parallel()

	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	var wg sync.WaitGroup
	for range 16 {
		wg.Go(func() {
			if err := s.Init(context.Background()); err != nil {
				t.Errorf("Init() error = %v", err)
			}
		})
	}
	wg.Wait()
}

func TestFailedInitIsUnavailable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	// A directory in place of the metadata file cannot be read.
	if err := os.Mkdir(filepath.Join(dir, metaFileName), 0o700); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}

	ctx := context.Background()
	if err := s.Init(ctx); err == nil {
		t.Fatal("Init() error = nil, want failure")
	}
	if err := s.Put(ctx, cache.BucketVector, "k", []byte(testSVG)); err == nil {
		t.Fatal("Put() error = nil after failed init")
	}
	if _, ok := s.Get(ctx, cache.BucketVector, "k"); ok {
		t.Fatal("Get() ok = true after failed init")
	}
}

func TestOpenOrNoopFallsBack(t *testing.T) {
	t.Parallel()

	if _, ok := OpenOrNoop(context.Background(), "").(cache.Noop); !ok {
		t.Fatal("OpenOrNoop(\"\") should return cache.Noop")
	}
	if _, ok := OpenOrNoop(context.Background(), t.TempDir()).(*Store); !ok {
		t.Fatal("OpenOrNoop(dir) should return *Store")
	}
}

func TestValidateAndClean(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	s := openStore(t, dir)

	if err := s.Put(ctx, cache.BucketVector, "good", []byte(testSVG)); err != nil {
		t.Fatalf("Put(good) error = %v", err)
	}
	if err := s.Put(ctx, cache.BucketVector, "bad", []byte("<html>nope</html>")); err != nil {
		t.Fatalf("Put(bad) error = %v", err)
	}
	if err := s.Put(ctx, cache.BucketRaster, "img", testPNG(t)); err != nil {
		t.Fatalf("Put(img) error = %v", err)
	}
	if err := s.Put(ctx, cache.BucketRaster, "junk", []byte("RIFF\x00\x00\x00\x00WEBPgarbage")); err != nil {
		t.Fatalf("Put(junk) error = %v", err)
	}

	removed, err := s.ValidateAndClean(ctx)
	if err != nil {
		t.Fatalf("ValidateAndClean() error = %v", err)
	}
	if removed != 2 {
		t.Fatalf("ValidateAndClean() removed = %d, want 2", removed)
	}
	if _, ok := s.Get(ctx, cache.BucketVector, "bad"); ok {
		t.Fatal("Get(bad) ok = true after clean")
	}
	if _, ok := s.Get(ctx, cache.BucketVector, "good"); !ok {
		t.Fatal("Get(good) ok = false after clean")
	}
	if _, ok := s.Get(ctx, cache.BucketRaster, "img"); !ok {
		t.Fatal("Get(img) ok = false after clean")
	}
	if _, ok := s.Get(ctx, cache.BucketRaster, "junk"); ok {
		t.Fatal("Get(junk) ok = true after clean")
	}
}

func TestClear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t, t.TempDir())
	if err := s.Put(ctx, cache.BucketVector, "k", []byte(testSVG)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, ok := s.Get(ctx, cache.BucketVector, "k"); ok {
		t.Fatal("Get() ok = true after Clear")
	}
	if err := s.Put(ctx, cache.BucketVector, "k", []byte(testSVG)); err != nil {
		t.Fatalf("Put() after Clear error = %v", err)
	}
}

func TestSanitizeKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, stem string
	}{
		{"https://x.test/a.svg", "https___x.test_a.svg"},
		{"a<b>c:d\"e|f?g*h", "a_b_c_d_e_f_g_h"},
		{"../../etc/passwd", "____etc_passwd"},
		{".hidden", "_hidden"},
		{"a\x00b\x1fc", "a_b_c"},
	}
	for _, tt := range tests {
		want := tt.stem + "~" + keyDigest(tt.in)
		if got := sanitizeKey(tt.in); got != want {
			t.Errorf("sanitizeKey(%q) = %q, want %q", tt.in, got, want)
		}
	}

	for _, in := range []string{"plain", "house-duotone", "a~b"} {
		if got := sanitizeKey(in); got != in {
			t.Errorf("sanitizeKey(%q) = %q, want it unchanged", in, got)
		}
	}
	if got := sanitizeKey(""); got != "_empty_" {
		t.Errorf("sanitizeKey(\"\") = %q, want %q", got, "_empty_")
	}
}

func TestSanitizeKeyChangedKeysStayDistinct(t *testing.T) {
	t.Parallel()

	pairs := [][2]string{
		{"https://h/a/b.svg", "https://h/a_b.svg"},
		{"a?b", "a*b"},
		{"x..y", "x_y"},
		{".hidden", "_hidden"},
	}
	for _, p := range pairs {
		a, b := sanitizeKey(p[0]), sanitizeKey(p[1])
		if a == b {
			t.Errorf("sanitizeKey(%q) and sanitizeKey(%q) both = %q", p[0], p[1], a)
		}
	}
}

func TestStoreKeysDifferingOnlyInSeparators(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t, t.TempDir())
	nested, flat := "https://h/a/b.svg", "https://h/a_b.svg"
	other := strings.Replace(testSVG, "<path", "<circle r=\"1\"/><path", 1)
	if err := s.Put(ctx, cache.BucketVector, nested, []byte(testSVG)); err != nil {
		t.Fatalf("Put(%q) error = %v", nested, err)
	}
	if err := s.Put(ctx, cache.BucketVector, flat, []byte(other)); err != nil {
		t.Fatalf("Put(%q) error = %v", flat, err)
	}

	got, ok := s.Get(ctx, cache.BucketVector, nested)
	if !ok || string(got) != testSVG {
		t.Fatalf("Get(%q) = %q, %v; want the first entry", nested, got, ok)
	}
	got, ok = s.Get(ctx, cache.BucketVector, flat)
	if !ok || string(got) != other {
		t.Fatalf("Get(%q) = %q, %v; want the second entry", flat, got, ok)
	}
}

func TestSanitizeKeyLongKeysStayDistinct(t *testing.T) {
	t.Parallel()

	prefix := strings.Repeat("a", 300)
	a := sanitizeKey(prefix + "1")
	b := sanitizeKey(prefix + "2")
	if len(a) > maxKeyLen || len(b) > maxKeyLen {
		t.Fatalf("sanitized lengths = %d, %d; want <= %d", len(a), len(b), maxKeyLen)
	}
	if a == b {
		t.Fatal("distinct long keys collided")
	}
	if sanitizeKey(prefix+"1") != a {
		t.Fatal("sanitizeKey is not deterministic")
	}
}
