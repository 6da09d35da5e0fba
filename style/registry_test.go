package style

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/iconcache/kv"
	"github.com/meigma/iconcache/resolve"
)

const inlineRef = "data:image/svg+xml;base64,PHN2Zz48L3N2Zz4="

// manualScheduler records scheduled flushes so tests decide when they run.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []func()
}

func (s *manualScheduler) schedule(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, f)
}

func (s *manualScheduler) runAll() int {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()
	for _, f := range tasks {
		f()
	}
	return len(tasks)
}

func newTestRegistry(t *testing.T, store kv.Store, opts ...Option) (*Registry, *manualScheduler, *MemorySheet) {
	t.Helper()
	sched := &manualScheduler{}
	var sheet *MemorySheet
	base := []Option{
		WithScheduler(sched.schedule),
		WithSheetFactory(func() Sheet {
			sheet = NewMemorySheet()
			return sheet
		}),
		WithResolver(resolve.New(resolve.WithOrigin("https://app.example.com"))),
	}
	r := New(store, append(base, opts...)...)
	r.EnsureStylesheet(context.Background())
	require.NotNil(t, sheet)
	return r, sched, sheet
}

func iconRules(sheet *MemorySheet) []string {
	var out []string
	for _, rule := range sheet.Rules() {
		if strings.HasPrefix(rule, ".ui-icon") {
			out = append(out, rule)
		}
	}
	return out
}

func TestEnsureStylesheetInsertsBaseRules(t *testing.T) {
	t.Parallel()

	r, _, sheet := newTestRegistry(t, kv.NewMemory())
	assert.Equal(t, baseRules, sheet.Rules())
	assert.Same(t, Sheet(sheet), r.EnsureStylesheet(context.Background()))
}

func TestRegisterDedup(t *testing.T) {
	t.Parallel()

	r, sched, sheet := newTestRegistry(t, kv.NewMemory())

	r.Register("house", "duotone", inlineRef, 32)
	r.Register("house", "duotone", inlineRef, 32)
	r.Register("house", "DuoTone", "data:other", 32)
	assert.True(t, r.HasRule("house", "duotone", 32))
	assert.Equal(t, 1, sched.runAll(), "one flush per batch")

	r.Register("house", "duotone", inlineRef, 32)
	assert.Zero(t, sched.runAll(), "registered rule should not schedule a flush")

	require.Len(t, iconRules(sheet), 1)
	assert.Equal(t,
		`.ui-icon[icon="house"][icon-style="duotone"], :host(.ui-icon[icon="house"][icon-style="duotone"]) { --icon-image: url("`+inlineRef+`"); }`,
		iconRules(sheet)[0])

	r.Register("house", "duotone", inlineRef, 64)
	sched.runAll()
	assert.Len(t, iconRules(sheet), 2)
}

func TestFlushPreservesQueueOrder(t *testing.T) {
	t.Parallel()

	r, sched, sheet := newTestRegistry(t, kv.NewMemory())
	names := []string{"c", "a", "b", "d"}
	for _, n := range names {
		r.Register(n, "bold", inlineRef, 32)
	}
	require.Equal(t, 1, sched.runAll())

	got := iconRules(sheet)
	require.Len(t, got, len(names))
	for i, n := range names {
		assert.Contains(t, got[i], `[icon="`+n+`"]`)
	}
}

func TestHasRuleCoversPending(t *testing.T) {
	t.Parallel()

	r, sched, _ := newTestRegistry(t, kv.NewMemory())
	assert.False(t, r.HasRule("star", "fill", 64))
	r.Register("star", "fill", inlineRef, 64)
	assert.True(t, r.HasRule("star", "fill", 64))

	rule, ok := r.Lookup("star", "fill", 64)
	require.True(t, ok)
	assert.Equal(t, inlineRef, rule.Ref)

	sched.runAll()
	assert.True(t, r.HasRule("star", "fill", 64))
	assert.False(t, r.HasRule("star", "fill", 32))
}

func TestRegisterEmptyAndCrossOriginRefs(t *testing.T) {
	t.Parallel()

	r, sched, _ := newTestRegistry(t, kv.NewMemory())
	r.Register("empty", "regular", "", 32)
	r.Register("remote", "regular", "https://cdn.example.net/a.svg", 32)
	r.Register("", "regular", inlineRef, 32)
	sched.runAll()

	rule, ok := r.Lookup("empty", "regular", 32)
	require.True(t, ok)
	assert.Equal(t, "--icon-image: linear-gradient(#0000, #0000);", rule.Declaration)

	rule, ok = r.Lookup("remote", "regular", 32)
	require.True(t, ok)
	assert.Equal(t, `--icon-image: url("/api/icon-proxy?url=https%3A%2F%2Fcdn.example.net%2Fa.svg");`, rule.Declaration)

	assert.Len(t, r.Rules(), 2)
}

func TestPersistable(t *testing.T) {
	t.Parallel()

	r := New(nil, WithResolver(resolve.New(resolve.WithOrigin("https://app.example.com"))))
	tests := []struct {
		decl string
		want bool
	}{
		{Declaration(URLValue(inlineRef)), true},
		{Declaration(URLValue("/assets/a.svg")), true},
		{Declaration(URLValue("https://app.example.com/a.svg")), true},
		{Declaration(URLValue("https://cdn.example.net/a.svg")), false},
		{Declaration(URLValue("blob:https://app.example.com/123")), false},
		{Declaration(EmptyImage), false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.Persistable(tt.decl), tt.decl)
	}
}

func TestFlushPersistsFilteredRecord(t *testing.T) {
	t.Parallel()

	store := kv.NewMemory()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, sched, _ := newTestRegistry(t, store,
		WithNow(func() time.Time { return now }),
		WithResolver(resolve.New(resolve.WithOrigin("https://app.example.com"), resolve.WithRuntime(resolve.RuntimeExtension))),
	)

	r.Register("house", "duotone", inlineRef, 32)
	r.Register("remote", "duotone", "https://cdn.example.net/a.svg", 32)
	r.Register("blob", "duotone", "blob:https://app.example.com/1", 32)
	sched.runAll()

	data, err := store.Get(context.Background(), RecordKey)
	require.NoError(t, err)
	var rec record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, now.UnixMilli(), rec.Timestamp)
	require.Len(t, rec.Rules, 1)
	assert.Equal(t, "duotone:house@32", rec.Rules[0].Key)
	assert.Equal(t, Selector("house", "duotone"), rec.Rules[0].Selector)
}

func TestRestoreFreshRecord(t *testing.T) {
	t.Parallel()

	store := kv.NewMemory()
	ctx := context.Background()
	first, sched, _ := newTestRegistry(t, store)
	first.Register("house", "duotone", inlineRef, 32)
	first.Register("gear", "bold", "/assets/gear.svg", 64)
	sched.runAll()
	require.NoError(t, store.Put(ctx, legacyRecordKey, []byte("old")))

	second, _, sheet := newTestRegistry(t, store)
	assert.True(t, second.HasRule("house", "duotone", 32))
	assert.True(t, second.HasRule("gear", "bold", 64))
	assert.Len(t, iconRules(sheet), 2)

	rule, ok := second.Lookup("gear", "bold", 64)
	require.True(t, ok)
	assert.Equal(t, "/assets/gear.svg", rule.Ref)

	_, err := store.Get(ctx, legacyRecordKey)
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestRestoreDropsStaleRecord(t *testing.T) {
	t.Parallel()

	store := kv.NewMemory()
	ctx := context.Background()
	past := time.Now().Add(-25 * time.Hour)
	first, sched, _ := newTestRegistry(t, store, WithNow(func() time.Time { return past }))
	first.Register("house", "duotone", inlineRef, 32)
	sched.runAll()

	second, _, sheet := newTestRegistry(t, store)
	assert.False(t, second.HasRule("house", "duotone", 32))
	assert.Empty(t, iconRules(sheet))

	_, err := store.Get(ctx, RecordKey)
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestRestoreRefiltersEntries(t *testing.T) {
	t.Parallel()

	store := kv.NewMemory()
	rec := record{
		Timestamp: time.Now().UnixMilli(),
		Rules: []recordRule{
			{Key: "duotone:ok@32", Selector: Selector("ok", "duotone"), CSSText: Declaration(URLValue(inlineRef))},
			{Key: "duotone:remote@32", Selector: Selector("remote", "duotone"), CSSText: Declaration(URLValue("https://evil.example/a.svg"))},
			{Key: "duotone:blob@32", Selector: Selector("blob", "duotone"), CSSText: Declaration(URLValue("blob:x"))},
			{Key: "broken", Selector: Selector("broken", "duotone"), CSSText: Declaration(URLValue(inlineRef))},
		},
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), RecordKey, data))

	r, _, sheet := newTestRegistry(t, store)
	assert.True(t, r.HasRule("ok", "duotone", 32))
	assert.False(t, r.HasRule("remote", "duotone", 32))
	assert.False(t, r.HasRule("blob", "duotone", 32))
	assert.Len(t, iconRules(sheet), 1)
}

func TestResetAndRevalidate(t *testing.T) {
	t.Parallel()

	store := kv.NewMemory()
	ctx := context.Background()
	r, sched, sheet := newTestRegistry(t, store)
	r.Register("house", "duotone", inlineRef, 32)
	sched.runAll()

	assert.Same(t, Sheet(sheet), r.Revalidate(ctx), "healthy sheet is kept")

	sheet.Detach()
	fresh := r.Revalidate(ctx)
	require.NotNil(t, fresh)
	assert.NotSame(t, Sheet(sheet), fresh)
	assert.False(t, fresh.Detached())
	assert.False(t, r.HasRule("house", "duotone", 32))
	assert.Equal(t, baseRules, fresh.Rules())

	_, err := store.Get(ctx, RecordKey)
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestResetDropsPending(t *testing.T) {
	t.Parallel()

	r, sched, _ := newTestRegistry(t, kv.NewMemory())
	r.Register("house", "duotone", inlineRef, 32)
	r.Reset(context.Background())
	assert.False(t, r.HasRule("house", "duotone", 32))
	sched.runAll()
	assert.Empty(t, r.Rules())
}

func TestDefaultSchedulerFlushes(t *testing.T) {
	t.Parallel()

	r := New(kv.NewMemory())
	r.Register("house", "duotone", inlineRef, 32)
	require.Eventually(t, func() bool { return len(r.Rules()) == 1 }, time.Second, time.Millisecond)
}
