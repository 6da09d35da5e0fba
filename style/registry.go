// Package style maintains the deduplicated, size-bucketed icon rule registry.
//
// Each resolved icon becomes one rule keyed by variant, name and size bucket.
// Rules are queued on Register and inserted in batches, in queue order, by a
// single scheduled flush. The persistable subset of rules is written to a
// kv.Store so a later process can restore them before touching the network.
package style

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/meigma/iconcache/kv"
	"github.com/meigma/iconcache/resolve"
)

// DefaultFreshness bounds the age of a restorable record.
const DefaultFreshness = 24 * time.Hour

// Registry owns the active sheet and its persisted copy.
// It is safe for concurrent use.
type Registry struct {
	kv        kv.Store
	resolver  *resolve.Resolver
	now       func() time.Time
	logger    *slog.Logger
	freshness time.Duration
	newSheet  func() Sheet
	schedule  func(func())

	persistMu sync.Mutex // orders record writes

	mu        sync.Mutex
	sheet     Sheet
	rules     map[RuleKey]Rule
	order     []RuleKey
	pending   []Rule
	queued    map[RuleKey]struct{}
	scheduled bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithResolver sets the resolver used to proxy cross-origin references and
// to decide which URLs are same-origin.
func WithResolver(r *resolve.Resolver) Option {
	return func(reg *Registry) {
		reg.resolver = r
	}
}

// WithNow sets the clock used for record timestamps.
func WithNow(now func() time.Time) Option {
	return func(reg *Registry) {
		if now != nil {
			reg.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(reg *Registry) {
		if logger != nil {
			reg.logger = logger
		}
	}
}

// WithFreshness sets the maximum age of a restorable record.
func WithFreshness(d time.Duration) Option {
	return func(reg *Registry) {
		if d > 0 {
			reg.freshness = d
		}
	}
}

// WithSheetFactory sets how new sheets are created.
func WithSheetFactory(fn func() Sheet) Option {
	return func(reg *Registry) {
		if fn != nil {
			reg.newSheet = fn
		}
	}
}

// WithScheduler sets how flushes are scheduled. The default runs each flush
// on a new goroutine.
func WithScheduler(fn func(func())) Option {
	return func(reg *Registry) {
		if fn != nil {
			reg.schedule = fn
		}
	}
}

// New creates a Registry backed by store. A nil store keeps state in memory.
func New(store kv.Store, opts ...Option) *Registry {
	if store == nil {
		store = kv.NewMemory()
	}
	r := &Registry{
		kv:        store,
		now:       time.Now,
		logger:    slog.New(slog.DiscardHandler),
		freshness: DefaultFreshness,
		newSheet:  func() Sheet { return NewMemorySheet() },
		schedule:  func(f func()) { go f() },
		rules:     make(map[RuleKey]Rule),
		queued:    make(map[RuleKey]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EnsureStylesheet returns the active sheet, creating it on first use. A new
// sheet gets the base rules followed by any restorable persisted rules.
func (r *Registry) EnsureStylesheet(ctx context.Context) Sheet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureLocked(ctx)
}

func (r *Registry) ensureLocked(ctx context.Context) Sheet {
	if r.sheet != nil {
		return r.sheet
	}

	var restore []recordRule
	if len(r.rules) == 0 {
		restore = r.loadRecord(ctx)
	}

	sheet := r.newSheet()
	for _, text := range baseRules {
		if err := sheet.InsertRule(text); err != nil {
			r.logger.Warn("failed to insert base rule", slog.Any("error", err))
		}
	}
	r.sheet = sheet
	r.restoreLocked(restore)
	return sheet
}

func (r *Registry) restoreLocked(saved []recordRule) {
	restored, skipped := 0, 0
	for _, rr := range saved {
		key, err := ParseRuleKey(rr.Key)
		if err != nil || rr.Selector == "" || rr.CSSText == "" {
			skipped++
			continue
		}
		if _, ok := r.rules[key]; ok {
			continue
		}
		if !r.Persistable(rr.CSSText) {
			skipped++
			continue
		}
		rule := Rule{Key: key, Selector: rr.Selector, Declaration: rr.CSSText, Ref: FirstURL(rr.CSSText)}
		if err := r.sheet.InsertRule(rule.Text()); err != nil {
			r.logger.Warn("failed to restore rule", slog.String("key", rr.Key), slog.Any("error", err))
			continue
		}
		r.addLocked(rule)
		restored++
	}
	if restored > 0 || skipped > 0 {
		r.logger.Info("restored icon rules", slog.Int("restored", restored), slog.Int("skipped", skipped))
	}
}

func (r *Registry) addLocked(rule Rule) {
	r.rules[rule.Key] = rule
	r.order = append(r.order, rule.Key)
}

// Register queues a rule mapping the icon at the given size bucket to ref.
// It is a no-op when the rule is already registered or queued. The first
// queued rule schedules a flush.
func (r *Registry) Register(name, variant, ref string, bucket int) {
	key := NewRuleKey(name, variant, bucket)
	selector := Selector(name, variant)
	if selector == "" {
		r.logger.Debug("ignoring rule without icon name", slog.String("ref", ref))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[key]; ok {
		return
	}
	if _, ok := r.queued[key]; ok {
		return
	}

	value, used := r.imageValue(ref)
	r.pending = append(r.pending, Rule{
		Key:         key,
		Selector:    selector,
		Declaration: Declaration(value),
		Ref:         used,
	})
	r.queued[key] = struct{}{}

	if !r.scheduled {
		r.scheduled = true
		r.schedule(func() { r.Flush(context.Background()) })
	}
}

// imageValue builds the image value for ref, proxying cross-origin URLs.
// It returns the reference actually used, or "" for the empty image.
func (r *Registry) imageValue(ref string) (value, used string) {
	if ref == "" {
		return EmptyImage, ""
	}
	if inner := FirstURL(ref); inner != "" {
		ref = inner
	}
	if r.resolver != nil {
		proxied, ok := r.resolver.ProxyCrossOrigin(ref)
		if !ok {
			return EmptyImage, ""
		}
		ref = proxied
	}
	return URLValue(ref), ref
}

// Flush inserts every queued rule in queue order and persists the registry
// once for the batch.
func (r *Registry) Flush(ctx context.Context) {
	r.mu.Lock()
	r.scheduled = false
	if len(r.pending) == 0 {
		r.mu.Unlock()
		return
	}
	batch := r.pending
	r.pending = nil
	clear(r.queued)

	sheet := r.ensureLocked(ctx)
	inserted := 0
	for _, rule := range batch {
		if _, ok := r.rules[rule.Key]; ok {
			continue
		}
		if err := sheet.InsertRule(rule.Text()); err != nil {
			r.logger.Warn("failed to insert rule", slog.String("key", rule.Key.String()), slog.Any("error", err))
			continue
		}
		r.addLocked(rule)
		inserted++
	}
	var snapshot []Rule
	if inserted > 0 {
		snapshot = r.snapshotLocked()
	}

	// Take the persist lock before releasing mu so records land in flush order.
	r.persistMu.Lock()
	r.mu.Unlock()
	defer r.persistMu.Unlock()
	if snapshot != nil {
		r.saveRecord(ctx, snapshot)
	}
}

func (r *Registry) snapshotLocked() []Rule {
	out := make([]Rule, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.rules[k])
	}
	return out
}

// HasRule reports whether a rule for the icon is registered or queued.
func (r *Registry) HasRule(name, variant string, bucket int) bool {
	key := NewRuleKey(name, variant, bucket)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[key]; ok {
		return true
	}
	_, ok := r.queued[key]
	return ok
}

// Lookup returns the registered or queued rule for the icon.
func (r *Registry) Lookup(name, variant string, bucket int) (Rule, bool) {
	key := NewRuleKey(name, variant, bucket)
	r.mu.Lock()
	defer r.mu.Unlock()
	if rule, ok := r.rules[key]; ok {
		return rule, true
	}
	for _, rule := range r.pending {
		if rule.Key == key {
			return rule, true
		}
	}
	return Rule{}, false
}

// Rules returns the registered rules in insertion order.
func (r *Registry) Rules() []Rule {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Reset clears registered and queued rules, detaches the sheet and deletes
// the persisted record.
func (r *Registry) Reset(ctx context.Context) {
	r.mu.Lock()
	clear(r.rules)
	clear(r.queued)
	r.order = nil
	r.pending = nil
	r.scheduled = false
	if r.sheet != nil {
		r.sheet.Detach()
		r.sheet = nil
	}
	r.persistMu.Lock()
	r.mu.Unlock()
	defer r.persistMu.Unlock()

	if err := r.kv.Delete(ctx, RecordKey); err != nil {
		r.logger.Warn("failed to delete registry record", slog.Any("error", err))
	}
	r.logger.Info("icon registry cleared")
}

// Revalidate recovers from a host that discarded the sheet. It is meant to
// run when the document becomes visible or regains focus: a missing or
// detached sheet resets the registry and creates a fresh sheet.
func (r *Registry) Revalidate(ctx context.Context) Sheet {
	r.mu.Lock()
	stale := r.sheet == nil || r.sheet.Detached()
	sheet := r.sheet
	r.mu.Unlock()
	if !stale {
		return sheet
	}
	r.Reset(ctx)
	return r.EnsureStylesheet(ctx)
}
