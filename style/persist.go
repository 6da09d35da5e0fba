package style

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/meigma/iconcache/kv"
)

// Durable record keys.
const (
	RecordKey       = "ui-icon-registry-state.v2"
	legacyRecordKey = "ui-icon-registry-state"
)

// record is the persisted registry state.
type record struct {
	Rules     []recordRule `json:"rules"`
	Timestamp int64        `json:"timestamp"` // unix millis
}

type recordRule struct {
	Key      string `json:"key"`
	Selector string `json:"selector"`
	CSSText  string `json:"cssText"`
}

// Persistable reports whether a declaration may be written to durable
// storage. Only inline data URLs, relative paths and same-origin URLs
// survive a restart meaningfully; object URLs and cross-origin URLs do not.
func (r *Registry) Persistable(declaration string) bool {
	ref := FirstURL(declaration)
	if ref == "" {
		return false
	}
	lower := strings.ToLower(ref)
	switch {
	case strings.HasPrefix(lower, "blob:"):
		return false
	case strings.HasPrefix(lower, "data:"):
		return true
	case strings.HasPrefix(lower, "http:"), strings.HasPrefix(lower, "https:"):
		return r.resolver != nil && r.resolver.SameOrigin(ref)
	default:
		return true
	}
}

// loadRecord reads the persisted rules that are fresh and persistable. The
// legacy key is removed, and a stale or unreadable record is deleted.
func (r *Registry) loadRecord(ctx context.Context) []recordRule {
	if err := r.kv.Delete(ctx, legacyRecordKey); err != nil {
		r.logger.Debug("failed to delete legacy registry record", slog.Any("error", err))
	}

	data, err := r.kv.Get(ctx, RecordKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		r.logger.Warn("failed to read registry record", slog.Any("error", err))
		return nil
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		r.logger.Warn("discarding unreadable registry record", slog.Any("error", err))
		_ = r.kv.Delete(ctx, RecordKey) //nolint:errcheck // best effort
		return nil
	}
	age := r.now().Sub(time.UnixMilli(rec.Timestamp))
	if age >= r.freshness {
		r.logger.Debug("discarding stale registry record", slog.Duration("age", age))
		_ = r.kv.Delete(ctx, RecordKey) //nolint:errcheck // best effort
		return nil
	}

	rules := make([]recordRule, 0, len(rec.Rules))
	for _, rr := range rec.Rules {
		if r.Persistable(rr.CSSText) {
			rules = append(rules, rr)
		}
	}
	r.logger.Debug("prepared rules for restoration", slog.Int("count", len(rules)))
	return rules
}

// saveRecord writes the persistable subset of rules.
func (r *Registry) saveRecord(ctx context.Context, rules []Rule) {
	rec := record{Rules: make([]recordRule, 0, len(rules)), Timestamp: r.now().UnixMilli()}
	for _, rule := range rules {
		if !r.Persistable(rule.Declaration) {
			continue
		}
		rec.Rules = append(rec.Rules, recordRule{
			Key:      rule.Key.String(),
			Selector: rule.Selector,
			CSSText:  rule.Declaration,
		})
	}
	data, err := json.Marshal(rec)
	if err != nil {
		r.logger.Warn("failed to encode registry record", slog.Any("error", err))
		return
	}
	if err := r.kv.Put(ctx, RecordKey, data); err != nil {
		r.logger.Warn("failed to persist registry record", slog.Any("error", err))
	}
}
