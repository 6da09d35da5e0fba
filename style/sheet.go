package style

import (
	"errors"
	"strings"
	"sync"
)

// ErrDetached is returned when inserting into a detached sheet.
var ErrDetached = errors.New("style: sheet detached")

// ErrInvalidRule is returned for rule text a sheet cannot parse.
var ErrInvalidRule = errors.New("style: invalid rule")

// Sheet is the active stylesheet rules are inserted into.
type Sheet interface {
	// InsertRule appends a rule.
	InsertRule(text string) error
	// Rules returns the inserted rules in order.
	Rules() []string
	// Detach removes the sheet from the document. Later inserts fail.
	Detach()
	// Detached reports whether the sheet was detached, by Detach or by the
	// host discarding it.
	Detached() bool
}

// MemorySheet is an in-process Sheet. It is safe for concurrent use.
type MemorySheet struct {
	mu       sync.RWMutex
	rules    []string
	detached bool
}

// Interface compliance.
var _ Sheet = (*MemorySheet)(nil)

// NewMemorySheet creates an empty sheet.
func NewMemorySheet() *MemorySheet {
	return &MemorySheet{}
}

// InsertRule implements Sheet. Rule text must be a block ("prelude { body }").
func (s *MemorySheet) InsertRule(text string) error {
	text = strings.TrimSpace(text)
	open := strings.IndexByte(text, '{')
	if open <= 0 || !strings.HasSuffix(text, "}") {
		return ErrInvalidRule
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detached {
		return ErrDetached
	}
	s.rules = append(s.rules, text)
	return nil
}

// Rules implements Sheet.
func (s *MemorySheet) Rules() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.rules...)
}

// Detach implements Sheet.
func (s *MemorySheet) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detached = true
}

// Detached implements Sheet.
func (s *MemorySheet) Detached() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.detached
}

// CSS renders the sheet, one rule per line.
func (s *MemorySheet) CSS() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return strings.Join(s.rules, "\n")
}
