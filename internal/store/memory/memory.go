// Package memory provides in-process store implementations for the sim run
// mode and tests. Each store keeps a bounded window of the most recent
// records, newest first on read, matching the PostgreSQL stores' contract.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sooncult/soon-coin/internal/domain"
)

const retained = 1024

// TransferStore keeps recent transfer events in memory.
type TransferStore struct {
	mu     sync.Mutex
	events []domain.TransferEvent
}

// NewTransferStore creates an empty TransferStore.
func NewTransferStore() *TransferStore {
	return &TransferStore{}
}

// Insert records a transfer event.
func (s *TransferStore) Insert(_ context.Context, evt domain.TransferEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = appendCapped(s.events, evt)
	return nil
}

// ListRecent returns up to limit events, newest first.
func (s *TransferStore) ListRecent(_ context.Context, limit int) ([]domain.TransferEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newestFirst(s.events, limit), nil
}

// RebalanceStore keeps recent rebalance events in memory.
type RebalanceStore struct {
	mu     sync.Mutex
	events []domain.RebalanceEvent
}

// NewRebalanceStore creates an empty RebalanceStore.
func NewRebalanceStore() *RebalanceStore {
	return &RebalanceStore{}
}

// Insert records a rebalance event.
func (s *RebalanceStore) Insert(_ context.Context, evt domain.RebalanceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = appendCapped(s.events, evt)
	return nil
}

// ListRecent returns up to limit events, newest first.
func (s *RebalanceStore) ListRecent(_ context.Context, limit int) ([]domain.RebalanceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newestFirst(s.events, limit), nil
}

// AuditStore keeps recent audit entries in memory.
type AuditStore struct {
	mu      sync.Mutex
	nextID  int64
	entries []domain.AuditEntry
}

// NewAuditStore creates an empty AuditStore.
func NewAuditStore() *AuditStore {
	return &AuditStore{nextID: 1}
}

// Log appends an audit entry.
func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = appendCapped(s.entries, domain.AuditEntry{
		ID:        s.nextID,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	s.nextID++
	return nil
}

// ListRecent returns up to limit entries, newest first.
func (s *AuditStore) ListRecent(_ context.Context, limit int) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newestFirst(s.entries, limit), nil
}

func appendCapped[T any](items []T, item T) []T {
	items = append(items, item)
	if len(items) > retained {
		items = items[len(items)-retained:]
	}
	return items
}

func newestFirst[T any](items []T, limit int) []T {
	if limit <= 0 || limit > len(items) {
		limit = len(items)
	}
	out := make([]T, 0, limit)
	for i := len(items) - 1; i >= len(items)-limit; i-- {
		out = append(out, items[i])
	}
	return out
}

var (
	_ domain.TransferStore  = (*TransferStore)(nil)
	_ domain.RebalanceStore = (*RebalanceStore)(nil)
	_ domain.AuditStore     = (*AuditStore)(nil)
)
