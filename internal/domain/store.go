package domain

import (
	"context"
	"io"
)

// TransferStore persists transfer history.
type TransferStore interface {
	Insert(ctx context.Context, evt TransferEvent) error
	ListRecent(ctx context.Context, limit int) ([]TransferEvent, error)
}

// RebalanceStore persists rebalancer invocation history.
type RebalanceStore interface {
	Insert(ctx context.Context, evt RebalanceEvent) error
	ListRecent(ctx context.Context, limit int) ([]RebalanceEvent, error)
}

// AuditStore persists an append-only audit log of admin and system events.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	ListRecent(ctx context.Context, limit int) ([]AuditEntry, error)
}

// SignalBus publishes events for live consumers (WebSocket hub, external
// subscribers) and appends them to a capped durable stream.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
