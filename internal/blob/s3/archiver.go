package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sooncult/soon-coin/internal/domain"
)

// SnapshotSource produces a point-in-time view of the ledger: supplies, tax
// configuration and every holder balance.
type SnapshotSource interface {
	Snapshot() domain.LedgerSnapshot
}

// SnapshotArchiver exports ledger snapshots to blob storage as JSON objects
// under snapshots/, one per capture. Each upload is recorded in the audit
// log with its object path and holder count.
type SnapshotArchiver struct {
	writer domain.BlobWriter
	source SnapshotSource
	audit  domain.AuditStore
}

// NewSnapshotArchiver creates a SnapshotArchiver.
func NewSnapshotArchiver(writer domain.BlobWriter, source SnapshotSource, audit domain.AuditStore) *SnapshotArchiver {
	return &SnapshotArchiver{
		writer: writer,
		source: source,
		audit:  audit,
	}
}

// Archive captures the current ledger state and uploads it. It returns the
// object path and the number of holders in the snapshot.
func (a *SnapshotArchiver) Archive(ctx context.Context) (string, int, error) {
	snap := a.source.Snapshot()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(snap); err != nil {
		return "", 0, fmt.Errorf("s3blob: marshal snapshot: %w", err)
	}

	path := snapshotPath(snap.TakenAt)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf.Bytes()), "application/json"); err != nil {
		return "", 0, fmt.Errorf("s3blob: upload snapshot: %w", err)
	}

	count := len(snap.Holders)
	if err := a.audit.Log(ctx, "snapshot.archived", map[string]any{
		"path":     path,
		"holders":  count,
		"taken_at": snap.TakenAt.Format(time.RFC3339),
	}); err != nil {
		return path, count, fmt.Errorf("s3blob: snapshot audit log: %w", err)
	}
	return path, count, nil
}

// snapshotPath builds the object key, partitioned by capture time:
//
//	snapshots/2025/08/soon-20250825T140500Z.json
func snapshotPath(takenAt time.Time) string {
	return fmt.Sprintf("snapshots/%s/soon-%s.json",
		takenAt.Format("2006/01"),
		takenAt.Format("20060102T150405Z"),
	)
}
