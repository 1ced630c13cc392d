package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sooncult/soon-coin/internal/domain"
)

// RebalanceStore implements domain.RebalanceStore using PostgreSQL.
type RebalanceStore struct {
	pool *pgxpool.Pool
}

// NewRebalanceStore creates a RebalanceStore backed by the given pool.
func NewRebalanceStore(pool *pgxpool.Pool) *RebalanceStore {
	return &RebalanceStore{pool: pool}
}

// Insert persists one rebalancer invocation record.
func (s *RebalanceStore) Insert(ctx context.Context, evt domain.RebalanceEvent) error {
	const query = `
		INSERT INTO rebalance_events
			(id, kind, handle, old_lower, old_upper, new_lower, new_upper,
			 twap_tick, oracle_ok, fees0, fees1, migrated, created_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10::numeric, $11::numeric, $12, $13)`

	// The full uint64 handle range does not fit BIGINT; it travels as a
	// decimal string into a NUMERIC column.
	_, err := s.pool.Exec(ctx, query,
		evt.ID,
		string(evt.Kind),
		strconv.FormatUint(evt.Handle, 10),
		evt.OldLower,
		evt.OldUpper,
		evt.NewLower,
		evt.NewUpper,
		evt.TwapTick,
		evt.OracleOK,
		numeric(evt.Fees0),
		numeric(evt.Fees1),
		evt.Migrated,
		evt.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert rebalance %s: %w", evt.ID, err)
	}
	return nil
}

// ListRecent returns the most recent rebalance records, newest first.
func (s *RebalanceStore) ListRecent(ctx context.Context, limit int) ([]domain.RebalanceEvent, error) {
	const query = `
		SELECT id, kind, handle::text, old_lower, old_upper, new_lower, new_upper,
			twap_tick, oracle_ok, fees0::text, fees1::text, migrated, created_at
		FROM rebalance_events
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list rebalances: %w", err)
	}
	defer rows.Close()

	var events []domain.RebalanceEvent
	for rows.Next() {
		var (
			evt          domain.RebalanceEvent
			kind         string
			handle       string
			fees0, fees1 string
		)
		if err := rows.Scan(&evt.ID, &kind, &handle, &evt.OldLower, &evt.OldUpper,
			&evt.NewLower, &evt.NewUpper, &evt.TwapTick, &evt.OracleOK,
			&fees0, &fees1, &evt.Migrated, &evt.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan rebalance: %w", err)
		}
		evt.Kind = domain.RebalanceKind(kind)
		if evt.Handle, err = strconv.ParseUint(handle, 10, 64); err != nil {
			return nil, fmt.Errorf("postgres: parse rebalance handle %q: %w", handle, err)
		}
		if evt.Fees0, err = parseNumeric(fees0); err != nil {
			return nil, err
		}
		if evt.Fees1, err = parseNumeric(fees1); err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list rebalances rows: %w", err)
	}
	return events, nil
}

var _ domain.RebalanceStore = (*RebalanceStore)(nil)
