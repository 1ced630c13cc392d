package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sooncult/soon-coin/internal/domain"
)

// TransferStore implements domain.TransferStore using PostgreSQL. Token
// amounts are stored as NUMERIC(78,0), wide enough for uint256 values.
type TransferStore struct {
	pool *pgxpool.Pool
}

// NewTransferStore creates a TransferStore backed by the given pool.
func NewTransferStore(pool *pgxpool.Pool) *TransferStore {
	return &TransferStore{pool: pool}
}

// Insert persists one transfer event.
func (s *TransferStore) Insert(ctx context.Context, evt domain.TransferEvent) error {
	const query = `
		INSERT INTO transfer_events
			(id, from_addr, to_addr, amount, net, tax,
			 reflection_share, burn_share, liquidity_share, fee_exempt, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric,
			 $7::numeric, $8::numeric, $9::numeric, $10, $11)`

	_, err := s.pool.Exec(ctx, query,
		evt.ID,
		evt.From.Hex(),
		evt.To.Hex(),
		numeric(evt.Amount),
		numeric(evt.Net),
		numeric(evt.Tax),
		numeric(evt.ReflectionShare),
		numeric(evt.BurnShare),
		numeric(evt.LiquidityShare),
		evt.FeeExempt,
		evt.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert transfer %s: %w", evt.ID, err)
	}
	return nil
}

// ListRecent returns the most recent transfers, newest first.
func (s *TransferStore) ListRecent(ctx context.Context, limit int) ([]domain.TransferEvent, error) {
	const query = `
		SELECT id, from_addr, to_addr, amount::text, net::text, tax::text,
			reflection_share::text, burn_share::text, liquidity_share::text,
			fee_exempt, created_at
		FROM transfer_events
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transfers: %w", err)
	}
	defer rows.Close()

	var events []domain.TransferEvent
	for rows.Next() {
		evt, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list transfers rows: %w", err)
	}
	return events, nil
}

func scanTransfer(row pgx.Row) (domain.TransferEvent, error) {
	var (
		evt        domain.TransferEvent
		from, to   string
		amount     string
		net, tax   string
		refl, burn string
		liq        string
	)
	if err := row.Scan(&evt.ID, &from, &to, &amount, &net, &tax,
		&refl, &burn, &liq, &evt.FeeExempt, &evt.Timestamp); err != nil {
		return domain.TransferEvent{}, fmt.Errorf("postgres: scan transfer: %w", err)
	}

	evt.From = common.HexToAddress(from)
	evt.To = common.HexToAddress(to)

	var err error
	if evt.Amount, err = parseNumeric(amount); err != nil {
		return domain.TransferEvent{}, err
	}
	if evt.Net, err = parseNumeric(net); err != nil {
		return domain.TransferEvent{}, err
	}
	if evt.Tax, err = parseNumeric(tax); err != nil {
		return domain.TransferEvent{}, err
	}
	if evt.ReflectionShare, err = parseNumeric(refl); err != nil {
		return domain.TransferEvent{}, err
	}
	if evt.BurnShare, err = parseNumeric(burn); err != nil {
		return domain.TransferEvent{}, err
	}
	if evt.LiquidityShare, err = parseNumeric(liq); err != nil {
		return domain.TransferEvent{}, err
	}
	return evt, nil
}

// numeric renders a big.Int for a NUMERIC parameter; nil becomes zero.
func numeric(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseNumeric(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: parse numeric %q", s)
	}
	return v, nil
}

var _ domain.TransferStore = (*TransferStore)(nil)
