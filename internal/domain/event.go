package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TransferEvent records one completed ledger transfer, taxed or not.
// Amounts are true-token units.
type TransferEvent struct {
	ID              string         `json:"id"`
	From            common.Address `json:"from"`
	To              common.Address `json:"to"`
	Amount          *big.Int       `json:"amount"`
	Net             *big.Int       `json:"net"`
	Tax             *big.Int       `json:"tax"`
	ReflectionShare *big.Int       `json:"reflection_share"`
	BurnShare       *big.Int       `json:"burn_share"`
	LiquidityShare  *big.Int       `json:"liquidity_share"`
	FeeExempt       bool           `json:"fee_exempt"`
	Timestamp       time.Time      `json:"timestamp"`
}

// RebalanceKind distinguishes the outcomes of a rebalancer call.
type RebalanceKind string

const (
	RebalanceKindInit    RebalanceKind = "init"
	RebalanceKindCollect RebalanceKind = "collect"
	RebalanceKindMigrate RebalanceKind = "migrate"
)

// RebalanceEvent records one rebalancer invocation: the fees collected, the
// oracle reading (when available), and the position range before and after.
type RebalanceEvent struct {
	ID        string        `json:"id"`
	Kind      RebalanceKind `json:"kind"`
	Handle    uint64        `json:"handle"`
	OldLower  int32         `json:"old_lower"`
	OldUpper  int32         `json:"old_upper"`
	NewLower  int32         `json:"new_lower"`
	NewUpper  int32         `json:"new_upper"`
	TwapTick  int32         `json:"twap_tick"`
	OracleOK  bool          `json:"oracle_ok"`
	Fees0     *big.Int      `json:"fees0"`
	Fees1     *big.Int      `json:"fees1"`
	Migrated  bool          `json:"migrated"`
	Timestamp time.Time     `json:"timestamp"`
}

// AuditEntry is a persisted audit-log record.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// StreamMessage is a single message read back from a durable event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}
