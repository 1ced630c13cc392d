package app

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/sooncult/soon-coin/internal/blob/s3"
	membus "github.com/sooncult/soon-coin/internal/cache/memory"
	"github.com/sooncult/soon-coin/internal/cache/redis"
	"github.com/sooncult/soon-coin/internal/claims"
	"github.com/sooncult/soon-coin/internal/config"
	"github.com/sooncult/soon-coin/internal/domain"
	"github.com/sooncult/soon-coin/internal/ledger"
	"github.com/sooncult/soon-coin/internal/oracle"
	"github.com/sooncult/soon-coin/internal/rebalancer"
	"github.com/sooncult/soon-coin/internal/server/handler"
	"github.com/sooncult/soon-coin/internal/service"
	memstore "github.com/sooncult/soon-coin/internal/store/memory"
	"github.com/sooncult/soon-coin/internal/store/postgres"

	"github.com/sooncult/soon-coin/internal/amm"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Ledger      *ledger.Ledger
	Rebalancer  *rebalancer.Rebalancer
	Distributor *claims.Distributor

	TransferStore  domain.TransferStore
	RebalanceStore domain.RebalanceStore
	AuditStore     domain.AuditStore
	SignalBus      domain.SignalBus

	LedgerSvc    *service.LedgerService
	RebalanceSvc *service.RebalanceService
	ClaimsSvc    *service.ClaimsService

	// Archiver is nil unless snapshots are enabled.
	Archiver *s3blob.SnapshotArchiver
	// Tokens resolves rescue-request token addresses to token ports.
	Tokens handler.TokenResolver
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	mode := strings.ToLower(cfg.Mode)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	owner := common.HexToAddress(cfg.Token.Owner)
	genesis := common.HexToAddress(cfg.Token.Genesis)
	treasury := common.HexToAddress(cfg.Rebalancer.Treasury)
	tokenAddr := common.HexToAddress(cfg.Token.Address)
	pairedAddr := common.HexToAddress(cfg.Rebalancer.PairedToken)

	// --- Ledger ---
	supply, ok := new(big.Int).SetString(cfg.Token.Supply, 10)
	if !ok {
		cleanup()
		return nil, nil, fmt.Errorf("wire: token supply %q", cfg.Token.Supply)
	}
	l, err := ledger.New(owner, genesis, supply, domain.TaxConfig{
		TotalBips:      cfg.Tax.TotalBips,
		ReflectionBips: cfg.Tax.ReflectionBips,
		BurnBips:       cfg.Tax.BurnBips,
		LiquidityBips:  cfg.Tax.LiquidityBips,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: ledger: %w", err)
	}
	deps.Ledger = l

	if cfg.Tax.LiquidityRecipient != "" {
		if err := l.SetLiquidityRecipient(owner, common.HexToAddress(cfg.Tax.LiquidityRecipient)); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: liquidity recipient: %w", err)
		}
	}

	// Infrastructure accounts move position capital; taxing those moves
	// would leak supply into reflections on every migration.
	if err := l.SetFeeExclusion(owner, treasury, true); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: exempt treasury: %w", err)
	}

	// --- Stores and bus ---
	if mode == "sim" {
		deps.TransferStore = memstore.NewTransferStore()
		deps.RebalanceStore = memstore.NewRebalanceStore()
		deps.AuditStore = memstore.NewAuditStore()
		deps.SignalBus = membus.NewBus()
	} else {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.TransferStore = postgres.NewTransferStore(pool)
		deps.RebalanceStore = postgres.NewRebalanceStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)

		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 snapshots (only when enabled) ---
	if cfg.Snapshot.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewSnapshotArchiver(s3blob.NewWriter(s3Client), l, deps.AuditStore)
	}

	// --- Position manager, oracle, and token ports ---
	native := ledger.NewToken(l, tokenAddr)

	var (
		manager domain.PositionManager
		orc     domain.Oracle
		paired  domain.Token
		base    domain.Token
	)
	if mode == "full" {
		uniManager, err := amm.NewUniV3(
			cfg.Chain.RPCURL,
			common.HexToAddress(cfg.Chain.PositionManager),
			cfg.Chain.ChainID,
			cfg.Chain.PrivateKey,
		)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: position manager: %w", err)
		}
		closers = append(closers, uniManager.Close)
		manager = uniManager

		uniOracle, err := oracle.NewUniV3(cfg.Chain.RPCURL, common.HexToAddress(cfg.Oracle.Pool))
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: oracle: %w", err)
		}
		closers = append(closers, uniOracle.Close)
		orc = uniOracle

		// On-chain assets are reached through per-token ERC20 adapters,
		// created lazily and shared by the rescue resolver.
		erc20s := make(map[common.Address]*amm.ERC20)
		var erc20Mu sync.Mutex
		resolve := func(addr common.Address) (*amm.ERC20, error) {
			erc20Mu.Lock()
			defer erc20Mu.Unlock()
			if t, ok := erc20s[addr]; ok {
				return t, nil
			}
			t, err := amm.NewERC20(cfg.Chain.RPCURL, addr, cfg.Chain.ChainID, cfg.Chain.PrivateKey)
			if err != nil {
				return nil, err
			}
			erc20s[addr] = t
			return t, nil
		}
		closers = append(closers, func() {
			erc20Mu.Lock()
			defer erc20Mu.Unlock()
			for _, t := range erc20s {
				t.Close()
			}
		})

		if paired, err = resolve(pairedAddr); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: paired token: %w", err)
		}
		if cfg.Rebalancer.BaseToken != "" {
			if base, err = resolve(common.HexToAddress(cfg.Rebalancer.BaseToken)); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: base token: %w", err)
			}
		}
		deps.Tokens = func(addr common.Address) (domain.Token, error) {
			if addr == tokenAddr {
				return native, nil
			}
			return resolve(addr)
		}
	} else {
		pairedSim := amm.NewSimpleToken(pairedAddr)
		// Seed the treasury with working capital on the paired side;
		// the native side arrives by ordinary transfer from genesis.
		pairedSim.Mint(treasury, supply)
		paired = pairedSim

		known := map[common.Address]domain.Token{
			tokenAddr:  native,
			pairedAddr: pairedSim,
		}
		if cfg.Rebalancer.BaseToken != "" {
			baseSim := amm.NewSimpleToken(common.HexToAddress(cfg.Rebalancer.BaseToken))
			known[baseSim.Address()] = baseSim
			base = baseSim
		}
		deps.Tokens = func(addr common.Address) (domain.Token, error) {
			t, ok := known[addr]
			if !ok {
				return nil, fmt.Errorf("wire: token %s: %w", addr.Hex(), domain.ErrNotFound)
			}
			return t, nil
		}

		poolAcct := common.HexToAddress(cfg.Rebalancer.PoolAccount)
		if err := l.SetFeeExclusion(owner, poolAcct, true); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: exempt pool account: %w", err)
		}

		token0, token1 := domain.Token(native), paired
		if bytes.Compare(token1.Address().Bytes(), token0.Address().Bytes()) < 0 {
			token0, token1 = token1, token0
		}
		mem, err := amm.NewMemory(token0, token1, poolAcct)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: memory manager: %w", err)
		}
		manager = mem
		orc = oracle.NewStatic(cfg.Oracle.StaticTick)
	}

	// --- Rebalancer ---
	reb, err := rebalancer.New(rebalancer.Config{
		Owner:          owner,
		Treasury:       treasury,
		Manager:        manager,
		Oracle:         orc,
		Native:         native,
		Paired:         paired,
		Base:           base,
		FeeTier:        cfg.Rebalancer.FeeTier,
		HalfWidthTicks: cfg.Rebalancer.HalfWidthTicks,
		TwapWindowSec:  cfg.Rebalancer.TwapWindowSec,
	}, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: rebalancer: %w", err)
	}
	deps.Rebalancer = reb

	// --- Claims ---
	if cfg.Claims.Enabled {
		source := common.HexToAddress(cfg.Claims.Source)
		if err := l.SetFeeExclusion(owner, source, true); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: exempt claims source: %w", err)
		}
		dist, err := claims.NewDistributor(l, source, common.HexToHash(cfg.Claims.Root), logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: claims distributor: %w", err)
		}
		deps.Distributor = dist
	}

	// --- Services ---
	deps.LedgerSvc = service.NewLedgerService(l, deps.TransferStore, deps.SignalBus, deps.AuditStore, logger)
	deps.RebalanceSvc = service.NewRebalanceService(reb, deps.RebalanceStore, deps.SignalBus, deps.AuditStore, logger)
	if deps.Distributor != nil {
		deps.ClaimsSvc = service.NewClaimsService(deps.Distributor, deps.TransferStore, deps.SignalBus, deps.AuditStore, logger)
	}

	return deps, cleanup, nil
}
