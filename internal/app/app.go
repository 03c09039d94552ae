// Package app assembles the ledger stack from configuration.
// The server, the worker and the seeder share one wiring.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"stockledger/internal/config"
	"stockledger/internal/core/id"
	"stockledger/internal/core/keylock"
	corenumerator "stockledger/internal/core/numerator"
	"stockledger/internal/core/security"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/auth"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/batch"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/transaction"
	"stockledger/internal/infrastructure/lock"
	"stockledger/internal/infrastructure/numerator"
	"stockledger/internal/infrastructure/storage/memory"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/ledger_repo"
	"stockledger/internal/infrastructure/storage/postgres/register_repo"
	"stockledger/pkg/logger"
)

// devJWTSecret signs tokens in development when JWT_SECRET is unset.
const devJWTSecret = "stockledger-development-secret"

// ProcurementLines looks up and registers purchase-order lines.
type ProcurementLines interface {
	transaction.ProcurementLookup
	AddLine(ctx context.Context, lineID id.ID, ordered int64) error
}

// Stack holds the assembled collaborators.
type Stack struct {
	Engine      *transaction.Engine
	Balances    *balance.Projector
	Batches     *batch.Projector
	Procurement ProcurementLines
	JWT         *auth.JWTService

	// Pool is nil for the in-memory backend.
	Pool *postgres.Pool
	// Idempotency is nil unless enabled on the postgres backend.
	Idempotency *postgres.IdempotencyStore

	closers []func()
}

// storage is what each backend contributes.
type storage struct {
	txm         tx.ReadOnlyManager
	ledger      ledger.Repository
	balances    balance.Repository
	procurement ProcurementLines
	numerator   corenumerator.Generator
	sink        audit.Sink
}

// New builds the stack for cfg. Callers must Close it.
func New(ctx context.Context, cfg *config.Config) (*Stack, error) {
	s := &Stack{}

	var (
		st  storage
		err error
	)
	switch cfg.Database.Backend {
	case config.StorageMemory:
		st = s.memoryStorage()
	default:
		st, err = s.postgresStorage(ctx, cfg)
	}
	if err != nil {
		s.Close()
		return nil, err
	}

	locker, err := s.locker(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	capability, err := security.NewRuleChecker(cfg.Ledger.AutoApproveRule, security.ContextRoles)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Balances = balance.NewProjector(st.balances, st.ledger, st.txm,
		balance.WithMaxCASAttempts(cfg.Ledger.CASMaxAttempts),
		balance.WithLocker(locker),
	)
	s.Batches = batch.NewProjector(st.ledger, st.txm, nil)
	s.Procurement = st.procurement
	s.Engine = transaction.NewEngine(transaction.Deps{
		Ledger:      st.ledger,
		Projector:   s.Balances,
		TxManager:   st.txm,
		Locker:      locker,
		Numerator:   st.numerator,
		Procurement: st.procurement,
		Capability:  capability,
		Audit:       audit.NewRecorder(st.sink),
	})

	secret := cfg.JWT.Secret
	if secret == "" {
		secret = devJWTSecret
		logger.Warn(ctx, "JWT_SECRET not set, using the development secret")
	}
	s.JWT = auth.NewJWTService(auth.DefaultJWTConfig(secret))

	logger.Info(ctx, "ledger stack ready",
		"backend", cfg.Database.Backend,
		"lock", cfg.Lock.Backend,
		"auto_approve_rule", capability.Rule(),
	)
	return s, nil
}

// Close releases connections in reverse order of creation.
func (s *Stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func (s *Stack) memoryStorage() storage {
	store := memory.NewStore()
	return storage{
		txm:         store,
		ledger:      memory.NewLedgerRepo(store),
		balances:    memory.NewBalanceRepo(store),
		procurement: memory.NewProcurement(store),
		numerator:   memory.NewSequence(store),
		sink:        audit.LogSink{},
	}
}

func (s *Stack) postgresStorage(ctx context.Context, cfg *config.Config) (storage, error) {
	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return storage{}, fmt.Errorf("connect database: %w", err)
	}
	s.Pool = pool
	s.closers = append(s.closers, pool.Close)

	if err := postgres.Migrate(ctx, pool); err != nil {
		return storage{}, err
	}

	txm := postgres.NewTxManager(pool)
	sink, err := postgres.NewAuditService(txm)
	if err != nil {
		return storage{}, err
	}
	if cfg.Idempotency.Enabled {
		s.Idempotency = postgres.NewIdempotencyStore(txm, cfg.Idempotency.TTL)
	}

	return storage{
		txm:         txm,
		ledger:      ledger_repo.NewTransactionRepo(txm),
		balances:    register_repo.NewStockRepo(txm),
		procurement: ledger_repo.NewProcurementRepo(txm),
		numerator: numerator.New(func(ctx context.Context) numerator.Querier {
			return txm.GetQuerier(ctx)
		}),
		sink: sink,
	}, nil
}

func (s *Stack) locker(ctx context.Context, cfg *config.Config) (keylock.Locker, error) {
	if cfg.Lock.Backend != config.LockRedis {
		return keylock.NewLocal(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	s.closers = append(s.closers, func() { _ = client.Close() })

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	lockCfg := lock.DefaultConfig()
	lockCfg.TTL = cfg.Lock.TTL
	lockCfg.Wait = cfg.Lock.Wait
	return lock.NewRedis(client, lockCfg), nil
}
