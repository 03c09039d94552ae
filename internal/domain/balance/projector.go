package balance

import (
	"context"
	"fmt"
	"slices"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/keylock"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/ledger"
	"stockledger/pkg/logger"
)

// DefaultMaxCASAttempts bounds compare-and-swap retries per delta.
const DefaultMaxCASAttempts = 5

// Projector applies ledger entries to aggregates and replays history.
type Projector struct {
	repo    Repository
	ledger  ledger.Repository
	txm     tx.ReadOnlyManager
	locker  keylock.Locker
	maxCAS  int
	nowFunc func() time.Time
}

// Option configures a Projector.
type Option func(*Projector)

// WithMaxCASAttempts overrides DefaultMaxCASAttempts.
func WithMaxCASAttempts(n int) Option {
	return func(p *Projector) {
		if n > 0 {
			p.maxCAS = n
		}
	}
}

// WithClock sets the time source for LastUpdated.
func WithClock(now func() time.Time) Option {
	return func(p *Projector) { p.nowFunc = now }
}

// WithLocker sets the locker Repair uses to exclude concurrent writers.
func WithLocker(l keylock.Locker) Option {
	return func(p *Projector) { p.locker = l }
}

// NewProjector creates a balance projector.
func NewProjector(repo Repository, ledgerRepo ledger.Repository, txm tx.ReadOnlyManager, opts ...Option) *Projector {
	p := &Projector{
		repo:    repo,
		ledger:  ledgerRepo,
		txm:     txm,
		locker:  keylock.NewLocal(),
		maxCAS:  DefaultMaxCASAttempts,
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Apply adds the effect of e to its aggregates as one unit. A decrement that
// would go below zero fails with ErrInsufficientStock and nothing changes.
// Callers must hold the stock locks of every pair e references.
func (p *Projector) Apply(ctx context.Context, e *ledger.Entry) error {
	deltas := Deltas(e)
	if len(deltas) == 0 {
		return apperror.NewValidation(fmt.Sprintf("entry %s has no stock effect", e.ID))
	}

	return p.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		for _, d := range deltas {
			if err := p.applyDelta(ctx, d); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *Projector) applyDelta(ctx context.Context, d Delta) error {
	var current int64
	for attempt := 0; attempt < p.maxCAS; attempt++ {
		item, _, err := p.repo.Get(ctx, d.Pair)
		if err != nil {
			return fmt.Errorf("read balance %s: %w", d.Pair, err)
		}
		current = item.Quantity

		next := current + d.Amount
		if next < 0 {
			return apperror.NewInsufficientStock(d.Pair.ProductID.String(), d.Pair.WarehouseID.String(), -d.Amount, current)
		}

		ok, err := p.repo.CompareAndSwap(ctx, d.Pair, current, next, p.nowFunc().UTC())
		if err != nil {
			return fmt.Errorf("update balance %s: %w", d.Pair, err)
		}
		if ok {
			return nil
		}
		logger.Debug(ctx, "balance CAS lost, retrying", "pair", d.Pair.String(), "attempt", attempt+1)
	}

	if d.Amount < 0 {
		return apperror.NewInsufficientStock(d.Pair.ProductID.String(), d.Pair.WarehouseID.String(), -d.Amount, current).
			WithDetail("reason", "contention")
	}
	return apperror.NewConcurrentModification("inventory_item", d.Pair.String())
}

// Balance returns the live aggregate. A pair never touched has quantity 0.
func (p *Projector) Balance(ctx context.Context, productID, warehouseID id.ID) (Item, error) {
	pair := ledger.Pair{ProductID: productID, WarehouseID: warehouseID}
	item, ok, err := p.repo.Get(ctx, pair)
	if err != nil {
		return Item{}, fmt.Errorf("get balance: %w", err)
	}
	if !ok {
		return Item{ProductID: productID, WarehouseID: warehouseID}, nil
	}
	return item, nil
}

// Replay recomputes the pair's quantity from the approved ledger history.
func (p *Projector) Replay(ctx context.Context, productID, warehouseID id.ID) (int64, error) {
	entries, err := p.ledger.ListByProductWarehouse(ctx, productID, warehouseID)
	if err != nil {
		return 0, fmt.Errorf("list entries: %w", err)
	}
	return Fold(entries, ledger.Pair{ProductID: productID, WarehouseID: warehouseID}), nil
}

// ListByWarehouse returns the aggregates of one warehouse.
func (p *Projector) ListByWarehouse(ctx context.Context, warehouseID id.ID, f ListFilter) ([]Item, error) {
	return p.repo.ListByWarehouse(ctx, warehouseID, f)
}

// ListByProduct returns the aggregates of one product.
func (p *Projector) ListByProduct(ctx context.Context, productID id.ID, f ListFilter) ([]Item, error) {
	return p.repo.ListByProduct(ctx, productID, f)
}

// Drift compares a live aggregate with its replay.
type Drift struct {
	Pair     ledger.Pair `json:"pair"`
	Live     int64       `json:"live"`
	Replayed int64       `json:"replayed"`
	Repaired bool        `json:"repaired"`
}

// InSync reports whether live equals replay.
func (d Drift) InSync() bool {
	return d.Live == d.Replayed
}

// Verify compares the live aggregate with a replay inside one read-only snapshot.
func (p *Projector) Verify(ctx context.Context, productID, warehouseID id.ID) (Drift, error) {
	pair := ledger.Pair{ProductID: productID, WarehouseID: warehouseID}
	d := Drift{Pair: pair}
	err := p.txm.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		d, err = p.compare(ctx, pair)
		return err
	})
	return d, err
}

func (p *Projector) compare(ctx context.Context, pair ledger.Pair) (Drift, error) {
	item, _, err := p.repo.Get(ctx, pair)
	if err != nil {
		return Drift{}, fmt.Errorf("get balance: %w", err)
	}
	replayed, err := p.Replay(ctx, pair.ProductID, pair.WarehouseID)
	if err != nil {
		return Drift{}, err
	}
	return Drift{Pair: pair, Live: item.Quantity, Replayed: replayed}, nil
}

// Repair overwrites a drifted aggregate with its replayed value.
func (p *Projector) Repair(ctx context.Context, productID, warehouseID id.ID) (Drift, error) {
	pair := ledger.Pair{ProductID: productID, WarehouseID: warehouseID}

	ctx, release, err := p.locker.Acquire(ctx, keylock.StockKey(productID, warehouseID))
	if err != nil {
		return Drift{}, fmt.Errorf("lock %s: %w", pair, err)
	}
	defer release()

	var d Drift
	err = p.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var cerr error
		d, cerr = p.compare(ctx, pair)
		if cerr != nil || d.InSync() {
			return cerr
		}
		if d.Replayed < 0 {
			return apperror.NewBusinessRule(apperror.CodeInsufficientStock,
				fmt.Sprintf("replay of %s is negative (%d)", pair, d.Replayed))
		}
		ok, err := p.repo.CompareAndSwap(ctx, pair, d.Live, d.Replayed, p.nowFunc().UTC())
		if err != nil {
			return fmt.Errorf("repair balance: %w", err)
		}
		if !ok {
			return apperror.NewConcurrentModification("inventory_item", pair.String())
		}
		d.Repaired = true
		return nil
	})
	if err != nil {
		return Drift{}, err
	}

	if d.Repaired {
		logger.Warn(ctx, "balance repaired",
			"product_id", productID,
			"warehouse_id", warehouseID,
			"live", d.Live,
			"replayed", d.Replayed,
		)
	}
	return d, nil
}

// Pairs returns every pair known to either the ledger or the aggregate store, sorted.
func (p *Projector) Pairs(ctx context.Context) ([]ledger.Pair, error) {
	fromLedger, err := p.ledger.ListPairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ledger pairs: %w", err)
	}
	fromItems, err := p.repo.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list balance keys: %w", err)
	}

	seen := make(map[ledger.Pair]struct{}, len(fromLedger)+len(fromItems))
	out := make([]ledger.Pair, 0, len(fromLedger)+len(fromItems))
	for _, pair := range slices.Concat(fromLedger, fromItems) {
		if _, ok := seen[pair]; ok {
			continue
		}
		seen[pair] = struct{}{}
		out = append(out, pair)
	}
	slices.SortFunc(out, func(a, b ledger.Pair) int {
		if c := compareID(a.ProductID, b.ProductID); c != 0 {
			return c
		}
		return compareID(a.WarehouseID, b.WarehouseID)
	})
	return out, nil
}

func compareID(a, b id.ID) int {
	return slices.Compare(a[:], b[:])
}
