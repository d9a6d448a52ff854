package ledger

import (
	"context"
	"strings"
	"sync"

	"github.com/calderahq/tradewind-backend/internal/events"
	pkgerrors "github.com/calderahq/tradewind-backend/pkg/errors"
	"github.com/calderahq/tradewind-backend/pkg/logger"
	"github.com/calderahq/tradewind-backend/pkg/metrics"
)

// Address identifies an account. The ledger imposes no format beyond
// non-blank; callers bring their own addressing scheme.
type Address string

// Config seeds a ledger instance.
type Config struct {
	Owner     Address
	MaxSupply uint64
}

// Ledger owns the balances of a single fungible asset. Every mutating
// operation serializes behind one mutex and either fully applies or leaves
// state untouched. Events fire after the mutex is released, so no sink ever
// observes a half-applied mutation.
type Ledger struct {
	mu          sync.Mutex
	owner       Address
	maxSupply   uint64
	totalSupply uint64
	balances    map[Address]uint64
	minters     map[Address]bool
	paused      bool

	bus  *events.Bus
	logg *logger.Logger
	mtx  *metrics.EngineMetrics
}

// New builds a ledger. Bus, logger and metrics are optional; a nil value
// disables that concern.
func New(cfg Config, bus *events.Bus, logg *logger.Logger, mtx *metrics.EngineMetrics) (*Ledger, error) {
	if err := validAddress(cfg.Owner, "owner"); err != nil {
		return nil, err
	}
	if cfg.MaxSupply == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "max supply must be > 0")
	}
	return &Ledger{
		owner:     cfg.Owner,
		maxSupply: cfg.MaxSupply,
		balances:  make(map[Address]uint64),
		minters:   make(map[Address]bool),
		bus:       bus,
		logg:      logg,
		mtx:       mtx,
	}, nil
}

// Mint credits newly created supply to an account. Caller must be the owner
// or an authorized minter, the ledger must not be paused, and the supply cap
// must hold.
func (l *Ledger) Mint(ctx context.Context, caller, to Address, amount uint64) error {
	if err := validAddress(caller, "caller"); err != nil {
		return l.reject(ctx, "mint", err)
	}
	if err := validAddress(to, "recipient"); err != nil {
		return l.reject(ctx, "mint", err)
	}
	if amount == 0 {
		return l.reject(ctx, "mint", pkgerrors.New(pkgerrors.CodeInvalidArgument, "mint amount must be > 0"))
	}

	l.mu.Lock()
	var err error
	switch {
	case caller != l.owner && !l.minters[caller]:
		err = pkgerrors.New(pkgerrors.CodeUnauthorized, "caller is not the owner or an authorized minter")
	case l.paused:
		err = pkgerrors.New(pkgerrors.CodePaused, "ledger is paused")
	case amount > l.maxSupply-l.totalSupply:
		err = pkgerrors.New(pkgerrors.CodeSupplyCapExceeded, "mint would exceed max supply")
	}
	if err != nil {
		l.mu.Unlock()
		return l.reject(ctx, "mint", err)
	}

	l.balances[to] += amount
	l.totalSupply += amount
	supply := l.totalSupply
	l.mu.Unlock()

	l.mtx.ObserveOp("mint", "ok")
	l.mtx.SetTotalSupply(supply)
	l.info(ctx, "supply minted", map[string]any{"to": to, "amount": amount, "total_supply": supply})
	l.publish(ctx, events.TypeMinted, events.MintedPayload{
		To:          string(to),
		Amount:      amount,
		TotalSupply: supply,
	})
	return nil
}

// Burn destroys part of the caller's own balance. Burning stays available
// while paused; it moves no value between parties.
func (l *Ledger) Burn(ctx context.Context, caller Address, amount uint64) error {
	if err := validAddress(caller, "caller"); err != nil {
		return l.reject(ctx, "burn", err)
	}
	if amount == 0 {
		return l.reject(ctx, "burn", pkgerrors.New(pkgerrors.CodeInvalidArgument, "burn amount must be > 0"))
	}

	l.mu.Lock()
	if l.balances[caller] < amount {
		l.mu.Unlock()
		return l.reject(ctx, "burn", pkgerrors.New(pkgerrors.CodeInsufficientBalance, "burn amount exceeds balance"))
	}
	l.debit(caller, amount)
	l.totalSupply -= amount
	supply := l.totalSupply
	l.mu.Unlock()

	l.mtx.ObserveOp("burn", "ok")
	l.mtx.SetTotalSupply(supply)
	l.info(ctx, "supply burned", map[string]any{"from": caller, "amount": amount, "total_supply": supply})
	l.publish(ctx, events.TypeBurned, events.BurnedPayload{
		From:        string(caller),
		Amount:      amount,
		TotalSupply: supply,
	})
	return nil
}

// Transfer atomically moves value between two accounts. There is no partial
// transfer: a failed check leaves both balances untouched.
func (l *Ledger) Transfer(ctx context.Context, from, to Address, amount uint64) error {
	if err := validAddress(from, "sender"); err != nil {
		return l.reject(ctx, "transfer", err)
	}
	if err := validAddress(to, "recipient"); err != nil {
		return l.reject(ctx, "transfer", err)
	}
	if amount == 0 {
		return l.reject(ctx, "transfer", pkgerrors.New(pkgerrors.CodeInvalidArgument, "transfer amount must be > 0"))
	}

	l.mu.Lock()
	var err error
	switch {
	case l.paused:
		err = pkgerrors.New(pkgerrors.CodePaused, "ledger is paused")
	case l.balances[from] < amount:
		err = pkgerrors.New(pkgerrors.CodeInsufficientBalance, "transfer amount exceeds balance")
	}
	if err != nil {
		l.mu.Unlock()
		return l.reject(ctx, "transfer", err)
	}
	l.debit(from, amount)
	l.balances[to] += amount
	l.mu.Unlock()

	l.mtx.ObserveOp("transfer", "ok")
	l.publish(ctx, events.TypeTransferred, events.TransferredPayload{
		From:   string(from),
		To:     string(to),
		Amount: amount,
	})
	return nil
}

// SetMinter grants or revokes minting rights. Owner only. Applying the
// current state again is a no-op and emits nothing.
func (l *Ledger) SetMinter(ctx context.Context, caller, minter Address, enabled bool) error {
	if err := validAddress(minter, "minter"); err != nil {
		return l.reject(ctx, "set_minter", err)
	}

	l.mu.Lock()
	if caller != l.owner {
		l.mu.Unlock()
		return l.reject(ctx, "set_minter", pkgerrors.New(pkgerrors.CodeUnauthorized, "only the owner can manage minters"))
	}
	if l.minters[minter] == enabled {
		l.mu.Unlock()
		return nil
	}
	if enabled {
		l.minters[minter] = true
	} else {
		delete(l.minters, minter)
	}
	l.mu.Unlock()

	l.mtx.ObserveOp("set_minter", "ok")
	l.info(ctx, "minter updated", map[string]any{"minter": minter, "enabled": enabled})
	l.publish(ctx, events.TypeMinterUpdated, events.MinterUpdatedPayload{
		Minter:  string(minter),
		Enabled: enabled,
	})
	return nil
}

// Pause halts minting and transfers. Owner only; pausing an already paused
// ledger is a no-op.
func (l *Ledger) Pause(ctx context.Context, caller Address) error {
	return l.setPaused(ctx, caller, true)
}

// Unpause lifts a pause. Owner only.
func (l *Ledger) Unpause(ctx context.Context, caller Address) error {
	return l.setPaused(ctx, caller, false)
}

func (l *Ledger) setPaused(ctx context.Context, caller Address, paused bool) error {
	op := "pause"
	if !paused {
		op = "unpause"
	}

	l.mu.Lock()
	if caller != l.owner {
		l.mu.Unlock()
		return l.reject(ctx, op, pkgerrors.New(pkgerrors.CodeUnauthorized, "only the owner can pause or unpause"))
	}
	if l.paused == paused {
		l.mu.Unlock()
		return nil
	}
	l.paused = paused
	l.mu.Unlock()

	l.mtx.ObserveOp(op, "ok")
	l.info(ctx, "pause state changed", map[string]any{"paused": paused})
	if paused {
		l.publish(ctx, events.TypePaused, events.PausedPayload{By: string(caller)})
	} else {
		l.publish(ctx, events.TypeUnpaused, events.UnpausedPayload{By: string(caller)})
	}
	return nil
}

// BalanceOf reads a single balance. Unknown accounts hold zero.
func (l *Ledger) BalanceOf(addr Address) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[addr]
}

// TotalSupply reads the circulating supply.
func (l *Ledger) TotalSupply() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalSupply
}

// MaxSupply reads the immutable supply cap.
func (l *Ledger) MaxSupply() uint64 {
	return l.maxSupply
}

// Owner reads the immutable owner address.
func (l *Ledger) Owner() Address {
	return l.owner
}

// Paused reads the pause flag.
func (l *Ledger) Paused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.paused
}

// IsMinter reports whether addr currently holds minting rights.
func (l *Ledger) IsMinter(addr Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.minters[addr]
}

// Balances returns a copy of every tracked balance, taken under the lock so
// the snapshot is consistent with TotalSupply at one instant.
func (l *Ledger) Balances() map[Address]uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	snapshot := make(map[Address]uint64, len(l.balances))
	for addr, balance := range l.balances {
		snapshot[addr] = balance
	}
	return snapshot
}

// debit removes amount from addr, dropping zeroed entries so Balances stays
// equal to the set of accounts that actually hold value.
func (l *Ledger) debit(addr Address, amount uint64) {
	remaining := l.balances[addr] - amount
	if remaining == 0 {
		delete(l.balances, addr)
		return
	}
	l.balances[addr] = remaining
}

func (l *Ledger) reject(ctx context.Context, op string, err error) error {
	l.mtx.ObserveOp(op, string(pkgerrors.CodeOf(err)))
	if l.logg != nil {
		l.logg.Warn(l.logg.WithField(ctx, "op", op), err.Error())
	}
	return err
}

func (l *Ledger) info(ctx context.Context, msg string, fields map[string]any) {
	if l.logg == nil {
		return
	}
	l.logg.Info(l.logg.WithFields(ctx, fields), msg)
}

func (l *Ledger) publish(ctx context.Context, eventType events.Type, payload any) {
	if l.bus == nil {
		return
	}
	if err := l.bus.Publish(ctx, eventType, 1, payload); err != nil && l.logg != nil {
		l.logg.Warn(l.logg.WithField(ctx, "event_type", eventType), "event delivery incomplete")
	}
}

func validAddress(addr Address, role string) error {
	if strings.TrimSpace(string(addr)) == "" {
		return pkgerrors.New(pkgerrors.CodeInvalidArgument, role+" address must not be blank")
	}
	return nil
}
