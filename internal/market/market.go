package market

import (
	"context"
	"math/bits"
	"strings"
	"sync"
	"time"

	"github.com/calderahq/tradewind-backend/internal/events"
	"github.com/calderahq/tradewind-backend/internal/ledger"
	pkgerrors "github.com/calderahq/tradewind-backend/pkg/errors"
	"github.com/calderahq/tradewind-backend/pkg/logger"
	"github.com/calderahq/tradewind-backend/pkg/metrics"
)

const (
	// FeeDenominator converts basis points to a fraction: 10000 bps = 100%.
	FeeDenominator = 10_000
	// MaxFeeBps caps the platform fee at 10%.
	MaxFeeBps = 1_000
	// DefaultFeeBps is the 2.5% rate a zero-valued config falls back to.
	DefaultFeeBps = 250
)

// ValueMover is the slice of the ledger the marketplace needs. The market
// never touches balances directly; escrow moves only through Transfer.
type ValueMover interface {
	Transfer(ctx context.Context, from, to ledger.Address, amount uint64) error
	BalanceOf(addr ledger.Address) uint64
}

// Listing is a seller's offer. Once Active goes false it never comes back;
// listing ids are never reused.
type Listing struct {
	ID        uint64
	Seller    ledger.Address
	Price     uint64
	Active    bool
	CreatedAt time.Time
	Metadata  string
}

// Order is a funded acceptance of a listing. Price is snapshotted from the
// listing at acceptance and immutable afterwards.
type Order struct {
	ID        uint64
	ListingID uint64
	Buyer     ledger.Address
	Seller    ledger.Address
	Price     uint64
	Completed bool
	CreatedAt time.Time
}

// Config seeds a marketplace instance.
type Config struct {
	Owner         ledger.Address
	EscrowAccount ledger.Address
	FeeBps        uint32
}

// Market owns listings and orders and implements the escrow protocol on top
// of the ledger. Buyer funds sit in the escrow account between order creation
// and completion; accrued platform fees are tracked as an explicit counter so
// withdrawing them can never touch in-flight escrow.
type Market struct {
	mu     sync.Mutex
	ledger ValueMover
	owner  ledger.Address
	escrow ledger.Address

	feeBps      uint32
	accruedFees uint64
	escrowHeld  uint64

	listings       map[uint64]*Listing
	orders         map[uint64]*Order
	userListings   map[ledger.Address][]uint64
	userOrders     map[ledger.Address][]uint64
	nextListingID  uint64
	nextOrderID    uint64
	activeListings int
	openOrders     int

	bus  *events.Bus
	logg *logger.Logger
	mtx  *metrics.EngineMetrics
}

// New builds a marketplace bound to the given ledger.
func New(cfg Config, mover ValueMover, bus *events.Bus, logg *logger.Logger, mtx *metrics.EngineMetrics) (*Market, error) {
	if mover == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "ledger is required")
	}
	if strings.TrimSpace(string(cfg.Owner)) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "owner address must not be blank")
	}
	if strings.TrimSpace(string(cfg.EscrowAccount)) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "escrow account must not be blank")
	}
	if cfg.FeeBps == 0 {
		cfg.FeeBps = DefaultFeeBps
	}
	if cfg.FeeBps > MaxFeeBps {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "fee exceeds 1000 bps cap")
	}
	return &Market{
		ledger:        mover,
		owner:         cfg.Owner,
		escrow:        cfg.EscrowAccount,
		feeBps:        cfg.FeeBps,
		listings:      make(map[uint64]*Listing),
		orders:        make(map[uint64]*Order),
		userListings:  make(map[ledger.Address][]uint64),
		userOrders:    make(map[ledger.Address][]uint64),
		nextListingID: 1,
		nextOrderID:   1,
		bus:           bus,
		logg:          logg,
		mtx:           mtx,
	}, nil
}

// CreateListing stores a new active listing for the seller. No funds move.
func (m *Market) CreateListing(ctx context.Context, seller ledger.Address, price uint64, metadata string) (uint64, error) {
	if strings.TrimSpace(string(seller)) == "" {
		return 0, m.reject(ctx, "create_listing", pkgerrors.New(pkgerrors.CodeInvalidArgument, "seller address must not be blank"))
	}
	if price == 0 {
		return 0, m.reject(ctx, "create_listing", pkgerrors.New(pkgerrors.CodeInvalidArgument, "listing price must be > 0"))
	}

	m.mu.Lock()
	id := m.nextListingID
	m.nextListingID++
	m.listings[id] = &Listing{
		ID:        id,
		Seller:    seller,
		Price:     price,
		Active:    true,
		CreatedAt: time.Now().UTC(),
		Metadata:  metadata,
	}
	m.userListings[seller] = append(m.userListings[seller], id)
	m.activeListings++
	active := m.activeListings
	m.mu.Unlock()

	m.mtx.ObserveOp("create_listing", "ok")
	m.mtx.SetActiveListings(active)
	m.info(ctx, "listing created", map[string]any{"listing_id": id, "seller": seller, "price": price})
	m.publish(ctx, events.TypeListingCreated, events.ListingCreatedPayload{
		ListingID: id,
		Seller:    string(seller),
		Price:     price,
		Metadata:  metadata,
	})
	return id, nil
}

// UpdateListing replaces the price of an active listing. Seller only.
func (m *Market) UpdateListing(ctx context.Context, caller ledger.Address, listingID, newPrice uint64) error {
	if newPrice == 0 {
		return m.reject(ctx, "update_listing", pkgerrors.New(pkgerrors.CodeInvalidArgument, "listing price must be > 0"))
	}

	m.mu.Lock()
	listing, err := m.listingForUpdate(caller, listingID)
	if err != nil {
		m.mu.Unlock()
		return m.reject(ctx, "update_listing", err)
	}
	oldPrice := listing.Price
	listing.Price = newPrice
	m.mu.Unlock()

	m.mtx.ObserveOp("update_listing", "ok")
	m.info(ctx, "listing updated", map[string]any{"listing_id": listingID, "old_price": oldPrice, "new_price": newPrice})
	m.publish(ctx, events.TypeListingUpdated, events.ListingUpdatedPayload{
		ListingID: listingID,
		Seller:    string(caller),
		OldPrice:  oldPrice,
		NewPrice:  newPrice,
	})
	return nil
}

// CancelListing deactivates a listing before any order consumes it. Seller
// only; terminal.
func (m *Market) CancelListing(ctx context.Context, caller ledger.Address, listingID uint64) error {
	m.mu.Lock()
	listing, err := m.listingForUpdate(caller, listingID)
	if err != nil {
		m.mu.Unlock()
		return m.reject(ctx, "cancel_listing", err)
	}
	listing.Active = false
	m.activeListings--
	active := m.activeListings
	m.mu.Unlock()

	m.mtx.ObserveOp("cancel_listing", "ok")
	m.mtx.SetActiveListings(active)
	m.info(ctx, "listing cancelled", map[string]any{"listing_id": listingID, "seller": caller})
	m.publish(ctx, events.TypeListingCancelled, events.ListingCancelledPayload{
		ListingID: listingID,
		Seller:    string(caller),
	})
	return nil
}

// CreateOrder funds an order against an active listing. The buyer's funds
// move into escrow first; marketplace state mutates only after the transfer
// succeeds, so a ledger failure leaves no trace here.
func (m *Market) CreateOrder(ctx context.Context, buyer ledger.Address, listingID uint64) (uint64, error) {
	if strings.TrimSpace(string(buyer)) == "" {
		return 0, m.reject(ctx, "create_order", pkgerrors.New(pkgerrors.CodeInvalidArgument, "buyer address must not be blank"))
	}

	m.mu.Lock()
	listing, ok := m.listings[listingID]
	var err error
	switch {
	case !ok:
		err = pkgerrors.New(pkgerrors.CodeInvalidState, "listing not found")
	case !listing.Active:
		err = pkgerrors.New(pkgerrors.CodeInvalidState, "listing is no longer active")
	case listing.Seller == buyer:
		err = pkgerrors.New(pkgerrors.CodeInvalidState, "seller cannot order their own listing")
	}
	if err != nil {
		m.mu.Unlock()
		return 0, m.reject(ctx, "create_order", err)
	}

	price := listing.Price
	seller := listing.Seller
	if err := m.ledger.Transfer(ctx, buyer, m.escrow, price); err != nil {
		m.mu.Unlock()
		return 0, m.reject(ctx, "create_order", err)
	}

	id := m.nextOrderID
	m.nextOrderID++
	m.orders[id] = &Order{
		ID:        id,
		ListingID: listingID,
		Buyer:     buyer,
		Seller:    seller,
		Price:     price,
		CreatedAt: time.Now().UTC(),
	}
	m.userOrders[buyer] = append(m.userOrders[buyer], id)
	m.userOrders[seller] = append(m.userOrders[seller], id)
	listing.Active = false
	m.activeListings--
	m.openOrders++
	m.escrowHeld += price
	active, open, held := m.activeListings, m.openOrders, m.escrowHeld
	m.mu.Unlock()

	m.mtx.ObserveOp("create_order", "ok")
	m.mtx.SetActiveListings(active)
	m.mtx.SetOpenOrders(open)
	m.mtx.SetEscrowHeld(held)
	m.info(ctx, "order created", map[string]any{"order_id": id, "listing_id": listingID, "buyer": buyer, "price": price})
	m.publish(ctx, events.TypeOrderCreated, events.OrderCreatedPayload{
		OrderID:   id,
		ListingID: listingID,
		Buyer:     string(buyer),
		Seller:    string(seller),
		Price:     price,
	})
	return id, nil
}

// CompleteOrder releases escrow to the seller minus the platform fee. Seller
// only; terminal. This is the only path escrowed funds leave the marketplace.
func (m *Market) CompleteOrder(ctx context.Context, caller ledger.Address, orderID uint64) error {
	m.mu.Lock()
	order, ok := m.orders[orderID]
	var err error
	switch {
	case !ok:
		err = pkgerrors.New(pkgerrors.CodeInvalidState, "order not found")
	case order.Seller != caller:
		err = pkgerrors.New(pkgerrors.CodeUnauthorized, "only the order seller can complete it")
	case order.Completed:
		err = pkgerrors.New(pkgerrors.CodeInvalidState, "order already completed")
	}
	if err != nil {
		m.mu.Unlock()
		return m.reject(ctx, "complete_order", err)
	}

	fee := feeFor(order.Price, m.feeBps)
	sellerAmount := order.Price - fee
	if err := m.ledger.Transfer(ctx, m.escrow, order.Seller, sellerAmount); err != nil {
		m.mu.Unlock()
		return m.reject(ctx, "complete_order", err)
	}

	order.Completed = true
	m.accruedFees += fee
	m.escrowHeld -= order.Price
	m.openOrders--
	open, held, fees := m.openOrders, m.escrowHeld, m.accruedFees
	m.mu.Unlock()

	m.mtx.ObserveOp("complete_order", "ok")
	m.mtx.SetOpenOrders(open)
	m.mtx.SetEscrowHeld(held)
	m.mtx.SetAccruedFees(fees)
	m.info(ctx, "order completed", map[string]any{"order_id": orderID, "seller_amount": sellerAmount, "platform_fee": fee})
	m.publish(ctx, events.TypeOrderCompleted, events.OrderCompletedPayload{
		OrderID:      orderID,
		Seller:       string(caller),
		SellerAmount: sellerAmount,
		PlatformFee:  fee,
	})
	return nil
}

// UpdatePlatformFee sets the fee rate for future completions. Owner only;
// capped at MaxFeeBps.
func (m *Market) UpdatePlatformFee(ctx context.Context, caller ledger.Address, newBps uint32) error {
	if newBps > MaxFeeBps {
		return m.reject(ctx, "update_platform_fee", pkgerrors.New(pkgerrors.CodeInvalidArgument, "fee exceeds 1000 bps cap"))
	}

	m.mu.Lock()
	if caller != m.owner {
		m.mu.Unlock()
		return m.reject(ctx, "update_platform_fee", pkgerrors.New(pkgerrors.CodeUnauthorized, "only the owner can update the fee"))
	}
	oldBps := m.feeBps
	m.feeBps = newBps
	m.mu.Unlock()

	m.mtx.ObserveOp("update_platform_fee", "ok")
	m.info(ctx, "platform fee updated", map[string]any{"old_bps": oldBps, "new_bps": newBps})
	m.publish(ctx, events.TypeFeeUpdated, events.FeeUpdatedPayload{
		OldBps: oldBps,
		NewBps: newBps,
	})
	return nil
}

// WithdrawFees moves the accrued fee counter to the owner. Safe at any time:
// the counter never includes escrow backing open orders. Withdrawing a zero
// balance is a successful no-op.
func (m *Market) WithdrawFees(ctx context.Context, caller ledger.Address) (uint64, error) {
	m.mu.Lock()
	if caller != m.owner {
		m.mu.Unlock()
		return 0, m.reject(ctx, "withdraw_fees", pkgerrors.New(pkgerrors.CodeUnauthorized, "only the owner can withdraw fees"))
	}
	amount := m.accruedFees
	if amount == 0 {
		m.mu.Unlock()
		return 0, nil
	}
	if err := m.ledger.Transfer(ctx, m.escrow, m.owner, amount); err != nil {
		m.mu.Unlock()
		return 0, m.reject(ctx, "withdraw_fees", err)
	}
	m.accruedFees = 0
	m.mu.Unlock()

	m.mtx.ObserveOp("withdraw_fees", "ok")
	m.mtx.SetAccruedFees(0)
	m.info(ctx, "platform fees withdrawn", map[string]any{"amount": amount})
	m.publish(ctx, events.TypeFeesWithdrawn, events.FeesWithdrawnPayload{
		To:     string(m.owner),
		Amount: amount,
	})
	return amount, nil
}

// GetListing returns a copy of the listing.
func (m *Market) GetListing(listingID uint64) (Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	listing, ok := m.listings[listingID]
	if !ok {
		return Listing{}, pkgerrors.New(pkgerrors.CodeInvalidState, "listing not found")
	}
	return *listing, nil
}

// GetOrder returns a copy of the order.
func (m *Market) GetOrder(orderID uint64) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return Order{}, pkgerrors.New(pkgerrors.CodeInvalidState, "order not found")
	}
	return *order, nil
}

// UserListings returns copies of every listing the user ever created, oldest
// first. The index is append-only; cancelled listings stay in it.
func (m *Market) UserListings(user ledger.Address) []Listing {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.userListings[user]
	listings := make([]Listing, 0, len(ids))
	for _, id := range ids {
		listings = append(listings, *m.listings[id])
	}
	return listings
}

// UserOrders returns copies of every order the user participated in, as buyer
// or seller, oldest first.
func (m *Market) UserOrders(user ledger.Address) []Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.userOrders[user]
	orders := make([]Order, 0, len(ids))
	for _, id := range ids {
		orders = append(orders, *m.orders[id])
	}
	return orders
}

// FeeBps reads the current platform fee rate.
func (m *Market) FeeBps() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.feeBps
}

// AccruedFees reads the withdrawable fee balance.
func (m *Market) AccruedFees() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accruedFees
}

// EscrowHeld reads the escrow backing open orders.
func (m *Market) EscrowHeld() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.escrowHeld
}

// EscrowAccount reads the ledger address holding escrow and fees.
func (m *Market) EscrowAccount() ledger.Address {
	return m.escrow
}

// listingForUpdate resolves a listing the caller may mutate. Lock held.
func (m *Market) listingForUpdate(caller ledger.Address, listingID uint64) (*Listing, error) {
	listing, ok := m.listings[listingID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "listing not found")
	}
	if listing.Seller != caller {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "only the listing seller can modify it")
	}
	if !listing.Active {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "listing is no longer active")
	}
	return listing, nil
}

// feeFor computes floor(price * bps / 10000) with a 128-bit intermediate so
// the product cannot overflow for any uint64 price.
func feeFor(price uint64, bps uint32) uint64 {
	hi, lo := bits.Mul64(price, uint64(bps))
	quo, _ := bits.Div64(hi, lo, FeeDenominator)
	return quo
}

func (m *Market) reject(ctx context.Context, op string, err error) error {
	m.mtx.ObserveOp(op, string(pkgerrors.CodeOf(err)))
	if m.logg != nil {
		m.logg.Warn(m.logg.WithField(ctx, "op", op), err.Error())
	}
	return err
}

func (m *Market) info(ctx context.Context, msg string, fields map[string]any) {
	if m.logg == nil {
		return
	}
	m.logg.Info(m.logg.WithFields(ctx, fields), msg)
}

func (m *Market) publish(ctx context.Context, eventType events.Type, payload any) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(ctx, eventType, 1, payload); err != nil && m.logg != nil {
		m.logg.Warn(m.logg.WithField(ctx, "event_type", eventType), "event delivery incomplete")
	}
}
