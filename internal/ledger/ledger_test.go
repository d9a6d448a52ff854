package ledger

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/calderahq/tradewind-backend/internal/events"
	pkgerrors "github.com/calderahq/tradewind-backend/pkg/errors"
)

const (
	owner  = Address("owner")
	minter = Address("minter")
	alice  = Address("alice")
	bob    = Address("bob")
)

type captureSink struct {
	envelopes []events.Envelope
}

func (s *captureSink) Name() string { return "capture" }

func (s *captureSink) Deliver(ctx context.Context, env events.Envelope) error {
	s.envelopes = append(s.envelopes, env)
	return nil
}

func newTestLedger(t *testing.T, maxSupply uint64) (*Ledger, *captureSink) {
	t.Helper()
	sink := &captureSink{}
	bus := events.NewBus(nil)
	bus.Subscribe(sink)
	l, err := New(Config{Owner: owner, MaxSupply: maxSupply}, bus, nil, nil)
	if err != nil {
		t.Fatalf("construct ledger: %v", err)
	}
	return l, sink
}

func assertConservation(t *testing.T, l *Ledger) {
	t.Helper()
	var sum uint64
	for _, balance := range l.Balances() {
		sum += balance
	}
	if sum != l.TotalSupply() {
		t.Fatalf("conservation violated: sum(balances)=%d total_supply=%d", sum, l.TotalSupply())
	}
}

func assertCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != code {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func TestMintCreditsAndEmits(t *testing.T) {
	l, sink := newTestLedger(t, 10_000)
	ctx := context.Background()

	if err := l.Mint(ctx, owner, alice, 1000); err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	if got := l.BalanceOf(alice); got != 1000 {
		t.Fatalf("expected balance 1000 got %d", got)
	}
	if got := l.TotalSupply(); got != 1000 {
		t.Fatalf("expected supply 1000 got %d", got)
	}
	assertConservation(t, l)

	if len(sink.envelopes) != 1 || sink.envelopes[0].Type != events.TypeMinted {
		t.Fatalf("expected one minted event, got %+v", sink.envelopes)
	}
	var payload events.MintedPayload
	if err := json.Unmarshal(sink.envelopes[0].Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.To != string(alice) || payload.Amount != 1000 || payload.TotalSupply != 1000 {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestMintAuthorization(t *testing.T) {
	l, _ := newTestLedger(t, 10_000)
	ctx := context.Background()

	assertCode(t, l.Mint(ctx, alice, alice, 100), pkgerrors.CodeUnauthorized)
	if l.TotalSupply() != 0 {
		t.Fatal("failed mint must not change supply")
	}

	if err := l.SetMinter(ctx, owner, minter, true); err != nil {
		t.Fatalf("set minter: %v", err)
	}
	if !l.IsMinter(minter) {
		t.Fatal("expected minter enabled")
	}
	if err := l.Mint(ctx, minter, bob, 100); err != nil {
		t.Fatalf("authorized minter mint failed: %v", err)
	}

	if err := l.SetMinter(ctx, owner, minter, false); err != nil {
		t.Fatalf("revoke minter: %v", err)
	}
	assertCode(t, l.Mint(ctx, minter, bob, 100), pkgerrors.CodeUnauthorized)

	assertCode(t, l.SetMinter(ctx, alice, minter, true), pkgerrors.CodeUnauthorized)
	assertConservation(t, l)
}

func TestMintSupplyCap(t *testing.T) {
	l, _ := newTestLedger(t, 1000)
	ctx := context.Background()

	if err := l.Mint(ctx, owner, alice, 600); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Mint(ctx, owner, bob, 400); err != nil {
		t.Fatalf("mint to cap should succeed: %v", err)
	}
	assertCode(t, l.Mint(ctx, owner, alice, 1), pkgerrors.CodeSupplyCapExceeded)
	if l.TotalSupply() != 1000 || l.BalanceOf(alice) != 600 {
		t.Fatal("failed mint must leave state unchanged")
	}
	assertConservation(t, l)
}

func TestTransferMovesValueAtomically(t *testing.T) {
	l, sink := newTestLedger(t, 10_000)
	ctx := context.Background()

	if err := l.Mint(ctx, owner, alice, 500); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Transfer(ctx, alice, bob, 200); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if l.BalanceOf(alice) != 300 || l.BalanceOf(bob) != 200 {
		t.Fatalf("unexpected balances alice=%d bob=%d", l.BalanceOf(alice), l.BalanceOf(bob))
	}

	assertCode(t, l.Transfer(ctx, alice, bob, 301), pkgerrors.CodeInsufficientBalance)
	if l.BalanceOf(alice) != 300 || l.BalanceOf(bob) != 200 {
		t.Fatal("failed transfer must not move value")
	}
	assertConservation(t, l)

	last := sink.envelopes[len(sink.envelopes)-1]
	if last.Type != events.TypeTransferred {
		t.Fatalf("expected transferred event last, got %s", last.Type)
	}
}

func TestBurnReducesSupply(t *testing.T) {
	l, _ := newTestLedger(t, 10_000)
	ctx := context.Background()

	if err := l.Mint(ctx, owner, alice, 500); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Burn(ctx, alice, 200); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if l.BalanceOf(alice) != 300 || l.TotalSupply() != 300 {
		t.Fatalf("unexpected state after burn: balance=%d supply=%d", l.BalanceOf(alice), l.TotalSupply())
	}
	assertCode(t, l.Burn(ctx, alice, 301), pkgerrors.CodeInsufficientBalance)
	assertConservation(t, l)
}

func TestPauseGatesMintAndTransferNotBurn(t *testing.T) {
	l, _ := newTestLedger(t, 10_000)
	ctx := context.Background()

	if err := l.Mint(ctx, owner, alice, 500); err != nil {
		t.Fatalf("mint: %v", err)
	}
	assertCode(t, l.Pause(ctx, alice), pkgerrors.CodeUnauthorized)
	if err := l.Pause(ctx, owner); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !l.Paused() {
		t.Fatal("expected paused")
	}

	assertCode(t, l.Mint(ctx, owner, alice, 1), pkgerrors.CodePaused)
	assertCode(t, l.Transfer(ctx, alice, bob, 1), pkgerrors.CodePaused)
	if err := l.Burn(ctx, alice, 100); err != nil {
		t.Fatalf("burn while paused should succeed: %v", err)
	}

	if err := l.Unpause(ctx, owner); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if err := l.Transfer(ctx, alice, bob, 1); err != nil {
		t.Fatalf("transfer after unpause: %v", err)
	}
	assertConservation(t, l)
}

func TestPauseIdempotentWithoutEvent(t *testing.T) {
	l, sink := newTestLedger(t, 10_000)
	ctx := context.Background()

	if err := l.Pause(ctx, owner); err != nil {
		t.Fatalf("pause: %v", err)
	}
	emitted := len(sink.envelopes)
	if err := l.Pause(ctx, owner); err != nil {
		t.Fatalf("second pause should be a no-op: %v", err)
	}
	if len(sink.envelopes) != emitted {
		t.Fatal("no-op pause must not emit")
	}
}

func TestZeroAmountsRejected(t *testing.T) {
	l, _ := newTestLedger(t, 10_000)
	ctx := context.Background()

	assertCode(t, l.Mint(ctx, owner, alice, 0), pkgerrors.CodeInvalidArgument)
	assertCode(t, l.Burn(ctx, alice, 0), pkgerrors.CodeInvalidArgument)
	assertCode(t, l.Transfer(ctx, alice, bob, 0), pkgerrors.CodeInvalidArgument)
	assertCode(t, l.Mint(ctx, owner, Address("  "), 1), pkgerrors.CodeInvalidArgument)
}

func TestConservationAcrossMixedSequence(t *testing.T) {
	l, _ := newTestLedger(t, 100_000)
	ctx := context.Background()

	steps := []func() error{
		func() error { return l.Mint(ctx, owner, alice, 40_000) },
		func() error { return l.Mint(ctx, owner, bob, 10_000) },
		func() error { return l.Transfer(ctx, alice, bob, 15_000) },
		func() error { return l.Burn(ctx, bob, 5_000) },
		func() error { return l.Transfer(ctx, bob, alice, 20_000) },
		func() error { return l.Burn(ctx, alice, 45_000) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
		assertConservation(t, l)
	}
	if l.TotalSupply() != 0 {
		t.Fatalf("expected everything burned, supply=%d", l.TotalSupply())
	}
	if len(l.Balances()) != 0 {
		t.Fatalf("expected no residual accounts, got %v", l.Balances())
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{Owner: "", MaxSupply: 1}, nil, nil, nil); err == nil {
		t.Fatal("expected blank owner to be rejected")
	}
	if _, err := New(Config{Owner: owner, MaxSupply: 0}, nil, nil, nil); err == nil {
		t.Fatal("expected zero max supply to be rejected")
	}
}
