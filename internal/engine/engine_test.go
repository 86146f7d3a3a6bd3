package engine_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"example.com/fairticket/internal/domain"
	"example.com/fairticket/internal/engine"
	"example.com/fairticket/internal/ledger"
)

const (
	eventAddr = domain.Address("0xevent")
	organizer = domain.Address("organizer")
	alice     = domain.Address("alice")
	bob       = domain.Address("bob")
	carol     = domain.Address("carol")
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type recorded struct {
	mu   sync.Mutex
	acts []domain.Activity
}

func (r *recorded) Record(a domain.Activity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acts = append(r.acts, a)
}

func (r *recorded) kinds() []domain.ActivityKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ActivityKind, 0, len(r.acts))
	for _, a := range r.acts {
		out = append(out, a.Kind)
	}
	return out
}

func baseConfig() domain.EventConfig {
	return domain.EventConfig{
		Name:                "Spring Concert",
		Symbol:              "SPRING",
		Organizer:           organizer,
		FacePrice:           d("100"),
		MaxTickets:          3,
		MaxResalePercent:    120,
		MinResalePercent:    50,
		OrganizerFeePercent: 10,
	}
}

type fixture struct {
	eng *engine.Engine
	ldg *ledger.Ledger
	rec *recorded
}

func newFixture(t *testing.T, mutate func(*domain.EventConfig)) fixture {
	t.Helper()
	cfg := baseConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	ldg := ledger.New(nil)
	for _, a := range []domain.Address{alice, bob, carol} {
		if err := ldg.Deposit(a, d("1000")); err != nil {
			t.Fatalf("deposit: %v", err)
		}
	}
	rec := &recorded{}
	clock := func() time.Time { return time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC) }
	eng, err := engine.New(eventAddr, cfg, ldg, engine.WithRecorder(rec), engine.WithClock(clock))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return fixture{eng: eng, ldg: ldg, rec: rec}
}

func (f fixture) mint(t *testing.T, who domain.Address) domain.TicketID {
	t.Helper()
	id, err := f.eng.Mint(context.Background(), who, f.eng.Config().FacePrice)
	if err != nil {
		t.Fatalf("mint for %s: %v", who, err)
	}
	return id
}

func assertBalance(t *testing.T, l *ledger.Ledger, a domain.Address, want string) {
	t.Helper()
	if got := l.BalanceOf(a); !got.Equal(d(want)) {
		t.Fatalf("balance of %s: expected %s, got %s", a, want, got)
	}
}

func assertConserved(t *testing.T, e *engine.Engine) {
	t.Helper()
	if err := e.CheckConservation(); err != nil {
		t.Fatalf("conservation: %v", err)
	}
	if !e.CustodyBalance().Equal(e.ExpectedCustody()) {
		t.Fatalf("custody %s != expected %s", e.CustodyBalance(), e.ExpectedCustody())
	}
}

func TestResaleAndRefundScenario(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	id := f.mint(t, alice)
	if id != 1 {
		t.Fatalf("expected first id 1, got %d", id)
	}
	if owner, _ := f.eng.OwnerOf(id); owner != alice {
		t.Fatalf("expected alice to hold ticket, got %s", owner)
	}
	assertBalance(t, f.ldg, eventAddr, "100")

	if err := f.eng.ResaleTicket(ctx, bob, id, d("115"), d("115")); err != nil {
		t.Fatalf("resale to bob: %v", err)
	}
	assertBalance(t, f.ldg, bob, "885")
	assertBalance(t, f.ldg, alice, "1003.5")
	assertBalance(t, f.ldg, organizer, "11.5")
	assertBalance(t, f.ldg, eventAddr, "100")

	err := f.eng.ResaleTicket(ctx, carol, id, d("121"), d("121"))
	if !errors.Is(err, domain.ErrExceedsResaleCap) {
		t.Fatalf("expected resale cap error, got %v", err)
	}
	var capErr *domain.ExceedsResaleCapError
	if !errors.As(err, &capErr) || !capErr.Maximum.Equal(d("120")) {
		t.Fatalf("expected cap of 120 in error, got %v", err)
	}
	assertBalance(t, f.ldg, carol, "1000")

	amount, err := f.eng.Refund(ctx, bob, id)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if !amount.Equal(d("100")) {
		t.Fatalf("expected refund of face value 100, got %s", amount)
	}
	assertBalance(t, f.ldg, bob, "985")
	assertBalance(t, f.ldg, eventAddr, "0")
	if _, err := f.eng.OwnerOf(id); !errors.Is(err, domain.ErrTicketNotFound) {
		t.Fatalf("expected destroyed ticket, got %v", err)
	}
	if got := f.eng.TicketState(id); got != domain.TicketStateRefunded {
		t.Fatalf("expected refunded state, got %s", got)
	}
	assertConserved(t, f.eng)

	want := []domain.ActivityKind{domain.ActivityTicketMinted, domain.ActivityTicketResold, domain.ActivityTicketRefunded}
	got := f.rec.kinds()
	if len(got) != len(want) {
		t.Fatalf("expected activity %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected activity %v, got %v", want, got)
		}
	}
}

func TestCancellationScenario(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a := f.mint(t, alice)
	b := f.mint(t, bob)
	assertBalance(t, f.ldg, eventAddr, "200")

	if err := f.eng.CancelEvent(ctx, organizer, "venue flooded"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.eng.Mint(ctx, carol, d("100")); !errors.Is(err, domain.ErrEventCancelled) {
		t.Fatalf("expected mint after cancel to fail, got %v", err)
	}
	if err := f.eng.ResaleTicket(ctx, carol, a, d("110"), d("110")); !errors.Is(err, domain.ErrEventCancelled) {
		t.Fatalf("expected resale after cancel to fail, got %v", err)
	}
	if _, err := f.eng.Refund(ctx, alice, a); !errors.Is(err, domain.ErrEventCancelled) {
		t.Fatalf("expected refund after cancel to fail, got %v", err)
	}

	for _, tc := range []struct {
		who domain.Address
		id  domain.TicketID
	}{{alice, a}, {bob, b}} {
		amount, err := f.eng.CancelRefund(ctx, tc.who, tc.id)
		if err != nil {
			t.Fatalf("cancel refund for %s: %v", tc.who, err)
		}
		if !amount.Equal(d("100")) {
			t.Fatalf("expected 100, got %s", amount)
		}
		assertBalance(t, f.ldg, tc.who, "1000")
	}
	assertBalance(t, f.ldg, eventAddr, "0")
	if f.eng.TotalSupply() != 0 || f.eng.Issued() != 2 {
		t.Fatalf("expected 0 live of 2 issued, got %d/%d", f.eng.TotalSupply(), f.eng.Issued())
	}

	info := f.eng.EventInfo()
	if !info.Cancelled || info.CancelReason != "venue flooded" || info.CancelledAt == nil {
		t.Fatalf("unexpected event info %+v", info)
	}
}

func TestMint(t *testing.T) {
	ctx := context.Background()

	t.Run("wrong payment", func(t *testing.T) {
		f := newFixture(t, nil)
		for _, v := range []string{"99.99", "100.01", "0"} {
			_, err := f.eng.Mint(ctx, alice, d(v))
			var pe *domain.IncorrectPaymentError
			if !errors.As(err, &pe) || !pe.Required.Equal(d("100")) {
				t.Fatalf("value %s: expected incorrect payment, got %v", v, err)
			}
		}
		assertBalance(t, f.ldg, alice, "1000")
		if f.eng.Issued() != 0 {
			t.Fatalf("expected nothing issued")
		}
	})

	t.Run("sold out", func(t *testing.T) {
		f := newFixture(t, nil)
		for i := 0; i < 3; i++ {
			f.mint(t, alice)
		}
		if _, err := f.eng.Mint(ctx, bob, d("100")); !errors.Is(err, domain.ErrEventSoldOut) {
			t.Fatalf("expected sold out, got %v", err)
		}
		if f.eng.RemainingTickets() != 0 {
			t.Fatalf("expected 0 remaining, got %d", f.eng.RemainingTickets())
		}
	})

	t.Run("refunded ids are never reused", func(t *testing.T) {
		f := newFixture(t, nil)
		first := f.mint(t, alice)
		if _, err := f.eng.Refund(ctx, alice, first); err != nil {
			t.Fatalf("refund: %v", err)
		}
		next := f.mint(t, alice)
		if next != 2 {
			t.Fatalf("expected id 2 after refund, got %d", next)
		}
		if f.eng.RemainingTickets() != 1 {
			t.Fatalf("refund must not free issuance capacity, remaining %d", f.eng.RemainingTickets())
		}
	})

	t.Run("caller cannot pay", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.eng.Mint(ctx, domain.Address("pauper"), d("100"))
		if !errors.Is(err, domain.ErrInsufficientFunds) {
			t.Fatalf("expected insufficient funds, got %v", err)
		}
		if f.eng.Issued() != 0 || f.eng.TotalSupply() != 0 {
			t.Fatalf("failed mint changed state")
		}
	})
}

func TestResaleTicketChecks(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		buyer  domain.Address
		id     domain.TicketID
		price  string
		value  string
		setup  func(t *testing.T, f fixture)
		target error
	}{
		{name: "at ceiling", buyer: bob, id: 1, price: "120", value: "120"},
		{name: "at floor", buyer: bob, id: 1, price: "50", value: "50"},
		{name: "below floor", buyer: bob, id: 1, price: "49.99", value: "49.99", target: domain.ErrBelowMinimumResalePrice},
		{name: "above ceiling", buyer: bob, id: 1, price: "120.01", value: "120.01", target: domain.ErrExceedsResaleCap},
		{name: "value differs from price", buyer: bob, id: 1, price: "110", value: "100", target: domain.ErrIncorrectPayment},
		{name: "own ticket", buyer: alice, id: 1, price: "110", value: "110", target: domain.ErrCannotBuyOwnTicket},
		{name: "unknown ticket", buyer: bob, id: 9, price: "110", value: "110", target: domain.ErrTicketNotFound},
		{
			name: "checked in", buyer: bob, id: 1, price: "110", value: "110",
			setup: func(t *testing.T, f fixture) {
				if err := f.eng.CheckIn(ctx, organizer, 1); err != nil {
					t.Fatalf("check in: %v", err)
				}
			},
			target: domain.ErrTicketAlreadyUsed,
		},
		{name: "buyer cannot pay", buyer: domain.Address("pauper"), id: 1, price: "110", value: "110", target: domain.ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.mint(t, alice)
			if tt.setup != nil {
				tt.setup(t, f)
			}
			err := f.eng.ResaleTicket(ctx, tt.buyer, tt.id, d(tt.price), d(tt.value))
			if tt.target == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if owner, _ := f.eng.OwnerOf(1); owner != tt.buyer {
					t.Fatalf("expected %s to hold ticket, got %s", tt.buyer, owner)
				}
				if tk, _ := f.eng.Ticket(1); !tk.LastPrice.Equal(d(tt.price)) || !tk.OriginalPrice.Equal(d("100")) {
					t.Fatalf("unexpected prices %+v", tk)
				}
			} else {
				if !errors.Is(err, tt.target) {
					t.Fatalf("expected %v, got %v", tt.target, err)
				}
				if owner, _ := f.eng.OwnerOf(1); owner != alice {
					t.Fatalf("failed resale moved ticket to %s", owner)
				}
				assertBalance(t, f.ldg, alice, "900")
			}
			assertConserved(t, f.eng)
		})
	}
}

func TestResaleFeeRounding(t *testing.T) {
	f := newFixture(t, func(c *domain.EventConfig) {
		c.FacePrice = d("0.03")
		c.OrganizerFeePercent = 33
	})
	ctx := context.Background()
	id, err := f.eng.Mint(ctx, alice, d("0.03"))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := f.eng.ResaleTicket(ctx, bob, id, d("0.035"), d("0.035")); err != nil {
		t.Fatalf("resale: %v", err)
	}
	seller := f.ldg.BalanceOf(alice).Sub(d("999.97"))
	fee := f.ldg.BalanceOf(organizer)
	if !seller.Add(fee).Equal(d("0.035")) {
		t.Fatalf("split %s + %s does not sum to price", seller, fee)
	}
	assertConserved(t, f.eng)
}

func TestRefundChecks(t *testing.T) {
	ctx := context.Background()

	t.Run("not owner", func(t *testing.T) {
		f := newFixture(t, nil)
		id := f.mint(t, alice)
		_, err := f.eng.Refund(ctx, bob, id)
		var ne *domain.NotTicketOwnerError
		if !errors.As(err, &ne) || ne.Caller != bob {
			t.Fatalf("expected not owner, got %v", err)
		}
	})

	t.Run("checked in", func(t *testing.T) {
		f := newFixture(t, nil)
		id := f.mint(t, alice)
		if err := f.eng.CheckIn(ctx, organizer, id); err != nil {
			t.Fatalf("check in: %v", err)
		}
		if _, err := f.eng.Refund(ctx, alice, id); !errors.Is(err, domain.ErrTicketAlreadyUsed) {
			t.Fatalf("expected already used, got %v", err)
		}
	})

	t.Run("twice", func(t *testing.T) {
		f := newFixture(t, nil)
		id := f.mint(t, alice)
		if _, err := f.eng.Refund(ctx, alice, id); err != nil {
			t.Fatalf("refund: %v", err)
		}
		if _, err := f.eng.Refund(ctx, alice, id); !errors.Is(err, domain.ErrTicketNotFound) {
			t.Fatalf("expected not found on second refund, got %v", err)
		}
		assertBalance(t, f.ldg, alice, "1000")
	})
}

func TestCancelEvent(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		caller domain.Address
		reason string
		target error
	}{
		{"not organizer", alice, "nope", domain.ErrNotOrganizer},
		{"empty reason", organizer, "   ", domain.ErrEmptyReason},
		{"reason too long", organizer, strings.Repeat("x", domain.MaxCancelReasonLen+1), domain.ErrFieldTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			if err := f.eng.CancelEvent(ctx, tt.caller, tt.reason); !errors.Is(err, tt.target) {
				t.Fatalf("expected %v, got %v", tt.target, err)
			}
			if f.eng.IsCancelled() {
				t.Fatalf("rejected cancel took effect")
			}
		})
	}

	t.Run("twice", func(t *testing.T) {
		f := newFixture(t, nil)
		if err := f.eng.CancelEvent(ctx, organizer, "storm"); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if err := f.eng.CancelEvent(ctx, organizer, "again"); !errors.Is(err, domain.ErrEventCancelled) {
			t.Fatalf("expected already cancelled, got %v", err)
		}
	})
}

func TestCancelRefund(t *testing.T) {
	ctx := context.Background()

	t.Run("event not cancelled", func(t *testing.T) {
		f := newFixture(t, nil)
		id := f.mint(t, alice)
		if _, err := f.eng.CancelRefund(ctx, alice, id); !errors.Is(err, domain.ErrEventNotCancelled) {
			t.Fatalf("expected not cancelled, got %v", err)
		}
	})

	t.Run("checked in ticket still refunded", func(t *testing.T) {
		f := newFixture(t, nil)
		id := f.mint(t, alice)
		if err := f.eng.CheckIn(ctx, organizer, id); err != nil {
			t.Fatalf("check in: %v", err)
		}
		if err := f.eng.CancelEvent(ctx, organizer, "headliner ill"); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		amount, err := f.eng.CancelRefund(ctx, alice, id)
		if err != nil || !amount.Equal(d("100")) {
			t.Fatalf("expected 100 refund, got %s, %v", amount, err)
		}
		if f.eng.TicketState(id) != domain.TicketStateCancelRefunded {
			t.Fatalf("unexpected state %s", f.eng.TicketState(id))
		}
	})

	t.Run("resold ticket pays face value to current holder", func(t *testing.T) {
		f := newFixture(t, nil)
		id := f.mint(t, alice)
		if err := f.eng.ResaleTicket(ctx, bob, id, d("120"), d("120")); err != nil {
			t.Fatalf("resale: %v", err)
		}
		if err := f.eng.CancelEvent(ctx, organizer, "cancelled"); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if _, err := f.eng.CancelRefund(ctx, alice, id); !errors.Is(err, domain.ErrNotTicketOwner) {
			t.Fatalf("expected not owner for previous holder, got %v", err)
		}
		if _, err := f.eng.CancelRefund(ctx, bob, id); err != nil {
			t.Fatalf("cancel refund: %v", err)
		}
		assertBalance(t, f.ldg, bob, "980")
		assertBalance(t, f.ldg, eventAddr, "0")
	})
}

func TestCheckIn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	id := f.mint(t, alice)

	if err := f.eng.CheckIn(ctx, alice, id); !errors.Is(err, domain.ErrNotOrganizer) {
		t.Fatalf("expected not organizer, got %v", err)
	}
	if err := f.eng.CheckIn(ctx, organizer, id); err != nil {
		t.Fatalf("check in: %v", err)
	}
	if err := f.eng.CheckIn(ctx, organizer, id); !errors.Is(err, domain.ErrTicketAlreadyUsed) {
		t.Fatalf("expected already used, got %v", err)
	}
	if err := f.eng.CheckIn(ctx, organizer, 42); !errors.Is(err, domain.ErrTicketNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	tk, _ := f.eng.Ticket(id)
	if !tk.CheckedIn || tk.Holder != alice {
		t.Fatalf("unexpected ticket %+v", tk)
	}
}

func TestNestedCallsFromPayoutAreRejected(t *testing.T) {
	ctx := context.Background()

	t.Run("refund recipient re-enters refund", func(t *testing.T) {
		f := newFixture(t, nil)
		first := f.mint(t, alice)
		second := f.mint(t, alice)

		var nestedErr error
		calls := 0
		f.ldg.SetReceiver(alice, ledger.ReceiverFunc(func(ctx context.Context, p ledger.Payment) error {
			calls++
			_, nestedErr = f.eng.Refund(ctx, alice, second)
			return nestedErr
		}))

		if _, err := f.eng.Refund(ctx, alice, first); err != nil {
			t.Fatalf("outer refund: %v", err)
		}
		if calls != 1 {
			t.Fatalf("expected one callback, got %d", calls)
		}
		if !errors.Is(nestedErr, domain.ErrReentrantCall) {
			t.Fatalf("expected nested refund to be rejected, got %v", nestedErr)
		}
		if _, err := f.eng.OwnerOf(second); err != nil {
			t.Fatalf("second ticket should survive the rejected call: %v", err)
		}
		assertBalance(t, f.ldg, alice, "900")
		assertConserved(t, f.eng)

		f.ldg.SetReceiver(alice, nil)
		if _, err := f.eng.Refund(ctx, alice, second); err != nil {
			t.Fatalf("refund after callback removed: %v", err)
		}
	})

	t.Run("seller re-enters resale during proceeds", func(t *testing.T) {
		f := newFixture(t, nil)
		id := f.mint(t, alice)
		other := f.mint(t, carol)

		var nestedErr error
		f.ldg.SetReceiver(alice, ledger.ReceiverFunc(func(ctx context.Context, p ledger.Payment) error {
			nestedErr = f.eng.ResaleTicket(ctx, alice, other, d("100"), d("100"))
			return nil
		}))
		if err := f.eng.ResaleTicket(ctx, bob, id, d("110"), d("110")); err != nil {
			t.Fatalf("outer resale: %v", err)
		}
		if !errors.Is(nestedErr, domain.ErrReentrantCall) {
			t.Fatalf("expected nested resale to be rejected, got %v", nestedErr)
		}
		if owner, _ := f.eng.OwnerOf(other); owner != carol {
			t.Fatalf("nested resale moved ticket to %s", owner)
		}
		assertConserved(t, f.eng)
	})

	t.Run("queries stay available during payout", func(t *testing.T) {
		f := newFixture(t, nil)
		id := f.mint(t, alice)
		var seenOwner domain.Address
		var seenErr error
		f.ldg.SetReceiver(alice, ledger.ReceiverFunc(func(ctx context.Context, p ledger.Payment) error {
			seenOwner, seenErr = f.eng.OwnerOf(id)
			return nil
		}))
		if err := f.eng.ResaleTicket(ctx, bob, id, d("110"), d("110")); err != nil {
			t.Fatalf("resale: %v", err)
		}
		if seenErr != nil || seenOwner != bob {
			t.Fatalf("callback should observe committed owner bob, got %s, %v", seenOwner, seenErr)
		}
	})
}

func TestNestedCallsFromEveryPayoutAreRejected(t *testing.T) {
	type ids [3]domain.TicketID
	tests := []struct {
		name      string
		cancelled bool
		payee     domain.Address
		outer     func(ctx context.Context, e *engine.Engine, id ids) error
		nested    func(ctx context.Context, e *engine.Engine, id ids) error
	}{
		{
			name:  "organizer fee re-enters check in",
			payee: organizer,
			outer: func(ctx context.Context, e *engine.Engine, id ids) error {
				return e.ResaleTicket(ctx, bob, id[0], d("110"), d("110"))
			},
			nested: func(ctx context.Context, e *engine.Engine, id ids) error {
				return e.CheckIn(ctx, organizer, id[1])
			},
		},
		{
			name:  "organizer fee re-enters cancel event",
			payee: organizer,
			outer: func(ctx context.Context, e *engine.Engine, id ids) error {
				return e.ResaleTicket(ctx, bob, id[0], d("110"), d("110"))
			},
			nested: func(ctx context.Context, e *engine.Engine, id ids) error {
				return e.CancelEvent(ctx, organizer, "venue closed")
			},
		},
		{
			name:      "cancel refund re-enters cancel refund",
			cancelled: true,
			payee:     alice,
			outer: func(ctx context.Context, e *engine.Engine, id ids) error {
				_, err := e.CancelRefund(ctx, alice, id[0])
				return err
			},
			nested: func(ctx context.Context, e *engine.Engine, id ids) error {
				_, err := e.CancelRefund(ctx, alice, id[1])
				return err
			},
		},
		{
			name:  "refund re-enters mint",
			payee: alice,
			outer: func(ctx context.Context, e *engine.Engine, id ids) error {
				_, err := e.Refund(ctx, alice, id[0])
				return err
			},
			nested: func(ctx context.Context, e *engine.Engine, id ids) error {
				_, err := e.Mint(ctx, alice, d("100"))
				return err
			},
		},
		{
			name:  "seller proceeds re-enter mint",
			payee: alice,
			outer: func(ctx context.Context, e *engine.Engine, id ids) error {
				return e.ResaleTicket(ctx, bob, id[0], d("110"), d("110"))
			},
			nested: func(ctx context.Context, e *engine.Engine, id ids) error {
				_, err := e.Mint(ctx, alice, d("100"))
				return err
			},
		},
		{
			name:  "refund re-enters operator approval",
			payee: alice,
			outer: func(ctx context.Context, e *engine.Engine, id ids) error {
				_, err := e.Refund(ctx, alice, id[0])
				return err
			},
			nested: func(ctx context.Context, e *engine.Engine, id ids) error {
				return e.SetApprovalForAll(ctx, alice, carol, true)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, func(c *domain.EventConfig) { c.MaxTickets = 5 })
			id := ids{f.mint(t, alice), f.mint(t, alice), f.mint(t, carol)}
			if tt.cancelled {
				if err := f.eng.CancelEvent(ctx, organizer, "storm"); err != nil {
					t.Fatalf("cancel: %v", err)
				}
			}

			var nestedErr error
			calls := 0
			f.ldg.SetReceiver(tt.payee, ledger.ReceiverFunc(func(ctx context.Context, p ledger.Payment) error {
				calls++
				nestedErr = tt.nested(ctx, f.eng, id)
				return nil
			}))

			if err := tt.outer(ctx, f.eng, id); err != nil {
				t.Fatalf("outer call: %v", err)
			}
			if calls != 1 {
				t.Fatalf("expected one payout to %s, got %d", tt.payee, calls)
			}
			if !errors.Is(nestedErr, domain.ErrReentrantCall) {
				t.Fatalf("expected nested call to be rejected, got %v", nestedErr)
			}
			if f.eng.Issued() != 3 {
				t.Fatalf("nested call changed issuance to %d", f.eng.Issued())
			}
			if f.eng.IsCancelled() != tt.cancelled {
				t.Fatalf("nested call changed cancellation to %v", f.eng.IsCancelled())
			}
			tk, err := f.eng.Ticket(id[1])
			if err != nil || tk.Holder != alice || tk.CheckedIn {
				t.Fatalf("untouched ticket changed: %+v, %v", tk, err)
			}
			if f.eng.IsApprovedForAll(alice, carol) {
				t.Fatalf("nested call granted an operator")
			}
			assertConserved(t, f.eng)
		})
	}
}

func TestEngineHandleCannotAct(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		call func(e *engine.Engine, id domain.TicketID) error
	}{
		{"mint", func(e *engine.Engine, id domain.TicketID) error {
			_, err := e.Mint(ctx, eventAddr, d("100"))
			return err
		}},
		{"mint with padded caller", func(e *engine.Engine, id domain.TicketID) error {
			_, err := e.Mint(ctx, " bob", d("100"))
			return err
		}},
		{"resale", func(e *engine.Engine, id domain.TicketID) error {
			return e.ResaleTicket(ctx, eventAddr, id, d("100"), d("100"))
		}},
		{"refund", func(e *engine.Engine, id domain.TicketID) error {
			_, err := e.Refund(ctx, eventAddr, id)
			return err
		}},
		{"cancel refund", func(e *engine.Engine, id domain.TicketID) error {
			_, err := e.CancelRefund(ctx, eventAddr, id)
			return err
		}},
		{"check in", func(e *engine.Engine, id domain.TicketID) error {
			return e.CheckIn(ctx, eventAddr, id)
		}},
		{"cancel event", func(e *engine.Engine, id domain.TicketID) error {
			return e.CancelEvent(ctx, eventAddr, "gone")
		}},
		{"approve", func(e *engine.Engine, id domain.TicketID) error {
			return e.Approve(ctx, eventAddr, bob, id)
		}},
		{"operator", func(e *engine.Engine, id domain.TicketID) error {
			return e.SetApprovalForAll(ctx, eventAddr, bob, true)
		}},
		{"engine as operator", func(e *engine.Engine, id domain.TicketID) error {
			return e.SetApprovalForAll(ctx, alice, eventAddr, true)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			id := f.mint(t, alice)
			if err := tt.call(f.eng, id); !errors.Is(err, domain.ErrInvalidAddress) {
				t.Fatalf("expected invalid address, got %v", err)
			}
			if f.eng.Issued() != 1 {
				t.Fatalf("expected one ticket issued, got %d", f.eng.Issued())
			}
			if owner, err := f.eng.OwnerOf(id); err != nil || owner != alice {
				t.Fatalf("ticket moved to %s, %v", owner, err)
			}
			assertBalance(t, f.ldg, eventAddr, "100")
			assertConserved(t, f.eng)
		})
	}

	t.Run("organizer equal to handle", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Organizer = eventAddr
		if _, err := engine.New(eventAddr, cfg, ledger.New(nil)); !errors.Is(err, domain.ErrInvalidAddress) {
			t.Fatalf("expected invalid address, got %v", err)
		}
	})
}

func TestCheckConservationIsExact(t *testing.T) {
	tests := []struct {
		name   string
		skew   func(ctx context.Context, l *ledger.Ledger) error
		target error
	}{
		{"balanced", func(context.Context, *ledger.Ledger) error { return nil }, nil},
		{"surplus from outside deposit", func(_ context.Context, l *ledger.Ledger) error {
			return l.Deposit(eventAddr, d("5"))
		}, domain.ErrCustodySurplus},
		{"shortfall", func(ctx context.Context, l *ledger.Ledger) error {
			return l.Transfer(ctx, eventAddr, bob, d("5"))
		}, domain.ErrInsufficientContractBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, nil)
			f.mint(t, alice)
			if err := tt.skew(ctx, f.ldg); err != nil {
				t.Fatalf("skew: %v", err)
			}
			err := f.eng.CheckConservation()
			if tt.target == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Fatalf("expected %v, got %v", tt.target, err)
			}
		})
	}
}

func TestApprovals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	id := f.mint(t, alice)

	if err := f.eng.Approve(ctx, bob, carol, id); !errors.Is(err, domain.ErrNotApproved) {
		t.Fatalf("expected not approved for stranger, got %v", err)
	}
	if err := f.eng.Approve(ctx, alice, alice, id); !errors.Is(err, domain.ErrInvalidAddress) {
		t.Fatalf("expected invalid approval to self, got %v", err)
	}
	if err := f.eng.Approve(ctx, alice, carol, id); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got, _ := f.eng.GetApproved(id); got != carol {
		t.Fatalf("expected carol approved, got %s", got)
	}

	if err := f.eng.SetApprovalForAll(ctx, alice, bob, true); err != nil {
		t.Fatalf("set operator: %v", err)
	}
	if !f.eng.IsApprovedForAll(alice, bob) {
		t.Fatalf("expected bob to be operator")
	}
	if err := f.eng.Approve(ctx, bob, domain.ZeroAddress, id); err != nil {
		t.Fatalf("operator clearing approval: %v", err)
	}
	if got, _ := f.eng.GetApproved(id); got != domain.ZeroAddress {
		t.Fatalf("expected approval cleared, got %s", got)
	}

	if err := f.eng.TransferFrom(ctx, bob, alice, bob, id); !errors.Is(err, domain.ErrTransfersDisabled) {
		t.Fatalf("expected transfers disabled, got %v", err)
	}
	if err := f.eng.SafeTransferFrom(ctx, alice, alice, bob, id, nil); !errors.Is(err, domain.ErrTransfersDisabled) {
		t.Fatalf("expected transfers disabled, got %v", err)
	}
	if owner, _ := f.eng.OwnerOf(id); owner != alice {
		t.Fatalf("transfer moved the ticket")
	}

	if err := f.eng.Approve(ctx, alice, carol, id); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := f.eng.ResaleTicket(ctx, bob, id, d("100"), d("100")); err != nil {
		t.Fatalf("resale: %v", err)
	}
	if got, _ := f.eng.GetApproved(id); got != domain.ZeroAddress {
		t.Fatalf("resale should clear approval, got %s", got)
	}
	if n, _ := f.eng.BalanceOf(bob); n != 1 {
		t.Fatalf("expected bob to hold 1, got %d", n)
	}
	if n, _ := f.eng.BalanceOf(alice); n != 0 {
		t.Fatalf("expected alice to hold 0, got %d", n)
	}
	if _, err := f.eng.BalanceOf(domain.ZeroAddress); !errors.Is(err, domain.ErrInvalidAddress) {
		t.Fatalf("expected invalid address, got %v", err)
	}
}

func TestTicketsOf(t *testing.T) {
	f := newFixture(t, nil)
	f.mint(t, alice)
	f.mint(t, bob)
	f.mint(t, alice)
	ids := f.eng.TicketsOf(alice)
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Fatalf("expected [1 3], got %v", ids)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxResalePercent = 99
	cfg.FacePrice = decimal.Zero
	_, err := engine.New(eventAddr, cfg, ledger.New(nil))
	if !errors.Is(err, domain.ErrInvalidPercentage) || !errors.Is(err, domain.ErrInvalidPrice) {
		t.Fatalf("expected both field errors, got %v", err)
	}
	if _, err := engine.New("", baseConfig(), ledger.New(nil)); !errors.Is(err, domain.ErrInvalidAddress) {
		t.Fatalf("expected invalid address, got %v", err)
	}
}
