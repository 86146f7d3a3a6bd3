// Package engine implements the per-event ticket lifecycle and settlement
// engine: issuance, controlled resale, check-in, refund, and cancellation,
// with custody of the face value of every live ticket.
//
// Every mutating operation follows the same discipline: validate, commit
// local state, then move value out. A per-engine latch rejects any call that
// arrives while another mutating operation is still in flight, which covers
// recipients calling back into the engine from a payment callback.
package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"example.com/fairticket/internal/domain"
	"example.com/fairticket/internal/metrics"
)

// Bank moves native value. *ledger.Ledger satisfies it.
type Bank interface {
	BalanceOf(a domain.Address) decimal.Decimal
	Transfer(ctx context.Context, from, to domain.Address, amount decimal.Decimal) error
}

type ticketRecord struct {
	domain.Ticket
	state domain.TicketState
}

type Engine struct {
	address  domain.Address
	cfg      domain.EventConfig
	bank     Bank
	recorder domain.Recorder
	logger   *slog.Logger
	now      func() time.Time

	latch atomic.Bool

	mu           sync.RWMutex
	tickets      map[domain.TicketID]*ticketRecord
	issued       uint64
	live         uint64
	cancelled    bool
	cancelReason string
	cancelledAt  time.Time
	holdings     map[domain.Address]int
	approvals    map[domain.TicketID]domain.Address
	operators    map[domain.Address]map[domain.Address]bool
}

type Option func(*Engine)

func WithRecorder(r domain.Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New deploys an engine at address. cfg is validated against the protocol
// limits; tighter registry policy is the registry's concern.
func New(address domain.Address, cfg domain.EventConfig, bank Bank, opts ...Option) (*Engine, error) {
	if !address.Valid() || cfg.Organizer == address {
		return nil, domain.ErrInvalidAddress
	}
	if err := domain.AsError(domain.ValidateEventConfig(&cfg, domain.ProtocolLimits())); err != nil {
		return nil, err
	}
	e := &Engine{
		address:   address,
		cfg:       cfg,
		bank:      bank,
		recorder:  domain.NopRecorder{},
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
		tickets:   make(map[domain.TicketID]*ticketRecord),
		holdings:  make(map[domain.Address]int),
		approvals: make(map[domain.TicketID]domain.Address),
		operators: make(map[domain.Address]map[domain.Address]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "engine", "event", string(address))
	return e, nil
}

// enter takes the reentrancy latch for the duration of a mutating call.
func (e *Engine) enter(op string) error {
	if !e.latch.CompareAndSwap(false, true) {
		e.logger.Warn("rejected nested call", "operation", op)
		return domain.ErrReentrantCall
	}
	return nil
}

func (e *Engine) exit() { e.latch.Store(false) }

// checkCaller rejects the null principal and the engine's own handle. Value
// may only leave custody on the engine's own terms.
func (e *Engine) checkCaller(caller domain.Address) error {
	if !caller.Valid() || caller == e.address {
		return domain.ErrInvalidAddress
	}
	return nil
}

func (e *Engine) record(a domain.Activity) { e.recorder.Record(a) }

func (e *Engine) activity(kind domain.ActivityKind, actor domain.Address) domain.Activity {
	return domain.NewActivity(kind, e.address, actor, e.now())
}

// liveTicket returns the record for id if it exists and has not been destroyed.
// Caller holds e.mu.
func (e *Engine) liveTicket(id domain.TicketID) (*ticketRecord, error) {
	t, ok := e.tickets[id]
	if !ok || !t.Exists {
		return nil, &domain.TicketNotFoundError{ID: id}
	}
	return t, nil
}

// destroy removes a live ticket. The id stays allocated. Caller holds e.mu.
func (e *Engine) destroy(t *ticketRecord, state domain.TicketState) {
	e.holdings[t.Holder]--
	if e.holdings[t.Holder] <= 0 {
		delete(e.holdings, t.Holder)
	}
	delete(e.approvals, t.ID)
	t.Exists = false
	t.Holder = domain.ZeroAddress
	t.state = state
	e.live--
}

// --- Queries ---

func (e *Engine) Address() domain.Address { return e.address }

func (e *Engine) Config() domain.EventConfig { return e.cfg }

func (e *Engine) Organizer() domain.Address { return e.cfg.Organizer }

func (e *Engine) IsCancelled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cancelled
}

// Issued is the number of ids ever minted.
func (e *Engine) Issued() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.issued
}

// TotalSupply is the number of live tickets.
func (e *Engine) TotalSupply() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.live
}

func (e *Engine) RemainingTickets() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg.MaxTickets - e.issued
}

// Ticket returns a copy of a live ticket.
func (e *Engine) Ticket(id domain.TicketID) (domain.Ticket, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, err := e.liveTicket(id)
	if err != nil {
		return domain.Ticket{}, err
	}
	return t.Ticket, nil
}

// TicketState reports where id is in its lifecycle, including destroyed ids.
func (e *Engine) TicketState(id domain.TicketID) domain.TicketState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tickets[id]
	if !ok {
		return domain.TicketStateUnissued
	}
	return t.state
}

// TicketsOf lists the live ticket ids held by holder in ascending order.
func (e *Engine) TicketsOf(holder domain.Address) []domain.TicketID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var ids []domain.TicketID
	for id, t := range e.tickets {
		if t.Exists && t.Holder == holder {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CustodyBalance is the engine's balance on the ledger.
func (e *Engine) CustodyBalance() decimal.Decimal {
	return e.bank.BalanceOf(e.address)
}

// ExpectedCustody is the face value owed across all live tickets.
func (e *Engine) ExpectedCustody() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	total := decimal.Zero
	for _, t := range e.tickets {
		if t.Exists {
			total = total.Add(t.OriginalPrice)
		}
	}
	return total
}

// CheckConservation fails unless custody equals the face value owed exactly.
func (e *Engine) CheckConservation() error {
	want := e.ExpectedCustody()
	have := e.CustodyBalance()
	switch have.Cmp(want) {
	case -1:
		return &domain.InsufficientContractBalanceError{Balance: have, Required: want}
	case 1:
		return &domain.CustodySurplusError{Balance: have, Required: want}
	}
	return nil
}

// EventInfo is a snapshot of the engine's event-level state.
type EventInfo struct {
	Handle       domain.Address     `json:"handle"`
	Config       domain.EventConfig `json:"config"`
	Issued       uint64             `json:"issued"`
	Live         uint64             `json:"live"`
	Remaining    uint64             `json:"remaining"`
	Cancelled    bool               `json:"cancelled"`
	CancelReason string             `json:"cancel_reason,omitempty"`
	CancelledAt  *time.Time         `json:"cancelled_at,omitempty"`
	Custody      decimal.Decimal    `json:"custody"`
}

func (e *Engine) EventInfo() EventInfo {
	custody := e.CustodyBalance()
	e.mu.RLock()
	defer e.mu.RUnlock()
	info := EventInfo{
		Handle:       e.address,
		Config:       e.cfg,
		Issued:       e.issued,
		Live:         e.live,
		Remaining:    e.cfg.MaxTickets - e.issued,
		Cancelled:    e.cancelled,
		CancelReason: e.cancelReason,
		Custody:      custody,
	}
	if e.cancelled {
		at := e.cancelledAt
		info.CancelledAt = &at
	}
	return info
}

func observe(op string, err error) {
	metrics.ObserveEngine(op, err)
}
