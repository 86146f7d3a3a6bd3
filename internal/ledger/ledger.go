// Package ledger models the host's native value ledger: per-address
// balances, value transfers, and the recipient callbacks that make every
// outbound payment a window for reentrant calls.
package ledger

import (
	"context"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"example.com/fairticket/internal/domain"
)

// Payment describes one completed credit.
type Payment struct {
	From   domain.Address
	To     domain.Address
	Amount decimal.Decimal
}

// Receiver runs synchronously after value lands at its address. It may call
// back into any component, including the one that sent the payment.
// Returning an error does not undo the credit.
type Receiver interface {
	OnReceive(ctx context.Context, p Payment) error
}

type ReceiverFunc func(ctx context.Context, p Payment) error

func (f ReceiverFunc) OnReceive(ctx context.Context, p Payment) error { return f(ctx, p) }

type Ledger struct {
	mu        sync.Mutex
	balances  map[domain.Address]decimal.Decimal
	receivers map[domain.Address]Receiver
	minted    decimal.Decimal
	logger    *slog.Logger
}

func New(logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		balances:  make(map[domain.Address]decimal.Decimal),
		receivers: make(map[domain.Address]Receiver),
		minted:    decimal.Zero,
		logger:    logger.With("component", "ledger"),
	}
}

// Deposit credits value from outside the ledger.
func (l *Ledger) Deposit(to domain.Address, amount decimal.Decimal) error {
	if !to.Valid() {
		return domain.ErrInvalidAddress
	}
	if !amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	l.mu.Lock()
	l.balances[to] = l.balance(to).Add(amount)
	l.minted = l.minted.Add(amount)
	l.mu.Unlock()
	return nil
}

func (l *Ledger) BalanceOf(a domain.Address) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(a)
}

func (l *Ledger) balance(a domain.Address) decimal.Decimal {
	if b, ok := l.balances[a]; ok {
		return b
	}
	return decimal.Zero
}

// Supply is the total value ever deposited. The sum of all balances always
// equals it.
func (l *Ledger) Supply() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.minted
}

// Sum adds up every balance.
func (l *Ledger) Sum() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := decimal.Zero
	for _, b := range l.balances {
		total = total.Add(b)
	}
	return total
}

// SetReceiver installs r as the callback for a; nil removes it.
func (l *Ledger) SetReceiver(a domain.Address, r Receiver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r == nil {
		delete(l.receivers, a)
		return
	}
	l.receivers[a] = r
}

// Transfer moves amount from one address to another and then notifies the
// recipient's receiver, if any. A zero amount is a no-op. The balance change
// is final before the receiver runs. Self-transfers are rejected.
func (l *Ledger) Transfer(ctx context.Context, from, to domain.Address, amount decimal.Decimal) error {
	if !from.Valid() || !to.Valid() || from == to {
		return domain.ErrInvalidAddress
	}
	if amount.IsNegative() {
		return domain.ErrInvalidAmount
	}
	if amount.IsZero() {
		return nil
	}

	l.mu.Lock()
	bal := l.balance(from)
	if bal.LessThan(amount) {
		l.mu.Unlock()
		return &domain.InsufficientFundsError{Address: from, Balance: bal, Required: amount}
	}
	l.balances[from] = bal.Sub(amount)
	l.balances[to] = l.balance(to).Add(amount)
	recv := l.receivers[to]
	l.mu.Unlock()

	if recv == nil {
		return nil
	}
	if err := recv.OnReceive(ctx, Payment{From: from, To: to, Amount: amount}); err != nil {
		l.logger.Warn("receiver callback failed", "from", from, "to", to, "amount", amount.String(), "error", err)
	}
	return nil
}
