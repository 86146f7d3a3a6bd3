package engine

import (
	"context"

	"example.com/fairticket/internal/domain"
)

// The ownership-registry surface below exists for trading venues that expect
// it. Holdership only ever changes through ResaleTicket.

func (e *Engine) OwnerOf(id domain.TicketID) (domain.Address, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, err := e.liveTicket(id)
	if err != nil {
		return domain.ZeroAddress, err
	}
	return t.Holder, nil
}

// BalanceOf counts the live tickets held by holder.
func (e *Engine) BalanceOf(holder domain.Address) (int, error) {
	if holder.IsZero() {
		return 0, domain.ErrInvalidAddress
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.holdings[holder], nil
}

// Approve names a delegate for one ticket. The approval is cleared when the
// ticket changes hands or is destroyed.
func (e *Engine) Approve(ctx context.Context, caller, to domain.Address, id domain.TicketID) (err error) {
	defer func() { observe("approve", err) }()
	if err := e.enter("approve"); err != nil {
		return err
	}
	defer e.exit()

	if err := e.checkCaller(caller); err != nil {
		return err
	}

	e.mu.Lock()
	t, err := e.liveTicket(id)
	if err == nil {
		switch {
		case t.Holder != caller && !e.operators[t.Holder][caller]:
			err = domain.ErrNotApproved
		case to == t.Holder:
			err = domain.ErrInvalidAddress
		}
	}
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if to.IsZero() {
		delete(e.approvals, id)
	} else {
		e.approvals[id] = to
	}
	holder := t.Holder
	e.mu.Unlock()

	a := e.activity(domain.ActivityApproval, holder)
	a.TicketID = id
	a.Counterparty = to
	e.record(a)
	return nil
}

func (e *Engine) GetApproved(id domain.TicketID) (domain.Address, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if _, err := e.liveTicket(id); err != nil {
		return domain.ZeroAddress, err
	}
	return e.approvals[id], nil
}

func (e *Engine) SetApprovalForAll(ctx context.Context, caller, operator domain.Address, approved bool) (err error) {
	defer func() { observe("set_approval_for_all", err) }()
	if err := e.enter("set_approval_for_all"); err != nil {
		return err
	}
	defer e.exit()

	if err := e.checkCaller(caller); err != nil {
		return err
	}
	if !operator.Valid() || operator == e.address || caller == operator {
		return domain.ErrInvalidAddress
	}

	e.mu.Lock()
	ops := e.operators[caller]
	if approved {
		if ops == nil {
			ops = make(map[domain.Address]bool)
			e.operators[caller] = ops
		}
		ops[operator] = true
	} else if ops != nil {
		delete(ops, operator)
		if len(ops) == 0 {
			delete(e.operators, caller)
		}
	}
	e.mu.Unlock()

	a := e.activity(domain.ActivityApprovalForAll, caller)
	a.Counterparty = operator
	a.Detail = map[string]any{"approved": approved}
	e.record(a)
	return nil
}

func (e *Engine) IsApprovedForAll(holder, operator domain.Address) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.operators[holder][operator]
}

// TransferFrom is always rejected: a bare transfer would bypass the resale
// band and the organizer fee.
func (e *Engine) TransferFrom(ctx context.Context, caller, from, to domain.Address, id domain.TicketID) error {
	observe("transfer", domain.ErrTransfersDisabled)
	return domain.ErrTransfersDisabled
}

func (e *Engine) SafeTransferFrom(ctx context.Context, caller, from, to domain.Address, id domain.TicketID, data []byte) error {
	observe("transfer", domain.ErrTransfersDisabled)
	return domain.ErrTransfersDisabled
}
