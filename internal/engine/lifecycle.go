package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"example.com/fairticket/internal/domain"
	"example.com/fairticket/internal/metrics"
)

// Mint issues the next ticket to caller for exactly the face value.
func (e *Engine) Mint(ctx context.Context, caller domain.Address, value decimal.Decimal) (id domain.TicketID, err error) {
	defer func() { observe("mint", err) }()
	if err := e.enter("mint"); err != nil {
		return 0, err
	}
	defer e.exit()

	if err := e.checkCaller(caller); err != nil {
		return 0, err
	}

	e.mu.RLock()
	switch {
	case e.cancelled:
		err = domain.ErrEventCancelled
	case e.issued >= e.cfg.MaxTickets:
		err = domain.ErrEventSoldOut
	case !value.Equal(e.cfg.FacePrice):
		err = &domain.IncorrectPaymentError{Sent: value, Required: e.cfg.FacePrice}
	}
	e.mu.RUnlock()
	if err != nil {
		return 0, err
	}

	// The attached payment lands in custody before any state changes; if the
	// caller cannot cover it nothing has happened yet.
	if err := e.bank.Transfer(ctx, caller, e.address, value); err != nil {
		return 0, err
	}

	e.mu.Lock()
	e.issued++
	id = domain.TicketID(e.issued)
	e.tickets[id] = &ticketRecord{
		Ticket: domain.Ticket{
			ID:            id,
			Holder:        caller,
			OriginalPrice: e.cfg.FacePrice,
			LastPrice:     e.cfg.FacePrice,
			Exists:        true,
		},
		state: domain.TicketStateMinted,
	}
	e.holdings[caller]++
	e.live++
	e.mu.Unlock()

	metrics.ObserveValue("mint", value)
	e.logger.Info("ticket minted", "ticket_id", id, "holder", caller)

	a := e.activity(domain.ActivityTicketMinted, caller)
	a.TicketID = id
	a.Amount = value
	e.record(a)
	return id, nil
}

// ResaleTicket sells ticket id from its current holder to caller at price.
// The buyer pays exactly price; the previous holder receives price minus the
// organizer fee and the organizer receives the fee. Custody is unchanged.
func (e *Engine) ResaleTicket(ctx context.Context, caller domain.Address, id domain.TicketID, price, value decimal.Decimal) (err error) {
	defer func() { observe("resale", err) }()
	if err := e.enter("resale"); err != nil {
		return err
	}
	defer e.exit()

	if err := e.checkCaller(caller); err != nil {
		return err
	}

	e.mu.RLock()
	err = e.checkResale(caller, id, price, value)
	e.mu.RUnlock()
	if err != nil {
		return err
	}

	if err := e.bank.Transfer(ctx, caller, e.address, value); err != nil {
		return err
	}

	sellerProceeds, organizerFee := domain.SplitResale(price, e.cfg.OrganizerFeePercent)

	e.mu.Lock()
	t := e.tickets[id]
	seller := t.Holder
	e.holdings[seller]--
	if e.holdings[seller] <= 0 {
		delete(e.holdings, seller)
	}
	e.holdings[caller]++
	delete(e.approvals, id)
	t.Holder = caller
	t.LastPrice = price
	t.state = domain.TicketStateResold
	e.mu.Unlock()

	// State is committed; value leaves custody only now.
	if err := e.bank.Transfer(ctx, e.address, seller, sellerProceeds); err != nil {
		e.logger.Error("seller payout failed after commit", "ticket_id", id, "seller", seller, "error", err)
		return fmt.Errorf("pay seller: %w", err)
	}
	if err := e.bank.Transfer(ctx, e.address, e.cfg.Organizer, organizerFee); err != nil {
		e.logger.Error("organizer fee payout failed after commit", "ticket_id", id, "error", err)
		return fmt.Errorf("pay organizer fee: %w", err)
	}

	metrics.ObserveValue("resale", price)
	metrics.ObserveValue("organizer_fee", organizerFee)
	e.logger.Info("ticket resold", "ticket_id", id, "seller", seller, "buyer", caller, "price", price.String(), "fee", organizerFee.String())

	a := e.activity(domain.ActivityTicketResold, caller)
	a.TicketID = id
	a.Counterparty = seller
	a.Amount = price
	a.Fee = organizerFee
	e.record(a)
	return nil
}

// checkResale validates a resale. Caller holds e.mu.
func (e *Engine) checkResale(caller domain.Address, id domain.TicketID, price, value decimal.Decimal) error {
	t, err := e.liveTicket(id)
	if err != nil {
		return err
	}
	if e.cancelled {
		return domain.ErrEventCancelled
	}
	if t.Holder == caller {
		return domain.ErrCannotBuyOwnTicket
	}
	if t.CheckedIn {
		return &domain.TicketAlreadyUsedError{ID: id}
	}
	if err := domain.CheckResalePrice(e.cfg, price); err != nil {
		return err
	}
	if !value.Equal(price) {
		return &domain.IncorrectPaymentError{Sent: value, Required: price}
	}
	return nil
}

// Refund destroys caller's ticket and returns its original face value. The
// price caller may have paid on resale is not refunded.
func (e *Engine) Refund(ctx context.Context, caller domain.Address, id domain.TicketID) (amount decimal.Decimal, err error) {
	defer func() { observe("refund", err) }()
	if err := e.enter("refund"); err != nil {
		return decimal.Zero, err
	}
	defer e.exit()

	if err := e.checkCaller(caller); err != nil {
		return decimal.Zero, err
	}

	e.mu.Lock()
	t, err := e.liveTicket(id)
	if err == nil {
		switch {
		case e.cancelled:
			err = domain.ErrEventCancelled
		case t.Holder != caller:
			err = &domain.NotTicketOwnerError{ID: id, Caller: caller}
		case t.CheckedIn:
			err = &domain.TicketAlreadyUsedError{ID: id}
		default:
			err = e.checkCustody(t.OriginalPrice)
		}
	}
	if err != nil {
		e.mu.Unlock()
		return decimal.Zero, err
	}
	amount = t.OriginalPrice
	e.destroy(t, domain.TicketStateRefunded)
	e.mu.Unlock()

	if err := e.bank.Transfer(ctx, e.address, caller, amount); err != nil {
		e.logger.Error("refund payout failed after commit", "ticket_id", id, "holder", caller, "error", err)
		return decimal.Zero, fmt.Errorf("pay refund: %w", err)
	}

	metrics.ObserveValue("refund", amount)
	e.logger.Info("ticket refunded", "ticket_id", id, "holder", caller, "amount", amount.String())

	a := e.activity(domain.ActivityTicketRefunded, caller)
	a.TicketID = id
	a.Amount = amount
	e.record(a)
	return amount, nil
}

// checkCustody guards payouts of face value. It can only fail if
// conservation was already broken elsewhere. Caller holds e.mu.
func (e *Engine) checkCustody(required decimal.Decimal) error {
	bal := e.bank.BalanceOf(e.address)
	if bal.LessThan(required) {
		e.logger.Error("custody below face value owed", "balance", bal.String(), "required", required.String())
		return &domain.InsufficientContractBalanceError{Balance: bal, Required: required}
	}
	return nil
}

// CancelEvent permanently cancels the event. Only the organizer may call it.
func (e *Engine) CancelEvent(ctx context.Context, caller domain.Address, reason string) (err error) {
	defer func() { observe("cancel_event", err) }()
	if err := e.enter("cancel_event"); err != nil {
		return err
	}
	defer e.exit()

	if err := e.checkCaller(caller); err != nil {
		return err
	}
	if caller != e.cfg.Organizer {
		return domain.ErrNotOrganizer
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.ErrEmptyReason
	}
	if len(reason) > domain.MaxCancelReasonLen {
		return fmt.Errorf("reason longer than %d: %w", domain.MaxCancelReasonLen, domain.ErrFieldTooLong)
	}

	e.mu.Lock()
	if e.cancelled {
		e.mu.Unlock()
		return domain.ErrEventCancelled
	}
	e.cancelled = true
	e.cancelReason = reason
	e.cancelledAt = e.now()
	live := e.live
	e.mu.Unlock()

	e.logger.Warn("event cancelled", "reason", reason, "live_tickets", live)

	a := e.activity(domain.ActivityEventCancelled, caller)
	a.Detail = map[string]any{"reason": reason, "live_tickets": live}
	e.record(a)
	return nil
}

// CancelRefund returns face value for a ticket of a cancelled event,
// checked in or not, and destroys the ticket.
func (e *Engine) CancelRefund(ctx context.Context, caller domain.Address, id domain.TicketID) (amount decimal.Decimal, err error) {
	defer func() { observe("cancel_refund", err) }()
	if err := e.enter("cancel_refund"); err != nil {
		return decimal.Zero, err
	}
	defer e.exit()

	if err := e.checkCaller(caller); err != nil {
		return decimal.Zero, err
	}

	e.mu.Lock()
	var t *ticketRecord
	if !e.cancelled {
		err = domain.ErrEventNotCancelled
	} else if t, err = e.liveTicket(id); err == nil {
		if t.Holder != caller {
			err = &domain.NotTicketOwnerError{ID: id, Caller: caller}
		} else {
			err = e.checkCustody(t.OriginalPrice)
		}
	}
	if err != nil {
		e.mu.Unlock()
		return decimal.Zero, err
	}
	amount = t.OriginalPrice
	e.destroy(t, domain.TicketStateCancelRefunded)
	e.mu.Unlock()

	if err := e.bank.Transfer(ctx, e.address, caller, amount); err != nil {
		e.logger.Error("cancel refund payout failed after commit", "ticket_id", id, "holder", caller, "error", err)
		return decimal.Zero, fmt.Errorf("pay cancel refund: %w", err)
	}

	metrics.ObserveValue("cancel_refund", amount)
	e.logger.Info("ticket cancel-refunded", "ticket_id", id, "holder", caller, "amount", amount.String())

	a := e.activity(domain.ActivityCancelRefunded, caller)
	a.TicketID = id
	a.Amount = amount
	e.record(a)
	return amount, nil
}

// CheckIn marks a ticket as used at the venue. Only the organizer may call
// it, and it stays available after cancellation.
func (e *Engine) CheckIn(ctx context.Context, caller domain.Address, id domain.TicketID) (err error) {
	defer func() { observe("check_in", err) }()
	if err := e.enter("check_in"); err != nil {
		return err
	}
	defer e.exit()

	if err := e.checkCaller(caller); err != nil {
		return err
	}
	if caller != e.cfg.Organizer {
		return domain.ErrNotOrganizer
	}

	e.mu.Lock()
	t, err := e.liveTicket(id)
	if err == nil && t.CheckedIn {
		err = &domain.TicketAlreadyUsedError{ID: id}
	}
	if err != nil {
		e.mu.Unlock()
		return err
	}
	t.CheckedIn = true
	t.state = domain.TicketStateCheckedIn
	holder := t.Holder
	e.mu.Unlock()

	e.logger.Info("ticket checked in", "ticket_id", id, "holder", holder)

	a := e.activity(domain.ActivityTicketCheckedIn, caller)
	a.TicketID = id
	a.Counterparty = holder
	e.record(a)
	return nil
}
