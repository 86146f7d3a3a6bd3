package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel kinds. Parameterized errors below match them with errors.Is.
var (
	ErrEventSoldOut                = errors.New("event sold out")
	ErrEventCancelled              = errors.New("event is cancelled")
	ErrEventNotCancelled           = errors.New("event is not cancelled")
	ErrIncorrectPayment            = errors.New("incorrect payment")
	ErrTicketNotFound              = errors.New("ticket not found")
	ErrTicketAlreadyUsed           = errors.New("ticket already used")
	ErrCannotBuyOwnTicket          = errors.New("cannot buy own ticket")
	ErrBelowMinimumResalePrice     = errors.New("below minimum resale price")
	ErrExceedsResaleCap            = errors.New("exceeds resale cap")
	ErrNotTicketOwner              = errors.New("not ticket owner")
	ErrInsufficientContractBalance = errors.New("insufficient contract balance")
	ErrCustodySurplus              = errors.New("custody exceeds face value owed")
	ErrTransfersDisabled           = errors.New("transfers disabled: use resale")
	ErrNotOrganizer                = errors.New("caller is not the organizer")
	ErrNotOwner                    = errors.New("caller is not the owner")
	ErrNotApproved                 = errors.New("caller is not holder or approved operator")
	ErrReentrantCall               = errors.New("reentrant call")
	ErrEmptyReason                 = errors.New("cancellation reason required")
	ErrInvalidAddress              = errors.New("invalid address")
	ErrEmptyName                   = errors.New("name and symbol required")
	ErrFieldTooLong                = errors.New("field too long")
	ErrInvalidPrice                = errors.New("invalid price")
	ErrInvalidPercentage           = errors.New("invalid percentage")
	ErrInvalidTicketCount          = errors.New("invalid ticket count")
	ErrBatchTooLarge               = errors.New("batch too large")
	ErrEmptyBatch                  = errors.New("batch is empty")
	ErrRegistryPaused              = errors.New("registry is paused")
	ErrEventNotRegistered          = errors.New("event not registered")
	ErrInsufficientFunds           = errors.New("insufficient funds")
	ErrInvalidAmount               = errors.New("invalid amount")
	ErrNoFees                      = errors.New("no fees to withdraw")
)

type IncorrectPaymentError struct {
	Sent     decimal.Decimal
	Required decimal.Decimal
}

func (e *IncorrectPaymentError) Error() string {
	return fmt.Sprintf("incorrect payment: sent %s, required %s", e.Sent, e.Required)
}

func (e *IncorrectPaymentError) Is(target error) bool { return target == ErrIncorrectPayment }

type TicketNotFoundError struct {
	ID TicketID
}

func (e *TicketNotFoundError) Error() string { return fmt.Sprintf("ticket %d not found", e.ID) }

func (e *TicketNotFoundError) Is(target error) bool { return target == ErrTicketNotFound }

type TicketAlreadyUsedError struct {
	ID TicketID
}

func (e *TicketAlreadyUsedError) Error() string {
	return fmt.Sprintf("ticket %d already checked in", e.ID)
}

func (e *TicketAlreadyUsedError) Is(target error) bool { return target == ErrTicketAlreadyUsed }

type BelowMinimumResalePriceError struct {
	Price   decimal.Decimal
	Minimum decimal.Decimal
}

func (e *BelowMinimumResalePriceError) Error() string {
	return fmt.Sprintf("resale price %s below minimum %s", e.Price, e.Minimum)
}

func (e *BelowMinimumResalePriceError) Is(target error) bool {
	return target == ErrBelowMinimumResalePrice
}

type ExceedsResaleCapError struct {
	Price   decimal.Decimal
	Maximum decimal.Decimal
}

func (e *ExceedsResaleCapError) Error() string {
	return fmt.Sprintf("resale price %s exceeds cap %s", e.Price, e.Maximum)
}

func (e *ExceedsResaleCapError) Is(target error) bool { return target == ErrExceedsResaleCap }

type NotTicketOwnerError struct {
	ID     TicketID
	Caller Address
}

func (e *NotTicketOwnerError) Error() string {
	return fmt.Sprintf("%s does not hold ticket %d", e.Caller, e.ID)
}

func (e *NotTicketOwnerError) Is(target error) bool { return target == ErrNotTicketOwner }

// InsufficientContractBalanceError means custody no longer covers the face
// value owed. It is unreachable while the conservation invariant holds.
type InsufficientContractBalanceError struct {
	Balance  decimal.Decimal
	Required decimal.Decimal
}

func (e *InsufficientContractBalanceError) Error() string {
	return fmt.Sprintf("custody balance %s below required %s", e.Balance, e.Required)
}

func (e *InsufficientContractBalanceError) Is(target error) bool {
	return target == ErrInsufficientContractBalance
}

// CustodySurplusError means value reached custody outside mint. Conservation
// requires custody to equal the face value owed exactly.
type CustodySurplusError struct {
	Balance  decimal.Decimal
	Required decimal.Decimal
}

func (e *CustodySurplusError) Error() string {
	return fmt.Sprintf("custody balance %s above required %s", e.Balance, e.Required)
}

func (e *CustodySurplusError) Is(target error) bool { return target == ErrCustodySurplus }

// PercentageError reports a percentage outside [Min, Max].
type PercentageError struct {
	Field string
	Value int
	Min   int
	Max   int
}

func (e *PercentageError) Error() string {
	return fmt.Sprintf("%s %d outside [%d, %d]", e.Field, e.Value, e.Min, e.Max)
}

func (e *PercentageError) Is(target error) bool { return target == ErrInvalidPercentage }

type PriceTooLowError struct {
	Price   decimal.Decimal
	Minimum decimal.Decimal
}

func (e *PriceTooLowError) Error() string {
	return fmt.Sprintf("price %s below minimum %s", e.Price, e.Minimum)
}

func (e *PriceTooLowError) Is(target error) bool { return target == ErrInvalidPrice }

type TicketCountError struct {
	Requested uint64
	Max       uint64
}

func (e *TicketCountError) Error() string {
	return fmt.Sprintf("ticket count %d outside [1, %d]", e.Requested, e.Max)
}

func (e *TicketCountError) Is(target error) bool { return target == ErrInvalidTicketCount }

type BatchTooLargeError struct {
	Size int
	Max  int
}

func (e *BatchTooLargeError) Error() string {
	return fmt.Sprintf("batch of %d exceeds maximum %d", e.Size, e.Max)
}

func (e *BatchTooLargeError) Is(target error) bool { return target == ErrBatchTooLarge }

type InsufficientFundsError struct {
	Address  Address
	Balance  decimal.Decimal
	Required decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("%s has %s, needs %s", e.Address, e.Balance, e.Required)
}

func (e *InsufficientFundsError) Is(target error) bool { return target == ErrInsufficientFunds }

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrEventSoldOut, "event_sold_out"},
	{ErrEventCancelled, "event_cancelled"},
	{ErrEventNotCancelled, "event_not_cancelled"},
	{ErrIncorrectPayment, "incorrect_payment"},
	{ErrTicketNotFound, "ticket_not_found"},
	{ErrTicketAlreadyUsed, "ticket_already_used"},
	{ErrCannotBuyOwnTicket, "cannot_buy_own_ticket"},
	{ErrBelowMinimumResalePrice, "below_minimum_resale_price"},
	{ErrExceedsResaleCap, "exceeds_resale_cap"},
	{ErrNotTicketOwner, "not_ticket_owner"},
	{ErrInsufficientContractBalance, "insufficient_contract_balance"},
	{ErrCustodySurplus, "custody_surplus"},
	{ErrTransfersDisabled, "transfers_disabled"},
	{ErrNotOrganizer, "not_organizer"},
	{ErrNotOwner, "not_owner"},
	{ErrNotApproved, "not_approved"},
	{ErrReentrantCall, "reentrant_call"},
	{ErrEmptyReason, "empty_reason"},
	{ErrInvalidAddress, "invalid_address"},
	{ErrEmptyName, "empty_name"},
	{ErrFieldTooLong, "field_too_long"},
	{ErrInvalidPrice, "invalid_price"},
	{ErrInvalidPercentage, "invalid_percentage"},
	{ErrInvalidTicketCount, "invalid_ticket_count"},
	{ErrBatchTooLarge, "batch_too_large"},
	{ErrEmptyBatch, "empty_batch"},
	{ErrRegistryPaused, "registry_paused"},
	{ErrEventNotRegistered, "event_not_registered"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrNoFees, "no_fees"},
}

// ErrorCode maps err to a stable snake_case code, or "internal_error".
func ErrorCode(err error) string {
	if err == nil {
		return "ok"
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "internal_error"
}
