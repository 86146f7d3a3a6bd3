package domain

import "github.com/shopspring/decimal"

// Ticket is one issued admission. OriginalPrice is set at mint and never
// changes; LastPrice follows resales.
type Ticket struct {
	ID            TicketID        `json:"id"`
	Holder        Address         `json:"holder"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	LastPrice     decimal.Decimal `json:"last_price"`
	CheckedIn     bool            `json:"checked_in"`
	Exists        bool            `json:"exists"`
}

// TicketState is the lifecycle position of a ticket id.
type TicketState string

const (
	TicketStateUnissued       TicketState = "unissued"
	TicketStateMinted         TicketState = "minted"
	TicketStateResold         TicketState = "resold"
	TicketStateCheckedIn      TicketState = "checked_in"
	TicketStateRefunded       TicketState = "refunded"
	TicketStateCancelRefunded TicketState = "cancel_refunded"
)
