package engine

import (
	"encoding/base64"
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"

	"example.com/fairticket/internal/domain"
)

// TicketDescriptor is the per-ticket metadata served to indexers and
// marketplaces.
type TicketDescriptor struct {
	ID             domain.TicketID    `json:"id"`
	EventName      string             `json:"event_name"`
	Symbol         string             `json:"symbol"`
	Organizer      domain.Address     `json:"organizer"`
	FacePrice      decimal.Decimal    `json:"face_price"`
	LastPrice      decimal.Decimal    `json:"last_price"`
	Holder         domain.Address     `json:"holder"`
	CheckedIn      bool               `json:"checked_in"`
	Cancelled      bool               `json:"cancelled"`
	MaxResalePrice decimal.Decimal    `json:"max_resale_price"`
	MinResalePrice decimal.Decimal    `json:"min_resale_price"`
	State          domain.TicketState `json:"state"`
	URI            string             `json:"uri,omitempty"`
}

// CollectionDescriptor describes the event as a whole.
type CollectionDescriptor struct {
	Name                string          `json:"name"`
	Symbol              string          `json:"symbol"`
	Organizer           domain.Address  `json:"organizer"`
	Contract            domain.Address  `json:"contract"`
	FacePrice           decimal.Decimal `json:"face_price"`
	MaxSupply           uint64          `json:"max_supply"`
	Issued              uint64          `json:"issued"`
	Live                uint64          `json:"live"`
	MaxResalePercent    int             `json:"max_resale_percent"`
	MinResalePercent    int             `json:"min_resale_percent"`
	OrganizerFeePercent int             `json:"organizer_fee_percent"`
	Cancelled           bool            `json:"cancelled"`
}

func (e *Engine) TicketDescriptor(id domain.TicketID) (TicketDescriptor, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, err := e.liveTicket(id)
	if err != nil {
		return TicketDescriptor{}, err
	}
	d := TicketDescriptor{
		ID:             id,
		EventName:      e.cfg.Name,
		Symbol:         e.cfg.Symbol,
		Organizer:      e.cfg.Organizer,
		FacePrice:      t.OriginalPrice,
		LastPrice:      t.LastPrice,
		Holder:         t.Holder,
		CheckedIn:      t.CheckedIn,
		Cancelled:      e.cancelled,
		MaxResalePrice: e.cfg.MaxResalePrice(),
		MinResalePrice: e.cfg.MinResalePrice(),
		State:          t.state,
	}
	if e.cfg.BaseURI != "" {
		d.URI = e.cfg.BaseURI + strconv.FormatUint(uint64(id), 10)
	}
	return d, nil
}

// TokenURI returns the base locator followed by the id, or an inline JSON
// descriptor when the event has no base locator.
func (e *Engine) TokenURI(id domain.TicketID) (string, error) {
	d, err := e.TicketDescriptor(id)
	if err != nil {
		return "", err
	}
	if d.URI != "" {
		return d.URI, nil
	}
	return dataURI(d)
}

func (e *Engine) CollectionDescriptor() CollectionDescriptor {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return CollectionDescriptor{
		Name:                e.cfg.Name,
		Symbol:              e.cfg.Symbol,
		Organizer:           e.cfg.Organizer,
		Contract:            e.address,
		FacePrice:           e.cfg.FacePrice,
		MaxSupply:           e.cfg.MaxTickets,
		Issued:              e.issued,
		Live:                e.live,
		MaxResalePercent:    e.cfg.MaxResalePercent,
		MinResalePercent:    e.cfg.MinResalePercent,
		OrganizerFeePercent: e.cfg.OrganizerFeePercent,
		Cancelled:           e.cancelled,
	}
}

func (e *Engine) ContractURI() (string, error) {
	return dataURI(e.CollectionDescriptor())
}

func dataURI(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return "data:application/json;base64," + base64.StdEncoding.EncodeToString(b), nil
}
