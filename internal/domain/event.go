package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventConfig is fixed when an engine is deployed and never changes.
type EventConfig struct {
	Name                string          `json:"name" yaml:"name"`
	Symbol              string          `json:"symbol" yaml:"symbol"`
	Organizer           Address         `json:"organizer" yaml:"organizer"`
	FacePrice           decimal.Decimal `json:"face_price" yaml:"face_price"`
	MaxTickets          uint64          `json:"max_tickets" yaml:"max_tickets"`
	MaxResalePercent    int             `json:"max_resale_percent" yaml:"max_resale_percent"`
	MinResalePercent    int             `json:"min_resale_percent" yaml:"min_resale_percent"`
	OrganizerFeePercent int             `json:"organizer_fee_percent" yaml:"organizer_fee_percent"`
	BaseURI             string          `json:"base_uri,omitempty" yaml:"base_uri"`
}

// MaxResalePrice is the resale ceiling for tickets of this event.
func (c EventConfig) MaxResalePrice() decimal.Decimal {
	return MaxResalePrice(c.FacePrice, c.MaxResalePercent)
}

// MinResalePrice is the resale floor for tickets of this event.
func (c EventConfig) MinResalePrice() decimal.Decimal {
	return MinResalePrice(c.FacePrice, c.MinResalePercent)
}

type EventStatus string

const (
	EventStatusActive    EventStatus = "active"
	EventStatusCancelled EventStatus = "cancelled"
)

func ParseEventStatus(s string) (EventStatus, bool) {
	switch EventStatus(s) {
	case EventStatusActive, EventStatusCancelled:
		return EventStatus(s), true
	}
	return "", false
}

// EventEntry is the registry's discovery projection of a deployed engine.
// The engine stays authoritative for cancellation; Status may lag until it is
// synchronized.
type EventEntry struct {
	Handle     Address         `json:"handle"`
	Organizer  Address         `json:"organizer"`
	CreatedAt  time.Time       `json:"created_at"`
	Name       string          `json:"name"`
	Symbol     string          `json:"symbol"`
	Status     EventStatus     `json:"status"`
	FacePrice  decimal.Decimal `json:"face_price"`
	MaxTickets uint64          `json:"max_tickets"`
}
