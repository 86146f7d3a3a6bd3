package registry

import (
	"fmt"

	"github.com/shopspring/decimal"

	"example.com/fairticket/internal/domain"
)

// Policy is the registry-wide configuration every new event is checked
// against. It changes only through the owner-gated mutators.
type Policy struct {
	MaxResalePercent           int             `json:"max_resale_percent" yaml:"max_resale_percent"`
	MaxOrganizerFeePercent     int             `json:"max_organizer_fee_percent" yaml:"max_organizer_fee_percent"`
	DefaultOrganizerFeePercent int             `json:"default_organizer_fee_percent" yaml:"default_organizer_fee_percent"`
	DefaultMinResalePercent    int             `json:"default_min_resale_percent" yaml:"default_min_resale_percent"`
	MinTicketPrice             decimal.Decimal `json:"min_ticket_price" yaml:"min_ticket_price"`
	CreationFee                decimal.Decimal `json:"creation_fee" yaml:"creation_fee"`
	Paused                     bool            `json:"paused" yaml:"paused"`
}

func DefaultPolicy() Policy {
	return Policy{
		MaxResalePercent:           domain.DefaultMaxResalePercent,
		MaxOrganizerFeePercent:     domain.MaxOrganizerFeePercent,
		DefaultOrganizerFeePercent: domain.DefaultOrganizerFeePercent,
		DefaultMinResalePercent:    domain.DefaultMinResalePercent,
		MinTicketPrice:             domain.DefaultMinTicketPrice,
		CreationFee:                decimal.Zero,
	}
}

// Validate checks p against the fixed protocol bounds.
func (p Policy) Validate() error {
	if p.MaxResalePercent < domain.MinMaxResalePercent || p.MaxResalePercent > domain.AbsoluteMaxResalePercent {
		return &domain.PercentageError{
			Field: "max_resale_percent", Value: p.MaxResalePercent,
			Min: domain.MinMaxResalePercent, Max: domain.AbsoluteMaxResalePercent,
		}
	}
	if p.MaxOrganizerFeePercent < 0 || p.MaxOrganizerFeePercent > domain.MaxOrganizerFeePercent {
		return &domain.PercentageError{
			Field: "max_organizer_fee_percent", Value: p.MaxOrganizerFeePercent,
			Min: 0, Max: domain.MaxOrganizerFeePercent,
		}
	}
	if p.DefaultOrganizerFeePercent < 0 || p.DefaultOrganizerFeePercent > p.MaxOrganizerFeePercent {
		return &domain.PercentageError{
			Field: "default_organizer_fee_percent", Value: p.DefaultOrganizerFeePercent,
			Min: 0, Max: p.MaxOrganizerFeePercent,
		}
	}
	if p.DefaultMinResalePercent < domain.MinResaleFloorPercent || p.DefaultMinResalePercent > domain.MaxResaleFloorPercent {
		return &domain.PercentageError{
			Field: "default_min_resale_percent", Value: p.DefaultMinResalePercent,
			Min: domain.MinResaleFloorPercent, Max: domain.MaxResaleFloorPercent,
		}
	}
	if !p.MinTicketPrice.IsPositive() {
		return &domain.PriceTooLowError{Price: p.MinTicketPrice, Minimum: decimal.Zero}
	}
	if p.CreationFee.IsNegative() {
		return fmt.Errorf("creation_fee %s: %w", p.CreationFee, domain.ErrInvalidAmount)
	}
	return nil
}

func (p Policy) Limits() domain.Limits {
	return domain.Limits{
		MaxResalePercent:       p.MaxResalePercent,
		MaxOrganizerFeePercent: p.MaxOrganizerFeePercent,
		MinTicketPrice:         p.MinTicketPrice,
		MaxTickets:             domain.MaxTicketsPerEvent,
	}
}

// PolicyUpdate carries the fields to change; nil fields are left alone.
type PolicyUpdate struct {
	MaxResalePercent           *int             `json:"max_resale_percent,omitempty"`
	MaxOrganizerFeePercent     *int             `json:"max_organizer_fee_percent,omitempty"`
	DefaultOrganizerFeePercent *int             `json:"default_organizer_fee_percent,omitempty"`
	DefaultMinResalePercent    *int             `json:"default_min_resale_percent,omitempty"`
	MinTicketPrice             *decimal.Decimal `json:"min_ticket_price,omitempty"`
	CreationFee                *decimal.Decimal `json:"creation_fee,omitempty"`
	Paused                     *bool            `json:"paused,omitempty"`
}

func (u PolicyUpdate) apply(p Policy) Policy {
	if u.MaxResalePercent != nil {
		p.MaxResalePercent = *u.MaxResalePercent
	}
	if u.MaxOrganizerFeePercent != nil {
		p.MaxOrganizerFeePercent = *u.MaxOrganizerFeePercent
	}
	if u.DefaultOrganizerFeePercent != nil {
		p.DefaultOrganizerFeePercent = *u.DefaultOrganizerFeePercent
	}
	if u.DefaultMinResalePercent != nil {
		p.DefaultMinResalePercent = *u.DefaultMinResalePercent
	}
	if u.MinTicketPrice != nil {
		p.MinTicketPrice = *u.MinTicketPrice
	}
	if u.CreationFee != nil {
		p.CreationFee = *u.CreationFee
	}
	if u.Paused != nil {
		p.Paused = *u.Paused
	}
	return p
}

// PolicyChange is the before/after record of one changed field.
type PolicyChange struct {
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
}

func diffPolicy(before, after Policy) []PolicyChange {
	var out []PolicyChange
	addInt := func(field string, b, a int) {
		if b != a {
			out = append(out, PolicyChange{field, fmt.Sprint(b), fmt.Sprint(a)})
		}
	}
	addDec := func(field string, b, a decimal.Decimal) {
		if !b.Equal(a) {
			out = append(out, PolicyChange{field, b.String(), a.String()})
		}
	}
	addInt("max_resale_percent", before.MaxResalePercent, after.MaxResalePercent)
	addInt("max_organizer_fee_percent", before.MaxOrganizerFeePercent, after.MaxOrganizerFeePercent)
	addInt("default_organizer_fee_percent", before.DefaultOrganizerFeePercent, after.DefaultOrganizerFeePercent)
	addInt("default_min_resale_percent", before.DefaultMinResalePercent, after.DefaultMinResalePercent)
	addDec("min_ticket_price", before.MinTicketPrice, after.MinTicketPrice)
	addDec("creation_fee", before.CreationFee, after.CreationFee)
	if before.Paused != after.Paused {
		out = append(out, PolicyChange{"paused", fmt.Sprint(before.Paused), fmt.Sprint(after.Paused)})
	}
	return out
}
