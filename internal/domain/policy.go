package domain

import "github.com/shopspring/decimal"

// Protocol bounds. Registry policy may tighten these but never loosen them.
const (
	// A resale ceiling below face value would trap holders below the refund path.
	MinMaxResalePercent = 100
	// Upper bound for the registry's adjustable resale ceiling.
	AbsoluteMaxResalePercent = 300
	DefaultMaxResalePercent  = 150

	MinResaleFloorPercent   = 50
	MaxResaleFloorPercent   = 100
	DefaultMinResalePercent = 50

	MaxOrganizerFeePercent     = 50
	DefaultOrganizerFeePercent = 5

	MaxBatchSize       = 10
	MaxTicketsPerEvent = 100_000

	MaxNameLen         = 64
	MaxSymbolLen       = 11
	MaxBaseURILen      = 256
	MaxCancelReasonLen = 280
)

// DefaultMinTicketPrice is the registry's initial face-value floor.
var DefaultMinTicketPrice = decimal.RequireFromString("0.0001")

// percentOf returns amount*pct/100 exactly.
func percentOf(amount decimal.Decimal, pct int) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(int64(pct))).Shift(-2)
}

// MaxResalePrice returns face*maxPct/100.
func MaxResalePrice(face decimal.Decimal, maxPct int) decimal.Decimal {
	return percentOf(face, maxPct)
}

// MinResalePrice returns face*minPct/100.
func MinResalePrice(face decimal.Decimal, minPct int) decimal.Decimal {
	return percentOf(face, minPct)
}

// SplitResale divides a resale price between the previous holder and the
// organizer. The two parts always sum to price.
func SplitResale(price decimal.Decimal, feePct int) (sellerProceeds, organizerFee decimal.Decimal) {
	organizerFee = percentOf(price, feePct)
	return price.Sub(organizerFee), organizerFee
}

// CheckResalePrice reports whether price lies in the event's resale band.
func CheckResalePrice(cfg EventConfig, price decimal.Decimal) error {
	if floor := cfg.MinResalePrice(); price.LessThan(floor) {
		return &BelowMinimumResalePriceError{Price: price, Minimum: floor}
	}
	if ceil := cfg.MaxResalePrice(); price.GreaterThan(ceil) {
		return &ExceedsResaleCapError{Price: price, Maximum: ceil}
	}
	return nil
}

// Limits are the ceilings an event config is validated against. The engine
// validates against ProtocolLimits; the registry passes its current policy.
type Limits struct {
	MaxResalePercent       int
	MaxOrganizerFeePercent int
	MinTicketPrice         decimal.Decimal
	MaxTickets             uint64
}

// ProtocolLimits are the widest limits any event may be created with.
func ProtocolLimits() Limits {
	return Limits{
		MaxResalePercent:       AbsoluteMaxResalePercent,
		MaxOrganizerFeePercent: MaxOrganizerFeePercent,
		MinTicketPrice:         decimal.Zero,
		MaxTickets:             MaxTicketsPerEvent,
	}
}
