package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Address identifies a principal on the host ledger: a buyer, an organizer,
// the registry owner, or a deployed engine. The empty address is the null
// principal.
type Address string

// ZeroAddress is the null principal.
const ZeroAddress Address = ""

func (a Address) IsZero() bool { return strings.TrimSpace(string(a)) == "" }

// Valid reports whether a is non-empty and carries no surrounding
// whitespace. Balances and holdings are keyed by the exact string, so padded
// forms would name a different principal.
func (a Address) Valid() bool {
	s := string(a)
	return s != "" && strings.TrimSpace(s) == s
}

// NormalizeAddress trims surrounding whitespace from s.
func NormalizeAddress(s string) Address { return Address(strings.TrimSpace(s)) }

// UnmarshalText normalizes addresses decoded from JSON and YAML.
func (a *Address) UnmarshalText(b []byte) error {
	*a = NormalizeAddress(string(b))
	return nil
}

func (a Address) String() string { return string(a) }

// TicketID numbers tickets within one event, starting at 1. Identifiers are
// never reused, even after the ticket is destroyed.
type TicketID uint64

// Zero is a convenience for the zero amount of the native unit.
var Zero = decimal.Zero
