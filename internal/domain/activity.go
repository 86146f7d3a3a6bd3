package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ActivityKind string

const (
	ActivityEventCreated     ActivityKind = "event_created"
	ActivityTicketMinted     ActivityKind = "ticket_minted"
	ActivityTicketResold     ActivityKind = "ticket_resold"
	ActivityTicketRefunded   ActivityKind = "ticket_refunded"
	ActivityTicketCheckedIn  ActivityKind = "ticket_checked_in"
	ActivityEventCancelled   ActivityKind = "event_cancelled"
	ActivityCancelRefunded   ActivityKind = "cancel_refunded"
	ActivityApproval         ActivityKind = "approval"
	ActivityApprovalForAll   ActivityKind = "approval_for_all"
	ActivityPolicyChanged    ActivityKind = "policy_changed"
	ActivityFeesWithdrawn    ActivityKind = "fees_withdrawn"
	ActivityStatusSynced     ActivityKind = "status_synced"
	ActivityOwnershipChanged ActivityKind = "ownership_changed"
)

// Activity is an append-only record of one committed state transition.
// Timestamp is epoch seconds (UTC).
type Activity struct {
	ID           string          `json:"id"`
	Kind         ActivityKind    `json:"kind"`
	Event        Address         `json:"event,omitempty"`
	TicketID     TicketID        `json:"ticket_id,omitempty"`
	Actor        Address         `json:"actor"`
	Counterparty Address         `json:"counterparty,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Fee          decimal.Decimal `json:"fee"`
	Detail       map[string]any  `json:"detail,omitempty"`
	Timestamp    int64           `json:"timestamp"`
}

// NewActivity stamps a fresh id and timestamp.
func NewActivity(kind ActivityKind, event, actor Address, now time.Time) Activity {
	return Activity{
		ID:        uuid.NewString(),
		Kind:      kind,
		Event:     event,
		Actor:     actor,
		Timestamp: now.UTC().Unix(),
	}
}

// Recorder receives activity after the transition it describes has committed.
type Recorder interface {
	Record(Activity)
}

type RecorderFunc func(Activity)

func (f RecorderFunc) Record(a Activity) { f(a) }

// NopRecorder discards activity.
type NopRecorder struct{}

func (NopRecorder) Record(Activity) {}
