// Package registry deploys ticket engines, indexes them for discovery, and
// enforces the registry-wide policy ceilings at creation time. It is not on
// the path of ticket operations; callers talk to engines directly.
package registry

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeebo/blake3"

	"example.com/fairticket/internal/domain"
	"example.com/fairticket/internal/engine"
	"example.com/fairticket/internal/metrics"
)

const MaxPageSize = 100

type Registry struct {
	address  domain.Address
	bank     engine.Bank
	recorder domain.Recorder
	logger   *slog.Logger
	now      func() time.Time
	// Passed to every deployed engine.
	engineOpts []engine.Option

	latch atomic.Bool

	mu          sync.RWMutex
	owner       domain.Address
	policy      Policy
	nonce       uint64
	order       []domain.Address
	entries     map[domain.Address]*domain.EventEntry
	engines     map[domain.Address]*engine.Engine
	byOrganizer map[domain.Address][]domain.Address
	byStatus    map[domain.EventStatus][]domain.Address
}

type Option func(*Registry)

func WithRecorder(r domain.Recorder) Option {
	return func(reg *Registry) {
		if r != nil {
			reg.recorder = r
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(reg *Registry) {
		if l != nil {
			reg.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(reg *Registry) {
		if now != nil {
			reg.now = now
		}
	}
}

// New creates a registry holding creation fees at address and owned by owner.
func New(address, owner domain.Address, policy Policy, bank engine.Bank, opts ...Option) (*Registry, error) {
	if !address.Valid() || !owner.Valid() || owner == address {
		return nil, domain.ErrInvalidAddress
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("initial policy: %w", err)
	}
	reg := &Registry{
		address:     address,
		bank:        bank,
		recorder:    domain.NopRecorder{},
		logger:      slog.Default(),
		now:         func() time.Time { return time.Now().UTC() },
		owner:       owner,
		policy:      policy,
		entries:     make(map[domain.Address]*domain.EventEntry),
		engines:     make(map[domain.Address]*engine.Engine),
		byOrganizer: make(map[domain.Address][]domain.Address),
		byStatus:    make(map[domain.EventStatus][]domain.Address),
	}
	for _, opt := range opts {
		opt(reg)
	}
	reg.logger = reg.logger.With("component", "registry")
	reg.engineOpts = []engine.Option{
		engine.WithRecorder(reg.recorder),
		engine.WithLogger(reg.logger),
		engine.WithClock(reg.now),
	}
	return reg, nil
}

func (r *Registry) enter() error {
	if !r.latch.CompareAndSwap(false, true) {
		return domain.ErrReentrantCall
	}
	return nil
}

func (r *Registry) exit() { r.latch.Store(false) }

// IsReserved reports whether a belongs to the registry itself or to one of
// its engines. Reserved addresses never act as callers, owners, organizers, or
// payees.
func (r *Registry) IsReserved(a domain.Address) bool {
	return a == r.address || r.IsRegistered(a)
}

// checkPrincipal rejects malformed and reserved addresses.
func (r *Registry) checkPrincipal(a domain.Address) error {
	if !a.Valid() || r.IsReserved(a) {
		return domain.ErrInvalidAddress
	}
	return nil
}

// CreateEventParams are the caller-supplied creation parameters. A zero
// MinResalePercent or nil OrganizerFeePercent takes the policy default; an
// empty Organizer defaults to the caller.
type CreateEventParams struct {
	Name                string          `json:"name"`
	Symbol              string          `json:"symbol"`
	Organizer           domain.Address  `json:"organizer,omitempty"`
	FacePrice           decimal.Decimal `json:"face_price"`
	MaxTickets          uint64          `json:"max_tickets"`
	MaxResalePercent    int             `json:"max_resale_percent"`
	MinResalePercent    int             `json:"min_resale_percent,omitempty"`
	OrganizerFeePercent *int            `json:"organizer_fee_percent,omitempty"`
	BaseURI             string          `json:"base_uri,omitempty"`
}

func (p CreateEventParams) config(caller domain.Address, pol Policy) domain.EventConfig {
	cfg := domain.EventConfig{
		Name:             strings.TrimSpace(p.Name),
		Symbol:           strings.TrimSpace(p.Symbol),
		Organizer:        p.Organizer,
		FacePrice:        p.FacePrice,
		MaxTickets:       p.MaxTickets,
		MaxResalePercent: p.MaxResalePercent,
		MinResalePercent: p.MinResalePercent,
		BaseURI:          strings.TrimSpace(p.BaseURI),
	}
	if cfg.Organizer.IsZero() {
		cfg.Organizer = caller
	}
	if cfg.MinResalePercent == 0 {
		cfg.MinResalePercent = pol.DefaultMinResalePercent
	}
	if p.OrganizerFeePercent != nil {
		cfg.OrganizerFeePercent = *p.OrganizerFeePercent
	} else {
		cfg.OrganizerFeePercent = pol.DefaultOrganizerFeePercent
	}
	return cfg
}

// CreateEvent validates params against the current policy, collects the
// creation fee, and deploys a new engine.
func (r *Registry) CreateEvent(ctx context.Context, caller domain.Address, params CreateEventParams, value decimal.Decimal) (entry domain.EventEntry, err error) {
	defer func() { metrics.ObserveRegistry("create_event", err) }()
	entries, err := r.create(ctx, caller, []CreateEventParams{params}, value)
	if err != nil {
		return domain.EventEntry{}, err
	}
	return entries[0], nil
}

// BatchCreateEvents deploys up to domain.MaxBatchSize events in one call.
// Every entry is validated before anything is deployed; value must equal the
// creation fee times the batch size.
func (r *Registry) BatchCreateEvents(ctx context.Context, caller domain.Address, params []CreateEventParams, value decimal.Decimal) (entries []domain.EventEntry, err error) {
	defer func() { metrics.ObserveRegistry("batch_create_events", err) }()
	if len(params) == 0 {
		return nil, domain.ErrEmptyBatch
	}
	if len(params) > domain.MaxBatchSize {
		return nil, &domain.BatchTooLargeError{Size: len(params), Max: domain.MaxBatchSize}
	}
	return r.create(ctx, caller, params, value)
}

func (r *Registry) create(ctx context.Context, caller domain.Address, params []CreateEventParams, value decimal.Decimal) ([]domain.EventEntry, error) {
	if err := r.enter(); err != nil {
		return nil, err
	}
	defer r.exit()

	if err := r.checkPrincipal(caller); err != nil {
		return nil, err
	}

	r.mu.RLock()
	pol := r.policy
	r.mu.RUnlock()
	if pol.Paused {
		return nil, domain.ErrRegistryPaused
	}

	r.mu.RLock()
	nonce := r.nonce
	r.mu.RUnlock()
	upcoming := make(map[domain.Address]bool, len(params))
	for i := range params {
		upcoming[deriveHandle(r.address, nonce+uint64(i)+1)] = true
	}

	cfgs := make([]*domain.EventConfig, len(params))
	for i, p := range params {
		cfg := p.config(caller, pol)
		if err := r.checkPrincipal(cfg.Organizer); err != nil || upcoming[cfg.Organizer] {
			return nil, domain.ErrInvalidAddress
		}
		cfgs[i] = &cfg
	}
	if len(cfgs) == 1 {
		if err := domain.AsError(domain.ValidateEventConfig(cfgs[0], pol.Limits())); err != nil {
			return nil, err
		}
	} else if _, err := domain.ValidateBatch(cfgs, domain.MaxBatchSize, pol.Limits()); err != nil {
		return nil, err
	}

	required := pol.CreationFee.Mul(decimal.NewFromInt(int64(len(cfgs))))
	if !value.Equal(required) {
		return nil, &domain.IncorrectPaymentError{Sent: value, Required: required}
	}
	if err := r.bank.Transfer(ctx, caller, r.address, value); err != nil {
		return nil, err
	}

	now := r.now()
	out := make([]domain.EventEntry, 0, len(cfgs))

	r.mu.Lock()
	for _, cfg := range cfgs {
		r.nonce++
		handle := deriveHandle(r.address, r.nonce)
		eng, err := engine.New(handle, *cfg, r.bank, r.engineOpts...)
		if err != nil {
			// Validation above makes this unreachable.
			r.mu.Unlock()
			r.logger.Error("engine deployment failed after validation", "error", err)
			return nil, fmt.Errorf("deploy engine: %w", err)
		}
		entry := &domain.EventEntry{
			Handle:     handle,
			Organizer:  cfg.Organizer,
			CreatedAt:  now,
			Name:       cfg.Name,
			Symbol:     cfg.Symbol,
			Status:     domain.EventStatusActive,
			FacePrice:  cfg.FacePrice,
			MaxTickets: cfg.MaxTickets,
		}
		r.entries[handle] = entry
		r.engines[handle] = eng
		r.order = append(r.order, handle)
		r.byOrganizer[cfg.Organizer] = append(r.byOrganizer[cfg.Organizer], handle)
		r.byStatus[domain.EventStatusActive] = append(r.byStatus[domain.EventStatusActive], handle)
		out = append(out, *entry)
	}
	r.mu.Unlock()

	for i, entry := range out {
		r.logger.Info("event created", "handle", entry.Handle, "organizer", entry.Organizer, "name", entry.Name)
		a := domain.NewActivity(domain.ActivityEventCreated, entry.Handle, caller, now)
		a.Counterparty = entry.Organizer
		a.Fee = pol.CreationFee
		a.Detail = map[string]any{
			"name":                  entry.Name,
			"symbol":                entry.Symbol,
			"face_price":            entry.FacePrice.String(),
			"max_tickets":           entry.MaxTickets,
			"max_resale_percent":    cfgs[i].MaxResalePercent,
			"min_resale_percent":    cfgs[i].MinResalePercent,
			"organizer_fee_percent": cfgs[i].OrganizerFeePercent,
		}
		r.recorder.Record(a)
	}
	return out, nil
}

// deriveHandle returns "0x" and the first 20 bytes of BLAKE3(registry || nonce).
func deriveHandle(registry domain.Address, nonce uint64) domain.Address {
	h := blake3.New()
	_, _ = h.Write([]byte(registry))
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	_, _ = h.Write(n[:])
	sum := h.Sum(nil)
	return domain.Address("0x" + hex.EncodeToString(sum[:20]))
}
