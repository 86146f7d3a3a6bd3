package registry

import (
	"context"

	"github.com/shopspring/decimal"

	"example.com/fairticket/internal/domain"
	"example.com/fairticket/internal/metrics"
)

func (r *Registry) Owner() domain.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owner
}

func (r *Registry) Policy() Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.policy
}

// CollectedFees is the creation-fee balance awaiting withdrawal.
func (r *Registry) CollectedFees() decimal.Decimal {
	return r.bank.BalanceOf(r.address)
}

// UpdatePolicy applies u atomically: either every field changes or none do.
// It returns one before/after record per changed field.
func (r *Registry) UpdatePolicy(ctx context.Context, caller domain.Address, u PolicyUpdate) (changes []PolicyChange, err error) {
	defer func() { metrics.ObserveRegistry("update_policy", err) }()
	if err := r.enter(); err != nil {
		return nil, err
	}
	defer r.exit()

	if err := r.checkPrincipal(caller); err != nil {
		return nil, err
	}
	r.mu.Lock()
	if caller != r.owner {
		r.mu.Unlock()
		return nil, domain.ErrNotOwner
	}
	before := r.policy
	after := u.apply(before)
	if err := after.Validate(); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.policy = after
	r.mu.Unlock()

	changes = diffPolicy(before, after)
	now := r.now()
	for _, c := range changes {
		r.logger.Info("policy changed", "field", c.Field, "before", c.Before, "after", c.After)
		a := domain.NewActivity(domain.ActivityPolicyChanged, "", caller, now)
		a.Detail = map[string]any{"field": c.Field, "before": c.Before, "after": c.After}
		r.recorder.Record(a)
	}
	return changes, nil
}

func (r *Registry) SetMaxResalePercent(ctx context.Context, caller domain.Address, pct int) (PolicyChange, error) {
	return r.updateOne(ctx, caller, PolicyUpdate{MaxResalePercent: &pct})
}

func (r *Registry) SetDefaultOrganizerFee(ctx context.Context, caller domain.Address, pct int) (PolicyChange, error) {
	return r.updateOne(ctx, caller, PolicyUpdate{DefaultOrganizerFeePercent: &pct})
}

func (r *Registry) SetCreationFee(ctx context.Context, caller domain.Address, fee decimal.Decimal) (PolicyChange, error) {
	return r.updateOne(ctx, caller, PolicyUpdate{CreationFee: &fee})
}

func (r *Registry) Pause(ctx context.Context, caller domain.Address) (PolicyChange, error) {
	paused := true
	return r.updateOne(ctx, caller, PolicyUpdate{Paused: &paused})
}

func (r *Registry) Unpause(ctx context.Context, caller domain.Address) (PolicyChange, error) {
	paused := false
	return r.updateOne(ctx, caller, PolicyUpdate{Paused: &paused})
}

// updateOne returns the change record, or a zero record when the value was
// already in place.
func (r *Registry) updateOne(ctx context.Context, caller domain.Address, u PolicyUpdate) (PolicyChange, error) {
	changes, err := r.UpdatePolicy(ctx, caller, u)
	if err != nil || len(changes) == 0 {
		return PolicyChange{}, err
	}
	return changes[0], nil
}

func (r *Registry) TransferOwnership(ctx context.Context, caller, newOwner domain.Address) (err error) {
	defer func() { metrics.ObserveRegistry("transfer_ownership", err) }()
	if err := r.enter(); err != nil {
		return err
	}
	defer r.exit()

	if err := r.checkPrincipal(caller); err != nil {
		return err
	}
	if err := r.checkPrincipal(newOwner); err != nil {
		return err
	}
	r.mu.Lock()
	if caller != r.owner {
		r.mu.Unlock()
		return domain.ErrNotOwner
	}
	r.owner = newOwner
	r.mu.Unlock()

	r.logger.Info("ownership transferred", "before", caller, "after", newOwner)
	a := domain.NewActivity(domain.ActivityOwnershipChanged, "", caller, r.now())
	a.Counterparty = newOwner
	r.recorder.Record(a)
	return nil
}

// WithdrawFees pays every collected creation fee to to. Only the owner may
// call it.
func (r *Registry) WithdrawFees(ctx context.Context, caller, to domain.Address) (amount decimal.Decimal, err error) {
	defer func() { metrics.ObserveRegistry("withdraw_fees", err) }()
	if err := r.enter(); err != nil {
		return decimal.Zero, err
	}
	defer r.exit()

	if err := r.checkPrincipal(caller); err != nil {
		return decimal.Zero, err
	}
	if err := r.checkPrincipal(to); err != nil {
		return decimal.Zero, err
	}
	if caller != r.Owner() {
		return decimal.Zero, domain.ErrNotOwner
	}
	amount = r.bank.BalanceOf(r.address)
	if !amount.IsPositive() {
		return decimal.Zero, domain.ErrNoFees
	}
	if err := r.bank.Transfer(ctx, r.address, to, amount); err != nil {
		return decimal.Zero, err
	}

	r.logger.Info("fees withdrawn", "to", to, "amount", amount.String())
	a := domain.NewActivity(domain.ActivityFeesWithdrawn, "", caller, r.now())
	a.Counterparty = to
	a.Amount = amount
	r.recorder.Record(a)
	return amount, nil
}
