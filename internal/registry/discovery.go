package registry

import (
	"context"

	"example.com/fairticket/internal/domain"
	"example.com/fairticket/internal/engine"
	"example.com/fairticket/internal/metrics"
)

func (r *Registry) Address() domain.Address { return r.address }

func (r *Registry) EventCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *Registry) IsRegistered(handle domain.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[handle]
	return ok
}

func (r *Registry) Entry(handle domain.Address) (domain.EventEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[handle]
	if !ok {
		return domain.EventEntry{}, domain.ErrEventNotRegistered
	}
	return *e, nil
}

// Engine returns the deployed engine for handle.
func (r *Registry) Engine(handle domain.Address) (*engine.Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	eng, ok := r.engines[handle]
	if !ok {
		return nil, domain.ErrEventNotRegistered
	}
	return eng, nil
}

// Events lists every entry in creation order.
func (r *Registry) Events() []domain.EventEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(r.order)
}

// EventsPaginated returns at most limit entries starting at offset, plus the
// total count. limit is capped at MaxPageSize.
func (r *Registry) EventsPaginated(offset, limit int) ([]domain.EventEntry, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := len(r.order)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset >= total {
		return []domain.EventEntry{}, total
	}
	end := min(offset+limit, total)
	return r.collect(r.order[offset:end]), total
}

func (r *Registry) EventsByOrganizer(organizer domain.Address) []domain.EventEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(r.byOrganizer[organizer])
}

func (r *Registry) EventsByStatus(status domain.EventStatus) []domain.EventEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(r.byStatus[status])
}

// collect copies the entries for handles. Caller holds r.mu.
func (r *Registry) collect(handles []domain.Address) []domain.EventEntry {
	out := make([]domain.EventEntry, 0, len(handles))
	for _, h := range handles {
		out = append(out, *r.entries[h])
	}
	return out
}

// SyncEventStatus copies the engine's cancellation state into the registry
// entry. Anyone may call it.
func (r *Registry) SyncEventStatus(ctx context.Context, handle domain.Address) (entry domain.EventEntry, err error) {
	defer func() { metrics.ObserveRegistry("sync_event_status", err) }()

	r.mu.Lock()
	e, ok := r.entries[handle]
	if !ok {
		r.mu.Unlock()
		return domain.EventEntry{}, domain.ErrEventNotRegistered
	}
	status := domain.EventStatusActive
	if r.engines[handle].IsCancelled() {
		status = domain.EventStatusCancelled
	}
	before := e.Status
	if before != status {
		r.byStatus[before] = remove(r.byStatus[before], handle)
		r.byStatus[status] = append(r.byStatus[status], handle)
		e.Status = status
	}
	entry = *e
	r.mu.Unlock()

	if before != status {
		r.logger.Info("event status synced", "handle", handle, "before", before, "after", status)
		a := domain.NewActivity(domain.ActivityStatusSynced, handle, r.address, r.now())
		a.Detail = map[string]any{"before": string(before), "after": string(status)}
		r.recorder.Record(a)
	}
	return entry, nil
}

func remove(handles []domain.Address, h domain.Address) []domain.Address {
	for i, x := range handles {
		if x == h {
			return append(handles[:i:i], handles[i+1:]...)
		}
	}
	return handles
}
