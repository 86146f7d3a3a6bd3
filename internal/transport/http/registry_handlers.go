package transporthttp

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"example.com/fairticket/internal/domain"
	"example.com/fairticket/internal/registry"
)

// --- Ledger ---

type depositReq struct {
	Address domain.Address  `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
}

type balanceResp struct {
	Address domain.Address  `json:"address"`
	Balance decimal.Decimal `json:"balance"`
}

func (d *ServerDeps) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	var req depositReq
	if err := decodeJSONStrict(r, &req); err != nil {
		writeCodedProblem(w, http.StatusBadRequest, codeInvalidJSON, err.Error())
		return
	}
	var bal decimal.Decimal
	err := d.exec(r, func(context.Context) error {
		// Custody only grows through the engine's own operations.
		if d.Registry.IsReserved(req.Address) {
			return domain.ErrInvalidAddress
		}
		if err := d.Ledger.Deposit(req.Address, req.Amount); err != nil {
			return err
		}
		bal = d.Ledger.BalanceOf(req.Address)
		return nil
	})
	if err != nil {
		d.fail(w, r, err)
		return
	}
	d.Logger.Info("deposit", "address", req.Address, "amount", req.Amount.String())
	writeJSON(w, http.StatusOK, balanceResp{Address: req.Address, Balance: bal})
}

func (d *ServerDeps) HandleGetBalance(w http.ResponseWriter, r *http.Request) {
	addr := addrParam(r, "address")
	writeJSON(w, http.StatusOK, balanceResp{Address: addr, Balance: d.Ledger.BalanceOf(addr)})
}

// --- Registry policy and administration ---

type policyResp struct {
	Owner         domain.Address  `json:"owner"`
	Policy        registry.Policy `json:"policy"`
	CollectedFees decimal.Decimal `json:"collected_fees"`
	EventCount    int             `json:"event_count"`
}

func (d *ServerDeps) HandleGetPolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, policyResp{
		Owner:         d.Registry.Owner(),
		Policy:        d.Registry.Policy(),
		CollectedFees: d.Registry.CollectedFees(),
		EventCount:    d.Registry.EventCount(),
	})
}

func (d *ServerDeps) HandlePutPolicy(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	caller, ok := d.callerFrom(w, r)
	if !ok {
		return
	}
	var u registry.PolicyUpdate
	if err := decodeJSONStrict(r, &u); err != nil {
		writeCodedProblem(w, http.StatusBadRequest, codeInvalidJSON, err.Error())
		return
	}
	var changes []registry.PolicyChange
	err := d.exec(r, func(ctx context.Context) error {
		var err error
		changes, err = d.Registry.UpdatePolicy(ctx, caller, u)
		return err
	})
	if err != nil {
		d.fail(w, r, err)
		return
	}
	if changes == nil {
		changes = []registry.PolicyChange{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"policy":  d.Registry.Policy(),
		"changes": changes,
	})
}

type ownershipReq struct {
	NewOwner domain.Address `json:"new_owner"`
}

func (d *ServerDeps) HandleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	caller, ok := d.callerFrom(w, r)
	if !ok {
		return
	}
	var req ownershipReq
	if err := decodeJSONStrict(r, &req); err != nil {
		writeCodedProblem(w, http.StatusBadRequest, codeInvalidJSON, err.Error())
		return
	}
	err := d.exec(r, func(ctx context.Context) error {
		return d.Registry.TransferOwnership(ctx, caller, req.NewOwner)
	})
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": req.NewOwner})
}

type withdrawReq struct {
	To domain.Address `json:"to"`
}

func (d *ServerDeps) HandleWithdrawFees(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	caller, ok := d.callerFrom(w, r)
	if !ok {
		return
	}
	var req withdrawReq
	if err := decodeJSONStrict(r, &req); err != nil {
		writeCodedProblem(w, http.StatusBadRequest, codeInvalidJSON, err.Error())
		return
	}
	if req.To.IsZero() {
		req.To = caller
	}
	var amount decimal.Decimal
	err := d.exec(r, func(ctx context.Context) error {
		var err error
		amount, err = d.Registry.WithdrawFees(ctx, caller, req.To)
		return err
	})
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"to": req.To, "amount": amount})
}

// --- Event creation ---

type createEventReq struct {
	registry.CreateEventParams
	Value decimal.Decimal `json:"value"`
}

func (d *ServerDeps) HandleCreateEvent(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	caller, ok := d.callerFrom(w, r)
	if !ok {
		return
	}
	var req createEventReq
	if err := decodeJSONStrict(r, &req); err != nil {
		writeCodedProblem(w, http.StatusBadRequest, codeInvalidJSON, err.Error())
		return
	}
	var entry domain.EventEntry
	err := d.exec(r, func(ctx context.Context) error {
		var err error
		entry, err = d.Registry.CreateEvent(ctx, caller, req.CreateEventParams, req.Value)
		return err
	})
	if err != nil {
		d.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/events/"+entry.Handle.String())
	writeJSON(w, http.StatusCreated, entry)
}

type batchCreateReq struct {
	Events []registry.CreateEventParams `json:"events"`
	Value  decimal.Decimal              `json:"value"`
}

func (d *ServerDeps) HandleBatchCreateEvents(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	caller, ok := d.callerFrom(w, r)
	if !ok {
		return
	}
	var req batchCreateReq
	if err := decodeJSONStrict(r, &req); err != nil {
		writeCodedProblem(w, http.StatusBadRequest, codeInvalidJSON, err.Error())
		return
	}
	var entries []domain.EventEntry
	err := d.exec(r, func(ctx context.Context) error {
		var err error
		entries, err = d.Registry.BatchCreateEvents(ctx, caller, req.Events, req.Value)
		return err
	})
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"created_count": len(entries),
		"events":        entries,
	})
}

// --- Discovery ---

type listEventsResp struct {
	Total  int                 `json:"total"`
	Offset int                 `json:"offset"`
	Limit  int                 `json:"limit"`
	Events []domain.EventEntry `json:"events"`
}

func (d *ServerDeps) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, err := queryInt(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		writeCodedProblem(w, http.StatusBadRequest, codeInvalidParameters, "offset must be a non-negative integer")
		return
	}
	limit, err := queryInt(q.Get("limit"), registry.MaxPageSize)
	if err != nil || limit <= 0 {
		writeCodedProblem(w, http.StatusBadRequest, codeInvalidParameters, "limit must be a positive integer")
		return
	}
	limit = min(limit, registry.MaxPageSize)

	organizer := domain.Address(strings.TrimSpace(q.Get("organizer")))
	statusStr := strings.TrimSpace(q.Get("status"))

	if organizer.IsZero() && statusStr == "" {
		events, total := d.Registry.EventsPaginated(offset, limit)
		writeJSON(w, http.StatusOK, listEventsResp{Total: total, Offset: offset, Limit: limit, Events: events})
		return
	}

	var filtered []domain.EventEntry
	if statusStr != "" {
		status, ok := domain.ParseEventStatus(statusStr)
		if !ok {
			writeCodedProblem(w, http.StatusBadRequest, codeInvalidParameters, "status must be active or cancelled")
			return
		}
		filtered = d.Registry.EventsByStatus(status)
		if !organizer.IsZero() {
			kept := filtered[:0]
			for _, e := range filtered {
				if e.Organizer == organizer {
					kept = append(kept, e)
				}
			}
			filtered = kept
		}
	} else {
		filtered = d.Registry.EventsByOrganizer(organizer)
	}

	total := len(filtered)
	page := []domain.EventEntry{}
	if offset < total {
		page = filtered[offset:min(offset+limit, total)]
	}
	writeJSON(w, http.StatusOK, listEventsResp{Total: total, Offset: offset, Limit: limit, Events: page})
}

func (d *ServerDeps) HandleSyncEventStatus(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	handle := addrParam(r, "handle")
	var entry domain.EventEntry
	err := d.exec(r, func(ctx context.Context) error {
		var err error
		entry, err = d.Registry.SyncEventStatus(ctx, handle)
		return err
	})
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func queryInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
