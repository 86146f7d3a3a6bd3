package transporthttp

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"example.com/fairticket/internal/domain"
	"example.com/fairticket/internal/engine"
)

func (d *ServerDeps) engineFor(w http.ResponseWriter, r *http.Request) (*engine.Engine, bool) {
	eng, err := d.Registry.Engine(addrParam(r, "handle"))
	if err != nil {
		d.fail(w, r, err)
		return nil, false
	}
	return eng, true
}

// --- Reads ---

func (d *ServerDeps) HandleGetEvent(w http.ResponseWriter, r *http.Request) {
	eng, ok := d.engineFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, eng.EventInfo())
}

func (d *ServerDeps) HandleContractURI(w http.ResponseWriter, r *http.Request) {
	eng, ok := d.engineFor(w, r)
	if !ok {
		return
	}
	uri, err := eng.ContractURI()
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"uri": uri})
}

func (d *ServerDeps) HandleHolderTickets(w http.ResponseWriter, r *http.Request) {
	eng, ok := d.engineFor(w, r)
	if !ok {
		return
	}
	holder := addrParam(r, "address")
	ids := eng.TicketsOf(holder)
	if ids == nil {
		ids = []domain.TicketID{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"holder": holder, "tickets": ids})
}

func (d *ServerDeps) HandleGetTicket(w http.ResponseWriter, r *http.Request) {
	eng, ok := d.engineFor(w, r)
	if !ok {
		return
	}
	id, ok := ticketIDFrom(w, r)
	if !ok {
		return
	}
	desc, err := eng.TicketDescriptor(id)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, desc)
}

func (d *ServerDeps) HandleTicketURI(w http.ResponseWriter, r *http.Request) {
	eng, ok := d.engineFor(w, r)
	if !ok {
		return
	}
	id, ok := ticketIDFrom(w, r)
	if !ok {
		return
	}
	uri, err := eng.TokenURI(id)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "uri": uri})
}

// --- Lifecycle ---

type valueReq struct {
	Value decimal.Decimal `json:"value"`
}

func (d *ServerDeps) HandleMint(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	caller, ok := d.callerFrom(w, r)
	if !ok {
		return
	}
	eng, ok := d.engineFor(w, r)
	if !ok {
		return
	}
	var req valueReq
	if err := decodeJSONStrict(r, &req); err != nil {
		writeCodedProblem(w, http.StatusBadRequest, codeInvalidJSON, err.Error())
		return
	}
	var id domain.TicketID
	err := d.exec(r, func(ctx context.Context) error {
		var err error
		id, err = eng.Mint(ctx, caller, req.Value)
		return err
	})
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "holder": caller, "price": req.Value})
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (d *ServerDeps) HandleCancelEvent(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	caller, ok := d.callerFrom(w, r)
	if !ok {
		return
	}
	eng, ok := d.engineFor(w, r)
	if !ok {
		return
	}
	var req cancelReq
	if err := decodeJSONStrict(r, &req); err != nil {
		writeCodedProblem(w, http.StatusBadRequest, codeInvalidJSON, err.Error())
		return
	}
	err := d.exec(r, func(ctx context.Context) error {
		if err := eng.CancelEvent(ctx, caller, req.Reason); err != nil {
			return err
		}
		// Keep the registry index in step so discovery by status is current.
		_, err := d.Registry.SyncEventStatus(ctx, eng.Address())
		return err
	})
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eng.EventInfo())
}

type operatorReq struct {
	Operator domain.Address `json:"operator"`
	Approved bool           `json:"approved"`
}

func (d *ServerDeps) HandleSetApprovalForAll(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	caller, ok := d.callerFrom(w, r)
	if !ok {
		return
	}
	eng, ok := d.engineFor(w, r)
	if !ok {
		return
	}
	var req operatorReq
	if err := decodeJSONStrict(r, &req); err != nil {
		writeCodedProblem(w, http.StatusBadRequest, codeInvalidJSON, err.Error())
		return
	}
	err := d.exec(r, func(ctx context.Context) error {
		return eng.SetApprovalForAll(ctx, caller, req.Operator, req.Approved)
	})
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"holder": caller, "operator": req.Operator, "approved": req.Approved})
}

// --- Ticket operations ---

// ticketCall resolves caller, engine, and ticket id, then decodes the body
// into req when it is non-nil.
func (d *ServerDeps) ticketCall(w http.ResponseWriter, r *http.Request, req any) (domain.Address, *engine.Engine, domain.TicketID, bool) {
	caller, ok := d.callerFrom(w, r)
	if !ok {
		return "", nil, 0, false
	}
	eng, ok := d.engineFor(w, r)
	if !ok {
		return "", nil, 0, false
	}
	id, ok := ticketIDFrom(w, r)
	if !ok {
		return "", nil, 0, false
	}
	if req != nil {
		if err := decodeJSONStrict(r, req); err != nil {
			writeCodedProblem(w, http.StatusBadRequest, codeInvalidJSON, err.Error())
			return "", nil, 0, false
		}
	}
	return caller, eng, id, true
}

type resaleReq struct {
	Price decimal.Decimal `json:"price"`
	Value decimal.Decimal `json:"value"`
}

func (d *ServerDeps) HandleResale(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	var req resaleReq
	caller, eng, id, ok := d.ticketCall(w, r, &req)
	if !ok {
		return
	}
	err := d.exec(r, func(ctx context.Context) error {
		return eng.ResaleTicket(ctx, caller, id, req.Price, req.Value)
	})
	if err != nil {
		d.fail(w, r, err)
		return
	}
	proceeds, fee := domain.SplitResale(req.Price, eng.Config().OrganizerFeePercent)
	writeJSON(w, http.StatusOK, map[string]any{
		"id":              id,
		"holder":          caller,
		"price":           req.Price,
		"seller_proceeds": proceeds,
		"organizer_fee":   fee,
	})
}

func (d *ServerDeps) HandleRefund(w http.ResponseWriter, r *http.Request) {
	d.handleRefund(w, r, (*engine.Engine).Refund)
}

func (d *ServerDeps) HandleCancelRefund(w http.ResponseWriter, r *http.Request) {
	d.handleRefund(w, r, (*engine.Engine).CancelRefund)
}

type refundFunc func(e *engine.Engine, ctx context.Context, caller domain.Address, id domain.TicketID) (decimal.Decimal, error)

func (d *ServerDeps) handleRefund(w http.ResponseWriter, r *http.Request, refund refundFunc) {
	defer DrainBody(r)
	caller, eng, id, ok := d.ticketCall(w, r, nil)
	if !ok {
		return
	}
	var amount decimal.Decimal
	err := d.exec(r, func(ctx context.Context) error {
		var err error
		amount, err = refund(eng, ctx, caller, id)
		return err
	})
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "to": caller, "amount": amount})
}

func (d *ServerDeps) HandleCheckIn(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	caller, eng, id, ok := d.ticketCall(w, r, nil)
	if !ok {
		return
	}
	err := d.exec(r, func(ctx context.Context) error {
		return eng.CheckIn(ctx, caller, id)
	})
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "checked_in": true})
}

type approveReq struct {
	To domain.Address `json:"to"`
}

func (d *ServerDeps) HandleApprove(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	var req approveReq
	caller, eng, id, ok := d.ticketCall(w, r, &req)
	if !ok {
		return
	}
	err := d.exec(r, func(ctx context.Context) error {
		return eng.Approve(ctx, caller, req.To, id)
	})
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "approved": req.To})
}

type transferReq struct {
	From domain.Address `json:"from"`
	To   domain.Address `json:"to"`
}

// HandleTransfer exists so clients get an explicit answer: tickets only move
// through resale.
func (d *ServerDeps) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	var req transferReq
	caller, eng, id, ok := d.ticketCall(w, r, &req)
	if !ok {
		return
	}
	if req.From.IsZero() {
		req.From = caller
	}
	d.fail(w, r, eng.TransferFrom(r.Context(), caller, req.From, req.To, id))
}
