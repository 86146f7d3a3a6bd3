package transporthttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/fairticket/internal/config"
	"example.com/fairticket/internal/domain"
	"example.com/fairticket/internal/idempotency"
	"example.com/fairticket/internal/ledger"
	"example.com/fairticket/internal/registry"
	spg "example.com/fairticket/internal/storage/postgres"
)

// StatsStore answers activity aggregate queries.
type StatsStore interface {
	QueryTotals(ctx context.Context, f spg.StatsFilter) (spg.StatsTotals, error)
	QueryBucketsDaily(ctx context.Context, f spg.StatsFilter) ([]spg.StatsBucket, error)
}

type Pinger interface {
	Ready(ctx context.Context) error
}

type ServerDeps struct {
	Cfg       config.Config
	Ledger    *ledger.Ledger
	Registry  *registry.Registry
	Sequencer *ledger.Sequencer
	// Stats and DB are nil when persistence is disabled.
	Stats       StatsStore
	DB          Pinger
	Idempotency *idempotency.Cache
	Gatherer    prometheus.Gatherer
	Logger      *slog.Logger
	Now         func() time.Time
}

func decodeJSONStrict(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// callerFrom resolves the acting address: the API key's principal when auth
// is on, else X-Caller-Address. The registry and its engines never act
// through the API.
func (d *ServerDeps) callerFrom(w http.ResponseWriter, r *http.Request) (domain.Address, bool) {
	c := actingAddress(r)
	if c.IsZero() {
		writeCodedProblem(w, http.StatusBadRequest, codeMissingCaller, headerCaller+" header is required")
		return "", false
	}
	if d.Registry.IsReserved(c) {
		d.fail(w, r, domain.ErrInvalidAddress)
		return "", false
	}
	return c, true
}

// addrParam reads an address path value without surrounding whitespace.
func addrParam(r *http.Request, name string) domain.Address {
	return domain.NormalizeAddress(r.PathValue(name))
}

func ticketIDFrom(w http.ResponseWriter, r *http.Request) (domain.TicketID, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeCodedProblem(w, http.StatusBadRequest, codeInvalidParameters, "ticket id must be a positive integer")
		return 0, false
	}
	return domain.TicketID(id), true
}

// exec runs fn on the sequencer so it completes before any other call
// starts.
func (d *ServerDeps) exec(r *http.Request, fn func(ctx context.Context) error) error {
	return d.Sequencer.Do(r.Context(), fn)
}

func (d *ServerDeps) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, d.Logger, err)
}

// --- Health ---

func (d *ServerDeps) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (d *ServerDeps) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if d.DB != nil {
		if err := d.DB.Ready(r.Context()); err != nil {
			writeCodedProblem(w, http.StatusServiceUnavailable, codeNotReady, "database not reachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// --- Router ---

func (d *ServerDeps) Router() http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	keys := d.Cfg.APIKeyPrincipals()

	mux := http.NewServeMux()
	route := func(pattern, name string, h http.HandlerFunc, mws ...func(http.Handler) http.Handler) {
		var handler http.Handler = h
		for _, mw := range mws {
			handler = mw(handler)
		}
		mux.Handle(pattern, Tracing(name, Instrument(name, handler)))
	}
	mutating := []func(http.Handler) http.Handler{
		Idempotency(d.Idempotency),
		RequireJSON,
		APIKeyAuth(keys),
	}

	mux.HandleFunc("GET /healthz", d.HandleHealthz)
	mux.HandleFunc("GET /readyz", d.HandleReadyz)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	route("POST /ledger/deposit", "ledger_deposit", d.HandleDeposit, mutating...)
	route("GET /ledger/balances/{address}", "ledger_balance", d.HandleGetBalance)

	route("GET /registry/policy", "registry_policy_get", d.HandleGetPolicy)
	route("PUT /registry/policy", "registry_policy_put", d.HandlePutPolicy, mutating...)
	route("POST /registry/ownership", "registry_ownership", d.HandleTransferOwnership, mutating...)
	route("POST /registry/fees/withdraw", "registry_fees_withdraw", d.HandleWithdrawFees, mutating...)
	route("POST /registry/events", "registry_create_event", d.HandleCreateEvent, mutating...)
	route("POST /registry/events/batch", "registry_batch_create", d.HandleBatchCreateEvents, mutating...)
	route("GET /registry/events", "registry_list_events", d.HandleListEvents)
	route("POST /registry/events/{handle}/sync", "registry_sync_status", d.HandleSyncEventStatus, APIKeyAuth(keys))

	route("GET /events/{handle}", "event_info", d.HandleGetEvent)
	route("GET /events/{handle}/contract-uri", "event_contract_uri", d.HandleContractURI)
	route("GET /events/{handle}/holders/{address}/tickets", "event_holder_tickets", d.HandleHolderTickets)
	route("POST /events/{handle}/mint", "event_mint", d.HandleMint, mutating...)
	route("POST /events/{handle}/cancel", "event_cancel", d.HandleCancelEvent, mutating...)
	route("POST /events/{handle}/operators", "event_set_operator", d.HandleSetApprovalForAll, mutating...)
	route("GET /events/{handle}/tickets/{id}", "ticket_descriptor", d.HandleGetTicket)
	route("GET /events/{handle}/tickets/{id}/uri", "ticket_uri", d.HandleTicketURI)
	route("POST /events/{handle}/tickets/{id}/resale", "ticket_resale", d.HandleResale, mutating...)
	route("POST /events/{handle}/tickets/{id}/refund", "ticket_refund", d.HandleRefund, mutating...)
	route("POST /events/{handle}/tickets/{id}/cancel-refund", "ticket_cancel_refund", d.HandleCancelRefund, mutating...)
	route("POST /events/{handle}/tickets/{id}/check-in", "ticket_check_in", d.HandleCheckIn, mutating...)
	route("POST /events/{handle}/tickets/{id}/approve", "ticket_approve", d.HandleApprove, mutating...)
	route("POST /events/{handle}/tickets/{id}/transfer", "ticket_transfer", d.HandleTransfer, mutating...)

	route("GET /activity/stats", "activity_stats", d.HandleGetStats,
		RateLimitPerMinute(d.Cfg.RateLimitStatsPerMin, d.Now),
		APIKeyAuth(keys),
	)

	var h http.Handler = mux
	h = BodyLimit(d.Cfg.MaxBodyBytes)(h)
	h = RequestLogger(h, d.Logger)
	h = RequestID(h)
	return h
}
