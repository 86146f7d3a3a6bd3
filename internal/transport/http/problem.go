package transporthttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"example.com/fairticket/internal/domain"
	"example.com/fairticket/internal/ledger"
	"example.com/fairticket/internal/telemetry"
)

// Problem is an RFC 7807 problem document. Meta["code"] carries the stable
// error code clients should switch on.
type Problem struct {
	Type     string              `json:"type,omitempty"`
	Title    string              `json:"title,omitempty"`
	Status   int                 `json:"status,omitempty"`
	Detail   string              `json:"detail,omitempty"`
	Instance string              `json:"instance,omitempty"`
	Errors   map[string][]string `json:"errors,omitempty"`
	Meta     map[string]any      `json:"meta,omitempty"`
}

const (
	codeInvalidJSON         = "invalid_json"
	codeInvalidParameters   = "invalid_parameters"
	codeMissingCaller       = "missing_caller"
	codeUnsupportedMedia    = "unsupported_media_type"
	codeUnauthorized        = "unauthorized"
	codeCallerMismatch      = "caller_mismatch"
	codeRateLimited         = "rate_limited"
	codeNotReady            = "not_ready"
	codeStatsUnavailable    = "stats_unavailable"
	codeIdempotencyConflict = "idempotency_conflict"
)

func WriteProblem(w http.ResponseWriter, status int, title, detail string, errs map[string][]string) {
	writeProblemDoc(w, Problem{Title: title, Status: status, Detail: detail, Errors: errs})
}

func writeCodedProblem(w http.ResponseWriter, status int, code, detail string) {
	writeProblemDoc(w, Problem{
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
		Meta:   map[string]any{"code": code},
	})
}

func writeProblemDoc(w http.ResponseWriter, p Problem) {
	if p.Type == "" {
		p.Type = "about:blank"
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrTicketNotFound),
		errors.Is(err, domain.ErrEventNotRegistered):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotTicketOwner),
		errors.Is(err, domain.ErrNotOrganizer),
		errors.Is(err, domain.ErrNotOwner),
		errors.Is(err, domain.ErrNotApproved),
		errors.Is(err, domain.ErrTransfersDisabled):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrIncorrectPayment),
		errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrBelowMinimumResalePrice),
		errors.Is(err, domain.ErrExceedsResaleCap):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrEventSoldOut),
		errors.Is(err, domain.ErrEventCancelled),
		errors.Is(err, domain.ErrEventNotCancelled),
		errors.Is(err, domain.ErrTicketAlreadyUsed),
		errors.Is(err, domain.ErrCannotBuyOwnTicket),
		errors.Is(err, domain.ErrReentrantCall),
		errors.Is(err, domain.ErrRegistryPaused),
		errors.Is(err, domain.ErrInsufficientContractBalance),
		errors.Is(err, domain.ErrCustodySurplus),
		errors.Is(err, domain.ErrNoFees):
		return http.StatusConflict
	case errors.Is(err, domain.ErrEmptyReason),
		errors.Is(err, domain.ErrInvalidAddress),
		errors.Is(err, domain.ErrEmptyName),
		errors.Is(err, domain.ErrFieldTooLong),
		errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrInvalidPercentage),
		errors.Is(err, domain.ErrInvalidTicketCount),
		errors.Is(err, domain.ErrBatchTooLarge),
		errors.Is(err, domain.ErrEmptyBatch),
		errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrSequencerStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as a problem document. Validation failures list
// their field errors; internal errors are logged and their text withheld.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := statusFor(err)
	code := domain.ErrorCode(err)
	if errors.Is(err, ledger.ErrSequencerStopped) {
		code = "unavailable"
	}
	p := Problem{
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   err.Error(),
		Instance: r.URL.Path,
		Meta:     map[string]any{"code": code},
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		p.Errors = map[string][]string{}
		for _, fe := range ve.Fields {
			p.Errors[fe.Field] = append(p.Errors[fe.Field], fe.Msg)
		}
	}
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()),
			"trace_id", telemetry.TraceID(r.Context()),
			"error", err,
		)
		p.Detail = "internal error"
	}
	writeProblemDoc(w, p)
}
