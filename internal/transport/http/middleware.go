package transporthttp

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"example.com/fairticket/internal/domain"
	"example.com/fairticket/internal/idempotency"
	"example.com/fairticket/internal/metrics"
	"example.com/fairticket/internal/telemetry"
)

const (
	headerCaller         = "X-Caller-Address"
	headerAPIKey         = "X-API-Key"
	headerRequestID      = "X-Request-ID"
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	principalKey
)

// RequestIDFromContext returns the id assigned by RequestID, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// BodyLimit limits request bodies to maxBytes.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireJSON ensures Content-Type is application/json for POST and PUT.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if (r.Method == http.MethodPost || r.Method == http.MethodPut) && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeCodedProblem(w, http.StatusUnsupportedMediaType, codeUnsupportedMedia, "expected application/json")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func principalFrom(ctx context.Context) (domain.Address, bool) {
	p, ok := ctx.Value(principalKey).(domain.Address)
	return p, ok
}

// APIKeyAuth maps each X-API-Key value to the principal it authenticates; if
// the map is empty, auth is bypassed and X-Caller-Address is trusted as sent.
// With auth on, the key's principal is the caller. A differing
// X-Caller-Address is refused.
func APIKeyAuth(principals map[string]domain.Address) func(http.Handler) http.Handler {
	if len(principals) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := principals[r.Header.Get(headerAPIKey)]
			if !ok {
				writeCodedProblem(w, http.StatusUnauthorized, codeUnauthorized, "invalid or missing API key")
				return
			}
			if c := domain.NormalizeAddress(r.Header.Get(headerCaller)); !c.IsZero() && c != principal {
				writeCodedProblem(w, http.StatusForbidden, codeCallerMismatch, "API key does not authenticate "+string(c))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, principal)))
		})
	}
}

// actingAddress is the authenticated principal if there is one, otherwise
// the trimmed X-Caller-Address.
func actingAddress(r *http.Request) domain.Address {
	if p, ok := principalFrom(r.Context()); ok {
		return p
	}
	return domain.NormalizeAddress(r.Header.Get(headerCaller))
}

// Global leaky bucket shared by every request through the wrapped handler.
type rateState struct {
	mu             sync.Mutex
	tokens         float64
	lastRefillNano int64
}

func RateLimitPerMinute(limitPerMin int, clock func() time.Time) func(http.Handler) http.Handler {
	if limitPerMin <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	state := &rateState{tokens: float64(limitPerMin), lastRefillNano: clock().UnixNano()}
	capacity := float64(limitPerMin)
	refillPerSec := float64(limitPerMin) / 60.0

	allow := func() bool {
		state.mu.Lock()
		defer state.mu.Unlock()
		now := clock()
		elapsed := float64(now.UnixNano()-state.lastRefillNano) / 1e9
		state.lastRefillNano = now.UnixNano()

		state.tokens += elapsed * refillPerSec
		if state.tokens > capacity {
			state.tokens = capacity
		}
		if state.tokens < 1.0 {
			return false
		}
		state.tokens -= 1.0
		return true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			if !allow() {
				w.Header().Set("Retry-After", "3")
				writeCodedProblem(w, http.StatusTooManyRequests, codeRateLimited, "try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// DrainBody fully reads and closes request bodies (handler helper).
func DrainBody(r *http.Request) {
	if r.Body != nil {
		_, _ = io.Copy(io.Discard, r.Body)
		_ = r.Body.Close()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RequestID propagates X-Request-ID or assigns a fresh UUID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(headerRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// RequestLogger logs basic request details and latency.
func RequestLogger(next http.Handler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"request_id", RequestIDFromContext(r.Context()),
		}
		if caller := r.Header.Get(headerCaller); caller != "" {
			attrs = append(attrs, "caller", caller)
		}
		logger.InfoContext(r.Context(), "request", attrs...)
	})
}

// Instrument records request count and latency under handlerName.
func Instrument(handlerName string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		metrics.HTTPRequestDuration.WithLabelValues(handlerName, r.Method).Observe(time.Since(start).Seconds())
		metrics.HTTPRequestsTotal.WithLabelValues(handlerName, r.Method, strconv.Itoa(rec.status)).Inc()
	})
}

// Tracing starts a server span named spanName, continuing any W3C trace
// context the client sent.
func Tracing(spanName string, next http.Handler) http.Handler {
	tracer := telemetry.Tracer("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
			),
		)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.response.status_code", rec.status))
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}
	})
}

type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

// Idempotency replays the stored response when a mutating request repeats an
// Idempotency-Key. Reusing a key with a different request is a conflict.
// Requests without the header pass through untouched; only 2xx responses are
// stored.
func Idempotency(cache *idempotency.Cache) func(http.Handler) http.Handler {
	if cache == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(headerIdempotencyKey)
			if strings.TrimSpace(header) == "" || (r.Method != http.MethodPost && r.Method != http.MethodPut) {
				next.ServeHTTP(w, r)
				return
			}
			body, err := io.ReadAll(r.Body)
			if err != nil {
				writeCodedProblem(w, http.StatusBadRequest, codeInvalidJSON, err.Error())
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			req := idempotency.Request{
				Header: header,
				Caller: string(actingAddress(r)),
				Method: r.Method,
				Path:   r.URL.Path,
				Body:   body,
			}
			key, _ := idempotency.DeriveKey(req)
			fp := idempotency.Fingerprint(req)

			if prev, ok := cache.Get(key); ok {
				if prev.Fingerprint != fp {
					writeCodedProblem(w, http.StatusConflict, codeIdempotencyConflict, "idempotency key reused with a different request")
					return
				}
				w.Header().Set("Content-Type", prev.ContentType)
				w.Header().Set(headerReplayed, "true")
				w.WriteHeader(prev.Status)
				_, _ = w.Write(prev.Body)
				return
			}

			cw := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(cw, r)
			if cw.status >= 200 && cw.status < 300 {
				cache.Put(key, idempotency.Response{
					Status:      cw.status,
					ContentType: cw.Header().Get("Content-Type"),
					Body:        cw.body.Bytes(),
					Fingerprint: fp,
				})
			}
		})
	}
}
