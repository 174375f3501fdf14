// Package httpapi exposes the engine over HTTP.
//
// The caller identity travels in headers set by the fronting gateway:
// X-Tiplink-Caller names the invoking account, X-Tiplink-Signer the
// transaction signer (defaults to the caller) and X-Tiplink-Deposit the
// attached value in base units (defaults to zero).
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/roach88/tiplink/internal/engine"
	"github.com/roach88/tiplink/internal/ir"
	"github.com/roach88/tiplink/internal/registry"
)

const (
	HeaderCaller  = "X-Tiplink-Caller"
	HeaderSigner  = "X-Tiplink-Signer"
	HeaderDeposit = "X-Tiplink-Deposit"
)

// DefaultTransferPage bounds GET /v1/transfers when no limit is given.
const DefaultTransferPage = 100

type handler struct {
	engine *engine.Engine
	logger *zap.Logger
}

// Option configures NewHandler.
type Option func(*options)

type options struct {
	logger  *zap.Logger
	metrics http.Handler
}

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(o *options) { o.metrics = h }
}

// NewHandler returns a router exposing e under /v1.
func NewHandler(e *engine.Engine, opts ...Option) http.Handler {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	h := &handler{engine: e, logger: o.logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if o.metrics != nil {
		r.Method(http.MethodGet, "/metrics", o.metrics)
	}

	r.Route("/v1", func(api chi.Router) {
		api.Get("/params", h.params)
		api.Get("/links", h.links)

		api.Route("/requests", func(rr chi.Router) {
			rr.Post("/", h.submit)
			rr.Get("/pending", h.pending)
			rr.Get("/{id}", h.request)
			rr.Get("/{id}/status", h.status)
			rr.Post("/{id}/approve", h.approve)
			rr.Post("/{id}/reject", h.reject)
		})

		api.Post("/tips", h.tip)
		api.Get("/tips/items", h.itemTotal)
		api.Get("/tips/accounts", h.accountTotal)
		api.Post("/claims", h.claim)
		api.Get("/transfers", h.transfers)

		api.Route("/admin", func(ar chi.Router) {
			ar.Post("/owner", h.setOwner)
			ar.Post("/oracle", h.setOracle)
			ar.Post("/minimum-stake", h.setMinimumStake)
			ar.Post("/unlink-all", h.unlinkAll)
		})
	})
	return r
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// callFrom reads the call context headers.
func callFrom(r *http.Request) (ir.Call, error) {
	caller := ir.InternalAccount(r.Header.Get(HeaderCaller))
	if caller == "" {
		return ir.Call{}, ir.Errorf(ir.CodeInvalidArgument, "%s header is required", HeaderCaller)
	}
	signer := ir.InternalAccount(r.Header.Get(HeaderSigner))
	if signer == "" {
		signer = caller
	}
	deposit := ir.ZeroAmount
	if raw := r.Header.Get(HeaderDeposit); raw != "" {
		var err error
		if deposit, err = ir.ParseAmount(raw); err != nil {
			return ir.Call{}, err
		}
	}
	return ir.Call{Caller: caller, Signer: signer, Deposit: deposit}, nil
}

func requestID(r *http.Request) (ir.RequestID, error) {
	raw := chi.URLParam(r, "id")
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, ir.Errorf(ir.CodeInvalidArgument, "invalid request id %q", raw)
	}
	return ir.RequestID(n), nil
}

func decodeJSON(body io.ReadCloser, dst any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return ir.Errorf(ir.CodeInvalidArgument, "invalid request body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// StatusFor maps a contract error code to an HTTP status.
func StatusFor(code ir.ErrorCode) int {
	switch code {
	case ir.CodeUnauthorized, ir.CodeCrossCallNotAllowed:
		return http.StatusForbidden
	case ir.CodeRequestNotFound:
		return http.StatusNotFound
	case ir.CodeRequestAlreadyProcessed, ir.CodeAlreadyLinked, ir.CodeNotLinked, ir.CodeAlreadyInitialized:
		return http.StatusConflict
	case ir.CodeInvalidArgument:
		return http.StatusBadRequest
	case ir.CodeInsufficientStake, ir.CodeNoLinkedAccount, ir.CodeNothingToClaim,
		ir.CodeAmountOverflow, ir.CodeNotInitialized:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) writeError(w http.ResponseWriter, err error) {
	var ce *ir.ContractError
	if errors.As(err, &ce) {
		writeJSON(w, StatusFor(ce.Code), map[string]errorBody{
			"error": {Code: string(ce.Code), Message: ce.Message, Details: ce.Details},
		})
		return
	}
	h.logger.Error("request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]errorBody{
		"error": {Code: "INTERNAL", Message: "internal error"},
	})
}

func (h *handler) params(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, err := h.engine.Owner(ctx)
	if err != nil {
		h.writeError(w, err)
		return
	}
	oracle, err := h.engine.Oracle(ctx)
	if err != nil {
		h.writeError(w, err)
		return
	}
	stake, err := h.engine.MinimumStake(ctx)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":         owner,
		"oracle":        oracle,
		"minimum_stake": stake,
	})
}

// links lists every pair, or resolves one side when ?internal= or
// ?external= is given.
func (h *handler) links(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	switch {
	case q.Get("internal") != "":
		in := ir.InternalAccount(q.Get("internal"))
		ext, ok, err := h.engine.ExternalAccount(ctx, in)
		if err != nil {
			h.writeError(w, err)
			return
		}
		if !ok {
			h.writeError(w, ir.Errorf(ir.CodeNotLinked, "%s has no linked external account", in))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"internal": in, "external": ext})
	case q.Get("external") != "":
		ext := ir.ExternalAccount(q.Get("external"))
		in, ok, err := h.engine.InternalAccount(ctx, ext)
		if err != nil {
			h.writeError(w, err)
			return
		}
		if !ok {
			h.writeError(w, ir.Errorf(ir.CodeNotLinked, "%s has no linked internal account", ext))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"internal": in, "external": ext})
	default:
		links, err := h.engine.Links(ctx)
		if err != nil {
			h.writeError(w, err)
			return
		}
		if links == nil {
			links = []registry.Link{}
		}
		writeJSON(w, http.StatusOK, links)
	}
}

func (h *handler) submit(w http.ResponseWriter, r *http.Request) {
	call, err := callFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var payload struct {
		ExternalAccount ir.ExternalAccount `json:"external_account"`
		IsUnlink        bool               `json:"is_unlink"`
		ProofURL        string             `json:"proof_url"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	if payload.ExternalAccount == "" {
		h.writeError(w, ir.Errorf(ir.CodeInvalidArgument, "external_account is required"))
		return
	}
	sub, err := h.engine.Submit(r.Context(), call, payload.ExternalAccount, payload.IsUnlink, payload.ProofURL)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (h *handler) pending(w http.ResponseWriter, r *http.Request) {
	ids, err := h.engine.ListPending(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if ids == nil {
		ids = []ir.RequestID{}
	}
	writeJSON(w, http.StatusOK, ids)
}

func (h *handler) request(w http.ResponseWriter, r *http.Request) {
	id, err := requestID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	rec, err := h.engine.DescribeRequest(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// status never fails for a well-formed id; ids past the log report NotFound.
func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	id, err := requestID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	st, err := h.engine.GetStatus(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": st})
}

func (h *handler) approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.engine.Approve)
}

func (h *handler) reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.engine.Reject)
}

type decision func(ctx context.Context, caller ir.InternalAccount, id ir.RequestID) (ir.VerificationRequest, error)

func (h *handler) decide(w http.ResponseWriter, r *http.Request, fn decision) {
	call, err := callFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	id, err := requestID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	req, err := fn(r.Context(), call.Caller, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	st, err := h.engine.GetStatus(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": st, "request": req})
}

func (h *handler) tip(w http.ResponseWriter, r *http.Request) {
	call, err := callFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var payload struct {
		Recipient ir.ExternalAccount `json:"recipient"`
		Item      string             `json:"item"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	if payload.Recipient == "" {
		h.writeError(w, ir.Errorf(ir.CodeInvalidArgument, "recipient is required"))
		return
	}
	receipt, err := h.engine.SendTip(r.Context(), call, payload.Recipient, payload.Item)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (h *handler) itemTotal(w http.ResponseWriter, r *http.Request) {
	item := r.URL.Query().Get("item")
	total, err := h.engine.ItemTotal(r.Context(), item)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item, "total": total})
}

func (h *handler) accountTotal(w http.ResponseWriter, r *http.Request) {
	ext := ir.ExternalAccount(r.URL.Query().Get("external"))
	if ext == "" {
		h.writeError(w, ir.Errorf(ir.CodeInvalidArgument, "external query parameter is required"))
		return
	}
	total, err := h.engine.AccountTotal(r.Context(), ext)
	if err != nil {
		h.writeError(w, err)
		return
	}
	available, err := h.engine.Available(r.Context(), ext)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"external": ext, "total": total, "available": available})
}

func (h *handler) claim(w http.ResponseWriter, r *http.Request) {
	call, err := callFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	t, err := h.engine.Claim(r.Context(), call.Caller)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *handler) transfers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var from uint64
	if raw := q.Get("from"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			h.writeError(w, ir.Errorf(ir.CodeInvalidArgument, "invalid from %q", raw))
			return
		}
		from = n
	}
	limit := DefaultTransferPage
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeError(w, ir.Errorf(ir.CodeInvalidArgument, "invalid limit %q", raw))
			return
		}
		limit = n
	}
	recs, err := h.engine.ListTransfers(r.Context(), from, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if recs == nil {
		recs = []ir.TransferRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

type accountPayload struct {
	Account ir.InternalAccount `json:"account"`
}

func (h *handler) setOwner(w http.ResponseWriter, r *http.Request) {
	h.setRole(w, r, h.engine.SetOwner)
}

func (h *handler) setOracle(w http.ResponseWriter, r *http.Request) {
	h.setRole(w, r, h.engine.SetOracle)
}

func (h *handler) setRole(w http.ResponseWriter, r *http.Request, fn func(context.Context, ir.InternalAccount, ir.InternalAccount) error) {
	call, err := callFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var payload accountPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	if err := fn(r.Context(), call.Caller, payload.Account); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) setMinimumStake(w http.ResponseWriter, r *http.Request) {
	call, err := callFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var payload struct {
		Amount ir.Amount `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.engine.SetMinimumStake(r.Context(), call.Caller, payload.Amount); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) unlinkAll(w http.ResponseWriter, r *http.Request) {
	call, err := callFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.engine.UnlinkAll(r.Context(), call.Caller); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
