package bankledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// CallerHeader carries the user ID verified by the authentication layer in
// front of this handler.
const CallerHeader = "user-id"

type createAccountJSONReq struct {
	Number   string          `json:"number"`
	Password string          `json:"password"`
	Balance  decimal.Decimal `json:"balance"`
}

type chargeJSONReq struct {
	Amount   decimal.Decimal `json:"amount"`
	Password string          `json:"password"`
	To       string          `json:"to"`
}

type historyJSONResp struct {
	History *History `json:"history"`
}

type accountsJSONResp struct {
	Accounts []Account `json:"accounts"`
}

type errorJSONResp struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// NewHTTPHandler mounts the ledger routes and, when reg is not nil, a
// Prometheus scrape endpoint at /metrics.
func NewHTTPHandler(svc Service, reg *prometheus.Registry, log *zerolog.Logger) http.Handler {
	hndlr := &httpHandler{
		Svc: svc,
		Log: log,
	}
	mux := chi.NewMux()
	mux.Use(middleware.Recoverer)
	mux.Use(hlog.NewHandler(*log))
	mux.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	mux.NotFound(HTTPNotFound)
	if reg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	mux.Route("/accounts", func(r chi.Router) {
		r.Post("/", hndlr.CreateAccount)
		r.Get("/", hndlr.ListAccounts)
		r.Route("/{number:[0-9A-Za-z-]+}", func(rr chi.Router) {
			rr.Post("/withdraw", hndlr.Withdraw)
			rr.Post("/deposit", hndlr.Deposit)
			rr.Post("/transfer", hndlr.Transfer)
			rr.Get("/statement", hndlr.Statement)
		})
	})

	return mux
}

type httpHandler struct {
	Svc Service
	Log *zerolog.Logger
}

func (h *httpHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r, "create_account")
	if !ok {
		return
	}
	var body createAccountJSONReq
	if !h.decode(w, r, "create_account", &body) {
		return
	}
	bal, err := toUnits(body.Balance)
	if err != nil {
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"balance": err.Error()}})
		return
	}

	req := CreateAccountReq{
		Number:   body.Number,
		Password: body.Password,
		Balance:  bal,
	}
	acct, err := h.Svc.CreateAccount(r.Context(), req, caller)
	if err != nil {
		WriteHTTPError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (h *httpHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r, "list_accounts")
	if !ok {
		return
	}
	accts, err := h.Svc.ReadAccountsByOwner(r.Context(), caller)
	if err != nil {
		WriteHTTPError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountsJSONResp{Accounts: accts})
}

func (h *httpHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r, "withdraw")
	if !ok {
		return
	}
	var body chargeJSONReq
	if !h.decode(w, r, "withdraw", &body) {
		return
	}
	amt, err := toUnits(body.Amount)
	if err != nil {
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"amount": err.Error()}})
		return
	}

	req := WithdrawReq{
		Number:   chi.URLParam(r, "number"),
		Password: body.Password,
		Amount:   amt,
	}
	hist, err := h.Svc.Withdraw(r.Context(), req, caller)
	if err != nil {
		WriteHTTPError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historyJSONResp{History: hist})
}

func (h *httpHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r, "deposit")
	if !ok {
		return
	}
	var body chargeJSONReq
	if !h.decode(w, r, "deposit", &body) {
		return
	}
	amt, err := toUnits(body.Amount)
	if err != nil {
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"amount": err.Error()}})
		return
	}

	req := DepositReq{
		Number: chi.URLParam(r, "number"),
		Amount: amt,
	}
	hist, err := h.Svc.Deposit(r.Context(), req, caller)
	if err != nil {
		WriteHTTPError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historyJSONResp{History: hist})
}

func (h *httpHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r, "transfer")
	if !ok {
		return
	}
	var body chargeJSONReq
	if !h.decode(w, r, "transfer", &body) {
		return
	}
	amt, err := toUnits(body.Amount)
	if err != nil {
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"amount": err.Error()}})
		return
	}

	req := TransferReq{
		From:     chi.URLParam(r, "number"),
		To:       body.To,
		Password: body.Password,
		Amount:   amt,
	}
	hist, err := h.Svc.Transfer(r.Context(), req, caller)
	if err != nil {
		WriteHTTPError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historyJSONResp{History: hist})
}

func (h *httpHandler) Statement(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r, "statement")
	if !ok {
		return
	}
	req := StatementReq{
		Number: chi.URLParam(r, "number"),
	}
	buf := new(bytes.Buffer)
	if err := h.Svc.Statement(r.Context(), buf, req, caller); err != nil {
		WriteHTTPError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.Log.Err(err).Str("method", "statement").Msg("error writing statement")
	}
}

func (h *httpHandler) caller(w http.ResponseWriter, r *http.Request, method string) (int64, bool) {
	raw := r.Header.Get(CallerHeader)
	id, err := strconv.ParseInt(raw, 10, 64)
	if raw == "" || err != nil || id <= 0 {
		h.Log.Error().Str("method", method).Msg("missing/invalid caller")
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"caller": "missing or invalid"}})
		return 0, false
	}
	return id, true
}

func (h *httpHandler) decode(w http.ResponseWriter, r *http.Request, method string, dst any) bool {
	buf, err := io.ReadAll(r.Body)
	defer r.Body.Close()
	if err != nil {
		h.Log.Err(err).Str("method", method).Msg("error reading HTTP request")
		WriteHTTPError(w, ErrInternalServer)
		return false
	}
	if err = json.Unmarshal(buf, dst); err != nil {
		h.Log.Err(err).Str("method", method).Msg("error unmarshalling JSON")
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"request body": "malformed JSON"}})
		return false
	}
	return true
}

var errFractionalUnits = errors.New("must be a whole number of currency units")

// toUnits converts a JSON amount into integer currency units.
func toUnits(d decimal.Decimal) (int64, error) {
	if !d.IsInteger() {
		return 0, errFractionalUnits
	}
	if !d.BigInt().IsInt64() {
		return 0, errors.New("out of range")
	}
	return d.IntPart(), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().
			Err(err).
			Msg("response encoding failed")
	}
}

func WriteHTTPError(w http.ResponseWriter, err error) {
	var ne error
	defer func() {
		if ne != nil {
			log.Error().
				Err(ne).
				Msg("error response encoding failed")
		}
	}()

	resp := errorJSONResp{
		Kind:    ErrorKind(err),
		Message: err.Error(),
	}
	status := http.StatusInternalServerError
	var (
		errnf  ErrNotFound
		errbr  ErrBadRequest
		errown ErrOwnership
		errau  ErrAuthorization
		errins ErrInsufficientFunds
		errper ErrPersistence
	)
	switch {
	case errors.As(err, &errnf):
		status = http.StatusNotFound
	case errors.As(err, &errbr):
		status = http.StatusBadRequest
		resp.Fields = errbr.Fields
	case errors.As(err, &errown):
		status = http.StatusForbidden
	case errors.As(err, &errau):
		status = http.StatusUnauthorized
	case errors.As(err, &errins):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &errper):
		resp.Message = "server error"
		if errper.Kind == PersistenceUnavailable {
			status = http.StatusServiceUnavailable
		}
	case errors.Is(err, ErrServiceUnavailable):
		status = http.StatusServiceUnavailable
		resp.Message = ErrServiceUnavailable.Error()
	default:
		resp.Message = "server error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	ne = json.NewEncoder(w).Encode(resp)
}

func HTTPNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	resp := map[string]string{
		"path": r.URL.Path,
	}
	json.NewEncoder(w).Encode(resp)
}
