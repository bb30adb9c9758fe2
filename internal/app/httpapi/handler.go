// Package httpapi exposes the ledger over HTTP. Callers act as the account
// their token identifies; the route parameter is only used for reads.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	bankservice "github.com/bloxify/blxbank/internal/app/services/bank"
	"github.com/bloxify/blxbank/internal/app/storage"
	"github.com/bloxify/blxbank/internal/events"
	"github.com/bloxify/blxbank/internal/logging"
)

// Handler routes bank API requests to the ledger service.
type Handler struct {
	svc *bankservice.Service
	bus *events.Bus
	log *logging.Logger
}

// NewHandler creates the API handler.
func NewHandler(svc *bankservice.Service, bus *events.Bus) *Handler {
	return &Handler{
		svc: svc,
		bus: bus,
		log: logging.New("httpapi"),
	}
}

// Register mounts all bank API routes on the router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/healthz", h.handleHealth).Methods("GET")

	r.HandleFunc("/accounts", h.handleCreateAccount).Methods("POST")
	r.HandleFunc("/accounts/{key}", h.handleGetAccount).Methods("GET")
	r.HandleFunc("/accounts/self", h.handleDeactivate).Methods("DELETE")
	r.HandleFunc("/accounts/self/deposits", h.handleDeposit).Methods("POST")
	r.HandleFunc("/accounts/self/withdrawals", h.handleWithdraw).Methods("POST")
	r.HandleFunc("/accounts/self/transfers", h.handleTransfer).Methods("POST")
	r.HandleFunc("/accounts/self/locks", h.handleCreateLock).Methods("POST")
	r.HandleFunc("/accounts/self/locks/{index}/claims", h.handleClaim).Methods("POST")

	r.HandleFunc("/accounts/{key}/locks", h.handleListLocks).Methods("GET")
	r.HandleFunc("/accounts/{key}/locks/{index}", h.handleGetLock).Methods("GET")
	r.HandleFunc("/accounts/{key}/locks/{index}/claimable", h.handleClaimable).Methods("GET")
	r.HandleFunc("/accounts/{key}/locked-balance", h.handleLockedBalance).Methods("GET")
	r.HandleFunc("/accounts/{key}/transactions", h.handleTransactions).Methods("GET")

	r.HandleFunc("/bank", h.handleState).Methods("GET")
	r.HandleFunc("/bank/pause", h.handleFlipPause).Methods("POST")
	r.HandleFunc("/bank/events", h.handleRecentEvents).Methods("GET")
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	caller := logging.GetAccountKey(r.Context())
	if err := h.svc.CreateAccount(r.Context(), caller); err != nil {
		h.writeError(w, r, err)
		return
	}
	acct, err := h.svc.Account(r.Context(), caller)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (h *Handler) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	key := h.accountParam(r)
	acct, err := h.svc.Account(r.Context(), key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	caller := logging.GetAccountKey(r.Context())
	if err := h.svc.DeactivateAccount(r.Context(), caller); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type amountRequest struct {
	Amount uint64 `json:"amount"`
}

func (h *Handler) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !h.decode(w, r, &req) {
		return
	}
	caller := logging.GetAccountKey(r.Context())
	if err := h.svc.Deposit(r.Context(), caller, req.Amount); err != nil {
		h.writeError(w, r, err)
		return
	}
	acct, err := h.svc.Account(r.Context(), caller)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !h.decode(w, r, &req) {
		return
	}
	caller := logging.GetAccountKey(r.Context())
	if err := h.svc.Withdraw(r.Context(), caller, req.Amount); err != nil {
		h.writeError(w, r, err)
		return
	}
	acct, err := h.svc.Account(r.Context(), caller)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To     string `json:"to"`
		Amount uint64 `json:"amount"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	caller := logging.GetAccountKey(r.Context())
	if err := h.svc.Transfer(r.Context(), caller, req.To, req.Amount); err != nil {
		h.writeError(w, r, err)
		return
	}
	acct, err := h.svc.Account(r.Context(), caller)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *Handler) handleCreateLock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Recipient string `json:"recipient"`
		Amount    uint64 `json:"amount"`
		Vesting   bool   `json:"vesting"`
		Start     int64  `json:"start,omitempty"`
		End       int64  `json:"end"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	caller := logging.GetAccountKey(r.Context())

	var (
		index uint64
		err   error
	)
	if req.Vesting {
		index, err = h.svc.LockVesting(r.Context(), caller, req.Recipient, req.Amount, req.Start, req.End)
	} else {
		index, err = h.svc.LockFixed(r.Context(), caller, req.Recipient, req.Amount, req.End)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	lk, err := h.svc.Lock(r.Context(), req.Recipient, index)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, lk)
}

func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request) {
	index, ok := h.indexParam(w, r)
	if !ok {
		return
	}
	caller := logging.GetAccountKey(r.Context())

	released, err := h.svc.Claim(r.Context(), caller, index)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"released": released})
}

func (h *Handler) handleListLocks(w http.ResponseWriter, r *http.Request) {
	locks, err := h.svc.Locks(r.Context(), h.accountParam(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, locks)
}

func (h *Handler) handleGetLock(w http.ResponseWriter, r *http.Request) {
	index, ok := h.indexParam(w, r)
	if !ok {
		return
	}
	lk, err := h.svc.Lock(r.Context(), h.accountParam(r), index)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lk)
}

func (h *Handler) handleClaimable(w http.ResponseWriter, r *http.Request) {
	index, ok := h.indexParam(w, r)
	if !ok {
		return
	}
	key := h.accountParam(r)

	claimable, err := h.svc.ClaimableAmount(r.Context(), key, index)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	claimed, err := h.svc.ClaimedAmount(r.Context(), key, index)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"claimable": claimable, "claimed": claimed})
}

func (h *Handler) handleLockedBalance(w http.ResponseWriter, r *http.Request) {
	locked, err := h.svc.TotalLockedBalance(r.Context(), h.accountParam(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"locked_balance": locked})
}

func (h *Handler) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	history, err := h.svc.Transactions(r.Context(), h.accountParam(r), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.State(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleFlipPause(w http.ResponseWriter, r *http.Request) {
	caller := logging.GetAccountKey(r.Context())
	if err := h.svc.FlipPause(r.Context(), caller); err != nil {
		h.writeError(w, r, err)
		return
	}
	st, err := h.svc.State(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": st.Paused})
}

func (h *Handler) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	writeJSON(w, http.StatusOK, h.bus.Recent(limit))
}

// accountParam resolves the {key} route variable, treating "self" as the
// authenticated caller.
func (h *Handler) accountParam(r *http.Request) string {
	key := mux.Vars(r)["key"]
	if key == "" || key == "self" {
		return logging.GetAccountKey(r.Context())
	}
	return key
}

func (h *Handler) indexParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	index, err := strconv.ParseUint(mux.Vars(r)["index"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid lock index"})
		return 0, false
	}
	return index, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.New("httpapi").WithError(err).Error("failed to encode response")
	}
}

// writeError maps ledger failures onto HTTP statuses. Unknown errors are
// logged and surfaced as a bare 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, bankservice.ErrZeroAmount),
		errors.Is(err, bankservice.ErrEndTimeNotInFuture):
		status = http.StatusBadRequest
	case errors.Is(err, bankservice.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, bankservice.ErrAccountNotActive),
		errors.Is(err, bankservice.ErrNoSuchLock),
		errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, bankservice.ErrAccountAlreadyActive),
		errors.Is(err, bankservice.ErrBankPaused),
		errors.Is(err, bankservice.ErrInsufficientBalance),
		errors.Is(err, bankservice.ErrNotYetMatured),
		errors.Is(err, bankservice.ErrNothingToClaim),
		errors.Is(err, bankservice.ErrLockExhausted),
		errors.Is(err, bankservice.ErrAlreadyInitialized):
		status = http.StatusConflict
	case errors.Is(err, bankservice.ErrCustodyTransfer):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		h.log.WithContext(r.Context()).WithError(err).Error("request failed")
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
