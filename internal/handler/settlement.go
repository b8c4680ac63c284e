package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
)

// Settle runs a settlement for an open order. A committed settlement
// answers 201; a partial one waiting for confirmation answers 202.
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSettleRequest(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	req.OrderID = chi.URLParam(r, "orderID")

	sess, err := h.settlements.Submit(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if sess.Result == nil {
		status = http.StatusAccepted
	}
	writeJSON(w, status, func(e *jx.Encoder) { encodeSession(e, sess) })
}

// GetSession returns a settlement waiting for confirmation.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.settlements.Session(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSession(e, sess) })
}

// Confirm commits a partial settlement.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	sess, err := h.settlements.Confirm(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeSession(e, sess) })
}

// Cancel declines a partial settlement.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	sess, err := h.settlements.Cancel(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSession(e, sess) })
}

// Resume finishes an interrupted commit.
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	res, err := h.settlements.Resume(r.Context(), chi.URLParam(r, "intentID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeResult(e, res) })
}

// OrderStatus reports what is still owed on an open order.
func (h *Handler) OrderStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.settlements.Status(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrderStatus(e, st) })
}
