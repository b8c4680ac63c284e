package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// SearchTickets lists ledger records matching ?q=, most recent first.
func (h *Handler) SearchTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.ledger.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("tickets")
		e.ArrStart()
		for i := range tickets {
			tickets[i].Encode(e)
		}
		e.ArrEnd()
		e.ObjEnd()
	})
}

// GetTicket returns one ledger record.
func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	t, err := h.ledger.Get(r.Context(), chi.URLParam(r, "ticketID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t.Encode)
}

// PrintTicket renders a ledger record for reprint.
func (h *Handler) PrintTicket(w http.ResponseWriter, r *http.Request) {
	out, err := h.settlements.Reprint(r.Context(), chi.URLParam(r, "ticketID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// ClearTickets wipes the ledger.
func (h *Handler) ClearTickets(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.Clear(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	zctx.From(r.Context()).Warn("Ledger cleared", zap.String("remote_addr", r.RemoteAddr))
	w.WriteHeader(http.StatusNoContent)
}
