package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/oolio-settle/internal/domain/customer"
	"github.com/xenking/oolio-settle/internal/domain/ledger"
	"github.com/xenking/oolio-settle/internal/domain/order"
	"github.com/xenking/oolio-settle/internal/domain/settlement"
)

const maxBodySize = 1 << 16

func decodeSettleRequest(r *http.Request) (settlement.Request, error) {
	var req settlement.Request
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return req, errors.Wrap(err, "read body")
	}
	if len(body) == 0 {
		return req, errors.New("request body is required")
	}

	err = jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "use_balance":
			req.UseBalance, err = d.Bool()
		case "instrument":
			var s string
			s, err = d.Str()
			req.Instrument = order.Instrument(s)
		case "tendered":
			req.Tendered, err = ledger.DecodeAmount(d)
		case "allow_partial":
			req.AllowPartial, err = d.Bool()
		default:
			return d.Skip()
		}
		return errors.Wrapf(err, "decode %q", key)
	})
	if err != nil {
		return req, err
	}
	return req, nil
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func encodeSession(e *jx.Encoder, s *settlement.Session) {
	e.ObjStart()
	e.FieldStart("session_id")
	e.Str(s.ID)
	e.FieldStart("state")
	e.Str(string(s.State))
	e.FieldStart("order_id")
	e.Str(s.Request.OrderID)
	e.FieldStart("prior_paid")
	ledger.EncodeMoney(e, s.Pending.PriorPaid)
	e.FieldStart("allocation")
	encodeAllocation(e, &s.Pending.Allocation)
	if s.Result != nil {
		e.FieldStart("result")
		encodeResult(e, s.Result)
	}
	e.ObjEnd()
}

func encodeAllocation(e *jx.Encoder, a *settlement.Allocation) {
	e.ObjStart()
	e.FieldStart("due")
	ledger.EncodeMoney(e, a.Due)
	e.FieldStart("balance_used")
	ledger.EncodeMoney(e, a.BalanceUsed)
	e.FieldStart("remaining_due")
	ledger.EncodeMoney(e, a.RemainingDue)
	if a.Instrument != "" {
		e.FieldStart("instrument")
		e.Str(string(a.Instrument))
	}
	e.FieldStart("tendered")
	ledger.EncodeMoney(e, a.Tendered)
	e.FieldStart("change")
	ledger.EncodeMoney(e, a.Change)
	e.FieldStart("partial")
	e.Bool(a.Partial)
	e.FieldStart("received")
	ledger.EncodeMoney(e, a.Received)
	if a.Partial {
		e.FieldStart("pending")
		ledger.EncodeMoney(e, a.NewPending)
	}
	e.ObjEnd()
}

func encodeResult(e *jx.Encoder, res *settlement.Result) {
	e.ObjStart()
	e.FieldStart("intent_id")
	e.Str(res.IntentID)
	e.FieldStart("kind")
	e.Str(string(res.Kind))
	e.FieldStart("allocation")
	encodeAllocation(e, &res.Allocation)
	e.FieldStart("order_cleared")
	e.Bool(res.OrderCleared)
	e.FieldStart("documents")
	e.ArrStart()
	for i := range res.Documents {
		res.Documents[i].Encode(e)
	}
	e.ArrEnd()
	e.FieldStart("printouts")
	e.ArrStart()
	for _, p := range res.Printouts {
		e.ObjStart()
		e.FieldStart("document_id")
		e.Str(p.DocumentID)
		e.FieldStart("ticket_id")
		e.Str(p.TicketID)
		e.FieldStart("content")
		e.Str(string(p.Content))
		e.ObjEnd()
	}
	e.ArrEnd()
	if len(res.Warnings) > 0 {
		e.FieldStart("warnings")
		e.ArrStart()
		for _, w := range res.Warnings {
			e.Str(w)
		}
		e.ArrEnd()
	}
	e.ObjEnd()
}

func encodeOrderStatus(e *jx.Encoder, st *settlement.OrderStatus) {
	o := st.Order
	e.ObjStart()
	e.FieldStart("order_id")
	e.Str(o.ID)
	e.FieldStart("kind")
	e.Str(string(o.Kind))
	if o.TableNumber != "" {
		e.FieldStart("table_number")
		e.Str(o.TableNumber)
	}
	if o.CustomerID != "" {
		e.FieldStart("customer_id")
		e.Str(o.CustomerID)
	}
	e.FieldStart("lines")
	e.ArrStart()
	for i := range o.Lines {
		ledger.EncodeLine(e, &o.Lines[i])
	}
	e.ArrEnd()
	e.FieldStart("subtotal")
	ledger.EncodeMoney(e, o.Subtotal)
	e.FieldStart("tax")
	ledger.EncodeMoney(e, o.Tax)
	e.FieldStart("total")
	ledger.EncodeMoney(e, o.Total)
	e.FieldStart("paid")
	ledger.EncodeMoney(e, st.Paid)
	e.FieldStart("pending")
	ledger.EncodeMoney(e, st.Pending)
	e.FieldStart("payments")
	e.ArrStart()
	for _, p := range st.Payments {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(p.ID)
		e.FieldStart("amount")
		ledger.EncodeMoney(e, p.Amount)
		e.FieldStart("instrument")
		e.Str(string(p.Instrument))
		e.FieldStart("receipt_id")
		e.Str(p.ReceiptID)
		e.FieldStart("created_at")
		e.Str(p.CreatedAt.UTC().Format(time.RFC3339Nano))
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

// apiError is the JSON error body.
type apiError struct {
	status   int
	kind     string
	message  string
	intentID string
	step     settlement.Step
	due      decimal.NullDecimal
	tendered decimal.NullDecimal
}

func (a *apiError) encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("code")
	e.Int(a.status)
	e.FieldStart("kind")
	e.Str(a.kind)
	e.FieldStart("message")
	e.Str(a.message)
	if a.intentID != "" {
		e.FieldStart("intent_id")
		e.Str(a.intentID)
	}
	if a.step != "" {
		e.FieldStart("step")
		e.Str(string(a.step))
	}
	if a.due.Valid {
		e.FieldStart("due")
		ledger.EncodeMoney(e, a.due.Decimal)
	}
	if a.tendered.Valid {
		e.FieldStart("tendered")
		ledger.EncodeMoney(e, a.tendered.Decimal)
	}
	e.ObjEnd()
}

func writeBadRequest(w http.ResponseWriter, err error) {
	a := &apiError{status: http.StatusBadRequest, kind: "bad_request", message: err.Error()}
	writeJSON(w, a.status, a.encode)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	a := mapError(err)
	if a.status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	writeJSON(w, a.status, a.encode)
}

// mapError converts domain errors to API errors.
func mapError(err error) *apiError {
	a := &apiError{status: http.StatusInternalServerError, kind: "internal", message: err.Error()}

	var commitErr *settlement.CommitError
	if errors.As(err, &commitErr) {
		a.intentID = commitErr.IntentID
		a.step = commitErr.Step
		a.kind = "commit_interrupted"
	}

	var (
		overcharge *settlement.OverchargeError
		standalone *settlement.IncompleteStandalonePaymentError
		short      *settlement.InsufficientPaymentError
		transition *settlement.TransitionError
	)
	switch {
	case errors.As(err, &overcharge):
		a.status, a.kind = http.StatusUnprocessableEntity, "overcharge"
		a.due, a.tendered = decimal.NewNullDecimal(overcharge.Due), decimal.NewNullDecimal(overcharge.Tendered)
	case errors.As(err, &standalone):
		a.status, a.kind = http.StatusUnprocessableEntity, "incomplete_standalone_payment"
		a.due, a.tendered = decimal.NewNullDecimal(standalone.Due), decimal.NewNullDecimal(standalone.Tendered)
	case errors.As(err, &short):
		a.status, a.kind = http.StatusUnprocessableEntity, "insufficient_payment"
		a.due, a.tendered = decimal.NewNullDecimal(short.Due), decimal.NewNullDecimal(short.Tendered)
	case settlement.IsValidation(err):
		a.status, a.kind = http.StatusUnprocessableEntity, "invalid_settlement"
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, customer.ErrNotFound),
		errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, settlement.ErrSessionNotFound),
		errors.Is(err, settlement.ErrIntentNotFound):
		a.status, a.kind = http.StatusNotFound, "not_found"
	case errors.As(err, &transition):
		a.status, a.kind = http.StatusConflict, "invalid_state"
	case errors.Is(err, settlement.ErrPendingChanged):
		a.status, a.kind = http.StatusConflict, "pending_changed"
	case errors.Is(err, settlement.ErrIntentCommitted):
		a.status, a.kind = http.StatusConflict, "already_committed"
	case errors.Is(err, settlement.ErrInsufficientBalance):
		a.status = http.StatusConflict
		if a.kind == "internal" {
			a.kind = "insufficient_balance"
		}
	}
	return a
}
