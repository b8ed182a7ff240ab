package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/kaikasekai/forecastd/internal/debuglog"
	"github.com/kaikasekai/forecastd/internal/display"
	"github.com/kaikasekai/forecastd/internal/domain"
	"github.com/kaikasekai/forecastd/internal/feed"
	"github.com/kaikasekai/forecastd/internal/mail"
	"github.com/kaikasekai/forecastd/internal/proofs"
	"github.com/kaikasekai/forecastd/internal/workflow"
)

// LedgerReader is the read-only slice of the ledger gateway the query
// handlers use.
type LedgerReader interface {
	Price(ctx context.Context) (*big.Int, error)
	WhitelistPrice(ctx context.Context) (*big.Int, error)
	FeedbackPrice(ctx context.Context) (*big.Int, error)
	NextEndTime(ctx context.Context) (time.Time, error)
	IsWhitelistedReferrer(ctx context.Context, account common.Address) (bool, error)
	Status(ctx context.Context, account common.Address) (domain.SubscriptionStatus, error)
}

// Handler carries every dependency the API surfaces.
type Handler struct {
	Feed          *feed.Store
	Runner        *workflow.Runner
	Reader        LedgerReader
	Gallery       *proofs.Gallery
	Journal       *debuglog.Journal
	Mail          *mail.Relay
	TokenDecimals int32
	Logger        *slog.Logger
	Now           func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Forecast returns the visible chart window: the current month, plus the
// next month for an active subscription. While the feed has not loaded the
// endpoint answers 503, which is the API's loading indicator.
func (h *Handler) Forecast(w http.ResponseWriter, r *http.Request) {
	f, ok := h.Feed.Get()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, domain.ErrFeedNotLoaded.Error())
		return
	}

	active := false
	if st, known := h.Runner.Status(); known {
		active = st.ActiveNow
	}

	today := h.now().UTC().Truncate(24 * time.Hour)
	writeJSON(w, http.StatusOK, map[string]any{
		"range":     display.RangeLabel(active),
		"active":    active,
		"rows":      display.Window(f.Rows, today, active),
		"metrics":   f.Metrics,
		"loaded_at": f.LoadedAt,
	})
}

// Accuracy returns the rolling accuracy metrics.
func (h *Handler) Accuracy(w http.ResponseWriter, r *http.Request) {
	f, ok := h.Feed.Get()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, domain.ErrFeedNotLoaded.Error())
		return
	}
	writeJSON(w, http.StatusOK, f.Metrics)
}

// Subscription returns the live subscription snapshot plus the current
// prices, re-queried from ledger truth on every call.
func (h *Handler) Subscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account := h.Runner.Account()

	st, err := h.Reader.Status(ctx, account)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	resp := map[string]any{
		"account": account.Hex(),
		"status":  st,
	}

	if next, err := h.Reader.NextEndTime(ctx); err == nil {
		resp["next_end_time"] = next
	}
	if wl, err := h.Reader.IsWhitelistedReferrer(ctx, account); err == nil {
		resp["whitelisted_referrer"] = wl
	}

	prices := map[string]string{}
	if p, err := h.Reader.Price(ctx); err == nil {
		prices["subscription"] = h.formatAmount(p)
	}
	if p, err := h.Reader.WhitelistPrice(ctx); err == nil {
		prices["whitelist"] = h.formatAmount(p)
	}
	if p, err := h.Reader.FeedbackPrice(ctx); err == nil {
		prices["feedback"] = h.formatAmount(p)
	}
	resp["prices"] = prices

	writeJSON(w, http.StatusOK, resp)
}

// Proofs returns the decorative NFT receipt gallery, possibly empty.
func (h *Handler) Proofs(w http.ResponseWriter, r *http.Request) {
	records := h.Gallery.Records()
	if records == nil {
		records = []domain.ProofRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// Debug returns the append-only debug journal.
func (h *Handler) Debug(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Journal.Entries())
}

// Subscribe triggers the subscription workflow.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Referrer string `json:"referrer"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	h.runAction(w, r, func(ctx context.Context) (domain.ActionResult, error) {
		return h.Runner.Subscribe(ctx, req.Referrer)
	})
}

// BuyWhitelist triggers the whitelist purchase workflow.
func (h *Handler) BuyWhitelist(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, h.Runner.BuyWhitelist)
}

// Donate triggers the donation workflow.
func (h *Handler) Donate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount string `json:"amount"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	h.runAction(w, r, func(ctx context.Context) (domain.ActionResult, error) {
		return h.Runner.Donate(ctx, req.Amount)
	})
}

// PayFeedback triggers the feedback-payment workflow.
func (h *Handler) PayFeedback(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, h.Runner.PayFeedback)
}

// SendFeedback relays a feedback message after a successful feedback
// payment in this process.
func (h *Handler) SendFeedback(w http.ResponseWriter, r *http.Request) {
	if !h.Runner.FeedbackUnlocked() {
		writeError(w, http.StatusForbidden, domain.ErrFeedbackLocked.Error())
		return
	}

	var req struct {
		Email   string `json:"email"`
		Message string `json:"message"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.Message == "" {
		writeError(w, http.StatusUnprocessableEntity, "email and message are required")
		return
	}
	if h.Mail == nil || !h.Mail.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "mail relay not configured")
		return
	}

	if err := h.Mail.Send(r.Context(), req.Email, req.Message); err != nil {
		h.Logger.Error("feedback send failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "message not sent")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// runAction runs one paid action and maps workflow failures onto HTTP
// statuses. The result is returned even on failure so the client sees the
// invocation id and any warnings collected before the abort.
func (h *Handler) runAction(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context) (domain.ActionResult, error)) {
	res, err := fn(r.Context())
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, domain.ErrBusy):
			status = http.StatusConflict
		case errors.Is(err, domain.ErrNoSession):
			status = http.StatusPreconditionFailed
		case errors.Is(err, domain.ErrInsufficientBalance):
			status = http.StatusPaymentRequired
		case errors.Is(err, domain.ErrInvalidAmount):
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, map[string]any{
			"error":  err.Error(),
			"result": res,
		})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) formatAmount(v *big.Int) string {
	return decimal.NewFromBigInt(v, -h.TokenDecimals).StringFixed(4)
}

// decodeBody decodes an optional JSON body. An empty body is fine; malformed
// JSON is a client error.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeError(w, http.StatusBadRequest, "malformed JSON body")
	return false
}

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
