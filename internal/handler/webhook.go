package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/comment-autoreply/internal/service"
	"github.com/sakif/comment-autoreply/internal/webhook"
)

// maxWebhookBody bounds a single delivery.
const maxWebhookBody = 1 << 20

// Ingester is the webhook side of the service layer. *service.IngestionService
// satisfies it.
type Ingester interface {
	VerifySubscription(mode, token, challenge string) (string, error)
	Ingest(ctx context.Context, body []byte, signature string) (service.IngestReport, error)
}

// WebhookHandler receives Instagram comment notifications.
type WebhookHandler struct {
	ingester Ingester
	logger   *slog.Logger
}

func NewWebhookHandler(ingester Ingester, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{ingester: ingester, logger: logger}
}

// HandleVerify answers the subscription handshake with the challenge.
//
// HTTP: GET /webhooks/instagram?hub.mode=subscribe&hub.verify_token=...&hub.challenge=...
func (h *WebhookHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, err := h.ingester.VerifySubscription(q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"))
	if err != nil {
		h.logger.Warn("webhook verification rejected", slog.String("mode", q.Get("hub.mode")))
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

// HandleEvent accepts a signed delivery. The signature is computed over the
// exact bytes received, so the body is read raw before any decoding. Replies
// are dispatched asynchronously; the platform gets its 200 right away.
//
// HTTP: POST /webhooks/instagram
func (h *WebhookHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
				Error:   "payload_too_large",
				Message: "webhook body exceeds 1 MiB",
			})
			return
		}
		h.logger.Warn("reading webhook body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "unreadable body"})
		return
	}

	if _, err := h.ingester.Ingest(r.Context(), body, r.Header.Get(webhook.SignatureHeader)); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "EVENT_RECEIVED")
}
