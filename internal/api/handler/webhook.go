package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ayo6706/stablesend/internal/service"
)

// notificationSink is implemented by the webhook ingester.
type notificationSink interface {
	HandleNotification(ctx context.Context, env service.Envelope) error
}

type WebhookHandler struct {
	sink notificationSink
}

func NewWebhookHandler(sink notificationSink) *WebhookHandler {
	return &WebhookHandler{sink: sink}
}

// Receive accepts a wallet-service notification. The sender gets an immediate
// 200 so it never retries on our processing latency; the envelope is handled
// on its own goroutine with a detached context.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var env service.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		RespondError(w, r, http.StatusBadRequest, "webhook/malformed-body", "invalid notification payload")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"status": "accepted"})

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 30*time.Second)
		defer cancel()
		if err := h.sink.HandleNotification(ctx, env); err != nil {
			zap.L().Error("webhook processing failed",
				zap.String("type", env.NotificationType),
				zap.String("notification_id", env.Notification.ID),
				zap.Error(err))
		}
	}()
}
