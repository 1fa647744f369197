package handler

import (
	"net/http"

	"go.uber.org/zap"

	"atstore-api/internal/logging"
	"atstore-api/internal/service"
	"atstore-api/pkg/apierror"
	"atstore-api/pkg/response"
)

// WebhookHandler receives payment notifications from the payment gateway.
type WebhookHandler struct {
	fulfillment *service.FulfillmentService
	logger      *zap.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(fulfillment *service.FulfillmentService, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{fulfillment: fulfillment, logger: logger}
}

// Payment handles POST /api/v1/webhooks/payment. The body is always a
// {success, message, orderId?} object, never the standard envelope.
func (h *WebhookHandler) Payment(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeWebhookError(w, err)
		return
	}

	result, err := h.fulfillment.HandleWebhook(r.Context(), r.Header.Get("Authorization"), body)
	if err != nil {
		if _, ok := apierror.As(err); !ok {
			logging.FromContext(r.Context(), h.logger).Error("webhook failed", zap.Error(err))
		}
		writeWebhookError(w, err)
		return
	}
	response.Raw(w, http.StatusOK, result)
}

func writeWebhookError(w http.ResponseWriter, err error) {
	message := "An unexpected error occurred"
	if apiErr, ok := apierror.As(err); ok {
		message = apiErr.Message
	}
	response.Raw(w, response.StatusOf(err), service.WebhookResult{Success: false, Message: message})
}
