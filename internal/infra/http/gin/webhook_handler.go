package ginserver

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"rentcar/internal/app/commands"
	"rentcar/internal/app/dto"
	"rentcar/internal/app/handlers/bookings"
	"rentcar/internal/domain/payment"
	"rentcar/internal/infra/processor"
)

const signatureHeader = "X-Signature"

// WebhookHandler receives processor settlement callbacks. The body must carry a valid
// HMAC signature; the event id, when present, deduplicates redeliveries.
type WebhookHandler struct {
	Commands commands.Bus
	Secret   string
	Logger   *slog.Logger
}

type settlementRequest struct {
	EventID   string `json:"event_id"`
	OrderCode string `json:"order_code"`
	Reference string `json:"reference"`
	Outcome   string `json:"outcome"`
}

func (h WebhookHandler) Settle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 64<<10))
	if err != nil {
		badRequest(c, err)
		return
	}
	if !processor.VerifySignature(h.Secret, body, c.GetHeader(signatureHeader)) {
		if h.Logger != nil {
			h.Logger.Warn("webhook signature rejected", "remote", c.ClientIP())
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature", "code": "invalid_signature"})
		return
	}
	var req settlementRequest
	if err := binding.JSON.BindBody(body, &req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := commands.Dispatch[bookings.SettlePaymentCommand, *dto.PaymentDTO](c.Request.Context(), h.Commands, bookings.SettlePaymentCommand{
		OrderCode: req.OrderCode,
		Reference: req.Reference,
		Outcome:   payment.Status(strings.ToLower(strings.TrimSpace(req.Outcome))),
		EventID:   req.EventID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ WebhookHTTP = WebhookHandler{}
