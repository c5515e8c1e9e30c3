package ginserver

import (
	"net/http"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"

	"rentcar/internal/app/commands"
	"rentcar/internal/app/dto"
	"rentcar/internal/app/handlers/bookings"
	"rentcar/internal/app/lifecycle"
	"rentcar/internal/app/queries"
	"rentcar/internal/domain/booking"
	"rentcar/internal/domain/fees"
	"rentcar/internal/domain/payment"
	"rentcar/internal/domain/shared/money"
)

type BookingHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	// Currency applies to request amounts sent without one.
	Currency string
}

type moneyRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (h BookingHandler) money(m *moneyRequest) (money.Money, error) {
	if m == nil {
		return money.Money{}, nil
	}
	currency := strings.TrimSpace(m.Currency)
	if currency == "" {
		currency = h.Currency
	}
	return money.New(m.Amount, currency)
}

type openBookingRequest struct {
	BookingID    string        `json:"booking_id"`
	RenterID     string        `json:"renter_id"`
	CarID        string        `json:"car_id"`
	PickupPlace  string        `json:"pickup_place"`
	DropoffPlace string        `json:"dropoff_place"`
	PickupTime   time.Time     `json:"pickup_time"`
	DropoffTime  time.Time     `json:"dropoff_time"`
	Total        *moneyRequest `json:"total"`
	DailyRate    *moneyRequest `json:"daily_rate"`
	BookedAt     time.Time     `json:"booked_at"`
}

func (h BookingHandler) Open(c *gin.Context) {
	var req openBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	total, err := h.money(req.Total)
	if err != nil {
		badRequest(c, err)
		return
	}
	rate, err := h.money(req.DailyRate)
	if err != nil {
		badRequest(c, err)
		return
	}
	result, err := commands.Dispatch[bookings.OpenBookingCommand, *dto.BookingDTO](c.Request.Context(), h.Commands, bookings.OpenBookingCommand{
		BookingID:       req.BookingID,
		RenterID:        req.RenterID,
		CarID:           req.CarID,
		PickupPlace:     req.PickupPlace,
		DropoffPlace:    req.DropoffPlace,
		Pickup:          req.PickupTime,
		Dropoff:         req.DropoffTime,
		Total:           total,
		DailyRate:       rate,
		BookedAt:        req.BookedAt,
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h BookingHandler) Get(c *gin.Context) {
	view, err := queries.Ask[bookings.GetBookingQuery, dto.BookingView](c.Request.Context(), h.Queries, bookings.GetBookingQuery{BookingID: c.Param("id")})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type transitionRequest struct {
	Charge      bool      `json:"charge"`
	OrderCode   string    `json:"order_code"`
	Images      []string  `json:"images"`
	Description string    `json:"description"`
	ReturnedAt  time.Time `json:"returned_at"`
	Flags       []string  `json:"flags"`
	CancelKind  string    `json:"cancel_kind"`
	Reason      string    `json:"reason"`
}

// Transition applies /bookings/:id/events/:event. The staff id on pickup and return
// comes from the token, never from the body.
func (h BookingHandler) Transition(c *gin.Context) {
	var req transitionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	payload := lifecycle.Payload{
		Charge:      req.Charge,
		OrderCode:   req.OrderCode,
		Images:      req.Images,
		Description: req.Description,
		ReturnedAt:  req.ReturnedAt,
		Reason:      req.Reason,
	}
	if p, ok := currentPrincipal(c); ok {
		payload.StaffID = p.Subject
	}
	for _, raw := range req.Flags {
		kind, err := fees.ParseKind(raw)
		if err != nil {
			badRequest(c, err)
			return
		}
		payload.Flags = append(payload.Flags, kind)
	}
	if req.CancelKind != "" {
		kind, err := fees.ParseCancelKind(req.CancelKind)
		if err != nil {
			badRequest(c, err)
			return
		}
		payload.CancelKind = kind
	}
	result, err := commands.Dispatch[bookings.TransitionCommand, *bookings.TransitionResult](c.Request.Context(), h.Commands, bookings.TransitionCommand{
		BookingID:       c.Param("id"),
		Event:           booking.Event(c.Param("event")),
		Payload:         payload,
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type paymentRequest struct {
	Purpose string        `json:"purpose"`
	Amount  *moneyRequest `json:"amount"`
}

func (h BookingHandler) RequestPayment(c *gin.Context) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	amount, err := h.money(req.Amount)
	if err != nil {
		badRequest(c, err)
		return
	}
	result, err := commands.Dispatch[bookings.RequestPaymentCommand, *dto.PaymentDTO](c.Request.Context(), h.Commands, bookings.RequestPaymentCommand{
		BookingID:       c.Param("id"),
		Purpose:         payment.Purpose(strings.TrimSpace(req.Purpose)),
		Amount:          amount,
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, result)
}

type extensionRequest struct {
	RequestedDays int           `json:"requested_days"`
	Description   string        `json:"description"`
	DailyRate     *moneyRequest `json:"daily_rate"`
}

func (h BookingHandler) RequestExtension(c *gin.Context) {
	var req extensionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rate, err := h.money(req.DailyRate)
	if err != nil {
		badRequest(c, err)
		return
	}
	result, err := commands.Dispatch[bookings.RequestExtensionCommand, *dto.ExtensionDTO](c.Request.Context(), h.Commands, bookings.RequestExtensionCommand{
		BookingID:       c.Param("id"),
		RequestedDays:   req.RequestedDays,
		Description:     req.Description,
		DailyRate:       rate,
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h BookingHandler) PayExtension(c *gin.Context) {
	result, err := commands.Dispatch[bookings.PayExtensionCommand, *dto.PaymentDTO](c.Request.Context(), h.Commands, bookings.PayExtensionCommand{
		BookingID:       c.Param("id"),
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, result)
}

func (h BookingHandler) CheckRecord(c *gin.Context) {
	rec, err := queries.Ask[bookings.GetCheckRecordQuery, dto.CheckRecordDTO](c.Request.Context(), h.Queries, bookings.GetCheckRecordQuery{
		BookingID: c.Param("id"),
		Direction: c.Param("direction"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// QuoteCancellation serves GET /fees/quote/cancellation?booking_id=&kind=&at=.
func (h BookingHandler) QuoteCancellation(c *gin.Context) {
	q := bookings.QuoteCancellationQuery{BookingID: c.Query("booking_id")}
	if raw := c.Query("kind"); raw != "" {
		kind, err := fees.ParseCancelKind(raw)
		if err != nil {
			badRequest(c, err)
			return
		}
		q.Kind = kind
	}
	if raw := c.Query("at"); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(c, err)
			return
		}
		q.At = at
	}
	if strings.TrimSpace(q.BookingID) == "" {
		badRequest(c, bookings.ErrBookingIDRequired)
		return
	}
	quote, err := queries.Ask[bookings.QuoteCancellationQuery, dto.CancellationQuote](c.Request.Context(), h.Queries, q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

var _ BookingHTTP = BookingHandler{}
