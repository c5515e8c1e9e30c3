package processor

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"rentcar/internal/app/policies"
)

// Sandbox is an in-process processor for local runs and tests. Charges stay PENDING
// until Resolve is called.
type Sandbox struct {
	// Decline, when set, is consulted for every charge; returning true declines it.
	Decline func(req policies.ChargeRequest) bool
	// Before runs ahead of every CreateCharge; tests use it to stall or fail calls.
	Before func(ctx context.Context, req policies.ChargeRequest) error
	// After runs once the charge exists, so a stalled response still leaves it behind.
	After func(ctx context.Context, res policies.ChargeResult) error

	mu      sync.Mutex
	charges map[string]sandboxCharge
	calls   int
}

type sandboxCharge struct {
	Request policies.ChargeRequest
	Status  policies.ChargeStatus
}

func NewSandbox() *Sandbox {
	return &Sandbox{charges: make(map[string]sandboxCharge)}
}

func (s *Sandbox) CreateCharge(ctx context.Context, req policies.ChargeRequest) (policies.ChargeResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.Before != nil {
		if err := s.Before(ctx, req); err != nil {
			return policies.ChargeResult{}, err
		}
	}
	if err := ctx.Err(); err != nil {
		return policies.ChargeResult{}, err
	}
	if s.Decline != nil && s.Decline(req) {
		return policies.ChargeResult{}, policies.ErrChargeDeclined
	}
	code := "ord-" + uuid.NewString()
	s.mu.Lock()
	if s.charges == nil {
		s.charges = make(map[string]sandboxCharge)
	}
	s.charges[code] = sandboxCharge{Request: req, Status: policies.ChargePending}
	s.mu.Unlock()
	res := policies.ChargeResult{OrderCode: code, CheckoutURL: "https://sandbox.invalid/checkout/" + code}
	if s.After != nil {
		if err := s.After(ctx, res); err != nil {
			return policies.ChargeResult{}, err
		}
	}
	return res, nil
}

func (s *Sandbox) Status(ctx context.Context, orderCode string) (policies.ChargeStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.charges[orderCode]
	if !ok {
		return "", policies.ErrChargeNotFound
	}
	return c.Status, nil
}

func (s *Sandbox) FindByReference(ctx context.Context, reference string) (policies.ChargeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for code, c := range s.charges {
		if c.Request.Reference == reference {
			return policies.ChargeResult{OrderCode: code, CheckoutURL: "https://sandbox.invalid/checkout/" + code}, nil
		}
	}
	return policies.ChargeResult{}, policies.ErrChargeNotFound
}

// Resolve sets the processor-side status of an order.
func (s *Sandbox) Resolve(orderCode string, status policies.ChargeStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.charges[orderCode]
	if !ok {
		return policies.ErrChargeNotFound
	}
	c.Status = status
	s.charges[orderCode] = c
	return nil
}

// Calls reports how many CreateCharge calls were made.
func (s *Sandbox) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var _ policies.ProcessorPort = (*Sandbox)(nil)
