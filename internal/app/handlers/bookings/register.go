package bookings

import (
	"log/slog"

	"rentcar/internal/app/bookingview"
	"rentcar/internal/app/checkrecords"
	"rentcar/internal/app/commands"
	"rentcar/internal/app/extensions"
	"rentcar/internal/app/lifecycle"
	"rentcar/internal/app/locks"
	"rentcar/internal/app/middleware"
	"rentcar/internal/app/outbox"
	"rentcar/internal/app/payments"
	"rentcar/internal/app/queries"
	"rentcar/internal/app/services/auth"
	"rentcar/internal/app/uow"
	"rentcar/internal/domain/fees"
)

// Services groups the components the bus handlers delegate to.
type Services struct {
	UoW        uow.UoWFactory
	Fees       *fees.Engine
	Machine    *lifecycle.Machine
	Payments   *payments.Coordinator
	Extensions *extensions.Service
	Records    *checkrecords.Service
	View       *bookingview.Service
	// Locks serializes requests sharing an idempotency key; nil gets a private table.
	Locks  *locks.Keyed
	Logger *slog.Logger
}

func RegisterCommands(r *commands.Registry, s Services) {
	commands.Register(r, &OpenBookingHandler{Machine: s.Machine})
	commands.Register(r, &TransitionHandler{Machine: s.Machine, UoW: s.UoW})
	commands.Register(r, &RequestPaymentHandler{Payments: s.Payments, UoW: s.UoW})
	commands.Register(r, &SettlePaymentHandler{Payments: s.Payments})
	commands.Register(r, &RequestExtensionHandler{Extensions: s.Extensions, UoW: s.UoW})
	commands.Register(r, &PayExtensionHandler{Extensions: s.Extensions, UoW: s.UoW})
}

func RegisterQueries(r *queries.Registry, s Services) {
	queries.Register(r, &GetBookingHandler{View: s.View, UoW: s.UoW})
	queries.Register(r, &GetCheckRecordHandler{Records: s.Records, UoW: s.UoW})
	queries.Register(r, &QuoteCancellationHandler{Fees: s.Fees, UoW: s.UoW})
}

// NewBuses registers every handler and wraps the buses with validation, role checks,
// idempotency and outbox flushing, outermost first.
func NewBuses(s Services, idem middleware.IdempotencyStore, box outbox.Outbox) (commands.Bus, queries.Bus) {
	cmds := commands.NewRegistry()
	RegisterCommands(cmds, s)
	qs := queries.NewRegistry()
	RegisterQueries(qs, s)

	authorize := auth.RoleAuthorizer{}.Authorize
	cmdMW := []middleware.CommandMiddleware{
		middleware.GuardCommands(middleware.Validate, authorize),
		middleware.Idempotency(idem, s.Locks),
	}
	if box != nil {
		cmdMW = append(cmdMW, middleware.OutboxFlush(box, s.Logger))
	}
	return middleware.ChainCommands(cmds, cmdMW...),
		middleware.ChainQueries(qs, middleware.GuardQueries(middleware.Validate, authorize))
}
