package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"rentcar/internal/app/bookingview"
	"rentcar/internal/app/checkrecords"
	"rentcar/internal/app/commands"
	"rentcar/internal/app/extensions"
	"rentcar/internal/app/handlers/bookings"
	"rentcar/internal/app/lifecycle"
	"rentcar/internal/app/locks"
	"rentcar/internal/app/middleware"
	"rentcar/internal/app/outbox"
	"rentcar/internal/app/payments"
	"rentcar/internal/app/policies"
	"rentcar/internal/app/services/auth"
	"rentcar/internal/app/uow"
	"rentcar/internal/domain/fees"
	"rentcar/internal/domain/payment"
	"rentcar/internal/infra/broker/kafka"
	"rentcar/internal/infra/config"
	"rentcar/internal/infra/cron"
	mongodb "rentcar/internal/infra/db/mongo"
	ginserver "rentcar/internal/infra/http/gin"
	"rentcar/internal/infra/inbox"
	"rentcar/internal/infra/obs"
	infraoutbox "rentcar/internal/infra/outbox"
	"rentcar/internal/infra/processor"
	"rentcar/internal/infra/security"
	"rentcar/internal/infra/storage/memory"
	"rentcar/internal/infra/storage/s3"
)

type backgroundTask struct {
	name string
	run  func(ctx context.Context) error
}

type application struct {
	server     *http.Server
	machine    *lifecycle.Machine
	background []backgroundTask
	closers    []func(ctx context.Context) error
}

func (a *application) close(logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			logger.Warn("shutdown step failed", "error", err)
		}
	}
}

// storage bundles what differs between the memory and Mongo deployments.
type storage struct {
	factory uow.UoWFactory
	box     outbox.Outbox
	idem    middleware.IdempotencyStore
	inbox   inbox.Inbox
	queue   infraoutbox.Queue
	memBox  *memory.Outbox
	checks  map[string]obs.Check
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	app := &application{}

	st, err := openStorage(ctx, cfg, logger, app)
	if err != nil {
		return nil, err
	}

	engine, err := fees.NewEngine(cfg.FeePolicy)
	if err != nil {
		return nil, err
	}
	evidence, err := evidenceStore(cfg, logger, st.checks)
	if err != nil {
		return nil, err
	}

	keyed := locks.NewKeyed()
	recorder := outbox.Recorder{
		Box:   st.box,
		NewID: uuid.NewString,
		Headers: func(ctx context.Context) map[string]string {
			return map[string]string{"request_id": obs.RequestIDFromContext(ctx)}
		},
	}
	coordinator := &payments.Coordinator{
		UoW:       st.factory,
		Locks:     keyed,
		Processor: paymentProcessor(cfg, logger),
		Events:    recorder,
		Logger:    logger.With("component", "payments"),
		Timeout:   cfg.ProcessorTimeout,
		NewID:     uuid.NewString,
	}
	records := &checkrecords.Service{
		UoW:      st.factory,
		Locks:    keyed,
		Evidence: evidence,
		Logger:   logger.With("component", "checkrecords"),
	}
	ext := &extensions.Service{
		UoW:      st.factory,
		Locks:    keyed,
		Fees:     engine,
		Payments: coordinator,
		Events:   recorder,
		Logger:   logger.With("component", "extensions"),
		NewID:    uuid.NewString,
	}
	machine := &lifecycle.Machine{
		UoW:      st.factory,
		Locks:    keyed,
		Fees:     engine,
		Evidence: records,
		Payments: coordinator,
		Events:   recorder,
		Logger:   logger.With("component", "lifecycle"),
		NewID:    uuid.NewString,
	}
	coordinator.OnSettled(payment.PurposeRentalFee, machine.ApplyRentalPayment)
	coordinator.OnSettled(payment.PurposeExtension, ext.ApplyPayment)
	app.machine = machine

	cmds, qs := bookings.NewBuses(bookings.Services{
		UoW:        st.factory,
		Fees:       engine,
		Machine:    machine,
		Payments:   coordinator,
		Extensions: ext,
		Records:    records,
		View:       &bookingview.Service{UoW: st.factory},
		Locks:      keyed,
		Logger:     logger,
	}, st.idem, st.box)

	if err := wireMessaging(cfg, logger, st, cmds, app); err != nil {
		return nil, err
	}

	scheduler := cron.New(logger.With("component", "cron"))
	if err := scheduler.Register(cfg.ReconcileSpec, &payments.ReconcileJob{
		Coordinator: coordinator,
		OlderThan:   cfg.ReconcileAfter,
		Limit:       cfg.ReconcileBatch,
	}); err != nil {
		return nil, fmt.Errorf("register reconcile job: %w", err)
	}
	app.background = append(app.background, backgroundTask{name: "cron", run: scheduler.Run})

	tokens := security.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	app.server = ginserver.NewServer(cfg, obs.Middleware{Logger: logger, Quiet: []string{"/livez", "/readyz"}}, obs.HealthHandlers{Checks: st.checks}, ginserver.Handlers{
		Booking:  ginserver.BookingHandler{Commands: cmds, Queries: qs, Currency: engine.Currency()},
		Evidence: ginserver.EvidenceHandler{Store: evidence},
		Webhook:  ginserver.WebhookHandler{Commands: cmds, Secret: cfg.WebhookSecret, Logger: logger},
		AuthMiddleware: ginserver.AuthMiddleware{
			Service: &auth.Service{Tokens: tokens, Logger: logger},
			Logger:  logger,
		}.Handle,
	})
	return app, nil
}

func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger, app *application) (storage, error) {
	if cfg.Storage != config.StorageMongo {
		box := memory.NewOutbox()
		idem := memory.NewIdempotencyStore()
		if cfg.IdempotencyTTL > 0 {
			idem.TTL = cfg.IdempotencyTTL
		}
		logger.Info("using in-memory storage")
		return storage{
			factory: memory.Factory{Store: memory.NewStore(), Outbox: box},
			box:     box,
			idem:    idem,
			inbox:   inbox.NewMemory(),
			memBox:  box,
			checks:  map[string]obs.Check{},
		}, nil
	}

	client, err := mongodb.New(cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return storage{}, fmt.Errorf("connect mongo: %w", err)
	}
	app.closers = append(app.closers, client.Close)
	if err := client.EnsureIndexes(ctx); err != nil {
		return storage{}, fmt.Errorf("mongo indexes: %w", err)
	}
	box := infraoutbox.NewStore(client.DB)
	if err := box.EnsureIndexes(ctx); err != nil {
		return storage{}, fmt.Errorf("outbox indexes: %w", err)
	}
	in := inbox.NewStore(client.DB, cfg.ConsumerGroup)
	if err := in.EnsureIndexes(ctx); err != nil {
		return storage{}, fmt.Errorf("inbox indexes: %w", err)
	}
	idem := mongodb.NewIdempotencyStore(client.DB, cfg.IdempotencyTTL)
	if err := idem.EnsureIndexes(ctx); err != nil {
		return storage{}, fmt.Errorf("idempotency indexes: %w", err)
	}
	logger.Info("using mongo storage", "database", cfg.MongoDB)
	return storage{
		factory: mongodb.NewFactory(client.DB),
		box:     box,
		idem:    idem,
		inbox:   in,
		queue:   box,
		checks:  map[string]obs.Check{"mongo": client.Ping},
	}, nil
}

func paymentProcessor(cfg config.Config, logger *slog.Logger) policies.ProcessorPort {
	if cfg.ProcessorSandbox {
		logger.Warn("payment processor sandbox enabled; charges are simulated")
		return processor.NewSandbox()
	}
	return &processor.Client{
		HTTP:     &http.Client{Timeout: cfg.ProcessorTimeout},
		Endpoint: cfg.ProcessorURL,
		APIKey:   cfg.ProcessorAPIKey,
		Logger:   logger.With("component", "processor"),
	}
}

func evidenceStore(cfg config.Config, logger *slog.Logger, checks map[string]obs.Check) (policies.EvidenceStore, error) {
	if cfg.S3Endpoint == "" {
		logger.Warn("S3 endpoint not set; evidence kept in memory")
		return memory.NewEvidence(), nil
	}
	client, err := s3.NewClient(cfg.S3Endpoint, cfg.S3UseSSL, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, logger.With("component", "s3"))
	if err != nil {
		return nil, err
	}
	checks["s3"] = client.Ping
	return client, nil
}

const kafkaClientID = "rentcar"

// wireMessaging publishes outbox events and consumes processor settlements when Kafka
// brokers are configured.
func wireMessaging(cfg config.Config, logger *slog.Logger, st storage, cmds commands.Bus, app *application) error {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Warn("KAFKA_BROKERS not set; domain events are not published")
		if st.memBox != nil {
			st.memBox.Publish = func(ctx context.Context, rec outbox.EventRecord) {
				logger.DebugContext(ctx, "domain event", "event", rec.Name, "aggregate", rec.Aggregate)
			}
		}
		return nil
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, kafkaClientID)
	if err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	app.closers = append(app.closers, func(context.Context) error { return producer.Close() })
	worker := &infraoutbox.Worker{
		Store:       st.queue,
		Producer:    producer,
		Interval:    cfg.OutboxPollInterval,
		TopicPrefix: cfg.KafkaTopicPrefix,
		Backoff:     cfg.RetryBackoff,
		Logger:      logger.With("component", "outbox"),
	}
	if st.memBox != nil {
		st.memBox.Publish = worker.Publish
	} else {
		app.background = append(app.background, backgroundTask{name: "outbox", run: worker.Run})
	}

	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, kafkaClientID, &kafka.SettlementHandler{
		Bus:    cmds,
		Inbox:  st.inbox,
		Logger: logger.With("component", "settlements"),
	}, logger)
	if err != nil {
		return fmt.Errorf("kafka consumer: %w", err)
	}
	if len(cfg.RetryBackoff) > 0 {
		consumer.Backoff = cfg.RetryBackoff[0]
	}
	app.closers = append(app.closers, func(context.Context) error { return consumer.Close() })
	topics := []string{cfg.KafkaTopicPrefix + cfg.SettlementTopic}
	app.background = append(app.background, backgroundTask{
		name: "settlements",
		run:  func(ctx context.Context) error { return consumer.Run(ctx, topics) },
	})
	return nil
}
