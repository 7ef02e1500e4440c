package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/buildrite/siteops/internal/calendar"
	"github.com/buildrite/siteops/internal/files"
	"github.com/buildrite/siteops/internal/handlers"
	"github.com/buildrite/siteops/internal/notify"
	"github.com/buildrite/siteops/internal/outbox"
	"github.com/buildrite/siteops/internal/storage"
	"github.com/buildrite/siteops/internal/workflow"
	"github.com/buildrite/siteops/libs/config"
	"github.com/buildrite/siteops/libs/db"
	"github.com/buildrite/siteops/libs/httpx"
	otelx "github.com/buildrite/siteops/libs/otel"
	"github.com/buildrite/siteops/libs/runtime"
)

func buildGateways(logger *slog.Logger) workflow.Gateways {
	gw := workflow.Gateways{
		Email:    notify.NoopEmailSender{},
		SMS:      notify.NoopSMSSender{},
		Calendar: calendar.NoopClient{},
		Files:    files.NoopStore{},
	}
	if host := config.String("SMTP_HOST", ""); host != "" {
		gw.Email = notify.NewSMTPSender(host, config.String("SMTP_PORT", "587"), config.String("SMTP_FROM", "no-reply@buildrite.local"))
	} else {
		logger.Warn("SMTP_HOST not set; email sending disabled")
	}
	if url := config.String("SMS_WEBHOOK_URL", ""); url != "" {
		gw.SMS = notify.NewWebhookSMSSender(url, config.String("SMS_WEBHOOK_TOKEN", ""))
	} else {
		logger.Warn("SMS_WEBHOOK_URL not set; sms sending disabled")
	}
	if url := config.String("CALENDAR_API_URL", ""); url != "" {
		gw.Calendar = calendar.NewHTTPClient(url)
	}
	if url := config.String("FILE_STORE_URL", ""); url != "" {
		gw.Files = files.NewHTTPStore(url, config.String("FILE_STORE_TOKEN", ""))
	} else {
		logger.Warn("FILE_STORE_URL not set; file uploads disabled")
	}
	return gw
}

func main() {
	service := config.String("SERVICE_NAME", "siteops")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}
	opsInbox, err := config.RequiredString("OPS_INBOX_EMAIL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL, int32(config.Int("DB_MAX_CONNS", 0)))
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	userRepo := storage.NewUserRepository(pool)
	employeeRepo := storage.NewEmployeeRepository(pool)
	appointmentRepo := storage.NewAppointmentRepository(pool)
	quotationRepo := storage.NewQuotationRepository(pool)
	taskRepo := storage.NewTaskRepository(pool)
	notificationRepo := storage.NewNotificationRepository(pool)

	outboxRepo := outbox.NewRepository(pool)
	events := outbox.NewRecorder(pool, outboxRepo, logger)
	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	gw := buildGateways(logger)
	gw.Log = notificationRepo

	appointments := workflow.NewAppointments(appointmentRepo, userRepo, quotationRepo, gw, events, logger, opsInbox)
	quotations := workflow.NewQuotations(quotationRepo, appointmentRepo, userRepo, gw, events, logger, opsInbox)
	tasks := workflow.NewTasks(taskRepo, employeeRepo, gw, events, logger)

	// The public booking endpoint is the only unauthenticated write; it gets
	// its own rate limit, shared across replicas when Redis is configured.
	var bookingLimit httpx.Middleware
	limit := config.Int("BOOKING_RATE_LIMIT", 10)
	window := time.Duration(config.Int("BOOKING_RATE_WINDOW_SECONDS", 60)) * time.Second
	if redisURL := config.String("REDIS_URL", ""); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "err", err)
			panic(err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		bookingLimit = httpx.NewRedisRateLimiter(rdb, limit, window, "booking").Middleware(logger, config.Bool("BOOKING_RATE_FAIL_OPEN", true))
	} else {
		bookingLimit = httpx.NewRateLimiter(limit, window).Middleware()
	}

	mux := runtime.NewBaseMux(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: outbox.ReadyCheck(brokers)},
	)
	handlers.Routes{
		Auth:          handlers.NewAuthHandler(userRepo, userRepo, jwtSecret, time.Duration(config.Int("JWT_TTL_HOURS", 24))*time.Hour),
		Appointments:  handlers.NewAppointmentHandler(appointments),
		Quotations:    handlers.NewQuotationHandler(quotations),
		Tasks:         handlers.NewTaskHandler(tasks),
		Employees:     handlers.NewEmployeeHandler(employeeRepo, taskRepo),
		Notifications: handlers.NewNotificationHandler(notificationRepo),
		JWTSecret:     jwtSecret,
		BookingLimit:  bookingLimit,
	}.Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		}),
		httpx.WithBodyLimit(16<<20),
		httpx.WithTimeout(30*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, service)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
