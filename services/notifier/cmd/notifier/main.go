package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/tutorbase/tutorbase/libs/config"
	"github.com/tutorbase/tutorbase/libs/db"
	"github.com/tutorbase/tutorbase/libs/kafkax"
	otelx "github.com/tutorbase/tutorbase/libs/otel"
	"github.com/tutorbase/tutorbase/libs/runtime"
	"github.com/tutorbase/tutorbase/services/notifier/internal/consumer"
	"github.com/tutorbase/tutorbase/services/notifier/internal/email"
	"github.com/tutorbase/tutorbase/services/notifier/internal/inbox"
	"github.com/tutorbase/tutorbase/services/notifier/internal/notify"
	"github.com/tutorbase/tutorbase/services/notifier/internal/storage"
)

func main() {
	logger := runtime.NewLogger("notifier")

	port, err := config.Port("PORT", "8084")
	if err != nil {
		logger.Error("invalid PORT", "error", err)
		os.Exit(1)
	}
	databaseURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		logger.Error("missing configuration", "error", err)
		os.Exit(1)
	}
	brokers := config.String("KAFKA_BROKERS", "localhost:9092")

	ctx, stop := runtime.SignalContext()
	defer stop()

	shutdownTracing, err := otelx.Setup(ctx, otelx.ConfigFromEnv("notifier"))
	if err != nil {
		logger.Error("tracing setup failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error("tracing shutdown failed", "error", err)
		}
	}()

	pool, err := db.Open(ctx, databaseURL)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	sender := email.NewSMTPSender(
		config.String("SMTP_HOST", "localhost"),
		config.String("SMTP_PORT", "1025"),
		config.String("SMTP_FROM", "no-reply@tutorbase.local"),
	)

	dispatcher := notify.NewDispatcher(
		storage.NewContactRepository(pool),
		sender,
		storage.NewNotificationRepository(pool),
		logger,
	)

	eventConsumer := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "notifier"),
		Topics:  notify.Topics(),
	}, dispatcher.Handle)
	go eventConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "postgres", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("notifier listening", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
