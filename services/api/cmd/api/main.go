package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tutorbase/tutorbase/libs/config"
	"github.com/tutorbase/tutorbase/libs/db"
	"github.com/tutorbase/tutorbase/libs/httpx"
	"github.com/tutorbase/tutorbase/libs/kafkax"
	otelx "github.com/tutorbase/tutorbase/libs/otel"
	"github.com/tutorbase/tutorbase/libs/outbox"
	"github.com/tutorbase/tutorbase/libs/runtime"
	"github.com/tutorbase/tutorbase/services/api/internal/classes"
	"github.com/tutorbase/tutorbase/services/api/internal/handlers"
	"github.com/tutorbase/tutorbase/services/api/internal/scheduling"
	"github.com/tutorbase/tutorbase/services/api/internal/storage"
	"github.com/tutorbase/tutorbase/services/api/internal/uploads"
)

func main() {
	service := config.String("SERVICE_NAME", "api")
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

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	users := storage.NewUserRepository(pool)
	tokens := storage.NewTokenRepository(pool)
	tutors := storage.NewTutorRepository(pool)
	rooms := storage.NewRoomRepository(pool)
	classRepo := storage.NewClassRepository(pool)
	payments := storage.NewPaymentRepository(pool)
	leads := storage.NewLeadRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	checker := scheduling.NewChecker(classRepo, rooms, tutors)
	classService := classes.NewService(
		&classes.PgxStore{Classes: classRepo, Rooms: rooms, Payments: payments, Outbox: outboxRepo},
		users, tutors, rooms, logger,
	)

	var uploader handlers.Uploader
	if cloudName := config.String("CLOUDINARY_CLOUD_NAME", ""); cloudName != "" {
		uploader = uploads.NewCloudinary(
			cloudName,
			config.String("CLOUDINARY_API_KEY", ""),
			config.String("CLOUDINARY_API_SECRET", ""),
			config.String("CLOUDINARY_FOLDER", "tutorbase"),
		)
	}

	authn := handlers.NewAuthenticator(users, jwtSecret)
	authHandler := handlers.NewAuthHandler(pool, users, tokens, outboxRepo, logger, jwtSecret,
		config.Duration("ACCESS_TOKEN_TTL", 15*time.Minute),
		config.Duration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
	)
	userHandler := handlers.NewUserHandler(users, uploader, logger)
	tutorHandler := handlers.NewTutorHandler(tutors, users)
	roomHandler := handlers.NewRoomHandler(pool, rooms, checker)
	classHandler := handlers.NewClassHandler(classService, classRepo, outboxRepo)
	sessionHandler := handlers.NewSessionHandler(classRepo, rooms)
	availabilityHandler := handlers.NewAvailabilityHandler(checker)
	paymentHandler := handlers.NewPaymentHandler(payments, outboxRepo, logger,
		config.String("STRIPE_SECRET_KEY", ""),
		config.String("PAYMENT_CURRENCY", "usd"),
	)
	stripeWebhook := handlers.NewStripeWebhookHandler(payments, outboxRepo, logger,
		config.String("STRIPE_WEBHOOK_SECRET", ""),
		config.Duration("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute),
	)
	leadHandler := handlers.NewLeadHandler(leads)

	// The public lead form gets its own rate limit; Redis when available so
	// the limit holds across replicas, in-memory otherwise.
	var leadLimit httpx.Middleware
	leadRPM := config.Int("LEAD_INTAKE_LIMIT_PER_MINUTE", 10)
	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		leadLimit = httpx.NewRedisRateLimiter(rdb, leadRPM, time.Minute, "leads").Middleware(logger, true)
	} else {
		leadLimit = httpx.NewRateLimiter(leadRPM, time.Minute).Middleware()
	}

	admin := authn.Require("admin")
	staff := authn.Require("admin", "tutor")
	anyUser := authn.Require()

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)

	handle := func(pattern string, h http.HandlerFunc, mw ...httpx.Middleware) {
		mux.Handle(pattern, httpx.Chain(h, mw...))
	}

	// Public.
	handle("/api/v1/auth/login", authHandler.Login)
	handle("/api/v1/auth/refresh", authHandler.Refresh)
	handle("/api/v1/auth/logout", authHandler.Logout)
	handle("/api/v1/auth/password-reset", authHandler.RequestPasswordReset)
	handle("/api/v1/auth/password-reset/confirm", authHandler.ConfirmPasswordReset)
	handle("/api/v1/public/leads", leadHandler.Intake, leadLimit, httpx.WithTimeout(5*time.Second))
	handle("/api/v1/webhooks/stripe", stripeWebhook.Handle)

	// Any authenticated role.
	handle("/api/v1/auth/me", authHandler.Me, anyUser)
	handle("/api/v1/me/photo", userHandler.UploadPhoto, anyUser)

	// Admin.
	handle("/api/v1/admin/users", userHandler.List, admin)
	handle("/api/v1/admin/users/create", userHandler.Create, admin)
	handle("/api/v1/admin/users/get", userHandler.Get, admin)
	handle("/api/v1/admin/users/update", userHandler.Update, admin)
	handle("/api/v1/admin/users/photo", userHandler.UploadPhoto, admin)
	handle("/api/v1/admin/rooms", roomHandler.List, admin)
	handle("/api/v1/admin/rooms/create", roomHandler.Create, admin)
	handle("/api/v1/admin/rooms/update", roomHandler.Update, admin)
	handle("/api/v1/admin/rooms/bookings", roomHandler.Bookings, admin)
	handle("/api/v1/admin/rooms/bookings/create", roomHandler.CreateBooking, admin)
	handle("/api/v1/admin/rooms/bookings/delete", roomHandler.DeleteBooking, admin)
	handle("/api/v1/admin/availability/room", availabilityHandler.Room, admin)
	handle("/api/v1/admin/availability/tutor", availabilityHandler.Tutor, admin)
	handle("/api/v1/admin/classes", classHandler.List, admin)
	handle("/api/v1/admin/classes/create", classHandler.Create, admin)
	handle("/api/v1/admin/classes/get", classHandler.Get, admin)
	handle("/api/v1/admin/classes/cancel", classHandler.Cancel, admin)
	handle("/api/v1/admin/sessions", sessionHandler.List, admin)
	handle("/api/v1/admin/sessions/reschedule", sessionHandler.Reschedule, admin)
	handle("/api/v1/admin/sessions/status", sessionHandler.UpdateStatus, admin)
	handle("/api/v1/admin/sessions/attendance", sessionHandler.Attendance, admin)
	handle("/api/v1/admin/sessions/attendance/put", sessionHandler.PutAttendance, admin)
	handle("/api/v1/admin/sessions/assign-room", sessionHandler.AssignRoom, admin)
	handle("/api/v1/admin/sessions/release-room", sessionHandler.ReleaseRoom, admin)
	handle("/api/v1/admin/payments", paymentHandler.List, admin)
	handle("/api/v1/admin/payments/mark-paid", paymentHandler.MarkPaid, admin)
	handle("/api/v1/admin/payouts", paymentHandler.Payouts, admin)
	handle("/api/v1/admin/tutors/profile", tutorHandler.Profile, admin)
	handle("/api/v1/admin/tutors/profile/update", tutorHandler.UpdateProfile, admin)
	handle("/api/v1/admin/tutors/shifts", tutorHandler.ReplaceShifts, admin)
	handle("/api/v1/admin/leads", leadHandler.List, admin)
	handle("/api/v1/admin/leads/get", leadHandler.Get, admin)
	handle("/api/v1/admin/leads/update", leadHandler.Update, admin)
	handle("/api/v1/admin/leads/delete", leadHandler.Delete, admin)

	// Tutor.
	handle("/api/v1/tutor/profile", tutorHandler.Profile, staff)
	handle("/api/v1/tutor/profile/update", tutorHandler.UpdateProfile, staff)
	handle("/api/v1/tutor/shifts", tutorHandler.ReplaceShifts, staff)
	handle("/api/v1/tutor/classes", classHandler.List, staff)
	handle("/api/v1/tutor/sessions", sessionHandler.List, staff)
	handle("/api/v1/tutor/sessions/reschedule", sessionHandler.Reschedule, staff)
	handle("/api/v1/tutor/sessions/status", sessionHandler.UpdateStatus, staff)
	handle("/api/v1/tutor/sessions/attendance", sessionHandler.Attendance, staff)
	handle("/api/v1/tutor/sessions/attendance/put", sessionHandler.PutAttendance, staff)
	handle("/api/v1/tutor/payouts", paymentHandler.Payouts, staff)

	// Student.
	studentGate := authn.Require("admin", "student", "parent")
	handle("/api/v1/student/sessions", sessionHandler.List, studentGate)
	handle("/api/v1/student/payments", paymentHandler.List, studentGate)
	handle("/api/v1/student/payments/intent", paymentHandler.CreateIntent, studentGate)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(10<<20), // photo uploads are the largest accepted body
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   splitCSV(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           10 * time.Minute,
		}),
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

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
