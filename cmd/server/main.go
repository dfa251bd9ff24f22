// @title           Legal Bid Marketplace API
// @version         1.0
// @description     Clients post legal cases, lawyers bid on them, and the parties schedule appointments and exchange ratings.
// @BasePath        /api
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
// @description     Format: Bearer <token>
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberSwagger "github.com/gofiber/swagger"
	"github.com/hibiken/asynq"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/aldoetobex/legal-bid-backend/docs"
	"github.com/aldoetobex/legal-bid-backend/internal/appointments"
	"github.com/aldoetobex/legal-bid-backend/internal/auth"
	"github.com/aldoetobex/legal-bid-backend/internal/bids"
	"github.com/aldoetobex/legal-bid-backend/internal/cases"
	"github.com/aldoetobex/legal-bid-backend/internal/config"
	"github.com/aldoetobex/legal-bid-backend/internal/dashboard"
	"github.com/aldoetobex/legal-bid-backend/internal/jobs"
	"github.com/aldoetobex/legal-bid-backend/internal/logging"
	"github.com/aldoetobex/legal-bid-backend/internal/notify"
	"github.com/aldoetobex/legal-bid-backend/internal/ratings"
	"github.com/aldoetobex/legal-bid-backend/internal/realtime"
	"github.com/aldoetobex/legal-bid-backend/internal/reminders"
	"github.com/aldoetobex/legal-bid-backend/internal/users"
	"github.com/aldoetobex/legal-bid-backend/pkg/database"
	"github.com/aldoetobex/legal-bid-backend/pkg/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config: ", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Server.Dev())
	if err != nil {
		log.Fatal("logger: ", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	clock := clockwork.NewRealClock()
	dir := users.NewDirectory(db)
	hub := realtime.NewHub(logger)
	sender := notify.NewSender(cfg.SMTP, logger)

	// Realtime fan-out and email delivery go through Redis when it is configured;
	// otherwise they stay in-process.
	var (
		rt          notify.RealtimeChannel = hub
		email       notify.EmailChannel    = notify.NewDirectChannel(sender, cfg.SMTP.From)
		asynqServer *asynq.Server
	)
	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}

		bridge := realtime.NewRedisBridge(rdb, hub, logger)
		go func() {
			if err := bridge.Run(ctx); err != nil {
				logger.Error("realtime bridge stopped", zap.Error(err))
			}
		}()
		rt = bridge

		redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
		client := asynq.NewClient(redisOpt)
		defer client.Close()
		email = notify.NewQueueChannel(client, cfg.Outbox.MaxAttempts)

		var mux *asynq.ServeMux
		asynqServer, mux = notify.NewServer(redisOpt, notify.NewEmailWorker(db, sender, cfg.SMTP.From, logger), logger)
		if err := asynqServer.Start(mux); err != nil {
			return err
		}
		logger.Info("email queue enabled", zap.String("redis", cfg.Redis.Addr))
	}

	dispatcher := notify.NewDispatcher(db, dir, rt, email, clock, logger, cfg.Outbox.DeliveryTimeout)
	ratingEngine := ratings.NewEngine(db, dispatcher, clock, logger, cfg.Ratings.RepromptAfter)
	caseLedger := cases.NewLedger(db, dispatcher, clock, logger)
	bidLedger := bids.NewLedger(db, dispatcher, ratingEngine, clock, logger, bids.Options{AutoRejectLosing: cfg.Bids.AutoRejectLosing})
	apptLedger := appointments.NewLedger(db, dir, dispatcher, clock, logger)
	scheduler := reminders.NewScheduler(db, dispatcher, clock, logger, cfg.Reminders)
	dash := dashboard.NewService(db, apptLedger, ratingEngine)

	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })
	app.Get("/swagger/*", fiberSwagger.HandlerDefault)

	app.Use("/ws", realtime.Upgrade(cfg.Auth.JWTSecret))
	app.Get("/ws", realtime.Gateway(hub, logger))

	api := app.Group("/api")
	ratingH := ratings.NewHandler(ratingEngine)
	// Public
	api.Get("/ratings/lawyers/:lawyerID", ratingH.ForLawyer)

	// Only in dev mode, protected by X-Dev-Secret
	if cfg.Server.Dev() && cfg.Auth.DevTokenSecret != "" {
		devH := auth.NewDevHandler(dir, cfg.Auth.JWTSecret, cfg.Auth.DevTokenSecret, cfg.Auth.DevTokenTTL)
		api.Post("/dev/token", devH.Token)
	}

	api.Use(auth.RequireAuth(cfg.Auth.JWTSecret))
	client := auth.RequireRole(models.RoleClient)
	lawyer := auth.RequireRole(models.RoleLawyer)

	api.Get("/me", dir.Me)

	// Cases
	caseH := cases.NewHandler(caseLedger)
	api.Post("/cases", client, caseH.Create)
	api.Get("/cases/mine", client, caseH.ListMine)
	api.Get("/marketplace", lawyer, caseH.Marketplace)
	api.Get("/cases/:id", caseH.GetDetail)
	api.Put("/cases/:id", client, caseH.Update)
	api.Delete("/cases/:id", client, caseH.Delete)
	api.Patch("/cases/:id/close", client, caseH.Close)
	api.Post("/cases/:id/deadlines", caseH.AddDeadline)
	api.Patch("/cases/:id/deadlines/:deadlineID/complete", caseH.CompleteDeadline)
	api.Post("/cases/:id/notes", caseH.AddNote)

	// Bids
	bidH := bids.NewHandler(bidLedger)
	api.Post("/bids", lawyer, bidH.Place)
	api.Get("/bids/mine", lawyer, bidH.ListMine)
	api.Get("/cases/:id/bids", client, bidH.ListForCase)
	api.Patch("/bids/:id/accept", client, bidH.Accept)

	// Appointments
	apptH := appointments.NewHandler(apptLedger)
	api.Post("/appointments", apptH.Create)
	api.Get("/appointments", apptH.List)
	api.Patch("/appointments/:id/confirm", lawyer, apptH.Confirm)
	api.Patch("/appointments/:id/cancel", apptH.Cancel)
	api.Patch("/appointments/:id/complete", lawyer, apptH.Complete)
	api.Patch("/appointments/:id/date", apptH.Reschedule)
	api.Get("/appointments/:id/ics", apptH.ICS)

	// Ratings
	api.Post("/ratings", client, ratingH.Submit)
	api.Patch("/ratings/:caseID/dismiss", client, ratingH.Dismiss)
	api.Get("/ratings/pending", client, ratingH.Pending)

	// Notifications
	notifH := notify.NewHandler(dispatcher)
	api.Get("/notifications", notifH.List)
	api.Get("/notifications/unread-count", notifH.UnreadCount)
	api.Patch("/notifications/read-all", notifH.MarkAllRead)
	api.Patch("/notifications/:id/read", notifH.MarkRead)

	// Dashboard
	api.Get("/dashboard", dash.Handle)

	runner := jobs.NewRunner(clock, logger, 5*time.Minute,
		jobs.ReminderSweepJob(scheduler, logger, cfg.Reminders.SweepInterval),
		jobs.RatingReminderJob(ratingEngine, logger, cfg.Ratings.ReminderInterval),
		jobs.OutboxRelayJob(dispatcher, logger, cfg.Outbox.RelayInterval, cfg.Outbox.MaxAttempts),
	)
	runner.Start()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("env", cfg.Server.AppEnv))
		errCh <- app.Listen(":" + cfg.Server.Port)
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		logger.Info("shutting down")
		err = app.ShutdownWithTimeout(10 * time.Second)
	}

	runner.Stop()
	if asynqServer != nil {
		asynqServer.Shutdown()
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}
