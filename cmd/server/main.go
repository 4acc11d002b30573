package main // registry API server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/nft-ticket-registry/internal/config"
	"github.com/iliyamo/nft-ticket-registry/internal/database"
	"github.com/iliyamo/nft-ticket-registry/internal/handler"
	"github.com/iliyamo/nft-ticket-registry/internal/ledger"
	"github.com/iliyamo/nft-ticket-registry/internal/logging"
	"github.com/iliyamo/nft-ticket-registry/internal/middleware"
	"github.com/iliyamo/nft-ticket-registry/internal/queue"
	"github.com/iliyamo/nft-ticket-registry/internal/repository"
	"github.com/iliyamo/nft-ticket-registry/internal/router"
	queue_publisher "github.com/iliyamo/nft-ticket-registry/internal/service"
	"github.com/iliyamo/nft-ticket-registry/internal/verify"
)

func main() {
	_ = godotenv.Load() // a missing .env is fine; the environment may already be set

	cfg := config.Load()
	logger := logging.NewJSON(cfg.LogLevel).With("service", "ticket-registry", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	if err := database.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("schema: %v", err)
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn(ctx, "redis unavailable; rate limiting and response cache disabled")
	} else {
		defer rdb.Close()
	}
	rl := config.LoadRateLimitConfig()
	cc := config.LoadCacheConfig()

	lcfg := config.LoadLedgerConfig()
	gateway := ledger.NewBlockfrost(lcfg, ledger.NewHTTPBuilder(lcfg), logger)

	repo := repository.NewTicketRepo(db)
	publisher := queue_publisher.NewPublisher(cfg.AMQPURL, logger)

	consumer := queue.NewConsumer(cfg.AMQPURL, repo, cfg.LogDir, logger).WithLedger(gateway)
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error(ctx, "queue consumer stopped", "error", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			logger.Info(c.Request().Context(), "request",
				"method", v.Method, "uri", v.URI, "status", v.Status, "latency_ms", v.Latency.Milliseconds())
			return nil
		},
	}))

	tickets := &handler.TicketHandler{
		Store:   repo,
		Events:  publisher,
		Holders: gateway,
		Purge:   func(ctx context.Context) error { return middleware.PurgeCache(ctx, cc, rdb) },
		Log:     logger,
	}
	verifier := &handler.VerifyHandler{Verifier: verify.NewVerifier(repo, gateway, logger), Log: logger}

	router.RegisterRoutes(e, handler.Health(db))
	router.RegisterVerify(e, verifier, middleware.NewTokenBucket(rl, rdb, logger))
	router.RegisterTickets(e, tickets, cfg.JWTSecret, middleware.NewRedisCache(cc, rdb, logger))

	addr := ":" + cfg.Port
	go func() {
		log.Printf("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "shutdown", "error", err)
	}
}
