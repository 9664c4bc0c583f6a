package routes

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/clearbook/clearbook/internal/config"
	"github.com/clearbook/clearbook/internal/ledger"
	"github.com/clearbook/clearbook/internal/middleware"
	"github.com/clearbook/clearbook/internal/notification"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Outside of dev the ledger must be durable; the in-memory fallback is
	// for local runs and tests only.
	if !isDev(d.Cfg.AppEnv) && d.DB == nil {
		return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health
	RegisterHealthRoutes(app, d)

	var backend ledger.Service
	if d.DB != nil {
		backend = ledger.NewPostgresLedger(d.DB)
	} else {
		backend = ledger.NewInMemory()
	}

	notifier := notification.NewLoggerNotifier(d.Logger)
	handler := ledger.NewHandler(backend, notifier)

	api := app.Group("/api/v1")
	RegisterLedgerRoutes(api, handler, middleware.TransferRateLimit(d.Cache, d.Cfg.TransferRateLimit))

	return nil
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}
