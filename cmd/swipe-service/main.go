package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rajivgeraev/flippy-swipe/internal/apperr"
	"github.com/rajivgeraev/flippy-swipe/internal/config"
	"github.com/rajivgeraev/flippy-swipe/internal/connectivity"
	"github.com/rajivgeraev/flippy-swipe/internal/db"
	"github.com/rajivgeraev/flippy-swipe/internal/localcache"
	"github.com/rajivgeraev/flippy-swipe/internal/logger"
	"github.com/rajivgeraev/flippy-swipe/internal/remote"
	core "github.com/rajivgeraev/flippy-swipe/internal/swipe"
	"github.com/rajivgeraev/flippy-swipe/internal/services/swipe"
	"github.com/rajivgeraev/flippy-swipe/internal/services/trade"
	"github.com/rajivgeraev/flippy-swipe/internal/utils"
)

func main() {
	// Загружаем конфигурацию
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	zlog := logger.New(logger.ForEnvironment(cfg.AppEnv, cfg.LogLevel))
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zlog); err != nil {
		zlog.Fatal("сервис остановлен с ошибкой", zap.Error(err))
	}
	zlog.Info("сервис остановлен")
}

func run(ctx context.Context, cfg *config.Config, zlog *zap.Logger) error {
	store, closeStore, err := openStore(ctx, cfg, zlog)
	if err != nil {
		return err
	}
	defer closeStore()

	// Локальный кэш сессий и очереди свайпов
	kv, err := localcache.Open(cfg.LocalCacheDir)
	if err != nil {
		return err
	}
	defer kv.Close()

	monitor := connectivity.NewMonitor(store.Ping, cfg.ProbeInterval, zlog)

	// Создаём сервисы
	swipeService := swipe.NewSwipeService(cfg, store, core.CachesFrom(kv), kv, monitor, zlog)
	tradeService := trade.NewTradeService(cfg, store, zlog)

	// Создаём экземпляр Fiber
	app := fiber.New(fiber.Config{
		AppName:      "Flippy Swipe",
		ErrorHandler: errorHandler,
	})

	// Добавляем middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowCredentials: false,
	}))

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "online": monitor.Online()})
	})

	// Регистрируем маршруты
	swipeService.SetupRoutes(app)
	tradeService.SetupRoutes(app)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		monitor.Run(gctx)
		return nil
	})

	g.Go(func() error {
		return swipeService.Run(gctx)
	})

	g.Go(func() error {
		zlog.Info("✅ Flippy Swipe запущен", zap.String("port", cfg.Port), zap.String("backend", cfg.RemoteBackend))
		return app.Listen(":"+cfg.Port, fiber.ListenConfig{DisableStartupMessage: true})
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	return g.Wait()
}

// openStore подключает удаленное хранилище по REMOTE_BACKEND
func openStore(ctx context.Context, cfg *config.Config, zlog *zap.Logger) (remote.Store, func(), error) {
	if cfg.RemoteBackend == "memory" {
		zlog.Warn("используется хранилище в памяти, данные не сохраняются между запусками")
		return remote.NewMemoryStore(), func() {}, nil
	}

	if err := db.Migrate(cfg.DatabaseURL, zlog); err != nil {
		return nil, nil, err
	}

	pool, err := db.InitDB(ctx, cfg.DatabaseURL, zlog)
	if err != nil {
		return nil, nil, err
	}
	return remote.NewPostgresStore(pool), pool.Close, nil
}

// errorHandler обрабатывает ошибки Fiber
func errorHandler(c fiber.Ctx, err error) error {
	// Проверяем, является ли ошибка из Fiber
	var e *fiber.Error
	if errors.As(err, &e) {
		return c.Status(e.Code).JSON(fiber.Map{
			"error": e.Message,
		})
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return utils.SendError(c, err)
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": err.Error(),
	})
}
