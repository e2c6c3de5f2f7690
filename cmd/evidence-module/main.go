// Точка входа Evidence Module — упорядоченный реестр доказательств по делам.
// Загружает конфигурацию, выбирает хранилище (PostgreSQL или in-memory),
// применяет миграции, создаёт сервисный слой (Sequencer, Order Manager, Registry),
// запускает topologymetrics, HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/iamtinman67/claim-manager/evidence-module/internal/api/handlers"
	"github.com/iamtinman67/claim-manager/evidence-module/internal/api/middleware"
	"github.com/iamtinman67/claim-manager/evidence-module/internal/api/openapi"
	"github.com/iamtinman67/claim-manager/evidence-module/internal/config"
	"github.com/iamtinman67/claim-manager/evidence-module/internal/database"
	"github.com/iamtinman67/claim-manager/evidence-module/internal/repository"
	"github.com/iamtinman67/claim-manager/evidence-module/internal/server"
	"github.com/iamtinman67/claim-manager/evidence-module/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Evidence Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("storage", cfg.StorageBackend),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Хранилище
	var (
		gateway      repository.EvidenceGateway
		storeChecker handlers.ReadinessChecker
	)
	switch cfg.StorageBackend {
	case config.StorageBackendMemory:
		logger.Warn("Используется in-memory хранилище, данные теряются при рестарте")
		gateway = repository.NewMemoryGateway()
		storeChecker = handlers.MemoryStoreChecker{}

	default:
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg, logger); err != nil {
			logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
			os.Exit(1)
		}

		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()

		gateway = repository.NewEvidenceRepository(pool, repository.NewTxRunner(pool))
		storeChecker = database.NewReadinessChecker(pool)

		// Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
		pgDB := stdlib.OpenDBFromPool(pool)
		defer pgDB.Close()

		dephealthSvc, dephealthErr := service.NewDephealthService(
			"evidence-module",
			cfg.DephealthGroup,
			pgDB,
			cfg.DatabaseURL("postgres"),
			cfg.DephealthCheckInterval,
			logger,
		)
		if dephealthErr != nil {
			logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
				slog.String("error", dephealthErr.Error()),
			)
		} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			defer dephealthSvc.Stop()
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 4. Таймаут на каждое обращение к хранилищу
	gateway = service.WithStoreTimeout(gateway, cfg.StoreTimeout)

	// 5. Сервисный слой
	sequencer := service.NewExhibitSequencer(gateway, cfg.SequencerFetchCap, logger)
	orders := service.NewDisplayOrderManager(gateway, cfg.ReorderRetryAttempts, logger)
	var cache *service.ListCache
	if cfg.CacheSize > 0 {
		cache = service.NewListCache(cfg.CacheSize, cfg.CacheTTL)
	}
	registry := service.NewEvidenceRegistry(gateway, sequencer, orders, cache, logger)

	// 6. JWT middleware (опционально)
	var (
		jwtAuth     *middleware.JWTAuth
		jwksChecker handlers.ReadinessChecker
	)
	if cfg.AuthEnabled() {
		jwtAuth, err = middleware.NewJWTAuth(middleware.JWTOptions{
			JWKSURL:         cfg.JWTJWKSURL,
			CACertPath:      cfg.CACertPath,
			Issuer:          cfg.JWTIssuer,
			EditorGroups:    cfg.RoleEditorGroups,
			ViewerGroups:    cfg.RoleViewerGroups,
			ClientTimeout:   cfg.JWKSClientTimeout,
			RefreshInterval: cfg.JWKSRefreshInterval,
			Leeway:          cfg.JWTLeeway,
		}, logger)
		if err != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
			os.Exit(1)
		}
		kcChecker, err := middleware.NewJWKSReadinessChecker(cfg.JWTJWKSURL, cfg.CACertPath, cfg.JWKSClientTimeout)
		if err != nil {
			logger.Error("Ошибка создания JWKS readiness checker", slog.String("error", err.Error()))
			os.Exit(1)
		}
		jwksChecker = kcChecker
		logger.Info("JWT middleware инициализирован",
			slog.String("jwks_url", cfg.JWTJWKSURL),
			slog.String("issuer", cfg.JWTIssuer),
		)
	} else {
		logger.Warn("EM_JWT_JWKS_URL не задан, аутентификация выключена")
	}

	// 7. Проверка запросов по OpenAPI контракту
	validator, err := openapi.NewRequestValidator(logger)
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI контракта", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 8. Handlers и router
	apiHandler := handlers.NewAPIHandler(
		handlers.NewHealthHandler(storeChecker, jwksChecker),
		registry,
		logger,
	)
	router := server.NewRouter(apiHandler, server.RouterOptions{
		Auth:      jwtAuth,
		Validator: validator.Middleware(),
		Middlewares: []func(http.Handler) http.Handler{
			middleware.MetricsMiddleware(),
			middleware.RequestLogger(logger),
		},
	})

	// 9. Запуск сервера (блокирующий вызов с graceful shutdown)
	srv := server.New(cfg, logger, router)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		cancel()
		os.Exit(1) //nolint:gocritic // defer-ы не критичны при аварийном завершении
	}

	logger.Info("Evidence Module остановлен")
}
