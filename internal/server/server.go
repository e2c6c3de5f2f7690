// Пакет server — HTTP-сервер Evidence Module с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/iamtinman67/claim-manager/evidence-module/internal/api/errors"
	"github.com/iamtinman67/claim-manager/evidence-module/internal/api/handlers"
	"github.com/iamtinman67/claim-manager/evidence-module/internal/api/middleware"
	"github.com/iamtinman67/claim-manager/evidence-module/internal/config"
)

// Server — HTTP-сервер Evidence Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// RouterOptions — middleware маршрутов /api/v1.
type RouterOptions struct {
	// Auth — JWT middleware; nil — аутентификация выключена
	Auth *middleware.JWTAuth
	// Validator — проверка запросов по OpenAPI контракту; nil — без проверки
	Validator func(http.Handler) http.Handler
	// Middlewares — общие middleware (metrics, logging) в порядке среза
	Middlewares []func(http.Handler) http.Handler
}

// NewRouter строит chi router: health и metrics без аутентификации,
// /api/v1 — JWT, затем проверка по контракту, затем RBAC по группе маршрутов.
func NewRouter(h *handlers.APIHandler, opts RouterOptions) chi.Router {
	router := chi.NewRouter()
	for _, mw := range opts.Middlewares {
		router.Use(mw)
	}

	router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.NotFound(w, "Маршрут не найден")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apierrors.WriteError(w, http.StatusMethodNotAllowed, apierrors.CodeValidationError,
			fmt.Sprintf("Метод %s не поддерживается", r.Method))
	})

	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)

	read, write := passthrough, passthrough
	router.Route("/api/v1", func(r chi.Router) {
		if opts.Auth != nil {
			r.Use(opts.Auth.Middleware())
			read, write = middleware.RequireRead(), middleware.RequireWrite()
		}
		if opts.Validator != nil {
			r.Use(opts.Validator)
		}

		r.Group(func(r chi.Router) {
			r.Use(read)
			r.Get("/evidence", h.ListEvidence)
			r.Get("/evidence/{evidence_id}", h.GetEvidence)
			r.Get("/exhibits/next", h.SuggestExhibitNumber)
			r.Get("/scopes/{scope_id}/bundle", h.GetBundle)
			r.Get("/scopes/{scope_id}/bundle/index.xlsx", h.GetBundleIndex)
		})

		r.Group(func(r chi.Router) {
			r.Use(write)
			r.Post("/evidence", h.CreateEvidence)
			r.Patch("/evidence/{evidence_id}", h.UpdateEvidence)
			r.Delete("/evidence/{evidence_id}", h.DeleteEvidence)
			r.Put("/scopes/{scope_id}/order", h.ReorderScope)
			r.Post("/scopes/{scope_id}/order/move", h.MoveEvidence)
		})
	})

	return router
}

func passthrough(next http.Handler) http.Handler { return next }

// New создаёт HTTP-сервер с таймаутами из конфигурации.
func New(cfg *config.Config, logger *slog.Logger, handler http.Handler) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
