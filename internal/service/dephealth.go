// dephealth.go — публикация состояния хранилища реестра в граф зависимостей
// topologymetrics.
//
// Единственная внешняя зависимость реестра — база evidence в PostgreSQL.
// Проверка идёт через тот же пул, что и запросы EvidenceRepository, поэтому
// исчерпание пула видно в метриках так же, как недоступность сервера.
// Зависимость critical: без неё не работает ни одна операция реестра.
// Backend memory внешних зависимостей не имеет, сервис не создаётся.
//
// Метрики (app_dependency_health, app_dependency_latency_seconds) отдаются
// на /metrics рядом с em_* метриками.
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthService — периодическая проверка базы evidence.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService регистрирует проверку в глобальном Prometheus registry.
// db — адаптер stdlib.OpenDBFromPool над пулом репозитория; pgConnURL нужен
// только для лейблов host/port в метриках, соединение по нему не открывается.
// group и checkInterval берутся из EM_DEPHEALTH_GROUP и EM_DEPHEALTH_CHECK_INTERVAL.
func NewDephealthService(
	serviceID string,
	group string,
	db *sql.DB,
	pgConnURL string,
	checkInterval time.Duration,
	logger *slog.Logger,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, db, pgConnURL, checkInterval, logger)
}

// NewDephealthServiceWithRegisterer — то же с отдельным registerer (тесты).
func NewDephealthServiceWithRegisterer(
	serviceID string,
	group string,
	db *sql.DB,
	pgConnURL string,
	checkInterval time.Duration,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, db, pgConnURL, checkInterval, logger,
		dephealth.WithRegisterer(registerer))
}

func newDephealthService(
	serviceID string,
	group string,
	db *sql.DB,
	pgConnURL string,
	checkInterval time.Duration,
	logger *slog.Logger,
	extraOpts ...dephealth.Option,
) (*DephealthService, error) {
	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.AddDependency("evidence-db", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(db)),
			dephealth.FromURL(pgConnURL),
			dephealth.CheckInterval(checkInterval),
			dephealth.Critical(true),
		),
	}
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(serviceID, group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает проверки; они идут до отмены ctx или вызова Stop.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг базы реестра запущен")
	return ds.dh.Start(ctx)
}

// Stop прекращает проверки при остановке сервиса.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг базы реестра остановлен")
}
