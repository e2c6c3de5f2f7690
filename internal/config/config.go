// Пакет config — загрузка и валидация конфигурации Evidence Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Допустимые backend'ы хранилища.
const (
	// StorageBackendPostgres — PostgreSQL через pgxpool (по умолчанию).
	StorageBackendPostgres = "postgres"
	// StorageBackendMemory — in-memory хранилище (dev/demo, данные теряются при рестарте).
	StorageBackendMemory = "memory"
)

// Config содержит все параметры конфигурации Evidence Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (по умолчанию 8040)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- Хранилище ---

	// StorageBackend — postgres или memory
	StorageBackend string
	// DBHost — хост PostgreSQL
	DBHost string
	// DBPort — порт PostgreSQL
	DBPort int
	// DBName — имя базы данных
	DBName string
	// DBUser — пользователь PostgreSQL
	DBUser string
	// DBPassword — пароль PostgreSQL
	DBPassword string
	// DBSSLMode — режим SSL (disable, require, verify-ca, verify-full)
	DBSSLMode string
	// StoreTimeout — таймаут одного обращения к хранилищу
	StoreTimeout time.Duration

	// --- Реестр доказательств ---

	// SequencerFetchCap — лимит выборки при глобальном расчёте номера экспоната
	SequencerFetchCap int
	// ReorderRetryAttempts — число повторов записи одной позиции при reorder
	ReorderRetryAttempts int
	// CacheSize — максимальное количество списков в кэше
	CacheSize int
	// CacheTTL — время жизни закэшированного списка
	CacheTTL time.Duration

	// --- JWT ---

	// JWTJWKSURL — URL JWKS endpoint IdP. Пусто — аутентификация отключена.
	JWTJWKSURL string
	// JWTIssuer — ожидаемый issuer (пусто — не проверяется)
	JWTIssuer string
	// JWTLeeway — допустимое отклонение часов при проверке exp/nbf
	JWTLeeway time.Duration
	// JWKSClientTimeout — таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// JWKSRefreshInterval — интервал обновления ключей JWKS
	JWKSRefreshInterval time.Duration
	// CACertPath — путь к CA-сертификату для TLS к IdP (опционально)
	CACertPath string
	// RoleEditorGroups — группы IdP, дающие роль editor
	RoleEditorGroups []string
	// RoleViewerGroups — группы IdP, дающие роль viewer
	RoleViewerGroups []string

	// --- topologymetrics ---

	// DephealthGroup — группа в метриках зависимостей
	DephealthGroup string
	// DephealthCheckInterval — интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- HTTP Server Timeouts ---

	// Таймаут чтения HTTP-сервера (по умолчанию 30s)
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера (по умолчанию 60s)
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера (по умолчанию 120s)
	HTTPIdleTimeout time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown (по умолчанию 5s)
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
//
//nolint:cyclop,funlen // линейная последовательность переменных окружения
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// EM_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("EM_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("EM_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("EM_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// EM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("EM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("EM_LOG_LEVEL: %w", err)
	}

	// EM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("EM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("EM_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- Хранилище ---

	// EM_STORAGE_BACKEND — postgres (по умолчанию) или memory
	cfg.StorageBackend = getEnvDefault("EM_STORAGE_BACKEND", StorageBackendPostgres)
	if cfg.StorageBackend != StorageBackendPostgres && cfg.StorageBackend != StorageBackendMemory {
		return nil, fmt.Errorf("EM_STORAGE_BACKEND: недопустимое значение %q, допустимые: postgres, memory", cfg.StorageBackend)
	}

	if cfg.StorageBackend == StorageBackendPostgres {
		if err := loadDatabase(cfg); err != nil {
			return nil, err
		}
	}

	// EM_STORE_TIMEOUT — таймаут обращения к хранилищу (по умолчанию 10s)
	cfg.StoreTimeout, err = getEnvDurationPositive("EM_STORE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EM_STORE_TIMEOUT: %w", err)
	}

	// --- Реестр доказательств ---

	// EM_SEQUENCER_FETCH_CAP — лимит глобальной выборки (по умолчанию 2000)
	cfg.SequencerFetchCap, err = getEnvInt("EM_SEQUENCER_FETCH_CAP", 2000)
	if err != nil {
		return nil, fmt.Errorf("EM_SEQUENCER_FETCH_CAP: %w", err)
	}
	if cfg.SequencerFetchCap < 1 || cfg.SequencerFetchCap > 100000 {
		return nil, fmt.Errorf("EM_SEQUENCER_FETCH_CAP: значение %d вне допустимого диапазона 1-100000", cfg.SequencerFetchCap)
	}

	// EM_REORDER_RETRY_ATTEMPTS — повторы записи позиции (по умолчанию 2)
	cfg.ReorderRetryAttempts, err = getEnvInt("EM_REORDER_RETRY_ATTEMPTS", 2)
	if err != nil {
		return nil, fmt.Errorf("EM_REORDER_RETRY_ATTEMPTS: %w", err)
	}
	if cfg.ReorderRetryAttempts < 0 || cfg.ReorderRetryAttempts > 10 {
		return nil, fmt.Errorf("EM_REORDER_RETRY_ATTEMPTS: значение %d вне допустимого диапазона 0-10", cfg.ReorderRetryAttempts)
	}

	// EM_CACHE_SIZE — размер кэша списков (по умолчанию 256)
	cfg.CacheSize, err = getEnvInt("EM_CACHE_SIZE", 256)
	if err != nil {
		return nil, fmt.Errorf("EM_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize < 1 {
		return nil, fmt.Errorf("EM_CACHE_SIZE: значение должно быть > 0")
	}

	// EM_CACHE_TTL — TTL кэша списков (по умолчанию 1m)
	cfg.CacheTTL, err = getEnvDurationPositive("EM_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("EM_CACHE_TTL: %w", err)
	}

	// --- JWT ---

	// EM_JWT_JWKS_URL — опционально; пусто — аутентификация отключена
	cfg.JWTJWKSURL = os.Getenv("EM_JWT_JWKS_URL")
	if cfg.JWTJWKSURL != "" {
		if _, err := url.ParseRequestURI(cfg.JWTJWKSURL); err != nil {
			return nil, fmt.Errorf("EM_JWT_JWKS_URL: некорректный URL %q", cfg.JWTJWKSURL)
		}
	}
	cfg.JWTIssuer = os.Getenv("EM_JWT_ISSUER")
	cfg.CACertPath = os.Getenv("EM_CA_CERT_PATH")

	cfg.JWTLeeway, err = getEnvDuration("EM_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EM_JWT_LEEWAY: %w", err)
	}
	cfg.JWKSClientTimeout, err = getEnvDurationPositive("EM_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EM_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDurationPositive("EM_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("EM_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// EM_ROLE_EDITOR_GROUPS — группы для роли editor
	cfg.RoleEditorGroups = parseCSV(getEnvDefault("EM_ROLE_EDITOR_GROUPS", "claim-editors"))
	// EM_ROLE_VIEWER_GROUPS — группы для роли viewer
	cfg.RoleViewerGroups = parseCSV(getEnvDefault("EM_ROLE_VIEWER_GROUPS", "claim-viewers,claim-guests"))

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("EM_DEPHEALTH_GROUP", "claim-manager")
	cfg.DephealthCheckInterval, err = getEnvDurationPositive("EM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("EM_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EM_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("EM_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EM_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("EM_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EM_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- Graceful shutdown ---

	// EM_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("EM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EM_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// loadDatabase загружает параметры PostgreSQL (только для backend postgres).
func loadDatabase(cfg *Config) error {
	var err error

	// EM_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("EM_DB_HOST")
	if err != nil {
		return err
	}

	// EM_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("EM_DB_PORT", 5432)
	if err != nil {
		return fmt.Errorf("EM_DB_PORT: %w", err)
	}

	// EM_DB_NAME, EM_DB_USER, EM_DB_PASSWORD — обязательные
	cfg.DBName, err = getEnvRequired("EM_DB_NAME")
	if err != nil {
		return err
	}
	cfg.DBUser, err = getEnvRequired("EM_DB_USER")
	if err != nil {
		return err
	}
	cfg.DBPassword, err = getEnvRequired("EM_DB_PASSWORD")
	if err != nil {
		return err
	}

	// EM_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("EM_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return fmt.Errorf("EM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}
	return nil
}

// AuthEnabled сообщает, включена ли JWT-аутентификация.
func (c *Config) AuthEnabled() bool {
	return c.JWTJWKSURL != ""
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL (для golang-migrate и лейблов topologymetrics).
// scheme — "postgres" или "pgx5".
func (c *Config) DatabaseURL(scheme string) string {
	u := url.URL{
		Scheme:   scheme,
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvDurationPositive — как getEnvDuration, но значение должно быть > 0.
func getEnvDurationPositive(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, defaultVal)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("значение должно быть > 0")
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
