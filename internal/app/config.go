package app

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	// MetricsAddr - адрес HTTP-сервера метрик и health-проб.
	MetricsAddr string

	// StorageDriver - "memory" или "postgres".
	StorageDriver string
	// PostgresDSN используется при StorageDriver == "postgres".
	PostgresDSN string

	// KafkaBrokers - список брокеров через запятую. Пустое значение
	// означает работу на шине в памяти.
	KafkaBrokers string
	// KafkaGroupID - consumer group сервиса.
	KafkaGroupID string

	// SweepInterval - период обхода активных саг.
	SweepInterval time.Duration
	// SagaDeadline - сколько сага может оставаться активной до таймаута.
	SagaDeadline time.Duration
	// SagaRetention - сколько финализированная сага хранится до удаления.
	SagaRetention time.Duration
	// MaxCompensationAttempts - предел повторов компенсации.
	MaxCompensationAttempts int
}

const (
	driverMemory   = "memory"
	driverPostgres = "postgres"
)

// DefaultConfig возвращает конфигурацию для локального запуска.
func DefaultConfig() Config {
	return Config{
		MetricsAddr:             ":9090",
		StorageDriver:           driverMemory,
		KafkaGroupID:            "fulfillment-service",
		SweepInterval:           30 * time.Second,
		SagaDeadline:            5 * time.Minute,
		SagaRetention:           60 * time.Second,
		MaxCompensationAttempts: 5,
	}
}

// LoadConfigFromEnv читает конфигурацию из переменных окружения
// поверх значений по умолчанию.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	cfg.MetricsAddr = envOr("METRICS_ADDR", cfg.MetricsAddr)
	cfg.StorageDriver = envOr("STORAGE_DRIVER", cfg.StorageDriver)
	cfg.PostgresDSN = envOr("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.KafkaBrokers = envOr("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaGroupID = envOr("KAFKA_GROUP_ID", cfg.KafkaGroupID)

	var err error
	if cfg.SweepInterval, err = envDuration("SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return Config{}, err
	}
	if cfg.SagaDeadline, err = envDuration("SAGA_DEADLINE", cfg.SagaDeadline); err != nil {
		return Config{}, err
	}
	if cfg.SagaRetention, err = envDuration("SAGA_RETENTION", cfg.SagaRetention); err != nil {
		return Config{}, err
	}
	if cfg.MaxCompensationAttempts, err = envInt("MAX_COMPENSATION_ATTEMPTS", cfg.MaxCompensationAttempts); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

// Validate проверяет согласованность конфигурации.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case driverMemory:
	case driverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("config: POSTGRES_DSN is required for postgres storage")
		}
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.StorageDriver)
	}

	if c.SweepInterval <= 0 {
		return fmt.Errorf("config: sweep interval must be positive, got %s", c.SweepInterval)
	}
	if c.SagaDeadline <= 0 {
		return fmt.Errorf("config: saga deadline must be positive, got %s", c.SagaDeadline)
	}
	if c.SagaRetention <= 0 {
		return fmt.Errorf("config: saga retention must be positive, got %s", c.SagaRetention)
	}
	if c.MaxCompensationAttempts <= 0 {
		return fmt.Errorf("config: max compensation attempts must be positive, got %d", c.MaxCompensationAttempts)
	}

	return nil
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return n, nil
}
