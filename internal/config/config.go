package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/rajivgeraev/flippy-swipe/internal/apperr"
	"github.com/rajivgeraev/flippy-swipe/internal/retry"
)

// Config структура конфигурации
type Config struct {
	AppEnv        string
	Port          string
	LogLevel      string
	JWTSecret     string
	RemoteBackend string // postgres или memory
	DatabaseURL   string
	Database      DatabaseConfig
	LocalCacheDir string
	ProbeInterval time.Duration
	Swipe         Swipe
}

// DatabaseConfig содержит конфигурацию базы данных
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// Swipe содержит параметры движка свайпов
type Swipe struct {
	MaxRetries      uint
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	PoolBatchSize   int
	RefillThreshold int
}

// DefaultSwipe возвращает параметры движка по умолчанию
func DefaultSwipe() Swipe {
	p := retry.DefaultPolicy()
	return Swipe{
		MaxRetries:      p.MaxRetries,
		InitialDelay:    p.InitialDelay,
		MaxDelay:        p.MaxDelay,
		BackoffFactor:   p.BackoffFactor,
		PoolBatchSize:   20,
		RefillThreshold: 3,
	}
}

// RetryPolicy собирает политику повторов из параметров
func (s Swipe) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries:    s.MaxRetries,
		InitialDelay:  s.InitialDelay,
		MaxDelay:      s.MaxDelay,
		BackoffFactor: s.BackoffFactor,
	}
}

// Validate проверяет параметры движка
func (s Swipe) Validate() error {
	switch {
	case s.InitialDelay < 0 || s.MaxDelay < 0:
		return apperr.New(apperr.Validation, "config", "задержки не могут быть отрицательными")
	case s.MaxDelay > 0 && s.InitialDelay > s.MaxDelay:
		return apperr.New(apperr.Validation, "config", "начальная задержка больше максимальной")
	case s.BackoffFactor < 1:
		return apperr.New(apperr.Validation, "config", "множитель задержки должен быть не меньше 1")
	case s.PoolBatchSize <= 0:
		return apperr.New(apperr.Validation, "config", "размер пачки кандидатов должен быть положительным")
	case s.RefillThreshold < 0:
		return apperr.New(apperr.Validation, "config", "порог дозагрузки не может быть отрицательным")
	}
	return nil
}

// LoadConfig загружает переменные из .env и окружения
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ .env файл не найден, используем переменные окружения")
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("PGHOST", "localhost"),
		Port:     getEnv("PGPORT", "5432"),
		User:     getEnv("PGUSER", "flippy_user"),
		Password: getEnv("PGPASSWORD", "flippy_pass"),
		Name:     getEnv("PGDATABASE", "flippy"),
		SSLMode:  getEnv("PGSSLMODE", "disable"),
	}

	// Формируем строку подключения к базе данных
	dbURL := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		dbConfig.User, dbConfig.Password, dbConfig.Host, dbConfig.Port, dbConfig.Name, dbConfig.SSLMode)

	def := DefaultSwipe()
	swipe := Swipe{
		MaxRetries:      uint(getEnvInt("SWIPE_MAX_RETRIES", int(def.MaxRetries))),
		InitialDelay:    getEnvDuration("SWIPE_INITIAL_DELAY", def.InitialDelay),
		MaxDelay:        getEnvDuration("SWIPE_MAX_DELAY", def.MaxDelay),
		BackoffFactor:   getEnvFloat("SWIPE_BACKOFF_FACTOR", def.BackoffFactor),
		PoolBatchSize:   getEnvInt("SWIPE_POOL_BATCH_SIZE", def.PoolBatchSize),
		RefillThreshold: getEnvInt("SWIPE_REFILL_THRESHOLD", def.RefillThreshold),
	}
	if err := swipe.Validate(); err != nil {
		return nil, err
	}

	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "production"),
		Port:          getEnv("PORT", "8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		JWTSecret:     getEnv("JWT_SECRET", ""),
		RemoteBackend: getEnv("REMOTE_BACKEND", "postgres"),
		DatabaseURL:   getEnv("DATABASE_URL", dbURL),
		Database:      dbConfig,
		LocalCacheDir: getEnv("LOCAL_CACHE_DIR", "./data"),
		ProbeInterval: getEnvDuration("CONNECTIVITY_PROBE_INTERVAL", 10*time.Second),
		Swipe:         swipe,
	}

	if cfg.JWTSecret == "" {
		return nil, apperr.New(apperr.Validation, "config", "не задана переменная окружения JWT_SECRET")
	}
	if cfg.RemoteBackend != "postgres" && cfg.RemoteBackend != "memory" {
		return nil, apperr.New(apperr.Validation, "config", "REMOTE_BACKEND должен быть postgres или memory")
	}

	return cfg, nil
}

// getEnv получает переменную окружения или использует дефолтное значение
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("⚠️ некорректное значение %s=%q, используем %d", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		log.Printf("⚠️ некорректное значение %s=%q, используем %v", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("⚠️ некорректное значение %s=%q, используем %s", key, value, defaultValue)
	}
	return defaultValue
}
