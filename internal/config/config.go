// Package config загружает конфигурацию сервиса из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
// Передаётся в конструкторы сервисов явно, глобальных настроек нет.
type Config struct {
	// --- Database ---
	// В Docker дефолт "postgres" (имя сервиса в docker-compose), для локалки DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"geohealth"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"geohealth"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Europe/Moscow"`

	// --- Uniqueness ---
	UniquenessRadiusMeters    float64 `envconfig:"UNIQUENESS_RADIUS_METERS" default:"50"`
	UniquenessTimeWindowHours int     `envconfig:"UNIQUENESS_TIME_WINDOW_HOURS" default:"24"`

	// --- Rewards ---
	PointsForUniqueReview     int64   `envconfig:"POINTS_FOR_UNIQUE_REVIEW" default:"100"`
	PointsForDuplicate        int64   `envconfig:"POINTS_FOR_DUPLICATE" default:"10"`
	ReputationForUniqueReview int64   `envconfig:"REPUTATION_FOR_UNIQUE_REVIEW" default:"50"`
	ReputationPenaltyForSpam  int64   `envconfig:"REPUTATION_PENALTY_FOR_SPAM" default:"20"`
	MediaBonusMultiplier      float64 `envconfig:"MEDIA_BONUS_MULTIPLIER" default:"2.0"`
	DuplicateMediaMultiplier  float64 `envconfig:"DUPLICATE_MEDIA_MULTIPLIER" default:"1.5"`
	IncidentUplift            float64 `envconfig:"INCIDENT_UPLIFT" default:"1.2"`

	// --- Anti-spam ---
	SpamThresholdForBan int `envconfig:"SPAM_THRESHOLD_FOR_BAN" default:"5"`
	SpamBanDays         int `envconfig:"SPAM_BAN_DAYS" default:"30"`
	// Сколько отчётов автор может отправить за окно. 0 = без ограничений.
	ReportRateLimitRequests int           `envconfig:"REPORT_RATE_LIMIT_REQUESTS" default:"20"`
	ReportRateLimitWindow   time.Duration `envconfig:"REPORT_RATE_LIMIT_WINDOW" default:"1h"`

	// --- Monthly cycle ---
	PointsToReputationRate float64 `envconfig:"POINTS_TO_REPUTATION_RATE" default:"0.1"`
	MonthlyLeaderboardTopN int     `envconfig:"MONTHLY_LEADERBOARD_TOP_N" default:"10"`

	// --- Health index ---
	HealthWeightInfra       float64 `envconfig:"HEALTH_WEIGHT_INFRA" default:"0.7"`
	HealthWeightSocial      float64 `envconfig:"HEALTH_WEIGHT_SOCIAL" default:"0.3"`
	HealthVerificationBonus float64 `envconfig:"HEALTH_VERIFICATION_BONUS" default:"5.0"`
	HealthHalfLifeDays      float64 `envconfig:"HEALTH_HALF_LIFE_DAYS" default:"180"`
	RecomputeBatchSize      int     `envconfig:"RECOMPUTE_BATCH_SIZE" default:"200"`
	RecomputeMaxParallel    int     `envconfig:"RECOMPUTE_MAX_PARALLEL" default:"8"`

	// --- Scoring oracle ---
	OracleBaseURL  string        `envconfig:"ORACLE_BASE_URL" default:""`
	OracleToken    string        `envconfig:"ORACLE_TOKEN" default:""`
	OracleTimeout  time.Duration `envconfig:"ORACLE_TIMEOUT" default:"3s"`
	OracleCacheTTL time.Duration `envconfig:"ORACLE_CACHE_TTL" default:"24h"`

	// --- Geo search (Redis GEO) ---
	GeoSearchEnabled bool   `envconfig:"GEOSEARCH_ENABLED" default:"false"`
	RedisHost        string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort        int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword    string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB          int    `envconfig:"REDIS_DB" default:"0"`

	// --- Geocoding ---
	GeocoderBaseURL   string        `envconfig:"GEOCODER_BASE_URL" default:""`
	GeocoderUserAgent string        `envconfig:"GEOCODER_USER_AGENT" default:"geohealth/1.0"`
	GeocoderTimeout   time.Duration `envconfig:"GEOCODER_TIMEOUT" default:"2s"`

	// --- Forms ---
	// JSON-файл со схемами анкет по категориям (необязательно).
	CategoryFormsPath string `envconfig:"CATEGORY_FORMS_PATH" default:""`

	// --- Jobs ---
	MonthlyResetCron string `envconfig:"MONTHLY_RESET_CRON" default:"0 3 1 * *"`
	RecomputeCron    string `envconfig:"RECOMPUTE_CRON" default:"30 4 * * *"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// RedisAddr возвращает адрес Redis в формате host:port.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// UniquenessWindow возвращает окно дедупликации как time.Duration.
func (c *Config) UniquenessWindow() time.Duration {
	return time.Duration(c.UniquenessTimeWindowHours) * time.Hour
}

func (c *Config) Validate() error {
	if c.UniquenessRadiusMeters <= 0 {
		return fmt.Errorf("UNIQUENESS_RADIUS_METERS должен быть > 0")
	}
	if c.UniquenessTimeWindowHours <= 0 {
		return fmt.Errorf("UNIQUENESS_TIME_WINDOW_HOURS должен быть > 0")
	}
	if c.PointsToReputationRate < 0 || c.PointsToReputationRate > 1 {
		return fmt.Errorf("POINTS_TO_REPUTATION_RATE должен быть в диапазоне 0..1")
	}
	if c.SpamThresholdForBan <= 0 {
		return fmt.Errorf("SPAM_THRESHOLD_FOR_BAN должен быть > 0")
	}
	if c.SpamBanDays <= 0 {
		return fmt.Errorf("SPAM_BAN_DAYS должен быть > 0")
	}
	if c.MonthlyLeaderboardTopN < 0 {
		return fmt.Errorf("MONTHLY_LEADERBOARD_TOP_N должен быть >= 0")
	}
	if c.HealthHalfLifeDays <= 0 {
		return fmt.Errorf("HEALTH_HALF_LIFE_DAYS должен быть > 0")
	}
	if c.RecomputeBatchSize <= 0 || c.RecomputeMaxParallel <= 0 {
		return fmt.Errorf("некорректные RECOMPUTE_BATCH_SIZE/RECOMPUTE_MAX_PARALLEL")
	}
	if c.OracleTimeout <= 0 {
		return fmt.Errorf("ORACLE_TIMEOUT должен быть > 0")
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default возвращает конфигурацию со значениями по умолчанию, без чтения окружения.
// Нужна тестам и утилитам, которым не нужна база.
func Default() *Config {
	return &Config{
		DBMaxConns:                25,
		DBMinConns:                5,
		AppTimezone:               "Europe/Moscow",
		UniquenessRadiusMeters:    50,
		UniquenessTimeWindowHours: 24,
		PointsForUniqueReview:     100,
		PointsForDuplicate:        10,
		ReputationForUniqueReview: 50,
		ReputationPenaltyForSpam:  20,
		MediaBonusMultiplier:      2.0,
		DuplicateMediaMultiplier:  1.5,
		IncidentUplift:            1.2,
		SpamThresholdForBan:       5,
		SpamBanDays:               30,
		PointsToReputationRate:    0.1,
		MonthlyLeaderboardTopN:    10,
		HealthWeightInfra:         0.7,
		HealthWeightSocial:        0.3,
		HealthVerificationBonus:   5.0,
		HealthHalfLifeDays:        180,
		RecomputeBatchSize:        200,
		RecomputeMaxParallel:      8,
		OracleTimeout:             3 * time.Second,
		OracleCacheTTL:            24 * time.Hour,
		GeocoderTimeout:           2 * time.Second,
		MonthlyResetCron:          "0 3 1 * *",
		RecomputeCron:             "30 4 * * *",
	}
}
