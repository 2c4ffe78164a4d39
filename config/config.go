package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config представляет конфигурацию приложения
type Config struct {
	Server struct {
		Port         int           `mapstructure:"port"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"server"`
	DB struct {
		Host          string        `mapstructure:"host"`
		Port          int           `mapstructure:"port"`
		User          string        `mapstructure:"user"`
		Password      string        `mapstructure:"password"`
		DBName        string        `mapstructure:"name"`
		SSLMode       string        `mapstructure:"sslmode"`
		MaxIdleConns  int           `mapstructure:"max_idle_conns"`
		MaxOpenConns  int           `mapstructure:"max_open_conns"`
		SlowThreshold time.Duration `mapstructure:"slow_threshold"`
		Migrations    string        `mapstructure:"migrations"`
	} `mapstructure:"db"`
	JWT struct {
		SecretKey string `mapstructure:"secret_key"`
	} `mapstructure:"jwt"`
	SMTP struct {
		Enabled  bool   `mapstructure:"enabled"`
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		From     string `mapstructure:"from"`
	} `mapstructure:"smtp"`
	Scheduling struct {
		OverdueCron         string  `mapstructure:"overdue_cron"`
		ExpiryCron          string  `mapstructure:"expiry_cron"`
		LateAfterDays       int     `mapstructure:"late_after_days"`
		LateFeeRate         float64 `mapstructure:"late_fee_rate"` // доля от суммы строки, 0.1 = 10%
		InstallmentRounding string  `mapstructure:"installment_rounding"`
		Currency            string  `mapstructure:"currency"`
	} `mapstructure:"scheduling"`
	Directory struct {
		BaseURL string        `mapstructure:"base_url"`
		Timeout time.Duration `mapstructure:"timeout"`

		// Disabled явно отключает проверку ссылок, когда base_url не задан
		Disabled bool `mapstructure:"disabled"`
	} `mapstructure:"directory"`
	Roles struct {
		Admins []string `mapstructure:"admins"`
	} `mapstructure:"roles"`
	RateLimit struct {
		Requests int           `mapstructure:"requests"`
		Window   time.Duration `mapstructure:"window"`
	} `mapstructure:"rate_limit"`
	Log struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`
}

// NewConfig создает новый экземпляр конфигурации.
// Порядок: значения по умолчанию, файл из BOOKING_CONFIG, переменные окружения (.env тоже).
func NewConfig() (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)

	if path := os.Getenv("BOOKING_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("ошибка чтения файла конфигурации %s: %v", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("неверный формат конфигурации: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("неверный порт сервера: %d", c.Server.Port)
	}
	if c.Scheduling.LateFeeRate < 0 {
		return fmt.Errorf("ставка пени не может быть отрицательной: %v", c.Scheduling.LateFeeRate)
	}
	if c.Scheduling.LateAfterDays < 0 {
		return fmt.Errorf("неверное значение late_after_days: %d", c.Scheduling.LateAfterDays)
	}
	switch c.Scheduling.InstallmentRounding {
	case "keep_surplus", "trim_last":
	default:
		return fmt.Errorf("неизвестная политика округления взносов: %q", c.Scheduling.InstallmentRounding)
	}
	if len(c.Scheduling.Currency) != 3 {
		return fmt.Errorf("код валюты должен состоять из трех букв: %q", c.Scheduling.Currency)
	}
	return nil
}

// DSN возвращает строку подключения к PostgreSQL
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.DBName, c.DB.SSLMode)
}

// MigrateURL возвращает URL базы данных для golang-migrate
func (c *Config) MigrateURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.DBName, c.DB.SSLMode)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "booking_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.max_open_conns", 100)
	v.SetDefault("db.slow_threshold", time.Second)
	v.SetDefault("db.migrations", "file://migrations")

	v.SetDefault("jwt.secret_key", "your-secret-key-here")

	v.SetDefault("smtp.enabled", false)
	v.SetDefault("smtp.host", "smtp.gmail.com")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "bookings@example.com")

	v.SetDefault("scheduling.overdue_cron", "0 1 * * *")
	v.SetDefault("scheduling.expiry_cron", "30 1 * * *")
	v.SetDefault("scheduling.late_after_days", 30)
	v.SetDefault("scheduling.late_fee_rate", 0.0)
	v.SetDefault("scheduling.installment_rounding", "keep_surplus")
	v.SetDefault("scheduling.currency", "USD")

	v.SetDefault("directory.base_url", "")
	v.SetDefault("directory.timeout", 5*time.Second)
	v.SetDefault("directory.disabled", false)

	v.SetDefault("roles.admins", []string{})

	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window", time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// bindLegacyEnv сохраняет привычные имена переменных окружения
func bindLegacyEnv(v *viper.Viper) {
	legacy := map[string]string{
		"server.port":    "SERVER_PORT",
		"db.host":        "DB_HOST",
		"db.port":        "DB_PORT",
		"db.user":        "DB_USER",
		"db.password":    "DB_PASSWORD",
		"db.name":        "DB_NAME",
		"jwt.secret_key": "JWT_SECRET_KEY",
		"smtp.host":      "SMTP_HOST",
		"smtp.port":      "SMTP_PORT",
		"smtp.username":  "SMTP_USERNAME",
		"smtp.password":  "SMTP_PASSWORD",
		"smtp.from":      "SMTP_FROM",
	}
	for key, env := range legacy {
		_ = v.BindEnv(key, env)
	}
}
