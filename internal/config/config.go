package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// BackupConfig controls periodic SQLite snapshots.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	StoragePath   string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

type Config struct {
	Server struct {
		Port                int `yaml:"port"`
		ReadTimeoutSeconds  int `yaml:"read_timeout_seconds"`
		WriteTimeoutSeconds int `yaml:"write_timeout_seconds"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // sqlite | postgres
		Path     string `yaml:"path"`
		URL      string `yaml:"url"`
		MaxConns int32  `yaml:"max_conns"`
	} `yaml:"database"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Booking struct {
		GranularityMinutes  int    `yaml:"granularity_minutes"`
		Timezone            string `yaml:"timezone"`
		Lock                string `yaml:"lock"` // local | redis
		LockTTLSeconds      int    `yaml:"lock_ttl_seconds"`
		LockWaitSeconds     int    `yaml:"lock_wait_seconds"`
		SlotCacheTTLSeconds int    `yaml:"slot_cache_ttl_seconds"`
	} `yaml:"booking"`

	Notifications struct {
		QueueSize          int     `yaml:"queue_size"`
		Workers            int     `yaml:"workers"`
		RatePerSecond      float64 `yaml:"rate_per_second"`
		Burst              int     `yaml:"burst"`
		RetryDelaysSeconds []int   `yaml:"retry_delays_seconds"`
	} `yaml:"notifications"`

	GoogleCalendar struct {
		Enabled           bool             `yaml:"enabled"`
		CredentialsFile   string           `yaml:"credentials_file"`
		DefaultCalendarID string           `yaml:"default_calendar_id"`
		Calendars         map[int64]string `yaml:"calendars"` // professional id -> calendar id
	} `yaml:"google_calendar"`

	Telegram struct {
		Enabled  bool    `yaml:"enabled"`
		BotToken string  `yaml:"bot_token"`
		ChatIDs  []int64 `yaml:"chat_ids"`
	} `yaml:"telegram"`

	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Backup BackupConfig `yaml:"backup"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // console | json
	} `yaml:"log"`

	Catalog struct {
		Path                  string `yaml:"path"`
		ReloadIntervalSeconds int    `yaml:"reload_interval_seconds"`
	} `yaml:"catalog"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Database.Driver == "sqlite" {
		if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/scheduler.db"
	}
	if c.Booking.GranularityMinutes == 0 {
		c.Booking.GranularityMinutes = 30
	}
	if c.Booking.Timezone == "" {
		c.Booking.Timezone = "America/Sao_Paulo"
	}
	if c.Booking.Lock == "" {
		c.Booking.Lock = "local"
	}
	if c.Notifications.QueueSize <= 0 {
		c.Notifications.QueueSize = 256
	}
	if c.Notifications.Workers <= 0 {
		c.Notifications.Workers = 2
	}
	if len(c.Notifications.RetryDelaysSeconds) == 0 {
		c.Notifications.RetryDelaysSeconds = []int{1, 5, 30}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "appointments"
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "data/backups"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Catalog.Path == "" {
		c.Catalog.Path = "configs/catalog.yaml"
	}
}

// Validate checks settings that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver)
	}

	if c.Booking.GranularityMinutes < 0 {
		return fmt.Errorf("booking.granularity_minutes must be positive")
	}
	if _, err := time.LoadLocation(c.Booking.Timezone); err != nil {
		return fmt.Errorf("booking.timezone: %w", err)
	}
	switch c.Booking.Lock {
	case "local":
	case "redis":
		if c.Redis.Address == "" {
			return fmt.Errorf("booking.lock=redis requires redis.address")
		}
	default:
		return fmt.Errorf("booking.lock: unknown mode %q", c.Booking.Lock)
	}

	if c.GoogleCalendar.Enabled && c.GoogleCalendar.CredentialsFile == "" {
		return fmt.Errorf("google_calendar.credentials_file is required when enabled")
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required when enabled")
	}
	return nil
}

// Location returns the business timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Booking.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) Granularity() time.Duration {
	return time.Duration(c.Booking.GranularityMinutes) * time.Minute
}

func (c *Config) SlotCacheTTL() time.Duration {
	if c.Booking.SlotCacheTTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Booking.SlotCacheTTLSeconds) * time.Second
}

func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Booking.LockTTLSeconds) * time.Second
}

func (c *Config) LockWait() time.Duration {
	return time.Duration(c.Booking.LockWaitSeconds) * time.Second
}

func (c *Config) RetryDelays() []time.Duration {
	out := make([]time.Duration, len(c.Notifications.RetryDelaysSeconds))
	for i, s := range c.Notifications.RetryDelaysSeconds {
		out[i] = time.Duration(s) * time.Second
	}
	return out
}

func (c *Config) CatalogReloadInterval() time.Duration {
	if c.Catalog.ReloadIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Catalog.ReloadIntervalSeconds) * time.Second
}
