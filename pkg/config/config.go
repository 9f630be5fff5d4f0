package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"FlowScan/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that accepts "500ms"/"1h" strings in YAML
// and in default tags. yaml.v3 cannot decode those into time.Duration
// directly.
type Duration time.Duration

// D returns the standard time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		var n int64
		if err2 := value.Decode(&n); err2 == nil {
			*d = Duration(n)
			return nil
		}
		return err
	}
	return d.UnmarshalText([]byte(s))
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

// ModeConfig is the per-mode scan contract: interval, alert threshold,
// weight table and cooldown. Immutable for the lifetime of a running mode.
type ModeConfig struct {
	Enabled          bool               `yaml:"enabled"`
	Tickers          []string           `yaml:"tickers"`
	Interval         Duration           `yaml:"interval" default:"60s" validate:"gt=0"`
	AlertThreshold   float64            `yaml:"alert_threshold" default:"7" validate:"gte=0,lte=10"`
	Cooldown         Duration           `yaml:"cooldown" default:"5m" validate:"gt=0"`
	DegradedAfter    int                `yaml:"degraded_after" default:"3" validate:"gte=1"`
	MaxDegradedScale int                `yaml:"max_degraded_scale" default:"8" validate:"gte=1"`
	Weights          map[string]float64 `yaml:"weights"`
}

type Config struct {
	Environment string `yaml:"environment" validate:"required"`
	Server      struct {
		Port            int      `yaml:"port" default:"8080"`
		ReadTimeout     Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Provider struct {
		APIKey         string   `yaml:"api_key" validate:"required"`
		BaseURL        string   `yaml:"base_url" default:"https://api.unusualwhales.com"`
		WebSocketURL   string   `yaml:"websocket_url" default:"wss://api.unusualwhales.com/ws"`
		RequestTimeout Duration `yaml:"request_timeout" default:"15s" validate:"gt=0"`
		MaxRetries     int      `yaml:"max_retries" default:"3" validate:"gte=1,lte=10"`
		BackoffBase    Duration `yaml:"backoff_base" default:"500ms"`
		BackoffMax     Duration `yaml:"backoff_max" default:"8s"`
	} `yaml:"provider"`
	RateLimit struct {
		RequestsPerMinute float64 `yaml:"requests_per_minute" default:"100" validate:"gt=0"`
		Burst             int     `yaml:"burst" default:"20" validate:"gte=1"`
		FloorPerMinute    float64 `yaml:"floor_per_minute" default:"10" validate:"gt=0"`
		FloorBurst        int     `yaml:"floor_burst" default:"2" validate:"gte=1"`
		RecoveryStep      float64 `yaml:"recovery_step" default:"5"` // req/min regained per clean outcome
		RecoveryAfter     int     `yaml:"recovery_after" default:"3" validate:"gte=1"`
	} `yaml:"ratelimit"`
	Cache struct {
		DefaultTTL Duration `yaml:"default_ttl" default:"30s"`
		MaxEntries int      `yaml:"max_entries" default:"4096"`
		Redis      struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr" default:"localhost:6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Stream struct {
		Channels         []string `yaml:"channels"`
		ReconnectMin     Duration `yaml:"reconnect_min" default:"1s" validate:"gt=0"`
		ReconnectMax     Duration `yaml:"reconnect_max" default:"30s" validate:"gt=0"`
		MaxReconnects    int      `yaml:"max_reconnects"` // 0 = unlimited
		HeartbeatTimeout Duration `yaml:"heartbeat_timeout" default:"60s" validate:"gt=0"`
		PingInterval     Duration `yaml:"ping_interval" default:"20s" validate:"gt=0"`
		Throttled        bool     `yaml:"throttled"` // pass inbound fan-out through the governor
	} `yaml:"stream"`
	Modes struct {
		Intraday ModeConfig `yaml:"intraday"`
		Swing    ModeConfig `yaml:"swing"`
		Longterm ModeConfig `yaml:"longterm"`
	} `yaml:"modes"`
	Alerts struct {
		DiscordWebhookURL string `yaml:"discord_webhook_url"`
		TelegramBotToken  string `yaml:"telegram_bot_token"`
		TelegramChatID    string `yaml:"telegram_chat_id"`
	} `yaml:"alerts"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"flowscan.alerts"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip"`
		MaxAttempts  int      `yaml:"max_attempts" default:"3"`
		WriteTimeout Duration `yaml:"write_timeout" default:"10s"`
		Audit        struct {
			Enabled    bool     `yaml:"enabled"`
			GroupID    string   `yaml:"group_id" default:"flowscan-audit"`
			Workers    int      `yaml:"workers" default:"2"`
			BufferSize int      `yaml:"buffer_size" default:"256"`
			RetryMax   int      `yaml:"retry_max" default:"3"`
			BackoffMin Duration `yaml:"backoff_min" default:"250ms"`
			BackoffMax Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string   `yaml:"dlq_topic"`
		} `yaml:"audit"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled      bool     `yaml:"enabled"`
		Host         string   `yaml:"host" default:"localhost"`
		Port         int      `yaml:"port" default:"9000"`
		Database     string   `yaml:"database" default:"flowscan"`
		User         string   `yaml:"user" default:"default"`
		Password     string   `yaml:"password"`
		UseHTTP      bool     `yaml:"use_http"`
		DialTimeout  Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout  Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"clickhouse"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file. ${VAR} and $VAR
// placeholders are expanded from the environment before parsing; an unset
// variable expands to the empty string, so a required field backed only by
// a placeholder fails validation instead of leaking the literal.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	b = []byte(os.ExpandEnv(string(b)))

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("UW_API_KEY"); v != "" {
		c.Provider.APIKey = v
	}
	if v := os.Getenv("UW_BASE_URL"); v != "" {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		c.Alerts.DiscordWebhookURL = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Alerts.TelegramBotToken = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	c.Server.Port = util.ParseIntDefault(os.Getenv("PORT"), c.Server.Port)

	return c, nil
}

// EnabledModes returns the mode configs that are switched on, keyed by id.
func (c *Config) EnabledModes() map[string]ModeConfig {
	out := make(map[string]ModeConfig, 3)
	for id, m := range map[string]ModeConfig{
		"intraday": c.Modes.Intraday,
		"swing":    c.Modes.Swing,
		"longterm": c.Modes.Longterm,
	} {
		if m.Enabled {
			out[id] = m
		}
	}
	return out
}

// Validate checks structural rules plus the cross-field invariants the
// validator tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.RateLimit.FloorPerMinute > c.RateLimit.RequestsPerMinute {
		return fmt.Errorf("ratelimit.floor_per_minute exceeds requests_per_minute")
	}
	if c.Stream.ReconnectMin > c.Stream.ReconnectMax {
		return fmt.Errorf("stream.reconnect_min exceeds reconnect_max")
	}

	for id, m := range c.EnabledModes() {
		if err := ValidateWeights(m.Weights); err != nil {
			return fmt.Errorf("modes.%s: %w", id, err)
		}
		if len(m.Tickers) == 0 {
			return fmt.Errorf("modes.%s: tickers cannot be empty", id)
		}
	}

	return nil
}

// ValidateWeights rejects weight tables that do not sum to 1.0.
func ValidateWeights(w map[string]float64) error {
	if len(w) == 0 {
		return fmt.Errorf("weights are required")
	}
	var sum float64
	for name, v := range w {
		if v < 0 {
			return fmt.Errorf("weight %q is negative", name)
		}
		sum += v
	}
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("weights sum to %.6f, want 1.0", sum)
	}
	return nil
}
