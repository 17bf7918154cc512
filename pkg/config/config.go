package config

import (
	"fmt"
	"os"
	"time"

	applogger "CoinPull/pkg/logger"
	"CoinPull/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type AssetConfig struct {
	ID     string   `yaml:"id" json:"id" validate:"required"`
	Fields []string `yaml:"fields" json:"fields,omitempty" validate:"dive,oneof=usd usd_market_cap usd_24h_vol usd_24h_change"`
}

type RetryConfig struct {
	Attempts   int           `yaml:"attempts" default:"3" validate:"gte=1,lte=10"`
	BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
	BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
}

type Config struct {
	Environment string           `yaml:"environment" default:"development" validate:"required"`
	Log         applogger.Config `yaml:"log"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"500ms"`
	} `yaml:"server"`
	Assets   []AssetConfig `yaml:"assets" default:"[{\"id\":\"bitcoin\"},{\"id\":\"ethereum\"},{\"id\":\"solana\"}]" validate:"min=1,unique=ID,dive"`
	Provider struct {
		BaseURL    string        `yaml:"base_url" default:"https://api.coingecko.com/api/v3" validate:"required,url"`
		APIKey     string        `yaml:"api_key"`
		VsCurrency string        `yaml:"vs_currency" default:"usd" validate:"eq=usd"`
		Timeout    time.Duration `yaml:"timeout" default:"10s"`
		Retry      RetryConfig   `yaml:"retry"`
	} `yaml:"provider"`
	Storage struct {
		Root          string        `yaml:"root" default:"data" validate:"required"`
		BronzePrefix  string        `yaml:"bronze_prefix" default:"raw_data/raw_prices_"`
		BronzeLayout  string        `yaml:"bronze_layout" default:"compact" validate:"oneof=compact dashed"`
		SilverDir     string        `yaml:"silver_dir" default:"silver"`
		HistoryFile   string        `yaml:"history_file" default:"market_history.parquet"`
		PartitionsDir string        `yaml:"partitions_dir" default:"processed"`
		GoldFile      string        `yaml:"gold_file" default:"analytics/market_summary.parquet"`
		Timeout       time.Duration `yaml:"timeout" default:"30s"`
		Retry         RetryConfig   `yaml:"retry"`
	} `yaml:"storage"`
	Silver struct {
		Mode    string `yaml:"mode" default:"rewrite" validate:"oneof=rewrite append"`
		Backend string `yaml:"backend" default:"parquet" validate:"oneof=parquet clickhouse"`
	} `yaml:"silver"`
	Gold struct {
		Window           int           `yaml:"window" default:"7" validate:"gte=1,lte=365"`
		Preview          int           `yaml:"preview" default:"5" validate:"gte=0"`
		ClickHouseMirror bool          `yaml:"clickhouse_mirror"`
		CacheTTL         time.Duration `yaml:"cache_ttl" default:"30s"`
	} `yaml:"gold"`
	Lease struct {
		Backend string        `yaml:"backend" default:"memory" validate:"oneof=memory redis"`
		Key     string        `yaml:"key" default:"lease:series"`
		TTL     time.Duration `yaml:"ttl" default:"2m"`
		Wait    time.Duration `yaml:"wait" default:"30s"`
	} `yaml:"lease"`
	Schedule struct {
		Enabled  bool          `yaml:"enabled"`
		Interval time.Duration `yaml:"interval" default:"1h"`
	} `yaml:"schedule"`
	RateLimit struct {
		Capacity     float64 `yaml:"capacity" default:"3" validate:"gte=1"`
		RefillPerSec float64 `yaml:"refill_per_sec" default:"0.05" validate:"gt=0"`
	} `yaml:"rate_limit"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers" validate:"required_if=Enabled true"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		Topics       struct {
			Objects string `yaml:"objects" default:"coinpull.bronze.objects"`
			Gold    string `yaml:"gold" default:"coinpull.gold.published"`
			Logs    string `yaml:"logs" default:"coinpull.logs"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"coinpull-silver"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"500ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"10s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"coinpull.bronze.objects.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
		LogCollector struct {
			Enabled        bool          `yaml:"enabled"`
			Interval       time.Duration `yaml:"interval" default:"30s"`
			CountThreshold int           `yaml:"count_threshold" default:"100"`
		} `yaml:"log_collector"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost" validate:"required_if=Enabled true"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"coinpull"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		MaxOpenConns     int           `yaml:"max_open_conns" default:"10" validate:"gte=1"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		SeriesTable      string        `yaml:"series_table" default:"market_history"`
		GoldTable        string        `yaml:"gold_table" default:"market_summary"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"coinpull"`
	} `yaml:"redis"`
}

var validate = validator.New()

// Load reads a YAML file, fills defaults and validates.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse builds a config from YAML bytes. Empty input yields the defaults.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
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
	c.ApplyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides selected fields from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("COINPULL_ENV"); v != "" {
		c.Environment = v
	}
	if v := getenv("COINGECKO_API_KEY"); v != "" {
		c.Provider.APIKey = v
	}
	if ids := util.SplitCSV(getenv("COINS")); len(ids) > 0 {
		c.Assets = make([]AssetConfig, len(ids))
		for i, id := range ids {
			c.Assets[i] = AssetConfig{ID: id}
		}
	}
	if v := getenv("STORAGE_ROOT"); v != "" {
		c.Storage.Root = v
	}
	if v := getenv("SILVER_MODE"); v != "" {
		c.Silver.Mode = v
	}
	if brokers := util.SplitCSV(getenv("KAFKA_BROKERS")); len(brokers) > 0 {
		c.Kafka.Brokers = brokers
		c.Kafka.Enabled = true
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	c.Server.Port = util.ParseIntDefault(getenv("HTTP_PORT"), c.Server.Port)
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Silver.Backend == "clickhouse" && !c.ClickHouse.Enabled {
		return fmt.Errorf("silver.backend=clickhouse requires clickhouse.enabled")
	}
	if c.Gold.ClickHouseMirror && !c.ClickHouse.Enabled {
		return fmt.Errorf("gold.clickhouse_mirror requires clickhouse.enabled")
	}
	if c.Lease.Backend == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("lease.backend=redis requires redis.enabled")
	}
	return nil
}

// AssetIDs returns configured asset ids in order.
func (c *Config) AssetIDs() []string {
	ids := make([]string, len(c.Assets))
	for i, a := range c.Assets {
		ids[i] = a.ID
	}
	return ids
}
