package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the reconciliation service and CLI.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Logging  LoggingConfig  `yaml:"logging"`
	Cache    CacheConfig    `yaml:"cache"`
	Report   ReportConfig   `yaml:"report"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address" validate:"required"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout" validate:"gte=0s"`
}

// UpstreamConfig configures access to the KPI engine and KPI statistics APIs.
type UpstreamConfig struct {
	BaseURL         string        `yaml:"baseURL" validate:"required,url"`
	DefinitionsPath string        `yaml:"definitionsPath" validate:"required"`
	ResultsPath     string        `yaml:"resultsPath" validate:"required"`
	HistoricalPath  string        `yaml:"historicalPath" validate:"required"`
	Timeout         time.Duration `yaml:"timeout" validate:"gt=0s"`
	Concurrency     int           `yaml:"concurrency" validate:"gte=1,lte=64"`
	// RateLimit caps upstream requests per second; zero disables limiting.
	RateLimit float64 `yaml:"rateLimit" validate:"gte=0"`
	RateBurst int     `yaml:"rateBurst" validate:"gte=0"`
	// APIKey is the fallback key used when a caller does not supply one.
	APIKey string `yaml:"apiKey"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls caching of KPI definitions.
type CacheConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Backend        string        `yaml:"backend" validate:"oneof=valkey memory"`
	Addr           string        `yaml:"addr"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db" validate:"gte=0"`
	DialTimeout    time.Duration `yaml:"dialTimeout"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	MaxRetries     int           `yaml:"maxRetries" validate:"gte=0"`
	TLS            bool          `yaml:"tls"`
	KeyPrefix      string        `yaml:"keyPrefix"`
	DefinitionsTTL time.Duration `yaml:"definitionsTTL" validate:"gte=0s"`
}

// ReportConfig shapes the half-day peak analysis. Bounds are offsets from midnight.
type ReportConfig struct {
	MorningStart   time.Duration `yaml:"morningStart" validate:"gte=0s,ltfield=MorningEnd"`
	MorningEnd     time.Duration `yaml:"morningEnd" validate:"lte=24h"`
	AfternoonStart time.Duration `yaml:"afternoonStart" validate:"gte=0s,ltfield=AfternoonEnd"`
	AfternoonEnd   time.Duration `yaml:"afternoonEnd" validate:"lte=24h"`
	PeakRadius     time.Duration `yaml:"peakRadius" validate:"gt=0s,lte=12h"`
}

// Load initialises Config from a YAML file and optional environment overrides.
// The result is not validated; callers apply their own overrides first and then call Validate.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("KPI_RECON_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// Validate checks struct constraints and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate config: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			field := strings.TrimPrefix(fe.Namespace(), "Config.")
			if fe.Param() != "" {
				msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
			} else {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
			}
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}

	if c.Cache.Enabled && c.Cache.Backend == "valkey" && c.Cache.Addr == "" {
		return errors.New("invalid config: cache.addr is required for the valkey backend")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Upstream: UpstreamConfig{
			DefinitionsPath: "/kpieng/v1/instance/all",
			ResultsPath:     "/kpieng/v1/result/by-kpi-id",
			HistoricalPath:  "/kpistats/v1/historical/result/by-kpi-id",
			Timeout:         10 * time.Second,
			Concurrency:     4,
			RateBurst:       4,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			Enabled:        false,
			Backend:        "memory",
			KeyPrefix:      "kpi-recon:",
			DefinitionsTTL: 5 * time.Minute,
			DialTimeout:    2 * time.Second,
			ReadTimeout:    500 * time.Millisecond,
			WriteTimeout:   500 * time.Millisecond,
			MaxRetries:     2,
		},
		Report: ReportConfig{
			MorningStart:   6 * time.Hour,
			MorningEnd:     12 * time.Hour,
			AfternoonStart: 12 * time.Hour,
			AfternoonEnd:   20 * time.Hour,
			PeakRadius:     time.Hour,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KPI_RECON_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("KPI_RECON_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("KPI_RECON_BASE_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv("KPI_RECON_DEFINITIONS_PATH"); v != "" {
		cfg.Upstream.DefinitionsPath = v
	}
	if v := os.Getenv("KPI_RECON_RESULTS_PATH"); v != "" {
		cfg.Upstream.ResultsPath = v
	}
	if v := os.Getenv("KPI_RECON_HISTORICAL_PATH"); v != "" {
		cfg.Upstream.HistoricalPath = v
	}
	if v := os.Getenv("KPI_RECON_UPSTREAM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Upstream.Timeout = d
		}
	}
	if v := os.Getenv("KPI_RECON_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Upstream.Concurrency = n
		}
	}
	if v := os.Getenv("KPI_RECON_RATE_LIMIT"); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Upstream.RateLimit = r
		}
	}
	if v := os.Getenv("KPI_RECON_API_KEY"); v != "" {
		cfg.Upstream.APIKey = v
	}
	if v := os.Getenv("KPI_RECON_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("KPI_RECON_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("KPI_RECON_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("KPI_RECON_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("KPI_RECON_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("KPI_RECON_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("KPI_RECON_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("KPI_RECON_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("KPI_RECON_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("KPI_RECON_CACHE_DEFINITIONS_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.DefinitionsTTL = d
		}
	}
	if v := os.Getenv("KPI_RECON_PEAK_RADIUS"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Report.PeakRadius = d
		}
	}
}
