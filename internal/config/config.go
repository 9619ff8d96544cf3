package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the faultline engine, either
// as a long-running service or as a one-shot CLI analysis.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Cache     CacheConfig     `yaml:"cache"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Incidents IncidentsConfig `yaml:"incidents"`
	Rules     RulesConfig     `yaml:"rules"`
	Logging   LoggingConfig   `yaml:"logging"`
	Sink      SinkConfig      `yaml:"sink"`
}

// ServerConfig controls HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// TelemetryConfig configures access to the Datadog APIs that supply
// monitors, metrics, logs, spans and events.
type TelemetryConfig struct {
	Site           string        `yaml:"site"`
	APIKey         string        `yaml:"apiKey"`
	AppKey         string        `yaml:"appKey"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	RateLimitRPS   float64       `yaml:"rateLimitRPS"`
	PageSize       int           `yaml:"pageSize"`
	LogMaxPages    int           `yaml:"logMaxPages"`
	SpanMaxPages   int           `yaml:"spanMaxPages"`
	MonitorTTL     time.Duration `yaml:"monitorTTL"`
}

// CacheConfig selects the response cache backend. The memory backend keeps a
// bounded in-process map; the valkey backend shares entries across replicas.
type CacheConfig struct {
	Backend      string        `yaml:"backend"`
	MaxKeys      int           `yaml:"maxKeys"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
}

// AnalysisConfig bounds the evidence gathered per analysis. Zero values fall
// back to the per-seed defaults baked into the pipeline.
type AnalysisConfig struct {
	WindowMinutes  int `yaml:"windowMinutes"`
	ClusterLimit   int `yaml:"clusterLimit"`
	CandidateLimit int `yaml:"candidateLimit"`
	EventLimit     int `yaml:"eventLimit"`
}

// IncidentsConfig sizes the in-memory incident context store used by the
// service surface.
type IncidentsConfig struct {
	MaxEntries int           `yaml:"maxEntries"`
	TTL        time.Duration `yaml:"ttl"`
}

// RulesConfig points at the optional recommendation rule pack.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level string        `yaml:"level"`
	JSON  bool          `yaml:"json"`
	File  FileLogConfig `yaml:"file"`
}

// FileLogConfig enables rotating file output in addition to stderr. An empty
// path keeps logging on stderr only.
type FileLogConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// SinkConfig configures the optional report forwarding endpoint. An empty
// endpoint disables forwarding.
type SinkConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"apiKey"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DefaultPath is where the config file is looked up when neither an explicit
// path nor FAULTLINE_CONFIG names one.
const DefaultPath = "configs/faultline.yaml"

// Load reads configuration from the provided path, falling back to the
// FAULTLINE_CONFIG environment variable, then to DefaultPath, and finally to
// built-in defaults when no file is present. Environment overrides are
// applied last.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv("FAULTLINE_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
			// Missing files are tolerated so containers can run on defaults.
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Site:           "datadoghq.com",
			ConnectTimeout: 10 * time.Second,
			ReadTimeout:    120 * time.Second,
			RateLimitRPS:   0,
			PageSize:       1000,
			LogMaxPages:    5,
			SpanMaxPages:   2,
			MonitorTTL:     5 * time.Minute,
		},
		Cache: CacheConfig{
			Backend:      "memory",
			MaxKeys:      4096,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
		},
		Analysis: AnalysisConfig{
			WindowMinutes:  60,
			CandidateLimit: 20,
			EventLimit:     20,
		},
		Incidents: IncidentsConfig{
			MaxEntries: 256,
			TTL:        30 * time.Minute,
		},
		Rules: RulesConfig{
			Path: "configs/rules/default.yaml",
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  true,
		},
		Sink: SinkConfig{
			Timeout: 10 * time.Second,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FAULTLINE_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("FAULTLINE_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("FAULTLINE_GRACEFUL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.GracefulTimeout = d
		}
	}

	// DD_* variables follow the vendor convention so existing agent
	// environments work unchanged; FAULTLINE_* wins when both are set.
	if v := os.Getenv("DD_SITE"); v != "" {
		cfg.Telemetry.Site = v
	}
	if v := os.Getenv("DD_API_KEY"); v != "" {
		cfg.Telemetry.APIKey = v
	}
	if v := os.Getenv("DD_APP_KEY"); v != "" {
		cfg.Telemetry.AppKey = v
	}
	if v := os.Getenv("FAULTLINE_SITE"); v != "" {
		cfg.Telemetry.Site = v
	}
	if v := os.Getenv("FAULTLINE_API_KEY"); v != "" {
		cfg.Telemetry.APIKey = v
	}
	if v := os.Getenv("FAULTLINE_APP_KEY"); v != "" {
		cfg.Telemetry.AppKey = v
	}
	if v := os.Getenv("FAULTLINE_CONNECT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Telemetry.ConnectTimeout = d
		}
	}
	if v := os.Getenv("FAULTLINE_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Telemetry.ReadTimeout = d
		}
	}
	if v := os.Getenv("FAULTLINE_RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Telemetry.RateLimitRPS = f
		}
	}
	if v := os.Getenv("FAULTLINE_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Telemetry.PageSize = n
		}
	}
	if v := os.Getenv("FAULTLINE_LOG_MAX_PAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Telemetry.LogMaxPages = n
		}
	}
	if v := os.Getenv("FAULTLINE_SPAN_MAX_PAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Telemetry.SpanMaxPages = n
		}
	}
	if v := os.Getenv("FAULTLINE_MONITOR_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Telemetry.MonitorTTL = d
		}
	}

	if v := os.Getenv("FAULTLINE_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("FAULTLINE_CACHE_MAX_KEYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxKeys = n
		}
	}
	if v := os.Getenv("FAULTLINE_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("FAULTLINE_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("FAULTLINE_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("FAULTLINE_CACHE_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = n
		}
	}
	if v := os.Getenv("FAULTLINE_CACHE_TLS"); v != "" {
		cfg.Cache.TLS = strings.EqualFold(v, "true") || v == "1"
	}

	if v := os.Getenv("FAULTLINE_WINDOW_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.WindowMinutes = n
		}
	}
	if v := os.Getenv("FAULTLINE_CLUSTER_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.ClusterLimit = n
		}
	}
	if v := os.Getenv("FAULTLINE_CANDIDATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.CandidateLimit = n
		}
	}
	if v := os.Getenv("FAULTLINE_EVENT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.EventLimit = n
		}
	}

	if v := os.Getenv("FAULTLINE_INCIDENT_MAX_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Incidents.MaxEntries = n
		}
	}
	if v := os.Getenv("FAULTLINE_INCIDENT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Incidents.TTL = d
		}
	}

	if v := os.Getenv("FAULTLINE_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}

	if v := os.Getenv("FAULTLINE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FAULTLINE_LOG_JSON"); v != "" {
		cfg.Logging.JSON = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("FAULTLINE_LOG_FILE"); v != "" {
		cfg.Logging.File.Path = v
	}

	if v := os.Getenv("FAULTLINE_SINK_ENDPOINT"); v != "" {
		cfg.Sink.Endpoint = v
	}
	if v := os.Getenv("FAULTLINE_SINK_API_KEY"); v != "" {
		cfg.Sink.APIKey = v
	}
}

func (c *Config) validate() error {
	if c.Server.Address == "" {
		return errors.New("server.address must not be empty")
	}
	if c.Telemetry.Site == "" {
		return errors.New("telemetry.site must not be empty")
	}
	if c.Telemetry.PageSize <= 0 {
		return fmt.Errorf("telemetry.pageSize must be positive, got %d", c.Telemetry.PageSize)
	}
	if c.Analysis.WindowMinutes <= 0 {
		return fmt.Errorf("analysis.windowMinutes must be positive, got %d", c.Analysis.WindowMinutes)
	}
	switch c.Cache.Backend {
	case "memory", "valkey", "none":
	default:
		return fmt.Errorf("cache.backend must be one of memory, valkey, none; got %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "valkey" && c.Cache.Addr == "" {
		return errors.New("cache.addr is required when cache.backend is valkey")
	}
	return nil
}
