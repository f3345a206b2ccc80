package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Tier selects infrastructure defaults.
	Tier Tier `json:"tier" mapstructure:"tier"`

	Engine EngineConfig `json:"engine" mapstructure:"engine"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" mapstructure:"repository"`
	Cache      CacheConfig      `json:"cache" mapstructure:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" mapstructure:"event_bus"`
	Worker     WorkerConfig     `json:"worker" mapstructure:"worker"`

	// HTTP edge
	CORS      CORSConfig      `json:"cors" mapstructure:"cors"`
	RateLimit RateLimitConfig `json:"rateLimit" mapstructure:"rate_limit"`

	// Observability
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`
}

// EstimatorKind selects the second-opinion stage of the scorer.
type EstimatorKind string

const (
	// EstimatorNone scores with the rule evaluators only.
	EstimatorNone EstimatorKind = "none"

	// EstimatorHeuristic uses a fixed logistic model, no training required.
	EstimatorHeuristic EstimatorKind = "heuristic"

	// EstimatorForest trains a small random forest on a synthetic corpus at startup.
	EstimatorForest EstimatorKind = "forest"
)

// EngineConfig controls how the analyzer is built.
type EngineConfig struct {
	Estimator EstimatorKind `json:"estimator" mapstructure:"estimator"`
	Forest    ForestConfig  `json:"forest" mapstructure:"forest"`
	Corpus    CorpusConfig  `json:"corpus" mapstructure:"corpus"`
}

// ForestConfig holds random forest hyperparameters.
type ForestConfig struct {
	Trees          int   `json:"trees" mapstructure:"trees"`
	MaxDepth       int   `json:"maxDepth" mapstructure:"max_depth"`
	MinSamplesLeaf int   `json:"minSamplesLeaf" mapstructure:"min_samples_leaf"`
	Seed           int64 `json:"seed" mapstructure:"seed"`
}

// CorpusConfig holds synthetic training corpus parameters.
type CorpusConfig struct {
	Size          int     `json:"size" mapstructure:"size"`
	LegitFraction float64 `json:"legitFraction" mapstructure:"legit_fraction"`
	Seed          int64   `json:"seed" mapstructure:"seed"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	ReadTimeout  int    `json:"readTimeout" mapstructure:"read_timeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" mapstructure:"write_timeout"` // seconds
}

// WorkerConfig controls the asynchronous assessment worker.
type WorkerConfig struct {
	Enabled     bool `json:"enabled" mapstructure:"enabled"`
	Concurrency int  `json:"concurrency" mapstructure:"concurrency"`

	// ResultTTL is how long async results stay retrievable by submission ID.
	ResultTTL time.Duration `json:"resultTtl" mapstructure:"result_ttl"`
}

// CORSConfig lists allowed browser origins. Entries may contain one "*" wildcard.
type CORSConfig struct {
	AllowedOrigins []string `json:"allowedOrigins" mapstructure:"allowed_origins"`
}

// RateLimitConfig holds per-client fixed window limits for scoring endpoints.
type RateLimitConfig struct {
	Enabled  bool          `json:"enabled" mapstructure:"enabled"`
	Requests int           `json:"requests" mapstructure:"requests"`
	Window   time.Duration `json:"window" mapstructure:"window"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"serviceName" mapstructure:"service_name"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs fully in-process: memory cache, channel bus, rule-only scoring.
	TierCommunity Tier = "community"

	// TierPro uses PostgreSQL + NATS + Redis and the trained classifier.
	TierPro Tier = "pro"
)

// DefaultOrigins are the browser origins the bundled dashboard is deployed to.
var DefaultOrigins = []string{
	"http://localhost:3000",
	"https://*.vercel.app",
	"https://suspicious-profile-analyzer.vercel.app",
	"https://*.onrender.com",
	"https://*.railway.app",
	"https://*.fly.dev",
}

// DefaultConfig returns a default configuration for the Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Engine: EngineConfig{
			Estimator: EstimatorNone,
			Forest: ForestConfig{
				Trees:          30,
				MaxDepth:       6,
				MinSamplesLeaf: 1,
				Seed:           42,
			},
			Corpus: CorpusConfig{
				Size:          1000,
				LegitFraction: 0.7,
				Seed:          42,
			},
		},
		Repository: RepositoryConfig{
			Driver:     "none",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Worker: WorkerConfig{
			Enabled:     false,
			Concurrency: 4,
			ResultTTL:   time.Hour,
		},
		CORS: CORSConfig{
			AllowedOrigins: append([]string(nil), DefaultOrigins...),
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: 120,
			Window:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// ProConfig returns a configuration for the Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Engine.Estimator = EstimatorForest
	cfg.Repository = RepositoryConfig{
		Driver:          "postgres",
		PostgresHost:    "localhost",
		PostgresPort:    5432,
		PostgresDB:      "kestrel",
		PostgresSSLMode: "disable",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
		NATSQueueGroup:    "kestrel-workers",
	}
	cfg.Worker.Enabled = true
	cfg.Tracing.Enabled = true
	return cfg
}
