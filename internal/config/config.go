// Package config loads Kestrel configuration from an optional YAML file,
// a .env file and KESTREL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/joho/godotenv"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. KESTREL_ENGINE_ESTIMATOR.
const EnvPrefix = "KESTREL"

// LoadEnv loads variables from .env files if present. Existing environment
// variables win.
func LoadEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
}

// Load builds the configuration. Defaults come from the tier selected by the
// "tier" key (community unless set to pro), then the config file, then the
// environment. An empty path searches for kestrel.yaml in . and /etc/kestrel.
func Load(path string) (*domain.Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("kestrel")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/kestrel")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Short aliases kept for container platforms.
	_ = v.BindEnv("server.port", "KESTREL_SERVER_PORT", "PORT")
	_ = v.BindEnv("worker.enabled", "KESTREL_WORKER_ENABLED", "KESTREL_WORKER")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	base := domain.DefaultConfig()
	if domain.Tier(strings.ToLower(v.GetString("tier"))) == domain.TierPro {
		base = domain.ProConfig()
	}
	setDefaults(v, "", reflect.ValueOf(*base))

	cfg := &domain.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	if used := v.ConfigFileUsed(); used != "" {
		slog.Debug("config file loaded", "path", used)
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot start with.
func Validate(cfg *domain.Config) error {
	switch cfg.Engine.Estimator {
	case domain.EstimatorNone, domain.EstimatorHeuristic, domain.EstimatorForest:
	default:
		return fmt.Errorf("invalid engine.estimator %q", cfg.Engine.Estimator)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", cfg.Server.Port)
	}
	if f := cfg.Engine.Corpus.LegitFraction; f <= 0 || f >= 1 {
		return fmt.Errorf("engine.corpus.legit_fraction must be between 0 and 1, got %v", f)
	}
	if cfg.RateLimit.Enabled && (cfg.RateLimit.Requests <= 0 || cfg.RateLimit.Window <= 0) {
		return fmt.Errorf("rate_limit requires positive requests and window when enabled")
	}
	if cfg.Worker.Concurrency < 0 {
		return fmt.Errorf("invalid worker.concurrency %d", cfg.Worker.Concurrency)
	}
	return nil
}

// setDefaults registers every leaf of val under its mapstructure key so that
// AutomaticEnv can override keys the config file never mentions.
func setDefaults(v *viper.Viper, prefix string, val reflect.Value) {
	t := val.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		fv := val.Field(i)
		if fv.Kind() == reflect.Struct {
			setDefaults(v, key, fv)
			continue
		}
		v.SetDefault(key, fv.Interface())
	}
}
