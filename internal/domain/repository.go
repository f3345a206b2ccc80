package domain

import (
	"context"
	"fmt"
	"time"
)

// TrainingCorpus is a labelled set of derived feature vectors used to fit the
// suspicion classifier.
type TrainingCorpus struct {
	ID            string      `json:"id"`
	Seed          int64       `json:"seed"`
	Size          int         `json:"size"`
	LegitFraction float64     `json:"legitFraction"`
	Features      [][]float64 `json:"-"`
	Labels        []int       `json:"-"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// Key identifies a corpus by its generation parameters.
func (c *TrainingCorpus) Key() string {
	return CorpusKey(c.Seed, c.Size, c.LegitFraction)
}

// CorpusKey builds the lookup key for corpus generation parameters.
func CorpusKey(seed int64, size int, legitFraction float64) string {
	return fmt.Sprintf("seed=%d/size=%d/legit=%.3f", seed, size, legitFraction)
}

// CorpusRepository persists synthetic training corpora so every start and
// reload fits the classifier on the same data.
type CorpusRepository interface {
	SaveCorpus(ctx context.Context, corpus *TrainingCorpus) error

	// GetCorpus returns ErrNotFound (from the repository package) when absent.
	GetCorpus(ctx context.Context, key string) (*TrainingCorpus, error)

	ListCorpora(ctx context.Context) ([]*TrainingCorpus, error)
	DeleteCorpus(ctx context.Context, key string) error

	Ping(ctx context.Context) error
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "none", "sqlite" or "postgres"
	Driver string `json:"driver" mapstructure:"driver"`

	SQLitePath string `json:"sqlitePath" mapstructure:"sqlite_path"`

	PostgresHost     string `json:"postgresHost" mapstructure:"postgres_host"`
	PostgresPort     int    `json:"postgresPort" mapstructure:"postgres_port"`
	PostgresUser     string `json:"postgresUser" mapstructure:"postgres_user"`
	PostgresPassword string `json:"-" mapstructure:"postgres_password"`
	PostgresDB       string `json:"postgresDb" mapstructure:"postgres_db"`
	PostgresSSLMode  string `json:"postgresSslMode" mapstructure:"postgres_ssl_mode"`

	MaxOpenConns    int           `json:"maxOpenConns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `json:"maxIdleConns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" mapstructure:"conn_max_lifetime"`
}
