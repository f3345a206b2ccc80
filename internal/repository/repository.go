// Package repository persists synthetic training corpora.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.CorpusRepository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a corpus repository based on configuration.
// Driver "none" (or empty) means no persistence and returns nil, nil.
func New(cfg domain.RepositoryConfig) (domain.CorpusRepository, error) {
	if cfg.Driver == "" || cfg.Driver == "none" {
		return nil, nil
	}

	db, err := open(cfg.Driver, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveCorpus replaces any stored corpus with the same key.
func (r *SQLRepository) SaveCorpus(ctx context.Context, corpus *domain.TrainingCorpus) error {
	if corpus == nil || len(corpus.Features) == 0 {
		return fmt.Errorf("%w: corpus is empty", ErrInvalidInput)
	}
	if len(corpus.Features) != len(corpus.Labels) {
		return fmt.Errorf("%w: %d feature rows but %d labels", ErrInvalidInput, len(corpus.Features), len(corpus.Labels))
	}
	if corpus.ID == "" {
		corpus.ID = uuid.New().String()
	}
	if corpus.CreatedAt.IsZero() {
		corpus.CreatedAt = time.Now().UTC()
	}
	key := corpus.Key()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM training_samples WHERE corpus_key = ?`), key); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM training_corpora WHERE corpus_key = ?`), key); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, r.rebind(`
		INSERT INTO training_corpora (corpus_key, id, seed, size, legit_fraction, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), key, corpus.ID, corpus.Seed, corpus.Size, corpus.LegitFraction, corpus.CreatedAt)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO training_samples (corpus_key, idx, features, label)
		VALUES (?, ?, ?, ?)
	`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, row := range corpus.Features {
		features, err := json.Marshal(row)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, key, i, string(features), corpus.Labels[i]); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetCorpus loads a corpus and its samples in their original order.
func (r *SQLRepository) GetCorpus(ctx context.Context, key string) (*domain.TrainingCorpus, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: key is required", ErrInvalidInput)
	}

	corpus := &domain.TrainingCorpus{}
	err := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT id, seed, size, legit_fraction, created_at
		FROM training_corpora WHERE corpus_key = ?
	`), key).Scan(&corpus.ID, &corpus.Seed, &corpus.Size, &corpus.LegitFraction, &corpus.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT features, label FROM training_samples
		WHERE corpus_key = ? ORDER BY idx
	`), key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var features string
		var label int
		if err := rows.Scan(&features, &label); err != nil {
			return nil, err
		}
		var row []float64
		if err := json.Unmarshal([]byte(features), &row); err != nil {
			return nil, fmt.Errorf("corrupt sample in corpus %s: %w", key, err)
		}
		corpus.Features = append(corpus.Features, row)
		corpus.Labels = append(corpus.Labels, label)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(corpus.Features) != corpus.Size {
		return nil, fmt.Errorf("corpus %s is incomplete: %d of %d samples", key, len(corpus.Features), corpus.Size)
	}

	return corpus, nil
}

// ListCorpora returns stored corpus descriptors without samples.
func (r *SQLRepository) ListCorpora(ctx context.Context) ([]*domain.TrainingCorpus, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, seed, size, legit_fraction, created_at
		FROM training_corpora ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var corpora []*domain.TrainingCorpus
	for rows.Next() {
		c := &domain.TrainingCorpus{}
		if err := rows.Scan(&c.ID, &c.Seed, &c.Size, &c.LegitFraction, &c.CreatedAt); err != nil {
			return nil, err
		}
		corpora = append(corpora, c)
	}
	return corpora, rows.Err()
}

// DeleteCorpus removes a corpus and its samples.
func (r *SQLRepository) DeleteCorpus(ctx context.Context, key string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM training_samples WHERE corpus_key = ?`), key); err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM training_corpora WHERE corpus_key = ?`), key)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
