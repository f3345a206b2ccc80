package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func newTestRepo(t *testing.T) domain.CorpusRepository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() {
		os.Remove(tmpPath)
		os.Remove(tmpPath + "-wal")
		os.Remove(tmpPath + "-shm")
	})

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testCorpus(seed int64) *domain.TrainingCorpus {
	return &domain.TrainingCorpus{
		ID:            "corpus-001",
		Seed:          seed,
		Size:          4,
		LegitFraction: 0.5,
		Features: [][]float64{
			{365, 1.25, 0.5, 1},
			{400, 0.8, 1.75, 1},
			{3, 0.02, 45.5, 0},
			{1, 0.001, 100, 0},
		},
		Labels:    []int{0, 0, 1, 1},
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetCorpus", func(t *testing.T) {
		corpus := testCorpus(42)
		if err := repo.SaveCorpus(ctx, corpus); err != nil {
			t.Fatalf("SaveCorpus failed: %v", err)
		}

		got, err := repo.GetCorpus(ctx, corpus.Key())
		if err != nil {
			t.Fatalf("GetCorpus failed: %v", err)
		}
		if got.ID != corpus.ID {
			t.Errorf("expected ID %s, got %s", corpus.ID, got.ID)
		}
		if got.Seed != 42 || got.Size != 4 || got.LegitFraction != 0.5 {
			t.Errorf("unexpected parameters: seed=%d size=%d legit=%v", got.Seed, got.Size, got.LegitFraction)
		}
		if !reflect.DeepEqual(got.Features, corpus.Features) {
			t.Errorf("features mismatch: got %v", got.Features)
		}
		if !reflect.DeepEqual(got.Labels, corpus.Labels) {
			t.Errorf("labels mismatch: got %v", got.Labels)
		}
	})

	t.Run("SaveReplacesExisting", func(t *testing.T) {
		corpus := testCorpus(7)
		if err := repo.SaveCorpus(ctx, corpus); err != nil {
			t.Fatalf("SaveCorpus failed: %v", err)
		}
		corpus.ID = "corpus-002"
		corpus.Features[0][0] = 999
		if err := repo.SaveCorpus(ctx, corpus); err != nil {
			t.Fatalf("second SaveCorpus failed: %v", err)
		}

		got, err := repo.GetCorpus(ctx, corpus.Key())
		if err != nil {
			t.Fatalf("GetCorpus failed: %v", err)
		}
		if got.ID != "corpus-002" {
			t.Errorf("expected replaced ID corpus-002, got %s", got.ID)
		}
		if got.Features[0][0] != 999 {
			t.Errorf("expected replaced feature 999, got %v", got.Features[0][0])
		}
		if len(got.Features) != 4 {
			t.Errorf("expected 4 samples after replace, got %d", len(got.Features))
		}
	})

	t.Run("GetMissingCorpus", func(t *testing.T) {
		_, err := repo.GetCorpus(ctx, domain.CorpusKey(1, 1, 0.1))
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListCorpora", func(t *testing.T) {
		corpora, err := repo.ListCorpora(ctx)
		if err != nil {
			t.Fatalf("ListCorpora failed: %v", err)
		}
		if len(corpora) != 2 {
			t.Fatalf("expected 2 corpora, got %d", len(corpora))
		}
		for _, c := range corpora {
			if c.Features != nil {
				t.Error("ListCorpora should not load samples")
			}
		}
	})

	t.Run("DeleteCorpus", func(t *testing.T) {
		key := domain.CorpusKey(7, 4, 0.5)
		if err := repo.DeleteCorpus(ctx, key); err != nil {
			t.Fatalf("DeleteCorpus failed: %v", err)
		}
		if _, err := repo.GetCorpus(ctx, key); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := repo.DeleteCorpus(ctx, key); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
	})
}

func TestSaveCorpusInvalidInput(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SaveCorpus(ctx, &domain.TrainingCorpus{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty corpus, got %v", err)
	}

	bad := testCorpus(1)
	bad.Labels = bad.Labels[:2]
	if err := repo.SaveCorpus(ctx, bad); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for mismatched labels, got %v", err)
	}
}

func TestNewNoneDriver(t *testing.T) {
	repo, err := New(domain.RepositoryConfig{Driver: "none"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo != nil {
		t.Error("expected nil repository for driver none")
	}
}

func TestNewUnsupportedDriver(t *testing.T) {
	if _, err := New(domain.RepositoryConfig{Driver: "mysql"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLRepository{driver: "postgres"}
	if got := pg.rebind("SELECT ? WHERE a = ?"); got != "SELECT $1 WHERE a = $2" {
		t.Errorf("unexpected postgres rebind: %s", got)
	}
	lite := &SQLRepository{driver: "sqlite"}
	if got := lite.rebind("SELECT ?"); got != "SELECT ?" {
		t.Errorf("sqlite query should be unchanged, got %s", got)
	}
}

func TestPostgresDSN(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		name, dsn, err := postgresDSN(domain.RepositoryConfig{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if name != "postgres" {
			t.Errorf("expected postgres driver, got %s", name)
		}
		if dsn != "postgres://localhost:5432/kestrel?sslmode=disable" {
			t.Errorf("unexpected dsn: %s", dsn)
		}
	})

	t.Run("EscapesCredentials", func(t *testing.T) {
		_, dsn, _ := postgresDSN(domain.RepositoryConfig{
			PostgresHost:     "db",
			PostgresPort:     6543,
			PostgresUser:     "kestrel",
			PostgresPassword: "p@ss word",
			PostgresDB:       "corpora",
			PostgresSSLMode:  "require",
		})
		if dsn != "postgres://kestrel:p%40ss%20word@db:6543/corpora?sslmode=require" {
			t.Errorf("unexpected dsn: %s", dsn)
		}
	})
}

func TestSQLiteDSN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "corpora.db")
	name, dsn, err := sqliteDSN(domain.RepositoryConfig{SQLitePath: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "sqlite" {
		t.Errorf("expected sqlite driver, got %s", name)
	}
	if !strings.HasPrefix(dsn, "file:"+path+"?") || !strings.Contains(dsn, "journal_mode%28WAL%29") {
		t.Errorf("unexpected dsn: %s", dsn)
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("expected directory to be created: %v", err)
	}
}
