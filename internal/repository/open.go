package repository

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"github.com/opensource-finance/kestrel/internal/domain"
	_ "modernc.org/sqlite"
)

const openTimeout = 5 * time.Second

// opener builds a driver name and DSN for database/sql.
type opener func(cfg domain.RepositoryConfig) (driverName, dsn string, err error)

var openers = map[string]opener{
	"sqlite":   sqliteDSN,
	"postgres": postgresDSN,
}

// open connects with the named driver and verifies the connection.
func open(driver string, cfg domain.RepositoryConfig) (*sql.DB, error) {
	build, ok := openers[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	name, dsn, err := build(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", driver, err)
	}

	return db, nil
}

// sqliteDSN uses modernc.org/sqlite, so no cgo. Corpora are written once
// and read at startup; WAL keeps readers off the writer's lock.
func sqliteDSN(cfg domain.RepositoryConfig) (string, string, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = "./kestrel.db"
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", "", fmt.Errorf("failed to create corpus directory: %w", err)
		}
	}

	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "busy_timeout(5000)")
	return "sqlite", "file:" + path + "?" + q.Encode(), nil
}

func postgresDSN(cfg domain.RepositoryConfig) (string, string, error) {
	host := cfg.PostgresHost
	if host == "" {
		host = "localhost"
	}
	port := cfg.PostgresPort
	if port == 0 {
		port = 5432
	}
	dbname := cfg.PostgresDB
	if dbname == "" {
		dbname = "kestrel"
	}
	sslmode := cfg.PostgresSSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     host + ":" + strconv.Itoa(port),
		Path:     "/" + dbname,
		RawQuery: url.Values{"sslmode": {sslmode}}.Encode(),
	}
	if cfg.PostgresUser != "" {
		u.User = url.UserPassword(cfg.PostgresUser, cfg.PostgresPassword)
	}
	return "postgres", u.String(), nil
}
