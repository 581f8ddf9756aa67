package jobstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/marcboeker/go-duckdb"

	_ "modernc.org/sqlite"
)

// Config selects and tunes the storage engine.
type Config struct {
	Driver       string // sqlite, postgres or duckdb
	DSN          string
	MaxOpenConns int
	DialTimeout  time.Duration
}

// Open connects to the configured engine and prepares the schema.
//
// sqlite is the default: WAL mode plus a busy timeout lets the API process
// and several workers share one database file. duckdb allows a single
// writing process only and is meant for inline-only deployments.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*SQLStore, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	logger = logger.With("component", "jobstore", "driver", cfg.Driver)

	var (
		db          *sql.DB
		dialectName string
		closers     []func()
		err         error
	)
	switch cfg.Driver {
	case "sqlite", "":
		db, err = openSQLite(cfg.DSN)
		dialectName = dialectSQLite
	case "postgres":
		var pool *pgxpool.Pool
		db, pool, err = openPostgres(ctx, cfg)
		dialectName = dialectPostgres
		if pool != nil {
			closers = append(closers, pool.Close)
		}
	case "duckdb":
		db, err = openDuckDB(cfg.DSN)
		dialectName = dialectSQLite
	default:
		return nil, fmt.Errorf("unsupported job store driver %q", cfg.Driver)
	}
	if err != nil {
		logger.Error("failed to open job store", "error", err)
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		for _, c := range closers {
			c()
		}
		logger.Error("job store ping failed", "error", err)
		return nil, fmt.Errorf("pinging job store: %w", err)
	}

	store, err := NewSQLStore(ctx, db, dialectName, logger)
	if err != nil {
		db.Close()
		for _, c := range closers {
			c()
		}
		return nil, err
	}
	store.closers = closers

	logger.Info("job store ready")
	return store, nil
}

const (
	dialectSQLite   = dialect.SQLite
	dialectPostgres = dialect.Postgres
)

func openSQLite(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite: empty dsn")
	}
	if !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("sqlite: creating directory: %w", err)
		}
		dsn = "file:" + dsn +
			"?_pragma=busy_timeout(5000)" +
			"&_pragma=journal_mode(WAL)" +
			"&_pragma=synchronous(FULL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return db, nil
}

func openPostgres(ctx context.Context, cfg Config) (*sql.DB, *pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		pc.MaxConns = int32(cfg.MaxOpenConns)
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "financial-document-analyzer"

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}

	return stdlib.OpenDBFromPool(pool), pool, nil
}

func openDuckDB(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("duckdb: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("duckdb: creating directory: %w", err)
	}
	connector, err := duckdb.NewConnector(path, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("duckdb: failed to create connector: %w", err)
	}
	return sql.OpenDB(connector), nil
}
