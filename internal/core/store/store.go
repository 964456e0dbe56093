// Package store persists the rate ledger and the write journal in libsql,
// either a local SQLite file or a remote Turso database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/livetrack/livetrack/internal/config"
)

const driverLibsql = "libsql"

// localBusyTimeoutMs is how long a local writer waits on a locked database.
const localBusyTimeoutMs = 5000

// Store wraps the libsql connection holding the rate ledger and write journal.
type Store struct {
	DB     *sql.DB
	driver string
	remote bool
}

// target is a resolved connection string.
type target struct {
	dsn string
	// dir is created before opening a local file database.
	dir    string
	remote bool
}

// Open connects to the configured database and, for local files, switches
// it to WAL with a busy timeout. Call Migrate before use.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if driver := strings.TrimSpace(cfg.Driver); driver != "" && driver != driverLibsql {
		return nil, fmt.Errorf("unsupported store driver %q (only %s)", driver, driverLibsql)
	}

	t, err := resolveTarget(cfg)
	if err != nil {
		return nil, err
	}
	if t.dir != "" {
		// #nosec G301 -- data directory shared with the user's other tools
		if err := os.MkdirAll(t.dir, 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open(driverLibsql, t.dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}
	if !t.remote {
		if err := tuneLocal(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return &Store{DB: db, driver: driverLibsql, remote: t.remote}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Driver returns the store driver name.
func (s *Store) Driver() string {
	if s == nil {
		return ""
	}
	return s.driver
}

// Remote reports whether the store is a network database.
func (s *Store) Remote() bool {
	return s != nil && s.remote
}

// tuneLocal pins a local database to one connection. The reconciler and the
// journal sink write from different goroutines, and every pooled connection
// to :memory: would otherwise see its own empty database.
func tuneLocal(ctx context.Context, db *sql.DB) error {
	db.SetMaxOpenConns(1)

	var mode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&mode); err != nil {
		return fmt.Errorf("enable wal: %w", err)
	}
	var timeout int
	if err := db.QueryRowContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", localBusyTimeoutMs)).Scan(&timeout); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	return nil
}

// resolveTarget turns store.url or store.path into a libsql DSN. A url wins
// over a path; a bare path becomes a file: DSN.
func resolveTarget(cfg config.StoreConfig) (target, error) {
	if raw := strings.TrimSpace(cfg.URL); raw != "" {
		dsn, err := withAuthToken(raw, cfg.AuthToken)
		return target{dsn: dsn, remote: true}, err
	}

	path := strings.TrimSpace(cfg.Path)
	switch {
	case path == "":
		return target{}, errors.New("store.path or store.url is required")
	case path == ":memory:":
		return target{dsn: path}, nil
	case strings.HasPrefix(path, "libsql:"), strings.HasPrefix(path, "http:"), strings.HasPrefix(path, "https:"):
		dsn, err := withAuthToken(path, cfg.AuthToken)
		return target{dsn: dsn, remote: true}, err
	case strings.HasPrefix(path, "file:"):
		local, err := filePath(path)
		if err != nil {
			return target{}, err
		}
		return target{dsn: path, dir: parentDir(local)}, nil
	default:
		clean := filepath.Clean(path)
		return target{dsn: "file:" + clean, dir: parentDir(clean)}, nil
	}
}

func withAuthToken(dsn, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return dsn, nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store url: %w", err)
	}
	query := parsed.Query()
	if query.Get("authToken") == "" {
		query.Set("authToken", token)
		parsed.RawQuery = query.Encode()
	}
	return parsed.String(), nil
}

// filePath extracts the filesystem path from a file: DSN, ignoring any
// query parameters.
func filePath(dsn string) (string, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store path: %w", err)
	}
	path := parsed.Path
	if path == "" {
		path = parsed.Opaque
	}
	return strings.TrimPrefix(path, "//"), nil
}

func parentDir(path string) string {
	dir := filepath.Dir(path)
	if dir == "." || dir == string(filepath.Separator) {
		return ""
	}
	return dir
}

var errNotInitialized = errors.New("store is not initialized")

// use checks the store is open and substitutes a background context for nil.
func (s *Store) use(ctx context.Context) (context.Context, error) {
	if s == nil || s.DB == nil {
		return nil, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx, nil
}
