package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	_ "modernc.org/sqlite"

	"github.com/hpungsan/scriptflow/internal/config"
	"github.com/hpungsan/scriptflow/internal/errors"
)

// CurrentSchemaVersion is the latest record schema version.
// Bump this when adding a migration step.
//
//	v1: project has title + script only
//	v2: project has chatHistories {brainstorm: [], assistant: []}
//	v3: project has a single chatHistory with per-message context and timestamp
const CurrentSchemaVersion = 3

// DBFileName is the store file created inside the base directory.
const DBFileName = "scriptflow.db"

// ErrClosed is returned by operations on a store after Close.
var ErrClosed = stderrors.New("store is closed")

// Options configures a Store.
type Options struct {
	// BaseDir holds the database file and the exports directory.
	// Tests pass t.TempDir().
	BaseDir string

	// ExpectedVersion is the schema version the caller works with.
	// 0 means CurrentSchemaVersion.
	ExpectedVersion int

	Logger *slog.Logger

	// Now is the clock used for createdAt/updatedAt. nil means time.Now.
	Now func() time.Time

	// Pool limits, applied only when non-zero.
	MaxOpenConns int
	MaxIdleConns int
}

// Store is the process-wide handle to the local project store.
// It opens lazily on first use; concurrent first callers share one open.
type Store struct {
	baseDir string
	version int
	opts    Options
	logger  *slog.Logger
	now     func() time.Time

	group singleflight.Group

	mu       sync.RWMutex
	db       *sql.DB
	closed   bool
	warnings []MigrationWarning

	// writeMu serializes read-modify-write cycles.
	writeMu sync.Mutex
}

// New constructs a Store without touching the disk.
func New(opts Options) *Store {
	version := opts.ExpectedVersion
	if version == 0 {
		version = CurrentSchemaVersion
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		baseDir: opts.BaseDir,
		version: version,
		opts:    opts,
		logger:  logger.With("component", "store"),
		now:     now,
	}
}

// Open constructs a Store and opens it immediately.
func Open(ctx context.Context, opts Options) (*Store, error) {
	s := New(opts)
	if err := s.Open(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// NewFromConfig builds a lazily-opened store using pool settings from cfg.
func NewFromConfig(baseDir string, cfg *config.Config, logger *slog.Logger) *Store {
	opts := Options{BaseDir: baseDir, Logger: logger}
	if cfg != nil {
		opts.MaxOpenConns = cfg.DBMaxOpenConns
		opts.MaxIdleConns = cfg.DBMaxIdleConns
	}
	return New(opts)
}

// Open opens the store if it is not open yet. It is safe to call repeatedly
// and from several goroutines; only one open runs at a time.
func (s *Store) Open(ctx context.Context) error {
	_, err := s.handle(ctx)
	if stderrors.Is(err, ErrClosed) {
		return errors.NewStoreUnavailable(err)
	}
	return err
}

// Version returns the schema version this store was opened for.
func (s *Store) Version() int {
	return s.version
}

// Path returns the database file path.
func (s *Store) Path() string {
	return filepath.Join(s.baseDir, DBFileName)
}

// ExportsDir returns the directory for exported scripts and generated images.
func (s *Store) ExportsDir() string {
	return filepath.Join(s.baseDir, "exports")
}

// Warnings returns the migration warnings collected when the store was opened.
func (s *Store) Warnings() []MigrationWarning {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]MigrationWarning, len(s.warnings))
	copy(out, s.warnings)
	return out
}

// Close releases the database handle. Later operations fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// handle returns the open *sql.DB, opening it on first use.
func (s *Store) handle(ctx context.Context) (*sql.DB, error) {
	s.mu.RLock()
	db, closed := s.db, s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if db != nil {
		return db, nil
	}

	v, err, _ := s.group.Do("open", func() (any, error) {
		s.mu.RLock()
		existing := s.db
		s.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		db, warnings, err := s.open(ctx)
		if err != nil {
			s.logger.Error("failed to open store", "path", s.Path(), "error", err)
			return nil, errors.NewStoreUnavailable(err)
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			db.Close()
			return nil, ErrClosed
		}
		s.db = db
		s.warnings = warnings
		return db, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*sql.DB), nil
}

// open creates the base directory, opens SQLite, and migrates to s.version.
func (s *Store) open(ctx context.Context) (*sql.DB, []MigrationWarning, error) {
	if s.version < 1 || s.version > CurrentSchemaVersion {
		return nil, nil, fmt.Errorf("unsupported schema version %d (supported 1..%d)", s.version, CurrentSchemaVersion)
	}
	if s.baseDir == "" {
		return nil, nil, stderrors.New("base directory is required")
	}

	// Create base directory with restricted permissions
	if err := os.MkdirAll(s.baseDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(s.baseDir, 0700)

	if err := os.MkdirAll(s.ExportsDir(), 0700); err != nil {
		return nil, nil, fmt.Errorf("failed to create exports directory: %w", err)
	}
	_ = os.Chmod(s.ExportsDir(), 0700)

	// Pragmas in the connection string apply to every pooled connection
	dsn := s.Path() + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to reach database: %w", err)
	}

	if err := verifyWALMode(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}

	configurePool(db, s.opts.MaxOpenConns, s.opts.MaxIdleConns)

	warnings, err := migrate(ctx, db, s.version, s.logger)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	_ = os.Chmod(s.Path(), 0600)

	return db, warnings, nil
}

// configurePool applies connection pool limits when explicitly configured.
func configurePool(db *sql.DB, maxOpen, maxIdle int) {
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(ctx context.Context, db *sql.DB) error {
	var journalMode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the stored schema version (user_version pragma).
func GetUserVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the stored schema version (user_version pragma).
func SetUserVersion(ctx context.Context, db *sql.DB, version int) error {
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version=%d", version)); err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
