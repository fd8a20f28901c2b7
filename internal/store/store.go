// Package store persists rotations, places, submitters, species, the
// residency ledger and the raw report log with gorm.
//
// A Store is bound either to the connection pool or to one transaction; both
// expose the same methods, so code that runs inside Tx uses the Store it is
// handed and never the outer one.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/duck57/poke-db/internal/domain"
)

// Supported drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Options configures Open.
type Options struct {
	Driver string
	DSN    string
	// Debug logs every statement; otherwise only slow queries and failures
	// are logged.
	Debug bool
	// Logger receives gorm's statement log. Nil discards it.
	Logger *slog.Logger
}

const slowQueryThreshold = 200 * time.Millisecond

// Store is the gorm-backed persistence layer.
type Store struct {
	db     *gorm.DB
	driver string
}

// Open connects to the configured database. It does not migrate.
func Open(opts Options) (*Store, error) {
	logLevel := logger.Warn
	if opts.Debug {
		logLevel = logger.Info
	}
	cfg := &gorm.Config{
		Logger:         newGormLogger(opts.Logger, logLevel),
		TranslateError: true,
		NowFunc: func() time.Time {
			return domain.Now()
		},
	}

	switch opts.Driver {
	case DriverSQLite, "":
		dsn := opts.DSN
		if !strings.Contains(dsn, "?") && dsn != ":memory:" {
			dsn += "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"
		}
		db, err := gorm.Open(sqlite.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get underlying database: %w", err)
		}
		// SQLite allows one writer; a single connection turns lock contention
		// into queueing instead of SQLITE_BUSY inside transactions.
		sqlDB.SetMaxOpenConns(1)
		return &Store{db: db, driver: DriverSQLite}, nil

	case DriverMySQL:
		db, err := gorm.Open(mysql.Open(opts.DSN), cfg)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get underlying database: %w", err)
		}
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetConnMaxLifetime(time.Hour)
		return &Store{db: db, driver: DriverMySQL}, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
}

// newGormLogger sends gorm's log through slog. Record-not-found is never
// logged.
func newGormLogger(l *slog.Logger, level logger.LogLevel) logger.Interface {
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger.NewSlogLogger(l.With("component", "gorm"), logger.Config{
		SlowThreshold:             slowQueryThreshold,
		IgnoreRecordNotFoundError: true,
		LogLevel:                  level,
	})
}

// New wraps an already opened gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db, driver: db.Dialector.Name()}
}

// Migrate creates or updates every table.
func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&domain.Region{},
		&domain.City{},
		&domain.Neighborhood{},
		&domain.Park{},
		&domain.AltName{},
		&domain.Submitter{},
		&domain.Species{},
		&domain.RotationPeriod{},
		&domain.LedgerEntry{},
		&domain.RawReport{},
		&domain.ImportCursor{},
	)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Tx runs fn inside one database transaction. fn must use the Store it is
// given; the receiver's connection may be unavailable until fn returns.
func (s *Store) Tx(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, driver: s.driver})
	})
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// CheckReadiness reports whether the database answers a ping.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.Ping(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB exposes the gorm handle for tests that need to plant rows directly.
func (s *Store) DB() *gorm.DB { return s.db }

// MySQL server errors a transaction can recover from by running again.
const (
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// IsRetryable reports whether err came from a transaction that lost a lock
// conflict with a concurrent one. Running the whole transaction again is safe.
func IsRetryable(err error) bool {
	var myErr *mysqldrv.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDeadlock || myErr.Number == mysqlLockWaitTimeout
	}
	return false
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

// parkScope limits a parks query to one geographic container.
func parkScope(scope domain.PlaceScope) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if scope.Unscoped() {
			return db
		}
		switch scope.Kind {
		case domain.ScopePark:
			return db.Where("parks.id = ?", scope.ID)
		case domain.ScopeNeighborhood:
			return db.Where("parks.neighborhood_id = ?", scope.ID)
		case domain.ScopeCity:
			return db.Where("parks.neighborhood_id IN (?)",
				db.Session(&gorm.Session{NewDB: true}).Model(&domain.Neighborhood{}).Select("id").Where("city_id = ?", scope.ID))
		case domain.ScopeRegion:
			return db.Where("parks.neighborhood_id IN (?)",
				db.Session(&gorm.Session{NewDB: true}).Model(&domain.Neighborhood{}).Select("id").Where("region_id = ?", scope.ID))
		}
		return db
	}
}

// ledgerScope limits a ledger query to parks within one container.
func ledgerScope(scope domain.PlaceScope) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if scope.Unscoped() {
			return db
		}
		parks := db.Session(&gorm.Session{NewDB: true}).Model(&domain.Park{}).Select("parks.id").Scopes(parkScope(scope))
		return db.Where("ledger_entries.park_id IN (?)", parks)
	}
}

// Driver names the database driver in use.
func (s *Store) Driver() string { return s.driver }
