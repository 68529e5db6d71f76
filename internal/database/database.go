// Package database provides the relational store used by the analytics
// event sink. It supports SQLite, PostgreSQL and MySQL through GORM,
// selected by configuration.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/halftimetv/halftime/internal/config"
	"github.com/halftimetv/halftime/internal/observability"
)

// DB wraps a gorm handle with its configuration.
type DB struct {
	gorm   *gorm.DB
	driver string
	logger *slog.Logger
}

// New opens a database connection for the configured driver and applies
// the connection-pool settings.
func New(cfg config.AnalyticsConfig, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = observability.WithComponent(logger, "database")

	dialector, err := getDialector(cfg)
	if err != nil {
		return nil, err
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 &slogGormLogger{logger: logger},
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	logger.Info("database connected", slog.String("driver", driverName(cfg.Driver)))

	return &DB{
		gorm:   gormDB,
		driver: driverName(cfg.Driver),
		logger: logger,
	}, nil
}

func driverName(driver string) string {
	d := strings.ToLower(strings.TrimSpace(driver))
	if d == "" {
		return "sqlite"
	}
	return d
}

func getDialector(cfg config.AnalyticsConfig) (gorm.Dialector, error) {
	dsn := cfg.DSN
	switch driverName(cfg.Driver) {
	case "sqlite", "sqlite3":
		if dsn == "" {
			dsn = "halftime.db"
		}
		if !strings.Contains(dsn, "_pragma") && !strings.HasPrefix(dsn, ":memory:") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"
		}
		return sqlite.Open(dsn), nil
	case "postgres", "postgresql":
		if dsn == "" {
			return nil, fmt.Errorf("postgres driver requires a dsn")
		}
		return postgres.Open(dsn), nil
	case "mysql", "mariadb":
		if dsn == "" {
			return nil, fmt.Errorf("mysql driver requires a dsn")
		}
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// GORM returns the underlying gorm handle.
func (db *DB) GORM() *gorm.DB {
	return db.gorm
}

// WithContext returns a gorm handle bound to ctx.
func (db *DB) WithContext(ctx context.Context) *gorm.DB {
	return db.gorm.WithContext(ctx)
}

// Driver returns the driver name the connection was opened with.
func (db *DB) Driver() string {
	return db.driver
}

// AutoMigrate runs gorm migrations for the given models.
func (db *DB) AutoMigrate(models ...any) error {
	return db.gorm.AutoMigrate(models...)
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Stats returns connection pool statistics.
func (db *DB) Stats() (sql.DBStats, error) {
	sqlDB, err := db.gorm.DB()
	if err != nil {
		return sql.DBStats{}, err
	}
	return sqlDB.Stats(), nil
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	sqlDB, err := db.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// slogGormLogger adapts gorm's logger interface onto slog.
type slogGormLogger struct {
	logger *slog.Logger
}

const slowQueryThreshold = 500 * time.Millisecond

func (l *slogGormLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface {
	return l
}

func (l *slogGormLogger) Info(ctx context.Context, msg string, args ...any) {
	l.logger.InfoContext(ctx, fmt.Sprintf(msg, args...))
}

func (l *slogGormLogger) Warn(ctx context.Context, msg string, args ...any) {
	l.logger.WarnContext(ctx, fmt.Sprintf(msg, args...))
}

func (l *slogGormLogger) Error(ctx context.Context, msg string, args ...any) {
	l.logger.ErrorContext(ctx, fmt.Sprintf(msg, args...))
}

func (l *slogGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && err != gorm.ErrRecordNotFound:
		l.logger.ErrorContext(ctx, "query failed",
			slog.String("error", err.Error()),
			slog.String("sql", sql),
			slog.Duration("elapsed", elapsed))
	case elapsed > slowQueryThreshold:
		l.logger.WarnContext(ctx, "slow query",
			slog.String("sql", sql),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed))
	default:
		l.logger.DebugContext(ctx, "query",
			slog.String("sql", sql),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed))
	}
}
