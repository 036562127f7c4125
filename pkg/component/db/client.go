// Package db opens the gorm connection shared by the fingerprint and history stores.
// MySQL, PostgreSQL and SQLite (pure Go, used by tests and single-node setups) are supported.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	mysqldriver "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	options "github.com/kart-io/dataagent/pkg/options/db"
)

// Client wraps gorm.DB.
type Client struct {
	db   *gorm.DB
	opts *options.Options
}

// New validates opts, opens the connection, configures the pool and pings.
func New(ctx context.Context, opts *options.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("db options cannot be nil")
	}
	if errs := opts.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid db options: %w", utilerrors.NewAggregate(errs))
	}

	var dialector gorm.Dialector
	switch opts.Driver {
	case options.DriverPostgres:
		dialector = postgres.Open(opts.DSN())
	case options.DriverSQLite:
		dialector = sqlite.Open(opts.DSN())
	default:
		dialector = mysqldriver.Open(opts.DSN())
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: NewGormLogger(logLevel(opts.LogLevel), 200*time.Millisecond, true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", opts.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if opts.MaxIdleConnections > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConnections)
	}
	if opts.MaxOpenConnections > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConnections)
	}
	if opts.MaxConnectionLifeTime > 0 {
		sqlDB.SetConnMaxLifetime(opts.MaxConnectionLifeTime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", opts.Driver, err)
	}

	return &Client{db: db, opts: opts}, nil
}

func logLevel(level int) gormlogger.LogLevel {
	switch level {
	case 2:
		return gormlogger.Error
	case 3:
		return gormlogger.Warn
	case 4:
		return gormlogger.Info
	default:
		return gormlogger.Silent
	}
}

// Name returns the driver name.
func (c *Client) Name() string {
	return c.opts.Driver
}

// Ping checks if the connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the connection pool.
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// DB returns the underlying gorm.DB instance.
func (c *Client) DB() *gorm.DB {
	return c.db
}

// SQLDB returns the underlying sql.DB instance.
func (c *Client) SQLDB() (*sql.DB, error) {
	return c.db.DB()
}
