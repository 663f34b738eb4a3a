// Package database owns the PostgreSQL connection pool, schema migrations,
// and the gorm handle the services are built on.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Client bundles the two views of the same pool: the raw handle for
// pg_notify and migrations, and the gorm handle for the services.
type Client struct {
	SQL  *sql.DB
	Gorm *gorm.DB
	dsn  string
}

// Connect opens the pool, applies pending migrations, and wraps the pool
// with gorm.
func Connect(dsn string) (*Client, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialising gorm: %w", err)
	}

	slog.Info("Database connected")
	return &Client{SQL: db, Gorm: gdb, dsn: dsn}, nil
}

// DSN returns the connection string, used by the notify listener to open
// its dedicated connection.
func (c *Client) DSN() string {
	return c.dsn
}

// Ping reports pool health.
func (c *Client) Ping(ctx context.Context) error {
	return c.SQL.PingContext(ctx)
}

// Close releases the pool.
func (c *Client) Close() error {
	return c.SQL.Close()
}

// runMigrations applies the embedded schema migrations. Only the source is
// closed afterwards: closing the migrate instance itself would close the
// shared *sql.DB.
func runMigrations(db *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("preparing migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("initialising migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}

	if err := source.Close(); err != nil {
		return fmt.Errorf("closing migration source: %w", err)
	}

	version, dirty, _ := m.Version()
	slog.Info("Schema migrations applied", "version", version, "dirty", dirty)
	return nil
}
