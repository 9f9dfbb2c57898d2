package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/m3rciful/tunebot/internal/config"
	"github.com/m3rciful/tunebot/internal/logger"
)

// PostgresStore implements Store over a one-row-per-user JSONB table, for
// deployments that keep bot state in the database instead of a local file.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an established connection.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Connect opens the database connection, configures the pool, and verifies connectivity.
func Connect(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, cfg.SSLMode,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		logger.STORE.Error("db connect failed",
			slog.String("event", "db.connect"),
			slog.String("host", cfg.Host),
			slog.String("db", cfg.Name),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	pool := cfg.MaxConnections
	if pool <= 0 {
		pool = 4
	}
	db.SetMaxOpenConns(pool)
	db.SetMaxIdleConns(pool)

	logger.STORE.Info("db connected",
		slog.String("event", "db.connect"),
		slog.String("host", cfg.Host),
		slog.String("db", cfg.Name),
		slog.Int("pool_open", pool),
		slog.Duration("duration", logger.Took(start)),
	)
	return db, nil
}

// RunMigrations applies all up migrations from the migrations directory.
func RunMigrations(cfg config.DatabaseConfig) error {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, cfg.SSLMode,
	)
	if err := waitForPostgres(dsn, 30*time.Second); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}

	m, err := migrate.New("file://migrations", dsn)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migrate up: %w", err)
	}
	logger.STORE.Info("migrations applied", slog.String("event", "db.migrate"))
	return nil
}

func waitForPostgres(dsn string, timeout time.Duration) error {
	start := time.Now()
	var lastErr error
	for {
		db, err := sql.Open("postgres", dsn)
		if err == nil {
			if err = db.Ping(); err == nil {
				_ = db.Close()
				return nil
			}
			_ = db.Close()
		}
		lastErr = err
		if time.Since(start) > timeout {
			return fmt.Errorf("timeout reached waiting for database: %w", lastErr)
		}
		time.Sleep(2 * time.Second)
	}
}

type userRow struct {
	UserID string `db:"user_id"`
	Record []byte `db:"record"`
}

// Load reads every user record. Fails soft: any error yields an empty mapping.
func (s *PostgresStore) Load() (map[string]*User, error) {
	users := make(map[string]*User)

	var rows []userRow
	if err := s.db.Select(&rows, `SELECT user_id, record FROM user_sessions`); err != nil {
		return users, fmt.Errorf("select sessions: %w", err)
	}
	for _, row := range rows {
		var u User
		if err := json.Unmarshal(row.Record, &u); err != nil {
			// one bad row must not take down the rest of the state
			logger.STORE.Warn("skipping malformed session row",
				slog.String("event", "db.load"),
				slog.String("user_id", row.UserID),
				slog.String("err", err.Error()),
			)
			continue
		}
		users[row.UserID] = &u
	}
	return users, nil
}

// Save upserts every user record in one transaction. Users are never deleted,
// so upserting the full mapping keeps the table a complete snapshot.
func (s *PostgresStore) Save(users map[string]*User) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for id, user := range users {
		record, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("encode user %s: %w", id, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO user_sessions (user_id, record, updated_at)
			 VALUES ($1, $2, now())
			 ON CONFLICT (user_id) DO UPDATE SET record = $2, updated_at = now()`,
			id, record,
		); err != nil {
			return fmt.Errorf("upsert user %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}
