// Package db establishes and adapts PostgreSQL connections for the
// publisher.
package db

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sheetflow/sheetflow/internal/retry"
	"github.com/sheetflow/sheetflow/pkg/sheetflow"
)

// Connection pool configuration constants.
const (
	// DefaultMaxConns stays small: the ingest loop drives one statement
	// at a time.
	DefaultMaxConns = 4

	// DefaultMinConns keeps one connection warm between poll cycles.
	DefaultMinConns = 1

	// DefaultMaxConnIdleTime keeps connections alive across quiet polling
	// periods to avoid reconnection overhead.
	DefaultMaxConnIdleTime = 30 * time.Minute
)

// StandardConnector implements sheetflow.Connector for username/password
// authentication with automatic retry on transient failures.
type StandardConnector struct {
	config        *sheetflow.ConnectionConfig
	retryExecutor *retry.Executor
}

// NewStandardConnector creates a connector with default retry behavior:
// sheetflow.DefaultRetryMaxAttempts attempts, exponential backoff starting
// at DefaultRetryInitialDelay, capped at DefaultRetryMaxDelay.
func NewStandardConnector(config *sheetflow.ConnectionConfig) *StandardConnector {
	classifier := retry.NewPostgresClassifier()
	strategy := retry.NewExponentialBackoff(sheetflow.DefaultRetryMaxAttempts,
		retry.WithInitialDelay(sheetflow.DefaultRetryInitialDelay),
		retry.WithMaxDelay(sheetflow.DefaultRetryMaxDelay),
	)

	return &StandardConnector{
		config:        config,
		retryExecutor: retry.NewExecutor(classifier, strategy),
	}
}

// Connect establishes a connection pool, retrying transient failures.
func (c *StandardConnector) Connect(ctx context.Context) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	connStr := BuildConnectionString(c.config)

	err := c.retryExecutor.Execute(ctx, func(ctx context.Context) error {
		poolConfig, err := pgxpool.ParseConfig(connStr)
		if err != nil {
			return fmt.Errorf("parse connection config: %w", err)
		}

		poolConfig.MaxConns = DefaultMaxConns
		poolConfig.MinConns = DefaultMinConns
		poolConfig.MaxConnIdleTime = DefaultMaxConnIdleTime

		pool, err = pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return wrapConnectionError(err, c.config)
		}

		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return wrapConnectionError(err, c.config)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return pool, nil
}

func wrapConnectionError(err error, config *sheetflow.ConnectionConfig) error {
	return fmt.Errorf("connect to %s:%d/%s: %v: %w",
		config.Host, config.Port, config.Database, err, sheetflow.ErrConnectionFailed)
}

// BuildConnectionString renders a ConnectionConfig as a postgresql:// URI.
func BuildConnectionString(config *sheetflow.ConnectionConfig) string {
	u := &url.URL{
		Scheme: "postgresql",
		Host:   fmt.Sprintf("%s:%d", config.Host, config.Port),
		Path:   "/" + config.Database,
	}

	if config.Username != "" {
		if config.Password != "" {
			u.User = url.UserPassword(config.Username, config.Password)
		} else {
			u.User = url.User(config.Username)
		}
	}

	query := url.Values{}
	if config.SSLMode != "" {
		query.Set("sslmode", config.SSLMode)
	}
	if config.AppName != "" {
		query.Set("application_name", config.AppName)
	}
	if config.ConnectTimeout > 0 {
		query.Set("connect_timeout", strconv.Itoa(int(config.ConnectTimeout.Seconds())))
	}

	u.RawQuery = query.Encode()
	return u.String()
}
