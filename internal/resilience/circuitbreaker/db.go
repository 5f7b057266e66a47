package circuitbreaker

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
)

// sqliteConstraint is SQLITE_CONSTRAINT; extended codes keep it in the low byte.
const sqliteConstraint = 19

// DBCircuitBreaker guards the catalog pool. Reads and writes both go
// through the breaker; errors classified by CatalogFailure decide
// whether the database is considered unhealthy.
type DBCircuitBreaker struct {
	cb *CircuitBreaker
	db *sql.DB
}

// CatalogConfig opens after five consecutive database failures and probes
// again after 30 seconds.
func CatalogConfig() Config {
	return Config{
		Name:             "catalog-db",
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 1.0,
		MinRequests:      5,
		IsFailure:        CatalogFailure,
	}
}

// NewDBCircuitBreaker wraps db with CatalogConfig.
func NewDBCircuitBreaker(db *sql.DB) *DBCircuitBreaker {
	return NewDBCircuitBreakerWithConfig(db, CatalogConfig())
}

// NewDBCircuitBreakerWithConfig wraps db with cfg. A nil cfg.IsFailure
// falls back to CatalogFailure.
func NewDBCircuitBreakerWithConfig(db *sql.DB, cfg Config) *DBCircuitBreaker {
	if cfg.IsFailure == nil {
		cfg.IsFailure = CatalogFailure
	}
	return &DBCircuitBreaker{cb: New(cfg), db: db}
}

// QueryContext runs a query through the breaker.
func (dcb *DBCircuitBreaker) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return Do(dcb.cb, func() (*sql.Rows, error) {
		return dcb.db.QueryContext(ctx, query, args...)
	})
}

// ExecContext runs a statement through the breaker.
func (dcb *DBCircuitBreaker) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return Do(dcb.cb, func() (sql.Result, error) {
		return dcb.db.ExecContext(ctx, query, args...)
	})
}

// CatalogFailure reports whether err means the catalog database is
// unhealthy. Missing rows, cancelled requests and constraint violations
// are answers about the request, not the database.
func CatalogFailure(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		errors.Is(err, sql.ErrNoRows),
		IsConstraintViolation(err):
		return false
	}
	return true
}

// IsConstraintViolation reports unique, foreign key, not-null and check
// violations from either catalog driver.
func IsConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 23: integrity constraint violation
		return strings.HasPrefix(pgErr.Code, "23")
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code()&0xff == sqliteConstraint
	}
	return false
}
