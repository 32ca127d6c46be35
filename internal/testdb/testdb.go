// Package testdb prepares the Postgres database used by integration tests.
// Tests are skipped when DATABASE_URL is not set.
package testdb

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// lockKey serializes test packages that share one database.
const lockKey = 727_001

// Open connects to DATABASE_URL, applies schema.sql and truncates every
// table. The pool is closed when the test ends.
func Open(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("db connection: %v", err)
	}

	lock, err := pool.Acquire(ctx)
	if err != nil {
		pool.Close()
		t.Fatalf("acquire lock connection: %v", err)
	}
	if _, err := lock.Exec(ctx, "SELECT pg_advisory_lock($1)", lockKey); err != nil {
		lock.Release()
		pool.Close()
		t.Fatalf("advisory lock: %v", err)
	}
	t.Cleanup(func() {
		_, _ = lock.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", lockKey)
		lock.Release()
		pool.Close()
	})

	applySchema(t, pool)
	Reset(t, pool)
	return pool
}

func Reset(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, "TRUNCATE bets, rounds, transactions, balances, users"); err != nil {
		t.Fatalf("reset db: %v", err)
	}
}

// SeedUser inserts a user with the given starting balance. The balance is
// written directly, without a ledger row.
func SeedUser(t *testing.T, pool *pgxpool.Pool, telegramID string, balance int64) uuid.UUID {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id := uuid.New()
	if _, err := pool.Exec(ctx, "INSERT INTO users (id, telegram_id, username) VALUES ($1, $2, $3)", id, telegramID, "user"+telegramID); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if _, err := pool.Exec(ctx, "INSERT INTO balances (user_id, balance) VALUES ($1, $2)", id, balance); err != nil {
		t.Fatalf("seed balance: %v", err)
	}
	return id
}

func Balance(t *testing.T, pool *pgxpool.Pool, userID uuid.UUID) int64 {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var balance int64
	if err := pool.QueryRow(ctx, "SELECT balance FROM balances WHERE user_id = $1", userID).Scan(&balance); err != nil {
		t.Fatalf("get balance: %v", err)
	}
	return balance
}

// LedgerSummary returns the number and signed sum of a user's transactions.
func LedgerSummary(t *testing.T, pool *pgxpool.Pool, userID uuid.UUID) (int, int64) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var count int
	var sum int64
	err := pool.QueryRow(ctx, "SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM transactions WHERE user_id = $1", userID).Scan(&count, &sum)
	if err != nil {
		t.Fatalf("get ledger summary: %v", err)
	}
	return count, sum
}

// Count runs a SELECT COUNT(*) query.
func Count(t *testing.T, pool *pgxpool.Pool, query string, args ...any) int {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var n int
	if err := pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func applySchema(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	schema := loadSchema(t)
	statements := strings.Split(schema, ";")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, stmt := range statements {
		s := strings.TrimSpace(stmt)
		if s == "" {
			continue
		}
		if _, err := pool.Exec(ctx, s); err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
}

func loadSchema(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	dir := wd
	for i := 0; i < 6; i++ {
		path := filepath.Join(dir, "schema.sql")
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("read schema: %v", err)
			}
			return string(data)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	t.Fatalf("schema.sql not found from %s", wd)
	return ""
}
