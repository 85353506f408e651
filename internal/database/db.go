package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

const (
	maxOpenConns    = 10
	maxIdleConns    = 5
	connMaxLifetime = 30 * time.Minute
)

// Open はPostgreSQLデータベース接続を開き、コネクションプールを設定する。
// sql.Openは接続を試行しないため、実際の接続確認にはPingを使用すること。
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	return db, nil
}

// Ping はタイムアウト付きでデータベースへの疎通を確認する。
func Ping(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// ConnectOptions はConnectの再試行設定。
type ConnectOptions struct {
	PingTimeout time.Duration
	Attempts    int
	RetryDelay  time.Duration
}

// Connect は接続を開き、疎通が取れるまでPingを再試行する。
// docker composeでapi/workerがdbより先に起動した場合に備える。
// すべての試行が失敗した場合、またはctxがキャンセルされた場合は接続を閉じてエラーを返す。
func Connect(ctx context.Context, databaseURL string, opts ConnectOptions) (*sql.DB, error) {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}

	db, err := Open(databaseURL)
	if err != nil {
		return nil, err
	}

	var pingErr error
	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		if pingErr = Ping(ctx, db, opts.PingTimeout); pingErr == nil {
			return db, nil
		}
		if attempt == opts.Attempts {
			break
		}

		slog.Warn("database not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", opts.Attempts),
			slog.String("error", pingErr.Error()),
		)

		select {
		case <-ctx.Done():
			db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", ctx.Err())
		case <-time.After(opts.RetryDelay):
		}
	}

	db.Close()
	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", opts.Attempts, pingErr)
}
