// Package database はデータベース接続とマイグレーション管理を提供する。
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationStatus はマイグレーション適用後のスキーマの状態。
type MigrationStatus struct {
	Version uint
	// Applied は今回の実行で1件以上のマイグレーションを適用したかを示す。
	Applied bool
}

// NewMigrator は埋め込みのsessionsスキーマを対象とするmigrateインスタンスを生成する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// RunMigrations は未適用のマイグレーションを適用し、適用後のバージョンを返す。
// 前回の実行が途中で失敗してdirtyになっている場合は、手動での復旧が必要なためエラーを返す。
func RunMigrations(databaseURL string) (MigrationStatus, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return MigrationStatus{}, err
	}
	defer m.Close()

	if _, dirty, err := m.Version(); err == nil && dirty {
		return MigrationStatus{}, errors.New("database schema is dirty; fix it manually before migrating")
	}

	status := MigrationStatus{Applied: true}
	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return MigrationStatus{}, fmt.Errorf("failed to run migrations: %w", err)
		}
		status.Applied = false
	}

	version, _, err := m.Version()
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("failed to read schema version: %w", err)
	}
	status.Version = version

	return status, nil
}
