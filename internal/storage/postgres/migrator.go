package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	migrationLockKey = int64(20260514)
	migrationTimeout = 5 * time.Second

	ensureMigrationTableSQL = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`
	selectAppliedSQL   = `SELECT version FROM schema_migrations`
	recordMigrationSQL = `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`
	forgetMigrationSQL = `DELETE FROM schema_migrations WHERE version = $1`
)

// MigrationInfo описывает одну миграцию и факт её применения.
type MigrationInfo struct {
	Version int64
	Name    string
	Applied bool
}

// MigrateUp применяет неприменённые миграции; steps = 0 применяет все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.migrate(ctx, migrationUp, steps)
}

// MigrateDown откатывает последние steps миграций, но не меньше одной.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	return s.migrate(ctx, migrationDown, max(steps, 1))
}

// MigrationStatus возвращает старшую применённую версию и число применённых миграций.
func (s *Store) MigrationStatus(ctx context.Context) (version int64, applied int, err error) {
	plan, err := s.MigrationPlan(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, info := range plan {
		if info.Applied {
			applied++
			version = max(version, info.Version)
		}
	}
	return version, applied, nil
}

// MigrationPlan возвращает встроенные миграции с отметкой о применении.
func (s *Store) MigrationPlan(ctx context.Context) ([]MigrationInfo, error) {
	if s == nil || s.db == nil {
		return nil, errStoreNotInitialized
	}
	migrations, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, migrationTimeout)
	defer cancel()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	applied, err := appliedVersions(ctx, conn)
	if err != nil {
		return nil, err
	}

	plan := make([]MigrationInfo, len(migrations))
	for i, m := range migrations {
		plan[i] = MigrationInfo{Version: m.Version, Name: m.Name, Applied: applied[m.Version]}
	}
	return plan, nil
}

// migrate работает под advisory lock на отдельном соединении: параллельные
// экземпляры применяют миграции по очереди.
func (s *Store) migrate(ctx context.Context, direction migrationDirection, steps int) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	migrations, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	unlock, err := lockMigrations(ctx, conn)
	if err != nil {
		return err
	}
	defer unlock()

	applied, err := appliedVersions(ctx, conn)
	if err != nil {
		return err
	}
	for _, m := range selectMigrations(migrations, applied, direction, steps) {
		if err := applyMigration(ctx, conn, m, direction); err != nil {
			return err
		}
	}
	return nil
}

func lockMigrations(ctx context.Context, conn *sql.Conn) (unlock func(), err error) {
	lockCtx, cancel := context.WithTimeout(ctx, migrationTimeout)
	defer cancel()

	if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return nil, fmt.Errorf("acquire migration lock: %w", err)
	}
	return func() {
		// Исходный ctx может быть уже отменён, а lock надо снять в любом случае.
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockKey)
	}, nil
}

// applyMigration выполняет скрипт и правит schema_migrations в одной транзакции.
func applyMigration(ctx context.Context, conn *sql.Conn, m migration, direction migrationDirection) error {
	return withTx(ctx, conn, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, m.script(direction)); err != nil {
			return fmt.Errorf("execute %s migration %s: %w", direction, m, err)
		}

		var err error
		if direction == migrationUp {
			_, err = tx.ExecContext(ctx, recordMigrationSQL, m.Version, m.Name)
		} else {
			_, err = tx.ExecContext(ctx, forgetMigrationSQL, m.Version)
		}
		if err != nil {
			return fmt.Errorf("record %s migration %s: %w", direction, m, err)
		}
		return nil
	})
}

// appliedVersions создаёт служебную таблицу при первом обращении.
func appliedVersions(ctx context.Context, conn *sql.Conn) (map[int64]bool, error) {
	if _, err := conn.ExecContext(ctx, ensureMigrationTableSQL); err != nil {
		return nil, fmt.Errorf("ensure migration table: %w", err)
	}

	rows, err := conn.QueryContext(ctx, selectAppliedSQL)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]bool)
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied migration version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return applied, nil
}
