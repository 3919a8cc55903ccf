package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

const (
	migrationsDir = "sql/migrations"
	// migrationLockID — ключ pg_advisory_lock, сериализующий параллельные мигрирования.
	migrationLockID = int64(0x6f72646572696e67)

	schemaMigrationsDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    checksum TEXT NOT NULL DEFAULT '',
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
ALTER TABLE schema_migrations ADD COLUMN IF NOT EXISTS checksum TEXT NOT NULL DEFAULT ''`
)

// ErrMigrationModified возвращается, когда уже применённый up-скрипт изменён.
var ErrMigrationModified = errors.New("applied migration was modified")

// MigrationStatus описывает состояние схемы.
type MigrationStatus struct {
	Version  int64
	Applied  int
	Pending  []string
	Modified []string
}

// migrationScript — пара up/down для одной версии.
type migrationScript struct {
	version int64
	name    string
	up      string
	down    string
}

func (m migrationScript) label() string {
	return fmt.Sprintf("%04d_%s", m.version, m.name)
}

func (m migrationScript) checksum() string {
	sum := sha256.Sum256([]byte(m.up))
	return hex.EncodeToString(sum[:])
}

type appliedMigration struct {
	version  int64
	checksum string
}

// Migrator применяет встроенные SQL-миграции.
type Migrator struct {
	db      *sql.DB
	scripts fs.FS
}

// Migrator возвращает мигратор для встроенных миграций.
func (s *Store) Migrator() *Migrator {
	if s == nil {
		return &Migrator{scripts: migrationsFS}
	}
	return &Migrator{db: s.db, scripts: migrationsFS}
}

// Up применяет до steps ещё не применённых миграций; steps<=0 — все.
func (m *Migrator) Up(ctx context.Context, steps int) error {
	return m.withLock(ctx, func(conn *sql.Conn, scripts []migrationScript) error {
		applied, err := readApplied(ctx, conn)
		if err != nil {
			return err
		}
		if modified := modifiedScripts(scripts, applied); len(modified) > 0 {
			return fmt.Errorf("%w: %s", ErrMigrationModified, strings.Join(modified, ", "))
		}

		done := 0
		for _, script := range scripts {
			if _, ok := applied[script.version]; ok {
				continue
			}
			if steps > 0 && done >= steps {
				break
			}
			if err := runScript(ctx, conn, script, true); err != nil {
				return err
			}
			done++
		}
		return nil
	})
}

// Down откатывает steps последних миграций; steps<=0 откатывает одну.
func (m *Migrator) Down(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return m.withLock(ctx, func(conn *sql.Conn, scripts []migrationScript) error {
		applied, err := readApplied(ctx, conn)
		if err != nil {
			return err
		}

		versions := make([]int64, 0, len(applied))
		for version := range applied {
			versions = append(versions, version)
		}
		slices.Sort(versions)
		slices.Reverse(versions)
		if len(versions) > steps {
			versions = versions[:steps]
		}

		for _, version := range versions {
			idx := slices.IndexFunc(scripts, func(s migrationScript) bool { return s.version == version })
			if idx < 0 {
				return fmt.Errorf("cannot roll back unknown migration version %d", version)
			}
			if err := runScript(ctx, conn, scripts[idx], false); err != nil {
				return err
			}
		}
		return nil
	})
}

// Status возвращает текущую версию, число применённых миграций, ожидающие
// применения и изменённые после применения.
func (m *Migrator) Status(ctx context.Context) (MigrationStatus, error) {
	var status MigrationStatus
	if m.db == nil {
		return status, errors.New("postgres store is not initialized")
	}

	scripts, err := parseMigrations(m.scripts)
	if err != nil {
		return status, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	conn, err := m.db.Conn(ctx)
	if err != nil {
		return status, fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return status, fmt.Errorf("ensure schema_migrations: %w", err)
	}
	applied, err := readApplied(ctx, conn)
	if err != nil {
		return status, err
	}

	status.Applied = len(applied)
	for version := range applied {
		status.Version = max(status.Version, version)
	}
	for _, script := range scripts {
		if _, ok := applied[script.version]; !ok {
			status.Pending = append(status.Pending, script.label())
		}
	}
	status.Modified = modifiedScripts(scripts, applied)
	return status, nil
}

func (m *Migrator) withLock(ctx context.Context, fn func(*sql.Conn, []migrationScript) error) error {
	if m.db == nil {
		return errors.New("postgres store is not initialized")
	}

	scripts, err := parseMigrations(m.scripts)
	if err != nil {
		return err
	}

	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockID)
	}()

	if _, err := conn.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return fn(conn, scripts)
}

// runScript выполняет скрипт и запись в schema_migrations одной транзакцией.
func runScript(ctx context.Context, conn *sql.Conn, script migrationScript, up bool) (err error) {
	direction, body := "down", script.down
	if up {
		direction, body = "up", script.up
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s migration %s: %w", direction, script.label(), err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("execute %s migration %s: %w", direction, script.label(), err)
	}

	if up {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name, checksum, applied_at) VALUES ($1, $2, $3, $4)`,
			script.version, script.name, script.checksum(), time.Now().UTC())
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, script.version)
	}
	if err != nil {
		return fmt.Errorf("record %s migration %s: %w", direction, script.label(), err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s migration %s: %w", direction, script.label(), err)
	}
	return nil
}

func readApplied(ctx context.Context, conn *sql.Conn) (map[int64]appliedMigration, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version, checksum FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]appliedMigration)
	for rows.Next() {
		var rec appliedMigration
		if err := rows.Scan(&rec.version, &rec.checksum); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		applied[rec.version] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema_migrations: %w", err)
	}
	return applied, nil
}

// modifiedScripts сравнивает контрольные суммы применённых up-скриптов.
// Пустая сумма в базе не проверяется.
func modifiedScripts(scripts []migrationScript, applied map[int64]appliedMigration) []string {
	var modified []string
	for _, script := range scripts {
		rec, ok := applied[script.version]
		if !ok || rec.checksum == "" {
			continue
		}
		if rec.checksum != script.checksum() {
			modified = append(modified, script.label())
		}
	}
	return modified
}

// parseMigrations читает пары NNNN_name.up.sql / NNNN_name.down.sql.
func parseMigrations(fsys fs.FS) ([]migrationScript, error) {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := make(map[int64]*migrationScript)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		file := entry.Name()

		version, name, direction, err := splitMigrationName(file)
		if err != nil {
			return nil, err
		}

		raw, err := fs.ReadFile(fsys, path.Join(migrationsDir, file))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", file, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration %s is empty", file)
		}

		script, ok := byVersion[version]
		if !ok {
			script = &migrationScript{version: version, name: name}
			byVersion[version] = script
		}
		if script.name != name {
			return nil, fmt.Errorf("migration %d has conflicting names %q and %q", version, script.name, name)
		}

		target := &script.down
		if direction == "up" {
			target = &script.up
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %d", direction, version)
		}
		*target = body
	}
	if len(byVersion) == 0 {
		return nil, errors.New("no migration files found")
	}

	scripts := make([]migrationScript, 0, len(byVersion))
	for _, script := range byVersion {
		if script.up == "" || script.down == "" {
			return nil, fmt.Errorf("migration %s needs both up and down files", script.label())
		}
		scripts = append(scripts, *script)
	}
	slices.SortFunc(scripts, func(a, b migrationScript) int {
		switch {
		case a.version < b.version:
			return -1
		case a.version > b.version:
			return 1
		default:
			return 0
		}
	})
	return scripts, nil
}

// splitMigrationName разбирает "0002_orders.up.sql" на 2, "orders", "up".
func splitMigrationName(file string) (int64, string, string, error) {
	stem, ok := strings.CutSuffix(file, ".sql")
	if !ok {
		return 0, "", "", fmt.Errorf("invalid migration file name %s", file)
	}

	var direction string
	switch {
	case strings.HasSuffix(stem, ".up"):
		direction, stem = "up", strings.TrimSuffix(stem, ".up")
	case strings.HasSuffix(stem, ".down"):
		direction, stem = "down", strings.TrimSuffix(stem, ".down")
	default:
		return 0, "", "", fmt.Errorf("migration %s must end with .up.sql or .down.sql", file)
	}

	versionPart, name, ok := strings.Cut(stem, "_")
	if !ok || name == "" {
		return 0, "", "", fmt.Errorf("invalid migration file name %s", file)
	}
	version, err := strconv.ParseInt(versionPart, 10, 64)
	if err != nil || version <= 0 {
		return 0, "", "", fmt.Errorf("invalid migration version in %s", file)
	}
	return version, name, direction, nil
}
