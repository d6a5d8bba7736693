package postgres

import (
	"cmp"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

const migrationsGlob = "sql/migrations/*.sql"

var (
	//go:embed sql/migrations/*.sql
	migrationsFS embed.FS

	// 0001_catalog.up.sql -> версия, имя, направление.
	migrationFilePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)
)

type migrationDirection string

const (
	migrationUp   migrationDirection = "up"
	migrationDown migrationDirection = "down"
)

type migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

func (m migration) String() string {
	return fmt.Sprintf("%04d_%s", m.Version, m.Name)
}

func (m migration) script(direction migrationDirection) string {
	if direction == migrationDown {
		return m.DownSQL
	}
	return m.UpSQL
}

// migrationFile описывает один файл каталога миграций.
type migrationFile struct {
	version   int64
	name      string
	direction migrationDirection
}

func parseMigrationFile(base string) (migrationFile, error) {
	parts := migrationFilePattern.FindStringSubmatch(base)
	if parts == nil {
		return migrationFile{}, fmt.Errorf("invalid migration file name: %s", base)
	}
	version, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return migrationFile{}, fmt.Errorf("parse migration version from %s: %w", base, err)
	}
	return migrationFile{version: version, name: parts[2], direction: migrationDirection(parts[3])}, nil
}

// loadMigrationsFromFS собирает пары up/down по версиям и сортирует их по возрастанию.
func loadMigrationsFromFS(fsys fs.FS) ([]migration, error) {
	files, err := fs.Glob(fsys, migrationsGlob)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no migration files found")
	}

	byVersion := make(map[int64]*migration, len(files)/2)
	for _, file := range files {
		base := path.Base(file)
		meta, err := parseMigrationFile(base)
		if err != nil {
			return nil, err
		}

		raw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", file, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", base)
		}

		m := byVersion[meta.version]
		switch {
		case m == nil:
			m = &migration{Version: meta.version, Name: meta.name}
			byVersion[meta.version] = m
		case m.Name != meta.name:
			return nil, fmt.Errorf("migration name mismatch for version %d: %s vs %s", meta.version, m.Name, meta.name)
		}

		slot := &m.UpSQL
		if meta.direction == migrationDown {
			slot = &m.DownSQL
		}
		if *slot != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %d", meta.direction, meta.version)
		}
		*slot = body
	}

	migrations := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpSQL == "" || m.DownSQL == "" {
			return nil, fmt.Errorf("migration %s must have both up and down files", m)
		}
		migrations = append(migrations, *m)
	}
	slices.SortFunc(migrations, func(a, b migration) int { return cmp.Compare(a.Version, b.Version) })
	return migrations, nil
}

// selectMigrations возвращает очередь применения: для up неприменённые по возрастанию,
// для down применённые по убыванию. steps <= 0 снимает ограничение.
func selectMigrations(migrations []migration, applied map[int64]bool, direction migrationDirection, steps int) []migration {
	queue := make([]migration, 0, len(migrations))
	for _, m := range migrations {
		if applied[m.Version] == (direction == migrationDown) {
			queue = append(queue, m)
		}
	}
	if direction == migrationDown {
		slices.Reverse(queue)
	}
	if steps > 0 && len(queue) > steps {
		queue = queue[:steps]
	}
	return queue
}
