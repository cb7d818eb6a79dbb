// Package localcache хранит активную сессию свайпов и очередь
// неотправленных свайпов на устройстве пользователя.
package localcache

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rajivgeraev/flippy-swipe/internal/apperr"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// KV это персистентное хранилище ключ-значение поверх SQLite
type KV struct {
	db *sql.DB
}

// Open открывает (или создает) базу в dataDir и применяет миграции.
// ":memory:" открывает базу в памяти (для тестов).
func Open(dataDir string) (*KV, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, apperr.Wrap(apperr.LocalStore, "localcache.Open", fmt.Errorf("ошибка при создании каталога: %w", err))
		}
		dsn = filepath.Join(dataDir, "swipe-cache.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperr.Wrap(apperr.LocalStore, "localcache.Open", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.LocalStore, "localcache.Open", err)
	}

	// Одно соединение: запись в очередь и её чтение сериализуются
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.LocalStore, "localcache.Open", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.LocalStore, "localcache.Open", err)
	}

	kv := &KV{db: db}
	if err := kv.migrate(); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.LocalStore, "localcache.Open", fmt.Errorf("ошибка при применении миграций: %w", err))
	}

	return kv, nil
}

// Close закрывает базу
func (s *KV) Close() error {
	return s.db.Close()
}

// ForUser возвращает кэш конкретного пользователя
func (s *KV) ForUser(userID uuid.UUID) *Cache {
	return New(s, userID)
}

// migrate применяет встроенные миграции через golang-migrate
func (s *KV) migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ошибка при чтении миграций: %w", err)
	}
	// m.Close закрыл бы и s.db, поэтому закрывается только источник
	defer src.Close()

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("ошибка при инициализации драйвера миграций: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("ошибка при инициализации миграций: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Get возвращает значение ключа. ok == false, если ключа нет.
func (s *KV) Get(key string) (value []byte, ok bool, err error) {
	err = s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.Wrap(apperr.LocalStore, "localcache.Get", err)
	}
	return value, true, nil
}

// Set записывает значение ключа
func (s *KV) Set(key string, value []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return apperr.Wrap(apperr.LocalStore, "localcache.Set", err)
}

// Remove удаляет ключ. Удаление отсутствующего ключа не является ошибкой.
func (s *KV) Remove(key string) error {
	_, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key)
	return apperr.Wrap(apperr.LocalStore, "localcache.Remove", err)
}

// Update атомарно читает значение ключа, передает его в fn и сохраняет результат.
// Если fn возвращает nil, ключ удаляется.
func (s *KV) Update(key string, fn func(current []byte) ([]byte, error)) error {
	tx, err := s.db.Begin()
	if err != nil {
		return apperr.Wrap(apperr.LocalStore, "localcache.Update", err)
	}
	defer tx.Rollback()

	var current []byte
	err = tx.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return apperr.Wrap(apperr.LocalStore, "localcache.Update", err)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	if next == nil {
		_, err = tx.Exec("DELETE FROM kv WHERE key = ?", key)
	} else {
		_, err = tx.Exec(`
			INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, next, time.Now().UTC().Format(time.RFC3339Nano),
		)
	}
	if err != nil {
		return apperr.Wrap(apperr.LocalStore, "localcache.Update", err)
	}

	return apperr.Wrap(apperr.LocalStore, "localcache.Update", tx.Commit())
}

// PendingUsers возвращает пользователей, у которых есть неотправленные свайпы
func (s *KV) PendingUsers() ([]uuid.UUID, error) {
	rows, err := s.db.Query("SELECT key FROM kv WHERE key LIKE 'pendingSwipes:%' ORDER BY updated_at")
	if err != nil {
		return nil, apperr.Wrap(apperr.LocalStore, "localcache.PendingUsers", err)
	}
	defer rows.Close()

	var users []uuid.UUID
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, apperr.Wrap(apperr.LocalStore, "localcache.PendingUsers", err)
		}
		id, err := uuid.Parse(strings.TrimPrefix(key, "pendingSwipes:"))
		if err != nil {
			continue
		}
		users = append(users, id)
	}
	return users, apperr.Wrap(apperr.LocalStore, "localcache.PendingUsers", rows.Err())
}
