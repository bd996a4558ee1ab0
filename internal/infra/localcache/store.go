package localcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/redis/go-redis/v9"
)

// Store хранит весь кэш одним блобом.
type Store interface {
	// Load возвращает nil без ошибки, если блоба ещё нет.
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Remove(ctx context.Context) error
}

const lockRetryDelay = 20 * time.Millisecond

// FileStore хранит блоб в JSON файле под межпроцессной блокировкой.
type FileStore struct {
	mu   sync.Mutex
	path string
	lock *flock.Flock
}

// NewFileStore создаёт файловое хранилище.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, lock: flock.New(path + ".lock")}
}

// DefaultPath путь файла кэша в пользовательском каталоге кэша.
func DefaultPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("каталог кэша: %w", err)
	}
	return filepath.Join(dir, "voice-journal", "journal_cache.json"), nil
}

func (s *FileStore) withLock(ctx context.Context, exclusive bool, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("создание каталога кэша: %w", err)
	}
	var (
		ok  bool
		err error
	)
	if exclusive {
		ok, err = s.lock.TryLockContext(ctx, lockRetryDelay)
	} else {
		ok, err = s.lock.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return fmt.Errorf("блокировка кэша: %w", err)
	}
	if !ok {
		return errors.New("блокировка кэша не получена")
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

// Load читает файл кэша.
func (s *FileStore) Load(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.withLock(ctx, false, func() error {
		raw, err := os.ReadFile(s.path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		data = raw
		return err
	})
	return data, err
}

// Save атомарно перезаписывает файл кэша.
func (s *FileStore) Save(ctx context.Context, data []byte) error {
	return s.withLock(ctx, true, func() error {
		tmp := s.path + ".tmp"
		if err := os.WriteFile(tmp, data, 0o600); err != nil {
			return fmt.Errorf("запись кэша: %w", err)
		}
		if err := os.Rename(tmp, s.path); err != nil {
			return fmt.Errorf("замена файла кэша: %w", err)
		}
		return nil
	})
}

// Remove удаляет файл кэша.
func (s *FileStore) Remove(ctx context.Context) error {
	return s.withLock(ctx, true, func() error {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	})
}

// RedisStore хранит блоб под одним ключом Redis.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore создаёт хранилище; key обычно включает id пользователя.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

// Load читает блоб.
func (s *RedisStore) Load(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}

// Save записывает блоб без TTL: срок жизни записей проверяется при чтении.
func (s *RedisStore) Save(ctx context.Context, data []byte) error {
	return s.client.Set(ctx, s.key, data, 0).Err()
}

// Remove удаляет ключ.
func (s *RedisStore) Remove(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

// MemoryStore хранит блоб в памяти процесса.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

// Load возвращает копию блоба.
func (s *MemoryStore) Load(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.data...), nil
}

// Save сохраняет копию блоба.
func (s *MemoryStore) Save(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
	return nil
}

// Remove очищает блоб.
func (s *MemoryStore) Remove(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	return nil
}
