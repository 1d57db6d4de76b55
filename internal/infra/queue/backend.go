package queue

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend selects and holds the queue transport for one process. All of a
// process's queues share the same client or connection pool.
type Backend struct {
	kind  string
	redis *redis.Client
	db    *sql.DB

	mu     sync.Mutex
	memory map[string]*Memory
}

// OpenBackend picks the transport from QUEUE_BACKEND: "redis", "postgres",
// or "memory". Memory is the default and suits single-binary development
// only; it keeps messages in the process.
//
// Redis settings: REDIS_ADDR (default localhost:6379), REDIS_PASSWORD,
// REDIS_DB. Postgres settings: DATABASE_URL plus the DB_* pool variables.
func OpenBackend(logger *slog.Logger) (*Backend, error) {
	kind := strings.ToLower(os.Getenv("QUEUE_BACKEND"))
	switch kind {
	case "", "memory":
		logger.Warn("using in-memory queues, messages do not survive restarts")
		return &Backend{kind: "memory", memory: map[string]*Memory{}}, nil

	case "redis":
		addr := redisAddr()
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB(),
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("pinging redis at %s: %w", addr, err)
		}
		logger.Info("queue backend connected",
			slog.String("backend", "redis"),
			slog.String("addr", addr))
		return &Backend{kind: "redis", redis: client}, nil

	case "postgres":
		db := OpenDB()
		if err := MigrateUp(db); err != nil {
			return nil, fmt.Errorf("migrating queue schema: %w", err)
		}
		logger.Info("queue backend connected", slog.String("backend", "postgres"))
		return &Backend{kind: "postgres", db: db}, nil

	default:
		return nil, fmt.Errorf("unknown QUEUE_BACKEND %q (want memory, redis, or postgres)", kind)
	}
}

// Queue returns the named queue on this backend. Memory queues are shared
// within the process so a producer and a consumer of the same name see the
// same instance.
func (b *Backend) Queue(name string) Queue {
	switch b.kind {
	case "redis":
		return NewRedis(b.redis, name)
	case "postgres":
		return NewPostgres(b.db, name)
	default:
		b.mu.Lock()
		defer b.mu.Unlock()
		q, ok := b.memory[name]
		if !ok {
			q = NewMemory(name)
			b.memory[name] = q
		}
		return q
	}
}

// RedisClient exposes the shared client when the backend is Redis, so
// components that colocate state there (topic leases) can reuse the
// connection. Nil on other backends.
func (b *Backend) RedisClient() *redis.Client {
	return b.redis
}

// Close releases the backend's connections.
func (b *Backend) Close() error {
	if b.redis != nil {
		return b.redis.Close()
	}
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func redisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

func redisDB() int {
	raw := os.Getenv("REDIS_DB")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		slog.Warn("invalid REDIS_DB, using database 0", slog.String("value", raw))
		return 0
	}
	return n
}
