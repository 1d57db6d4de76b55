package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"contentmill/internal/observability/metrics"
)

// Postgres is a Queue backed by a single queue_messages table. Claims
// use FOR UPDATE SKIP LOCKED so concurrent consumers never double-read
// a message, and a crashed consumer's messages become visible again
// once their deadline passes.
type Postgres struct {
	db   *sql.DB
	name string
}

// NewPostgres wraps an existing connection pool. The pool's lifecycle
// belongs to the caller.
func NewPostgres(db *sql.DB, name string) *Postgres {
	return &Postgres{db: db, name: name}
}

// MigrateUp creates the queue schema.
func MigrateUp(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS queue_messages (
    id            BIGSERIAL PRIMARY KEY,
    queue         TEXT NOT NULL,
    envelope      JSONB NOT NULL,
    visible_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    dequeue_count INT NOT NULL DEFAULT 0,
    dead          BOOLEAN NOT NULL DEFAULT FALSE,
    dead_reason   TEXT,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return err
	}

	indexes := []string{
		// Claim query: WHERE queue = $1 AND NOT dead AND visible_at <= now()
		`CREATE INDEX IF NOT EXISTS idx_queue_messages_ready
    ON queue_messages (queue, visible_at) WHERE NOT dead`,
		// Dead-letter inspection per queue
		`CREATE INDEX IF NOT EXISTS idx_queue_messages_dead
    ON queue_messages (queue) WHERE dead`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return err
		}
	}
	return nil
}

// MigrateDown drops the queue schema. All undelivered messages are lost.
func MigrateDown(db *sql.DB) error {
	_, err := db.Exec(`DROP TABLE IF EXISTS queue_messages CASCADE`)
	return err
}

// ConnectionConfig holds connection pool configuration.
type ConnectionConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConnectionConfig returns the default pool configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 1 * time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}
}

// OpenDB creates and configures a connection pool from DATABASE_URL.
// Queue consumers cannot run without their transport, so failures here
// are fatal.
func OpenDB() *sql.DB {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatal(err)
	}

	cfg := connectionConfigFromEnv()
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	slog.Info("queue database pool configured",
		slog.Int("max_open_conns", cfg.MaxOpenConns),
		slog.Int("max_idle_conns", cfg.MaxIdleConns),
		slog.Duration("conn_max_lifetime", cfg.ConnMaxLifetime),
		slog.Duration("conn_max_idle_time", cfg.ConnMaxIdleTime))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping queue database: %v", err)
	}

	return db
}

func connectionConfigFromEnv() ConnectionConfig {
	cfg := DefaultConnectionConfig()

	if maxOpen := os.Getenv("DB_MAX_OPEN_CONNS"); maxOpen != "" {
		if val, err := strconv.Atoi(maxOpen); err == nil && val > 0 {
			cfg.MaxOpenConns = val
		}
	}
	if maxIdle := os.Getenv("DB_MAX_IDLE_CONNS"); maxIdle != "" {
		if val, err := strconv.Atoi(maxIdle); err == nil && val > 0 {
			cfg.MaxIdleConns = val
		}
	}
	if lifetime := os.Getenv("DB_CONN_MAX_LIFETIME"); lifetime != "" {
		if val, err := time.ParseDuration(lifetime); err == nil && val > 0 {
			cfg.ConnMaxLifetime = val
		}
	}
	if idleTime := os.Getenv("DB_CONN_MAX_IDLE_TIME"); idleTime != "" {
		if val, err := time.ParseDuration(idleTime); err == nil && val > 0 {
			cfg.ConnMaxIdleTime = val
		}
	}
	return cfg
}

// Send implements Queue.
func (q *Postgres) Send(ctx context.Context, env *Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}
	body, err := marshalEnvelope(env)
	if err != nil {
		return err
	}

	_, err = q.db.ExecContext(ctx,
		`INSERT INTO queue_messages (queue, envelope) VALUES ($1, $2)`,
		q.name, body)
	if err != nil {
		return fmt.Errorf("sending to queue %s: %w", q.name, err)
	}

	metrics.RecordQueueSend(q.name, env.Operation)
	return nil
}

// Receive implements Queue.
func (q *Postgres) Receive(ctx context.Context, max int, visibility time.Duration) ([]*Delivery, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning claim on queue %s: %w", q.name, err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
SELECT id, envelope, dequeue_count
FROM queue_messages
WHERE queue = $1 AND NOT dead AND visible_at <= now()
ORDER BY id
LIMIT $2
FOR UPDATE SKIP LOCKED`, q.name, max)
	if err != nil {
		return nil, fmt.Errorf("claiming from queue %s: %w", q.name, err)
	}

	type claimed struct {
		id       int64
		body     []byte
		dequeues int
	}
	var claims []claimed
	for rows.Next() {
		var c claimed
		if err := rows.Scan(&c.id, &c.body, &c.dequeues); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning claim on queue %s: %w", q.name, err)
		}
		claims = append(claims, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating claims on queue %s: %w", q.name, err)
	}
	rows.Close()

	var out []*Delivery
	for _, c := range claims {
		if _, err := tx.ExecContext(ctx, `
UPDATE queue_messages
SET visible_at = now() + make_interval(secs => $1), dequeue_count = dequeue_count + 1
WHERE id = $2`, visibility.Seconds(), c.id); err != nil {
			return nil, fmt.Errorf("extending visibility on queue %s: %w", q.name, err)
		}

		env, err := unmarshalEnvelope(c.body)
		if err != nil {
			return nil, err
		}
		out = append(out, &Delivery{
			Envelope:     env,
			Queue:        q.name,
			ID:           strconv.FormatInt(c.id, 10),
			DequeueCount: c.dequeues + 1,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim on queue %s: %w", q.name, err)
	}

	metrics.RecordQueueReceive(q.name, len(out))
	return out, nil
}

// Ack implements Queue.
func (q *Postgres) Ack(ctx context.Context, d *Delivery) error {
	id, err := strconv.ParseInt(d.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("ack on queue %s: bad receipt %q", q.name, d.ID)
	}
	if _, err := q.db.ExecContext(ctx,
		`DELETE FROM queue_messages WHERE id = $1`, id); err != nil {
		return fmt.Errorf("acking %s on queue %s: %w", d.ID, q.name, err)
	}
	metrics.RecordQueueCompleted(q.name)
	return nil
}

// Abandon implements Queue.
func (q *Postgres) Abandon(ctx context.Context, d *Delivery) error {
	id, err := strconv.ParseInt(d.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("abandon on queue %s: bad receipt %q", q.name, d.ID)
	}
	if _, err := q.db.ExecContext(ctx,
		`UPDATE queue_messages SET visible_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("abandoning %s on queue %s: %w", d.ID, q.name, err)
	}
	return nil
}

// DeadLetter implements Queue. The row is kept for inspection.
func (q *Postgres) DeadLetter(ctx context.Context, d *Delivery, reason string) error {
	id, err := strconv.ParseInt(d.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("dead-letter on queue %s: bad receipt %q", q.name, d.ID)
	}
	if _, err := q.db.ExecContext(ctx,
		`UPDATE queue_messages SET dead = TRUE, dead_reason = $2 WHERE id = $1`,
		id, reason); err != nil {
		return fmt.Errorf("dead-lettering %s on queue %s: %w", d.ID, q.name, err)
	}
	metrics.RecordQueueDeadLettered(q.name, reason)
	return nil
}

// Len reports the number of messages visible right now.
func (q *Postgres) Len(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `
SELECT count(*) FROM queue_messages
WHERE queue = $1 AND NOT dead AND visible_at <= now()`, q.name).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("measuring queue %s: %w", q.name, err)
	}
	return n, nil
}

func marshalEnvelope(env *Envelope) ([]byte, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshaling envelope: %w", err)
	}
	return body, nil
}

func unmarshalEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decoding stored envelope: %w", err)
	}
	return &env, nil
}
