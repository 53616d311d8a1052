package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so an append can join
// the transaction of the mutation it describes.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Writer appends entries to audit_logs. Entries are never updated or
// deleted; the table only grows.
type Writer struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewWriter returns a new Writer.
func NewWriter(pool *pgxpool.Pool, logger *slog.Logger) *Writer {
	return &Writer{pool: pool, logger: logger}
}

// Append persists the entry using the supplied executor. Mutating services
// pass their open transaction here so a committed mutation always carries
// its audit record, and a failed append rolls back with the mutation.
func (w *Writer) Append(ctx context.Context, db DBTX, entry Entry) error {
	if w == nil {
		return errors.New("audit: writer not initialised")
	}
	if entry.Action == "" || entry.Resource == "" {
		return errors.New("audit: entry requires action and resource")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	var details []byte
	if entry.Details != nil {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return err
		}
	}
	_, err := db.Exec(ctx,
		`INSERT INTO audit_logs (id, actor_id, action, resource, details, ip, user_agent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.ActorID, entry.Action, entry.Resource, details, entry.IP, entry.UserAgent, entry.CreatedAt)
	return err
}

// Record is the fire-and-forget form for callers outside a business
// transaction. Failures are logged, never propagated.
func (w *Writer) Record(ctx context.Context, entry Entry) {
	if w == nil || w.pool == nil {
		return
	}
	if err := w.Append(ctx, w.pool, entry); err != nil {
		if w.logger != nil {
			w.logger.Error("audit record", slog.String("action", entry.Action), slog.Any("error", err))
		}
	}
}
