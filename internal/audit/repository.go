package audit

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// CountEntries returns the number of stored entries matching the filter.
func (r *PGRepository) CountEntries(ctx context.Context, actorID *int64) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM audit_logs WHERE $1::bigint IS NULL OR actor_id = $1`,
		actorID).Scan(&total)
	return total, err
}

// ListEntries returns entries newest first with actor identity joined in.
func (r *PGRepository) ListEntries(ctx context.Context, actorID *int64, limit, offset int) ([]EntryWithActor, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.actor_id, a.action, a.resource, a.details, a.ip, a.user_agent, a.created_at,
		        u.id, u.email, TRIM(u.first_name || ' ' || u.last_name)
		 FROM audit_logs a
		 LEFT JOIN users u ON u.id = a.actor_id
		 WHERE $1::bigint IS NULL OR a.actor_id = $1
		 ORDER BY a.created_at DESC, a.id DESC
		 LIMIT $2 OFFSET $3`,
		actorID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []EntryWithActor
	for rows.Next() {
		var e EntryWithActor
		var details []byte
		var userID *int64
		var email, name *string
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.Resource, &details, &e.IP, &e.UserAgent, &e.CreatedAt,
			&userID, &email, &name); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, err
			}
		}
		if userID != nil {
			e.Actor = &ActorInfo{ID: *userID}
			if email != nil {
				e.Actor.Email = *email
			}
			if name != nil {
				e.Actor.Name = *name
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
