package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noven-pro/receiving/internal/shared"
)

// PostgresRepository reads the audit_logs table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs the repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Window implements Repository.
func (r *PostgresRepository) Window(ctx context.Context, q Query) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT actor_id, action, entity, entity_id, meta, occurred_at
		FROM audit_logs
		WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
		  AND ($2::timestamptz IS NULL OR occurred_at < $2)
		  AND ($3::text IS NULL OR entity = $3)
		  AND ($4::text IS NULL OR entity_id = $4)
		  AND ($5::text IS NULL OR action = $5)
		ORDER BY occurred_at DESC, id DESC
		LIMIT $6 OFFSET $7`,
		toPgTime(q.From), toPgTime(q.To),
		optionalText(q.Entity), optionalText(q.EntityID), optionalText(q.Action),
		optionalLimit(q.Limit), q.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: query timeline: %w", err)
	}
	defer rows.Close()

	out := []TimelineRow{}
	for rows.Next() {
		var (
			row  TimelineRow
			meta []byte
		)
		if err := rows.Scan(&row.ActorID, &row.Action, &row.Entity, &row.EntityID, &meta, &row.At); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &row.Meta); err != nil {
				return nil, fmt.Errorf("audit: decode meta: %w", err)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	if value == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: value, Valid: true}
}

func optionalLimit(limit int) pgtype.Int8 {
	if limit <= 0 {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: int64(limit), Valid: true}
}

// EntrySource is satisfied by shared.MemoryAuditLogger.
type EntrySource interface {
	Entries() []shared.AuditLog
}

// MemoryRepository serves the timeline from an in-process audit logger.
type MemoryRepository struct {
	source EntrySource
}

// NewMemoryRepository wraps source.
func NewMemoryRepository(source EntrySource) *MemoryRepository {
	return &MemoryRepository{source: source}
}

// Window implements Repository.
func (r *MemoryRepository) Window(ctx context.Context, q Query) ([]TimelineRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries := r.source.Entries()
	out := make([]TimelineRow, 0, len(entries))
	// Walk backwards so equal timestamps keep newest-recorded first.
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if !matches(e, q) {
			continue
		}
		out = append(out, TimelineRow{At: e.At, ActorID: e.ActorID, Action: e.Action, Entity: e.Entity, EntityID: e.EntityID, Meta: e.Meta})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })

	if q.Offset >= len(out) {
		return []TimelineRow{}, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func matches(e shared.AuditLog, q Query) bool {
	switch {
	case !q.From.IsZero() && e.At.Before(q.From):
		return false
	case !q.To.IsZero() && !e.At.Before(q.To):
		return false
	case q.Entity != "" && e.Entity != q.Entity:
		return false
	case q.EntityID != "" && e.EntityID != q.EntityID:
		return false
	case q.Action != "" && e.Action != q.Action:
		return false
	}
	return true
}
