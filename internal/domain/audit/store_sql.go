package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/ehr/clinic/internal/platform/db"
)

// Sink is a destination audit records are delivered to.
type Sink interface {
	Name() string
	Write(ctx context.Context, rec *Record) error
}

// SQLStore persists audit records in the tenant's audit_logs table. It runs
// outside request transactions and qualifies the table with the tenant
// schema instead of relying on search_path.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an existing database handle.
func NewSQLStore(sqlDB *sql.DB) *SQLStore {
	return &SQLStore{db: sqlDB}
}

// OpenSQLStore exposes pool through database/sql.
func OpenSQLStore(pool *pgxpool.Pool) *SQLStore {
	return NewSQLStore(stdlib.OpenDBFromPool(pool))
}

func (s *SQLStore) Name() string { return "postgres" }

// Close releases the database/sql handle. The underlying pool stays open.
func (s *SQLStore) Close() error { return s.db.Close() }

func auditTable(tenantID string) (string, error) {
	schema, err := db.SchemaForTenant(tenantID)
	if err != nil {
		return "", err
	}
	return pgx.Identifier{schema, "audit_logs"}.Sanitize(), nil
}

func (s *SQLStore) Write(ctx context.Context, rec *Record) error {
	table, err := auditTable(rec.TenantID)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO `+table+` (
			event_id, actor_id, actor_role, action, object_type, object_id,
			changes, request_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id) DO NOTHING`,
		rec.EventID, nullUUID(rec.ActorID), nullString(rec.ActorRole), string(rec.Action),
		rec.ObjectType, nullString(rec.ObjectID), nullJSON(rec.Changes),
		nullString(rec.RequestID), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit record %s: %w", rec.EventID, err)
	}
	return nil
}

// List returns tenant records matching f, newest first.
func (s *SQLStore) List(ctx context.Context, tenantID string, f Filter, limit, offset int) ([]*Record, int, error) {
	table, err := auditTable(tenantID)
	if err != nil {
		return nil, 0, err
	}

	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.ActorID != nil {
		where += fmt.Sprintf(` AND actor_id = $%d`, idx)
		args = append(args, f.ActorID.String())
		idx++
	}
	if f.Action != "" {
		where += fmt.Sprintf(` AND action = $%d`, idx)
		args = append(args, string(f.Action))
		idx++
	}
	if f.ObjectType != "" {
		where += fmt.Sprintf(` AND object_type = $%d`, idx)
		args = append(args, f.ObjectType)
		idx++
	}
	if f.Start != nil {
		where += fmt.Sprintf(` AND created_at >= $%d`, idx)
		args = append(args, *f.Start)
		idx++
	}
	if f.End != nil {
		where += fmt.Sprintf(` AND created_at <= $%d`, idx)
		args = append(args, *f.End)
		idx++
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit records: %w", err)
	}

	query := `SELECT id, event_id, actor_id, actor_role, action, object_type, object_id,
		changes, request_id, created_at FROM ` + table + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var (
			r         Record
			actor     uuid.NullUUID
			role, oid sql.NullString
			rid       sql.NullString
			action    string
			changes   []byte
		)
		if err := rows.Scan(&r.ID, &r.EventID, &actor, &role, &action, &r.ObjectType, &oid,
			&changes, &rid, &r.CreatedAt); err != nil {
			return nil, 0, err
		}
		if actor.Valid {
			id := actor.UUID
			r.ActorID = &id
		}
		r.TenantID = tenantID
		r.ActorRole = role.String
		r.Action = Action(action)
		r.ObjectID = oid.String
		r.RequestID = rid.String
		if len(changes) > 0 {
			r.Changes = changes
		}
		out = append(out, &r)
	}
	return out, total, rows.Err()
}

func nullUUID(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return id.String()
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
