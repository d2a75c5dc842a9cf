// Package audit records field changes, one row per changed object.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/satyaki-up/matorral/internal/db"
)

type Entry struct {
	ID            int64     `json:"id"`
	BatchID       string    `json:"batch_id"`
	ContentTypeID int64     `json:"content_type_id"`
	ObjectID      int64     `json:"object_id"`
	ObjectRepr    string    `json:"object_repr"`
	Field         string    `json:"field"`
	OldValue      string    `json:"old_value"`
	NewValue      string    `json:"new_value"`
	Actor         string    `json:"actor"`
	CreatedAt     time.Time `json:"created_at"`
}

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// NewBatchID tags entries written by one logical operation.
func NewBatchID() string {
	return uuid.NewString()
}

// Insert writes entries using ex, normally the caller's transaction so the
// log commits or rolls back with the change it describes.
func Insert(ctx context.Context, ex Execer, entries []Entry) error {
	for _, e := range entries {
		if e.BatchID == "" {
			return fmt.Errorf("audit entry for object %d has no batch id", e.ObjectID)
		}
		_, err := ex.ExecContext(ctx, `
			INSERT INTO audit_log(batch_id, content_type_id, object_id, object_repr, field, old_value, new_value, actor)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, e.BatchID, e.ContentTypeID, e.ObjectID, e.ObjectRepr, e.Field, e.OldValue, e.NewValue, e.Actor)
		if err != nil {
			return fmt.Errorf("insert audit entry: %w", err)
		}
	}
	return nil
}

// ListForObject returns entries for one object, oldest first.
func ListForObject(ctx context.Context, q Querier, contentTypeID, objectID int64) ([]Entry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, batch_id, content_type_id, object_id, object_repr, field, old_value, new_value, actor, created_at
		FROM audit_log
		WHERE content_type_id = ? AND object_id = ?
		ORDER BY id ASC
	`, contentTypeID, objectID)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// ListBatch returns every entry written under batchID.
func ListBatch(ctx context.Context, q Querier, batchID string) ([]Entry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, batch_id, content_type_id, object_id, object_repr, field, old_value, new_value, actor, created_at
		FROM audit_log
		WHERE batch_id = ?
		ORDER BY id ASC
	`, batchID)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(
			&e.ID, &e.BatchID, &e.ContentTypeID, &e.ObjectID, &e.ObjectRepr,
			&e.Field, &e.OldValue, &e.NewValue, &e.Actor, &created,
		); err != nil {
			return nil, err
		}
		t, err := db.ParseTime(created)
		if err != nil {
			return nil, err
		}
		e.CreatedAt = t
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
