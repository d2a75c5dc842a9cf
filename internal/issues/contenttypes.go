package issues

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// ContentTypes maps entity kinds to the storage-level type ids used by the
// polymorphic subtask and audit columns. Lookups are memoized after the first
// load; Clear drops the memo.
type ContentTypes struct {
	db *sql.DB

	mu     sync.Mutex
	byKind map[Kind]int64
	byID   map[int64]Kind
	loads  int
}

func NewContentTypes(db *sql.DB) *ContentTypes {
	return &ContentTypes{db: db}
}

func (c *ContentTypes) ID(ctx context.Context, kind Kind) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadLocked(ctx); err != nil {
		return 0, err
	}
	id, ok := c.byKind[kind]
	if !ok {
		return 0, fmt.Errorf("%w: no content type for %q", ErrNotFound, kind)
	}
	return id, nil
}

func (c *ContentTypes) Kind(ctx context.Context, id int64) (Kind, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadLocked(ctx); err != nil {
		return "", err
	}
	kind, ok := c.byID[id]
	if !ok {
		return "", fmt.Errorf("%w: content type %d", ErrNotFound, id)
	}
	return kind, nil
}

// Loads reports how many times the table has been read.
func (c *ContentTypes) Loads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads
}

func (c *ContentTypes) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byKind = nil
	c.byID = nil
}

func (c *ContentTypes) loadLocked(ctx context.Context) error {
	if c.byKind != nil {
		return nil
	}
	rows, err := c.db.QueryContext(ctx, `SELECT id, model FROM content_types`)
	if err != nil {
		return fmt.Errorf("load content types: %w", err)
	}
	defer rows.Close()

	byKind := make(map[Kind]int64)
	byID := make(map[int64]Kind)
	for rows.Next() {
		var id int64
		var model string
		if err := rows.Scan(&id, &model); err != nil {
			return fmt.Errorf("scan content type: %w", err)
		}
		byKind[Kind(model)] = id
		byID[id] = Kind(model)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read content types: %w", err)
	}
	c.byKind = byKind
	c.byID = byID
	c.loads++
	return nil
}
