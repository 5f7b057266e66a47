package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sonde-catalog/internal/domain/entity"
	"sonde-catalog/internal/infra/db"
	"sonde-catalog/internal/repository"
)

type CatalogRepo struct{ db db.Querier }

func NewCatalogRepo(q db.Querier) repository.CatalogRepository {
	return &CatalogRepo{db: q}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (repo *CatalogRepo) EnsureCollection(ctx context.Context, id string) error {
	const query = `
INSERT INTO collections (id, title)
VALUES (?, ?)
ON CONFLICT (id) DO NOTHING`
	if _, err := repo.db.ExecContext(ctx, query, id, id); err != nil {
		return fmt.Errorf("EnsureCollection: ExecContext: %w", err)
	}
	return nil
}

func (repo *CatalogRepo) Upsert(ctx context.Context, item *entity.CatalogItem) (string, error) {
	if err := item.Validate(); err != nil {
		return "", fmt.Errorf("Upsert: %w", err)
	}
	content, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("Upsert: marshal item: %w", err)
	}

	const query = `
INSERT INTO items (collection, id, datetime, start_datetime, end_datetime, source_url, content)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (collection, id) DO UPDATE SET
       datetime       = excluded.datetime,
       start_datetime = excluded.start_datetime,
       end_datetime   = excluded.end_datetime,
       source_url     = excluded.source_url,
       content        = excluded.content,
       updated_at     = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`
	_, err = repo.db.ExecContext(ctx, query,
		item.Collection, item.ID,
		formatTime(item.Properties.Datetime),
		formatTime(item.Properties.StartDatetime),
		formatTime(item.Properties.EndDatetime),
		item.SourceURL(), string(content),
	)
	if err != nil {
		return "", fmt.Errorf("Upsert: ExecContext: %w", err)
	}
	return item.ID, nil
}

func (repo *CatalogRepo) Get(ctx context.Context, collection, id string) (*entity.CatalogItem, error) {
	const query = `
SELECT content
FROM items
WHERE collection = ? AND id = ?
LIMIT 1`
	var content string
	err := db.QueryOne(ctx, repo.db, query, []interface{}{collection, id}, &content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: QueryContext: %w", err)
	}

	var item entity.CatalogItem
	if err := json.Unmarshal([]byte(content), &item); err != nil {
		return nil, fmt.Errorf("Get: unmarshal content: %w", err)
	}
	return &item, nil
}

func (repo *CatalogRepo) Delete(ctx context.Context, collection, id string) error {
	const query = `DELETE FROM items WHERE collection = ? AND id = ?`
	res, err := repo.db.ExecContext(ctx, query, collection, id)
	if err != nil {
		return fmt.Errorf("Delete: ExecContext: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("Delete: %w", entity.ErrNotFound)
	}
	return nil
}

func (repo *CatalogRepo) Count(ctx context.Context, collection string) (int64, error) {
	const query = `SELECT COUNT(*) FROM items WHERE collection = ?`
	var n int64
	if err := db.QueryOne(ctx, repo.db, query, []interface{}{collection}, &n); err != nil {
		return 0, fmt.Errorf("Count: QueryContext: %w", err)
	}
	return n, nil
}

func (repo *CatalogRepo) CreateCollection(ctx context.Context, c *entity.Collection) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("CreateCollection: %w", err)
	}
	const query = `
INSERT INTO collections (id, title, description)
VALUES (?, ?, ?)
ON CONFLICT (id) DO NOTHING`
	res, err := repo.db.ExecContext(ctx, query, c.ID, c.Title, c.Description)
	if err != nil {
		return fmt.Errorf("CreateCollection: ExecContext: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("CreateCollection: %w", entity.ErrAlreadyExists)
	}
	return nil
}

func (repo *CatalogRepo) UpdateCollection(ctx context.Context, c *entity.Collection) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("UpdateCollection: %w", err)
	}
	const query = `UPDATE collections SET title = ?, description = ? WHERE id = ?`
	res, err := repo.db.ExecContext(ctx, query, c.Title, c.Description, c.ID)
	if err != nil {
		return fmt.Errorf("UpdateCollection: ExecContext: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("UpdateCollection: %w", entity.ErrNotFound)
	}
	return nil
}

func (repo *CatalogRepo) GetCollection(ctx context.Context, id string) (*entity.Collection, error) {
	const query = `SELECT title, description FROM collections WHERE id = ?`
	c := entity.Collection{Type: entity.CollectionType, StacVersion: entity.StacVersion, ID: id, Links: []entity.Link{}}
	err := db.QueryOne(ctx, repo.db, query, []interface{}{id}, &c.Title, &c.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetCollection: QueryContext: %w", err)
	}
	return &c, nil
}

// DeleteCollection relies on ON DELETE CASCADE, which needs the
// foreign_keys pragma that db.OpenDriver sets.
func (repo *CatalogRepo) DeleteCollection(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("DeleteCollection: ExecContext: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("DeleteCollection: %w", entity.ErrNotFound)
	}
	return nil
}
