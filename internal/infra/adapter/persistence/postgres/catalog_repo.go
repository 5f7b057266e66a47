package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"sonde-catalog/internal/domain/entity"
	"sonde-catalog/internal/infra/db"
	"sonde-catalog/internal/repository"
)

type CatalogRepo struct{ db db.Querier }

// NewCatalogRepo accepts *sql.DB or a circuit-breaker wrapped pool.
func NewCatalogRepo(q db.Querier) repository.CatalogRepository {
	return &CatalogRepo{db: q}
}

func (repo *CatalogRepo) EnsureCollection(ctx context.Context, id string) error {
	const query = `
INSERT INTO collections (id, title)
VALUES ($1, $1)
ON CONFLICT (id) DO NOTHING`
	if _, err := repo.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("EnsureCollection: %w", err)
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
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (collection, id) DO UPDATE SET
       datetime       = EXCLUDED.datetime,
       start_datetime = EXCLUDED.start_datetime,
       end_datetime   = EXCLUDED.end_datetime,
       source_url     = EXCLUDED.source_url,
       content        = EXCLUDED.content,
       updated_at     = now()`
	_, err = repo.db.ExecContext(ctx, query,
		item.Collection, item.ID,
		item.Properties.Datetime, item.Properties.StartDatetime, item.Properties.EndDatetime,
		item.SourceURL(), content,
	)
	if err != nil {
		return "", fmt.Errorf("Upsert: %w", err)
	}
	return item.ID, nil
}

func (repo *CatalogRepo) Get(ctx context.Context, collection, id string) (*entity.CatalogItem, error) {
	const query = `
SELECT content
FROM items
WHERE collection = $1 AND id = $2
LIMIT 1`
	var content []byte
	err := db.QueryOne(ctx, repo.db, query, []interface{}{collection, id}, &content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}

	var item entity.CatalogItem
	if err := json.Unmarshal(content, &item); err != nil {
		return nil, fmt.Errorf("Get: unmarshal content: %w", err)
	}
	return &item, nil
}

func (repo *CatalogRepo) Delete(ctx context.Context, collection, id string) error {
	const query = `DELETE FROM items WHERE collection = $1 AND id = $2`
	res, err := repo.db.ExecContext(ctx, query, collection, id)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("Delete: %w", entity.ErrNotFound)
	}
	return nil
}

func (repo *CatalogRepo) Count(ctx context.Context, collection string) (int64, error) {
	const query = `SELECT COUNT(*) FROM items WHERE collection = $1`
	var n int64
	if err := db.QueryOne(ctx, repo.db, query, []interface{}{collection}, &n); err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	return n, nil
}

func (repo *CatalogRepo) CreateCollection(ctx context.Context, c *entity.Collection) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("CreateCollection: %w", err)
	}
	const query = `
INSERT INTO collections (id, title, description)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO NOTHING`
	res, err := repo.db.ExecContext(ctx, query, c.ID, c.Title, c.Description)
	if err != nil {
		return fmt.Errorf("CreateCollection: %w", err)
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
	const query = `UPDATE collections SET title = $2, description = $3 WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, query, c.ID, c.Title, c.Description)
	if err != nil {
		return fmt.Errorf("UpdateCollection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("UpdateCollection: %w", entity.ErrNotFound)
	}
	return nil
}

func (repo *CatalogRepo) GetCollection(ctx context.Context, id string) (*entity.Collection, error) {
	const query = `SELECT title, description FROM collections WHERE id = $1`
	c := entity.Collection{Type: entity.CollectionType, StacVersion: entity.StacVersion, ID: id, Links: []entity.Link{}}
	err := db.QueryOne(ctx, repo.db, query, []interface{}{id}, &c.Title, &c.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetCollection: %w", err)
	}
	return &c, nil
}

// DeleteCollection removes the items too, through ON DELETE CASCADE.
func (repo *CatalogRepo) DeleteCollection(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM collections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("DeleteCollection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("DeleteCollection: %w", entity.ErrNotFound)
	}
	return nil
}
