package repository

import (
	"context"

	"sonde-catalog/internal/domain/entity"
)

// CatalogRepository persists catalog items keyed by (collection, id).
type CatalogRepository interface {
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context, id string) error
	// Upsert inserts or replaces the item and returns its id. Writing the
	// same item twice leaves exactly one stored record.
	Upsert(ctx context.Context, item *entity.CatalogItem) (string, error)
	// Get returns nil, nil when the item does not exist.
	Get(ctx context.Context, collection, id string) (*entity.CatalogItem, error)
	// Delete returns entity.ErrNotFound when nothing was deleted.
	Delete(ctx context.Context, collection, id string) error
	// Count returns the number of items stored in collection.
	Count(ctx context.Context, collection string) (int64, error)

	// CreateCollection returns entity.ErrAlreadyExists when the id is taken.
	CreateCollection(ctx context.Context, c *entity.Collection) error
	// UpdateCollection returns entity.ErrNotFound when the id is unknown.
	UpdateCollection(ctx context.Context, c *entity.Collection) error
	// GetCollection returns nil, nil when the collection does not exist.
	GetCollection(ctx context.Context, id string) (*entity.Collection, error)
	// DeleteCollection removes the collection and all of its items. It
	// returns entity.ErrNotFound when nothing was deleted.
	DeleteCollection(ctx context.Context, id string) error
}
