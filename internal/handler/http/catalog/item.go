package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"sonde-catalog/internal/domain/entity"
	"sonde-catalog/internal/handler/http/pathutil"
	"sonde-catalog/internal/handler/http/respond"
)

var (
	errItemNotFound  = errors.New("item not found")
	errInvalidPathID = errors.New("invalid collection or item id")
)

// ItemReader loads stored catalog items.
type ItemReader interface {
	Get(ctx context.Context, collection, id string) (*entity.CatalogItem, error)
}

// ItemWriter changes stored catalog items.
type ItemWriter interface {
	Upsert(ctx context.Context, item *entity.CatalogItem) (string, error)
	Delete(ctx context.Context, collection, id string) error
}

// itemPath returns the validated {collectionId} and {itemId} path values.
func itemPath(r *http.Request) (string, string, error) {
	collection, id := r.PathValue("collectionId"), r.PathValue("itemId")
	if pathutil.ValidateID(collection) != nil || pathutil.ValidateID(id) != nil {
		return "", "", errInvalidPathID
	}
	return collection, id, nil
}

// GetItemHandler returns one stored item as GeoJSON.
type GetItemHandler struct{ Repo ItemReader }

// ServeHTTP handles GET /collections/{collectionId}/items/{itemId}.
func (h GetItemHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	collection, id, err := itemPath(r)
	if err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}

	item, err := h.Repo.Get(r.Context(), collection, id)
	if err != nil {
		respond.SafeErrorV2(w, http.StatusServiceUnavailable,
			respond.NewAppError(http.StatusServiceUnavailable, "catalog store unavailable", err))
		return
	}
	if item == nil {
		respond.SafeError(w, http.StatusNotFound, errItemNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(item)
}

// PutItemHandler creates or replaces an item.
type PutItemHandler struct{ Repo ItemWriter }

// ServeHTTP handles PUT /collections/{collectionId}/items/{itemId}.
// The body is a STAC item; its id and collection default to the path
// values and must match them when given.
func (h PutItemHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	collection, id, err := itemPath(r)
	if err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}

	var item entity.CatalogItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respond.SafeError(w, http.StatusRequestEntityTooLarge, errors.New("request body too large"))
			return
		}
		respond.SafeError(w, http.StatusBadRequest, fmt.Errorf("invalid item body: %v", err))
		return
	}

	if item.ID == "" {
		item.ID = id
	}
	if item.Collection == "" {
		item.Collection = collection
	}
	if item.ID != id || item.Collection != collection {
		respond.SafeError(w, http.StatusBadRequest, errors.New("item id and collection must match the path"))
		return
	}
	if item.Type == "" {
		item.Type = entity.FeatureType
	}
	if item.StacVersion == "" {
		item.StacVersion = entity.StacVersion
	}
	if err := item.Validate(); err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}

	if _, err := h.Repo.Upsert(r.Context(), &item); err != nil {
		respond.SafeErrorV2(w, http.StatusServiceUnavailable,
			respond.NewAppError(http.StatusServiceUnavailable, "catalog store unavailable", err))
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(&item)
}

// DeleteItemHandler removes an item.
type DeleteItemHandler struct{ Repo ItemWriter }

// ServeHTTP handles DELETE /collections/{collectionId}/items/{itemId}.
func (h DeleteItemHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	collection, id, err := itemPath(r)
	if err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}

	err = h.Repo.Delete(r.Context(), collection, id)
	switch {
	case errors.Is(err, entity.ErrNotFound):
		respond.SafeError(w, http.StatusNotFound, errItemNotFound)
	case err != nil:
		respond.SafeErrorV2(w, http.StatusServiceUnavailable,
			respond.NewAppError(http.StatusServiceUnavailable, "catalog store unavailable", err))
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
