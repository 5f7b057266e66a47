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
	errCollectionNotFound = errors.New("collection not found")
	errCollectionExists   = errors.New("collection already exists")
)

// CollectionReader loads stored collections.
type CollectionReader interface {
	GetCollection(ctx context.Context, id string) (*entity.Collection, error)
}

// CollectionWriter changes stored collections.
type CollectionWriter interface {
	CreateCollection(ctx context.Context, c *entity.Collection) error
	UpdateCollection(ctx context.Context, c *entity.Collection) error
	DeleteCollection(ctx context.Context, id string) error
}

func withLinks(c *entity.Collection) *entity.Collection {
	c.Type = entity.CollectionType
	c.StacVersion = entity.StacVersion
	c.Links = []entity.Link{
		{Rel: "self", Href: "/collections/" + c.ID, Type: "application/json"},
		{Rel: "root", Href: "/", Type: "application/json"},
	}
	return c
}

// decodeCollection reads a collection body. When path is non-empty the
// body id defaults to it and must match it.
func decodeCollection(w http.ResponseWriter, r *http.Request, path string) (*entity.Collection, bool) {
	var c entity.Collection
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respond.SafeError(w, http.StatusRequestEntityTooLarge, errors.New("request body too large"))
			return nil, false
		}
		respond.SafeError(w, http.StatusBadRequest, fmt.Errorf("invalid collection body: %v", err))
		return nil, false
	}
	if path != "" {
		if c.ID == "" {
			c.ID = path
		}
		if c.ID != path {
			respond.SafeError(w, http.StatusBadRequest, errors.New("collection id must match the path"))
			return nil, false
		}
	}
	if err := c.Validate(); err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	return &c, true
}

func storeUnavailable(w http.ResponseWriter, err error) {
	respond.SafeErrorV2(w, http.StatusServiceUnavailable,
		respond.NewAppError(http.StatusServiceUnavailable, "catalog store unavailable", err))
}

// GetCollectionHandler returns one collection.
type GetCollectionHandler struct{ Repo CollectionReader }

// ServeHTTP handles GET /collections/{collectionId}.
func (h GetCollectionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("collectionId")
	if pathutil.ValidateID(id) != nil {
		respond.SafeError(w, http.StatusBadRequest, errInvalidPathID)
		return
	}

	c, err := h.Repo.GetCollection(r.Context(), id)
	if err != nil {
		storeUnavailable(w, err)
		return
	}
	if c == nil {
		respond.SafeError(w, http.StatusNotFound, errCollectionNotFound)
		return
	}
	respond.JSON(w, http.StatusOK, withLinks(c))
}

// CreateCollectionHandler adds a collection.
type CreateCollectionHandler struct{ Repo CollectionWriter }

// ServeHTTP handles POST /collections. An existing id answers 409.
func (h CreateCollectionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, ok := decodeCollection(w, r, "")
	if !ok {
		return
	}

	err := h.Repo.CreateCollection(r.Context(), c)
	switch {
	case errors.Is(err, entity.ErrAlreadyExists):
		respond.SafeError(w, http.StatusConflict, errCollectionExists)
	case err != nil:
		storeUnavailable(w, err)
	default:
		w.Header().Set("Location", "/collections/"+c.ID)
		respond.JSON(w, http.StatusCreated, withLinks(c))
	}
}

// UpdateCollectionHandler replaces the title and description of a collection.
type UpdateCollectionHandler struct{ Repo CollectionWriter }

// ServeHTTP handles PUT /collections/{collectionId}.
func (h UpdateCollectionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("collectionId")
	if pathutil.ValidateID(id) != nil {
		respond.SafeError(w, http.StatusBadRequest, errInvalidPathID)
		return
	}
	c, ok := decodeCollection(w, r, id)
	if !ok {
		return
	}

	err := h.Repo.UpdateCollection(r.Context(), c)
	switch {
	case errors.Is(err, entity.ErrNotFound):
		respond.SafeError(w, http.StatusNotFound, errCollectionNotFound)
	case err != nil:
		storeUnavailable(w, err)
	default:
		respond.JSON(w, http.StatusOK, withLinks(c))
	}
}

// DeleteCollectionHandler removes a collection with all of its items.
type DeleteCollectionHandler struct{ Repo CollectionWriter }

// ServeHTTP handles DELETE /collections/{collectionId}.
func (h DeleteCollectionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("collectionId")
	if pathutil.ValidateID(id) != nil {
		respond.SafeError(w, http.StatusBadRequest, errInvalidPathID)
		return
	}

	err := h.Repo.DeleteCollection(r.Context(), id)
	switch {
	case errors.Is(err, entity.ErrNotFound):
		respond.SafeError(w, http.StatusNotFound, errCollectionNotFound)
	case err != nil:
		storeUnavailable(w, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
