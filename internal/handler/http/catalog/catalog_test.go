package catalog_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sonde-catalog/internal/config"
	"sonde-catalog/internal/domain/entity"
	"sonde-catalog/internal/handler/http/catalog"
)

/* ───────── モック実装 ───────── */

type memStore struct {
	items       map[string]*entity.CatalogItem
	collections map[string]*entity.Collection
	err         error
	upserts     int
}

func newMemStore(items ...*entity.CatalogItem) *memStore {
	s := &memStore{
		items:       map[string]*entity.CatalogItem{},
		collections: map[string]*entity.Collection{"dropsondes": {ID: "dropsondes", Title: "Dropsondes"}},
	}
	for _, it := range items {
		s.items[it.Collection+"/"+it.ID] = it
	}
	return s
}

func (s *memStore) Get(_ context.Context, collection, id string) (*entity.CatalogItem, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.items[collection+"/"+id], nil
}

func (s *memStore) Upsert(_ context.Context, item *entity.CatalogItem) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.upserts++
	cp := *item
	s.items[item.Collection+"/"+item.ID] = &cp
	return item.ID, nil
}

func (s *memStore) Delete(_ context.Context, collection, id string) error {
	if s.err != nil {
		return s.err
	}
	key := collection + "/" + id
	if _, ok := s.items[key]; !ok {
		return entity.ErrNotFound
	}
	delete(s.items, key)
	return nil
}

func (s *memStore) GetCollection(_ context.Context, id string) (*entity.Collection, error) {
	if s.err != nil {
		return nil, s.err
	}
	c, ok := s.collections[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) CreateCollection(_ context.Context, c *entity.Collection) error {
	if s.err != nil {
		return s.err
	}
	if _, ok := s.collections[c.ID]; ok {
		return entity.ErrAlreadyExists
	}
	cp := *c
	s.collections[c.ID] = &cp
	return nil
}

func (s *memStore) UpdateCollection(_ context.Context, c *entity.Collection) error {
	if s.err != nil {
		return s.err
	}
	if _, ok := s.collections[c.ID]; !ok {
		return entity.ErrNotFound
	}
	cp := *c
	s.collections[c.ID] = &cp
	return nil
}

func (s *memStore) DeleteCollection(_ context.Context, id string) error {
	if s.err != nil {
		return s.err
	}
	if _, ok := s.collections[id]; !ok {
		return entity.ErrNotFound
	}
	delete(s.collections, id)
	for key, it := range s.items {
		if it.Collection == id {
			delete(s.items, key)
		}
	}
	return nil
}

func sampleItem() *entity.CatalogItem {
	launch := time.Date(2024, 9, 26, 18, 0, 0, 0, time.UTC)
	return &entity.CatalogItem{
		Type:           entity.FeatureType,
		StacVersion:    entity.StacVersion,
		StacExtensions: []string{},
		ID:             "sonde_001",
		Collection:     "dropsondes",
		Geometry:       entity.Geometry{Type: entity.GeometryPoint, Coordinates: [][]float64{{-75.1, 25.2, 9000}}},
		BBox:           []float64{-75.1, 25.2, -75.1, 25.2},
		Properties: entity.ItemProperties{
			Datetime:       launch,
			StartDatetime:  launch,
			EndDatetime:    launch.Add(10 * time.Minute),
			Platform:       "NOAA42",
			SondeID:        "SN123",
			SampleCount:    2,
			MinPressureHPa: 300,
			MaxPressureHPa: 1000,
		},
		Links:  []entity.Link{{Rel: entity.LinkRelVia, Href: "https://archive.example.org/sonde_001.dat"}},
		Assets: map[string]entity.Asset{},
	}
}

func newMux(store catalog.Store, ext config.ExtensionsConfig) *http.ServeMux {
	mux := http.NewServeMux()
	catalog.Register(mux, store, ext)
	return mux
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

/* ───────── GET item ───────── */

func TestGetItem(t *testing.T) {
	store := newMemStore(sampleItem())
	mux := newMux(store, config.ExtensionsConfig{})

	rec := serve(mux, http.MethodGet, "/collections/dropsondes/items/sonde_001", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))

	var got entity.CatalogItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	if diff := cmp.Diff(sampleItem(), &got); diff != "" {
		t.Errorf("item mismatch (-want +got):\n%s", diff)
	}
}

func TestGetItem_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		storeErr   error
		wantStatus int
		wantMsg    string
	}{
		{"missing item", "/collections/dropsondes/items/sonde_999", nil, http.StatusNotFound, "item not found"},
		{"other collection", "/collections/other/items/sonde_001", nil, http.StatusNotFound, "item not found"},
		{"bad id", "/collections/dropsondes/items/.hidden", nil, http.StatusBadRequest, "invalid collection or item id"},
		{"store down", "/collections/dropsondes/items/sonde_001", errors.New("dial tcp: refused"), http.StatusServiceUnavailable, "catalog store unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(sampleItem())
			store.err = tt.storeErr

			rec := serve(newMux(store, config.ExtensionsConfig{}), http.MethodGet, tt.path, "")

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantMsg)
		})
	}
}

/* ───────── transactions ───────── */

func TestTransactionsDisabled(t *testing.T) {
	store := newMemStore(sampleItem())
	mux := newMux(store, config.ExtensionsConfig{Transactions: false})

	body, _ := json.Marshal(sampleItem())
	assert.Equal(t, http.StatusMethodNotAllowed, serve(mux, http.MethodPut, "/collections/dropsondes/items/sonde_001", string(body)).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(mux, http.MethodDelete, "/collections/dropsondes/items/sonde_001", "").Code)
	assert.Len(t, store.items, 1)
	assert.Zero(t, store.upserts)
}

func TestPutItem(t *testing.T) {
	ext := config.ExtensionsConfig{Transactions: true}

	t.Run("replaces item", func(t *testing.T) {
		store := newMemStore(sampleItem())
		item := sampleItem()
		item.Properties.Platform = "AF305"
		body, _ := json.Marshal(item)

		rec := serve(newMux(store, ext), http.MethodPut, "/collections/dropsondes/items/sonde_001", string(body))

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "AF305", store.items["dropsondes/sonde_001"].Properties.Platform)
	})

	t.Run("fills id and collection from path", func(t *testing.T) {
		store := newMemStore()
		item := sampleItem()
		item.ID, item.Collection, item.Type, item.StacVersion = "", "", "", ""
		body, _ := json.Marshal(item)

		rec := serve(newMux(store, ext), http.MethodPut, "/collections/dropsondes/items/sonde_002", string(body))

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		stored := store.items["dropsondes/sonde_002"]
		require.NotNil(t, stored)
		assert.Equal(t, entity.FeatureType, stored.Type)
		assert.Equal(t, entity.StacVersion, stored.StacVersion)
	})

	t.Run("rejects mismatched id", func(t *testing.T) {
		store := newMemStore()
		body, _ := json.Marshal(sampleItem())

		rec := serve(newMux(store, ext), http.MethodPut, "/collections/dropsondes/items/other", string(body))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "must match the path")
		assert.Zero(t, store.upserts)
	})

	t.Run("rejects invalid item", func(t *testing.T) {
		store := newMemStore()
		item := sampleItem()
		item.Properties.EndDatetime = item.Properties.StartDatetime.Add(-time.Hour)
		body, _ := json.Marshal(item)

		rec := serve(newMux(store, ext), http.MethodPut, "/collections/dropsondes/items/sonde_001", string(body))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "end_datetime must not precede start_datetime")
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		rec := serve(newMux(newMemStore(), ext), http.MethodPut, "/collections/dropsondes/items/sonde_001", `{"geometry":{"type":"Polygon"}}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid item body")
	})

	t.Run("store failure", func(t *testing.T) {
		store := newMemStore()
		store.err = errors.New("disk full")
		body, _ := json.Marshal(sampleItem())

		rec := serve(newMux(store, ext), http.MethodPut, "/collections/dropsondes/items/sonde_001", string(body))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.NotContains(t, rec.Body.String(), "disk full")
	})
}

func TestDeleteItem(t *testing.T) {
	ext := config.ExtensionsConfig{Transactions: true}
	store := newMemStore(sampleItem())
	mux := newMux(store, ext)

	rec := serve(mux, http.MethodDelete, "/collections/dropsondes/items/sonde_001", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, store.items)

	rec = serve(mux, http.MethodDelete, "/collections/dropsondes/items/sonde_001", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	store.err = errors.New("connection reset")
	rec = serve(mux, http.MethodDelete, "/collections/dropsondes/items/sonde_001", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

/* ───────── collections ───────── */

func TestGetCollection(t *testing.T) {
	mux := newMux(newMemStore(), config.ExtensionsConfig{})

	rec := serve(mux, http.MethodGet, "/collections/dropsondes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got entity.Collection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "dropsondes", got.ID)
	assert.Equal(t, entity.CollectionType, got.Type)
	assert.Equal(t, "/collections/dropsondes", got.Links[0].Href)

	rec = serve(mux, http.MethodGet, "/collections/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(mux, http.MethodGet, "/collections/.hidden", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCollectionTransactions_Disabled(t *testing.T) {
	mux := newMux(newMemStore(), config.ExtensionsConfig{})

	rec := serve(mux, http.MethodPost, "/collections", `{"id":"helene"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = serve(mux, http.MethodDelete, "/collections/dropsondes", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCollectionTransactions(t *testing.T) {
	store := newMemStore(sampleItem())
	mux := newMux(store, config.ExtensionsConfig{Transactions: true})

	rec := serve(mux, http.MethodPost, "/collections", `{"type":"Collection","id":"helene","title":"Helene","description":"AL09"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "/collections/helene", rec.Header().Get("Location"))
	assert.Equal(t, "Helene", store.collections["helene"].Title)

	rec = serve(mux, http.MethodPost, "/collections", `{"id":"helene"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(mux, http.MethodPost, "/collections", `{"id":"with space"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(mux, http.MethodPut, "/collections/helene", `{"title":"Hurricane Helene","description":"AL09"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Hurricane Helene", store.collections["helene"].Title)

	rec = serve(mux, http.MethodPut, "/collections/helene", `{"id":"milton"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(mux, http.MethodPut, "/collections/milton", `{"title":"Milton"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(mux, http.MethodDelete, "/collections/dropsondes", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, store.items, "items go with their collection")

	rec = serve(mux, http.MethodDelete, "/collections/dropsondes", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	store.err = errors.New("connection reset")
	rec = serve(mux, http.MethodPost, "/collections", `{"id":"milton"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

/* ───────── landing ───────── */

func TestLanding(t *testing.T) {
	ext := config.ExtensionsConfig{
		Enabled:      []string{config.ExtensionQuery, config.ExtensionSort},
		Transactions: true,
	}
	rec := serve(newMux(newMemStore(), ext), http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var doc catalog.Landing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))

	assert.Equal(t, "Catalog", doc.Type)
	assert.Equal(t, []string{"query", "sort", "transactions"}, doc.Extensions)
	assert.Equal(t, []string{
		"https://api.stacspec.org/v1.0.0/core",
		"https://api.stacspec.org/v1.0.0/ogcapi-features/extensions/transaction",
	}, doc.ConformsTo, "only mounted routes may be claimed")
}

func TestLanding_NoExtensions(t *testing.T) {
	doc := catalog.NewLanding(config.ExtensionsConfig{})

	assert.Equal(t, []string{}, doc.Extensions)
	assert.Equal(t, []string{"https://api.stacspec.org/v1.0.0/core"}, doc.ConformsTo)
}

func TestLanding_RootOnly(t *testing.T) {
	rec := serve(newMux(newMemStore(), config.ExtensionsConfig{}), http.MethodGet, "/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
