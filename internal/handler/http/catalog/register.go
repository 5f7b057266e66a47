// Package catalog serves stored collections and items and, with the
// transactions extension enabled, lets clients create, replace or remove
// them.
package catalog

import (
	"net/http"

	"sonde-catalog/internal/config"
)

// Store is what the catalog routes need from the repository.
type Store interface {
	ItemReader
	ItemWriter
	CollectionReader
	CollectionWriter
}

// Register mounts the landing page and the read routes. The write routes
// exist only when ext.Transactions is set; otherwise the mux answers 405.
func Register(mux *http.ServeMux, store Store, ext config.ExtensionsConfig) {
	mux.Handle("GET    /{$}", LandingHandler{Doc: NewLanding(ext)})
	mux.Handle("GET    /collections/{collectionId}", GetCollectionHandler{Repo: store})
	mux.Handle("GET    /collections/{collectionId}/items/{itemId}", GetItemHandler{Repo: store})

	if ext.Transactions {
		mux.Handle("POST   /collections", CreateCollectionHandler{Repo: store})
		mux.Handle("PUT    /collections/{collectionId}", UpdateCollectionHandler{Repo: store})
		mux.Handle("DELETE /collections/{collectionId}", DeleteCollectionHandler{Repo: store})
		mux.Handle("PUT    /collections/{collectionId}/items/{itemId}", PutItemHandler{Repo: store})
		mux.Handle("DELETE /collections/{collectionId}/items/{itemId}", DeleteItemHandler{Repo: store})
	}
}
