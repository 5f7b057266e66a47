package catalog

import (
	"net/http"

	"sonde-catalog/internal/config"
	"sonde-catalog/internal/domain/entity"
	"sonde-catalog/internal/handler/http/respond"
)

const (
	catalogID          = "sonde-catalog"
	catalogDescription = "Dropsonde reports converted to STAC items"
)

// coreConformance lists only what Register mounts: the landing page and
// single collection and item documents.
var coreConformance = []string{
	"https://api.stacspec.org/v1.0.0/core",
}

const transactionConformance = "https://api.stacspec.org/v1.0.0/ogcapi-features/extensions/transaction"

// Landing is the root catalog document.
type Landing struct {
	Type        string        `json:"type"`
	ID          string        `json:"id"`
	StacVersion string        `json:"stac_version"`
	Description string        `json:"description"`
	ConformsTo  []string      `json:"conformsTo"`
	Extensions  []string      `json:"extensions"`
	Links       []entity.Link `json:"links"`
}

// NewLanding builds the landing document. conformsTo claims only the
// routes this package serves.
func NewLanding(ext config.ExtensionsConfig) Landing {
	l := Landing{
		Type:        "Catalog",
		ID:          catalogID,
		StacVersion: entity.StacVersion,
		Description: catalogDescription,
		ConformsTo:  append([]string(nil), coreConformance...),
		Extensions:  make([]string, 0, len(ext.Enabled)+1),
		Links: []entity.Link{
			{Rel: "self", Href: "/", Type: "application/json"},
			{Rel: "root", Href: "/", Type: "application/json"},
		},
	}
	// the read extensions are served by the search layer in front of the
	// catalog, so they are listed by name but never claimed in conformsTo
	l.Extensions = append(l.Extensions, ext.Enabled...)
	if ext.Transactions {
		l.Extensions = append(l.Extensions, "transactions")
		l.ConformsTo = append(l.ConformsTo, transactionConformance)
	}
	return l
}

// LandingHandler serves GET /.
type LandingHandler struct{ Doc Landing }

func (h LandingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, h.Doc)
}
