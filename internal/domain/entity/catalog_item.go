package entity

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// STAC constants for catalog items produced by this service.
const (
	StacVersion       = "1.0.0"
	FeatureType       = "Feature"
	GeometryPoint     = "Point"
	GeometryLine      = "LineString"
	LinkRelVia        = "via"
	LinkRelCollection = "collection"
	DataAssetKey      = "data"
)

// identifierPattern is the shape of collection and item identifiers. They
// end up as URL path segments and object keys, so nothing may need escaping.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,254}$`)

// ValidIdentifier reports whether id may be used as a collection or item
// identifier: an ASCII letter or digit followed by at most 254 letters,
// digits, '.', '_' or '-'.
func ValidIdentifier(id string) bool {
	return identifierPattern.MatchString(id)
}

// Geometry is a GeoJSON Point or LineString. Coordinates are stored as a
// list of [lon, lat, alt] positions; a Point holds exactly one.
type Geometry struct {
	Type        string
	Coordinates [][]float64
}

type geometryJSON struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// MarshalJSON encodes the geometry in GeoJSON form.
func (g Geometry) MarshalJSON() ([]byte, error) {
	var coords any = g.Coordinates
	if g.Type == GeometryPoint {
		if len(g.Coordinates) != 1 {
			return nil, fmt.Errorf("point geometry needs one position, got %d", len(g.Coordinates))
		}
		coords = g.Coordinates[0]
	}
	raw, err := json.Marshal(coords)
	if err != nil {
		return nil, err
	}
	return json.Marshal(geometryJSON{Type: g.Type, Coordinates: raw})
}

// UnmarshalJSON decodes a GeoJSON Point or LineString.
func (g *Geometry) UnmarshalJSON(data []byte) error {
	var aux geometryJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	g.Type = aux.Type
	switch aux.Type {
	case GeometryPoint:
		var pos []float64
		if err := json.Unmarshal(aux.Coordinates, &pos); err != nil {
			return fmt.Errorf("point coordinates: %w", err)
		}
		g.Coordinates = [][]float64{pos}
	case GeometryLine:
		if err := json.Unmarshal(aux.Coordinates, &g.Coordinates); err != nil {
			return fmt.Errorf("linestring coordinates: %w", err)
		}
	default:
		return fmt.Errorf("unsupported geometry type %q", aux.Type)
	}
	return nil
}

// ItemProperties carries the temporal extent and the domain summary of a drop.
type ItemProperties struct {
	Datetime        time.Time `json:"datetime"`
	StartDatetime   time.Time `json:"start_datetime"`
	EndDatetime     time.Time `json:"end_datetime"`
	Platform        string    `json:"platform"`
	SondeID         string    `json:"sonde_id"`
	Mission         string    `json:"mission,omitempty"`
	SampleCount     int       `json:"sample_count"`
	MinPressureHPa  float64   `json:"min_pressure_hpa"`
	MaxPressureHPa  float64   `json:"max_pressure_hpa"`
	MinTemperatureC *float64  `json:"min_temperature_c,omitempty"`
	MaxTemperatureC *float64  `json:"max_temperature_c,omitempty"`
	MaxWindSpeedMS  *float64  `json:"max_wind_speed_ms,omitempty"`
}

// Link is a STAC link object.
type Link struct {
	Rel   string `json:"rel"`
	Href  string `json:"href"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
}

// Asset is a STAC asset object.
type Asset struct {
	Href  string   `json:"href"`
	Type  string   `json:"type,omitempty"`
	Title string   `json:"title,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// CatalogItem is the persisted unit: a STAC Item describing one sonde drop.
type CatalogItem struct {
	Type           string           `json:"type"`
	StacVersion    string           `json:"stac_version"`
	StacExtensions []string         `json:"stac_extensions"`
	ID             string           `json:"id"`
	Collection     string           `json:"collection"`
	Geometry       Geometry         `json:"geometry"`
	BBox           []float64        `json:"bbox"`
	Properties     ItemProperties   `json:"properties"`
	Links          []Link           `json:"links"`
	Assets         map[string]Asset `json:"assets"`
}

// SourceURL returns the provenance link back to the originating report.
func (i *CatalogItem) SourceURL() string {
	for _, l := range i.Links {
		if l.Rel == LinkRelVia {
			return l.Href
		}
	}
	return ""
}

// Validate checks the fields the catalog store depends on.
func (i *CatalogItem) Validate() error {
	if i.ID == "" {
		return &ValidationError{Field: "id", Message: "item id is required"}
	}
	if !ValidIdentifier(i.ID) {
		return &ValidationError{Field: "id", Message: fmt.Sprintf("item id %q contains characters outside [A-Za-z0-9._-]", i.ID)}
	}
	if i.Collection == "" {
		return &ValidationError{Field: "collection", Message: "collection is required"}
	}
	if len(i.Geometry.Coordinates) == 0 {
		return &ValidationError{Field: "geometry", Message: "geometry must have coordinates"}
	}
	if i.Properties.EndDatetime.Before(i.Properties.StartDatetime) {
		return &ValidationError{Field: "properties", Message: "end_datetime must not precede start_datetime"}
	}
	return nil
}
