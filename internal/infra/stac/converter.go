// Package stac converts parsed dropsonde reports into STAC catalog items.
package stac

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"sonde-catalog/internal/domain/entity"
)

// IDPolicy selects how a catalog item identifier is derived.
type IDPolicy string

const (
	// IDPolicySource uses the report identifier, i.e. the filename stem of
	// the source URL. Re-ingesting the same URL yields the same id.
	IDPolicySource IDPolicy = "source"

	// IDPolicyURLHash uses a name-based UUID of the full source URL, so
	// same-named files in different directories do not collide.
	IDPolicyURLHash IDPolicy = "url-hash"

	// IDPolicyContent uses "<sonde serial>-<launch time>", so the same drop
	// published on several mirrors collapses into one item.
	IDPolicyContent IDPolicy = "content"
)

// DefaultCollection is the collection items are written to unless configured.
const DefaultCollection = "dropsondes"

const launchIDLayout = "20060102T150405Z"

// ParseIDPolicy parses a policy name. The empty string selects IDPolicySource.
func ParseIDPolicy(s string) (IDPolicy, error) {
	switch p := IDPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return IDPolicySource, nil
	case IDPolicySource, IDPolicyURLHash, IDPolicyContent:
		return p, nil
	default:
		return "", fmt.Errorf("unknown id policy %q (want source, url-hash or content)", s)
	}
}

// Config controls item construction.
type Config struct {
	Collection string
	IDPolicy   IDPolicy
}

// DefaultConfig returns the converter defaults.
func DefaultConfig() Config {
	return Config{Collection: DefaultCollection, IDPolicy: IDPolicySource}
}

// Validate checks that the collection is set and the policy is known.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Collection) == "" {
		return errors.New("collection must not be empty")
	}
	if _, err := ParseIDPolicy(string(c.IDPolicy)); err != nil {
		return err
	}
	return nil
}

// Converter builds catalog items. It is stateless and deterministic: the same
// report and source URL always produce an identical item.
type Converter struct {
	cfg Config
}

// NewConverter returns a converter for cfg. An empty policy means IDPolicySource.
func NewConverter(cfg Config) *Converter {
	if cfg.IDPolicy == "" {
		cfg.IDPolicy = IDPolicySource
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	return &Converter{cfg: cfg}
}

// Convert maps report onto a STAC Item whose provenance points at sourceURL.
func (c *Converter) Convert(report *entity.DropsondeReport, sourceURL string) (*entity.CatalogItem, error) {
	if report == nil {
		return nil, &entity.ConversionError{Reason: "report is nil"}
	}
	fail := func(format string, args ...any) error {
		return &entity.ConversionError{ReportID: report.ID, Reason: fmt.Sprintf(format, args...)}
	}

	if len(report.Samples) == 0 {
		return nil, fail("report has no samples")
	}
	if err := report.Validate(); err != nil {
		return nil, fail("%v", err)
	}

	positions := report.Positions()
	if len(positions) == 0 {
		return nil, fail("no sample has a position")
	}

	id, err := c.itemID(report, sourceURL)
	if err != nil {
		return nil, fail("%v", err)
	}
	if !entity.ValidIdentifier(id) {
		return nil, fail("item id %q is not usable as an identifier (%s policy)", id, c.cfg.IDPolicy)
	}

	start, end, _ := report.TimeRange()
	datetime := report.LaunchTime
	if datetime.IsZero() {
		datetime = start
	}

	item := &entity.CatalogItem{
		Type:           entity.FeatureType,
		StacVersion:    entity.StacVersion,
		StacExtensions: []string{},
		ID:             id,
		Collection:     c.cfg.Collection,
		Geometry:       geometry(positions),
		BBox:           bbox(positions),
		Properties:     summarize(report),
		Links: []entity.Link{
			{Rel: entity.LinkRelCollection, Href: "/collections/" + c.cfg.Collection, Type: "application/json"},
			{Rel: entity.LinkRelVia, Href: sourceURL, Type: "text/plain", Title: "Source report"},
		},
		Assets: map[string]entity.Asset{
			entity.DataAssetKey: {
				Href:  sourceURL,
				Type:  "text/plain",
				Title: report.Filename,
				Roles: []string{"data"},
			},
		},
	}
	item.Properties.Datetime = datetime.UTC()
	item.Properties.StartDatetime = start.UTC()
	item.Properties.EndDatetime = end.UTC()

	if err := item.Validate(); err != nil {
		return nil, fail("%v", err)
	}
	return item, nil
}

func (c *Converter) itemID(report *entity.DropsondeReport, sourceURL string) (string, error) {
	switch c.cfg.IDPolicy {
	case IDPolicyURLHash:
		if sourceURL == "" {
			return "", errors.New("url-hash id policy needs a source URL")
		}
		return uuid.NewSHA1(uuid.NameSpaceURL, []byte(sourceURL)).String(), nil
	case IDPolicyContent:
		if report.SondeID == "" || report.LaunchTime.IsZero() {
			return "", errors.New("content id policy needs sonde serial and launch time")
		}
		return report.SondeID + "-" + report.LaunchTime.UTC().Format(launchIDLayout), nil
	default:
		if report.ID == "" {
			return "", errors.New("report has no identifier")
		}
		return report.ID, nil
	}
}

// geometry is a Point when every position is identical, otherwise the track
// of distinct consecutive positions.
func geometry(positions []entity.Position) entity.Geometry {
	coords := make([][]float64, 0, len(positions))
	var last entity.Position
	for i, p := range positions {
		if i > 0 && p == last {
			continue
		}
		coords = append(coords, []float64{p.Lon, p.Lat, p.AltM})
		last = p
	}
	if len(coords) == 1 {
		return entity.Geometry{Type: entity.GeometryPoint, Coordinates: coords}
	}
	return entity.Geometry{Type: entity.GeometryLine, Coordinates: coords}
}

func bbox(positions []entity.Position) []float64 {
	minLon, minLat := math.Inf(1), math.Inf(1)
	maxLon, maxLat := math.Inf(-1), math.Inf(-1)
	for _, p := range positions {
		minLon = math.Min(minLon, p.Lon)
		maxLon = math.Max(maxLon, p.Lon)
		minLat = math.Min(minLat, p.Lat)
		maxLat = math.Max(maxLat, p.Lat)
	}
	return []float64{minLon, minLat, maxLon, maxLat}
}

func summarize(report *entity.DropsondeReport) entity.ItemProperties {
	props := entity.ItemProperties{
		Platform:       report.Platform,
		SondeID:        report.SondeID,
		Mission:        report.Mission,
		SampleCount:    len(report.Samples),
		MinPressureHPa: math.Inf(1),
		MaxPressureHPa: math.Inf(-1),
	}

	for _, s := range report.Samples {
		props.MinPressureHPa = math.Min(props.MinPressureHPa, s.PressureHPa)
		props.MaxPressureHPa = math.Max(props.MaxPressureHPa, s.PressureHPa)

		if s.TemperatureC != nil {
			t := *s.TemperatureC
			if props.MinTemperatureC == nil || t < *props.MinTemperatureC {
				props.MinTemperatureC = &t
			}
			if props.MaxTemperatureC == nil || t > *props.MaxTemperatureC {
				props.MaxTemperatureC = &t
			}
		}
		if s.Wind != nil {
			w := s.Wind.SpeedMS
			if props.MaxWindSpeedMS == nil || w > *props.MaxWindSpeedMS {
				props.MaxWindSpeedMS = &w
			}
		}
	}
	return props
}
