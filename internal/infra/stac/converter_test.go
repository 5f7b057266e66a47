package stac

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sonde-catalog/internal/domain/entity"
)

const sourceURL = "https://archive.example/drops/sonde_001.dat"

var launch = time.Date(2024, 9, 26, 17, 2, 11, 0, time.UTC)

func f(v float64) *float64 { return &v }

func testReport() *entity.DropsondeReport {
	return &entity.DropsondeReport{
		ID:         "sonde_001",
		Filename:   "sonde_001.dat",
		SondeID:    "241234567",
		Platform:   "NOAA42",
		Mission:    "20240926H1",
		LaunchTime: launch,
		Samples: []entity.Sample{
			{
				Time: launch, PressureHPa: 420.3, TemperatureC: f(-20.1),
				Wind:     &entity.Wind{DirectionDeg: 270, SpeedMS: 12.5},
				Position: &entity.Position{Lat: 25.2, Lon: -85.3, AltM: 7000},
			},
			{
				Time: launch.Add(time.Second), PressureHPa: 421, TemperatureC: f(-19.9),
				Position: &entity.Position{Lat: 25.2, Lon: -85.3, AltM: 7000},
			},
			{Time: launch.Add(30 * time.Second), PressureHPa: 700},
			{
				Time: launch.Add(90 * time.Second), PressureHPa: 1008.9, TemperatureC: f(28.4),
				Wind:     &entity.Wind{DirectionDeg: 95, SpeedMS: 6.2},
				Position: &entity.Position{Lat: 25.1, Lon: -85.4, AltM: 10},
			},
		},
	}
}

func TestConverter_Convert(t *testing.T) {
	item, err := NewConverter(DefaultConfig()).Convert(testReport(), sourceURL)
	require.NoError(t, err)

	want := &entity.CatalogItem{
		Type:           entity.FeatureType,
		StacVersion:    entity.StacVersion,
		StacExtensions: []string{},
		ID:             "sonde_001",
		Collection:     DefaultCollection,
		Geometry: entity.Geometry{
			Type:        entity.GeometryLine,
			Coordinates: [][]float64{{-85.3, 25.2, 7000}, {-85.4, 25.1, 10}},
		},
		BBox: []float64{-85.4, 25.1, -85.3, 25.2},
		Properties: entity.ItemProperties{
			Datetime:        launch,
			StartDatetime:   launch,
			EndDatetime:     launch.Add(90 * time.Second),
			Platform:        "NOAA42",
			SondeID:         "241234567",
			Mission:         "20240926H1",
			SampleCount:     4,
			MinPressureHPa:  420.3,
			MaxPressureHPa:  1008.9,
			MinTemperatureC: f(-20.1),
			MaxTemperatureC: f(28.4),
			MaxWindSpeedMS:  f(12.5),
		},
		Links: []entity.Link{
			{Rel: entity.LinkRelCollection, Href: "/collections/dropsondes", Type: "application/json"},
			{Rel: entity.LinkRelVia, Href: sourceURL, Type: "text/plain", Title: "Source report"},
		},
		Assets: map[string]entity.Asset{
			entity.DataAssetKey: {Href: sourceURL, Type: "text/plain", Title: "sonde_001.dat", Roles: []string{"data"}},
		},
	}

	if diff := cmp.Diff(want, item); diff != "" {
		t.Fatalf("item mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, sourceURL, item.SourceURL())
}

func TestConverter_Convert_Deterministic(t *testing.T) {
	c := NewConverter(DefaultConfig())
	first, err := c.Convert(testReport(), sourceURL)
	require.NoError(t, err)
	second, err := c.Convert(testReport(), sourceURL)
	require.NoError(t, err)

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	assert.JSONEq(t, string(a), string(b))
}

func TestConverter_Convert_PointWhenStationary(t *testing.T) {
	r := testReport()
	for i := range r.Samples {
		r.Samples[i].Position = &entity.Position{Lat: 10, Lon: 20, AltM: 5}
	}

	item, err := NewConverter(DefaultConfig()).Convert(r, sourceURL)
	require.NoError(t, err)
	assert.Equal(t, entity.GeometryPoint, item.Geometry.Type)
	assert.Equal(t, [][]float64{{20, 10, 5}}, item.Geometry.Coordinates)
	assert.Equal(t, []float64{20, 10, 20, 10}, item.BBox)
}

func TestConverter_Convert_IDPolicies(t *testing.T) {
	tests := []struct {
		policy IDPolicy
		want   string
	}{
		{IDPolicySource, "sonde_001"},
		{IDPolicyURLHash, uuid.NewSHA1(uuid.NameSpaceURL, []byte(sourceURL)).String()},
		{IDPolicyContent, "241234567-20240926T170211Z"},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			item, err := NewConverter(Config{Collection: "c", IDPolicy: tt.policy}).Convert(testReport(), sourceURL)
			require.NoError(t, err)
			assert.Equal(t, tt.want, item.ID)
		})
	}
}

func TestConverter_Convert_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*entity.DropsondeReport)
		reason string
	}{
		{
			name:   "no samples",
			mutate: func(r *entity.DropsondeReport) { r.Samples = nil },
			reason: "report has no samples",
		},
		{
			name: "no positions",
			mutate: func(r *entity.DropsondeReport) {
				for i := range r.Samples {
					r.Samples[i].Position = nil
				}
			},
			reason: "no sample has a position",
		},
		{
			name: "decreasing timestamps",
			mutate: func(r *entity.DropsondeReport) {
				r.Samples[2].Time = launch.Add(-time.Second)
			},
			reason: "earlier than sample",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testReport()
			tt.mutate(r)

			item, err := NewConverter(DefaultConfig()).Convert(r, sourceURL)
			assert.Nil(t, item)

			var cErr *entity.ConversionError
			require.True(t, errors.As(err, &cErr), "expected ConversionError, got %v", err)
			assert.Equal(t, "sonde_001", cErr.ReportID)
			assert.Contains(t, cErr.Reason, tt.reason)
		})
	}
}

func TestConverter_Convert_RejectsUnroutableIDs(t *testing.T) {
	tests := []struct {
		name   string
		policy IDPolicy
		mutate func(*entity.DropsondeReport)
	}{
		{"space in filename stem", IDPolicySource, func(r *entity.DropsondeReport) { r.ID = "sonde two" }},
		{"plus in filename stem", IDPolicySource, func(r *entity.DropsondeReport) { r.ID = "sonde+2" }},
		{"tilde in filename stem", IDPolicySource, func(r *entity.DropsondeReport) { r.ID = "~sonde" }},
		{"space in sonde serial", IDPolicyContent, func(r *entity.DropsondeReport) { r.SondeID = "2412 34567" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testReport()
			tt.mutate(r)

			item, err := NewConverter(Config{Collection: "c", IDPolicy: tt.policy}).Convert(r, sourceURL)
			assert.Nil(t, item)

			var cErr *entity.ConversionError
			require.ErrorAs(t, err, &cErr)
			assert.Contains(t, cErr.Reason, "not usable as an identifier")
		})
	}
}

func TestParseIDPolicy(t *testing.T) {
	p, err := ParseIDPolicy("")
	require.NoError(t, err)
	assert.Equal(t, IDPolicySource, p)

	p, err = ParseIDPolicy(" URL-Hash ")
	require.NoError(t, err)
	assert.Equal(t, IDPolicyURLHash, p)

	_, err = ParseIDPolicy("random")
	assert.Error(t, err)

	assert.Error(t, Config{Collection: "", IDPolicy: IDPolicySource}.Validate())
	assert.NoError(t, DefaultConfig().Validate())
}
