package entity

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeometry_JSON(t *testing.T) {
	t.Run("point is a single position", func(t *testing.T) {
		g := Geometry{Type: GeometryPoint, Coordinates: [][]float64{{-85.3, 25.1, 10}}}

		raw, err := json.Marshal(g)
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"Point","coordinates":[-85.3,25.1,10]}`, string(raw))

		var back Geometry
		require.NoError(t, json.Unmarshal(raw, &back))
		if diff := cmp.Diff(g, back); diff != "" {
			t.Fatalf("point mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("linestring keeps order", func(t *testing.T) {
		g := Geometry{Type: GeometryLine, Coordinates: [][]float64{{-85.3, 25.1, 7000}, {-85.4, 25.2, 10}}}

		raw, err := json.Marshal(g)
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"LineString","coordinates":[[-85.3,25.1,7000],[-85.4,25.2,10]]}`, string(raw))

		var back Geometry
		require.NoError(t, json.Unmarshal(raw, &back))
		if diff := cmp.Diff(g, back); diff != "" {
			t.Fatalf("linestring mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("point with two positions fails", func(t *testing.T) {
		_, err := json.Marshal(Geometry{Type: GeometryPoint, Coordinates: [][]float64{{1, 2}, {3, 4}}})
		assert.Error(t, err)
	})

	t.Run("unknown type fails", func(t *testing.T) {
		var g Geometry
		assert.Error(t, json.Unmarshal([]byte(`{"type":"Polygon","coordinates":[]}`), &g))
	})
}

func TestCatalogItem_SourceURLAndValidate(t *testing.T) {
	t0 := time.Date(2024, 9, 26, 17, 2, 11, 0, time.UTC)
	item := CatalogItem{
		ID:         "sonde_001",
		Collection: "dropsondes",
		Geometry:   Geometry{Type: GeometryPoint, Coordinates: [][]float64{{1, 2, 3}}},
		Properties: ItemProperties{StartDatetime: t0, EndDatetime: t0.Add(time.Minute)},
		Links:      []Link{{Rel: LinkRelCollection, Href: "/collections/dropsondes"}, {Rel: LinkRelVia, Href: "https://x/sonde_001.dat"}},
	}

	assert.Equal(t, "https://x/sonde_001.dat", item.SourceURL())
	assert.NoError(t, item.Validate())

	broken := item
	broken.Collection = ""
	var vErr *ValidationError
	assert.True(t, errors.As(broken.Validate(), &vErr))
	assert.Equal(t, "collection", vErr.Field)

	reversed := item
	reversed.Properties.EndDatetime = t0.Add(-time.Minute)
	assert.Error(t, reversed.Validate())
	spaced := item
	spaced.ID = "sonde two"
	assert.True(t, errors.As(spaced.Validate(), &vErr))
	assert.Equal(t, "id", vErr.Field)
}

func TestTally(t *testing.T) {
	outcomes := []IngestionOutcome{
		{SourceURL: "a", ItemID: "a"},
		{SourceURL: "b", Err: &MalformedReportError{Position: 3}},
		{SourceURL: "c", Err: ErrCancelled},
	}

	got := Tally(outcomes)
	assert.Equal(t, OutcomeTally{Total: 3, Succeeded: 1, Failed: 2, Cancelled: 1}, got)
	assert.Equal(t, 3, outcomes[1].Position())
	assert.Equal(t, KindMalformedReport, outcomes[1].Kind())
}
