package entity

import (
	"fmt"
	"time"
)

// RawContent is a fetched payload plus the filename inferred from its URL.
// It is owned by the ingestion attempt that fetched it.
type RawContent struct {
	URL         string
	Filename    string
	ContentType string
	Data        []byte
}

// Position is a WGS84 coordinate with GPS altitude in meters.
type Position struct {
	Lat  float64
	Lon  float64
	AltM float64
}

// Wind is a meteorological wind vector (direction the wind blows from).
type Wind struct {
	DirectionDeg float64
	SpeedMS      float64
}

// Sample is one atmospheric observation of a sonde drop.
// Optional measurements are nil when the report marks them as missing.
type Sample struct {
	Time             time.Time
	PressureHPa      float64
	TemperatureC     *float64
	RelativeHumidity *float64
	Wind             *Wind
	Position         *Position
}

// DropsondeReport is a parsed sonde drop: report metadata plus the
// time-ordered sequence of samples.
type DropsondeReport struct {
	// ID is derived from the filename (stem without extension).
	ID         string
	Filename   string
	SondeID    string
	Platform   string
	Mission    string
	LaunchTime time.Time
	Samples    []Sample
}

// Validate checks the report invariants: at least one sample and
// non-decreasing sample timestamps.
func (r *DropsondeReport) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "id", Message: "report id is required"}
	}
	if len(r.Samples) == 0 {
		return &ValidationError{Field: "samples", Message: "at least one sample is required"}
	}
	for i := 1; i < len(r.Samples); i++ {
		if r.Samples[i].Time.Before(r.Samples[i-1].Time) {
			return &ValidationError{
				Field:   "samples",
				Message: fmt.Sprintf("sample %d is earlier than sample %d", i+1, i),
			}
		}
	}
	return nil
}

// TimeRange returns the first and last sample timestamps.
// ok is false when the report has no samples.
func (r *DropsondeReport) TimeRange() (start, end time.Time, ok bool) {
	if len(r.Samples) == 0 {
		return time.Time{}, time.Time{}, false
	}
	start, end = r.Samples[0].Time, r.Samples[0].Time
	for _, s := range r.Samples[1:] {
		if s.Time.Before(start) {
			start = s.Time
		}
		if s.Time.After(end) {
			end = s.Time
		}
	}
	return start, end, true
}

// Positions returns the positions of positioned samples in sample order.
func (r *DropsondeReport) Positions() []Position {
	out := make([]Position, 0, len(r.Samples))
	for _, s := range r.Samples {
		if s.Position != nil {
			out = append(out, *s.Position)
		}
	}
	return out
}
