// Package parser decodes dropsonde TEMP DROP text reports into domain reports.
//
// A report is framed by a TEMPDROP marker, a header block, a DATA section of
// whitespace separated records and an END trailer:
//
//	TEMPDROP
//	SONDE     241234567
//	PLATFORM  NOAA42
//	MISSION   20240926H1
//	LAUNCH    2024-09-26T17:02:11Z
//	DATA
//	# sec   pres   temp   rh    wdir  wspd  lat     lon      alt
//	0.0     420.3  -20.1  45.2  270   12.5  25.123  -85.321  7012.0
//	END
//
// Blank lines and lines starting with '#' are ignored. The value -999 marks a
// missing measurement for temperature, humidity, the wind pair and the
// position triple.
package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"math"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"sonde-catalog/internal/domain/entity"
)

const (
	markerLine  = "TEMPDROP"
	dataLine    = "DATA"
	trailerLine = "END"

	recordFields = 9
	missingValue = -999.0
)

// Plausible physical ranges for record fields.
const (
	minPressureHPa = 0.0 // exclusive
	maxPressureHPa = 1100.0
	minTempC       = -100.0
	maxTempC       = 60.0
	minRH          = 0.0
	maxRH          = 100.0
	maxWindDirDeg  = 360.0
	maxWindSpeedMS = 150.0
	minAltM        = -500.0
	maxAltM        = 30000.0

	// a drop lasts minutes; a day keeps the offset far from Duration overflow
	maxElapsedSec = 86400.0
)

type state int

const (
	stateMarker state = iota
	stateHeader
	stateData
	stateDone
)

// TempDropParser parses TEMP DROP reports. It holds no state and is safe for
// concurrent use.
type TempDropParser struct{}

// NewTempDropParser returns a TEMP DROP parser.
func NewTempDropParser() *TempDropParser {
	return &TempDropParser{}
}

// ReportIDFromFilename returns the filename without directory and extension.
func ReportIDFromFilename(filename string) string {
	base := path.Base(filename)
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

// Parse decodes content into a report. The first offending line aborts the
// parse with an *entity.MalformedReportError; records are never dropped or
// reordered.
func (p *TempDropParser) Parse(content entity.RawContent) (*entity.DropsondeReport, error) {
	filename := content.Filename
	fail := func(position, line int, format string, args ...any) error {
		return &entity.MalformedReportError{
			Filename: filename,
			Position: position,
			Line:     line,
			Reason:   fmt.Sprintf(format, args...),
		}
	}

	reportID := ReportIDFromFilename(filename)
	if reportID == "" {
		return nil, fail(0, 0, "cannot derive report id from filename %q", filename)
	}

	report := &entity.DropsondeReport{ID: reportID, Filename: filename}
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(bytes.NewReader(content.Data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	st := stateMarker
	lineNo := 0
	var prev time.Time

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		switch st {
		case stateMarker:
			if line != markerLine {
				return nil, fail(0, lineNo, "expected %s marker, got %q", markerLine, truncate(line))
			}
			st = stateHeader

		case stateHeader:
			if line == dataLine {
				if err := checkHeader(report, seen); err != nil {
					return nil, fail(0, lineNo, "%v", err)
				}
				st = stateData
				continue
			}
			if err := applyHeader(report, seen, line); err != nil {
				return nil, fail(0, lineNo, "%v", err)
			}

		case stateData:
			if line == trailerLine {
				if len(report.Samples) == 0 {
					return nil, fail(0, lineNo, "data section has no records")
				}
				st = stateDone
				continue
			}
			position := len(report.Samples) + 1
			sample, err := parseRecord(line, report.LaunchTime)
			if err != nil {
				return nil, fail(position, lineNo, "%v", err)
			}
			if position > 1 && sample.Time.Before(prev) {
				return nil, fail(position, lineNo, "timestamp %s is earlier than previous record %s",
					sample.Time.Format(time.RFC3339Nano), prev.Format(time.RFC3339Nano))
			}
			prev = sample.Time
			report.Samples = append(report.Samples, sample)

		case stateDone:
			return nil, fail(0, lineNo, "unexpected content after %s", trailerLine)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fail(0, lineNo, "read: %v", err)
	}

	switch st {
	case stateMarker:
		return nil, fail(0, lineNo, "empty report")
	case stateHeader:
		return nil, fail(0, lineNo, "missing %s section", dataLine)
	case stateData:
		return nil, fail(0, lineNo, "missing %s trailer", trailerLine)
	}

	return report, nil
}

func applyHeader(report *entity.DropsondeReport, seen map[string]bool, line string) error {
	fields := strings.Fields(line)
	key := strings.ToUpper(fields[0])
	value := strings.Join(fields[1:], " ")
	if value == "" {
		return fmt.Errorf("header %s has no value", key)
	}
	if seen[key] {
		return fmt.Errorf("duplicate header %s", key)
	}

	switch key {
	case "SONDE":
		report.SondeID = value
	case "PLATFORM":
		report.Platform = value
	case "MISSION":
		report.Mission = value
	case "LAUNCH":
		ts, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return fmt.Errorf("invalid LAUNCH time %q: %v", value, err)
		}
		report.LaunchTime = ts.UTC()
	default:
		return fmt.Errorf("unknown header %s", key)
	}
	seen[key] = true
	return nil
}

func checkHeader(report *entity.DropsondeReport, seen map[string]bool) error {
	for _, key := range []string{"SONDE", "PLATFORM", "LAUNCH"} {
		if !seen[key] {
			return fmt.Errorf("missing required header %s", key)
		}
	}
	return nil
}

func parseRecord(line string, launch time.Time) (entity.Sample, error) {
	fields := strings.Fields(line)
	if len(fields) != recordFields {
		return entity.Sample{}, fmt.Errorf("expected %d fields, got %d", recordFields, len(fields))
	}

	var v [recordFields]float64
	names := [recordFields]string{"sec", "pressure", "temperature", "humidity", "wind direction", "wind speed", "latitude", "longitude", "altitude"}
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
			return entity.Sample{}, fmt.Errorf("%s %q is not a number", names[i], f)
		}
		v[i] = x
	}

	sec, pres := v[0], v[1]
	if sec < 0 || sec == missingValue {
		return entity.Sample{}, fmt.Errorf("sec %v must be non-negative", sec)
	}
	if sec > maxElapsedSec {
		return entity.Sample{}, fmt.Errorf("sec %v exceeds %v", sec, maxElapsedSec)
	}
	if pres <= minPressureHPa || pres > maxPressureHPa {
		return entity.Sample{}, fmt.Errorf("pressure %v hPa out of range (%v, %v]", pres, minPressureHPa, maxPressureHPa)
	}

	s := entity.Sample{
		Time:        launch.Add(time.Duration(math.Round(sec*1000)) * time.Millisecond),
		PressureHPa: pres,
	}

	if t, ok, err := optional(v[2], minTempC, maxTempC, "temperature"); err != nil {
		return entity.Sample{}, err
	} else if ok {
		s.TemperatureC = &t
	}
	if rh, ok, err := optional(v[3], minRH, maxRH, "humidity"); err != nil {
		return entity.Sample{}, err
	} else if ok {
		s.RelativeHumidity = &rh
	}

	wind, err := parseWind(v[4], v[5])
	if err != nil {
		return entity.Sample{}, err
	}
	s.Wind = wind

	pos, err := parsePosition(v[6], v[7], v[8])
	if err != nil {
		return entity.Sample{}, err
	}
	s.Position = pos

	return s, nil
}

func optional(x, lo, hi float64, name string) (float64, bool, error) {
	if x == missingValue {
		return 0, false, nil
	}
	if x < lo || x > hi {
		return 0, false, fmt.Errorf("%s %v out of range [%v, %v]", name, x, lo, hi)
	}
	return x, true, nil
}

func parseWind(dir, speed float64) (*entity.Wind, error) {
	dirMissing, speedMissing := dir == missingValue, speed == missingValue
	if dirMissing && speedMissing {
		return nil, nil
	}
	if dirMissing != speedMissing {
		return nil, fmt.Errorf("wind direction and speed must both be present or both missing")
	}
	if dir < 0 || dir > maxWindDirDeg {
		return nil, fmt.Errorf("wind direction %v out of range [0, %v]", dir, maxWindDirDeg)
	}
	if speed < 0 || speed > maxWindSpeedMS {
		return nil, fmt.Errorf("wind speed %v out of range [0, %v]", speed, maxWindSpeedMS)
	}
	return &entity.Wind{DirectionDeg: dir, SpeedMS: speed}, nil
}

func parsePosition(lat, lon, alt float64) (*entity.Position, error) {
	missing := 0
	for _, x := range []float64{lat, lon, alt} {
		if x == missingValue {
			missing++
		}
	}
	switch missing {
	case 3:
		return nil, nil
	case 0:
	default:
		return nil, fmt.Errorf("latitude, longitude and altitude must all be present or all missing")
	}
	if lat < -90 || lat > 90 {
		return nil, fmt.Errorf("latitude %v out of range [-90, 90]", lat)
	}
	if lon < -180 || lon > 180 {
		return nil, fmt.Errorf("longitude %v out of range [-180, 180]", lon)
	}
	if alt < minAltM || alt > maxAltM {
		return nil, fmt.Errorf("altitude %v out of range [%v, %v]", alt, minAltM, maxAltM)
	}
	return &entity.Position{Lat: lat, Lon: lon, AltM: alt}, nil
}

// truncate shortens s to at most 40 runes.
func truncate(s string) string {
	const max = 40
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}
