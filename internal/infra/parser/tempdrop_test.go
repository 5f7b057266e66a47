package parser

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sonde-catalog/internal/domain/entity"
)

const validReport = `TEMPDROP
SONDE     241234567
PLATFORM  NOAA42
MISSION   20240926H1
LAUNCH    2024-09-26T17:02:11Z
DATA
# sec   pres   temp   rh    wdir  wspd  lat     lon      alt
0.0     420.3  -20.1  45.2  270   12.5  25.123  -85.321  7012.0
0.5     421.0  -19.9  46.0  -999  -999  -999    -999     -999

12.0    1008.9 28.4   81.0  95    6.2   25.100  -85.400  10.0
END
`

func content(name, body string) entity.RawContent {
	return entity.RawContent{URL: "https://archive.example/drops/" + name, Filename: name, Data: []byte(body)}
}

func f(v float64) *float64 { return &v }

func TestTempDropParser_Parse_Valid(t *testing.T) {
	report, err := NewTempDropParser().Parse(content("sonde_001.dat", validReport))
	require.NoError(t, err)

	launch := time.Date(2024, 9, 26, 17, 2, 11, 0, time.UTC)
	want := &entity.DropsondeReport{
		ID:         "sonde_001",
		Filename:   "sonde_001.dat",
		SondeID:    "241234567",
		Platform:   "NOAA42",
		Mission:    "20240926H1",
		LaunchTime: launch,
		Samples: []entity.Sample{
			{
				Time:             launch,
				PressureHPa:      420.3,
				TemperatureC:     f(-20.1),
				RelativeHumidity: f(45.2),
				Wind:             &entity.Wind{DirectionDeg: 270, SpeedMS: 12.5},
				Position:         &entity.Position{Lat: 25.123, Lon: -85.321, AltM: 7012},
			},
			{
				Time:             launch.Add(500 * time.Millisecond),
				PressureHPa:      421.0,
				TemperatureC:     f(-19.9),
				RelativeHumidity: f(46.0),
			},
			{
				Time:             launch.Add(12 * time.Second),
				PressureHPa:      1008.9,
				TemperatureC:     f(28.4),
				RelativeHumidity: f(81.0),
				Wind:             &entity.Wind{DirectionDeg: 95, SpeedMS: 6.2},
				Position:         &entity.Position{Lat: 25.1, Lon: -85.4, AltM: 10},
			},
		},
	}

	if diff := cmp.Diff(want, report); diff != "" {
		t.Fatalf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestTempDropParser_Parse_Deterministic(t *testing.T) {
	p := NewTempDropParser()
	first, err := p.Parse(content("sonde_001.dat", validReport))
	require.NoError(t, err)
	second, err := p.Parse(content("sonde_001.dat", validReport))
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("parse is not deterministic (-first +second):\n%s", diff)
	}
}

func TestTempDropParser_Parse_OptionalMission(t *testing.T) {
	body := strings.Replace(validReport, "MISSION   20240926H1\n", "", 1)
	report, err := NewTempDropParser().Parse(content("drop.txt", body))
	require.NoError(t, err)
	assert.Equal(t, "", report.Mission)
	assert.Equal(t, "drop", report.ID)
}

func TestTempDropParser_Parse_Malformed(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantPosition int
		wantLine     int
		wantReason   string
	}{
		{
			name:       "empty",
			body:       "",
			wantReason: "empty report",
		},
		{
			name:       "missing marker",
			body:       "HELLO\n",
			wantLine:   1,
			wantReason: "expected TEMPDROP marker",
		},
		{
			name:       "missing required header",
			body:       "TEMPDROP\nSONDE 1\nLAUNCH 2024-09-26T17:02:11Z\nDATA\n0 500 -999 -999 -999 -999 -999 -999 -999\nEND\n",
			wantLine:   4,
			wantReason: "missing required header PLATFORM",
		},
		{
			name:       "unknown header",
			body:       "TEMPDROP\nCOLOR blue\n",
			wantLine:   2,
			wantReason: "unknown header COLOR",
		},
		{
			name:       "bad launch time",
			body:       "TEMPDROP\nLAUNCH yesterday\n",
			wantLine:   2,
			wantReason: "invalid LAUNCH time",
		},
		{
			name: "out of order third record",
			body: `TEMPDROP
SONDE 1
PLATFORM P
LAUNCH 2024-09-26T17:02:11Z
DATA
0  500 -999 -999 -999 -999 -999 -999 -999
5  510 -999 -999 -999 -999 -999 -999 -999
4  520 -999 -999 -999 -999 -999 -999 -999
END
`,
			wantPosition: 3,
			wantLine:     8,
			wantReason:   "earlier than previous record",
		},
		{
			name:         "wrong field count",
			body:         "TEMPDROP\nSONDE 1\nPLATFORM P\nLAUNCH 2024-09-26T17:02:11Z\nDATA\n0 500 1\nEND\n",
			wantPosition: 1,
			wantLine:     6,
			wantReason:   "expected 9 fields, got 3",
		},
		{
			name:         "pressure out of range",
			body:         "TEMPDROP\nSONDE 1\nPLATFORM P\nLAUNCH 2024-09-26T17:02:11Z\nDATA\n0 1200 -999 -999 -999 -999 -999 -999 -999\nEND\n",
			wantPosition: 1,
			wantLine:     6,
			wantReason:   "pressure 1200 hPa out of range",
		},
		{
			name:         "half wind",
			body:         "TEMPDROP\nSONDE 1\nPLATFORM P\nLAUNCH 2024-09-26T17:02:11Z\nDATA\n0 500 -999 -999 90 -999 -999 -999 -999\nEND\n",
			wantPosition: 1,
			wantLine:     6,
			wantReason:   "wind direction and speed",
		},
		{
			name: "elapsed seconds beyond a day",
			body: `TEMPDROP
SONDE 1
PLATFORM P
LAUNCH 2024-09-26T17:02:11Z
DATA
0 500 -10 50 270 10 25 -85 7000
10000000000000 500 -10 50 270 10 25 -85 7000
END
`,
			wantPosition: 2,
			wantLine:     7,
			wantReason:   "exceeds 86400",
		},
		{
			name:         "not a number",
			body:         "TEMPDROP\nSONDE 1\nPLATFORM P\nLAUNCH 2024-09-26T17:02:11Z\nDATA\n0 abc -999 -999 -999 -999 -999 -999 -999\nEND\n",
			wantPosition: 1,
			wantLine:     6,
			wantReason:   `pressure "abc" is not a number`,
		},
		{
			name:       "no records",
			body:       "TEMPDROP\nSONDE 1\nPLATFORM P\nLAUNCH 2024-09-26T17:02:11Z\nDATA\nEND\n",
			wantLine:   6,
			wantReason: "data section has no records",
		},
		{
			name:       "missing trailer",
			body:       "TEMPDROP\nSONDE 1\nPLATFORM P\nLAUNCH 2024-09-26T17:02:11Z\nDATA\n0 500 -999 -999 -999 -999 -999 -999 -999\n",
			wantLine:   6,
			wantReason: "missing END trailer",
		},
		{
			name:       "content after trailer",
			body:       "TEMPDROP\nSONDE 1\nPLATFORM P\nLAUNCH 2024-09-26T17:02:11Z\nDATA\n0 500 -999 -999 -999 -999 -999 -999 -999\nEND\nextra\n",
			wantLine:   8,
			wantReason: "unexpected content after END",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := NewTempDropParser().Parse(content("sonde_002.dat", tt.body))
			assert.Nil(t, report)

			var mErr *entity.MalformedReportError
			require.True(t, errors.As(err, &mErr), "expected MalformedReportError, got %v", err)
			assert.Equal(t, "sonde_002.dat", mErr.Filename)
			assert.Equal(t, tt.wantPosition, mErr.Position)
			assert.Equal(t, tt.wantLine, mErr.Line)
			assert.Contains(t, mErr.Reason, tt.wantReason)
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "TEMPDROP", truncate("TEMPDROP"))

	long := strings.Repeat("é", 39) + "日本語"
	got := truncate(long)
	assert.True(t, utf8.ValidString(got), "cut must fall on a rune boundary: %q", got)
	assert.Equal(t, strings.Repeat("é", 39)+"日...", got)

	_, err := NewTempDropParser().Parse(content("sonde_003.dat", long+"\n"))
	var mErr *entity.MalformedReportError
	require.ErrorAs(t, err, &mErr)
	assert.True(t, utf8.ValidString(mErr.Reason))
}

func TestReportIDFromFilename(t *testing.T) {
	assert.Equal(t, "sonde_001", ReportIDFromFilename("sonde_001.dat"))
	assert.Equal(t, "sonde_001", ReportIDFromFilename("drops/2024/sonde_001.dat"))
	assert.Equal(t, "README", ReportIDFromFilename("README"))
	assert.Equal(t, "", ReportIDFromFilename(""))
}
