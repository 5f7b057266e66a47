package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"sonde-catalog/internal/domain/entity"
	"sonde-catalog/internal/infra/fetcher"
	"sonde-catalog/internal/infra/listing"
	"sonde-catalog/internal/infra/parser"
	"sonde-catalog/internal/infra/stac"
	"sonde-catalog/internal/resilience/retry"
	"sonde-catalog/internal/usecase/ingest"
)

/* ───────── フィクスチャ ───────── */

const archiveURL = "https://archive.example/drops/2024/"

func report(serial string, secs ...string) string {
	var b strings.Builder
	b.WriteString("TEMPDROP\nSONDE " + serial + "\nPLATFORM NOAA42\nLAUNCH 2024-09-26T17:02:11Z\nDATA\n")
	for i, sec := range secs {
		fmt.Fprintf(&b, "%s 500.0 -10.0 50.0 270 10.0 25.%03d -85.000 %d.0\n", sec, i, 7000-i*100)
	}
	b.WriteString("END\n")
	return b.String()
}

func listingOf(names ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><h1>Index of /drops/2024</h1>\n")
	for _, n := range names {
		fmt.Fprintf(&b, "<a href=%q>%s</a>\n", n, n)
	}
	b.WriteString("</body></html>")
	return b.String()
}

/* ───────── モック実装 ───────── */

type response struct {
	body        string
	contentType string
	errs        []error // returned, in order, before the body
}

// fakeFetcher serves canned responses and records calls.
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]*response
	calls     map[string]int
	inFlight  int
	maxFlight int
	delay     time.Duration

	// block, when set for a URL, is closed by the test to let the fetch return
	block   map[string]chan struct{}
	started chan string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses: map[string]*response{},
		calls:     map[string]int{},
		block:     map[string]chan struct{}{},
	}
}

func (f *fakeFetcher) serve(url, body, contentType string, errs ...error) {
	f.responses[url] = &response{body: body, contentType: contentType, errs: errs}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (entity.RawContent, error) {
	f.mu.Lock()
	f.calls[url]++
	f.inFlight++
	if f.inFlight > f.maxFlight {
		f.maxFlight = f.inFlight
	}
	resp := f.responses[url]
	var err error
	if resp != nil && len(resp.errs) > 0 {
		err, resp.errs = resp.errs[0], resp.errs[1:]
	}
	gate := f.block[url]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if gate != nil {
		if f.started != nil {
			f.started <- url
		}
		<-gate
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	if err != nil {
		return entity.RawContent{}, err
	}
	if resp == nil {
		return entity.RawContent{}, &entity.FetchError{URL: url, StatusCode: 404, Err: fetcher.ErrUnexpectedStatus}
	}
	return entity.RawContent{
		URL:         url,
		Filename:    fetcher.FilenameFromURL(url),
		ContentType: resp.contentType,
		Data:        []byte(resp.body),
	}, nil
}

func (f *fakeFetcher) callsFor(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// memCatalog is an idempotent in-memory catalog writer.
type memCatalog struct {
	mu      sync.Mutex
	items   map[string]*entity.CatalogItem
	upserts int
	err     error
}

func newMemCatalog() *memCatalog {
	return &memCatalog{items: map[string]*entity.CatalogItem{}}
}

func (m *memCatalog) Upsert(ctx context.Context, item *entity.CatalogItem) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.upserts++
	m.items[item.ID] = item
	return item.ID, nil
}

func (m *memCatalog) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

type memRawStore struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (m *memRawStore) Put(_ context.Context, key string, _ entity.RawContent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.keys = append(m.keys, key)
	return nil
}

/* ───────── ヘルパ ───────── */

func testConfig() ingest.Config {
	cfg := ingest.DefaultConfig()
	cfg.ItemTimeout = 5 * time.Second
	cfg.WriteTimeout = 5 * time.Second
	fast := retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	cfg.FetchRetry = fast
	cfg.ListingRetry = fast
	return cfg
}

func newService(f *fakeFetcher, cat *memCatalog, cfg ingest.Config) *ingest.Service {
	return ingest.NewService(
		f,
		listing.NewResolver(),
		parser.NewTempDropParser(),
		stac.NewConverter(stac.DefaultConfig()),
		cat,
		cfg,
	)
}

type outcomeView struct {
	URL      string
	ItemID   string
	Kind     entity.ErrorKind
	Position int
}

func view(outcomes []entity.IngestionOutcome) []outcomeView {
	out := make([]outcomeView, len(outcomes))
	for i, o := range outcomes {
		out[i] = outcomeView{URL: o.SourceURL, ItemID: o.ItemID, Kind: o.Kind(), Position: o.Position()}
	}
	return out
}

/* ───────── 1. IngestOne ───────── */

func TestIngestOne_Success(t *testing.T) {
	f := newFakeFetcher()
	f.serve(archiveURL+"sonde_001.dat", report("241234567", "0.0", "5.0", "10.0"), "text/plain")
	cat := newMemCatalog()

	out := newService(f, cat, testConfig()).IngestOne(context.Background(), archiveURL+"sonde_001.dat")

	require.NoError(t, out.Err)
	assert.True(t, out.Succeeded())
	assert.Equal(t, "sonde_001", out.ItemID)
	assert.Equal(t, archiveURL+"sonde_001.dat", out.SourceURL)
	assert.Equal(t, archiveURL+"sonde_001.dat", cat.items["sonde_001"].SourceURL())
}

func TestIngestOne_Idempotent(t *testing.T) {
	f := newFakeFetcher()
	f.serve("https://x/a.dat", report("241234567", "0.0", "1.0"), "text/plain")
	cat := newMemCatalog()
	svc := newService(f, cat, testConfig())

	first := svc.IngestOne(context.Background(), "https://x/a.dat")
	second := svc.IngestOne(context.Background(), "https://x/a.dat")

	require.NoError(t, first.Err)
	require.NoError(t, second.Err)
	assert.Equal(t, "a", first.ItemID)
	assert.Equal(t, first.ItemID, second.ItemID)
	assert.Equal(t, 1, cat.len())
	assert.Equal(t, 2, cat.upserts)
}

func TestIngestOne_StageFailures(t *testing.T) {
	noPositions := "TEMPDROP\nSONDE 1\nPLATFORM P\nLAUNCH 2024-09-26T17:02:11Z\nDATA\n0 500 -10 50 270 10 -999 -999 -999\nEND\n"

	tests := []struct {
		name     string
		body     string
		catErr   error
		wantKind entity.ErrorKind
		wantPos  int
	}{
		{"missing report", "", nil, entity.KindFetch, 0},
		{"malformed", report("1", "0.0", "5.0", "3.0"), nil, entity.KindMalformedReport, 3},
		{"no positions", noPositions, nil, entity.KindConversion, 0},
		{"store down", report("1", "0.0"), errors.New("connection refused"), entity.KindStorage, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeFetcher()
			if tt.body != "" {
				f.serve("https://x/r.dat", tt.body, "text/plain")
			}
			cat := newMemCatalog()
			cat.err = tt.catErr

			out := newService(f, cat, testConfig()).IngestOne(context.Background(), "https://x/r.dat")

			assert.False(t, out.Succeeded())
			assert.Empty(t, out.ItemID)
			assert.Equal(t, tt.wantKind, out.Kind())
			assert.Equal(t, tt.wantPos, out.Position())
			assert.Zero(t, cat.len(), "nothing may be written on failure")
		})
	}
}

func TestIngestOne_RetriesTransientFetchErrors(t *testing.T) {
	url := "https://x/a.dat"
	unavailable := &entity.FetchError{URL: url, StatusCode: 503, Err: fetcher.ErrUnexpectedStatus}

	f := newFakeFetcher()
	f.serve(url, report("1", "0.0"), "text/plain", unavailable, unavailable)

	out := newService(f, newMemCatalog(), testConfig()).IngestOne(context.Background(), url)

	require.NoError(t, out.Err)
	assert.Equal(t, 3, f.callsFor(url))
}

func TestIngestOne_DoesNotRetryClientErrors(t *testing.T) {
	f := newFakeFetcher()
	out := newService(f, newMemCatalog(), testConfig()).IngestOne(context.Background(), "https://x/missing.dat")

	assert.Equal(t, entity.KindFetch, out.Kind())
	var fe *entity.FetchError
	require.ErrorAs(t, out.Err, &fe)
	assert.Equal(t, 404, fe.StatusCode)
	assert.Equal(t, 1, f.callsFor("https://x/missing.dat"))
}

func TestIngestOne_RawStore(t *testing.T) {
	f := newFakeFetcher()
	f.serve("https://x/a.dat", report("1", "0.0"), "text/plain")

	t.Run("archives after write", func(t *testing.T) {
		raw := &memRawStore{}
		svc := newService(f, newMemCatalog(), testConfig())
		svc.RawStore = raw

		out := svc.IngestOne(context.Background(), "https://x/a.dat")
		require.NoError(t, out.Err)
		assert.Equal(t, []string{"dropsondes/a/a.dat"}, raw.keys)
	})

	t.Run("archive failure keeps success", func(t *testing.T) {
		svc := newService(f, newMemCatalog(), testConfig())
		svc.RawStore = &memRawStore{err: errors.New("bucket missing")}

		out := svc.IngestOne(context.Background(), "https://x/a.dat")
		assert.NoError(t, out.Err)
		assert.Equal(t, "a", out.ItemID)
	})
}

func TestIngestOne_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	f := newFakeFetcher()
	f.serve("https://x/a.dat", report("1", "0.0"), "text/plain")
	svc := newService(f, newMemCatalog(), testConfig())
	svc.Tracer = tp.Tracer("test")

	require.NoError(t, svc.IngestOne(context.Background(), "https://x/a.dat").Err)

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	want := []string{"ingest.fetch", "ingest.parse", "ingest.convert", "ingest.write", "ingest.item"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("spans mismatch (-want +got):\n%s", diff)
	}
}

/* ───────── 2. IngestArchive ───────── */

func TestIngestArchive_IsolationAndOrder(t *testing.T) {
	f := newFakeFetcher()
	f.serve(archiveURL, listingOf("sonde_001.dat", "sonde_002.dat"), "text/html")
	f.serve(archiveURL+"sonde_001.dat", report("241234567", "0.0", "5.0", "10.0"), "text/plain")
	// third record goes back in time
	f.serve(archiveURL+"sonde_002.dat", report("241234568", "0.0", "5.0", "3.0"), "text/plain")
	cat := newMemCatalog()

	outcomes, err := newService(f, cat, testConfig()).IngestArchive(context.Background(), archiveURL)
	require.NoError(t, err)

	want := []outcomeView{
		{URL: archiveURL + "sonde_001.dat", ItemID: "sonde_001", Kind: entity.KindNone},
		{URL: archiveURL + "sonde_002.dat", Kind: entity.KindMalformedReport, Position: 3},
	}
	if diff := cmp.Diff(want, view(outcomes)); diff != "" {
		t.Fatalf("outcomes mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, cat.len())
}

func TestIngestArchive_DocumentOrderUnderConcurrency(t *testing.T) {
	names := []string{"a.dat", "b.dat", "c.dat", "d.dat", "e.dat", "f.dat"}
	f := newFakeFetcher()
	f.delay = 5 * time.Millisecond
	f.serve(archiveURL, listingOf(names...), "text/html")
	for _, n := range names {
		f.serve(archiveURL+n, report("1", "0.0"), "text/plain")
	}
	cfg := testConfig()
	cfg.Concurrency = 2
	cat := newMemCatalog()

	outcomes, err := newService(f, cat, cfg).IngestArchive(context.Background(), archiveURL)
	require.NoError(t, err)

	require.Len(t, outcomes, len(names))
	for i, n := range names {
		assert.Equal(t, archiveURL+n, outcomes[i].SourceURL)
		assert.Equal(t, strings.TrimSuffix(n, ".dat"), outcomes[i].ItemID)
	}
	assert.LessOrEqual(t, f.maxFlight, 2)
	assert.Equal(t, len(names), cat.len())
}

func TestIngestArchive_EmptyListing(t *testing.T) {
	f := newFakeFetcher()
	f.serve(archiveURL, listingOf(), "text/html")

	outcomes, err := newService(f, newMemCatalog(), testConfig()).IngestArchive(context.Background(), archiveURL)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestIngestArchive_ListingFailures(t *testing.T) {
	t.Run("listing not found", func(t *testing.T) {
		f := newFakeFetcher()
		outcomes, err := newService(f, newMemCatalog(), testConfig()).IngestArchive(context.Background(), archiveURL)
		assert.Nil(t, outcomes)
		assert.Equal(t, entity.KindFetch, entity.KindOf(err))
	})

	t.Run("not a listing", func(t *testing.T) {
		f := newFakeFetcher()
		f.serve(archiveURL, report("1", "0.0"), "text/plain")
		outcomes, err := newService(f, newMemCatalog(), testConfig()).IngestArchive(context.Background(), archiveURL)
		assert.Nil(t, outcomes)
		assert.Equal(t, entity.KindListingFormat, entity.KindOf(err))
	})
}

func TestIngestArchive_CancellationStopsNewItems(t *testing.T) {
	f := newFakeFetcher()
	f.serve(archiveURL, listingOf("a.dat", "b.dat", "c.dat"), "text/html")
	for _, n := range []string{"a.dat", "b.dat", "c.dat"} {
		f.serve(archiveURL+n, report("1", "0.0"), "text/plain")
	}
	release := make(chan struct{})
	f.block[archiveURL+"a.dat"] = release
	f.started = make(chan string, 1)

	cfg := testConfig()
	cfg.Concurrency = 1
	cat := newMemCatalog()
	svc := newService(f, cat, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		outcomes []entity.IngestionOutcome
		err      error
	}
	done := make(chan result, 1)
	go func() {
		outcomes, err := svc.IngestArchive(ctx, archiveURL)
		done <- result{outcomes, err}
	}()

	select {
	case <-f.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first item never started")
	}
	cancel()
	close(release)

	var res result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("IngestArchive did not return after cancellation")
	}

	require.NoError(t, res.err)
	want := []outcomeView{
		{URL: archiveURL + "a.dat", ItemID: "a", Kind: entity.KindNone},
		{URL: archiveURL + "b.dat", Kind: entity.KindCancelled},
		{URL: archiveURL + "c.dat", Kind: entity.KindCancelled},
	}
	if diff := cmp.Diff(want, view(res.outcomes)); diff != "" {
		t.Fatalf("outcomes mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, errors.Is(res.outcomes[1].Err, entity.ErrCancelled))
	assert.Equal(t, 1, cat.len(), "the in-flight write must complete")
	assert.Zero(t, f.callsFor(archiveURL+"b.dat"))

	tally := entity.Tally(res.outcomes)
	assert.Equal(t, entity.OutcomeTally{Total: 3, Succeeded: 1, Failed: 2, Cancelled: 2}, tally)
}

func TestIngestArchive_ConcurrentRunsShareCatalog(t *testing.T) {
	f := newFakeFetcher()
	f.serve(archiveURL, listingOf("a.dat", "b.dat"), "text/html")
	f.serve(archiveURL+"a.dat", report("1", "0.0"), "text/plain")
	f.serve(archiveURL+"b.dat", report("2", "0.0"), "text/plain")
	cat := newMemCatalog()
	svc := newService(f, cat, testConfig())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes, err := svc.IngestArchive(context.Background(), archiveURL)
			assert.NoError(t, err)
			assert.Equal(t, 2, entity.Tally(outcomes).Succeeded)
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, cat.len())
}

func TestIngestArchive_MissingReportsDoNotBlockOthers(t *testing.T) {
	names := []string{"m1.dat", "m2.dat", "m3.dat", "m4.dat"}
	reports := map[string]string{}
	for i := 1; i <= 6; i++ {
		name := fmt.Sprintf("ok%d.dat", i)
		names = append(names, name)
		reports["/drops/"+name] = report(fmt.Sprint(i), "0.0", "10.0")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/drops/" {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(listingOf(names...)))
			return
		}
		body, ok := reports[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	fetchCfg := fetcher.DefaultConfig()
	fetchCfg.DenyPrivateIPs = false // httptest listens on loopback
	fetchCfg.RequestsPerSecond = 0

	cfg := testConfig()
	cfg.Concurrency = 1
	cat := newMemCatalog()
	svc := ingest.NewService(
		fetcher.NewHTTPFetcher(fetchCfg),
		listing.NewResolver(),
		parser.NewTempDropParser(),
		stac.NewConverter(stac.DefaultConfig()),
		cat,
		cfg,
	)

	outcomes, err := svc.IngestArchive(context.Background(), server.URL+"/drops/")
	require.NoError(t, err)
	require.Len(t, outcomes, 10)

	for _, out := range outcomes[:4] {
		var fe *entity.FetchError
		require.ErrorAs(t, out.Err, &fe, out.SourceURL)
		assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	}
	for _, out := range outcomes[4:] {
		assert.NoError(t, out.Err, out.SourceURL)
	}
	assert.Equal(t, 6, cat.len())
}
