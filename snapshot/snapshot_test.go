package snapshot

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Irkaa10/ensdir/directory"
	"github.com/Irkaa10/ensdir/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func domainID(prefix string) string {
	return prefix + strings.Repeat("0", 64-len(prefix))
}

func addr(c string) string {
	return "0x" + strings.Repeat(c, 40)
}

var fixtureDomains = []Domain{
	{ID: domainID("0x01"), Name: "alice.eth", ResolvedAddress: &Account{ID: addr("a")}, Subdomains: []Domain{
		{Name: "pay.alice.eth", ResolvedAddress: &Account{ID: addr("b")}},
		{Name: "broken.alice.eth"},
	}},
	{ID: domainID("0x05"), Name: "bob.eth", ResolvedAddress: &Account{ID: addr("c")}},
	{ID: domainID("0x1a"), Name: "carol.eth", ResolvedAddress: &Account{ID: addr("d")}},
	{ID: domainID("0x2b"), Name: "dave.eth", ResolvedAddress: &Account{ID: addr("e")}},
	{ID: domainID("0xe1"), Name: "erin.eth", ResolvedAddress: &Account{ID: addr("f")}},
}

// fakeSubgraph serves fixtureDomains, failing any query whose range ends in
// one of failEnds.
type fakeSubgraph struct {
	mu       sync.Mutex
	queries  int
	failEnds []string
}

func (fs *fakeSubgraph) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req graphRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fs.mu.Lock()
	fs.queries++
	fs.mu.Unlock()

	first := int(req.Variables["first"].(float64))
	lastID := req.Variables["lastID"].(string)
	end := req.Variables["end"].(string)

	for _, prefix := range fs.failEnds {
		if strings.HasPrefix(end, prefix) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"errors":[{"message":"indexer unavailable"}]}`))
			return
		}
	}

	page := []Domain{}
	for _, d := range fixtureDomains {
		if d.ID > lastID && d.ID < end && len(page) < first {
			page = append(page, d)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"domains": page}})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestPartitions(t *testing.T) {
	assert := assert.New(t)

	parts := Partitions()
	assert.Len(parts, 8)
	for _, p := range parts {
		assert.Len(p.Start, 64)
		assert.Len(p.End, 64)
		assert.Less(p.Start, p.End)
	}
	assert.Equal("0x0"+strings.Repeat("0", 61), parts[0].Start)
	assert.Equal("0x1"+strings.Repeat("f", 61), parts[0].End)
	assert.Equal("0xe"+strings.Repeat("0", 61), parts[7].Start)
	assert.Equal("0xf"+strings.Repeat("f", 61), parts[7].End)
}

func TestFetchPartitionPaging(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	fake := &fakeSubgraph{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	f := &Fetcher{URL: srv.URL, PageSize: 1, Client: NewClient(testLogger(), 0), Logger: testLogger()}
	entries, err := f.FetchPartition(context.Background(), Partitions()[0])
	require.NoError(err)

	assert.Equal(map[string]string{
		"alice.eth":     addr("a"),
		"pay.alice.eth": addr("b"),
		"bob.eth":       addr("c"),
		"carol.eth":     addr("d"),
	}, entries)
	// three single-domain pages, then the empty page
	assert.Equal(4, fake.queries)
}

func TestPageErrors(t *testing.T) {
	assert := assert.New(t)

	fake := &fakeSubgraph{failEnds: []string{"0x1"}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	f := &Fetcher{URL: srv.URL, PageSize: 10, Client: NewClient(testLogger(), 0)}
	_, err := f.FetchPartition(context.Background(), Partitions()[0])
	assert.ErrorContains(err, "indexer unavailable")

	missing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer missing.Close()
	f.URL = missing.URL
	_, err = f.Page(context.Background(), "0x0", "0x1")
	assert.ErrorContains(err, "missing data")

	teapot := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer teapot.Close()
	f.URL = teapot.URL
	_, err = f.Page(context.Background(), "0x0", "0x1")
	assert.ErrorContains(err, "status=418")
}

func TestBuild(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	fake := &fakeSubgraph{failEnds: []string{"0x3"}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	dataDir := t.TempDir()
	manifestPath := filepath.Join(dataDir, ManifestFile)
	require.NoError(WriteManifest(manifestPath, []models.SnapshotRecord{
		{DomainCount: 3, Time: 1, FileName: "ens-snap-old.json"},
	}))

	res, err := Build(context.Background(), Config{
		SubgraphURL: srv.URL,
		PageSize:    2,
		Parallelism: 3,
		DataDir:     dataDir,
		Client:      NewClient(testLogger(), 0),
		Logger:      testLogger(),
		Now: func() time.Time {
			return time.Date(2023, time.October, 5, 9, 7, 0, 0, time.UTC)
		},
	})
	require.NoError(err)

	assert.Equal(8, res.Partitions)
	assert.Equal(1, res.Failed)
	assert.Equal(5, res.Record.DomainCount)
	assert.Equal(2, res.Added)
	assert.Equal("ens-snap-5-Oct-2023-9-7.json", res.Record.FileName)
	assert.Equal(filepath.Join(dataDir, "ens-snap-5-Oct-2023-9-7.json"), res.Path)

	// the written snapshot is a loadable dataset
	dir, err := directory.Load(res.Path, testLogger())
	require.NoError(err)
	assert.Equal(5, dir.Len())
	got, found, err := dir.Resolve("erin.eth")
	assert.NoError(err)
	assert.True(found)
	assert.Equal(addr("f"), got)
	_, found, _ = dir.Resolve("dave.eth")
	assert.False(found)

	manifest, err := ReadManifest(manifestPath)
	require.NoError(err)
	require.Len(manifest, 2)
	assert.Equal(res.Record, manifest[1])
}

func TestBuildAllFailed(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dataDir := t.TempDir()
	res, err := Build(context.Background(), Config{
		SubgraphURL: srv.URL,
		DataDir:     dataDir,
		Client:      NewClient(testLogger(), 0),
		Logger:      testLogger(),
	})
	assert.Error(err)
	assert.Nil(res)

	_, statErr := os.Stat(filepath.Join(dataDir, ManifestFile))
	assert.True(os.IsNotExist(statErr))
}

func TestReadManifestMissing(t *testing.T) {
	assert := assert.New(t)

	manifest, err := ReadManifest(filepath.Join(t.TempDir(), ManifestFile))
	assert.NoError(err)
	assert.Empty(manifest)
}

func TestPrettyDate(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("28-Feb-2024-23-59", prettyDate(time.Date(2024, time.February, 28, 23, 59, 0, 0, time.UTC)))
	assert.Equal("1-Jan-2023-0-5", prettyDate(time.Date(2023, time.January, 1, 0, 5, 0, 0, time.UTC)))
}

func TestBuildCorruptManifest(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	fake := &fakeSubgraph{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	dataDir := t.TempDir()
	require.NoError(os.WriteFile(filepath.Join(dataDir, ManifestFile), []byte(`{"not":"a list"`), 0o644))

	res, err := Build(context.Background(), Config{
		SubgraphURL: srv.URL,
		DataDir:     dataDir,
		Client:      NewClient(testLogger(), 0),
		Logger:      testLogger(),
	})
	assert.ErrorContains(err, "parsing manifest")
	assert.Nil(res)
	assert.Equal(0, fake.queries)

	snaps, err := filepath.Glob(filepath.Join(dataDir, "ens-snap-*.json"))
	require.NoError(err)
	assert.Empty(snaps)
}

func TestBuildPushesMetrics(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	srv := httptest.NewServer(&fakeSubgraph{})
	defer srv.Close()

	var (
		mu     sync.Mutex
		method string
		path   string
		body   []byte
	)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		method = r.Method
		path = r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	_, err := Build(context.Background(), Config{
		SubgraphURL: srv.URL,
		DataDir:     t.TempDir(),
		PushGateway: gateway.URL,
		Client:      NewClient(testLogger(), 0),
		Logger:      testLogger(),
	})
	require.NoError(err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(http.MethodPut, method)
	assert.Equal("/metrics/job/"+PushJob, path)
	assert.Contains(string(body), "ensdir_snapshot_pages_total")
}

func TestBuildPushFailureIgnored(t *testing.T) {
	srv := httptest.NewServer(&fakeSubgraph{})
	defer srv.Close()

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer gateway.Close()

	res, err := Build(context.Background(), Config{
		SubgraphURL: srv.URL,
		DataDir:     t.TempDir(),
		PushGateway: gateway.URL,
		Client:      NewClient(testLogger(), 0),
		Logger:      testLogger(),
	})
	require.NoError(t, err)
	assert.Equal(t, 6, res.Record.DomainCount)
}
