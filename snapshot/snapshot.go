// Package snapshot builds directory datasets by paging ENS domains out of the
// ENS subgraph. It is an offline job; the server never calls it.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/Irkaa10/ensdir/models"

	"github.com/prometheus/client_golang/prometheus/push"
	"golang.org/x/sync/errgroup"
)

const (
	ManifestFile = "snapshots.json"
	PushJob      = "ensdir_snapshot"
)

type Config struct {
	SubgraphURL string
	PageSize    int
	Parallelism int
	DataDir     string
	// PushGateway, when set, receives the page counters once the build ends.
	PushGateway string
	Client      *http.Client
	Logger      *slog.Logger
	// Now is overridable for tests.
	Now func() time.Time
}

type Result struct {
	Path       string
	Record     models.SnapshotRecord
	Added      int
	Partitions int
	Failed     int
}

// Build fetches every partition, merges them into a single dataset, writes it
// to the data directory and appends it to the manifest. Failed partitions are
// logged and skipped; Build only errors if none succeeded.
func Build(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Client == nil {
		cfg.Client = NewClient(cfg.Logger, 3)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SubgraphURL == "" {
		cfg.SubgraphURL = DefaultSubgraphURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 8
	}
	logger := cfg.Logger

	// a broken manifest fails the build before anything is fetched or written
	manifestPath := filepath.Join(cfg.DataDir, ManifestFile)
	manifest, err := ReadManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	f := &Fetcher{
		URL:      cfg.SubgraphURL,
		PageSize: cfg.PageSize,
		Client:   cfg.Client,
		Logger:   logger,
	}

	parts := Partitions()
	results := make([]map[string]string, len(parts))
	errs := make([]error, len(parts))

	var eg errgroup.Group
	eg.SetLimit(cfg.Parallelism)
	for i, p := range parts {
		i, p := i, p
		eg.Go(func() error {
			results[i], errs[i] = f.FetchPartition(ctx, p)
			return nil
		})
	}
	eg.Wait()
	pushMetrics(cfg.PushGateway, cfg.Client, logger)

	merged := make(map[string]string)
	failed := 0
	for i, p := range parts {
		if errs[i] != nil {
			failed++
			logger.Error("partition failed", "partition", p.Name, "err", errs[i])
			continue
		}
		for name, addr := range results[i] {
			merged[name] = addr
		}
	}
	if failed == len(parts) {
		return nil, fmt.Errorf("all %d partitions failed: %w", failed, errors.Join(errs...))
	}

	now := cfg.Now()
	fileName := fmt.Sprintf("ens-snap-%s.json", prettyDate(now))
	path := filepath.Join(cfg.DataDir, fileName)

	logger.Info("writing snapshot", "domains", len(merged), "path", path)
	data, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing snapshot: %w", err)
	}

	added := len(merged)
	if len(manifest) > 0 {
		added = len(merged) - manifest[len(manifest)-1].DomainCount
	}
	logger.Info("snapshot complete", "added", added)

	rec := models.SnapshotRecord{
		DomainCount: len(merged),
		Time:        now.UnixMilli(),
		FileName:    fileName,
	}
	if err := WriteManifest(manifestPath, append(manifest, rec)); err != nil {
		return nil, err
	}

	return &Result{
		Path:       path,
		Record:     rec,
		Added:      added,
		Partitions: len(parts),
		Failed:     failed,
	}, nil
}

// pushMetrics is best effort: a failed push is logged and the build result
// stands.
func pushMetrics(gateway string, client *http.Client, logger *slog.Logger) {
	if gateway == "" {
		return
	}
	err := push.New(gateway, PushJob).
		Client(client).
		Collector(pagesFetched).
		Push()
	if err != nil {
		logger.Warn("pushing snapshot metrics failed", "gateway", gateway, "err", err)
	}
}

// ReadManifest returns the snapshot history; a missing manifest is empty.
func ReadManifest(path string) ([]models.SnapshotRecord, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var manifest []models.SnapshotRecord
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return manifest, nil
}

func WriteManifest(path string, manifest []models.SnapshotRecord) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// prettyDate renders t as D-Mon-YYYY-H-M without zero padding.
func prettyDate(t time.Time) string {
	return fmt.Sprintf("%d-%s-%d-%d-%d", t.Day(), t.Month().String()[:3], t.Year(), t.Hour(), t.Minute())
}
