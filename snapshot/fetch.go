package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const DefaultSubgraphURL = "https://api.thegraph.com/subgraphs/name/ensdomains/ens"

const domainsQuery = `
query($first: Int, $lastID: ID, $end: ID) {
	domains(first: $first, orderBy: id, orderDirection: asc, where: { id_gt: $lastID, id_lt: $end, name_not: null, resolvedAddress_not: null }) {
		id
		name
		resolvedAddress {
			id
		}
	}
}`

type Account struct {
	ID string `json:"id"`
}

type Domain struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	ResolvedAddress *Account `json:"resolvedAddress"`
	Subdomains      []Domain `json:"subdomains,omitempty"`
}

type graphRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphError struct {
	Message string `json:"message"`
}

type graphResponse struct {
	Data *struct {
		Domains []Domain `json:"domains"`
	} `json:"data"`
	Errors []graphError `json:"errors"`
}

// Partition is an exclusive range of domain IDs (namehashes) paged by one
// worker.
type Partition struct {
	Name  string
	Start string
	End   string
}

// Partitions splits the namehash keyspace into eight ranges by leading hex
// digit pairs (0-1, 2-3, ... e-f).
func Partitions() []Partition {
	parts := make([]Partition, 0, 8)
	for i := 0; i < 8; i++ {
		lo := fmt.Sprintf("0x%x", 2*i)
		hi := fmt.Sprintf("0x%x", 2*i+1)
		parts = append(parts, Partition{
			Name:  fmt.Sprintf("#%d", i+1),
			Start: lo + strings.Repeat("0", 64-len(lo)),
			End:   hi + strings.Repeat("f", 64-len(hi)),
		})
	}
	return parts
}

type Fetcher struct {
	URL      string
	PageSize int
	Client   *http.Client
	Logger   *slog.Logger
}

// Page fetches up to PageSize resolvable domains with lastID < id < end.
func (f *Fetcher) Page(ctx context.Context, lastID, end string) ([]Domain, error) {
	body, err := json.Marshal(graphRequest{
		Query: domainsQuery,
		Variables: map[string]any{
			"first":  f.PageSize,
			"lastID": lastID,
			"end":    end,
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ensdir-snapshot")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying subgraph: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("subgraph query failed status=%d", resp.StatusCode)
	}

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var gr graphResponse
	if err := json.Unmarshal(respBytes, &gr); err != nil {
		return nil, fmt.Errorf("decoding subgraph response: %w", err)
	}
	if len(gr.Errors) > 0 {
		return nil, fmt.Errorf("subgraph error: %s", gr.Errors[0].Message)
	}
	if gr.Data == nil {
		return nil, fmt.Errorf("subgraph response missing data")
	}
	return gr.Data.Domains, nil
}

// FetchPartition pages through p until an empty page and returns the
// name to address entries found, subdomains included.
func (f *Fetcher) FetchPartition(ctx context.Context, p Partition) (map[string]string, error) {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("partition", p.Name)
	entries := make(map[string]string)
	lastID := p.Start
	for {
		start := time.Now()
		domains, err := f.Page(ctx, lastID, p.End)
		if err != nil {
			pagesFetched.WithLabelValues(p.Name, "error").Inc()
			return nil, fmt.Errorf("partition %s after %s: %w", p.Name, lastID, err)
		}
		pagesFetched.WithLabelValues(p.Name, "ok").Inc()
		if len(domains) == 0 {
			break
		}
		collect(entries, domains)
		lastID = domains[len(domains)-1].ID
		logger.Debug("fetched page", "domains", len(domains), "total", len(entries), "duration", time.Since(start))
	}
	logger.Info("partition done", "total", len(entries))
	return entries, nil
}

func collect(entries map[string]string, domains []Domain) {
	for _, d := range domains {
		if d.Name != "" && d.ResolvedAddress != nil {
			entries[d.Name] = d.ResolvedAddress.ID
		}
		for _, sub := range d.Subdomains {
			if sub.Name != "" && sub.ResolvedAddress != nil && sub.ResolvedAddress.ID != "" {
				entries[sub.Name] = sub.ResolvedAddress.ID
			}
		}
	}
}
