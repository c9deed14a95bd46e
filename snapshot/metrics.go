package snapshot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var pagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ensdir_snapshot_pages_total",
	Help: "Subgraph pages fetched while building a snapshot",
}, []string{"partition", "status"})
