package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var resolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ensdir_resolve_total",
	Help: "ENS name resolutions, by result (found, missing, malformed)",
}, []string{"result"})
