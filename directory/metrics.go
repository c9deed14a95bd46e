package directory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var directoryEntries = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "ensdir_directory_entries",
	Help: "Number of names in the loaded directory",
})
