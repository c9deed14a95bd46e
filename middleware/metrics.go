package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ensdir_http_requests_total",
	Help: "HTTP requests served, by route template and status",
}, []string{"route", "method", "status"})

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "ensdir_http_request_duration_seconds",
	Help:    "Time to serve an HTTP request",
	Buckets: prometheus.ExponentialBucketsRange(0.00001, 1, 20),
}, []string{"route", "method"})
