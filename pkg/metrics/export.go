package metrics

import (
	"net/http"
	"time"

	"contrib.go.opencensus.io/exporter/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
	"go.opencensus.io/stats/view"
)

// Namespace prefixes every exported metric name.
const Namespace = "ledger"

// NewPrometheusHandler registers a prometheus exporter for all views and
// returns the handler serving them. Views are reported every interval.
func NewPrometheusHandler(interval time.Duration) (http.Handler, error) {
	registry := prom.NewRegistry()
	pe, err := prometheus.NewExporter(prometheus.Options{
		Namespace: Namespace,
		Registry:  registry,
		OnError: func(err error) {
			log.Errorf("prometheus exporter: %s", err)
		},
	})
	if err != nil {
		return nil, err
	}

	view.RegisterExporter(pe)
	view.SetReportingPeriod(interval)
	return pe, nil
}
