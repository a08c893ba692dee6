package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sshlure"

var (
	descActive = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "sessions_active"),
		"Sessions currently running.", nil, nil)
	descTotal = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "sessions_total"),
		"Sessions accepted since start.", nil, nil)
	descRejected = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "sessions_rejected_total"),
		"Connections closed by admission control.", nil, nil)
	descCredentials = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "credentials_captured_total"),
		"Non-empty usernames and passwords captured.", nil, nil)
	descBytesIn = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "bytes_received_total"),
		"Bytes read from peers.", nil, nil)
	descBytesOut = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "bytes_sent_total"),
		"Bytes written to peers.", nil, nil)
	descSessionErrors = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "session_errors_total"),
		"Session I/O failures (timeouts, resets, write errors).", nil, nil)
	descAcceptErrors = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "accept_errors_total"),
		"Failed accept calls.", nil, nil)
)

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descActive
	ch <- descTotal
	ch <- descRejected
	ch <- descCredentials
	ch <- descBytesIn
	ch <- descBytesOut
	ch <- descSessionErrors
	ch <- descAcceptErrors
}

// Collect implements prometheus.Collector by reading the atomics at
// scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(descActive, prometheus.GaugeValue, float64(c.ActiveSessions()))
	ch <- prometheus.MustNewConstMetric(descTotal, prometheus.CounterValue, float64(c.TotalSessions()))
	ch <- prometheus.MustNewConstMetric(descRejected, prometheus.CounterValue, float64(c.Rejected()))
	ch <- prometheus.MustNewConstMetric(descCredentials, prometheus.CounterValue, float64(c.CredentialsCaptured()))
	ch <- prometheus.MustNewConstMetric(descBytesIn, prometheus.CounterValue, float64(c.TotalBytesIn()))
	ch <- prometheus.MustNewConstMetric(descBytesOut, prometheus.CounterValue, float64(c.TotalBytesOut()))
	ch <- prometheus.MustNewConstMetric(descSessionErrors, prometheus.CounterValue, float64(c.SessionErrors()))
	ch <- prometheus.MustNewConstMetric(descAcceptErrors, prometheus.CounterValue, float64(c.AcceptErrors()))
}

// Registry returns a registry holding c plus the Go runtime and process
// collectors.
func (c *Collector) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.Registry(), promhttp.HandlerOpts{})
}
