/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package stats

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var (
	packetsDesc = prometheus.NewDesc(
		"wiretime_packets_total",
		"Packets measured, excluding the warm-up packet",
		nil, nil)
	incompleteDesc = prometheus.NewDesc(
		"wiretime_incomplete_total",
		"Packets for which one or more TX timestamps never arrived",
		nil, nil)
	latencyDesc = prometheus.NewDesc(
		"wiretime_latency_usec",
		"Queuing-to-wire TX latency in microseconds",
		nil, nil)
)

// promCollector exposes an Aggregator as prometheus metrics, scraping a
// Snapshot on every Collect. The histogram shares its bucket bounds with
// the text report.
type promCollector struct {
	agg *Aggregator
}

// Describe implements prometheus.Collector
func (c *promCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- packetsDesc
	ch <- incompleteDesc
	ch <- latencyDesc
}

// Collect implements prometheus.Collector
func (c *promCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.agg.Snapshot()
	ch <- prometheus.MustNewConstMetric(packetsDesc, prometheus.CounterValue, float64(s.Total))
	ch <- prometheus.MustNewConstMetric(incompleteDesc, prometheus.CounterValue, float64(s.Total-s.Valid))

	buckets := map[float64]uint64{}
	cum := uint64(0)
	for i := 0; i < NumBuckets-1; i++ {
		cum += s.Buckets[i]
		buckets[float64(BucketUpperBound(i))] = cum
	}
	ch <- prometheus.MustNewConstHistogram(latencyDesc, s.Valid, s.Mean*float64(s.Valid), buckets)
}

// Exporter serves aggregated statistics over HTTP for prometheus to scrape
type Exporter struct {
	registry   *prometheus.Registry
	listenPort int
}

// NewExporter creates a new Exporter reading from agg
func NewExporter(agg *Aggregator, listenPort int) *Exporter {
	registry := prometheus.NewRegistry()
	registry.MustRegister(&promCollector{agg: agg})
	return &Exporter{registry: registry, listenPort: listenPort}
}

// Start runs the exporter, it only returns on listener failure
func (e *Exporter) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		e.registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		},
	))
	addr := fmt.Sprintf(":%d", e.listenPort)
	log.Infof("Starting monitoring server on %s", addr)
	return http.ListenAndServe(addr, mux)
}
