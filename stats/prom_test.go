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
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestPromCollector(t *testing.T) {
	a := NewAggregator()
	a.Update(10)
	a.Update(100)
	a.Incomplete()

	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(&promCollector{agg: a}))

	families, err := registry.Gather()
	require.NoError(t, err)

	byName := map[string]float64{}
	for _, mf := range families {
		switch mf.GetName() {
		case "wiretime_packets_total", "wiretime_incomplete_total":
			byName[mf.GetName()] = mf.GetMetric()[0].GetCounter().GetValue()
		case "wiretime_latency_usec":
			h := mf.GetMetric()[0].GetHistogram()
			require.Equal(t, uint64(2), h.GetSampleCount())
			require.InDelta(t, 110.0, h.GetSampleSum(), 0.001)
			require.Equal(t, NumBuckets-1, len(h.GetBucket()))
		}
	}
	require.Equal(t, float64(3), byName["wiretime_packets_total"])
	require.Equal(t, float64(1), byName["wiretime_incomplete_total"])
}
