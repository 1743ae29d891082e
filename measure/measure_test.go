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

package measure

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/netdevtools/wiretime/stats"
	"github.com/netdevtools/wiretime/tracefs"
)

func testRunner(t *testing.T, threshold int64) (*Runner, string) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "snapshot"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "trace_marker"), nil, 0644))

	r := &Runner{
		cfg: &Config{
			Iface:     "lo",
			Period:    1000000,
			Threshold: threshold,
		},
		agg:   stats.NewAggregator(),
		sinks: tracefs.Open(root),
	}
	t.Cleanup(r.sinks.Close)
	return r, root
}

func completeTriple(base time.Time, deltaUS int64) Triple {
	return Triple{
		Socket: base,
		Driver: base.Add(time.Duration(deltaUS) * time.Microsecond / 2),
		HW:     base.Add(time.Duration(deltaUS) * time.Microsecond),
	}
}

// the end-to-end evaluation scenario: first sample excluded, second
// aggregated, third incomplete but still counted
func TestEvaluateScenario(t *testing.T) {
	r, root := testRunner(t, 0)

	// cycle 1 evaluates packet 0: the warm-up packet
	r.seq, r.packets = 1, 1
	r.triple = completeTriple(time.Unix(1, 0), 999)
	r.evaluate()
	s := r.agg.Snapshot()
	require.Equal(t, uint64(0), s.Total)
	require.Equal(t, uint64(0), s.Valid)

	// cycle 2 evaluates packet 1: 200us from qdisc to wire
	r.seq, r.packets = 2, 2
	r.triple = completeTriple(time.Unix(2, 100000), 200)
	r.evaluate()
	s = r.agg.Snapshot()
	require.Equal(t, uint64(1), s.Total)
	require.Equal(t, uint64(1), s.Valid)
	require.Equal(t, int64(200), s.Min)
	require.Equal(t, int64(200), s.Median)
	require.Equal(t, int64(200), s.Max)

	// cycle 3 evaluates packet 2: hardware timestamp never arrived
	r.seq, r.packets = 3, 3
	r.triple = Triple{
		Socket: time.Unix(3, 0),
		Driver: time.Unix(3, 50000),
	}
	r.evaluate()
	s = r.agg.Snapshot()
	require.Equal(t, uint64(2), s.Total)
	require.Equal(t, uint64(1), s.Valid)

	// the incomplete sample requested a snapshot
	snap, err := os.ReadFile(filepath.Join(root, "snapshot"))
	require.NoError(t, err)
	require.Equal(t, "1\n", string(snap))

	// the complete samples left latency markers behind
	markers, err := os.ReadFile(filepath.Join(root, "trace_marker"))
	require.NoError(t, err)
	require.Contains(t, string(markers), "us latency")
}

func TestEvaluateThresholdSnapshot(t *testing.T) {
	r, root := testRunner(t, 50)

	r.seq, r.packets = 5, 5
	r.triple = completeTriple(time.Unix(10, 0), 200)
	r.evaluate()

	s := r.agg.Snapshot()
	require.Equal(t, uint64(1), s.Valid)
	require.Equal(t, int64(200), s.Max)

	snap, err := os.ReadFile(filepath.Join(root, "snapshot"))
	require.NoError(t, err)
	require.Equal(t, "1\n", string(snap))
}

func TestEvaluateBelowThreshold(t *testing.T) {
	r, root := testRunner(t, 500)

	r.seq, r.packets = 5, 5
	r.triple = completeTriple(time.Unix(10, 0), 200)
	r.evaluate()

	require.Equal(t, uint64(1), r.agg.Snapshot().Valid)

	snap, err := os.ReadFile(filepath.Join(root, "snapshot"))
	require.NoError(t, err)
	require.Empty(t, snap)
}

func TestEvaluateNonMonotonic(t *testing.T) {
	r, _ := testRunner(t, 0)

	r.seq, r.packets = 4, 4
	r.triple = Triple{
		Socket: time.Unix(10, 500000),
		Driver: time.Unix(10, 600000),
		HW:     time.Unix(10, 100000),
	}
	r.evaluate()

	// counted but never aggregated
	s := r.agg.Snapshot()
	require.Equal(t, uint64(1), s.Total)
	require.Equal(t, uint64(0), s.Valid)
}

func TestEvaluateFirstIncomplete(t *testing.T) {
	r, _ := testRunner(t, 0)

	// the warm-up packet coming up incomplete doesn't count either
	r.seq, r.packets = 1, 1
	r.triple = Triple{}
	r.evaluate()

	s := r.agg.Snapshot()
	require.Equal(t, uint64(0), s.Total)
}
