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

// Package stats accumulates latency samples in bounded memory: running
// min/max, a fixed ring of recent samples for the median, and an
// exponential histogram.
package stats

import (
	"math"
	"sort"
	"sync"

	"github.com/eclesh/welford"
)

const (
	// NumSamples is the capacity of the sample ring, must be a power of two
	NumSamples = 1024
	// NumBuckets is the number of histogram buckets, the last one is unbounded
	NumBuckets = 12
	// BucketBase is the upper bound of the first histogram bucket, in microseconds
	BucketBase = 32
)

// BucketUpperBound returns the exclusive upper bound of histogram bucket i
// in microseconds. The last bucket is unbounded. Both sample
// classification and the printed range labels derive from this single
// function, so the printed table always describes the classification rule.
func BucketUpperBound(i int) int64 {
	if i >= NumBuckets-1 {
		return math.MaxInt64
	}
	return BucketBase << i
}

// bucketIndex returns the first bucket whose upper bound exceeds latency
func bucketIndex(latency int64) int {
	for i := 0; i < NumBuckets-1; i++ {
		if latency < BucketUpperBound(i) {
			return i
		}
	}
	return NumBuckets - 1
}

// Aggregator accumulates latency samples. It is created once at process
// start and lives for the lifetime of the process. The measurement loop is
// the only writer; the mutex exists so the monitoring endpoint can take a
// Snapshot concurrently.
type Aggregator struct {
	mux sync.Mutex

	total   uint64 // samples offered, including incomplete ones
	valid   uint64 // samples with a computed latency
	min     int64
	max     int64
	samples [NumSamples]int64
	buckets [NumBuckets]uint64
	stream  *welford.Stats
}

// NewAggregator returns an empty Aggregator
func NewAggregator() *Aggregator {
	return &Aggregator{stream: welford.New()}
}

// Update records one complete sample. The caller must not offer the very
// first transmitted packet's sample here: warm-up bias would skew every
// statistic we keep.
func (a *Aggregator) Update(latency int64) {
	a.mux.Lock()
	defer a.mux.Unlock()

	a.total++
	if a.valid == 0 || latency < a.min {
		a.min = latency
	}
	if a.valid == 0 || latency > a.max {
		a.max = latency
	}
	a.samples[a.valid&(NumSamples-1)] = latency
	a.valid++
	a.buckets[bucketIndex(latency)]++
	a.stream.Add(float64(latency))
}

// Incomplete records a sample whose latency could not be computed. It
// counts towards the total and nothing else.
func (a *Aggregator) Incomplete() {
	a.mux.Lock()
	defer a.mux.Unlock()
	a.total++
}

// Snapshot is a point-in-time copy of the aggregated statistics
type Snapshot struct {
	Total   uint64
	Valid   uint64
	Min     int64
	Median  int64
	Max     int64
	Mean    float64
	Stddev  float64
	Buckets [NumBuckets]uint64
	// Samples is the in-use portion of the sample ring, sorted ascending
	Samples []int64
}

// Snapshot returns the current statistics. It copies and sorts the in-use
// portion of the ring, leaving the Aggregator untouched, so taking two
// snapshots back to back yields identical results.
func (a *Aggregator) Snapshot() *Snapshot {
	a.mux.Lock()
	defer a.mux.Unlock()

	s := &Snapshot{
		Total:   a.total,
		Valid:   a.valid,
		Min:     a.min,
		Max:     a.max,
		Buckets: a.buckets,
	}
	if a.valid == 0 {
		return s
	}

	n := a.valid
	if n > NumSamples {
		n = NumSamples
	}
	s.Samples = make([]int64, n)
	copy(s.Samples, a.samples[:n])
	sort.Slice(s.Samples, func(i, j int) bool { return s.Samples[i] < s.Samples[j] })
	s.Median = s.Samples[n/2]
	s.Mean = a.stream.Mean()
	s.Stddev = a.stream.Stddev()
	return s
}
