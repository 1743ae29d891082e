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
	"io"

	"github.com/olekukonko/tablewriter"
)

// BucketRangeLabel returns the human readable range of histogram bucket i,
// derived from the same bounds the classifier uses.
func BucketRangeLabel(i int) string {
	if i >= NumBuckets-1 {
		return fmt.Sprintf("> %d", BucketUpperBound(NumBuckets-2)-1)
	}
	low := int64(0)
	if i > 0 {
		low = BucketUpperBound(i - 1)
	}
	return fmt.Sprintf("%d - %d", low, BucketUpperBound(i)-1)
}

// Text writes the final human readable summary: the packet count, the
// latency line and the distribution table.
func (s *Snapshot) Text(w io.Writer) {
	fmt.Fprintf(w, "%d packets transmitted\n", s.Total)
	if s.Valid == 0 {
		return
	}

	fmt.Fprintf(w, "latency min/median/max = %d/%d/%d us (mean %.1f, stddev %.1f)\n",
		s.Min, s.Median, s.Max, s.Mean, s.Stddev)

	fmt.Fprintln(w, "distribution:")
	table := tablewriter.NewWriter(w)
	table.Header([]string{"range (us)", "count"})
	for i := 0; i < NumBuckets; i++ {
		if err := table.Append([]string{BucketRangeLabel(i), fmt.Sprintf("%d", s.Buckets[i])}); err != nil {
			fmt.Fprintf(w, "rendering distribution: %v\n", err)
			return
		}
	}
	if err := table.Render(); err != nil {
		fmt.Fprintf(w, "rendering distribution: %v\n", err)
	}
}
