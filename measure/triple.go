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
	"fmt"
	"strings"
	"time"

	"github.com/netdevtools/wiretime/timestamp"
)

// stage names as they appear in the per-cycle report line
const (
	StageSocket = "socket"
	StageDriver = "driver"
	StageHW     = "hw"
)

// Triple holds the three TX timestamps of one in-flight packet: when it
// entered the queuing discipline, when it was handed to the driver, and
// when the NIC put it on the wire. Slots fill in asynchronously as the
// kernel delivers notifications; a zero time means the notification hasn't
// arrived. A Triple belongs to exactly one cycle and is reset afterwards.
type Triple struct {
	Socket time.Time
	Driver time.Time
	HW     time.Time
}

// Apply stores one drained timestamp record in its slot
func (t *Triple) Apply(ts timestamp.TXTimestamp) {
	switch ts.Kind {
	case timestamp.KindSched:
		t.Socket = ts.Timestamp
	case timestamp.KindSendSW:
		t.Driver = ts.Timestamp
	case timestamp.KindSendHW:
		t.HW = ts.Timestamp
	}
}

// Reset empties all three slots
func (t *Triple) Reset() {
	*t = Triple{}
}

// Missing lists the stages whose timestamps haven't arrived
func (t *Triple) Missing() []string {
	var missing []string
	if t.Socket.IsZero() {
		missing = append(missing, StageSocket)
	}
	if t.Driver.IsZero() {
		missing = append(missing, StageDriver)
	}
	if t.HW.IsZero() {
		missing = append(missing, StageHW)
	}
	return missing
}

// Complete reports whether all three timestamps arrived
func (t *Triple) Complete() bool {
	return !t.Socket.IsZero() && !t.Driver.IsZero() && !t.HW.IsZero()
}

// Latency returns how long the packet took from the queuing discipline to
// the wire, in whole microseconds. A triple whose hardware timestamp
// precedes its socket timestamp is reported as an error rather than
// yielding a negative latency: clocks reporting out of order is a
// measurement defect, not a sample.
func (t *Triple) Latency() (int64, error) {
	if missing := t.Missing(); len(missing) > 0 {
		return 0, fmt.Errorf("incomplete triple, missing: %s", strings.Join(missing, ", "))
	}
	latency := t.HW.Sub(t.Socket).Nanoseconds() / 1000
	if latency < 0 {
		return 0, fmt.Errorf("non-monotonic triple: hw %v precedes socket %v", t.HW, t.Socket)
	}
	return latency, nil
}
