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
	log "github.com/sirupsen/logrus"

	"github.com/netdevtools/wiretime/timestamp"
)

// Collector drains TX timestamp notifications from the socket error queue
// into the current cycle's Triple.
type Collector struct {
	connFd int
	oob    []byte
}

// NewCollector returns a Collector for the given socket
func NewCollector(connFd int) *Collector {
	return &Collector{
		connFd: connFd,
		oob:    make([]byte, timestamp.ControlSizeBytes),
	}
}

// Drain empties the error queue completely. Notifications queue up between
// polls, so a single drain may yield several records, for several stages.
// An empty queue is the expected steady state; any other read error is
// logged and the drain stops until the next poll.
func (c *Collector) Drain(triple *Triple) {
	for {
		ts, err := timestamp.ReadTXTimestamp(c.connFd, c.oob)
		if err != nil {
			log.Errorf("draining TX timestamps: %v", err)
			return
		}
		if ts == nil {
			return
		}
		log.Debugf("TX timestamp: %s %v (packet id %d)", ts.Kind, ts.Timestamp, ts.PacketID)
		triple.Apply(*ts)
	}
}
