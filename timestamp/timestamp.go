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

// Package timestamp deals with SO_TIMESTAMPING kernel TX timestamps:
// configuring them on a socket and draining them from the socket error
// queue.
package timestamp

import (
	"net"
	"time"
)

const (
	// ControlSizeBytes is the size of the buffer the socket control message
	// with TX timestamps is read into
	ControlSizeBytes = 128
)

// Kind tells which point in the TX path a timestamp was taken at
type Kind int

const (
	// KindSched is a software timestamp taken when the packet entered
	// the queuing discipline
	KindSched Kind = iota
	// KindSendSW is a software timestamp taken when the packet was
	// handed to the driver
	KindSendSW
	// KindSendHW is a hardware timestamp taken when the NIC put the
	// packet on the wire
	KindSendHW
)

var kindToString = map[Kind]string{
	KindSched:  "sched",
	KindSendSW: "send (sw)",
	KindSendHW: "send (hw)",
}

func (k Kind) String() string {
	return kindToString[k]
}

// TXTimestamp is one timestamp record drained from the socket error queue
type TXTimestamp struct {
	Kind      Kind
	Timestamp time.Time
	// PacketID is the per-socket packet counter the kernel attaches
	// when SOF_TIMESTAMPING_OPT_ID is set
	PacketID uint32
}

// ConnFd returns file descriptor of a connection
func ConnFd(conn *net.UDPConn) (int, error) {
	sc, err := conn.SyscallConn()
	if err != nil {
		return -1, err
	}
	var intfd int
	err = sc.Control(func(fd uintptr) {
		intfd = int(fd)
	})
	if err != nil {
		return -1, err
	}
	return intfd, nil
}
