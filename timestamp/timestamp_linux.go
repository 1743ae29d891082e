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

package timestamp

import (
	"encoding/binary"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// from include/uapi/linux/net_tstamp.h
const (
	// HWTSTAMP_TX_ON int 1
	hwtstampTXON int32 = 0x00000001
	// HWTSTAMP_FILTER_NONE int 0, we only timestamp what we transmit
	hwtstampFilterNone int32 = 0x00000000
)

// TC_PRIO_CONTROL from include/uapi/linux/pkt_sched.h, the highest
// socket priority class
const tcPrioControl = 7

// unix.Cmsghdr size differs depending on platform
var socketControlMessageHeaderOffset = binary.Size(unix.Cmsghdr{})

var timestamping = unix.SO_TIMESTAMPING_NEW

func init() {
	// if kernel is older than 5, it doesn't support unix.SO_TIMESTAMPING_NEW
	var uname unix.Utsname
	if err := unix.Uname(&uname); err == nil {
		if uname.Release[0] < '5' {
			timestamping = unix.SO_TIMESTAMPING
		}
	}
}

// ifreq is a struct for ioctl ethernet manipulation syscalls.
type ifreq struct {
	name [unix.IFNAMSIZ]byte
	data uintptr
}

// from include/uapi/linux/net_tstamp.h
type hwtstampConfig struct {
	flags    int32
	txType   int32
	rxFilter int32
}

// byteToTime converts LittleEndian bytes into a timestamp
func byteToTime(data []byte) (time.Time, error) {
	// __kernel_timespec from linux/time_types.h
	// can't use unix.Timespec which is old timespec that uses 32bit ints on 386 platform.
	sec := int64(binary.LittleEndian.Uint64(data[0:8]))
	nsec := int64(binary.LittleEndian.Uint64(data[8:]))
	return time.Unix(sec, nsec), nil
}

// scmTimestamps parses the scm_timestamping cmsg payload into its three
// time values. ts[0] carries software timestamps, ts[2] raw hardware ones,
// ts[1] is a legacy field that is always zero.
func scmTimestamps(data []byte) ([3]time.Time, error) {
	var ts [3]time.Time
	// 2 x 64bit ints per timespec
	size := 16
	if len(data) < 3*size {
		return ts, fmt.Errorf("scm_timestamping data too short: %d bytes", len(data))
	}
	for i := 0; i < 3; i++ {
		t, err := byteToTime(data[i*size : (i+1)*size])
		if err != nil {
			return ts, err
		}
		ts[i] = t
	}
	return ts, nil
}

func ioctlHWTimestamp(fd int, ifname string) error {
	hw := &hwtstampConfig{
		flags:    0,
		txType:   hwtstampTXON,
		rxFilter: hwtstampFilterNone,
	}

	i := &ifreq{data: uintptr(unsafe.Pointer(hw))}
	copy(i.name[:unix.IFNAMSIZ-1], ifname)

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), unix.SIOCSHWTSTAMP, uintptr(unsafe.Pointer(i))); errno != 0 {
		return fmt.Errorf("failed to run ioctl SIOCSHWTSTAMP: %s (%d)", unix.ErrnoName(errno), errno)
	}
	return nil
}

// EnableTXTimestamps configures the socket to report where every
// transmitted packet spent its time: SO_PRIORITY puts our packets in the
// highest priority class, the SO_TIMESTAMPING flags request scheduler,
// software send and hardware send timestamps, and SIOCSHWTSTAMP turns on
// TX timestamping in the NIC itself.
func EnableTXTimestamps(connFd int, iface string) error {
	if err := unix.SetsockoptInt(connFd, unix.SOL_SOCKET, unix.SO_PRIORITY, tcPrioControl); err != nil {
		return fmt.Errorf("setting SO_PRIORITY: %w", err)
	}

	if err := ioctlHWTimestamp(connFd, iface); err != nil {
		return fmt.Errorf("enabling hardware timestamps on %q: %w", iface, err)
	}

	flags := unix.SOF_TIMESTAMPING_TX_HARDWARE |
		unix.SOF_TIMESTAMPING_TX_SOFTWARE |
		unix.SOF_TIMESTAMPING_TX_SCHED |
		unix.SOF_TIMESTAMPING_SOFTWARE |
		unix.SOF_TIMESTAMPING_RAW_HARDWARE |
		unix.SOF_TIMESTAMPING_OPT_ID |
		unix.SOF_TIMESTAMPING_OPT_TSONLY | // Makes the kernel return the timestamp as a cmsg alongside an empty packet, as opposed to alongside the original packet.
		unix.SOF_TIMESTAMPING_OPT_TX_SWHW
	if err := unix.SetsockoptInt(connFd, unix.SOL_SOCKET, timestamping, flags); err != nil {
		return fmt.Errorf("setting SO_TIMESTAMPING: %w", err)
	}

	// so that select() reports errqueue data as exceptional readiness
	if err := unix.SetsockoptInt(connFd, unix.SOL_SOCKET, unix.SO_SELECT_ERR_QUEUE, 1); err != nil {
		return fmt.Errorf("setting SO_SELECT_ERR_QUEUE: %w", err)
	}
	return nil
}

// recvErrQueue receives only the OOB message from the socket error queue.
// This is partially based on Recvmsg
// https://github.com/golang/go/blob/2ebe77a2fda1ee9ff6fd9a3e08933ad1ebaea039/src/syscall/syscall_linux.go#L647
func recvErrQueue(connFd int, oob []byte) (oobn int, err error) {
	var msg unix.Msghdr
	msg.Control = &oob[0]
	msg.SetControllen(len(oob))
	_, _, e1 := unix.Syscall(unix.SYS_RECVMSG, uintptr(connFd), uintptr(unsafe.Pointer(&msg)), uintptr(unix.MSG_ERRQUEUE|unix.MSG_DONTWAIT))
	if e1 != 0 {
		return 0, e1
	}
	return int(msg.Controllen), nil
}

// ReadTXTimestamp performs one non-blocking read of the socket error queue
// and returns the TX timestamp record found there, if any. An empty queue
// is not an error: the result is just nil. oob can be reused between calls.
func ReadTXTimestamp(connFd int, oob []byte) (*TXTimestamp, error) {
	boob, err := recvErrQueue(connFd, oob)
	if err != nil {
		if err == unix.EAGAIN {
			return nil, nil
		}
		return nil, fmt.Errorf("reading socket error queue: %w", err)
	}
	return parseTXTimestamp(oob[:boob])
}

// parseTXTimestamp walks the control message chain of one errqueue
// datagram, pairing the scm_timestamping record with the sock_extended_err
// that classifies it. Unclassifiable records are dropped silently.
func parseTXTimestamp(b []byte) (*TXTimestamp, error) {
	var ts [3]time.Time
	var serr *unix.SockExtendedErr
	found := false

	mlen := 0
	for i := 0; i+socketControlMessageHeaderOffset <= len(b); i += cmsgAlign(mlen) {
		h := (*unix.Cmsghdr)(unsafe.Pointer(&b[i]))
		mlen = int(h.Len)
		if mlen < socketControlMessageHeaderOffset || i+mlen > len(b) {
			return nil, fmt.Errorf("malformed socket control message at offset %d", i)
		}
		data := b[i+socketControlMessageHeaderOffset : i+mlen]

		// depending on the kernel version, when we ask for SO_TIMESTAMPING_NEW we still might get messages with type SO_TIMESTAMPING
		if h.Level == unix.SOL_SOCKET && (int(h.Type) == unix.SO_TIMESTAMPING_NEW || int(h.Type) == unix.SO_TIMESTAMPING) {
			parsed, err := scmTimestamps(data)
			if err != nil {
				return nil, err
			}
			ts = parsed
			found = true
		} else if h.Level == unix.SOL_IP && int(h.Type) == unix.IP_RECVERR {
			serr = (*unix.SockExtendedErr)(unsafe.Pointer(&data[0]))
		}
	}

	if !found || serr == nil {
		return nil, nil
	}

	switch {
	case serr.Info == unix.SCM_TSTAMP_SCHED:
		// software timestamp: packet entered the packet scheduler
		return &TXTimestamp{Kind: KindSched, Timestamp: ts[0], PacketID: serr.Data}, nil
	case serr.Info == unix.SCM_TSTAMP_SND && ts[0].UnixNano() != 0:
		// software timestamp: packet passed to the NIC
		return &TXTimestamp{Kind: KindSendSW, Timestamp: ts[0], PacketID: serr.Data}, nil
	case serr.Info == unix.SCM_TSTAMP_SND && ts[2].UnixNano() != 0:
		// hardware timestamp: packet transmitted by the NIC
		return &TXTimestamp{Kind: KindSendHW, Timestamp: ts[2], PacketID: serr.Data}, nil
	}
	return nil, nil
}

// cmsgAlign rounds a control message length up to the kernel's alignment
func cmsgAlign(l int) int {
	const align = int(unsafe.Sizeof(uintptr(0)))
	return (l + align - 1) & ^(align - 1)
}
