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
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func Test_byteToTime(t *testing.T) {
	timeb := []byte{63, 155, 21, 96, 0, 0, 0, 0, 52, 156, 191, 42, 0, 0, 0, 0}
	res, err := byteToTime(timeb)
	require.NoError(t, err)

	require.Equal(t, int64(1612028735717200436), res.UnixNano())
}

func tsBytes(sec, nsec int64) []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint64(b[0:8], uint64(sec))
	binary.LittleEndian.PutUint64(b[8:16], uint64(nsec))
	return b
}

// scmBytes builds the 48 byte scm_timestamping payload
func scmBytes(ts [3]unix.Timespec) []byte {
	b := []byte{}
	for _, t := range ts {
		b = append(b, tsBytes(t.Sec, t.Nsec)...)
	}
	return b
}

func serrBytes(info, data uint32) []byte {
	se := unix.SockExtendedErr{
		Errno:  uint32(unix.ENOMSG),
		Origin: unix.SO_EE_ORIGIN_TIMESTAMPING,
		Info:   info,
		Data:   data,
	}
	return append([]byte{}, unsafe.Slice((*byte)(unsafe.Pointer(&se)), unsafe.Sizeof(se))...)
}

func cmsg(level, typ int32, data []byte) []byte {
	total := socketControlMessageHeaderOffset + len(data)
	buf := make([]byte, cmsgAlign(total))
	h := (*unix.Cmsghdr)(unsafe.Pointer(&buf[0]))
	h.SetLen(total)
	h.Level = level
	h.Type = typ
	copy(buf[socketControlMessageHeaderOffset:], data)
	return buf
}

func errqueueDatagram(info, data uint32, ts [3]unix.Timespec) []byte {
	b := cmsg(unix.SOL_SOCKET, int32(unix.SO_TIMESTAMPING), scmBytes(ts))
	return append(b, cmsg(unix.SOL_IP, int32(unix.IP_RECVERR), serrBytes(info, data))...)
}

func Test_parseTXTimestampSched(t *testing.T) {
	b := errqueueDatagram(unix.SCM_TSTAMP_SCHED, 7, [3]unix.Timespec{{Sec: 100, Nsec: 500}, {}, {}})
	ts, err := parseTXTimestamp(b)
	require.NoError(t, err)
	require.NotNil(t, ts)
	require.Equal(t, KindSched, ts.Kind)
	require.Equal(t, time.Unix(100, 500), ts.Timestamp)
	require.Equal(t, uint32(7), ts.PacketID)
}

func Test_parseTXTimestampSendSW(t *testing.T) {
	b := errqueueDatagram(unix.SCM_TSTAMP_SND, 8, [3]unix.Timespec{{Sec: 100, Nsec: 600}, {}, {}})
	ts, err := parseTXTimestamp(b)
	require.NoError(t, err)
	require.NotNil(t, ts)
	require.Equal(t, KindSendSW, ts.Kind)
	require.Equal(t, time.Unix(100, 600), ts.Timestamp)
	require.Equal(t, uint32(8), ts.PacketID)
}

func Test_parseTXTimestampSendHW(t *testing.T) {
	b := errqueueDatagram(unix.SCM_TSTAMP_SND, 9, [3]unix.Timespec{{}, {}, {Sec: 100, Nsec: 700}})
	ts, err := parseTXTimestamp(b)
	require.NoError(t, err)
	require.NotNil(t, ts)
	require.Equal(t, KindSendHW, ts.Kind)
	require.Equal(t, time.Unix(100, 700), ts.Timestamp)
}

func Test_parseTXTimestampIgnored(t *testing.T) {
	// SND with all-zero timestamps matches neither the software nor the
	// hardware rule
	b := errqueueDatagram(unix.SCM_TSTAMP_SND, 1, [3]unix.Timespec{})
	ts, err := parseTXTimestamp(b)
	require.NoError(t, err)
	require.Nil(t, ts)

	// timestamping record with no extended error attached
	b = cmsg(unix.SOL_SOCKET, int32(unix.SO_TIMESTAMPING), scmBytes([3]unix.Timespec{{Sec: 1}, {}, {}}))
	ts, err = parseTXTimestamp(b)
	require.NoError(t, err)
	require.Nil(t, ts)

	// empty control data
	ts, err = parseTXTimestamp([]byte{})
	require.NoError(t, err)
	require.Nil(t, ts)
}

func Test_ReadTXTimestampEmptyQueue(t *testing.T) {
	// fresh socket with nothing in the error queue: nil result, nil error
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	require.NoError(t, err)
	defer unix.Close(fd)

	oob := make([]byte, ControlSizeBytes)
	ts, err := ReadTXTimestamp(fd, oob)
	require.NoError(t, err)
	require.Nil(t, ts)
}

func Test_cmsgAlign(t *testing.T) {
	require.Equal(t, 0, cmsgAlign(0))
	require.Equal(t, 16, cmsgAlign(16))
	require.Equal(t, 24, cmsgAlign(17))
	require.Equal(t, 64, cmsgAlign(64))
}
