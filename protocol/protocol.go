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

// Package protocol implements just enough of the PTPv2 wire format
// (IEEE 1588-2019) to produce Sync event messages that hardware will
// timestamp. wiretime only measures its own traffic, so nothing beyond
// the Sync message is supported.
package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// Version is what version of PTP protocol we implement
const Version uint8 = 2

// The UDP destination port of a PTP event message shall be 319.
const (
	PortEvent   = 319
	PortGeneral = 320
)

// EventIPv4Addr is the primary PTP multicast group. Some hardware will
// only timestamp packets sent to this address.
const EventIPv4Addr = "224.0.1.129"

// MessageType is type for Message Types
type MessageType uint8

// As per Table 36 Values of messageType field
const (
	MessageSync     MessageType = 0x0
	MessageDelayReq MessageType = 0x1
	MessageFollowUp MessageType = 0x8
	MessageAnnounce MessageType = 0xB
)

// MessageTypeToString is a map from MessageType to string
var MessageTypeToString = map[MessageType]string{
	MessageSync:     "SYNC",
	MessageDelayReq: "DELAY_REQ",
	MessageFollowUp: "FOLLOW_UP",
	MessageAnnounce: "ANNOUNCE",
}

func (m MessageType) String() string {
	return MessageTypeToString[m]
}

// SdoIDAndMsgType is a uint8 where first 4 bits contain SdoID and last 4 bits MessageType
type SdoIDAndMsgType uint8

// MsgType extracts MessageType from SdoIDAndMsgType
func (m SdoIDAndMsgType) MsgType() MessageType {
	return MessageType(m & 0xf) // last 4 bits
}

// NewSdoIDAndMsgType builds new SdoIDAndMsgType from MessageType and SdoID
func NewSdoIDAndMsgType(msgType MessageType, sdoID uint8) SdoIDAndMsgType {
	return SdoIDAndMsgType(sdoID<<4 | uint8(msgType))
}

// ClockIdentity identifies a unique entity within a PTP network
type ClockIdentity uint64

// PortIdentity identifies a PTP Port or a Link Port
type PortIdentity struct {
	ClockIdentity ClockIdentity
	PortNumber    uint16
}

// Correction is the value of the correction measured in nanoseconds and multiplied by 2**16
type Correction int64

// LogInterval is the logarithm, to base 2, of the requested period in seconds
type LogInterval int8

// PTPSeconds is the integer portion of a PTP timestamp, 48 bits on the wire
type PTPSeconds [6]uint8

// Seconds returns PTPSeconds as uint64
func (s PTPSeconds) Seconds() uint64 {
	return uint64(s[0])<<40 | uint64(s[1])<<32 | uint64(s[2])<<24 | uint64(s[3])<<16 | uint64(s[4])<<8 | uint64(s[5])
}

// Timestamp represents a positive time with respect to the PTP epoch
type Timestamp struct {
	Seconds     PTPSeconds
	Nanoseconds uint32
}

// Time turns Timestamp into normal Go time.Time
func (t Timestamp) Time() time.Time {
	if t.Seconds.Seconds() == 0 && t.Nanoseconds == 0 {
		return time.Time{}
	}
	return time.Unix(int64(t.Seconds.Seconds()), int64(t.Nanoseconds))
}

// Header Table 35 Common PTP message header
type Header struct {
	SdoIDAndMsgType     SdoIDAndMsgType // first 4 bits is SdoId, next 4 bits are msgtype
	Version             uint8
	MessageLength       uint16
	DomainNumber        uint8
	MinorSdoID          uint8
	FlagField           uint16
	CorrectionField     Correction
	MessageTypeSpecific uint32
	SourcePortIdentity  PortIdentity
	SequenceID          uint16
	ControlField        uint8
	LogMessageInterval  LogInterval
}

// MessageType returns MessageType
func (p *Header) MessageType() MessageType {
	return p.SdoIDAndMsgType.MsgType()
}

// SetSequence populates sequence field
func (p *Header) SetSequence(sequence uint16) {
	p.SequenceID = sequence
}

// HeaderSize is the size of the common header on the wire
const HeaderSize = 34

// SeqOffset is the byte offset of the big-endian SequenceID field within the header
const SeqOffset = 30

// SyncBody Table 44 Sync message fields
type SyncBody struct {
	OriginTimestamp Timestamp
}

// Sync is a full Sync packet
type Sync struct {
	Header
	SyncBody
}

// SyncSize is the size of a Sync message on the wire: header plus 10 byte body
const SyncSize = 44

// NewSync returns a minimal Sync message with the given sequence id.
// Everything except the message type nibble, version, length and sequence
// is left zero, which is enough to fool hardware timestamping engines.
func NewSync(seq uint16) *Sync {
	return &Sync{
		Header: Header{
			SdoIDAndMsgType: NewSdoIDAndMsgType(MessageSync, 0),
			Version:         Version,
			MessageLength:   SyncSize,
			SequenceID:      seq,
		},
	}
}

// Packet is an interface to abstract all different packets
type Packet interface {
	MessageType() MessageType
	SetSequence(uint16)
}

// Bytes converts any packet to []byte
func Bytes(p Packet) ([]byte, error) {
	var b bytes.Buffer
	if err := binary.Write(&b, binary.BigEndian, p); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// FromBytes parses []byte into any packet
func FromBytes(rawBytes []byte, p Packet) error {
	reader := bytes.NewReader(rawBytes)
	return binary.Read(reader, binary.BigEndian, p)
}

// ProbeMsgType reads the first byte of data and returns the MessageType
func ProbeMsgType(data []byte) (MessageType, error) {
	if len(data) < 1 {
		return 0, fmt.Errorf("not enough data to probe MsgType")
	}
	return SdoIDAndMsgType(data[0]).MsgType(), nil
}

// ProbeSequenceID reads the SequenceID without decoding the whole message
func ProbeSequenceID(data []byte) (uint16, error) {
	if len(data) < HeaderSize {
		return 0, fmt.Errorf("not enough data to probe SequenceID")
	}
	return binary.BigEndian.Uint16(data[SeqOffset : SeqOffset+2]), nil
}
