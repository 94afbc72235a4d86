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

// Package pmc is a management client for the external PTP daemon that
// tracks the network grandmaster: it requests PORT_DATA_SET and
// TIME_PROPERTIES_DATA_SET over a Unix management socket through a
// non-blocking cursor state machine. The on-wire byte layout below follows
// IEEE 1588's management message shape closely enough to exercise that
// state machine; reproducing the exact bytes a particular PTP daemon
// expects is the daemon's contract, not this package's.
package pmc

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// managementMessageType is the PTP messageType nibble for management
// messages (Table 41, IEEE 1588-2019).
const managementMessageType = 0x0D

const ptpVersion = 2

// ClockIdentity identifies a PTP clock.
type ClockIdentity uint64

// PortIdentity identifies a single port on a PTP clock.
type PortIdentity struct {
	ClockIdentity ClockIdentity
	PortNumber    uint16
}

// PortState is the state of a PTP port, Table 9 IEEE 1588-2019.
type PortState uint8

// Port states relevant to this client; only MASTER and SLAVE gate the
// bootstrap cursor, the rest exist for completeness.
const (
	PortStateInitializing PortState = 1
	PortStateFaulty       PortState = 2
	PortStateDisabled     PortState = 3
	PortStateListening    PortState = 4
	PortStatePreMaster    PortState = 5
	PortStateMaster       PortState = 6
	PortStatePassive      PortState = 7
	PortStateUncalibrated PortState = 8
	PortStateSlave        PortState = 9
)

// Action is the managementAction field of a management message, Table 69.
type Action uint8

// Management actions.
const (
	ActionGet Action = iota
	ActionSet
	ActionResponse
	ActionCommand
	ActionAcknowledge
)

// ManagementID identifies which data set or NP-extension a management
// message carries, Table 71.
type ManagementID uint16

// Management IDs this client requests or can receive.
const (
	IDPortDataSet           ManagementID = 0x2004
	IDTimePropertiesDataSet ManagementID = 0x2003
)

// tlvTypeManagement is the TLV type tag for a MANAGEMENT TLV, Table 52.
const tlvTypeManagement uint16 = 0x0001

// header is the common PTP message header, Table 35.
type header struct {
	SdoIDAndMsgType    uint8
	VersionPTP         uint8
	MessageLength      uint16
	DomainNumber       uint8
	Reserved0          uint8
	FlagField          uint16
	CorrectionField    int64
	Reserved1          uint32
	SourcePortIdentity PortIdentity
	SequenceID         uint16
	ControlField       uint8
	LogMessageInterval int8
}

const headerSize = 34

// managementMsgHead follows header in every management message, Table 69.
type managementMsgHead struct {
	TargetPortIdentity   PortIdentity
	StartingBoundaryHops uint8
	BoundaryHops         uint8
	ActionField          uint8
	Reserved             uint8
}

const managementMsgHeadSize = 14

func (m managementMsgHead) action() Action { return Action(m.ActionField & 0x0f) }

// managementTLVHead precedes every management TLV's payload.
type managementTLVHead struct {
	TLVType     uint16
	LengthField uint16
	ID          ManagementID
}

const managementTLVHeadSize = 6

// portDataSetPayload is PORT_DATA_SET, Table 78, followed by one reserved
// byte. The client only consults PortState.
type portDataSetPayload struct {
	PortIdentity           PortIdentity
	PortState              uint8
	LogMinDelayReqInterval int8
	PeerMeanPathDelay      int64
	LogAnnounceInterval    int8
	AnnounceReceiptTimeout uint8
	LogSyncInterval        int8
	DelayMechanism         uint8
	LogMinPdelayReqInterval int8
	VersionNumber          uint8
	Reserved               uint8
}

// Time-properties flag bits, Table 37.
const (
	flagLeap61 uint8 = 1 << 0
	flagLeap59 uint8 = 1 << 1
)

// timePropertiesDataSetPayload is TIME_PROPERTIES_DATA_SET, Table 80.
type timePropertiesDataSetPayload struct {
	CurrentUTCOffset int16
	Flags            uint8
	TimeSource       uint8
	Pad              uint16
}

// message is a fully decoded management message: header, management head,
// TLV head, and (for responses) a concrete payload.
type message struct {
	header
	managementMsgHead
	managementTLVHead
	PortDataSet           *portDataSetPayload
	TimePropertiesDataSet *timePropertiesDataSetPayload
}

// buildRequest constructs a GET request for the given data set id.
func buildRequest(id ManagementID, sequence uint16, source PortIdentity) message {
	return message{
		header: header{
			SdoIDAndMsgType: managementMessageType,
			VersionPTP:      ptpVersion,
			MessageLength:   headerSize + managementMsgHeadSize + managementTLVHeadSize,
			SourcePortIdentity: source,
			SequenceID:      sequence,
			ControlField:    0,
		},
		managementMsgHead: managementMsgHead{
			TargetPortIdentity:   PortIdentity{ClockIdentity: 0xffffffffffffffff, PortNumber: 0xffff},
			StartingBoundaryHops: 1,
			BoundaryHops:         1,
			ActionField:          uint8(ActionGet),
		},
		managementTLVHead: managementTLVHead{
			TLVType:     tlvTypeManagement,
			LengthField: 2, // ManagementID only, no data field
			ID:          id,
		},
	}
}

// marshal serializes a GET request to bytes.
func (m message) marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	for _, v := range []any{m.header, m.managementMsgHead, m.managementTLVHead} {
		if err := binary.Write(buf, binary.BigEndian, v); err != nil {
			return nil, fmt.Errorf("marshaling management request: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// unmarshal decodes a raw management message received from the transport.
func unmarshal(raw []byte) (*message, error) {
	r := bytes.NewReader(raw)
	m := &message{}
	if err := binary.Read(r, binary.BigEndian, &m.header); err != nil {
		return nil, fmt.Errorf("decoding header: %w", err)
	}
	if m.header.SdoIDAndMsgType != managementMessageType {
		return nil, fmt.Errorf("not a management message: type %#x", m.header.SdoIDAndMsgType)
	}
	if err := binary.Read(r, binary.BigEndian, &m.managementMsgHead); err != nil {
		return nil, fmt.Errorf("decoding management head: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &m.managementTLVHead); err != nil {
		return nil, fmt.Errorf("decoding management TLV head: %w", err)
	}
	if m.managementTLVHead.TLVType != tlvTypeManagement {
		return nil, fmt.Errorf("unexpected TLV type %#x, want MANAGEMENT", m.managementTLVHead.TLVType)
	}

	switch m.managementTLVHead.ID {
	case IDPortDataSet:
		var p portDataSetPayload
		if err := binary.Read(r, binary.BigEndian, &p); err != nil {
			return nil, fmt.Errorf("decoding PORT_DATA_SET: %w", err)
		}
		m.PortDataSet = &p
	case IDTimePropertiesDataSet:
		var p timePropertiesDataSetPayload
		if err := binary.Read(r, binary.BigEndian, &p); err != nil {
			return nil, fmt.Errorf("decoding TIME_PROPERTIES_DATA_SET: %w", err)
		}
		m.TimePropertiesDataSet = &p
	default:
		return nil, fmt.Errorf("unsupported management id %#x", m.managementTLVHead.ID)
	}
	return m, nil
}

// BuildTimePropertiesResponseForTest crafts the raw bytes of a
// TIME_PROPERTIES_DATA_SET management response, for tests in other
// packages that drive a Client against a real transport without a live
// external daemon. leapDirection is -1, 0, or +1.
func BuildTimePropertiesResponseForTest(sequence uint16, currentUTCOffset int16, leapDirection int) []byte {
	resp := buildRequest(IDTimePropertiesDataSet, sequence, PortIdentity{})
	resp.managementMsgHead.ActionField = uint8(ActionResponse)

	var flags uint8
	switch {
	case leapDirection > 0:
		flags = flagLeap61
	case leapDirection < 0:
		flags = flagLeap59
	}
	payload := timePropertiesDataSetPayload{CurrentUTCOffset: currentUTCOffset, Flags: flags}

	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, resp.header)
	_ = binary.Write(buf, binary.BigEndian, resp.managementMsgHead)
	_ = binary.Write(buf, binary.BigEndian, resp.managementTLVHead)
	_ = binary.Write(buf, binary.BigEndian, payload)
	return buf.Bytes()
}
