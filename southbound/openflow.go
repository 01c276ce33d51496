// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package southbound speaks OpenFlow 1.0 to the switch and runs the
// reservation-protocol event loop on top of it. Only the message subset the
// controller needs is implemented: the handshake, flow-table modification,
// packet punting and packet emission.
package southbound

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// ofpVersion is the OpenFlow protocol version spoken on the control channel.
const ofpVersion = 0x01

// headerLen is the fixed OpenFlow message header size.
const headerLen = 8

// maxMessageLen guards the framing loop against absurd length fields.
const maxMessageLen = 1 << 16

// OpenFlow 1.0 message types.
const (
	typeHello           = 0
	typeError           = 1
	typeEchoRequest     = 2
	typeEchoReply       = 3
	typeFeaturesRequest = 5
	typeFeaturesReply   = 6
	typePacketIn        = 10
	typePacketOut       = 13
	typeFlowMod         = 14
)

// Special port numbers and buffer ids.
const (
	// PortFlood emits a packet on every port except its ingress port.
	PortFlood = 0xfffb
	// PortController punts a matched packet to the controller.
	PortController = 0xfffd
	// PortNone marks "no port", used as the in_port of crafted packets.
	PortNone = 0xffff
	// NoBuffer tells the switch the full packet travels with the message.
	NoBuffer = 0xffffffff
)

// Flow-mod commands.
const (
	flowModAdd    = 0
	flowModDelete = 3
)

// defaultRulePriority is the standard flow priority for installed rules.
const defaultRulePriority = 0x8000

// Match wildcard bits. A set bit means the field is not matched.
const (
	wildcardInPort  = 1 << 0
	wildcardDlVlan  = 1 << 1
	wildcardDlSrc   = 1 << 2
	wildcardDlDst   = 1 << 3
	wildcardDlType  = 1 << 4
	wildcardNwProto = 1 << 5
	wildcardTpSrc   = 1 << 6
	wildcardTpDst   = 1 << 7
	wildcardAll     = (1 << 22) - 1
)

var errShortMessage = errors.New("short OpenFlow message")

// Match is the 40-byte OpenFlow 1.0 flow match structure.
type Match struct {
	Wildcards uint32
	InPort    uint16
	DlSrc     [6]byte
	DlDst     [6]byte
	DlVlan    uint16
	DlVlanPcp uint8
	DlType    uint16
	NwTos     uint8
	NwProto   uint8
	NwSrc     uint32
	NwDst     uint32
	TpSrc     uint16
	TpDst     uint16
}

const matchLen = 40

func (m *Match) marshal(b []byte) {
	binary.BigEndian.PutUint32(b[0:], m.Wildcards)
	binary.BigEndian.PutUint16(b[4:], m.InPort)
	copy(b[6:12], m.DlSrc[:])
	copy(b[12:18], m.DlDst[:])
	binary.BigEndian.PutUint16(b[18:], m.DlVlan)
	b[20] = m.DlVlanPcp
	// b[21] is padding
	binary.BigEndian.PutUint16(b[22:], m.DlType)
	b[24] = m.NwTos
	b[25] = m.NwProto
	// b[26:28] is padding
	binary.BigEndian.PutUint32(b[28:], m.NwSrc)
	binary.BigEndian.PutUint32(b[32:], m.NwDst)
	binary.BigEndian.PutUint16(b[36:], m.TpSrc)
	binary.BigEndian.PutUint16(b[38:], m.TpDst)
}

// matchAll wildcards every field, as used by the flow-table purge.
func matchAll() Match {
	return Match{Wildcards: wildcardAll}
}

// matchReservationFrames matches the reservation control traffic:
// IPv4, UDP, destination port 1000, everything else wildcarded.
func matchReservationFrames(udpDst uint16) Match {
	return Match{
		Wildcards: wildcardAll &^ (wildcardDlType | wildcardNwProto | wildcardTpDst),
		DlType:    0x0800,
		NwProto:   17,
		TpDst:     udpDst,
	}
}

// outputAction is the single OpenFlow action kind the controller emits.
type outputAction struct {
	Port   uint16
	MaxLen uint16
}

const actionOutputLen = 8

func (a outputAction) marshal(b []byte) {
	binary.BigEndian.PutUint16(b[0:], 0) // OFPAT_OUTPUT
	binary.BigEndian.PutUint16(b[2:], actionOutputLen)
	binary.BigEndian.PutUint16(b[4:], a.Port)
	binary.BigEndian.PutUint16(b[6:], a.MaxLen)
}

// putHeader writes the fixed OpenFlow header into b.
func putHeader(b []byte, msgType uint8, length int, xid uint32) {
	b[0] = ofpVersion
	b[1] = msgType
	binary.BigEndian.PutUint16(b[2:], uint16(length))
	binary.BigEndian.PutUint32(b[4:], xid)
}

// encodeHello builds a HELLO message.
func encodeHello(xid uint32) []byte {
	b := make([]byte, headerLen)
	putHeader(b, typeHello, headerLen, xid)
	return b
}

// encodeEchoReply mirrors an echo request's payload back to the switch.
func encodeEchoReply(xid uint32, payload []byte) []byte {
	b := make([]byte, headerLen+len(payload))
	putHeader(b, typeEchoReply, len(b), xid)
	copy(b[headerLen:], payload)
	return b
}

// encodeFeaturesRequest builds a FEATURES_REQUEST message.
func encodeFeaturesRequest(xid uint32) []byte {
	b := make([]byte, headerLen)
	putHeader(b, typeFeaturesRequest, headerLen, xid)
	return b
}

// flowMod is the subset of OFPT_FLOW_MOD the controller sends.
type flowMod struct {
	Match    Match
	Command  uint16
	Priority uint16
	OutPort  uint16
	Actions  []outputAction
}

func (f *flowMod) encode(xid uint32) []byte {
	length := headerLen + matchLen + 24 + len(f.Actions)*actionOutputLen
	b := make([]byte, length)
	putHeader(b, typeFlowMod, length, xid)
	f.Match.marshal(b[headerLen:])
	body := b[headerLen+matchLen:]
	// cookie (8 bytes) stays zero
	binary.BigEndian.PutUint16(body[8:], f.Command)
	// idle_timeout and hard_timeout stay zero: entries are permanent
	binary.BigEndian.PutUint16(body[14:], f.Priority)
	binary.BigEndian.PutUint32(body[16:], NoBuffer)
	binary.BigEndian.PutUint16(body[20:], f.OutPort)
	// flags stay zero
	for i, a := range f.Actions {
		a.marshal(body[24+i*actionOutputLen:])
	}
	return b
}

// packetOut is the subset of OFPT_PACKET_OUT the controller sends: always a
// full packet payload, never a switch buffer reference.
type packetOut struct {
	InPort  uint16
	Actions []outputAction
	Data    []byte
}

func (p *packetOut) encode(xid uint32) []byte {
	actionsLen := len(p.Actions) * actionOutputLen
	length := headerLen + 8 + actionsLen + len(p.Data)
	b := make([]byte, length)
	putHeader(b, typePacketOut, length, xid)
	body := b[headerLen:]
	binary.BigEndian.PutUint32(body[0:], NoBuffer)
	binary.BigEndian.PutUint16(body[4:], p.InPort)
	binary.BigEndian.PutUint16(body[6:], uint16(actionsLen))
	for i, a := range p.Actions {
		a.marshal(body[8+i*actionOutputLen:])
	}
	copy(body[8+actionsLen:], p.Data)
	return b
}

// PacketIn is a punted packet as delivered by the switch.
type PacketIn struct {
	BufferID uint32
	TotalLen uint16
	InPort   uint16
	Reason   uint8
	Data     []byte
}

// parsePacketIn decodes the body (everything after the header) of an
// OFPT_PACKET_IN message.
func parsePacketIn(body []byte) (*PacketIn, error) {
	if len(body) < 10 {
		return nil, errors.Wrapf(errShortMessage, "packet-in body %d bytes", len(body))
	}
	return &PacketIn{
		BufferID: binary.BigEndian.Uint32(body[0:]),
		TotalLen: binary.BigEndian.Uint16(body[4:]),
		InPort:   binary.BigEndian.Uint16(body[6:]),
		Reason:   body[8],
		Data:     body[10:],
	}, nil
}

// FeaturesReply carries the switch identity from the handshake.
type FeaturesReply struct {
	DatapathID uint64
}

func parseFeaturesReply(body []byte) (*FeaturesReply, error) {
	if len(body) < 8 {
		return nil, errors.Wrapf(errShortMessage, "features-reply body %d bytes", len(body))
	}
	return &FeaturesReply{DatapathID: binary.BigEndian.Uint64(body[0:])}, nil
}

// message is one framed OpenFlow message.
type message struct {
	Type uint8
	XID  uint32
	Body []byte
}

// readMessage reads exactly one length-framed message from the channel.
func readMessage(r io.Reader) (*message, error) {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	if hdr[0] != ofpVersion {
		return nil, errors.Errorf("unsupported OpenFlow version 0x%02x", hdr[0])
	}
	length := int(binary.BigEndian.Uint16(hdr[2:]))
	if length < headerLen || length > maxMessageLen {
		return nil, errors.Errorf("invalid OpenFlow message length %d", length)
	}
	body := make([]byte, length-headerLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return &message{
		Type: hdr[1],
		XID:  binary.BigEndian.Uint32(hdr[4:]),
		Body: body,
	}, nil
}
