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

package reservation

import (
	"encoding/binary"
	"net"

	"github.com/pkg/errors"
)

// PDULen is the exact size of a reservation PDU on the wire: a one byte
// status followed by twelve big-endian fields, no padding, no variable part.
const PDULen = 45

// Field offsets inside the PDU.
const (
	offStatus        = 0
	offReqLatency    = 1
	offPriority      = 5
	offSrcIP         = 9
	offDstIP         = 13
	offSrcPort       = 17
	offDstPort       = 19
	offMinFrame      = 21
	offMaxFrame      = 25
	offBurstSize     = 29
	offBurstInterval = 33
	offAccMinDelay   = 37
	offAccMaxDelay   = 41
)

var (
	// ErrMalformedPDU is returned when a frame cannot be a reservation PDU.
	ErrMalformedPDU = errors.New("malformed reservation PDU")
	// ErrBadStatus is returned when the status byte is outside {0,1,2}.
	ErrBadStatus = errors.New("bad reservation status")
)

// Encode serializes r as a PDU with the given status byte. Encoding is total:
// every reservation value has a wire form.
func Encode(r *Reservation, status Status) []byte {
	b := make([]byte, PDULen)
	b[offStatus] = byte(status)
	binary.BigEndian.PutUint32(b[offReqLatency:], r.ReqLatency)
	binary.BigEndian.PutUint32(b[offPriority:], r.Priority)
	copy(b[offSrcIP:], ipv4Bytes(r.SrcIP))
	copy(b[offDstIP:], ipv4Bytes(r.DstIP))
	binary.BigEndian.PutUint16(b[offSrcPort:], r.SrcPort)
	binary.BigEndian.PutUint16(b[offDstPort:], r.DstPort)
	binary.BigEndian.PutUint32(b[offMinFrame:], r.MinFrame)
	binary.BigEndian.PutUint32(b[offMaxFrame:], r.MaxFrame)
	binary.BigEndian.PutUint32(b[offBurstSize:], r.BurstSize)
	binary.BigEndian.PutUint32(b[offBurstInterval:], r.BurstInterval)
	binary.BigEndian.PutUint32(b[offAccMinDelay:], r.AccMinDelay)
	binary.BigEndian.PutUint32(b[offAccMaxDelay:], r.AccMaxDelay)
	return b
}

// Decode parses a PDU. Any length other than PDULen fails as ErrMalformedPDU;
// a status byte outside {0,1,2} fails as ErrBadStatus.
func Decode(b []byte) (Status, Reservation, error) {
	var r Reservation
	if len(b) != PDULen {
		return 0, r, errors.Wrapf(ErrMalformedPDU, "length %d", len(b))
	}
	status := Status(b[offStatus])
	switch status {
	case StatusAdvertisement, StatusSubscription, StatusAcknowledgement:
	default:
		return 0, r, errors.Wrapf(ErrBadStatus, "status %d", b[offStatus])
	}
	r.ReqLatency = binary.BigEndian.Uint32(b[offReqLatency:])
	r.Priority = binary.BigEndian.Uint32(b[offPriority:])
	r.SrcIP = net.IPv4(b[offSrcIP], b[offSrcIP+1], b[offSrcIP+2], b[offSrcIP+3]).To4()
	r.DstIP = net.IPv4(b[offDstIP], b[offDstIP+1], b[offDstIP+2], b[offDstIP+3]).To4()
	r.SrcPort = binary.BigEndian.Uint16(b[offSrcPort:])
	r.DstPort = binary.BigEndian.Uint16(b[offDstPort:])
	r.MinFrame = binary.BigEndian.Uint32(b[offMinFrame:])
	r.MaxFrame = binary.BigEndian.Uint32(b[offMaxFrame:])
	r.BurstSize = binary.BigEndian.Uint32(b[offBurstSize:])
	r.BurstInterval = binary.BigEndian.Uint32(b[offBurstInterval:])
	r.AccMinDelay = binary.BigEndian.Uint32(b[offAccMinDelay:])
	r.AccMaxDelay = binary.BigEndian.Uint32(b[offAccMaxDelay:])
	return status, r, nil
}

// ipv4Bytes maps nil and non-v4 addresses to 0.0.0.0 so Encode stays total.
func ipv4Bytes(ip net.IP) []byte {
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return []byte{0, 0, 0, 0}
}
