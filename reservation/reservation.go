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

// Package reservation defines the stream reservation record exchanged between
// talkers, listeners and the controller, together with its fixed-size wire
// encoding. All delay quantities are microseconds, all sizes are bytes on the
// wire and all rates are bit/s.
package reservation

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"net"
)

// Status discriminates the role of a reservation frame.
type Status uint8

const (
	// StatusAdvertisement marks a talker-originated frame flooded hop by hop.
	StatusAdvertisement Status = 0
	// StatusSubscription marks a listener-originated admission request.
	StatusSubscription Status = 1
	// StatusAcknowledgement marks the talker's end-to-end confirmation.
	StatusAcknowledgement Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusAdvertisement:
		return "advertisement"
	case StatusSubscription:
		return "subscription"
	case StatusAcknowledgement:
		return "acknowledgement"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Key identifies a stream across frame types. Two reservations describe the
// same stream iff their keys are equal; the listener address is deliberately
// not part of the identity.
type Key struct {
	SrcIP   string
	SrcPort uint16
	DstPort uint16
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d->:%d", k.SrcIP, k.SrcPort, k.DstPort)
}

// Reservation is the canonical record of an advertised stream or of a
// subscription to one.
type Reservation struct {
	ReqLatency    uint32 // required end-to-end upper bound, µs
	Priority      uint32 // 802.1p class, {4,5,6,7} for admissible streams
	SrcIP         net.IP
	DstIP         net.IP // listener address, 0.0.0.0 in advertisements
	SrcPort       uint16
	DstPort       uint16
	MinFrame      uint32 // smallest frame on the wire, bytes
	MaxFrame      uint32 // largest frame on the wire, bytes
	BurstSize     uint32 // bytes emitted per burst
	BurstInterval uint32 // window in which at most BurstSize bytes are sent, µs
	AccMinDelay   uint32 // cumulative best-case delay so far, µs
	AccMaxDelay   uint32 // cumulative worst-case delay so far, µs
}

// Key returns the stream identity triple.
func (r *Reservation) Key() Key {
	return Key{SrcIP: r.SrcIP.String(), SrcPort: r.SrcPort, DstPort: r.DstPort}
}

// BurstRate derives the stream's rate in bit/s: BurstSize bytes within a
// BurstInterval microsecond window, rounded up.
func (r *Reservation) BurstRate() uint64 {
	if r.BurstInterval == 0 {
		return 0
	}
	bits := uint64(r.BurstSize) * 8 * 1000000
	tau := uint64(r.BurstInterval)
	return (bits + tau - 1) / tau
}

// StreamHash digests every traffic-shape field so a re-advertisement with
// changed parameters can be told apart from a plain re-flood of a known one.
// The identity triple is not included; that is what Key is for.
func (r *Reservation) StreamHash() uint64 {
	h := fnv.New64a()
	var buf [32]byte
	binary.BigEndian.PutUint32(buf[0:], r.ReqLatency)
	binary.BigEndian.PutUint32(buf[4:], r.Priority)
	binary.BigEndian.PutUint32(buf[8:], r.MinFrame)
	binary.BigEndian.PutUint32(buf[12:], r.MaxFrame)
	binary.BigEndian.PutUint32(buf[16:], r.BurstSize)
	binary.BigEndian.PutUint32(buf[20:], r.BurstInterval)
	binary.BigEndian.PutUint32(buf[24:], r.AccMinDelay)
	binary.BigEndian.PutUint32(buf[28:], r.AccMaxDelay)
	h.Write(buf[:])
	return h.Sum64()
}

// Copy returns an independent value; the acc delay fields of flood copies are
// rewritten and must not alias the stored original.
func (r *Reservation) Copy() Reservation {
	c := *r
	c.SrcIP = append(net.IP(nil), r.SrcIP...)
	c.DstIP = append(net.IP(nil), r.DstIP...)
	return c
}

// Signature is a short operator-facing identification of the stream.
func (r *Reservation) Signature() string {
	return fmt.Sprintf("%s:%d -> %s:%d (%d)",
		r.SrcIP, r.SrcPort, r.DstIP, r.DstPort, r.Priority)
}

func (r *Reservation) String() string {
	return fmt.Sprintf("stream %s:%d -> %s:%d, %d B <= frame <= %d B, %d bit/s, %d us <= acc delay <= %d us, required latency %d us",
		r.SrcIP, r.SrcPort, r.DstIP, r.DstPort,
		r.MinFrame, r.MaxFrame, r.BurstRate(),
		r.AccMinDelay, r.AccMaxDelay, r.ReqLatency)
}
