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

// Package admission decides whether a stream subscription can be deployed on
// an egress port without breaking the delay guarantee of any stream already
// admitted there. The interference bounds assume a single strict-priority
// scheduled switch.
package admission

import "github.com/tsnworks/tsnctl/reservation"

// maxWireFrame is the largest frame a lower-priority class can have started
// transmitting when a burst arrives, in bytes on the wire.
const maxWireFrame = 1530

// DefaultClassDelay is the per-hop queuing delay budget in microseconds
// allotted to each admissible traffic class.
var DefaultClassDelay = map[uint32]uint32{
	7: 500,
	6: 1000,
	5: 2000,
	4: 5000,
}

// Calculus evaluates worst-case queuing delays on one egress port.
// All results are microseconds and all divisions round toward +inf.
type Calculus struct {
	LinkSpeed  uint64            // bit/s, identical for all ports
	ClassDelay map[uint32]uint32 // priority -> local delay budget, µs
}

// ceilDiv returns ceil(n/d) for d > 0, rounding toward +inf also for
// negative numerators.
func ceilDiv(n, d int64) int64 {
	q := n / d
	if n%d > 0 {
		q++
	}
	return q
}

// dMax is the cumulative worst-case delay of x after this hop: the delay
// accumulated on the advertisement plus this hop's class budget.
func (c Calculus) dMax(x *reservation.Reservation) int64 {
	return int64(x.AccMaxDelay) + int64(c.ClassDelay[x.Priority])
}

// transmission converts bursts-on-the-wire into microseconds: n bursts of
// size bytes each, serialized at LinkSpeed.
func (c Calculus) transmission(bursts int64, size uint32) uint32 {
	if bursts <= 0 {
		return 0
	}
	us := ceilDiv(bursts*int64(size)*8*1000000, int64(c.LinkSpeed))
	return uint32(us)
}

// HigherPrioDelay bounds the queuing delay a higher-priority interferer x
// imposes on an observed lower-priority stream i: the number of bursts x can
// emit while a frame of i is in flight through this hop, serialized on the
// link.
func (c Calculus) HigherPrioDelay(x, i *reservation.Reservation) uint32 {
	y := ceilDiv(
		c.dMax(x)-int64(i.AccMinDelay)+int64(c.ClassDelay[i.Priority]),
		int64(x.BurstInterval),
	)
	return c.transmission(y, x.BurstSize)
}

// EqualPrioDelay bounds the queuing delay a stream x imposes on any stream of
// the same class, including itself: the number of bursts of x that can pile
// up within x's own delay spread.
func (c Calculus) EqualPrioDelay(x *reservation.Reservation) uint32 {
	z := ceilDiv(c.dMax(x)-int64(x.AccMinDelay), int64(x.BurstInterval))
	return c.transmission(z, x.BurstSize)
}

// LowBlockingDelay is the one-time blocking term for a maximum-size
// lower-priority frame that already occupies the link when a burst arrives.
func (c Calculus) LowBlockingDelay() uint32 {
	return c.transmission(1, maxWireFrame)
}

// WorstCaseDelay computes the worst-case queuing delay of stream i on a port
// carrying the given interferers. The slice must not contain i itself; i's
// own equal-priority term is always included. Strictly lower classes
// contribute nothing beyond the single blocking term.
func (c Calculus) WorstCaseDelay(i *reservation.Reservation, onPort []*reservation.Reservation) uint32 {
	wcd := c.LowBlockingDelay() + c.EqualPrioDelay(i)
	for _, x := range onPort {
		switch {
		case x.Priority > i.Priority:
			wcd += c.HigherPrioDelay(x, i)
		case x.Priority == i.Priority:
			wcd += c.EqualPrioDelay(x)
		}
	}
	return wcd
}
