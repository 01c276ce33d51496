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

package admission

import (
	"net"

	"github.com/pkg/errors"

	"github.com/tsnworks/tsnctl/reservation"
)

var (
	// ErrLatencyViolation rejects an advertisement whose accumulated
	// worst-case delay plus this hop's budget exceeds the required latency.
	ErrLatencyViolation = errors.New("end-to-end latency requirement violated")
	// ErrBandwidthExceeded rejects a subscription that would push the summed
	// burst rates on the egress port over the link speed.
	ErrBandwidthExceeded = errors.New("egress bandwidth exceeded")
	// ErrDelayViolation rejects a subscription that would push a cached
	// worst-case delay, its own included, over the class budget.
	ErrDelayViolation = errors.New("delay guarantee violated")
	// ErrUnknownStream rejects a subscription for a stream that was never
	// advertised; without the advertisement there is no ingress port to
	// forward to and no delay history to compute with.
	ErrUnknownStream = errors.New("subscription for unadvertised stream")
	// ErrUnknownPriority rejects a reservation outside the admissible
	// classes; no delay budget exists for it.
	ErrUnknownPriority = errors.New("no delay budget for priority class")
)

// AdvertOutcome describes what Advertise did with an incoming advertisement.
type AdvertOutcome int

const (
	// AdvertStored means the stream was unknown and has been recorded.
	AdvertStored AdvertOutcome = iota
	// AdvertReplaced means a known stream re-advertised with a changed shape
	// and its entry was rebuilt.
	AdvertReplaced
	// AdvertUnchanged means a byte-identical re-advertisement; the stored
	// flood copy is returned for re-flooding and nothing was mutated.
	AdvertUnchanged
)

// Engine combines the delay calculus with the reservation store to decide
// admission. It implements the two halves of an all-or-nothing commit:
// Evaluate performs every check without touching state, Commit applies a
// passed evaluation, and the switch-programming side effect runs in between.
type Engine struct {
	store *Store
	calc  Calculus
}

// NewEngine wires an engine over the given store and link parameters.
func NewEngine(store *Store, calc Calculus) *Engine {
	return &Engine{store: store, calc: calc}
}

// Calculus exposes the engine's delay parameters.
func (e *Engine) Calculus() Calculus { return e.calc }

// Advertise runs the advertisement branch: stream-hash replacement logic,
// the end-to-end latency check and the flood-copy delay updates. It returns
// the copy that must be flooded. On ErrLatencyViolation nothing is stored
// and nothing may be flooded.
func (e *Engine) Advertise(advert reservation.Reservation, inPort uint16) (reservation.Reservation, AdvertOutcome, error) {
	budget, ok := e.calc.ClassDelay[advert.Priority]
	if !ok {
		return reservation.Reservation{}, 0, errors.Wrapf(ErrUnknownPriority, "priority %d", advert.Priority)
	}
	if advert.BurstInterval == 0 {
		// The interference calculus divides by the burst interval; a stream
		// without one cannot be reasoned about and is never stored.
		return reservation.Reservation{}, 0, errors.Wrap(reservation.ErrMalformedPDU, "zero burst interval")
	}

	key := advert.Key()
	outcome := AdvertStored
	if entry, known := e.store.Advert(key); known {
		if entry.Advert.StreamHash() == advert.StreamHash() {
			return entry.FloodCopy, AdvertUnchanged, nil
		}
		// The shape changed: evict and treat the advertisement as new.
		e.store.EvictAdvert(key)
		outcome = AdvertReplaced
	}

	if uint64(budget)+uint64(advert.AccMaxDelay) > uint64(advert.ReqLatency) {
		return reservation.Reservation{}, 0, errors.Wrapf(ErrLatencyViolation,
			"%s requires %d us, already at %d us before this hop's %d us",
			advert.Signature(), advert.ReqLatency, advert.AccMaxDelay, budget)
	}

	flood := advert.Copy()
	flood.AccMinDelay += uint32(ceilDiv(int64(flood.MinFrame)*8, int64(e.calc.LinkSpeed)))
	flood.AccMaxDelay += budget

	e.store.StoreAdvert(advert, flood, inPort)
	return flood, outcome, nil
}

// delayUpdate is one deferred cache write of a passed evaluation.
type delayUpdate struct {
	key      reservation.Key
	listener net.IP
	wcd      uint32
}

// Decision is a passed evaluation, ready to commit. It captures every cache
// update and the candidate's own worst-case delay so that Commit cannot fail
// and cannot partially apply.
type Decision struct {
	sub         Subscription
	port        uint16
	advertPort  uint16
	updates     []delayUpdate
	candidateWC uint32
}

// AdvertInPort is the port the stream's advertisement arrived on; the
// admitted subscription is forwarded back out of it.
func (d *Decision) AdvertInPort() uint16 { return d.advertPort }

// WorstCaseDelay is the candidate's computed worst-case delay on the egress
// port, in microseconds.
func (d *Decision) WorstCaseDelay() uint32 { return d.candidateWC }

// Evaluate runs the admission checks for a subscription arriving on egress
// port p and, on success, returns the prepared commit. State is untouched
// regardless of the outcome.
func (e *Engine) Evaluate(sub reservation.Reservation, port uint16) (*Decision, error) {
	entry, known := e.store.Advert(sub.Key())
	if !known {
		return nil, errors.Wrapf(ErrUnknownStream, "%s", sub.Signature())
	}
	budget, ok := e.calc.ClassDelay[sub.Priority]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownPriority, "priority %d", sub.Priority)
	}

	// The calculus runs on the stored original advertisement: its delay
	// fields describe the path up to, not including, this hop.
	candidate := &entry.Advert

	existing := e.store.PortSubscriptions(port)

	// Egress bandwidth on the port.
	used := sub.BurstRate()
	for _, s := range existing {
		used += s.Stream.BurstRate()
	}
	if used > e.calc.LinkSpeed {
		return nil, errors.Wrapf(ErrBandwidthExceeded,
			"port %d: %d bit/s over %d bit/s link", port, used, e.calc.LinkSpeed)
	}

	// Deployability: the delay the candidate adds to every stream already on
	// the port must stay inside that stream's class budget.
	equalDelay := e.calc.EqualPrioDelay(candidate)
	updates := make([]delayUpdate, 0, len(existing))
	for _, s := range existing {
		cached, ok := e.store.Delay(s.Stream.Key(), s.Listener)
		if !ok {
			// Set members always carry a cache entry; a miss here is a
			// programming error, not an admission outcome.
			panic("admission: subscribed stream without cached delay")
		}

		var added uint32
		switch {
		case s.Stream.Priority == sub.Priority:
			added = equalDelay
		case s.Stream.Priority < sub.Priority:
			added = e.calc.HigherPrioDelay(candidate, e.resolve(&s.Stream))
		default:
			continue
		}

		newWC := cached + added
		if newWC > e.calc.ClassDelay[s.Stream.Priority] {
			return nil, errors.Wrapf(ErrDelayViolation,
				"port %d: %s would reach %d us over its %d us budget",
				port, s.Stream.Signature(), newWC, e.calc.ClassDelay[s.Stream.Priority])
		}
		updates = append(updates, delayUpdate{key: s.Stream.Key(), listener: s.Listener, wcd: newWC})
	}

	// The candidate itself must fit its own class budget as well.
	onPort := make([]*reservation.Reservation, 0, len(existing))
	for i := range existing {
		onPort = append(onPort, e.resolve(&existing[i].Stream))
	}
	wcd := e.calc.WorstCaseDelay(candidate, onPort)
	if wcd > budget {
		return nil, errors.Wrapf(ErrDelayViolation,
			"port %d: %s would reach %d us over its own %d us budget",
			port, sub.Signature(), wcd, budget)
	}

	return &Decision{
		sub:         Subscription{Stream: sub, Listener: sub.DstIP},
		port:        port,
		advertPort:  entry.InPort,
		updates:     updates,
		candidateWC: wcd,
	}, nil
}

// Commit applies a passed evaluation: every affected cached delay is
// rewritten, the subscription joins the port's set and its own worst-case
// delay is cached in the same step.
func (e *Engine) Commit(d *Decision) {
	for _, u := range d.updates {
		e.store.SetDelay(u.key, u.listener, u.wcd)
	}
	e.store.AddSubscription(d.port, d.sub, d.candidateWC)
}

// resolve maps a subscribed stream back to its stored original advertisement,
// whose delay fields the calculus is defined over. After a replacement the
// new advertisement is used; a subscription whose stream has no stored
// advertisement at all falls back to its own record.
func (e *Engine) resolve(stream *reservation.Reservation) *reservation.Reservation {
	if entry, ok := e.store.Advert(stream.Key()); ok {
		return &entry.Advert
	}
	return stream
}
