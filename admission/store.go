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
	"fmt"
	"net"

	gocache "github.com/patrickmn/go-cache"

	"github.com/tsnworks/tsnctl/reservation"
)

// AdvertEntry is everything the controller keeps per advertised stream.
type AdvertEntry struct {
	Advert    reservation.Reservation // as received from the talker side
	FloodCopy reservation.Reservation // delay-updated copy that is flooded
	InPort    uint16                  // port the advertisement first arrived on
}

// Subscription pairs an admitted stream with the listener it serves. One
// stream may appear several times on a port, once per listener.
type Subscription struct {
	Stream   reservation.Reservation
	Listener net.IP
}

func (s Subscription) cacheKey() string {
	return delayKey(s.Stream.Key(), s.Listener)
}

func delayKey(k reservation.Key, listener net.IP) string {
	return fmt.Sprintf("%s|%s", k, listener)
}

// Store owns the controller's reservation state: the advertised-streams map,
// the per-port subscription sets and the worst-case delay cache. It is
// mutated only from the dispatcher's event-handler path and needs no locking
// of its own.
type Store struct {
	adverts map[reservation.Key]*AdvertEntry
	subs    map[uint16][]Subscription
	delays  *gocache.Cache // (stream key, listener) -> uint32 µs
}

// NewStore returns an empty store. Entries live for the process lifetime;
// there is no tear-down primitive.
func NewStore() *Store {
	return &Store{
		adverts: make(map[reservation.Key]*AdvertEntry),
		subs:    make(map[uint16][]Subscription),
		delays:  gocache.New(gocache.NoExpiration, 0),
	}
}

// Advert looks up the stored advertisement for a stream key.
func (s *Store) Advert(k reservation.Key) (*AdvertEntry, bool) {
	e, ok := s.adverts[k]
	return e, ok
}

// StoreAdvert records a new advertisement together with its flood copy and
// ingress port, replacing any previous entry for the same key.
func (s *Store) StoreAdvert(advert, flood reservation.Reservation, inPort uint16) {
	s.adverts[advert.Key()] = &AdvertEntry{
		Advert:    advert,
		FloodCopy: flood,
		InPort:    inPort,
	}
}

// EvictAdvert drops the entry for a key, if any.
func (s *Store) EvictAdvert(k reservation.Key) {
	delete(s.adverts, k)
}

// AdvertCount reports how many streams are currently advertised.
func (s *Store) AdvertCount() int {
	return len(s.adverts)
}

// PortSubscriptions returns the subscriptions deployed on an egress port in
// insertion order. The returned slice is the store's own; callers must not
// mutate it.
func (s *Store) PortSubscriptions(port uint16) []Subscription {
	return s.subs[port]
}

// AddSubscription inserts sub into the port's set and writes its worst-case
// delay in the same step, so the cache invariant holds for every member at
// all times. Re-adding the same (stream, listener) pair only refreshes the
// cached delay.
func (s *Store) AddSubscription(port uint16, sub Subscription, wcd uint32) {
	for _, existing := range s.subs[port] {
		if existing.cacheKey() == sub.cacheKey() {
			s.delays.Set(sub.cacheKey(), wcd, gocache.NoExpiration)
			return
		}
	}
	s.subs[port] = append(s.subs[port], sub)
	s.delays.Set(sub.cacheKey(), wcd, gocache.NoExpiration)
}

// Delay returns the cached worst-case delay of a deployed subscription.
func (s *Store) Delay(k reservation.Key, listener net.IP) (uint32, bool) {
	v, ok := s.delays.Get(delayKey(k, listener))
	if !ok {
		return 0, false
	}
	return v.(uint32), true
}

// SetDelay overwrites a cached worst-case delay. Only the admission commit
// path may call this.
func (s *Store) SetDelay(k reservation.Key, listener net.IP, wcd uint32) {
	s.delays.Set(delayKey(k, listener), wcd, gocache.NoExpiration)
}
