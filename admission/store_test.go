package admission

import (
	"net"
	"testing"

	"github.com/tsnworks/tsnctl/reservation"
)

func testStream(srcOctet byte, srcPort uint16) reservation.Reservation {
	return reservation.Reservation{
		ReqLatency:    5000,
		Priority:      7,
		SrcIP:         net.IPv4(10, 0, 0, srcOctet).To4(),
		DstIP:         net.IPv4(0, 0, 0, 0).To4(),
		SrcPort:       srcPort,
		DstPort:       5005,
		MinFrame:      100,
		MaxFrame:      1500,
		BurstSize:     1500,
		BurstInterval: 1000,
	}
}

func TestStoreAdvertLifecycle(t *testing.T) {
	s := NewStore()
	adv := testStream(1, 5004)

	if _, ok := s.Advert(adv.Key()); ok {
		t.Fatalf("empty store claims to know the stream")
	}

	flood := adv.Copy()
	flood.AccMaxDelay = 500
	s.StoreAdvert(adv, flood, 3)

	entry, ok := s.Advert(adv.Key())
	if !ok {
		t.Fatalf("stored advertisement not found")
	}
	if entry.InPort != 3 || entry.FloodCopy.AccMaxDelay != 500 || entry.Advert.AccMaxDelay != 0 {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	s.EvictAdvert(adv.Key())
	if _, ok := s.Advert(adv.Key()); ok {
		t.Fatalf("evicted advertisement still present")
	}
}

func TestAddSubscriptionIsIdempotent(t *testing.T) {
	s := NewStore()
	stream := testStream(1, 5004)
	listener := net.IPv4(10, 0, 0, 9).To4()

	sub := Subscription{Stream: stream, Listener: listener}
	s.AddSubscription(2, sub, 243)
	s.AddSubscription(2, sub, 243)

	if got := len(s.PortSubscriptions(2)); got != 1 {
		t.Fatalf("expected 1 subscription on port 2, got %d", got)
	}
	if wcd, ok := s.Delay(stream.Key(), listener); !ok || wcd != 243 {
		t.Fatalf("expected cached delay 243, got %d (present=%v)", wcd, ok)
	}
}

func TestSameStreamDistinctListeners(t *testing.T) {
	s := NewStore()
	stream := testStream(1, 5004)
	a := net.IPv4(10, 0, 0, 9).To4()
	b := net.IPv4(10, 0, 0, 10).To4()

	s.AddSubscription(2, Subscription{Stream: stream, Listener: a}, 243)
	s.AddSubscription(4, Subscription{Stream: stream, Listener: b}, 243)

	if len(s.PortSubscriptions(2)) != 1 || len(s.PortSubscriptions(4)) != 1 {
		t.Fatalf("subscriptions not kept per port")
	}
	if _, ok := s.Delay(stream.Key(), a); !ok {
		t.Fatalf("missing cached delay for first listener")
	}
	if _, ok := s.Delay(stream.Key(), b); !ok {
		t.Fatalf("missing cached delay for second listener")
	}
}

func TestPortSubscriptionsStableOrder(t *testing.T) {
	s := NewStore()
	var want []uint16
	for i := 0; i < 8; i++ {
		port := uint16(5100 + i)
		stream := testStream(byte(i+1), port)
		s.AddSubscription(2, Subscription{Stream: stream, Listener: net.IPv4(10, 0, 1, byte(i)).To4()}, 100)
		want = append(want, port)
	}

	for run := 0; run < 3; run++ {
		subs := s.PortSubscriptions(2)
		for i, sub := range subs {
			if sub.Stream.SrcPort != want[i] {
				t.Fatalf("iteration order changed at %d: got %d, want %d", i, sub.Stream.SrcPort, want[i])
			}
		}
	}
}
