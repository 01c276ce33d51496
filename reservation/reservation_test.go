package reservation

import (
	"net"
	"testing"
)

func TestBurstRate(t *testing.T) {
	tests := []struct {
		name     string
		size     uint32
		interval uint32
		want     uint64
	}{
		{name: "OneFramePerMillisecond", size: 1500, interval: 1000, want: 12000000},
		{name: "RoundsUp", size: 1, interval: 3, want: 2666667},
		{name: "ZeroInterval", size: 1500, interval: 0, want: 0},
		{name: "OneSecondWindow", size: 125000, interval: 1000000, want: 1000000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Reservation{BurstSize: tt.size, BurstInterval: tt.interval}
			if got := r.BurstRate(); got != tt.want {
				t.Fatalf("BurstRate(%d B / %d us) = %d, want %d", tt.size, tt.interval, got, tt.want)
			}
		})
	}
}

func TestKeyIgnoresListener(t *testing.T) {
	a := sampleReservation()
	b := sampleReservation()
	b.DstIP = net.IPv4(10, 0, 0, 99).To4()

	if a.Key() != b.Key() {
		t.Fatalf("keys differ for the same stream: %v vs %v", a.Key(), b.Key())
	}

	c := sampleReservation()
	c.SrcPort++
	if a.Key() == c.Key() {
		t.Fatalf("keys match for distinct streams")
	}
}

func TestStreamHashTracksShape(t *testing.T) {
	a := sampleReservation()
	b := sampleReservation()
	if a.StreamHash() != b.StreamHash() {
		t.Fatalf("identical reservations hash differently")
	}

	b.BurstInterval = 500
	if a.StreamHash() == b.StreamHash() {
		t.Fatalf("changed burst interval not reflected in stream hash")
	}

	// The listener address is neither identity nor shape.
	c := sampleReservation()
	c.DstIP = net.IPv4(192, 168, 1, 1).To4()
	if a.StreamHash() != c.StreamHash() {
		t.Fatalf("listener address must not change the stream hash")
	}
}

func TestCopyDoesNotAlias(t *testing.T) {
	a := sampleReservation()
	b := a.Copy()
	b.AccMaxDelay = 999
	b.SrcIP[0] = 99

	if a.AccMaxDelay == 999 || a.SrcIP[0] == 99 {
		t.Fatalf("copy aliases the original: %+v", a)
	}
}
