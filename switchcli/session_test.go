package switchcli

import (
	"bytes"
	"net"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tsnworks/tsnctl/reservation"
)

// fakeConn plays the switch side of the CLI: queued read chunks, recorded
// writes, and a timeout once the script runs dry, like a quiet switch.
type fakeConn struct {
	reads  [][]byte
	writes bytes.Buffer
}

func (f *fakeConn) Read(p []byte) (int, error) {
	if len(f.reads) == 0 {
		return 0, timeoutError{}
	}
	n := copy(p, f.reads[0])
	if n == len(f.reads[0]) {
		f.reads = f.reads[1:]
	} else {
		f.reads[0] = f.reads[0][n:]
	}
	return n, nil
}

func (f *fakeConn) Write(p []byte) (int, error) {
	return f.writes.Write(p)
}

func (f *fakeConn) SetReadDeadline(time.Time) error { return nil }

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func testSession(conn Transport) *Session {
	return NewSession(conn, "operator", "TSN", zap.NewNop())
}

func admittedStream() reservation.Reservation {
	return reservation.Reservation{
		Priority:      7,
		SrcIP:         net.IPv4(10, 0, 0, 1).To4(),
		DstIP:         net.IPv4(10, 0, 1, 9).To4(),
		SrcPort:       5004,
		DstPort:       5005,
		BurstSize:     1500,
		BurstInterval: 1000, // 12 Mbit/s
	}
}

func TestConnectCommissionsFlowList(t *testing.T) {
	conn := &fakeConn{reads: [][]byte{[]byte("PF5420 TSN switch\r\nlogin: ")}}
	s := testSession(conn)

	if err := s.Connect(); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}

	want := []string{
		"operator",
		"enable",
		"config",
		"no ip qos-flow-list TSN",
		"ip qos-flow-list TSN",
		"exit",
		"interface vlan 1",
		"ip qos-flow-group TSN in",
		"exit",
		"ip qos-flow-list TSN",
		"100000 qos ip any any action cos 0",
	}
	got := strings.Split(strings.TrimSuffix(conn.writes.String(), "\r\n"), "\r\n")
	if len(got) != len(want) {
		t.Fatalf("expected %d commands, got %d:\n%q", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("command %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	conn := &fakeConn{reads: [][]byte{[]byte("login: ")}}
	s := testSession(conn)

	if err := s.Connect(); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	before := conn.writes.Len()
	if err := s.Connect(); err != nil {
		t.Fatalf("second Connect returned error: %v", err)
	}
	if conn.writes.Len() != before {
		t.Fatalf("second Connect talked to the switch again")
	}
}

func TestAddStreamRule(t *testing.T) {
	conn := &fakeConn{reads: [][]byte{[]byte("login: ")}}
	s := testSession(conn)
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	conn.writes.Reset()

	stream := admittedStream()
	if err := s.AddStreamRule(&stream); err != nil {
		t.Fatalf("AddStreamRule returned error: %v", err)
	}

	want := "1 qos udp 10.0.0.1 0.0.0.0 eq 5004 10.0.1.9 0.0.0.0 eq 5005 action cos 7 max-rate 12000000 max-rate-burst 32\r\n"
	if conn.writes.String() != want {
		t.Fatalf("rule command = %q, want %q", conn.writes.String(), want)
	}

	// The sequence counter advances per rule.
	conn.writes.Reset()
	second := admittedStream()
	second.SrcPort = 6004
	if err := s.AddStreamRule(&second); err != nil {
		t.Fatalf("AddStreamRule returned error: %v", err)
	}
	if !strings.HasPrefix(conn.writes.String(), "2 qos udp ") {
		t.Fatalf("second rule did not use sequence 2: %q", conn.writes.String())
	}
}

func TestAddStreamRuleRequiresConnect(t *testing.T) {
	s := testSession(&fakeConn{})
	stream := admittedStream()
	if err := s.AddStreamRule(&stream); err == nil {
		t.Fatalf("expected error before commissioning")
	}
}
