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

package switchcli

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/ziutek/telnet"
	"go.uber.org/zap"

	"github.com/tsnworks/tsnctl/reservation"
)

// networkMask applied to every flow-list entry; 0.0.0.0 matches the address
// exactly on this hardware.
const networkMask = "0.0.0.0"

// defaultRuleID is the highest rule id; entries match in ascending id order,
// so this catches everything the stream rules did not.
const defaultRuleID = 100000

// readsPerCommand drains the echo and prompt the switch sends back after
// each command. Three reads are sufficient for the target CLI.
const readsPerCommand = 3

// readTimeout bounds each drain read; the CLI does not announce reply ends.
const readTimeout = 200 * time.Millisecond

// loginTimeout bounds the wait for the initial login prompt.
const loginTimeout = 10 * time.Second

// Transport is the blocking line channel to the switch CLI. *telnet.Conn
// satisfies it; tests substitute an in-memory script.
type Transport interface {
	io.ReadWriter
	SetReadDeadline(t time.Time) error
}

// Session is the exclusive CLI session through which stream rules are
// deployed. It owns the rule sequence counter; the dispatcher is its only
// caller.
type Session struct {
	conn      Transport
	log       *zap.Logger
	username  string
	flowList  string
	connected bool
	seq       int
}

// Dial opens the Telnet side-channel to the switch. The session is not yet
// logged in; Connect performs the handshake and commissioning.
func Dial(addr, username, flowList string, log *zap.Logger) (*Session, error) {
	conn, err := telnet.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial switch CLI %s", addr)
	}
	conn.SetUnixWriteMode(false)
	return NewSession(conn, username, flowList, log), nil
}

// NewSession wraps an established transport. Used by Dial and by tests.
func NewSession(conn Transport, username, flowList string, log *zap.Logger) *Session {
	return &Session{
		conn:     conn,
		log:      log,
		username: username,
		flowList: flowList,
		seq:      1,
	}
}

// Connect logs in, enters configuration mode and commissions the QoS flow
// list: the list is recreated empty, bound to all VLAN 1 ports in ingress
// direction, and the default rule mapping unmatched IP traffic to class 0 is
// installed. Connect is idempotent; only the first call talks to the switch.
func (s *Session) Connect() error {
	if s.connected {
		return nil
	}

	if err := s.awaitLogin(); err != nil {
		return err
	}

	setup := []string{
		s.username,
		"enable",
		"config",
		fmt.Sprintf("no ip qos-flow-list %s", s.flowList),
		fmt.Sprintf("ip qos-flow-list %s", s.flowList),
		"exit",
		"interface vlan 1",
		fmt.Sprintf("ip qos-flow-group %s in", s.flowList),
		"exit",
		fmt.Sprintf("ip qos-flow-list %s", s.flowList),
		fmt.Sprintf("%d qos ip any any action cos 0", defaultRuleID),
	}
	for _, cmd := range setup {
		if err := s.writeCommand(cmd); err != nil {
			return err
		}
	}

	s.connected = true
	s.log.Info("switch CLI commissioned", zap.String("flowlist", s.flowList))
	return nil
}

// AddStreamRule installs the classification and rate-limiting rule for an
// admitted subscription under the next sequence number.
func (s *Session) AddStreamRule(sub *reservation.Reservation) error {
	if !s.connected {
		return errors.New("switch CLI session not commissioned")
	}

	rate := Quantize(sub.BurstRate())
	cmd := fmt.Sprintf("%d qos udp %s %s eq %d %s %s eq %d action cos %d max-rate %d max-rate-burst 32",
		s.seq,
		sub.SrcIP, networkMask, sub.SrcPort,
		sub.DstIP, networkMask, sub.DstPort,
		sub.Priority, rate)
	if err := s.writeCommand(cmd); err != nil {
		return err
	}
	s.seq++

	s.log.Info("stream rule installed",
		zap.String("stream", sub.Signature()),
		zap.Uint64("max-rate", rate),
		zap.Int("rule", s.seq-1))
	return nil
}

// awaitLogin reads until the switch presents its login prompt.
func (s *Session) awaitLogin() error {
	deadline := time.Now().Add(loginTimeout)
	var seen bytes.Buffer
	buf := make([]byte, 512)
	for {
		if err := s.conn.SetReadDeadline(deadline); err != nil {
			return errors.Wrap(err, "await login prompt")
		}
		n, err := s.conn.Read(buf)
		seen.Write(buf[:n])
		if bytes.Contains(seen.Bytes(), []byte("login: ")) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "await login prompt")
		}
	}
}

// writeCommand sends one command terminated by CR LF and drains the replies.
// Reply contents are not parsed; the hardware reports errors interactively
// and detection here is best effort.
func (s *Session) writeCommand(cmd string) error {
	if _, err := s.conn.Write([]byte(cmd + "\r\n")); err != nil {
		return errors.Wrapf(err, "write command %q", cmd)
	}

	buf := make([]byte, 4096)
	for i := 0; i < readsPerCommand; i++ {
		if err := s.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return errors.Wrapf(err, "drain reply of %q", cmd)
		}
		_, err := s.conn.Read(buf)
		if err == nil {
			continue
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			continue // no more reply data, that is fine
		}
		if err == io.EOF {
			return errors.Wrapf(err, "switch CLI closed during %q", cmd)
		}
		return errors.Wrapf(err, "drain reply of %q", cmd)
	}
	return nil
}
