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

package southbound

import (
	"io"
	"net"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Conn is the switch-facing surface the dispatcher drives. Datapath is the
// production implementation; tests substitute a recorder.
type Conn interface {
	// PurgeFlows deletes every entry in the data-path flow table.
	PurgeFlows() error
	// InstallPuntRule makes the switch send all UDP traffic for the given
	// destination port to the controller.
	InstallPuntRule(udpDst uint16) error
	// Flood emits a crafted packet on every port except inPort.
	Flood(inPort uint16, data []byte) error
	// Unicast emits a crafted packet on exactly one port.
	Unicast(port uint16, data []byte) error
}

// Datapath is one connected switch on the OpenFlow control channel. All
// writes happen from the single event-handler goroutine.
type Datapath struct {
	conn io.Writer
	xid  uint32
}

func newDatapath(conn io.Writer) *Datapath {
	return &Datapath{conn: conn}
}

func (d *Datapath) nextXID() uint32 {
	d.xid++
	return d.xid
}

func (d *Datapath) send(b []byte) error {
	_, err := d.conn.Write(b)
	return errors.Wrap(err, "southbound write")
}

// PurgeFlows implements Conn.
func (d *Datapath) PurgeFlows() error {
	fm := flowMod{
		Match:   matchAll(),
		Command: flowModDelete,
		OutPort: PortNone,
	}
	return d.send(fm.encode(d.nextXID()))
}

// InstallPuntRule implements Conn.
func (d *Datapath) InstallPuntRule(udpDst uint16) error {
	fm := flowMod{
		Match:    matchReservationFrames(udpDst),
		Command:  flowModAdd,
		Priority: defaultRulePriority,
		OutPort:  PortNone,
		Actions:  []outputAction{{Port: PortController, MaxLen: 0xffff}},
	}
	return d.send(fm.encode(d.nextXID()))
}

// Flood implements Conn. The ingress port is excluded by the switch itself.
func (d *Datapath) Flood(inPort uint16, data []byte) error {
	po := packetOut{
		InPort:  inPort,
		Actions: []outputAction{{Port: PortFlood}},
		Data:    data,
	}
	return d.send(po.encode(d.nextXID()))
}

// Unicast implements Conn.
func (d *Datapath) Unicast(port uint16, data []byte) error {
	po := packetOut{
		InPort:  PortNone,
		Actions: []outputAction{{Port: port}},
		Data:    data,
	}
	return d.send(po.encode(d.nextXID()))
}

// Handler reacts to switch events. The dispatcher implements it.
type Handler interface {
	// OnConnect fires once the feature handshake with a switch completed.
	OnConnect(dp Conn, features *FeaturesReply)
	// OnPacketIn fires for every punted packet.
	OnPacketIn(dp Conn, pi *PacketIn)
}

// Server accepts the switch's control-channel connection and pumps its
// messages through the handler. Connections are served strictly one at a
// time: the controller owns a single switch and processes one event to
// completion before the next.
type Server struct {
	addr    string
	handler Handler
	log     *zap.Logger
}

// NewServer builds a server for the given listen address.
func NewServer(addr string, handler Handler, log *zap.Logger) *Server {
	return &Server{addr: addr, handler: handler, log: log}
}

// ListenAndServe blocks forever, accepting switch connections in sequence.
func (s *Server) ListenAndServe() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.addr)
	}
	s.log.Info("southbound channel listening", zap.String("addr", s.addr))

	for {
		conn, err := lis.Accept()
		if err != nil {
			return errors.Wrap(err, "accept switch connection")
		}
		s.log.Info("switch connected", zap.String("peer", conn.RemoteAddr().String()))
		if err := s.serve(conn); err != nil && err != io.EOF {
			s.log.Warn("switch connection lost", zap.Error(err))
		} else {
			s.log.Info("switch disconnected")
		}
		conn.Close()
	}
}

// serve runs the handshake and the event loop for one connection.
func (s *Server) serve(conn net.Conn) error {
	dp := newDatapath(conn)
	if err := dp.send(encodeHello(dp.nextXID())); err != nil {
		return err
	}

	for {
		msg, err := readMessage(conn)
		if err != nil {
			return err
		}

		switch msg.Type {
		case typeHello:
			if err := dp.send(encodeFeaturesRequest(dp.nextXID())); err != nil {
				return err
			}
		case typeEchoRequest:
			if err := dp.send(encodeEchoReply(msg.XID, msg.Body)); err != nil {
				return err
			}
		case typeFeaturesReply:
			features, err := parseFeaturesReply(msg.Body)
			if err != nil {
				s.log.Warn("bad features reply", zap.Error(err))
				continue
			}
			s.handler.OnConnect(dp, features)
		case typePacketIn:
			pi, err := parsePacketIn(msg.Body)
			if err != nil {
				s.log.Warn("bad packet-in", zap.Error(err))
				continue
			}
			s.handler.OnPacketIn(dp, pi)
		case typeError:
			s.log.Warn("switch reported error", zap.Binary("body", msg.Body))
		default:
			// get-config replies, port status and the like are not needed
		}
	}
}
