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
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tsnworks/tsnctl/admission"
	"github.com/tsnworks/tsnctl/reservation"
)

// Programmer deploys admitted streams on the switch's QoS engine. The
// switchcli session implements it.
type Programmer interface {
	Connect() error
	AddStreamRule(sub *reservation.Reservation) error
}

// Dispatcher is the reservation-protocol event loop: it reacts to switch
// connects and punted frames, drives the admission engine and mirrors every
// decision to the switch. It owns all reservation state; events are handled
// one at a time to completion.
type Dispatcher struct {
	engine     *admission.Engine
	programmer Programmer
	log        *zap.Logger
	quiet      bool
}

// NewDispatcher wires the event loop.
func NewDispatcher(engine *admission.Engine, programmer Programmer, log *zap.Logger, quiet bool) *Dispatcher {
	return &Dispatcher{
		engine:     engine,
		programmer: programmer,
		log:        log,
		quiet:      quiet,
	}
}

// OnConnect resets the data path so that only reservation frames reach the
// controller, then commissions the QoS flow list over the CLI side-channel.
func (d *Dispatcher) OnConnect(dp Conn, features *FeaturesReply) {
	d.log.Info("switch handshake complete", zap.Uint64("datapath", features.DatapathID))

	if err := dp.PurgeFlows(); err != nil {
		d.log.Error("flow table purge failed", zap.Error(err))
		return
	}
	if err := dp.InstallPuntRule(reservationUDPPort); err != nil {
		d.log.Error("punt rule installation failed", zap.Error(err))
		return
	}
	if err := d.programmer.Connect(); err != nil {
		d.log.Error("switch CLI commissioning failed", zap.Error(err))
	}
}

// OnPacketIn parses a punted frame and runs the advertisement or
// subscription branch. Every failure is local to this one event.
func (d *Dispatcher) OnPacketIn(dp Conn, pi *PacketIn) {
	atomic.AddUint64(&DefaultStats.PacketsIn, 1)
	packetsInTotal.Inc()

	pdu, payloadOff, err := extractPDU(pi.Data)
	if err != nil {
		atomic.AddUint64(&DefaultStats.MalformedFrames, 1)
		d.log.Warn("dropping unparseable frame", zap.Error(err))
		return
	}

	status, res, err := reservation.Decode(pdu)
	if err != nil {
		atomic.AddUint64(&DefaultStats.MalformedFrames, 1)
		d.log.Warn("dropping malformed PDU", zap.Error(err))
		return
	}

	switch status {
	case reservation.StatusAdvertisement:
		d.handleAdvertisement(dp, pi, res, payloadOff)
	case reservation.StatusSubscription:
		d.handleSubscription(dp, pi, res)
	default:
		// Acknowledgements travel talker to listener; the controller only
		// counts them.
		atomic.AddUint64(&DefaultStats.Acknowledgements, 1)
	}
}

// handleAdvertisement stores or refreshes the stream and floods the
// delay-updated copy on every port but the ingress one. The captured
// Ethernet/IP/UDP headers are reused untouched.
func (d *Dispatcher) handleAdvertisement(dp Conn, pi *PacketIn, adv reservation.Reservation, payloadOff int) {
	flood, outcome, err := d.engine.Advertise(adv, pi.InPort)
	if err != nil {
		atomic.AddUint64(&DefaultStats.AdvertisementsRejected, 1)
		advertisementsTotal.WithLabelValues("rejected").Inc()
		if !d.quiet {
			d.log.Info("advertisement rejected", zap.String("stream", adv.Signature()), zap.Error(err))
		}
		return
	}

	data := splicePayload(pi.Data, payloadOff, reservation.Encode(&flood, reservation.StatusAdvertisement))
	if err := dp.Flood(pi.InPort, data); err != nil {
		d.log.Error("advertisement flood failed", zap.Error(err))
		return
	}

	atomic.AddUint64(&DefaultStats.AdvertisementsFlooded, 1)
	advertisementsTotal.WithLabelValues("flooded").Inc()
	if outcome == admission.AdvertReplaced {
		atomic.AddUint64(&DefaultStats.AdvertisementsReplaced, 1)
	}
	if !d.quiet {
		d.log.Info("advertisement flooded",
			zap.String("stream", adv.Signature()),
			zap.Uint32("acc-max-delay", flood.AccMaxDelay),
			zap.Uint16("in-port", pi.InPort))
	}
}

// handleSubscription runs admission for the egress port the subscription
// arrived on. The CLI rule is written before the in-memory commit, so a
// programming failure leaves no drift; on success the original frame is
// forwarded toward the talker over the advertisement's ingress port.
func (d *Dispatcher) handleSubscription(dp Conn, pi *PacketIn, sub reservation.Reservation) {
	decision, err := d.engine.Evaluate(sub, pi.InPort)
	if err != nil {
		d.rejectSubscription(sub, err)
		return
	}

	if err := d.programmer.AddStreamRule(&sub); err != nil {
		d.rejectSubscription(sub, errors.Wrap(err, "switch programming"))
		return
	}
	d.engine.Commit(decision)

	if err := dp.Unicast(decision.AdvertInPort(), pi.Data); err != nil {
		d.log.Error("subscription forward failed", zap.Error(err))
	}

	atomic.AddUint64(&DefaultStats.SubscriptionsAdmitted, 1)
	subscriptionsTotal.WithLabelValues("admitted").Inc()
	if !d.quiet {
		d.log.Info("subscription admitted",
			zap.String("stream", sub.Signature()),
			zap.Uint16("egress-port", pi.InPort),
			zap.Uint32("worst-case-delay", decision.WorstCaseDelay()))
	}
}

func (d *Dispatcher) rejectSubscription(sub reservation.Reservation, err error) {
	atomic.AddUint64(&DefaultStats.SubscriptionsRejected, 1)
	subscriptionsTotal.WithLabelValues(rejectReason(err)).Inc()
	if !d.quiet {
		d.log.Info("subscription rejected", zap.String("stream", sub.Signature()), zap.Error(err))
	}
}

// rejectReason maps an admission error to its metrics label.
func rejectReason(err error) string {
	switch errors.Cause(err) {
	case admission.ErrBandwidthExceeded:
		return "bandwidth_exceeded"
	case admission.ErrDelayViolation:
		return "delay_violation"
	case admission.ErrUnknownStream:
		return "unknown_stream"
	case admission.ErrUnknownPriority:
		return "unknown_priority"
	default:
		return "switch_programming"
	}
}
