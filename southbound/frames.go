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
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

// reservationUDPPort carries advertisements and subscriptions; the punt rule
// sends exactly this traffic to the controller.
const reservationUDPPort = 1000

var errNotReservationFrame = errors.New("not a reservation frame")

// extractPDU locates the reservation PDU inside a punted Ethernet frame and
// returns it together with the offset of the UDP payload, so the flood path
// can replace the PDU while preserving the captured headers byte-for-byte.
func extractPDU(data []byte) (pdu []byte, payloadOff int, err error) {
	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet,
		gopacket.DecodeOptions{NoCopy: true, Lazy: true})

	ethLayer := pkt.Layer(layers.LayerTypeEthernet)
	ipLayer := pkt.Layer(layers.LayerTypeIPv4)
	udpLayer := pkt.Layer(layers.LayerTypeUDP)
	if ethLayer == nil || ipLayer == nil || udpLayer == nil {
		return nil, 0, errors.Wrap(errNotReservationFrame, "need ethernet/ipv4/udp")
	}

	udp := udpLayer.(*layers.UDP)
	if udp.DstPort != reservationUDPPort {
		return nil, 0, errors.Wrapf(errNotReservationFrame, "udp dst %d", udp.DstPort)
	}

	payloadOff = len(ethLayer.LayerContents()) +
		len(ipLayer.LayerContents()) +
		len(udpLayer.LayerContents())
	return udp.Payload, payloadOff, nil
}

// splicePayload rebuilds a frame from the original headers and a replacement
// payload of equal length, leaving every header byte untouched.
func splicePayload(original []byte, payloadOff int, payload []byte) []byte {
	out := make([]byte, payloadOff+len(payload))
	copy(out, original[:payloadOff])
	copy(out[payloadOff:], payload)
	return out
}
