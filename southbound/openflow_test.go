package southbound

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestReadMessageFraming(t *testing.T) {
	hello := encodeHello(7)
	echo := encodeEchoReply(9, []byte{1, 2, 3})
	stream := bytes.NewReader(append(append([]byte{}, hello...), echo...))

	msg, err := readMessage(stream)
	if err != nil {
		t.Fatalf("readMessage returned error: %v", err)
	}
	if msg.Type != typeHello || msg.XID != 7 || len(msg.Body) != 0 {
		t.Fatalf("unexpected first message: %+v", msg)
	}

	msg, err = readMessage(stream)
	if err != nil {
		t.Fatalf("readMessage returned error: %v", err)
	}
	if msg.Type != typeEchoReply || msg.XID != 9 || !bytes.Equal(msg.Body, []byte{1, 2, 3}) {
		t.Fatalf("unexpected second message: %+v", msg)
	}
}

func TestReadMessageRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{name: "WrongVersion", raw: []byte{0x04, 0, 0, 8, 0, 0, 0, 0}},
		{name: "LengthBelowHeader", raw: []byte{0x01, 0, 0, 4, 0, 0, 0, 0}},
		{name: "Truncated", raw: []byte{0x01, 0, 0, 16, 0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := readMessage(bytes.NewReader(tt.raw)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestFlowModEncoding(t *testing.T) {
	fm := flowMod{
		Match:    matchReservationFrames(1000),
		Command:  flowModAdd,
		Priority: defaultRulePriority,
		OutPort:  PortNone,
		Actions:  []outputAction{{Port: PortController, MaxLen: 0xffff}},
	}
	b := fm.encode(3)

	if len(b) != headerLen+matchLen+24+actionOutputLen {
		t.Fatalf("unexpected flow-mod length %d", len(b))
	}
	if b[1] != typeFlowMod {
		t.Fatalf("unexpected type %d", b[1])
	}

	wildcards := binary.BigEndian.Uint32(b[headerLen:])
	for _, bit := range []uint32{wildcardDlType, wildcardNwProto, wildcardTpDst} {
		if wildcards&bit != 0 {
			t.Fatalf("matched field wildcarded: %08x", wildcards)
		}
	}
	if wildcards&wildcardInPort == 0 || wildcards&wildcardTpSrc == 0 {
		t.Fatalf("unmatched field not wildcarded: %08x", wildcards)
	}

	match := b[headerLen : headerLen+matchLen]
	if binary.BigEndian.Uint16(match[22:]) != 0x0800 {
		t.Fatalf("dl_type = %04x, want 0800", binary.BigEndian.Uint16(match[22:]))
	}
	if match[25] != 17 {
		t.Fatalf("nw_proto = %d, want 17", match[25])
	}
	if binary.BigEndian.Uint16(match[38:]) != 1000 {
		t.Fatalf("tp_dst = %d, want 1000", binary.BigEndian.Uint16(match[38:]))
	}

	action := b[headerLen+matchLen+24:]
	if binary.BigEndian.Uint16(action[0:]) != 0 || binary.BigEndian.Uint16(action[4:]) != PortController {
		t.Fatalf("unexpected action encoding: % x", action)
	}
}

func TestPacketOutEncoding(t *testing.T) {
	po := packetOut{
		InPort:  5,
		Actions: []outputAction{{Port: PortFlood}},
		Data:    []byte{0xde, 0xad},
	}
	b := po.encode(11)

	body := b[headerLen:]
	if binary.BigEndian.Uint32(body[0:]) != NoBuffer {
		t.Fatalf("buffer id = %x, want NoBuffer", binary.BigEndian.Uint32(body[0:]))
	}
	if binary.BigEndian.Uint16(body[4:]) != 5 {
		t.Fatalf("in_port = %d, want 5", binary.BigEndian.Uint16(body[4:]))
	}
	if binary.BigEndian.Uint16(body[6:]) != actionOutputLen {
		t.Fatalf("actions_len = %d, want %d", binary.BigEndian.Uint16(body[6:]), actionOutputLen)
	}
	if binary.BigEndian.Uint16(body[12:]) != PortFlood {
		t.Fatalf("output port = %x, want flood", binary.BigEndian.Uint16(body[12:]))
	}
	if !bytes.Equal(body[16:], []byte{0xde, 0xad}) {
		t.Fatalf("payload not appended: % x", body)
	}
}

func TestParsePacketIn(t *testing.T) {
	body := make([]byte, 10+3)
	binary.BigEndian.PutUint32(body[0:], NoBuffer)
	binary.BigEndian.PutUint16(body[4:], 3)
	binary.BigEndian.PutUint16(body[6:], 42)
	body[8] = 1
	copy(body[10:], []byte{7, 8, 9})

	pi, err := parsePacketIn(body)
	if err != nil {
		t.Fatalf("parsePacketIn returned error: %v", err)
	}
	if pi.InPort != 42 || pi.TotalLen != 3 || !bytes.Equal(pi.Data, []byte{7, 8, 9}) {
		t.Fatalf("unexpected packet-in: %+v", pi)
	}

	if _, err := parsePacketIn(body[:6]); err == nil {
		t.Fatalf("expected error for short body")
	}
}
