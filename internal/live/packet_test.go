package live

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/chocolzs/linkura-go/internal/protocol"
)

// Known-good frames observed on the wire.
const (
	goldenVersionCheck = "2300000001000000000000ff0200000003006d72730400000208006d72735f726f6f6d00000002"
	goldenKeepAlive    = "08000000040000000000a2ff"
)

func TestVersionCheckMatchesGoldenFrame(t *testing.T) {
	want, err := hex.DecodeString(goldenVersionCheck)
	if err != nil {
		t.Fatal(err)
	}
	got := encodePacket(versionCheckPacket(1))
	if !bytes.Equal(got, want) {
		t.Fatalf("version check frame mismatch:\n got %x\nwant %x", got, want)
	}
}

func TestKeepAliveMatchesGoldenFrame(t *testing.T) {
	want, err := hex.DecodeString(goldenKeepAlive)
	if err != nil {
		t.Fatal(err)
	}
	got := encodePacket(keepAlivePacket(4))
	if !bytes.Equal(got, want) {
		t.Fatalf("keepalive frame mismatch:\n got %x\nwant %x", got, want)
	}
}

func TestJoinRoomPayloadLayout(t *testing.T) {
	pkt := joinRoomPacket(3, 1919810, 11451)
	if pkt.Type != TypeJoinRoom {
		t.Fatalf("type = %s", pkt.Type)
	}
	if len(pkt.Payload) != 12+len(joinRoomSuffix) {
		t.Fatalf("payload length = %d", len(pkt.Payload))
	}
	if got := binary.LittleEndian.Uint32(pkt.Payload[0:4]); got != 1919810 {
		t.Fatalf("room id = %d", got)
	}
	if got := binary.LittleEndian.Uint16(pkt.Payload[8:10]); got != 11451 {
		t.Fatalf("player id = %d", got)
	}
}

func TestDecodePacketRoundTrip(t *testing.T) {
	in := Packet{Sequence: 9, Type: TypeKeyExchangeRequest, Payload: []byte{0x04, 0xde, 0xad}}
	wire := encodePacket(in)

	out, n, err := decodePacket(wire)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(wire) {
		t.Fatalf("consumed %d of %d", n, len(wire))
	}
	if out.Sequence != in.Sequence || out.Type != in.Type || !bytes.Equal(out.Payload, in.Payload) {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestDecodePacketPrefixesNeedMoreData(t *testing.T) {
	wire := encodePacket(Packet{Sequence: 1, Type: TypeVersionCheck, Payload: versionCheckPayload})
	for i := 0; i < len(wire); i++ {
		if _, _, err := decodePacket(wire[:i]); !errors.Is(err, protocol.ErrShortBuffer) {
			t.Fatalf("prefix %d: got %v, want ErrShortBuffer", i, err)
		}
	}
}

func TestDecodePacketRejectsUndersizedLength(t *testing.T) {
	wire := encodePacket(Packet{Sequence: 1, Type: TypeEnd})
	binary.LittleEndian.PutUint32(wire[0:4], 3)
	if _, _, err := decodePacket(wire); !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("got %v, want ErrLengthMismatch", err)
	}
}

func TestPacketTypeStrings(t *testing.T) {
	if got := TypeVersionCheck.String(); got != "VersionCheck" {
		t.Fatalf("got %q", got)
	}
	if got := PacketType(0x0042).String(); got != "0x0042" {
		t.Fatalf("got %q", got)
	}
}
