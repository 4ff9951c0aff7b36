package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"reflect"
	"testing"

	"github.com/chocolzs/linkura-go/internal/protocol/tlv"
)

func allKnownMessages() []Message {
	return []Message{
		LoginRequest{PlayerID: "AAAAAAAAA", DeviceSpecificID: "device-1", ClientVersion: "3.1.0"},
		LoginResponse{SessionToken: "tok-1", PlayerName: "player", PlayerLevel: 42},
		ConnectRequest{PlayerID: "AAAAAAAAA", Password: "hunter2", ClientVersion: "3.1.0"},
		ConnectResponse{DeviceSpecificID: "device-linked"},
		DataQuery{Resource: "archive/list", Params: []tlv.Field{tlv.U32(FieldParamBase, 4)}},
		DataResponse{Resource: "archive/list", Records: [][]byte{{0x01}, {0x02, 0x03}}},
		Heartbeat{TimestampMS: 1748518575000},
		Error{Code: CodeUnauthorized, Reason: "session expired"},
	}
}

func TestEncodeDecodeRoundTripAllKinds(t *testing.T) {
	for _, in := range allKnownMessages() {
		b, err := Encode(7, in)
		if err != nil {
			t.Fatalf("encode %T: %v", in, err)
		}
		pkt, n, err := Decode(b)
		if err != nil {
			t.Fatalf("decode %T: %v", in, err)
		}
		if n != len(b) {
			t.Fatalf("%T consumed %d of %d bytes", in, n, len(b))
		}
		if pkt.Sequence != 7 {
			t.Fatalf("%T sequence mismatch: %d", in, pkt.Sequence)
		}
		if !reflect.DeepEqual(pkt.Msg, in) {
			t.Fatalf("%T round trip mismatch: got=%+v want=%+v", in, pkt.Msg, in)
		}
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	msg := DataQuery{Resource: "archive/list", Params: []tlv.Field{tlv.U32(FieldParamBase, 4)}}
	a, err := Encode(1, msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b, err := Encode(1, msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("encode not deterministic")
	}
}

func TestDecodeAnyPrefixOfValidFrameNeedsMoreData(t *testing.T) {
	b, err := Encode(1, Heartbeat{TimestampMS: 12345})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for cut := 0; cut < len(b); cut++ {
		_, _, err := Decode(b[:cut])
		if !errors.Is(err, ErrShortBuffer) {
			t.Fatalf("prefix len=%d: expected ErrShortBuffer, got %v", cut, err)
		}
	}
}

func TestDecodeWithTrailingBytesConsumesOneFrame(t *testing.T) {
	b, err := Encode(1, Heartbeat{TimestampMS: 1})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	frameLen := len(b)
	b = append(b, 0xDE, 0xAD)
	pkt, n, err := Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != frameLen {
		t.Fatalf("consumed %d, want %d", n, frameLen)
	}
	if _, ok := pkt.Msg.(Heartbeat); !ok {
		t.Fatalf("expected Heartbeat, got %T", pkt.Msg)
	}
}

func TestDecodeDeclaredLengthBelowMinimum(t *testing.T) {
	b := EncodeHeader(Header{Length: 3, Sequence: 1, Type: TypeHeartbeat})
	_, _, err := Decode(b)
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestDecodeUnknownFlagBitsRejected(t *testing.T) {
	b, err := Encode(1, Heartbeat{TimestampMS: 1})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	binary.LittleEndian.PutUint16(b[8:10], 0x8000)
	_, _, err = Decode(b)
	if !errors.Is(err, ErrUnsupportedFlags) {
		t.Fatalf("expected ErrUnsupportedFlags, got %v", err)
	}
}

func TestDecodeEncryptedFlagRejected(t *testing.T) {
	b, err := Encode(1, Heartbeat{TimestampMS: 1})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	binary.LittleEndian.PutUint16(b[8:10], FlagEncrypted)
	_, _, err = Decode(b)
	if !errors.Is(err, ErrUnsupportedFlags) {
		t.Fatalf("expected ErrUnsupportedFlags, got %v", err)
	}
}

func TestDecodeUnknownTypeTagYieldsUnknownVariant(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03}
	h := Header{Length: uint32(lengthBase + len(payload)), Sequence: 9, Type: 0x7777}
	b := append(EncodeHeader(h), payload...)
	pkt, n, err := Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(b) {
		t.Fatalf("consumed %d of %d", n, len(b))
	}
	u, ok := pkt.Msg.(Unknown)
	if !ok {
		t.Fatalf("expected Unknown, got %T", pkt.Msg)
	}
	if u.RawType != 0x7777 || !bytes.Equal(u.Payload, payload) {
		t.Fatalf("unknown not preserved: %+v", u)
	}
}

func TestDecodeMalformedPayloadIsTerminal(t *testing.T) {
	payload := []byte{0xFF} // not a whole tlv field
	h := Header{Length: uint32(lengthBase + len(payload)), Sequence: 1, Type: TypeLoginResponse}
	b := append(EncodeHeader(h), payload...)
	_, _, err := Decode(b)
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestCompressedRoundTrip(t *testing.T) {
	in := DataResponse{Resource: "live/feed", Records: [][]byte{bytes.Repeat([]byte("motion"), 512)}}
	b, err := EncodeCompressed(3, in)
	if err != nil {
		t.Fatalf("encode compressed: %v", err)
	}
	plain, err := Encode(3, in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(b) >= len(plain) {
		t.Fatalf("compressed frame (%d) not smaller than plain (%d)", len(b), len(plain))
	}
	pkt, n, err := Decode(b)
	if err != nil {
		t.Fatalf("decode compressed: %v", err)
	}
	if n != len(b) {
		t.Fatalf("consumed %d of %d", n, len(b))
	}
	if !reflect.DeepEqual(pkt.Msg, Message(in)) {
		t.Fatalf("compressed round trip mismatch")
	}
}

func TestCompressedGarbagePayloadIsMalformed(t *testing.T) {
	payload := []byte{0x00, 0x01, 0x02, 0x03}
	h := Header{Length: uint32(lengthBase + len(payload)), Flags: FlagCompressed, Type: TypeHeartbeat}
	b := append(EncodeHeader(h), payload...)
	_, _, err := Decode(b)
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestDecodeMessageTruncationIsTerminal(t *testing.T) {
	b, err := Encode(1, Heartbeat{TimestampMS: 1})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeMessage(b[:4]); !errors.Is(err, ErrTruncatedHeader) {
		t.Fatalf("expected ErrTruncatedHeader, got %v", err)
	}
	if _, err := DecodeMessage(b[:len(b)-1]); !errors.Is(err, ErrTruncatedPayload) {
		t.Fatalf("expected ErrTruncatedPayload, got %v", err)
	}
	if _, err := DecodeMessage(append(b, 0x00)); !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch for trailing bytes, got %v", err)
	}
}
