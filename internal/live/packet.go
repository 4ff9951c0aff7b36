package live

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/chocolzs/linkura-go/internal/protocol"
)

var ErrLengthMismatch = errors.New("live: packet length mismatch")

// rpcIDBegin marks the control-plane tag range. Tags below it are room
// traffic and pass through the capture untouched.
const rpcIDBegin uint16 = 0xff00

// PacketType identifies a live-stream control packet.
type PacketType uint16

const (
	TypeVersionCheck        PacketType = PacketType(rpcIDBegin | 0x00)
	TypeKeyExchangeRequest  PacketType = PacketType(rpcIDBegin | 0x01)
	TypeKeyExchangeResponse PacketType = PacketType(rpcIDBegin | 0x02)
	TypeJoinRoom            PacketType = 0x0005
	TypeKeepAliveRequest    PacketType = PacketType(rpcIDBegin | 0xa1)
	TypeKeepAliveResponse   PacketType = PacketType(rpcIDBegin | 0xa2)
	TypeConnectionClose     PacketType = PacketType(rpcIDBegin | 0xc0)
	TypeCloseHardLimitOver  PacketType = PacketType(rpcIDBegin | 0xc1)
	TypeEnd                 PacketType = PacketType(rpcIDBegin | 0xff)
)

func (t PacketType) String() string {
	switch t {
	case TypeVersionCheck:
		return "VersionCheck"
	case TypeKeyExchangeRequest:
		return "KeyExchangeRequest"
	case TypeKeyExchangeResponse:
		return "KeyExchangeResponse"
	case TypeJoinRoom:
		return "JoinRoom"
	case TypeKeepAliveRequest:
		return "KeepAliveRequest"
	case TypeKeepAliveResponse:
		return "KeepAliveResponse"
	case TypeConnectionClose:
		return "ConnectionClose"
	case TypeCloseHardLimitOver:
		return "ConnectionCloseHardLimitOver"
	case TypeEnd:
		return "End"
	default:
		return fmt.Sprintf("0x%04x", uint16(t))
	}
}

// Packet is one live-stream frame. Payloads here are opaque byte strings
// fixed by the server contract, not field-encoded bodies.
type Packet struct {
	Sequence uint32
	Type     PacketType
	Payload  []byte
}

// encodePacket frames p with the shared wire header.
func encodePacket(p Packet) []byte {
	buf := make([]byte, 0, protocol.HeaderLen+len(p.Payload))
	buf = append(buf, protocol.EncodeHeader(protocol.Header{
		Length:   uint32(8 + len(p.Payload)),
		Sequence: p.Sequence,
		Type:     uint16(p.Type),
	})...)
	return append(buf, p.Payload...)
}

// decodePacket parses one complete frame from the front of buf and returns
// the count of bytes consumed. A prefix of a valid frame yields
// protocol.ErrShortBuffer; feed more bytes and retry.
func decodePacket(buf []byte) (Packet, int, error) {
	if len(buf) < protocol.HeaderLen {
		return Packet{}, 0, protocol.ErrShortBuffer
	}
	h := protocol.DecodeHeader(buf)
	if h.Length < 8 {
		return Packet{}, 0, fmt.Errorf("%w: length=%d below header minimum", ErrLengthMismatch, h.Length)
	}
	payloadLen := int(h.Length) - 8
	if payloadLen > protocol.MaxPayloadLen {
		return Packet{}, 0, fmt.Errorf("%w: payload %d exceeds limit", ErrLengthMismatch, payloadLen)
	}
	total := protocol.HeaderLen + payloadLen
	if len(buf) < total {
		return Packet{}, 0, protocol.ErrShortBuffer
	}
	payload := make([]byte, payloadLen)
	copy(payload, buf[protocol.HeaderLen:total])
	return Packet{
		Sequence: h.Sequence,
		Type:     PacketType(h.Type),
		Payload:  payload,
	}, total, nil
}

// Fixed payload tails fixed by the server contract. The version check body
// names the service and channel the client expects; the join suffix carries
// the client capability block.
var (
	versionCheckPayload = mustHex("0200000003006d72730400000208006d72735f726f6f6d00000002")
	joinRoomSuffix      = mustHex("000000000100000002000000726cff050000008501000000")
)

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func versionCheckPacket(seq uint32) Packet {
	return Packet{Sequence: seq, Type: TypeVersionCheck, Payload: versionCheckPayload}
}

func keyExchangePacket(seq uint32, publicKey []byte) Packet {
	return Packet{Sequence: seq, Type: TypeKeyExchangeRequest, Payload: publicKey}
}

func joinRoomPacket(seq uint32, roomID uint32, playerID uint16) Packet {
	payload := make([]byte, 0, 12+len(joinRoomSuffix))
	payload = binary.LittleEndian.AppendUint32(payload, roomID)
	payload = append(payload, 0, 0, 0, 0)
	payload = binary.LittleEndian.AppendUint16(payload, playerID)
	payload = append(payload, 0, 0)
	payload = append(payload, joinRoomSuffix...)
	return Packet{Sequence: seq, Type: TypeJoinRoom, Payload: payload}
}

func keepAlivePacket(seq uint32) Packet {
	return Packet{Sequence: seq, Type: TypeKeepAliveResponse}
}
