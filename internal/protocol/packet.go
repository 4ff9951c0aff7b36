package protocol

import "encoding/binary"

const (
	// HeaderLen is the fixed wire header size in bytes.
	HeaderLen = 12

	// lengthBase is the number of header bytes counted by the Length
	// field (sequence + flags + type).
	lengthBase = 8

	// MaxPayloadLen bounds decode memory use per frame.
	MaxPayloadLen = 8 * 1024 * 1024
)

// Header flag bits. FlagEncrypted is recognized but rejected: the deployed
// protocol encrypts below the framing layer, so an encrypted frame indicates
// a peer mismatch. All other bits are unassigned and rejected.
const (
	FlagCompressed uint16 = 0x0001
	FlagEncrypted  uint16 = 0x0002
)

// Header is the fixed little-endian wire header.
type Header struct {
	Length   uint32
	Sequence uint32
	Flags    uint16
	Type     uint16
}

// EncodeHeader serializes h into a fixed HeaderLen byte slice.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	binary.LittleEndian.PutUint32(buf[0:4], h.Length)
	binary.LittleEndian.PutUint32(buf[4:8], h.Sequence)
	binary.LittleEndian.PutUint16(buf[8:10], h.Flags)
	binary.LittleEndian.PutUint16(buf[10:12], h.Type)
	return buf
}

// DecodeHeader parses the fixed header from the front of b. The caller
// guarantees len(b) >= HeaderLen.
func DecodeHeader(b []byte) Header {
	return Header{
		Length:   binary.LittleEndian.Uint32(b[0:4]),
		Sequence: binary.LittleEndian.Uint32(b[4:8]),
		Flags:    binary.LittleEndian.Uint16(b[8:10]),
		Type:     binary.LittleEndian.Uint16(b[10:12]),
	}
}

// Packet is one decoded wire message with its framing metadata.
type Packet struct {
	Sequence uint32
	Msg      Message
}
