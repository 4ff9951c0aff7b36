package protocol

import "fmt"

// Encode serializes one message with its framing header.
func Encode(seq uint32, msg Message) ([]byte, error) {
	return encode(seq, msg, 0)
}

// EncodeCompressed serializes one message with a compressed payload and the
// Compressed flag set.
func EncodeCompressed(seq uint32, msg Message) ([]byte, error) {
	return encode(seq, msg, FlagCompressed)
}

func encode(seq uint32, msg Message, flags uint16) ([]byte, error) {
	payload, err := msg.encodePayload()
	if err != nil {
		return nil, err
	}
	if flags&FlagCompressed != 0 {
		payload = compressPayload(payload)
	}
	if len(payload) > MaxPayloadLen {
		return nil, ErrPayloadTooLarge
	}
	h := Header{
		Length:   uint32(lengthBase + len(payload)),
		Sequence: seq,
		Flags:    flags,
		Type:     msg.MessageType(),
	}
	out := make([]byte, 0, HeaderLen+len(payload))
	out = append(out, EncodeHeader(h)...)
	return append(out, payload...), nil
}

// Decode parses exactly one framed message from the front of buf and
// returns the bytes consumed, so stream callers can re-slice for the next
// message. A buffer holding only a prefix of a valid frame yields
// ErrShortBuffer; every other error is a terminal decode failure for that
// byte range.
func Decode(buf []byte) (Packet, int, error) {
	if len(buf) < HeaderLen {
		return Packet{}, 0, ErrShortBuffer
	}
	h := DecodeHeader(buf)
	if h.Length < lengthBase {
		return Packet{}, 0, fmt.Errorf("%w: declared length %d below minimum %d", ErrLengthMismatch, h.Length, lengthBase)
	}
	payloadLen := int(h.Length) - lengthBase
	if payloadLen > MaxPayloadLen {
		return Packet{}, 0, ErrPayloadTooLarge
	}
	if unknown := h.Flags &^ (FlagCompressed | FlagEncrypted); unknown != 0 {
		return Packet{}, 0, fmt.Errorf("%w: bits 0x%04x", ErrUnsupportedFlags, unknown)
	}
	if h.Flags&FlagEncrypted != 0 {
		return Packet{}, 0, fmt.Errorf("%w: encrypted frames are carried below the framing layer", ErrUnsupportedFlags)
	}

	total := HeaderLen + payloadLen
	if len(buf) < total {
		return Packet{}, 0, ErrShortBuffer
	}

	payload := buf[HeaderLen:total]
	if h.Flags&FlagCompressed != 0 {
		expanded, err := decompressPayload(payload)
		if err != nil {
			return Packet{}, 0, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		payload = expanded
	}

	msg, err := decodePayload(h.Type, payload)
	if err != nil {
		return Packet{}, 0, err
	}
	return Packet{Sequence: h.Sequence, Msg: msg}, total, nil
}

// DecodeMessage parses one complete frame from buf. Unlike Decode it treats
// a short buffer as terminal truncation: the caller holds the whole
// response body, so no more bytes are coming.
func DecodeMessage(buf []byte) (Packet, error) {
	pkt, n, err := Decode(buf)
	if err != nil {
		if err == ErrShortBuffer {
			if len(buf) < HeaderLen {
				return Packet{}, ErrTruncatedHeader
			}
			return Packet{}, ErrTruncatedPayload
		}
		return Packet{}, err
	}
	if n != len(buf) {
		return Packet{}, fmt.Errorf("%w: %d trailing bytes after frame", ErrLengthMismatch, len(buf)-n)
	}
	return pkt, nil
}
