package protocol

import (
	"bytes"
	"compress/zlib"
	"errors"
	"io"
)

// Payload transforms sit outside the framing contract: compression wraps
// the already-encoded payload bytes on write and unwraps them before
// type-specific decode on read.

func compressPayload(payload []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, _ = zw.Write(payload)
	_ = zw.Close()
	return buf.Bytes()
}

func decompressPayload(payload []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	// The limit guards against decompression bombs; the declared frame
	// length already bounded the compressed size.
	out, err := io.ReadAll(io.LimitReader(zr, MaxPayloadLen+1))
	if err != nil {
		return nil, err
	}
	if len(out) > MaxPayloadLen {
		return nil, errors.New("decompressed payload exceeds limit")
	}
	return out, nil
}
