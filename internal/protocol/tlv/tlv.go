// Package tlv implements the field-level payload codec: each field is a
// big-endian (id uint16, type uint8, len uint32) header followed by the
// value bytes.
package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const FieldHeaderLen = 7

var (
	ErrShortFieldHeader = errors.New("tlv: short field header")
	ErrShortFieldValue  = errors.New("tlv: short field value")
	ErrFieldMissing     = errors.New("tlv: required field missing")
	ErrTypeMismatch     = errors.New("tlv: field type mismatch")
)

// Field value type IDs.
const (
	TypeU8     uint8 = 1
	TypeU16    uint8 = 2
	TypeU32    uint8 = 3
	TypeU64    uint8 = 4
	TypeBool   uint8 = 5
	TypeString uint8 = 6
	TypeBytes  uint8 = 7
)

// Field is one encoded or decoded payload field.
type Field struct {
	ID    uint16
	Type  uint8
	Value []byte
}

func String(id uint16, v string) Field {
	return Field{ID: id, Type: TypeString, Value: []byte(v)}
}

func Bytes(id uint16, v []byte) Field {
	return Field{ID: id, Type: TypeBytes, Value: v}
}

func U32(id uint16, v uint32) Field {
	val := make([]byte, 4)
	binary.BigEndian.PutUint32(val, v)
	return Field{ID: id, Type: TypeU32, Value: val}
}

func U64(id uint16, v uint64) Field {
	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, v)
	return Field{ID: id, Type: TypeU64, Value: val}
}

// Append encodes f onto dst and returns the extended slice.
func Append(dst []byte, f Field) []byte {
	var hdr [FieldHeaderLen]byte
	binary.BigEndian.PutUint16(hdr[0:2], f.ID)
	hdr[2] = f.Type
	binary.BigEndian.PutUint32(hdr[3:7], uint32(len(f.Value)))
	dst = append(dst, hdr[:]...)
	return append(dst, f.Value...)
}

// Encode serializes fields in order.
func Encode(fields []Field) []byte {
	out := make([]byte, 0, len(fields)*16)
	for _, f := range fields {
		out = Append(out, f)
	}
	return out
}

// Decode parses every field in payload. The payload must contain whole
// fields and nothing else.
func Decode(payload []byte) ([]Field, error) {
	fields := make([]Field, 0, 4)
	i := 0
	for i < len(payload) {
		if len(payload)-i < FieldHeaderLen {
			return nil, ErrShortFieldHeader
		}
		id := binary.BigEndian.Uint16(payload[i : i+2])
		typeID := payload[i+2]
		l := binary.BigEndian.Uint32(payload[i+3 : i+7])
		i += FieldHeaderLen
		if uint32(len(payload)-i) < l {
			return nil, ErrShortFieldValue
		}
		val := make([]byte, l)
		copy(val, payload[i:i+int(l)])
		i += int(l)
		fields = append(fields, Field{ID: id, Type: typeID, Value: val})
	}
	return fields, nil
}

// Get returns the first field with the given id.
func Get(fields []Field, id uint16) (Field, bool) {
	for _, f := range fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// GetString returns the value of a required string field.
func GetString(fields []Field, id uint16) (string, error) {
	f, ok := Get(fields, id)
	if !ok {
		return "", fmt.Errorf("%w: id=%d", ErrFieldMissing, id)
	}
	if f.Type != TypeString {
		return "", fmt.Errorf("%w: id=%d got=%d want=%d", ErrTypeMismatch, id, f.Type, TypeString)
	}
	return string(f.Value), nil
}

// GetU32 returns the value of a required u32 field.
func GetU32(fields []Field, id uint16) (uint32, error) {
	f, ok := Get(fields, id)
	if !ok {
		return 0, fmt.Errorf("%w: id=%d", ErrFieldMissing, id)
	}
	if f.Type != TypeU32 || len(f.Value) != 4 {
		return 0, fmt.Errorf("%w: id=%d got=%d want=%d", ErrTypeMismatch, id, f.Type, TypeU32)
	}
	return binary.BigEndian.Uint32(f.Value), nil
}

// GetU64 returns the value of a required u64 field.
func GetU64(fields []Field, id uint16) (uint64, error) {
	f, ok := Get(fields, id)
	if !ok {
		return 0, fmt.Errorf("%w: id=%d", ErrFieldMissing, id)
	}
	if f.Type != TypeU64 || len(f.Value) != 8 {
		return 0, fmt.Errorf("%w: id=%d got=%d want=%d", ErrTypeMismatch, id, f.Type, TypeU64)
	}
	return binary.BigEndian.Uint64(f.Value), nil
}
