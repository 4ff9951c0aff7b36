package protocol

import (
	"fmt"

	"github.com/chocolzs/linkura-go/internal/protocol/tlv"
)

// Message type tags. Control-plane messages live in the 0xffxx band,
// matching the server's RPC numbering; data-plane messages use low tags.
const (
	TypeLoginRequest    uint16 = 0x0001
	TypeLoginResponse   uint16 = 0x0002
	TypeConnectRequest  uint16 = 0x0003
	TypeConnectResponse uint16 = 0x0004
	TypeDataQuery       uint16 = 0x0005
	TypeDataResponse    uint16 = 0x0006
	TypeHeartbeat       uint16 = 0xffa1
	TypeError           uint16 = 0xffe0
)

// Payload field IDs shared by the known message kinds. DataQuery params use
// caller-chosen IDs at or above FieldParamBase.
const (
	FieldPlayerID         uint16 = 1
	FieldDeviceSpecificID uint16 = 2
	FieldClientVersion    uint16 = 3
	FieldSessionToken     uint16 = 4
	FieldPlayerName       uint16 = 5
	FieldPlayerLevel      uint16 = 6
	FieldResource         uint16 = 7
	FieldRecord           uint16 = 8
	FieldTimestampMS      uint16 = 9
	FieldErrorCode        uint16 = 10
	FieldErrorReason      uint16 = 11
	FieldPassword         uint16 = 12

	FieldParamBase uint16 = 0x0100
)

// Error codes carried by Error messages.
const (
	CodeUnauthorized       uint32 = 401
	CodeInvalidCredentials uint32 = 403
	CodeNotFound           uint32 = 404
	CodeServerBusy         uint32 = 503
)

// Message is the closed set of wire message kinds. Unrecognized type tags
// decode to Unknown rather than failing, so new server messages never break
// older clients.
type Message interface {
	MessageType() uint16
	encodePayload() ([]byte, error)
}

// LoginRequest submits a device identity for a session token.
type LoginRequest struct {
	PlayerID         string
	DeviceSpecificID string
	ClientVersion    string
}

func (LoginRequest) MessageType() uint16 { return TypeLoginRequest }

func (m LoginRequest) encodePayload() ([]byte, error) {
	return tlv.Encode([]tlv.Field{
		tlv.String(FieldPlayerID, m.PlayerID),
		tlv.String(FieldDeviceSpecificID, m.DeviceSpecificID),
		tlv.String(FieldClientVersion, m.ClientVersion),
	}), nil
}

// LoginResponse carries the issued session token.
type LoginResponse struct {
	SessionToken string
	PlayerName   string
	PlayerLevel  uint32
}

func (LoginResponse) MessageType() uint16 { return TypeLoginResponse }

func (m LoginResponse) encodePayload() ([]byte, error) {
	return tlv.Encode([]tlv.Field{
		tlv.String(FieldSessionToken, m.SessionToken),
		tlv.String(FieldPlayerName, m.PlayerName),
		tlv.U32(FieldPlayerLevel, m.PlayerLevel),
	}), nil
}

// ConnectRequest links an account by password and asks the server for the
// device-specific id that future logins will use. The password exists only
// for the duration of this exchange and is never persisted.
type ConnectRequest struct {
	PlayerID      string
	Password      string
	ClientVersion string
}

func (ConnectRequest) MessageType() uint16 { return TypeConnectRequest }

func (m ConnectRequest) encodePayload() ([]byte, error) {
	return tlv.Encode([]tlv.Field{
		tlv.String(FieldPlayerID, m.PlayerID),
		tlv.String(FieldPassword, m.Password),
		tlv.String(FieldClientVersion, m.ClientVersion),
	}), nil
}

// ConnectResponse returns the durable device identity for a linked account.
type ConnectResponse struct {
	DeviceSpecificID string
}

func (ConnectResponse) MessageType() uint16 { return TypeConnectResponse }

func (m ConnectResponse) encodePayload() ([]byte, error) {
	return tlv.Encode([]tlv.Field{
		tlv.String(FieldDeviceSpecificID, m.DeviceSpecificID),
	}), nil
}

// DataQuery requests one named resource with optional parameters.
type DataQuery struct {
	Resource string
	Params   []tlv.Field
}

func (DataQuery) MessageType() uint16 { return TypeDataQuery }

func (m DataQuery) encodePayload() ([]byte, error) {
	fields := make([]tlv.Field, 0, 1+len(m.Params))
	fields = append(fields, tlv.String(FieldResource, m.Resource))
	fields = append(fields, m.Params...)
	return tlv.Encode(fields), nil
}

// DataResponse carries zero or more opaque records for a resource. Record
// semantics belong to the caller, not the codec.
type DataResponse struct {
	Resource string
	Records  [][]byte
}

func (DataResponse) MessageType() uint16 { return TypeDataResponse }

func (m DataResponse) encodePayload() ([]byte, error) {
	fields := make([]tlv.Field, 0, 1+len(m.Records))
	fields = append(fields, tlv.String(FieldResource, m.Resource))
	for _, rec := range m.Records {
		fields = append(fields, tlv.Bytes(FieldRecord, rec))
	}
	return tlv.Encode(fields), nil
}

// Heartbeat is the keepalive exchanged on live-session streams.
type Heartbeat struct {
	TimestampMS uint64
}

func (Heartbeat) MessageType() uint16 { return TypeHeartbeat }

func (m Heartbeat) encodePayload() ([]byte, error) {
	return tlv.Encode([]tlv.Field{tlv.U64(FieldTimestampMS, m.TimestampMS)}), nil
}

// Error is the server-side rejection of a request.
type Error struct {
	Code   uint32
	Reason string
}

func (Error) MessageType() uint16 { return TypeError }

func (m Error) encodePayload() ([]byte, error) {
	return tlv.Encode([]tlv.Field{
		tlv.U32(FieldErrorCode, m.Code),
		tlv.String(FieldErrorReason, m.Reason),
	}), nil
}

// Unknown preserves a message whose type tag this client does not know.
type Unknown struct {
	RawType uint16
	Payload []byte
}

func (m Unknown) MessageType() uint16 { return m.RawType }

func (m Unknown) encodePayload() ([]byte, error) { return m.Payload, nil }

func decodePayload(msgType uint16, payload []byte) (Message, error) {
	if msgType == 0 {
		return nil, fmt.Errorf("%w: zero message type", ErrMalformedPayload)
	}

	switch msgType {
	case TypeLoginRequest, TypeLoginResponse, TypeConnectRequest, TypeConnectResponse,
		TypeDataQuery, TypeDataResponse, TypeHeartbeat, TypeError:
	default:
		raw := make([]byte, len(payload))
		copy(raw, payload)
		return Unknown{RawType: msgType, Payload: raw}, nil
	}

	fields, err := tlv.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	switch msgType {
	case TypeLoginRequest:
		return decodeLoginRequest(fields)
	case TypeLoginResponse:
		return decodeLoginResponse(fields)
	case TypeConnectRequest:
		return decodeConnectRequest(fields)
	case TypeConnectResponse:
		return decodeConnectResponse(fields)
	case TypeDataQuery:
		return decodeDataQuery(fields)
	case TypeDataResponse:
		return decodeDataResponse(fields)
	case TypeHeartbeat:
		return decodeHeartbeat(fields)
	default:
		return decodeError(fields)
	}
}

func decodeLoginRequest(fields []tlv.Field) (Message, error) {
	playerID, err := tlv.GetString(fields, FieldPlayerID)
	if err != nil {
		return nil, fmt.Errorf("%w: login request: %v", ErrMalformedPayload, err)
	}
	deviceID, err := tlv.GetString(fields, FieldDeviceSpecificID)
	if err != nil {
		return nil, fmt.Errorf("%w: login request: %v", ErrMalformedPayload, err)
	}
	clientVersion, err := tlv.GetString(fields, FieldClientVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: login request: %v", ErrMalformedPayload, err)
	}
	return LoginRequest{PlayerID: playerID, DeviceSpecificID: deviceID, ClientVersion: clientVersion}, nil
}

func decodeLoginResponse(fields []tlv.Field) (Message, error) {
	token, err := tlv.GetString(fields, FieldSessionToken)
	if err != nil {
		return nil, fmt.Errorf("%w: login response: %v", ErrMalformedPayload, err)
	}
	name, err := tlv.GetString(fields, FieldPlayerName)
	if err != nil {
		return nil, fmt.Errorf("%w: login response: %v", ErrMalformedPayload, err)
	}
	level, err := tlv.GetU32(fields, FieldPlayerLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: login response: %v", ErrMalformedPayload, err)
	}
	return LoginResponse{SessionToken: token, PlayerName: name, PlayerLevel: level}, nil
}

func decodeConnectRequest(fields []tlv.Field) (Message, error) {
	playerID, err := tlv.GetString(fields, FieldPlayerID)
	if err != nil {
		return nil, fmt.Errorf("%w: connect request: %v", ErrMalformedPayload, err)
	}
	password, err := tlv.GetString(fields, FieldPassword)
	if err != nil {
		return nil, fmt.Errorf("%w: connect request: %v", ErrMalformedPayload, err)
	}
	clientVersion, err := tlv.GetString(fields, FieldClientVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: connect request: %v", ErrMalformedPayload, err)
	}
	return ConnectRequest{PlayerID: playerID, Password: password, ClientVersion: clientVersion}, nil
}

func decodeConnectResponse(fields []tlv.Field) (Message, error) {
	deviceID, err := tlv.GetString(fields, FieldDeviceSpecificID)
	if err != nil {
		return nil, fmt.Errorf("%w: connect response: %v", ErrMalformedPayload, err)
	}
	return ConnectResponse{DeviceSpecificID: deviceID}, nil
}

func decodeDataQuery(fields []tlv.Field) (Message, error) {
	resource, err := tlv.GetString(fields, FieldResource)
	if err != nil {
		return nil, fmt.Errorf("%w: data query: %v", ErrMalformedPayload, err)
	}
	var params []tlv.Field
	for _, f := range fields {
		if f.ID >= FieldParamBase {
			params = append(params, f)
		}
	}
	return DataQuery{Resource: resource, Params: params}, nil
}

func decodeDataResponse(fields []tlv.Field) (Message, error) {
	resource, err := tlv.GetString(fields, FieldResource)
	if err != nil {
		return nil, fmt.Errorf("%w: data response: %v", ErrMalformedPayload, err)
	}
	var records [][]byte
	for _, f := range fields {
		if f.ID == FieldRecord {
			records = append(records, f.Value)
		}
	}
	return DataResponse{Resource: resource, Records: records}, nil
}

func decodeHeartbeat(fields []tlv.Field) (Message, error) {
	ts, err := tlv.GetU64(fields, FieldTimestampMS)
	if err != nil {
		return nil, fmt.Errorf("%w: heartbeat: %v", ErrMalformedPayload, err)
	}
	return Heartbeat{TimestampMS: ts}, nil
}

func decodeError(fields []tlv.Field) (Message, error) {
	code, err := tlv.GetU32(fields, FieldErrorCode)
	if err != nil {
		return nil, fmt.Errorf("%w: error message: %v", ErrMalformedPayload, err)
	}
	reason, err := tlv.GetString(fields, FieldErrorReason)
	if err != nil {
		return nil, fmt.Errorf("%w: error message: %v", ErrMalformedPayload, err)
	}
	return Error{Code: code, Reason: reason}, nil
}
