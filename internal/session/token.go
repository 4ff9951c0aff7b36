package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("session: invalid token")

// PodClaim is the live-session endpoint the server embeds in connect
// tokens.
type PodClaim struct {
	Role    string `json:"role"`
	Scheme  string `json:"scheme"`
	Address string `json:"address"`
	Port    uint16 `json:"port"`
}

type tokenClaims struct {
	LinkLikeID string    `json:"link_like_id"`
	RoomID     string    `json:"room_id"`
	Role       string    `json:"role"`
	Pod        *PodClaim `json:"pod,omitempty"`
	jwt.RegisteredClaims
}

// TokenInfo is the client-visible slice of a session token's claims.
type TokenInfo struct {
	PlayerID  string
	RoomID    string
	Role      string
	Pod       *PodClaim
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// InspectToken extracts claims without verifying the signature. Only the
// server holds the signing key; the client reads claims for expiry tracking
// and live-session routing, and the server re-verifies on every request.
func InspectToken(token string) (TokenInfo, error) {
	var claims tokenClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return TokenInfo{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	info := TokenInfo{
		PlayerID: claims.LinkLikeID,
		RoomID:   claims.RoomID,
		Role:     claims.Role,
		Pod:      claims.Pod,
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}
