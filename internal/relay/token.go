package relay

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// ErrNotConfigured is returned when no API credentials are available.
var ErrNotConfigured = errors.New("relay credentials not configured")

// VideoGrant lists what a token holder may do inside a room.
type VideoGrant struct {
	RoomJoin       bool   `json:"roomJoin"`
	Room           string `json:"room"`
	CanPublish     bool   `json:"canPublish"`
	CanPublishData bool   `json:"canPublishData"`
	CanSubscribe   bool   `json:"canSubscribe"`
}

// Claims is the payload of a room join token.
type Claims struct {
	Video VideoGrant `json:"video"`
	jwt.RegisteredClaims
}

// TokenIssuer mints join tokens signed with the relay API secret.
type TokenIssuer struct {
	apiKey string
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer builds an issuer. A zero ttl defaults to one hour.
func NewTokenIssuer(apiKey, apiSecret string, ttl time.Duration, now func() time.Time) *TokenIssuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{apiKey: apiKey, secret: []byte(apiSecret), ttl: ttl, now: now}
}

// Configured reports whether tokens can be minted.
func (i *TokenIssuer) Configured() bool {
	return i != nil && i.apiKey != "" && len(i.secret) > 0
}

// Issue signs a token for identity to join room. An empty identity gets a
// random caller name.
func (i *TokenIssuer) Issue(identity, room string) (string, error) {
	if !i.Configured() {
		return "", ErrNotConfigured
	}
	room = strings.TrimSpace(room)
	if room == "" {
		return "", errors.New("room required")
	}
	identity = strings.TrimSpace(identity)
	if identity == "" {
		identity = RandomIdentity()
	}

	now := i.now().Truncate(time.Second)
	claims := &Claims{
		Video: VideoGrant{
			RoomJoin:       true,
			Room:           room,
			CanPublish:     true,
			CanPublishData: true,
			CanSubscribe:   true,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.apiKey,
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Parse validates a token minted by this issuer.
func (i *TokenIssuer) Parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	}, jwt.WithIssuer(i.apiKey), jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// RandomIdentity returns a participant name like "Caller-3f9a1c".
func RandomIdentity() string {
	var b [3]byte
	_, _ = rand.Read(b[:])
	return "Caller-" + hex.EncodeToString(b[:])
}
