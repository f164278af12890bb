package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fluxchat/backend/internal/model/catalog"
)

// ErrInvalidToken covers expired, malformed and badly-signed tokens.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the opaque result of resolving a token.
type Identity struct {
	UserID   string
	Username string
	Tier     catalog.Tier
}

// Claims is the payload stored inside issued JWTs.
type Claims struct {
	Username string `json:"username"`
	Tier     string `json:"tier"`
	jwt.RegisteredClaims
}

// Manager signs and resolves access tokens. It is the identity collaborator
// for the rest of the service.
type Manager struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

// NewManager builds a token manager from the configured secret.
func NewManager(secret string, ttl time.Duration, issuer string) *Manager {
	return &Manager{secret: []byte(secret), ttl: ttl, issuer: issuer}
}

// GenerateToken creates a signed JWT for a user.
func (m *Manager) GenerateToken(userID, username string, tier catalog.Tier) (string, error) {
	now := time.Now()
	claims := &Claims{
		Username: username,
		Tier:     string(tier),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ResolveToken validates a token string and returns the identity it names.
func (m *Manager) ResolveToken(tokenString string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	tier := catalog.Tier(claims.Tier)
	if !tier.Valid() {
		tier = catalog.TierFree
	}

	return Identity{
		UserID:   claims.Subject,
		Username: claims.Username,
		Tier:     tier,
	}, nil
}
