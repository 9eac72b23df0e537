package security

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken covers malformed, expired, wrongly signed, and wrong-kind tokens.
var ErrInvalidToken = errors.New("invalid token")

// TokenKind selects which secret and lifetime a token is minted and verified with.
type TokenKind int

const (
	AccessToken TokenKind = iota + 1
	RefreshToken
)

func (k TokenKind) String() string {
	switch k {
	case AccessToken:
		return "access"
	case RefreshToken:
		return "refresh"
	}
	return "unknown"
}

// Identity is the payload every token carries.
type Identity struct {
	UserID   string
	Email    string
	Username string
	Role     string
}

type tokenClaims struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Kind     string `json:"typ"`
	jwt.RegisteredClaims
}

type kindConfig struct {
	secret []byte
	ttl    time.Duration
}

// TokenCodec signs and verifies both token kinds. It holds no mutable state.
type TokenCodec struct {
	kinds map[TokenKind]kindConfig
	now   func() time.Time
}

func NewTokenCodec(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) (*TokenCodec, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("token secrets must not be empty")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	return &TokenCodec{
		kinds: map[TokenKind]kindConfig{
			AccessToken:  {secret: []byte(accessSecret), ttl: accessTTL},
			RefreshToken: {secret: []byte(refreshSecret), ttl: refreshTTL},
		},
		now: time.Now,
	}, nil
}

// TTL returns the configured lifetime of kind.
func (c *TokenCodec) TTL(kind TokenKind) time.Duration {
	return c.kinds[kind].ttl
}

// Issue mints a token of the given kind. Every token gets a random jti so two
// tokens issued for the same identity within one second still differ.
func (c *TokenCodec) Issue(kind TokenKind, id Identity) (string, time.Time, error) {
	kc, ok := c.kinds[kind]
	if !ok {
		return "", time.Time{}, fmt.Errorf("unknown token kind %d", kind)
	}

	now := c.now()
	expiresAt := now.Add(kc.ttl)
	claims := tokenClaims{
		Email:    id.Email,
		Username: id.Username,
		Role:     id.Role,
		Kind:     kind.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString(kc.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign jwt: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature, expiry, and kind. All failures collapse to ErrInvalidToken.
func (c *TokenCodec) Verify(kind TokenKind, tokenStr string) (Identity, error) {
	kc, ok := c.kinds[kind]
	if !ok || tokenStr == "" {
		return Identity{}, ErrInvalidToken
	}

	var claims tokenClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return kc.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	if claims.Kind != kind.String() || claims.Subject == "" {
		return Identity{}, ErrInvalidToken
	}

	return Identity{
		UserID:   claims.Subject,
		Email:    claims.Email,
		Username: claims.Username,
		Role:     claims.Role,
	}, nil
}

func (c *TokenCodec) IssueAccessToken(id Identity) (string, error) {
	token, _, err := c.Issue(AccessToken, id)
	return token, err
}

func (c *TokenCodec) IssueRefreshToken(id Identity) (string, error) {
	token, _, err := c.Issue(RefreshToken, id)
	return token, err
}

func (c *TokenCodec) VerifyAccessToken(token string) (Identity, error) {
	return c.Verify(AccessToken, token)
}

func (c *TokenCodec) VerifyRefreshToken(token string) (Identity, error) {
	return c.Verify(RefreshToken, token)
}

// HashToken returns the hex SHA-256 of token. It is deterministic so a presented
// refresh token can be matched against stored hashes by equality.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
