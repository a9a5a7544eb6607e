package authtoken

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultAccessTTLSeconds int64 = 3600
	RefreshTTL                    = 7 * 24 * time.Hour
)

var (
	ErrInvalidSignature = errors.New("token signature is invalid")
	ErrExpired          = errors.New("token is expired")
	ErrMalformed        = errors.New("token is malformed")
)

// Claims is the payload carried inside every session token.
type Claims struct {
	Subject   string `json:"sub"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// UserID returns the subject as a UUID. Verify guarantees it parses.
func (c *Claims) UserID() uuid.UUID {
	id, _ := uuid.Parse(c.Subject)
	return id
}

// jwt.Claims implementation. Time validation is done by the codec itself,
// so these only expose the raw values.

func (c *Claims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.ExpiresAt, 0)), nil
}

func (c *Claims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.IssuedAt, 0)), nil
}

func (c *Claims) GetNotBefore() (*jwt.NumericDate, error) {
	return nil, nil
}

func (c *Claims) GetIssuer() (string, error) {
	return "", nil
}

func (c *Claims) GetSubject() (string, error) {
	return c.Subject, nil
}

func (c *Claims) GetAudience() (jwt.ClaimStrings, error) {
	return nil, nil
}

// Pair is what login and refresh hand back to the client.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Codec signs and verifies HS256 session tokens. It holds no state besides
// the clock, so a single instance is shared by every request.
type Codec struct {
	now func() time.Time
}

func NewCodec() *Codec {
	return &Codec{now: time.Now}
}

// NewCodecWithClock is used by tests that need to move the verifying clock.
func NewCodecWithClock(now func() time.Time) *Codec {
	return &Codec{now: now}
}

func (c *Codec) IssueAccess(subject uuid.UUID, username, role string, key []byte, ttlSeconds int64) (string, error) {
	return c.issue(subject, username, role, key, ttlSeconds)
}

func (c *Codec) IssueRefresh(subject uuid.UUID, username, role string, key []byte) (string, error) {
	return c.issue(subject, username, role, key, int64(RefreshTTL/time.Second))
}

// IssuePair mints a fresh access/refresh couple for the same identity.
func (c *Codec) IssuePair(subject uuid.UUID, username, role string, key []byte, accessTTLSeconds int64) (*Pair, error) {
	access, err := c.IssueAccess(subject, username, role, key, accessTTLSeconds)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := c.IssueRefresh(subject, username, role, key)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	return &Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    accessTTLSeconds,
	}, nil
}

func (c *Codec) issue(subject uuid.UUID, username, role string, key []byte, ttlSeconds int64) (string, error) {
	if ttlSeconds <= 0 {
		return "", fmt.Errorf("token ttl must be positive, got %ds", ttlSeconds)
	}
	now := c.now().Unix()
	if ttlSeconds > math.MaxInt64-now {
		return "", fmt.Errorf("token ttl of %ds overflows the expiry", ttlSeconds)
	}
	claims := &Claims{
		Subject:   subject.String(),
		Username:  username,
		Role:      role,
		IssuedAt:  now,
		ExpiresAt: now + ttlSeconds,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// Verify checks expiry first and then the signature, so an expired token is
// reported as ErrExpired whoever signed it. No store is consulted.
func (c *Codec) Verify(token string, key []byte) (*Claims, error) {
	unverified := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, unverified); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if unverified.ExpiresAt <= unverified.IssuedAt {
		return nil, fmt.Errorf("%w: exp must be after iat", ErrMalformed)
	}
	if !(c.now().Unix() < unverified.ExpiresAt) {
		return nil, ErrExpired
	}

	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrTokenUnverifiable) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, fmt.Errorf("%w: subject is not a uuid", ErrMalformed)
	}
	return claims, nil
}
