package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/medconsult/medconsult/internal/platform/apperr"
)

type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleDoctor, RolePatient, RoleAdmin:
		return true
	}
	return false
}

// Claims carries the holder's identity reference and role. Permissions are
// decided by the routes, not encoded here.
type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// Token is an issued bearer credential.
type Token struct {
	Value     string
	ID        string
	ExpiresAt time.Time
}

// Issuer signs and verifies HS256 bearer tokens with a fixed lifetime.
type Issuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewIssuer(key []byte, ttl time.Duration) *Issuer {
	return &Issuer{key: key, ttl: ttl, now: time.Now}
}

// RandomKey returns a fresh 32-byte signing key for development runs
// without JWT_SECRET.
func RandomKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return key, nil
}

func (i *Issuer) Issue(subject uuid.UUID, role Role) (Token, error) {
	if !role.Valid() {
		return Token{}, fmt.Errorf("invalid role %q", role)
	}
	now := i.now()
	exp := now.Add(i.ttl)
	jti := uuid.NewString()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.String(),
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role: role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{Value: signed, ID: jti, ExpiresAt: exp.Truncate(time.Second)}, nil
}

var errBadClaims = errors.New("token claims incomplete")

// Parse verifies a token and returns its session. Expired, malformed and
// badly signed tokens all yield the same apperr.ErrAuth.
func (i *Issuer) Parse(tokenStr string) (Session, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return Session{}, apperr.Auth(err)
	}

	uid, err := uuid.Parse(claims.Subject)
	if err != nil || claims.ID == "" || !claims.Role.Valid() {
		return Session{}, apperr.Auth(errBadClaims)
	}
	return Session{
		UserID:    uid,
		Role:      claims.Role,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
