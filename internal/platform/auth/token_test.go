package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/medconsult/medconsult/internal/platform/apperr"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only-32b")

func newTestIssuer(now time.Time) *Issuer {
	iss := NewIssuer(testSigningKey, time.Hour)
	iss.now = func() time.Time { return now }
	return iss
}

func TestIssuer_RoundTrip(t *testing.T) {
	now := time.Now()
	iss := newTestIssuer(now)
	uid := uuid.New()

	tok, err := iss.Issue(uid, RoleDoctor)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if tok.Value == "" || tok.ID == "" {
		t.Fatal("expected token value and id")
	}
	if !tok.ExpiresAt.Equal(now.Add(time.Hour).Truncate(time.Second)) {
		t.Errorf("unexpected expiry %s", tok.ExpiresAt)
	}

	sess, err := iss.Parse(tok.Value)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if sess.UserID != uid {
		t.Errorf("expected subject %s, got %s", uid, sess.UserID)
	}
	if sess.Role != RoleDoctor {
		t.Errorf("expected doctor role, got %s", sess.Role)
	}
	if sess.TokenID != tok.ID {
		t.Errorf("expected token id %s, got %s", tok.ID, sess.TokenID)
	}
}

func TestIssuer_InvalidRole(t *testing.T) {
	if _, err := newTestIssuer(time.Now()).Issue(uuid.New(), Role("nurse")); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestIssuer_ExpiredToken(t *testing.T) {
	issuedAt := time.Now().Add(-2 * time.Hour)
	tok, err := newTestIssuer(issuedAt).Issue(uuid.New(), RolePatient)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	_, err = newTestIssuer(time.Now()).Parse(tok.Value)
	if !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("expected auth error for expired token, got %v", err)
	}
}

func TestIssuer_FailuresCollapse(t *testing.T) {
	iss := newTestIssuer(time.Now())
	good, _ := iss.Issue(uuid.New(), RolePatient)

	other := NewIssuer([]byte("a-completely-different-signing-key!!"), time.Hour)
	badSig, _ := other.Issue(uuid.New(), RolePatient)

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString(), ID: "x"},
		Role:             RolePatient,
	})
	noExpStr, _ := noExp.SignedString(testSigningKey)

	badSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "not-a-uuid",
			ID:        "x",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: RolePatient,
	})
	badSubjectStr, _ := badSubject.SignedString(testSigningKey)

	cases := map[string]string{
		"malformed":     "not.a.jwt",
		"bad signature": badSig.Value,
		"truncated":     good.Value[:len(good.Value)-4],
		"no expiry":     noExpStr,
		"bad subject":   badSubjectStr,
		"alg none":      strings.Join([]string{"eyJhbGciOiJub25lIn0", "e30", ""}, "."),
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := iss.Parse(tok)
			if !errors.Is(err, apperr.ErrAuth) {
				t.Fatalf("expected auth error, got %v", err)
			}
			if apperr.HTTP(err).Message != "unauthorized" {
				t.Errorf("expected uniform message, got %v", apperr.HTTP(err).Message)
			}
		})
	}
}

func TestRandomKey(t *testing.T) {
	a, err := RandomKey()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := RandomKey()
	if len(a) != 32 {
		t.Errorf("expected 32 bytes, got %d", len(a))
	}
	if string(a) == string(b) {
		t.Error("expected distinct keys")
	}
}
