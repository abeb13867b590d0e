package usertoken

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"wildwatch/pkg/domain"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	s, err := New(key, "kid-1", Config{Issuer: "issuer-a", Audience: "aud-a"})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return s
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	s := newTestService(t)
	for _, role := range []domain.UserRole{domain.RoleUser, domain.RoleAdmin} {
		token, err := s.Issue(domain.User{ID: "u-" + string(role), Role: role})
		if err != nil {
			t.Fatalf("issue %s: %v", role, err)
		}
		claims, err := s.Verify(token)
		if err != nil {
			t.Fatalf("verify %s: %v", role, err)
		}
		if claims.SubjectID != "u-"+string(role) || claims.Role != role {
			t.Fatalf("unexpected claims: %+v", claims)
		}
		if d := time.Until(claims.ExpiresAt); d <= 59*time.Minute || d > time.Hour {
			t.Fatalf("expiry not about one hour out: %v", d)
		}
	}
}

func TestIssueRejectsUnknownRole(t *testing.T) {
	s := newTestService(t)
	if _, err := s.Issue(domain.User{ID: "u1", Role: "root"}); err == nil {
		t.Fatalf("expected invalid role error")
	}
	if _, err := s.Issue(domain.User{Role: domain.RoleUser}); err == nil {
		t.Fatalf("expected missing subject error")
	}
}

func TestVerifyMissing(t *testing.T) {
	s := newTestService(t)
	if _, err := s.Verify("  "); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected missing credential, got %v", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	s := newTestService(t)
	s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := s.Issue(domain.User{ID: "u1", Role: domain.RoleUser})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	s.now = time.Now
	if _, err := s.Verify(token); !errors.Is(err, ErrExpiredCredential) {
		t.Fatalf("expected expired credential, got %v", err)
	}

	// A tampered signature on an expired token still reports expiry.
	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + ".AAAA"
	if _, err := s.Verify(tampered); !errors.Is(err, ErrExpiredCredential) {
		t.Fatalf("expected expired credential for tampered token, got %v", err)
	}
}

func TestVerifyRejectsJustExpiredTokens(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	for _, leeway := range []time.Duration{0, DefaultLeeway} {
		s, err := New(key, "kid-1", Config{Leeway: leeway})
		if err != nil {
			t.Fatalf("new service: %v", err)
		}
		verifyAt := time.Now()
		s.now = func() time.Time { return verifyAt.Add(-time.Hour - 10*time.Second) }
		token, err := s.Issue(domain.User{ID: "u1", Role: domain.RoleUser})
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		s.now = func() time.Time { return verifyAt }
		if _, err := s.Verify(token); !errors.Is(err, ErrExpiredCredential) {
			t.Fatalf("leeway %v: token expired 10s ago must be rejected as expired, got %v", leeway, err)
		}
	}
}

func TestVerifyLeewayCoversIssuedAtSkew(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	verifyAt := time.Now()
	for _, tc := range []struct {
		leeway time.Duration
		wantOK bool
	}{
		{0, false},
		{DefaultLeeway, true},
	} {
		s, err := New(key, "kid-1", Config{Leeway: tc.leeway})
		if err != nil {
			t.Fatalf("new service: %v", err)
		}
		// Issuer clock runs 10s ahead of the verifier.
		s.now = func() time.Time { return verifyAt.Add(10 * time.Second) }
		token, err := s.Issue(domain.User{ID: "u1", Role: domain.RoleUser})
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		s.now = func() time.Time { return verifyAt }
		_, err = s.Verify(token)
		if tc.wantOK && err != nil {
			t.Fatalf("leeway %v: expected skewed token to verify, got %v", tc.leeway, err)
		}
		if !tc.wantOK && !errors.Is(err, ErrMalformedCredential) {
			t.Fatalf("leeway %v: expected malformed credential, got %v", tc.leeway, err)
		}
	}
}

func TestVerifyMalformed(t *testing.T) {
	s := newTestService(t)
	other := newTestService(t)
	foreign, err := other.Issue(domain.User{ID: "u1", Role: domain.RoleUser})
	if err != nil {
		t.Fatalf("issue foreign: %v", err)
	}

	wrongAud, err := New(s.signer, "kid-1", Config{Issuer: "issuer-a", Audience: "aud-b"})
	if err != nil {
		t.Fatalf("new wrong audience service: %v", err)
	}
	wrongAudToken, err := wrongAud.Issue(domain.User{ID: "u1", Role: domain.RoleUser})
	if err != nil {
		t.Fatalf("issue wrong audience: %v", err)
	}

	unknownKid := jwt.NewWithClaims(jwt.SigningMethodRS256, tokenClaims{
		Role: "user",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "issuer-a",
			Audience:  jwt.ClaimStrings{"aud-a"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})
	unknownKid.Header["kid"] = "kid-x"
	unknownKidToken, err := unknownKid.SignedString(s.signer)
	if err != nil {
		t.Fatalf("sign unknown kid: %v", err)
	}

	badRole := jwt.NewWithClaims(jwt.SigningMethodRS256, tokenClaims{
		Role: "root",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "issuer-a",
			Audience:  jwt.ClaimStrings{"aud-a"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})
	badRole.Header["kid"] = "kid-1"
	badRoleToken, err := badRole.SignedString(s.signer)
	if err != nil {
		t.Fatalf("sign bad role: %v", err)
	}

	cases := map[string]string{
		"garbage":        "not-a-jwt",
		"foreign key":    foreign,
		"wrong audience": wrongAudToken,
		"unknown kid":    unknownKidToken,
		"unknown role":   badRoleToken,
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Verify(token); !errors.Is(err, ErrMalformedCredential) {
				t.Fatalf("expected malformed credential, got %v", err)
			}
		})
	}
}

func TestRotatedKeyStillVerifies(t *testing.T) {
	old := newTestService(t)
	token, err := old.Issue(domain.User{ID: "u1", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	current, err := New(key, "kid-2", Config{Issuer: "issuer-a", Audience: "aud-a"})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := current.Verify(token); !errors.Is(err, ErrMalformedCredential) {
		t.Fatalf("expected unknown key rejection before rotation, got %v", err)
	}
	current.addVerifyKey("kid-1", &old.signer.PublicKey)
	claims, err := current.Verify(token)
	if err != nil || claims.Role != domain.RoleAdmin {
		t.Fatalf("verify with rotated key: %+v %v", claims, err)
	}
	keys := current.JWKS()
	if len(keys) != 2 || keys[0].Kid != "kid-1" || keys[1].Kid != "kid-2" {
		t.Fatalf("unexpected jwks: %+v", keys)
	}
	if keys[0].Alg != "RS256" || keys[0].N == "" || keys[0].E == "" {
		t.Fatalf("incomplete jwk: %+v", keys[0])
	}
}

func TestNewFromPEM(t *testing.T) {
	dir := t.TempDir()
	active, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate active key: %v", err)
	}
	previous, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate previous key: %v", err)
	}
	privPath := filepath.Join(dir, "active.pem")
	writePEM(t, privPath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(active))
	pubDER, err := x509.MarshalPKIXPublicKey(&previous.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pubPath := filepath.Join(dir, "previous.pub.pem")
	writePEM(t, pubPath, "PUBLIC KEY", pubDER)

	s, err := NewFromPEM(privPath, "kid-2", map[string]string{"kid-1": pubPath}, Config{})
	if err != nil {
		t.Fatalf("new from pem: %v", err)
	}
	if got := len(s.JWKS()); got != 2 {
		t.Fatalf("jwks size = %d, want 2", got)
	}
	if s.ttl != time.Hour {
		t.Fatalf("default ttl = %v, want 1h", s.ttl)
	}

	if _, err := NewFromPEM(filepath.Join(dir, "missing.pem"), "", nil, Config{}); err == nil {
		t.Fatalf("expected error for missing key file")
	}
}

func writePEM(t *testing.T, path, blockType string, der []byte) {
	t.Helper()
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
