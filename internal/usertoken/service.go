// Package usertoken issues and verifies the RS256 bearer tokens that gate the
// API. Tokens are stateless: a token stays valid until it expires.
package usertoken

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"wildwatch/internal/util"
	"wildwatch/pkg/domain"
)

// DefaultLeeway is the clock-skew tolerance suggested for iat and nbf.
const DefaultLeeway = 30 * time.Second

const (
	defaultIssuer   = "wildwatch-api"
	defaultAudience = "wildwatch-clients"
	defaultTTL      = time.Hour
	defaultKeyID    = "jwt-active"
)

var (
	ErrMissingCredential   = errors.New("missing credential")
	ErrExpiredCredential   = errors.New("token expired")
	ErrMalformedCredential = errors.New("malformed credential")
)

// Config tunes claim issuance and validation.
type Config struct {
	Issuer   string
	Audience string
	// Leeway tolerates clock skew on iat and nbf. Zero disables it.
	Leeway time.Duration
	TTL    time.Duration
}

// Claims is what a verified token says about its holder.
type Claims struct {
	SubjectID string
	Role      domain.UserRole
	ExpiresAt time.Time
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Service signs tokens with one active key and verifies against the active
// key plus any previous keys still in rotation.
type Service struct {
	signer    *rsa.PrivateKey
	signerKid string
	verifiers map[string]*rsa.PublicKey

	issuer   string
	audience string
	leeway   time.Duration
	ttl      time.Duration
	now      func() time.Time
}

// New builds a service around an in-memory key.
func New(key *rsa.PrivateKey, keyID string, cfg Config) (*Service, error) {
	if key == nil {
		return nil, errors.New("token service requires a signing key")
	}
	keyID = strings.TrimSpace(keyID)
	if keyID == "" {
		keyID = defaultKeyID
	}
	cfg = normalizeConfig(cfg)
	return &Service{
		signer:    key,
		signerKid: keyID,
		verifiers: map[string]*rsa.PublicKey{keyID: &key.PublicKey},
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		leeway:    cfg.Leeway,
		ttl:       cfg.TTL,
		now:       time.Now,
	}, nil
}

// NewFromPEM loads the active private key and previous verification keys
// (kid -> public key path) from disk.
func NewFromPEM(privateKeyPath, keyID string, verifyKeyFiles map[string]string, cfg Config) (*Service, error) {
	key, err := LoadPrivateKey(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load jwt private key: %w", err)
	}
	s, err := New(key, keyID, cfg)
	if err != nil {
		return nil, err
	}
	for kid, path := range verifyKeyFiles {
		kid = strings.TrimSpace(kid)
		path = strings.TrimSpace(path)
		if kid == "" || path == "" || kid == s.signerKid {
			continue
		}
		pub, err := LoadPublicKey(path)
		if err != nil {
			return nil, fmt.Errorf("load verify key %q: %w", kid, err)
		}
		s.addVerifyKey(kid, pub)
	}
	return s, nil
}

// addVerifyKey accepts tokens signed by a retired key.
func (s *Service) addVerifyKey(kid string, pub *rsa.PublicKey) {
	kid = strings.TrimSpace(kid)
	if kid == "" || pub == nil || kid == s.signerKid {
		return
	}
	s.verifiers[kid] = pub
}

// Issue signs a token for the user carrying the user's current role.
func (s *Service) Issue(user domain.User) (string, error) {
	if strings.TrimSpace(user.ID) == "" {
		return "", errors.New("token subject required")
	}
	if !user.Role.Valid() {
		return "", fmt.Errorf("token role %q invalid", user.Role)
	}
	now := s.now().UTC()
	claims := tokenClaims{
		Role: string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        util.RandomHex(12),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.signerKid
	return token.SignedString(s.signer)
}

// Verify checks a token and returns its claims. An expired token is reported
// as ErrExpiredCredential even when its signature is also bad.
func (s *Service) Verify(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrMissingCredential
	}

	var peek tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &peek); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}
	if peek.ExpiresAt == nil {
		return Claims{}, fmt.Errorf("%w: exp missing", ErrMalformedCredential)
	}
	// exp is strict; leeway only covers iat and nbf.
	if !s.now().Before(peek.ExpiresAt.Time) {
		return Claims{}, ErrExpiredCredential
	}

	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredCredential
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}
	if !parsed.Valid {
		return Claims{}, ErrMalformedCredential
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return Claims{}, fmt.Errorf("%w: subject missing", ErrMalformedCredential)
	}
	role := domain.UserRole(claims.Role)
	if !role.Valid() {
		return Claims{}, fmt.Errorf("%w: role %q", ErrMalformedCredential, claims.Role)
	}
	return Claims{SubjectID: subject, Role: role, ExpiresAt: claims.ExpiresAt.Time.UTC()}, nil
}

func (s *Service) keyFunc(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return nil, errors.New("token key id required")
	}
	pub, ok := s.verifiers[kid]
	if !ok {
		return nil, errors.New("unknown token key")
	}
	return pub, nil
}

// JWKS lists every verification key, sorted by kid.
func (s *Service) JWKS() []JWK {
	kids := make([]string, 0, len(s.verifiers))
	for kid := range s.verifiers {
		kids = append(kids, kid)
	}
	sort.Strings(kids)
	out := make([]JWK, 0, len(kids))
	for _, kid := range kids {
		out = append(out, toJWK(kid, s.verifiers[kid]))
	}
	return out
}

func normalizeConfig(cfg Config) Config {
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	if cfg.Issuer == "" {
		cfg.Issuer = defaultIssuer
	}
	if cfg.Audience == "" {
		cfg.Audience = defaultAudience
	}
	if cfg.Leeway < 0 {
		cfg.Leeway = 0
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	return cfg
}
