package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const sessionIssuer = "bloom"

// SessionClaims are the claims of a bloom session token.
type SessionClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// SessionManager issues and validates HS256 session tokens.
type SessionManager struct {
	secret     []byte
	expiration time.Duration
	now        func() time.Time
}

func NewSessionManager(secret string, expiration time.Duration) *SessionManager {
	return &SessionManager{
		secret:     []byte(secret),
		expiration: expiration,
		now:        time.Now,
	}
}

func (m *SessionManager) Issue(userID, email string) (string, error) {
	now := m.now()
	claims := &SessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, nil
}

func (m *SessionManager) Validate(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return m.secret, nil
	}, jwt.WithIssuer(sessionIssuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// FederatedConfig describes the external identity provider whose ID tokens
// are accepted. Key is either an HMAC secret or a PEM encoded RSA public key.
type FederatedConfig struct {
	Issuer   string
	Audience string
	Key      string
}

// FederatedClaims are the fields read from an external ID token.
type FederatedClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// FederatedVerifier checks ID tokens issued by the configured provider.
type FederatedVerifier struct {
	issuer   string
	audience string
	hmacKey  []byte
	rsaKey   *rsa.PublicKey
	now      func() time.Time
}

func NewFederatedVerifier(cfg FederatedConfig) (*FederatedVerifier, error) {
	if cfg.Issuer == "" || cfg.Audience == "" || cfg.Key == "" {
		return nil, errors.New("federated issuer, audience and key are required")
	}

	v := &FederatedVerifier{issuer: cfg.Issuer, audience: cfg.Audience, now: time.Now}
	if strings.Contains(cfg.Key, "-----BEGIN") {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.Key))
		if err != nil {
			return nil, fmt.Errorf("failed to parse federated public key: %w", err)
		}
		v.rsaKey = key
	} else {
		v.hmacKey = []byte(cfg.Key)
	}
	return v, nil
}

func (v *FederatedVerifier) Verify(idToken string) (*FederatedClaims, error) {
	token, err := jwt.ParseWithClaims(idToken, &FederatedClaims{}, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA:
			if v.rsaKey != nil {
				return v.rsaKey, nil
			}
		case *jwt.SigningMethodHMAC:
			if v.hmacKey != nil {
				return v.hmacKey, nil
			}
		}
		return nil, errors.New("invalid signing method")
	},
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*FederatedClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
