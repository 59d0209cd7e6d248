package tokenizer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/credgate/core"
	"github.com/layer-3/credgate/internal/eth"
	"github.com/layer-3/credgate/ports"
)

const AudienceSession = "credgate:session"

// JWTTokenizer implements the Tokenizer interface using JWT
type JWTTokenizer struct {
	signKey *ecdsa.PrivateKey
	now     func() time.Time
}

// NewJWTTokenizer creates a new JWT tokenizer signing with an ES256 (P-256) key
func NewJWTTokenizer(signKey *ecdsa.PrivateKey) *JWTTokenizer {
	return &JWTTokenizer{signKey: signKey, now: time.Now}
}

var _ ports.Tokenizer = (*JWTTokenizer)(nil)

// SessionToToken converts a Session to a signed JWT
func (j *JWTTokenizer) SessionToToken(session *core.Session) (string, error) {
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.Address,
			ID:        session.ID,
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceSession},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)

	signedToken, err := token.SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return signedToken, nil
}

// TokenToSession parses and verifies a session JWT
func (j *JWTTokenizer) TokenToSession(tokenStr string) (*core.Session, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &j.signKey.PublicKey, nil
	}, jwt.WithAudience(AudienceSession), jwt.WithTimeFunc(j.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, core.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, core.ErrInvalidToken
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, core.ErrInvalidToken
	}

	return &core.Session{
		ID:        claims.ID,
		Address:   claims.Subject,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// VerifySignature verifies a personal_sign signature over the challenge nonce
func (j *JWTTokenizer) VerifySignature(challenge *core.Challenge, signature string, address string) error {
	if !eth.SameAddress(challenge.Address, address) {
		return fmt.Errorf("address mismatch: %w", core.ErrInvalidSignature)
	}
	if !challenge.ExpiresAt.IsZero() && j.now().After(challenge.ExpiresAt) {
		return core.ErrTokenExpired
	}
	if err := eth.VerifyText(challenge.Nonce, signature, address); err != nil {
		return fmt.Errorf("personal_sign verification failed: %w", err)
	}
	return nil
}
