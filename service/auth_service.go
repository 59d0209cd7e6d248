package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/layer-3/credgate/core"
	"github.com/layer-3/credgate/internal/eth"
	"github.com/layer-3/credgate/ports"
)

const (
	DefaultNonceTTL   = 5 * time.Minute
	DefaultSessionTTL = 24 * time.Hour
)

// AuthService handles authentication business logic
type AuthService struct {
	tokenizer ports.Tokenizer
	store     ports.Store
	eventPub  ports.EventPublisher
	logger    log.Logger
	now       func() time.Time

	nonceTTL   time.Duration
	sessionTTL time.Duration
}

// NewAuthService creates a new authentication service
func NewAuthService(
	tokenizer ports.Tokenizer,
	store ports.Store,
	eventPub ports.EventPublisher,
) *AuthService {
	return &AuthService{
		tokenizer:  tokenizer,
		store:      store,
		eventPub:   eventPub,
		logger:     log.Root().New("service", "auth"),
		now:        time.Now,
		nonceTTL:   DefaultNonceTTL,
		sessionTTL: DefaultSessionTTL,
	}
}

// WithTTLs overrides the nonce and session lifetimes. Zero keeps the current value.
func (s *AuthService) WithTTLs(nonceTTL, sessionTTL time.Duration) *AuthService {
	if nonceTTL > 0 {
		s.nonceTTL = nonceTTL
	}
	if sessionTTL > 0 {
		s.sessionTTL = sessionTTL
	}
	return s
}

func nonceKey(address string) string   { return "nonce:" + address }
func sessionKey(address string) string { return "session:" + address }

// GenerateNonce issues a fresh single-use nonce for the wallet. A previous
// unused nonce is replaced.
func (s *AuthService) GenerateNonce(ctx context.Context, address string) (*core.Challenge, error) {
	address, err := eth.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	now := s.now()
	challenge := &core.Challenge{
		Address:   address,
		Nonce:     uuid.New().String(),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.nonceTTL),
	}

	if err := s.store.Set(ctx, nonceKey(address), challenge.Nonce, s.nonceTTL); err != nil {
		return nil, fmt.Errorf("failed to store nonce: %w", err)
	}

	s.logger.Debug("Nonce issued", "address", address)
	return challenge, nil
}

// Login consumes the wallet's nonce, verifies the signature over it and
// opens a new session. Any earlier session of the wallet stops validating.
func (s *AuthService) Login(ctx context.Context, address, signature string) (string, *core.Session, error) {
	address, err := eth.NormalizeAddress(address)
	if err != nil {
		return "", nil, err
	}

	// The nonce is removed even when verification fails, so each nonce gets one attempt
	nonce, err := s.store.Take(ctx, nonceKey(address))
	if err != nil {
		if errors.Is(err, core.ErrKeyNotFound) {
			return "", nil, core.ErrNonceNotFound
		}
		return "", nil, fmt.Errorf("failed to load nonce: %w", err)
	}

	challenge := &core.Challenge{Address: address, Nonce: nonce}
	if err := s.tokenizer.VerifySignature(challenge, signature, address); err != nil {
		return "", nil, fmt.Errorf("signature verification failed: %w", err)
	}

	now := s.now()
	session := &core.Session{
		ID:        uuid.New().String(),
		Address:   address,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.sessionTTL),
	}

	token, err := s.tokenizer.SessionToToken(session)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create session token: %w", err)
	}

	if err := s.store.Set(ctx, sessionKey(address), session.ID, s.sessionTTL); err != nil {
		return "", nil, fmt.Errorf("failed to store session: %w", err)
	}

	s.logger.Info("Session opened", "address", address, "session", session.ID)
	return token, session, nil
}

// ValidateSession checks that token is the wallet's current session token
func (s *AuthService) ValidateSession(ctx context.Context, address, token string) (*core.Session, error) {
	address, err := eth.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	session, err := s.tokenizer.TokenToSession(token)
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}

	if s.now().After(session.ExpiresAt) {
		return nil, core.ErrTokenExpired
	}

	if !eth.SameAddress(session.Address, address) {
		return nil, fmt.Errorf("session belongs to another wallet: %w", core.ErrInvalidToken)
	}

	current, err := s.store.Get(ctx, sessionKey(address))
	if err != nil {
		if errors.Is(err, core.ErrKeyNotFound) {
			return nil, core.ErrTokenInvalidated
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if current != session.ID {
		return nil, core.ErrTokenInvalidated
	}

	return session, nil
}

// Logout drops the wallet's session
func (s *AuthService) Logout(ctx context.Context, address string) error {
	address, err := eth.NormalizeAddress(address)
	if err != nil {
		return err
	}

	sessionID, err := s.store.Take(ctx, sessionKey(address))
	if err != nil {
		if errors.Is(err, core.ErrKeyNotFound) {
			return nil
		}
		return fmt.Errorf("failed to drop session: %w", err)
	}

	// The session is already gone from the store; a lost event only delays other instances
	if err := s.eventPub.PublishLogout(ctx, address, sessionID); err != nil {
		s.logger.Warn("Failed to publish logout event", "address", address, "err", err)
	}

	s.logger.Info("Session closed", "address", address, "session", sessionID)
	return nil
}
