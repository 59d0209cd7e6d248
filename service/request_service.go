package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/layer-3/credgate/core"
	"github.com/layer-3/credgate/internal/eth"
	"github.com/layer-3/credgate/ports"
)

// idempotencyTTL bounds how long a replayed decision is recognised
const idempotencyTTL = 24 * time.Hour

// RequestService implements the access request rules on top of a repository
type RequestService struct {
	repo     ports.RequestRepository
	store    ports.Store
	eventPub ports.EventPublisher
	logger   log.Logger
	now      func() time.Time
}

// NewRequestService creates a new request service
func NewRequestService(repo ports.RequestRepository, store ports.Store, eventPub ports.EventPublisher) *RequestService {
	return &RequestService{
		repo:     repo,
		store:    store,
		eventPub: eventPub,
		logger:   log.Root().New("service", "requests"),
		now:      time.Now,
	}
}

// Create records a new pending request from recipient to student
func (s *RequestService) Create(ctx context.Context, recipient, student, description string, expiryMinutes int) (*core.AccessRequest, error) {
	student, err := eth.NormalizeAddress(strings.TrimSpace(student))
	if err != nil {
		return nil, &core.ValidationError{Field: "student_wallet", Message: "invalid wallet address"}
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, &core.ValidationError{Field: "description", Message: "description is required"}
	}
	if expiryMinutes <= 0 {
		expiryMinutes = core.DefaultExpiryMinutes
	}
	if expiryMinutes > core.MaxExpiryMinutes {
		return nil, &core.ValidationError{Field: "expiry_minutes", Message: fmt.Sprintf("must not exceed %d", core.MaxExpiryMinutes)}
	}

	now := s.now().UTC()
	request := &core.AccessRequest{
		ID:              uuid.New().String(),
		StudentWallet:   student,
		RecipientWallet: recipient,
		Description:     description,
		Status:          core.StatusPending,
		ExpiryTimestamp: now.Add(time.Duration(expiryMinutes) * time.Minute),
		CreatedAt:       now,
	}

	if err := s.repo.CreateRequest(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if err := s.eventPub.PublishRequestCreated(ctx, request); err != nil {
		s.logger.Warn("Failed to publish request event", "request", request.ID, "err", err)
	}

	s.logger.Info("Request created", "request", request.ID, "student", student, "recipient", recipient)
	return request, nil
}

// List returns the requests in which wallet appears in field
func (s *RequestService) List(ctx context.Context, field core.WalletField, wallet string) ([]core.RequestListing, error) {
	if !field.Valid() {
		return nil, core.ErrInvalidWalletField
	}

	requests, err := s.repo.ListRequests(ctx, field, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}

	now := s.now()
	listings := make([]core.RequestListing, 0, len(requests))
	for _, r := range requests {
		listings = append(listings, core.NewListing(r, now))
	}
	return listings, nil
}

// Get returns one request visible to wallet through field
func (s *RequestService) Get(ctx context.Context, id string, field core.WalletField, wallet string) (*core.RequestDetail, error) {
	if !field.Valid() {
		return nil, core.ErrInvalidWalletField
	}
	return s.repo.GetRequest(ctx, id, field, wallet)
}

// Respond applies the student's decision. A repeated call carrying the same
// idempotency key returns the stored outcome instead of failing.
func (s *RequestService) Respond(ctx context.Context, student, id string, decision core.Decision, idempotencyKey string) (*core.RequestDetail, error) {
	if err := decision.Validate(); err != nil {
		return nil, err
	}
	decision = decision.Distinct()

	replayKey := ""
	if idempotencyKey != "" {
		replayKey = "respond:" + student + ":" + idempotencyKey
		prior, err := s.store.Get(ctx, replayKey)
		switch {
		case err == nil && prior == id:
			s.logger.Debug("Replayed decision", "request", id)
			return s.repo.GetRequest(ctx, id, core.StudentWallet, student)
		case err == nil:
			return nil, &core.ValidationError{Field: "Idempotency-Key", Message: "key already used for another request"}
		case !errors.Is(err, core.ErrKeyNotFound):
			return nil, fmt.Errorf("failed to check idempotency key: %w", err)
		}
	}

	detail, err := s.repo.GetRequest(ctx, id, core.StudentWallet, student)
	if err != nil {
		return nil, err
	}
	if !detail.IsPending() {
		return nil, core.ErrRequestNotPending
	}
	if detail.IsExpired(s.now()) {
		return nil, core.ErrRequestExpired
	}

	if decision.Verdict == core.Accept {
		for _, transcriptID := range decision.TranscriptIDs {
			owner, err := s.repo.TranscriptOwner(ctx, transcriptID)
			if err != nil {
				return nil, err
			}
			if !eth.SameAddress(owner, student) {
				return nil, fmt.Errorf("%w: %s", core.ErrUnauthorizedTranscript, transcriptID)
			}
		}
	}

	if err := s.repo.ResolveRequest(ctx, id, decision); err != nil {
		return nil, err
	}

	if replayKey != "" {
		if err := s.store.Set(ctx, replayKey, id, idempotencyTTL); err != nil {
			s.logger.Warn("Failed to record idempotency key", "request", id, "err", err)
		}
	}

	resolved, err := s.repo.GetRequest(ctx, id, core.StudentWallet, student)
	if err != nil {
		return nil, err
	}

	if err := s.eventPub.PublishRequestResolved(ctx, &resolved.AccessRequest, decision); err != nil {
		s.logger.Warn("Failed to publish decision event", "request", id, "err", err)
	}

	s.logger.Info("Request resolved", "request", id, "status", resolved.Status)
	return resolved, nil
}

// AddTranscript registers a transcript. Institutions register on behalf of the
// owning student; without an owner_wallet the caller owns it.
func (s *RequestService) AddTranscript(ctx context.Context, caller string, transcript core.Transcript) (*core.Transcript, error) {
	transcript.TranscriptID = strings.TrimSpace(transcript.TranscriptID)
	if transcript.TranscriptID == "" {
		return nil, &core.ValidationError{Field: "transcript_id", Message: "transcript_id is required"}
	}
	if transcript.IPFSURIMetadata == "" && transcript.IPFSURIMediaHash == "" {
		return nil, &core.ValidationError{Field: "ipfs_uri_metadata", Message: "at least one IPFS URI is required"}
	}
	if transcript.OwnerWallet == "" {
		transcript.OwnerWallet = caller
	}
	owner, err := eth.NormalizeAddress(transcript.OwnerWallet)
	if err != nil {
		return nil, &core.ValidationError{Field: "owner_wallet", Message: "invalid wallet address"}
	}
	transcript.OwnerWallet = owner

	if err := s.repo.AddTranscript(ctx, &transcript); err != nil {
		return nil, err
	}

	s.logger.Info("Transcript registered", "transcript", transcript.TranscriptID, "owner", owner, "by", caller)
	return &transcript, nil
}

// GrantedTranscripts lists the transcripts wallet owns or has been granted
func (s *RequestService) GrantedTranscripts(ctx context.Context, wallet string) ([]string, error) {
	return s.repo.GrantedTranscripts(ctx, wallet)
}

// CheckAccess reports whether wallet may read the transcript pinned at uri
func (s *RequestService) CheckAccess(ctx context.Context, wallet, uri string) (bool, error) {
	transcript, err := s.repo.FindTranscriptByURI(ctx, uri)
	if err != nil {
		return false, err
	}
	if eth.SameAddress(transcript.OwnerWallet, wallet) {
		return true, nil
	}
	return s.repo.IsGranted(ctx, transcript.TranscriptID, wallet)
}
