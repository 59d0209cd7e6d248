// Package access implements the access request workflow on top of an
// authenticated client: recipients raise requests, students answer them.
package access

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/layer-3/credgate"
	"github.com/layer-3/credgate/core"
)

// ErrNotActionable is returned when a decision targets an expired or already decided request
var ErrNotActionable = errors.New("request is no longer actionable")

// Caller is the authenticated transport the workflow runs on
type Caller interface {
	Call(ctx context.Context, method, path string, body, out interface{}, opts ...credgate.CallOption) error
}

// Workflow holds no state of its own; every operation is a call to the backend.
type Workflow struct {
	client Caller
	now    func() time.Time
	newKey func() string
	logger log.Logger
}

// NewWorkflow creates a workflow on top of client
func NewWorkflow(client Caller) *Workflow {
	return &Workflow{
		client: client,
		now:    time.Now,
		newKey: uuid.NewString,
		logger: log.Root(),
	}
}

type createRequestBody struct {
	StudentWallet string `json:"student_wallet"`
	Description   string `json:"description"`
	ExpiryMinutes int    `json:"expiry_minutes"`
}

type createRequestResponse struct {
	Message string             `json:"message"`
	Request core.AccessRequest `json:"request"`
}

// Raise asks studentAddress to disclose credentials. A non-positive expiryMinutes
// uses core.DefaultExpiryMinutes.
func (w *Workflow) Raise(ctx context.Context, studentAddress, description string, expiryMinutes int) (*core.AccessRequest, error) {
	if err := CheckRaise(studentAddress, description); err != nil {
		return nil, err
	}
	if expiryMinutes <= 0 {
		expiryMinutes = core.DefaultExpiryMinutes
	}
	if expiryMinutes > core.MaxExpiryMinutes {
		return nil, &core.ValidationError{Field: "expiry_minutes", Message: fmt.Sprintf("must not exceed %d", core.MaxExpiryMinutes)}
	}

	body := createRequestBody{
		StudentWallet: studentAddress,
		Description:   strings.TrimSpace(description),
		ExpiryMinutes: expiryMinutes,
	}
	var resp createRequestResponse
	if err := w.client.Call(ctx, http.MethodPost, "/requests/create", body, &resp); err != nil {
		w.logger.Error("Failed to raise request", "student", studentAddress, "err", err)
		return nil, fmt.Errorf("failed to raise request: %w", err)
	}
	if resp.Request.ID == "" {
		return nil, errors.New("failed to raise request: response carried no request id")
	}
	return &resp.Request, nil
}

type listResponse struct {
	Requests []core.AccessRequest `json:"requests"`
}

// List returns the caller's requests for role in server order. An empty result
// is an empty slice with a nil error; failures always return an error.
func (w *Workflow) List(ctx context.Context, role core.Role) ([]core.RequestListing, error) {
	field := role.WalletField()
	if !field.Valid() {
		return nil, &core.ValidationError{Field: "role", Message: fmt.Sprintf("unsupported role %s", role)}
	}

	var resp listResponse
	if err := w.client.Call(ctx, http.MethodGet, "/requests/"+string(field), nil, &resp); err != nil {
		w.logger.Error("Failed to list requests", "role", role, "err", err)
		return nil, fmt.Errorf("failed to list %s requests: %w", role, err)
	}

	now := w.now()
	listings := make([]core.RequestListing, 0, len(resp.Requests))
	for _, r := range resp.Requests {
		listings = append(listings, core.NewListing(r, now))
	}
	return listings, nil
}

// GetStatus fetches a request with its outcome. The lookup column depends on
// which side of the request the caller is on.
func (w *Workflow) GetStatus(ctx context.Context, requestID string, role core.Role) (*core.RequestDetail, error) {
	field := role.WalletField()
	if !field.Valid() {
		return nil, &core.ValidationError{Field: "role", Message: fmt.Sprintf("unsupported role %s", role)}
	}
	if strings.TrimSpace(requestID) == "" {
		return nil, &core.ValidationError{Field: "request_id", Message: "request id is required"}
	}

	var detail core.RequestDetail
	path := "/requests/" + string(field) + "/" + url.PathEscape(requestID)
	if err := w.client.Call(ctx, http.MethodGet, path, nil, &detail); err != nil {
		return nil, fmt.Errorf("failed to fetch request %s: %w", requestID, err)
	}
	return &detail, nil
}

type respondBody struct {
	Response       core.Verdict `json:"response"`
	TranscriptList []string     `json:"transcript_list"`
	Reason         string       `json:"reason"`
}

// SubmitDecision answers a request. Invalid decisions fail validation without a
// network call. The idempotency key is shared by the retry after a rejected
// session, so the backend applies the decision at most once. A nil error is
// terminal; callers must not resubmit.
func (w *Workflow) SubmitDecision(ctx context.Context, requestID string, decision core.Decision) error {
	if strings.TrimSpace(requestID) == "" {
		return &core.ValidationError{Field: "request_id", Message: "request id is required"}
	}
	if err := CheckDecision(decision); err != nil {
		return err
	}

	body := respondBody{Response: decision.Verdict, TranscriptList: []string{}}
	switch decision.Verdict {
	case core.Accept:
		body.TranscriptList = decision.TranscriptIDs
	case core.Reject:
		body.Reason = strings.TrimSpace(decision.Reason)
	}

	path := "/requests/respond/" + url.PathEscape(requestID)
	if err := w.client.Call(ctx, http.MethodPost, path, body, nil, credgate.WithIdempotencyKey(w.newKey())); err != nil {
		w.logger.Error("Failed to submit decision", "request", requestID, "err", err)
		return fmt.Errorf("failed to submit decision for %s: %w", requestID, err)
	}
	return nil
}

// Respond submits a decision for a listed request, refusing requests that have
// expired or were already decided.
func (w *Workflow) Respond(ctx context.Context, listing core.RequestListing, decision core.Decision) error {
	if !listing.Actionable() || listing.IsExpired(w.now()) {
		return fmt.Errorf("%w: %s", ErrNotActionable, listing.ID)
	}
	return w.SubmitDecision(ctx, listing.ID, decision)
}

// RegisterTranscript records a pinned credential with the backend
func (w *Workflow) RegisterTranscript(ctx context.Context, transcript core.Transcript) error {
	if strings.TrimSpace(transcript.TranscriptID) == "" {
		return &core.ValidationError{Field: "transcript_id", Message: "transcript id is required"}
	}
	if transcript.IPFSURIMetadata == "" || transcript.IPFSURIMediaHash == "" {
		return &core.ValidationError{Field: "ipfs_uri", Message: "metadata and media URIs are required"}
	}
	if err := CheckOwner(transcript.OwnerWallet); err != nil {
		return err
	}
	if err := w.client.Call(ctx, http.MethodPost, "/transcripts/", transcript, nil); err != nil {
		return fmt.Errorf("failed to register transcript %s: %w", transcript.TranscriptID, err)
	}
	return nil
}

type transcriptsResponse struct {
	Transcripts []string `json:"transcripts"`
}

// Transcripts lists the transcript ids the caller owns or has been granted
func (w *Workflow) Transcripts(ctx context.Context) ([]string, error) {
	var resp transcriptsResponse
	if err := w.client.Call(ctx, http.MethodGet, "/transcripts/", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	if resp.Transcripts == nil {
		return []string{}, nil
	}
	return resp.Transcripts, nil
}

// CheckAccess asks whether the caller may open the pinned file at uri
func (w *Workflow) CheckAccess(ctx context.Context, uri string) (bool, error) {
	if strings.TrimSpace(uri) == "" {
		return false, &core.ValidationError{Field: "uri", Message: "uri is required"}
	}
	err := w.client.Call(ctx, http.MethodGet, "/transcripts/access?uri="+url.QueryEscape(uri), nil, nil)
	var serverErr *credgate.ServerError
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &serverErr) && serverErr.Status == http.StatusForbidden:
		return false, nil
	default:
		return false, fmt.Errorf("failed to check access: %w", err)
	}
}
