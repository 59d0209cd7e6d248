package core

import (
	"encoding/json"
	"strings"
	"time"
)

// DefaultExpiryMinutes is the disclosure window used when none is given (7 days).
const DefaultExpiryMinutes = 10080

// MaxExpiryMinutes caps the disclosure window at one year.
const MaxExpiryMinutes = 525600

// RequestStatus is the stored decision state of an access request.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusDenied   RequestStatus = "denied"
)

// UnmarshalJSON accepts any casing on the wire.
func (s *RequestStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = RequestStatus(strings.ToLower(strings.TrimSpace(raw)))
	return nil
}

// Terminal reports whether no further decision can be applied.
func (s RequestStatus) Terminal() bool {
	return s == StatusApproved || s == StatusDenied
}

// AccessRequest is a recipient's request to see part of a student's credentials.
type AccessRequest struct {
	ID              string        `json:"request_id"`
	StudentWallet   string        `json:"student_wallet"`
	RecipientWallet string        `json:"recipient_wallet"`
	Description     string        `json:"description"`
	Status          RequestStatus `json:"status"`
	ExpiryTimestamp time.Time     `json:"expiry_timestamp"`
	CreatedAt       time.Time     `json:"created_at"`
}

// IsPending compares the status case-insensitively.
func (r AccessRequest) IsPending() bool {
	return strings.EqualFold(string(r.Status), string(StatusPending))
}

// IsExpired is derived from the expiry timestamp and never stored.
func (r AccessRequest) IsExpired(now time.Time) bool {
	return now.After(r.ExpiryTimestamp)
}

// Actionable reports whether a decision may still be made. Expiry wins over status.
func (r AccessRequest) Actionable(now time.Time) bool {
	return r.IsPending() && !r.IsExpired(now)
}

// RequestListing is an AccessRequest as returned by a list call, with the
// derived flags computed at read time.
type RequestListing struct {
	AccessRequest
	Expired bool `json:"is_expired"`
	Pending bool `json:"is_pending"`
}

// NewListing computes the derived flags against now.
func NewListing(r AccessRequest, now time.Time) RequestListing {
	return RequestListing{
		AccessRequest: r,
		Expired:       r.IsExpired(now),
		Pending:       r.IsPending(),
	}
}

// Actionable uses the flags captured at listing time.
func (l RequestListing) Actionable() bool {
	return l.Pending && !l.Expired
}

// GrantedTranscript links an approved request to one disclosed transcript.
type GrantedTranscript struct {
	RequestID    string `json:"request_id"`
	TranscriptID string `json:"transcript_id"`
}

// RequestDetail is a resolved request with the outcome of its decision.
type RequestDetail struct {
	AccessRequest
	Transcripts []GrantedTranscript `json:"transcripts,omitempty"`
	Reason      string              `json:"reason,omitempty"`
}
