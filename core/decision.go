package core

import "strings"

// Verdict is the wire value of a decision.
type Verdict string

const (
	Accept Verdict = "accept"
	Reject Verdict = "reject"
)

// Decision is a student's answer to one access request.
type Decision struct {
	Verdict       Verdict
	TranscriptIDs []string
	Reason        string
}

// Approve discloses the given transcripts. Repeated identifiers are dropped.
func Approve(transcriptIDs ...string) Decision {
	return Decision{Verdict: Accept, TranscriptIDs: distinct(transcriptIDs)}
}

// Deny refuses the request with a reason.
func Deny(reason string) Decision {
	return Decision{Verdict: Reject, Reason: reason}
}

// Validate enforces that an approval names at least one transcript and a
// rejection carries a non-blank reason.
func (d Decision) Validate() error {
	switch d.Verdict {
	case Accept:
		if len(d.TranscriptIDs) == 0 {
			return &ValidationError{Field: "transcript_list", Message: "select at least one credential to approve"}
		}
		for _, id := range d.TranscriptIDs {
			if strings.TrimSpace(id) == "" {
				return &ValidationError{Field: "transcript_list", Message: "empty credential identifier"}
			}
		}
	case Reject:
		if strings.TrimSpace(d.Reason) == "" {
			return &ValidationError{Field: "reason", Message: "enter a reason for rejection"}
		}
	default:
		return &ValidationError{Field: "response", Message: "response must be accept or reject"}
	}
	return nil
}

// Distinct returns d with each transcript identifier kept once, in first-seen order.
func (d Decision) Distinct() Decision {
	d.TranscriptIDs = distinct(d.TranscriptIDs)
	return d
}

func distinct(ids []string) []string {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
