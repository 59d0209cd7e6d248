package access

import (
	"fmt"
	"sort"
	"strings"

	"github.com/layer-3/credgate/core"
	"github.com/layer-3/credgate/internal/eth"
)

// CheckRaise validates a new request before anything is sent.
func CheckRaise(studentAddress, description string) error {
	if !eth.IsAddress(studentAddress) {
		return &core.ValidationError{Field: "student_wallet", Message: "invalid student blockchain address"}
	}
	if strings.TrimSpace(description) == "" {
		return &core.ValidationError{Field: "description", Message: "purpose is required"}
	}
	return nil
}

// CheckDecision validates a decision before it is submitted: an approval must
// select at least one credential, a rejection must give a reason.
func CheckDecision(d core.Decision) error {
	return d.Validate()
}

// Selection tracks which credentials a student ticks while approving.
type Selection struct {
	selected map[string]struct{}
	order    []string
}

// NewSelection starts with the given ids ticked
func NewSelection(ids ...string) *Selection {
	s := &Selection{selected: make(map[string]struct{})}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add ticks id
func (s *Selection) Add(id string) {
	if _, ok := s.selected[id]; ok {
		return
	}
	s.selected[id] = struct{}{}
	s.order = append(s.order, id)
}

// Toggle flips id and reports whether it is now selected
func (s *Selection) Toggle(id string) bool {
	if _, ok := s.selected[id]; ok {
		delete(s.selected, id)
		for i, v := range s.order {
			if v == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		return false
	}
	s.Add(id)
	return true
}

// IDs returns the selected ids in the order they were ticked
func (s *Selection) IDs() []string {
	return append([]string(nil), s.order...)
}

// Approve builds an approval from the current selection
func (s *Selection) Approve() core.Decision {
	return core.Approve(s.IDs()...)
}

// Selectable filters credentials down to the ones a student may still disclose,
// ordered by token id.
func Selectable(credentials []core.Credential) []core.Credential {
	out := make([]core.Credential, 0, len(credentials))
	for _, c := range credentials {
		if !c.Revoked {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TokenID.Cmp(out[j].TokenID) < 0
	})
	return out
}

// CheckSelectable rejects a selection naming a credential that is not in
// credentials or has been revoked.
func CheckSelectable(s *Selection, credentials []core.Credential) error {
	allowed := make(map[string]bool, len(credentials))
	for _, c := range Selectable(credentials) {
		allowed[c.TokenID.String()] = true
	}
	for _, id := range s.IDs() {
		if !allowed[id] {
			return &core.ValidationError{Field: "transcript_list", Message: fmt.Sprintf("credential %s is not available for disclosure", id)}
		}
	}
	return nil
}

// CheckOwner validates the wallet a transcript is registered to
func CheckOwner(owner string) error {
	if !eth.IsAddress(owner) {
		return &core.ValidationError{Field: "owner_wallet", Message: "invalid owner address"}
	}
	return nil
}
