package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/layer-3/credgate/core"
	"github.com/layer-3/credgate/internal/eth"
	"github.com/layer-3/credgate/ports"
)

type memoryRequest struct {
	request core.AccessRequest
	grants  []string
	reason  string
}

// MemoryRepository keeps requests and transcripts in process memory,
// listing requests in creation order.
type MemoryRepository struct {
	mu          sync.RWMutex
	requests    map[string]*memoryRequest
	order       []string
	transcripts map[string]core.Transcript
}

// NewMemoryRepository creates an empty repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		requests:    make(map[string]*memoryRequest),
		transcripts: make(map[string]core.Transcript),
	}
}

var _ ports.RequestRepository = (*MemoryRepository)(nil)

func walletOf(r core.AccessRequest, field core.WalletField) string {
	if field == core.StudentWallet {
		return r.StudentWallet
	}
	return r.RecipientWallet
}

func (m *MemoryRepository) CreateRequest(_ context.Context, request *core.AccessRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.requests[request.ID]; ok {
		return fmt.Errorf("request %s already exists", request.ID)
	}
	m.requests[request.ID] = &memoryRequest{request: *request}
	m.order = append(m.order, request.ID)
	return nil
}

func (m *MemoryRepository) ListRequests(_ context.Context, field core.WalletField, wallet string) ([]core.AccessRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]core.AccessRequest, 0)
	for _, id := range m.order {
		r := m.requests[id].request
		if eth.SameAddress(walletOf(r, field), wallet) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryRepository) GetRequest(_ context.Context, id string, field core.WalletField, wallet string) (*core.RequestDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.requests[id]
	if !ok || !eth.SameAddress(walletOf(entry.request, field), wallet) {
		return nil, core.ErrRequestNotFound
	}
	return entry.detail(), nil
}

// detail must be called with mu held
func (e *memoryRequest) detail() *core.RequestDetail {
	d := &core.RequestDetail{AccessRequest: e.request}
	switch e.request.Status {
	case core.StatusApproved:
		for _, t := range e.grants {
			d.Transcripts = append(d.Transcripts, core.GrantedTranscript{RequestID: e.request.ID, TranscriptID: t})
		}
	case core.StatusDenied:
		d.Reason = e.reason
	}
	return d
}

func (m *MemoryRepository) ResolveRequest(_ context.Context, id string, decision core.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.requests[id]
	if !ok {
		return core.ErrRequestNotFound
	}
	if !entry.request.IsPending() {
		return core.ErrRequestNotPending
	}

	if decision.Verdict == core.Accept {
		entry.request.Status = core.StatusApproved
		entry.grants = append([]string(nil), decision.Distinct().TranscriptIDs...)
	} else {
		entry.request.Status = core.StatusDenied
		entry.reason = decision.Reason
	}
	return nil
}

func (m *MemoryRepository) AddTranscript(_ context.Context, transcript *core.Transcript) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.transcripts[transcript.TranscriptID]; ok {
		return core.ErrTranscriptExists
	}
	m.transcripts[transcript.TranscriptID] = *transcript
	return nil
}

func (m *MemoryRepository) TranscriptOwner(_ context.Context, transcriptID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.transcripts[transcriptID]
	if !ok {
		return "", core.ErrTranscriptNotFound
	}
	return t.OwnerWallet, nil
}

func (m *MemoryRepository) GrantedTranscripts(_ context.Context, wallet string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var granted, owned []string
	for _, id := range m.order {
		entry := m.requests[id]
		if entry.request.Status == core.StatusApproved && eth.SameAddress(entry.request.RecipientWallet, wallet) {
			granted = append(granted, entry.grants...)
		}
	}
	for id, t := range m.transcripts {
		if eth.SameAddress(t.OwnerWallet, wallet) {
			owned = append(owned, id)
		}
	}
	sort.Strings(granted)
	sort.Strings(owned)

	seen := make(map[string]bool)
	out := make([]string, 0, len(granted)+len(owned))
	for _, id := range append(granted, owned...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}

// FindTranscriptByURI returns the match with the lowest transcript id when
// several transcripts share a URI.
func (m *MemoryRepository) FindTranscriptByURI(_ context.Context, uri string) (*core.Transcript, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *core.Transcript
	for id, t := range m.transcripts {
		if t.IPFSURIMetadata != uri && t.IPFSURIMediaHash != uri {
			continue
		}
		if found == nil || id < found.TranscriptID {
			match := t
			found = &match
		}
	}
	if found == nil {
		return nil, core.ErrTranscriptNotFound
	}
	return found, nil
}

func (m *MemoryRepository) IsGranted(_ context.Context, transcriptID string, recipient string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, entry := range m.requests {
		if entry.request.Status != core.StatusApproved || !eth.SameAddress(entry.request.RecipientWallet, recipient) {
			continue
		}
		for _, t := range entry.grants {
			if t == transcriptID {
				return true, nil
			}
		}
	}
	return false, nil
}
