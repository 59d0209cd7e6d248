package ports

import (
	"context"

	"github.com/layer-3/credgate/core"
)

// RequestRepository persists access requests and registered transcripts.
// Lookups that find nothing return core.ErrRequestNotFound.
type RequestRepository interface {
	CreateRequest(ctx context.Context, request *core.AccessRequest) error
	ListRequests(ctx context.Context, field core.WalletField, wallet string) ([]core.AccessRequest, error)
	GetRequest(ctx context.Context, id string, field core.WalletField, wallet string) (*core.RequestDetail, error)
	// ResolveRequest stores the decision. It fails with core.ErrRequestNotPending
	// if the request was already decided.
	ResolveRequest(ctx context.Context, id string, decision core.Decision) error

	AddTranscript(ctx context.Context, transcript *core.Transcript) error
	TranscriptOwner(ctx context.Context, transcriptID string) (string, error)
	// GrantedTranscripts lists transcripts the wallet owns or was granted by an approved request.
	GrantedTranscripts(ctx context.Context, wallet string) ([]string, error)
	// FindTranscriptByURI matches either the metadata or the media URI.
	FindTranscriptByURI(ctx context.Context, uri string) (*core.Transcript, error)
	IsGranted(ctx context.Context, transcriptID string, recipient string) (bool, error)
}
