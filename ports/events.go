package ports

import (
	"context"

	"github.com/layer-3/credgate/core"
)

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishRequestCreated(ctx context.Context, request *core.AccessRequest) error
	PublishRequestResolved(ctx context.Context, request *core.AccessRequest, decision core.Decision) error
	PublishLogout(ctx context.Context, address string, sessionID string) error
}
