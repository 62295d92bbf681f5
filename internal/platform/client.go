package platform

import (
	"context"
	"errors"
)

// Sentinel errors mapped from platform API responses.
var (
	ErrNotFound  = errors.New("platform: resource not found")
	ErrForbidden = errors.New("platform: access forbidden")
)

// MessagePageOptions controls one page fetch of channel history.
type MessagePageOptions struct {
	// Limit is the page size; the platform caps it at 100.
	Limit int
	// Before restricts results to messages older than the given message id.
	// Empty fetches the newest page.
	Before string
}

// Client is the outbound boundary to the collaboration platform. The backup
// engine only ever talks to the platform through this interface; the gateway
// connection and event dispatch live elsewhere.
type Client interface {
	FetchWorkspace(ctx context.Context, workspaceID string) (*Workspace, error)
	FetchRoles(ctx context.Context, workspaceID string) ([]Role, error)
	FetchChannels(ctx context.Context, workspaceID string) ([]Channel, error)
	// FetchMessagesPage returns messages newest-first.
	FetchMessagesPage(ctx context.Context, channelID string, opts MessagePageOptions) ([]Message, error)
	FetchMember(ctx context.Context, workspaceID, userID string) (*Member, error)
}
