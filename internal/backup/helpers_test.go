package backup

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hostwell/guildvault/internal/crypto"
	"github.com/hostwell/guildvault/internal/database"
	"github.com/hostwell/guildvault/internal/platform"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestStores(t *testing.T) (*Store, *SettingsStore) {
	t.Helper()

	db := newTestDB(t)
	enc, err := crypto.NewEncryptionManager("")
	if err != nil {
		t.Fatalf("NewEncryptionManager failed: %v", err)
	}
	return NewStore(db.DB), NewSettingsStore(db.DB, enc)
}

// fakeClient is an in-memory platform.Client. Message histories are held
// newest-first, matching the live API.
type fakeClient struct {
	mu sync.Mutex

	workspace *platform.Workspace
	roles     []platform.Role
	channels  []platform.Channel
	messages  map[string][]platform.Message
	members   map[string]*platform.Member

	workspaceErr error
	rolesErr     error
	channelsErr  error
	messagesErr  map[string]error

	pageFetches int
	fetchDelay  time.Duration
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		workspace: &platform.Workspace{
			ID:          "ws-1",
			Name:        "Test Workspace",
			OwnerID:     "owner-1",
			MemberCount: 42,
		},
		messages:    make(map[string][]platform.Message),
		members:     make(map[string]*platform.Member),
		messagesErr: make(map[string]error),
	}
}

func (f *fakeClient) FetchWorkspace(ctx context.Context, workspaceID string) (*platform.Workspace, error) {
	if f.workspaceErr != nil {
		return nil, f.workspaceErr
	}
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	ws := *f.workspace
	ws.ID = workspaceID
	return &ws, nil
}

func (f *fakeClient) FetchRoles(ctx context.Context, workspaceID string) ([]platform.Role, error) {
	if f.rolesErr != nil {
		return nil, f.rolesErr
	}
	return append([]platform.Role(nil), f.roles...), nil
}

func (f *fakeClient) FetchChannels(ctx context.Context, workspaceID string) ([]platform.Channel, error) {
	if f.channelsErr != nil {
		return nil, f.channelsErr
	}
	return append([]platform.Channel(nil), f.channels...), nil
}

func (f *fakeClient) FetchMessagesPage(ctx context.Context, channelID string, opts platform.MessagePageOptions) ([]platform.Message, error) {
	f.mu.Lock()
	f.pageFetches++
	f.mu.Unlock()

	if err := f.messagesErr[channelID]; err != nil {
		return nil, err
	}

	history := f.messages[channelID]
	start := 0
	if opts.Before != "" {
		start = len(history)
		for i, msg := range history {
			if msg.ID == opts.Before {
				start = i + 1
				break
			}
		}
	}

	end := start + opts.Limit
	if end > len(history) {
		end = len(history)
	}
	if start >= len(history) {
		return nil, nil
	}
	return append([]platform.Message(nil), history[start:end]...), nil
}

func (f *fakeClient) FetchMember(ctx context.Context, workspaceID, userID string) (*platform.Member, error) {
	member, ok := f.members[userID]
	if !ok {
		return nil, platform.ErrNotFound
	}
	return member, nil
}

func (f *fakeClient) wait(ctx context.Context) error {
	if f.fetchDelay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(f.fetchDelay):
		return nil
	}
}

// fastCrawler returns a crawler with pacing delays short enough for tests.
func fastCrawler(client platform.Client) *Crawler {
	return NewCrawler(client, CrawlerOptions{
		PageSize:         100,
		PageDelay:        time.Millisecond,
		EntityFetchDelay: time.Millisecond,
	})
}

func enabledSettings(t *testing.T, settings *SettingsStore, workspaceID string) *Settings {
	t.Helper()

	s := DefaultSettings(workspaceID)
	s.IsEnabled = true
	if err := settings.Save(s); err != nil {
		t.Fatalf("Save settings failed: %v", err)
	}
	return s
}

func textChannel(id, name string, position int) platform.Channel {
	return platform.Channel{
		ID:       id,
		Name:     name,
		Kind:     platform.ChannelKindText,
		Position: position,
	}
}

func messageAt(id string, createdAt time.Time) platform.Message {
	return platform.Message{
		ID:        id,
		Author:    platform.Author{ID: "user-1", Username: "tester"},
		Content:   "message " + id,
		CreatedAt: createdAt,
	}
}
