package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/hostwell/guildvault/internal/platform"
)

// Capture limits. These are hard caps, not tunables exposed to workspace
// admins: they bound how long a single job can hold the crawler.
const (
	DefaultMessagePageSize       = 100
	DefaultMaxMessagesPerChannel = 10000
	DefaultMaxMessagesPerRun     = 1000
	DefaultMessagePageDelay      = 1 * time.Second
	DefaultEntityFetchDelay      = 100 * time.Millisecond
)

// Crawler walks the remote API under fixed pacing delays. Every page fetch
// is separated by a blocking sleep so a big workspace cannot trip the
// platform's rate limiter.
type Crawler struct {
	client        platform.Client
	pageSize      int
	maxPerChannel int
	maxPerRun     int
	pageDelay     time.Duration
	entityDelay   time.Duration
}

// CrawlerOptions tunes crawler pacing and caps. Zero values fall back to
// the package defaults.
type CrawlerOptions struct {
	PageSize         int
	MaxPerChannel    int
	MaxPerRun        int
	PageDelay        time.Duration
	EntityFetchDelay time.Duration
}

// NewCrawler creates a crawler over a platform client.
func NewCrawler(client platform.Client, opts CrawlerOptions) *Crawler {
	c := &Crawler{
		client:        client,
		pageSize:      opts.PageSize,
		maxPerChannel: opts.MaxPerChannel,
		maxPerRun:     opts.MaxPerRun,
		pageDelay:     opts.PageDelay,
		entityDelay:   opts.EntityFetchDelay,
	}
	if c.pageSize <= 0 || c.pageSize > 100 {
		c.pageSize = DefaultMessagePageSize
	}
	if c.maxPerChannel <= 0 {
		c.maxPerChannel = DefaultMaxMessagesPerChannel
	}
	if c.maxPerRun <= 0 {
		c.maxPerRun = DefaultMaxMessagesPerRun
	}
	if c.pageDelay <= 0 {
		c.pageDelay = DefaultMessagePageDelay
	}
	if c.entityDelay <= 0 {
		c.entityDelay = DefaultEntityFetchDelay
	}
	return c
}

// MaxPerRun returns the cap on messages captured per channel per job.
func (c *Crawler) MaxPerRun() int {
	return c.maxPerRun
}

// FetchRoles enumerates workspace roles after the entity pacing delay.
// The implicit everyone role (its id equals the workspace id) is dropped.
func (c *Crawler) FetchRoles(ctx context.Context, workspaceID string) ([]platform.Role, error) {
	if err := c.pause(ctx, c.entityDelay); err != nil {
		return nil, err
	}

	roles, err := c.client.FetchRoles(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}

	filtered := roles[:0]
	for _, role := range roles {
		if role.ID == workspaceID {
			continue
		}
		filtered = append(filtered, role)
	}
	return filtered, nil
}

// FetchChannels enumerates workspace channels after the entity pacing delay.
func (c *Crawler) FetchChannels(ctx context.Context, workspaceID string) ([]platform.Channel, error) {
	if err := c.pause(ctx, c.entityDelay); err != nil {
		return nil, err
	}

	channels, err := c.client.FetchChannels(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch channels: %w", err)
	}
	return channels, nil
}

// CrawlMessages pages through a channel's history newest-first and returns
// everything at or after cutoff, up to the per-channel caps. A zero cutoff
// disables the age filter. Pages are separated by the message pacing delay.
func (c *Crawler) CrawlMessages(ctx context.Context, channelID string, cutoff time.Time) ([]platform.Message, error) {
	maxTotal := c.maxPerRun
	if c.maxPerChannel < maxTotal {
		maxTotal = c.maxPerChannel
	}

	var collected []platform.Message
	before := ""

	for len(collected) < maxTotal {
		limit := c.pageSize
		if remaining := maxTotal - len(collected); remaining < limit {
			limit = remaining
		}

		page, err := c.client.FetchMessagesPage(ctx, channelID, platform.MessagePageOptions{
			Limit:  limit,
			Before: before,
		})
		if err != nil {
			return collected, fmt.Errorf("failed to fetch message page: %w", err)
		}
		if len(page) == 0 {
			break
		}

		reachedCutoff := false
		for _, msg := range page {
			if !cutoff.IsZero() && msg.CreatedAt.Before(cutoff) {
				reachedCutoff = true
				continue
			}
			if len(collected) < maxTotal {
				collected = append(collected, msg)
			}
		}
		if reachedCutoff || len(page) < limit {
			break
		}

		before = page[len(page)-1].ID
		if err := c.pause(ctx, c.pageDelay); err != nil {
			return collected, err
		}
	}
	return collected, nil
}

// pause blocks for d or until the context is cancelled.
func (c *Crawler) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
