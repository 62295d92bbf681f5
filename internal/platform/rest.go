package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultCDNBaseURL = "https://cdn.discordapp.com"

// RESTClient implements Client over the platform's HTTP API.
type RESTClient struct {
	baseURL    string
	cdnBaseURL string
	token      string
	httpClient *http.Client
}

// NewRESTClient creates a REST client authenticated with a bot token.
func NewRESTClient(baseURL, token string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL:    baseURL,
		cdnBaseURL: defaultCDNBaseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Wire shapes. Only the fields the backup engine consumes are decoded.

type wireWorkspace struct {
	ID                     string   `json:"id"`
	Name                   string   `json:"name"`
	Description            string   `json:"description"`
	Icon                   string   `json:"icon"`
	Banner                 string   `json:"banner"`
	Splash                 string   `json:"splash"`
	OwnerID                string   `json:"owner_id"`
	VerificationLevel      int      `json:"verification_level"`
	ExplicitContentFilter  int      `json:"explicit_content_filter"`
	Features               []string `json:"features"`
	PreferredLocale        string   `json:"preferred_locale"`
	VanityURLCode          string   `json:"vanity_url_code"`
	ApproximateMemberCount int      `json:"approximate_member_count"`
}

type wireRole struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Color       int       `json:"color"`
	Hoist       bool      `json:"hoist"`
	Position    int       `json:"position"`
	Permissions string    `json:"permissions"`
	Managed     bool      `json:"managed"`
	Mentionable bool      `json:"mentionable"`
	Icon        string    `json:"icon"`
	Tags        *RoleTags `json:"tags"`
}

type wireOverwrite struct {
	ID    string `json:"id"`
	Type  int    `json:"type"` // 0 role, 1 member
	Allow string `json:"allow"`
	Deny  string `json:"deny"`
}

type wireChannel struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Type             int             `json:"type"`
	Position         int             `json:"position"`
	ParentID         string          `json:"parent_id"`
	Overwrites       []wireOverwrite `json:"permission_overwrites"`
	Topic            string          `json:"topic"`
	NSFW             bool            `json:"nsfw"`
	RateLimitPerUser int             `json:"rate_limit_per_user"`
	AutoArchive      int             `json:"default_auto_archive_duration"`
	Bitrate          int             `json:"bitrate"`
	UserLimit        int             `json:"user_limit"`
	RTCRegion        string          `json:"rtc_region"`
	VideoQuality     int             `json:"video_quality_mode"`
}

type wireUser struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Avatar     string `json:"avatar"`
}

type wireAttachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	ProxyURL    string `json:"proxy_url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

type wireReaction struct {
	Emoji struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"emoji"`
	Count int `json:"count"`
}

type wireMessage struct {
	ID               string            `json:"id"`
	Author           wireUser          `json:"author"`
	Content          string            `json:"content"`
	Embeds           []json.RawMessage `json:"embeds"`
	Attachments      []wireAttachment  `json:"attachments"`
	Reactions        []wireReaction    `json:"reactions"`
	Mentions         []wireUser        `json:"mentions"`
	MentionRole      []string          `json:"mention_roles"`
	Pinned           bool              `json:"pinned"`
	TTS              bool              `json:"tts"`
	Type             int               `json:"type"`
	Flags            int               `json:"flags"`
	MessageReference *struct {
		MessageID string `json:"message_id"`
	} `json:"message_reference,omitempty"`
	Thread *struct {
		ID string `json:"id"`
	} `json:"thread,omitempty"`
	Timestamp       string `json:"timestamp"`
	EditedTimestamp string `json:"edited_timestamp"`
}

type wireMember struct {
	User  wireUser `json:"user"`
	Roles []string `json:"roles"`
}

// FetchWorkspace retrieves workspace metadata with member counts.
func (c *RESTClient) FetchWorkspace(ctx context.Context, workspaceID string) (*Workspace, error) {
	var w wireWorkspace
	endpoint := fmt.Sprintf("/guilds/%s?with_counts=true", url.PathEscape(workspaceID))
	if err := c.getJSON(ctx, endpoint, &w); err != nil {
		return nil, err
	}

	return &Workspace{
		ID:                 w.ID,
		Name:               w.Name,
		Description:        w.Description,
		IconURL:            c.cdnURL("icons", w.ID, w.Icon),
		BannerURL:          c.cdnURL("banners", w.ID, w.Banner),
		SplashURL:          c.cdnURL("splashes", w.ID, w.Splash),
		OwnerID:            w.OwnerID,
		VerificationLevel:  w.VerificationLevel,
		ContentFilterLevel: w.ExplicitContentFilter,
		Features:           w.Features,
		Locale:             w.PreferredLocale,
		VanityCode:         w.VanityURLCode,
		MemberCount:        w.ApproximateMemberCount,
	}, nil
}

// FetchRoles enumerates all roles in a workspace, including the everyone role.
func (c *RESTClient) FetchRoles(ctx context.Context, workspaceID string) ([]Role, error) {
	var wires []wireRole
	endpoint := fmt.Sprintf("/guilds/%s/roles", url.PathEscape(workspaceID))
	if err := c.getJSON(ctx, endpoint, &wires); err != nil {
		return nil, err
	}

	roles := make([]Role, 0, len(wires))
	for _, w := range wires {
		roles = append(roles, Role{
			ID:          w.ID,
			Name:        w.Name,
			Color:       w.Color,
			Hoist:       w.Hoist,
			Position:    w.Position,
			Permissions: w.Permissions,
			Managed:     w.Managed,
			Mentionable: w.Mentionable,
			IconURL:     c.cdnURL("role-icons", w.ID, w.Icon),
			Tags:        w.Tags,
		})
	}
	return roles, nil
}

// FetchChannels enumerates all channels in a workspace.
func (c *RESTClient) FetchChannels(ctx context.Context, workspaceID string) ([]Channel, error) {
	var wires []wireChannel
	endpoint := fmt.Sprintf("/guilds/%s/channels", url.PathEscape(workspaceID))
	if err := c.getJSON(ctx, endpoint, &wires); err != nil {
		return nil, err
	}

	channels := make([]Channel, 0, len(wires))
	for _, w := range wires {
		overwrites := make([]PermissionOverwrite, 0, len(w.Overwrites))
		for _, o := range w.Overwrites {
			kind := "role"
			if o.Type == 1 {
				kind = "member"
			}
			overwrites = append(overwrites, PermissionOverwrite{
				PrincipalID:   o.ID,
				PrincipalKind: kind,
				Allow:         o.Allow,
				Deny:          o.Deny,
			})
		}

		channels = append(channels, Channel{
			ID:                 w.ID,
			Name:               w.Name,
			Kind:               w.Type,
			Position:           w.Position,
			ParentID:           w.ParentID,
			Overwrites:         overwrites,
			Topic:              w.Topic,
			NSFW:               w.NSFW,
			SlowModeSeconds:    w.RateLimitPerUser,
			AutoArchiveMinutes: w.AutoArchive,
			Bitrate:            w.Bitrate,
			UserLimit:          w.UserLimit,
			RTCRegion:          w.RTCRegion,
			VideoQuality:       w.VideoQuality,
		})
	}
	return channels, nil
}

// FetchMessagesPage fetches one page of channel history, newest-first.
func (c *RESTClient) FetchMessagesPage(ctx context.Context, channelID string, opts MessagePageOptions) ([]Message, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	endpoint := fmt.Sprintf("/channels/%s/messages?limit=%d", url.PathEscape(channelID), limit)
	if opts.Before != "" {
		endpoint += "&before=" + url.QueryEscape(opts.Before)
	}

	var wires []wireMessage
	if err := c.getJSON(ctx, endpoint, &wires); err != nil {
		return nil, err
	}

	messages := make([]Message, 0, len(wires))
	for _, w := range wires {
		messages = append(messages, c.convertMessage(w))
	}
	return messages, nil
}

// FetchMember returns the role assignment of a workspace member.
func (c *RESTClient) FetchMember(ctx context.Context, workspaceID, userID string) (*Member, error) {
	var w wireMember
	endpoint := fmt.Sprintf("/guilds/%s/members/%s", url.PathEscape(workspaceID), url.PathEscape(userID))
	if err := c.getJSON(ctx, endpoint, &w); err != nil {
		return nil, err
	}

	return &Member{UserID: w.User.ID, RoleIDs: w.Roles}, nil
}

func (c *RESTClient) convertMessage(w wireMessage) Message {
	attachments := make([]Attachment, 0, len(w.Attachments))
	for _, a := range w.Attachments {
		attachments = append(attachments, Attachment{
			ID:          a.ID,
			Name:        a.Filename,
			URL:         a.URL,
			MirrorURL:   a.ProxyURL,
			Size:        a.Size,
			ContentType: a.ContentType,
		})
	}

	reactions := make([]Reaction, 0, len(w.Reactions))
	for _, r := range w.Reactions {
		reactions = append(reactions, Reaction{
			EmojiID:   r.Emoji.ID,
			EmojiName: r.Emoji.Name,
			Count:     r.Count,
		})
	}

	var mentions Mentions
	for _, u := range w.Mentions {
		mentions.UserIDs = append(mentions.UserIDs, u.ID)
	}
	mentions.RoleIDs = w.MentionRole

	msg := Message{
		ID:          w.ID,
		Content:     w.Content,
		Embeds:      w.Embeds,
		Attachments: attachments,
		Reactions:   reactions,
		Mentions:    mentions,
		Pinned:      w.Pinned,
		TTS:         w.TTS,
		Type:        w.Type,
		Flags:       w.Flags,
		Author: Author{
			ID:          w.Author.ID,
			Username:    w.Author.Username,
			DisplayName: w.Author.GlobalName,
			AvatarURL:   c.cdnURL("avatars", w.Author.ID, w.Author.Avatar),
		},
	}

	if w.MessageReference != nil {
		msg.ReferencedMessageID = w.MessageReference.MessageID
	}
	if w.Thread != nil {
		msg.ThreadID = w.Thread.ID
	}

	if ts, err := time.Parse(time.RFC3339, w.Timestamp); err == nil {
		msg.CreatedAt = ts
	}
	if w.EditedTimestamp != "" {
		if ts, err := time.Parse(time.RFC3339, w.EditedTimestamp); err == nil {
			msg.EditedAt = &ts
		}
	}

	return msg
}

func (c *RESTClient) cdnURL(kind, ownerID, hash string) string {
	if hash == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/%s/%s.png", c.cdnBaseURL, kind, ownerID, hash)
}

func (c *RESTClient) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusTooManyRequests:
		retryAfter := resp.Header.Get("Retry-After")
		if seconds, parseErr := strconv.ParseFloat(retryAfter, 64); parseErr == nil {
			return fmt.Errorf("rate limited for %.1fs: %s", seconds, endpoint)
		}
		return fmt.Errorf("rate limited: %s", endpoint)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d from %s: %s", resp.StatusCode, endpoint, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
