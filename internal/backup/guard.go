package backup

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/hostwell/guildvault/internal/platform"
)

// permissionAdmin is bit 3 of the platform permission bitmask.
const permissionAdmin uint64 = 1 << 3

// AccessGuard decides whether an actor may manage backups for a workspace.
// Owners and members holding an administrator role always may; everyone
// else needs one of the policy's allowed roles.
type AccessGuard struct {
	client   platform.Client
	settings *SettingsStore
}

// NewAccessGuard creates an access guard.
func NewAccessGuard(client platform.Client, settings *SettingsStore) *AccessGuard {
	return &AccessGuard{client: client, settings: settings}
}

// CanManage reports whether actorID may manage backups for workspaceID.
// Actors who are not members of the workspace are denied, not errored.
func (g *AccessGuard) CanManage(ctx context.Context, workspaceID, actorID string) (bool, error) {
	workspace, err := g.client.FetchWorkspace(ctx, workspaceID)
	if err != nil {
		return false, fmt.Errorf("failed to fetch workspace: %w", err)
	}
	if workspace.OwnerID == actorID {
		return true, nil
	}

	member, err := g.client.FetchMember(ctx, workspaceID, actorID)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to fetch member: %w", err)
	}

	roles, err := g.client.FetchRoles(ctx, workspaceID)
	if err != nil {
		return false, fmt.Errorf("failed to fetch roles: %w", err)
	}

	held := make(map[string]platform.Role, len(member.RoleIDs))
	for _, role := range roles {
		held[role.ID] = role
	}

	for _, roleID := range member.RoleIDs {
		role, ok := held[roleID]
		if !ok {
			continue
		}
		if hasAdminBit(role.Permissions) {
			return true, nil
		}
	}

	settings, err := g.settings.Get(workspaceID)
	if err != nil {
		return false, err
	}
	if settings == nil {
		return false, nil
	}

	allowed := make(map[string]bool, len(settings.AllowedRoles))
	for _, roleID := range settings.AllowedRoles {
		allowed[roleID] = true
	}
	for _, roleID := range member.RoleIDs {
		if allowed[roleID] {
			return true, nil
		}
	}
	return false, nil
}

func hasAdminBit(permissions string) bool {
	if permissions == "" {
		return false
	}
	mask, err := strconv.ParseUint(permissions, 10, 64)
	if err != nil {
		return false
	}
	return mask&permissionAdmin != 0
}
