package database

// Migration represents a database migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// migrations contains all database migrations in order
var migrations = []Migration{
	{
		Version: "001_init",
		Up: `
-- Panel admin accounts
CREATE TABLE users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL,
    is_active BOOLEAN DEFAULT 1,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX idx_users_username ON users(username);

-- Refresh tokens (hashed) for panel sessions
CREATE TABLE refresh_tokens (
    token_hash TEXT PRIMARY KEY,
    user_id INTEGER NOT NULL,
    expires_at DATETIME NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

-- One row per snapshot attempt; root of the backup tree
CREATE TABLE backup_jobs (
    id TEXT PRIMARY KEY,
    workspace_id TEXT NOT NULL,
    workspace_name TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL DEFAULT '',
    kind TEXT NOT NULL DEFAULT 'manual'
        CHECK (kind IN ('manual', 'scheduled', 'automatic')),
    status TEXT NOT NULL DEFAULT 'in_progress'
        CHECK (status IN ('in_progress', 'completed', 'failed')),
    member_count INTEGER NOT NULL DEFAULT 0,
    role_count INTEGER NOT NULL DEFAULT 0,
    channel_count INTEGER NOT NULL DEFAULT 0,
    message_count INTEGER NOT NULL DEFAULT 0,
    error_log TEXT,
    requested_by TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    completed_at DATETIME
);

CREATE INDEX idx_backup_jobs_workspace ON backup_jobs(workspace_id, created_at);
CREATE INDEX idx_backup_jobs_status ON backup_jobs(status);

-- 1:1 with backup_jobs: workspace-level metadata at capture time
CREATE TABLE workspace_settings_snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    backup_id TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL DEFAULT '',
    description TEXT,
    icon_url TEXT,
    banner_url TEXT,
    splash_url TEXT,
    owner_id TEXT,
    verification_level INTEGER NOT NULL DEFAULT 0,
    content_filter_level INTEGER NOT NULL DEFAULT 0,
    features TEXT NOT NULL DEFAULT '[]',
    locale TEXT,
    vanity_code TEXT,
    FOREIGN KEY (backup_id) REFERENCES backup_jobs(id) ON DELETE CASCADE
);

-- 1:N with backup_jobs: one row per role (everyone role excluded)
CREATE TABLE role_snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    backup_id TEXT NOT NULL,
    role_id TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    color INTEGER NOT NULL DEFAULT 0,
    hoist BOOLEAN NOT NULL DEFAULT 0,
    position INTEGER NOT NULL DEFAULT 0,
    permissions TEXT NOT NULL DEFAULT '0',
    managed BOOLEAN NOT NULL DEFAULT 0,
    mentionable BOOLEAN NOT NULL DEFAULT 0,
    icon_url TEXT,
    tags TEXT,
    member_count INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (backup_id) REFERENCES backup_jobs(id) ON DELETE CASCADE
);

CREATE INDEX idx_role_snapshots_backup ON role_snapshots(backup_id);

-- 1:N with backup_jobs; parent key for message_snapshots
CREATE TABLE channel_snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    backup_id TEXT NOT NULL,
    channel_id TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    kind INTEGER NOT NULL DEFAULT 0,
    position INTEGER NOT NULL DEFAULT 0,
    parent_id TEXT,
    overwrites TEXT NOT NULL DEFAULT '[]',
    topic TEXT,
    nsfw BOOLEAN NOT NULL DEFAULT 0,
    slow_mode_seconds INTEGER NOT NULL DEFAULT 0,
    auto_archive_minutes INTEGER NOT NULL DEFAULT 0,
    bitrate INTEGER NOT NULL DEFAULT 0,
    user_limit INTEGER NOT NULL DEFAULT 0,
    rtc_region TEXT,
    video_quality INTEGER NOT NULL DEFAULT 0,
    message_count INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (backup_id) REFERENCES backup_jobs(id) ON DELETE CASCADE
);

CREATE INDEX idx_channel_snapshots_backup ON channel_snapshots(backup_id);

-- 1:N with channel_snapshots; append-only within a backup
CREATE TABLE message_snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    channel_backup_id INTEGER NOT NULL,
    message_id TEXT NOT NULL,
    author_id TEXT NOT NULL DEFAULT '',
    author_username TEXT NOT NULL DEFAULT '',
    author_display_name TEXT,
    author_avatar_url TEXT,
    content TEXT NOT NULL DEFAULT '',
    embeds TEXT NOT NULL DEFAULT '[]',
    attachments TEXT NOT NULL DEFAULT '[]',
    reactions TEXT NOT NULL DEFAULT '[]',
    mentions TEXT NOT NULL DEFAULT '{}',
    pinned BOOLEAN NOT NULL DEFAULT 0,
    tts BOOLEAN NOT NULL DEFAULT 0,
    message_type INTEGER NOT NULL DEFAULT 0,
    flags INTEGER NOT NULL DEFAULT 0,
    referenced_message_id TEXT,
    thread_id TEXT,
    created_at DATETIME NOT NULL,
    edited_at DATETIME,
    FOREIGN KEY (channel_backup_id) REFERENCES channel_snapshots(id) ON DELETE CASCADE
);

CREATE INDEX idx_message_snapshots_channel ON message_snapshots(channel_backup_id);

-- One row per workspace: the backup policy
CREATE TABLE backup_settings (
    workspace_id TEXT PRIMARY KEY,
    is_enabled BOOLEAN NOT NULL DEFAULT 1,
    include_messages BOOLEAN NOT NULL DEFAULT 1,
    excluded_channels TEXT NOT NULL DEFAULT '[]',
    message_history_days INTEGER NOT NULL DEFAULT 30,
    max_backup_count INTEGER NOT NULL DEFAULT 5,
    allowed_roles TEXT NOT NULL DEFAULT '[]',
    schedule TEXT NOT NULL DEFAULT '',
    export_destination TEXT,
    last_run DATETIME,
    next_run DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`,
		Down: `
DROP TABLE IF EXISTS backup_settings;
DROP TABLE IF EXISTS message_snapshots;
DROP TABLE IF EXISTS channel_snapshots;
DROP TABLE IF EXISTS role_snapshots;
DROP TABLE IF EXISTS workspace_settings_snapshots;
DROP TABLE IF EXISTS backup_jobs;
DROP TABLE IF EXISTS refresh_tokens;
DROP TABLE IF EXISTS users;
`,
	},
}
