package models

// LoginRequest is the panel login payload.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest exchanges a refresh token for a new pair.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// SetupRequest creates the first panel account.
type SetupRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=8"`
}

// CreateBackupRequest starts a manual backup.
type CreateBackupRequest struct {
	Name string `json:"name"`
}

// UpdateSettingsRequest replaces the backup policy for a workspace.
type UpdateSettingsRequest struct {
	IsEnabled          bool                    `json:"isEnabled"`
	IncludeMessages    bool                    `json:"includeMessages"`
	ExcludedChannels   []string                `json:"excludedChannels"`
	MessageHistoryDays int                     `json:"messageHistoryDays" binding:"min=0,max=365"`
	MaxBackupCount     int                     `json:"maxBackupCount" binding:"min=1,max=100"`
	AllowedRoles       []string                `json:"allowedRoles"`
	Schedule           string                  `json:"schedule"`
	ExportDestination  *ExportDestinationInput `json:"exportDestination"`
}

// ExportDestinationInput configures where exported archives go.
type ExportDestinationInput struct {
	Type string `json:"type" binding:"required,oneof=local sftp s3"`
	Path string `json:"path"`

	SFTPHost       string `json:"sftpHost"`
	SFTPPort       int    `json:"sftpPort"`
	SFTPUsername   string `json:"sftpUsername"`
	SFTPPassword   string `json:"sftpPassword"`
	SFTPKeyPath    string `json:"sftpKeyPath"`
	KnownHostsPath string `json:"knownHostsPath"`

	S3Bucket    string `json:"s3Bucket"`
	S3Region    string `json:"s3Region"`
	S3AccessKey string `json:"s3AccessKey"`
	S3SecretKey string `json:"s3SecretKey"`
	S3Endpoint  string `json:"s3Endpoint"`
}

// AccessCheckRequest asks whether a platform user may manage backups.
type AccessCheckRequest struct {
	ActorID string `json:"actorId" binding:"required"`
}
