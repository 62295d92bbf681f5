package backup

import (
	"fmt"
	"io"
)

// Destination is a storage target for exported snapshot archives.
type Destination interface {
	Upload(filename string, reader io.Reader, sizeBytes int64) error
	Download(filename string, writer io.Writer) error
	Delete(filename string) error
	List() ([]ArchiveFile, error)
	GetType() string
}

// ArchiveFile describes one exported archive at a destination.
type ArchiveFile struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"sizeBytes"`
	CreatedAt int64  `json:"createdAt"` // Unix timestamp
}

// DestinationConfig configures where exported archives land.
type DestinationConfig struct {
	Type string `json:"type"` // "local", "sftp", "s3"
	Path string `json:"path"`

	SFTPHost       string `json:"sftpHost,omitempty"`
	SFTPPort       int    `json:"sftpPort,omitempty"`
	SFTPUsername   string `json:"sftpUsername,omitempty"`
	SFTPPassword   string `json:"sftpPassword,omitempty"`
	SFTPKeyPath    string `json:"sftpKeyPath,omitempty"`
	KnownHostsPath string `json:"knownHostsPath,omitempty"`

	S3Bucket    string `json:"s3Bucket,omitempty"`
	S3Region    string `json:"s3Region,omitempty"`
	S3AccessKey string `json:"s3AccessKey,omitempty"`
	S3SecretKey string `json:"s3SecretKey,omitempty"`
	S3Endpoint  string `json:"s3Endpoint,omitempty"` // for S3-compatible storage
}

// NewDestination creates a destination from config.
func NewDestination(config *DestinationConfig) (Destination, error) {
	switch config.Type {
	case "local":
		return NewLocalDestination(config.Path), nil
	case "sftp":
		return NewSFTPDestination(config)
	case "s3":
		return NewS3Destination(config)
	default:
		return nil, fmt.Errorf("unsupported destination type: %s", config.Type)
	}
}
