package backup

import (
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"
	xssh "golang.org/x/crypto/ssh"

	"github.com/hostwell/guildvault/internal/logging"
	"github.com/hostwell/guildvault/internal/sshutil"
)

// SFTPDestination stores exported archives on a remote host over SFTP.
type SFTPDestination struct {
	config     *DestinationConfig
	sshClient  *xssh.Client
	sftpClient *sftp.Client
}

// NewSFTPDestination connects to the remote host and ensures the base
// directory exists.
func NewSFTPDestination(config *DestinationConfig) (*SFTPDestination, error) {
	dest := &SFTPDestination{config: config}
	if err := dest.connect(); err != nil {
		return nil, err
	}
	return dest, nil
}

func (sd *SFTPDestination) connect() error {
	hostKeyCallback, err := sshutil.NewHostKeyCallback(sd.config.KnownHostsPath)
	if err != nil {
		return fmt.Errorf("failed to configure host key verification: %w", err)
	}

	sshConfig := &xssh.ClientConfig{
		User:            sd.config.SFTPUsername,
		HostKeyCallback: hostKeyCallback,
		Timeout:         30 * time.Second,
	}

	switch {
	case sd.config.SFTPKeyPath != "":
		keyData, err := os.ReadFile(sd.config.SFTPKeyPath)
		if err != nil {
			return fmt.Errorf("failed to read SSH key: %w", err)
		}
		signer, err := xssh.ParsePrivateKey(keyData)
		if err != nil {
			return fmt.Errorf("failed to parse SSH key: %w", err)
		}
		sshConfig.Auth = []xssh.AuthMethod{xssh.PublicKeys(signer)}
	case sd.config.SFTPPassword != "":
		sshConfig.Auth = []xssh.AuthMethod{xssh.Password(sd.config.SFTPPassword)}
	default:
		return fmt.Errorf("no authentication method provided for SFTP")
	}

	port := sd.config.SFTPPort
	if port == 0 {
		port = 22
	}
	addr := fmt.Sprintf("%s:%d", sd.config.SFTPHost, port)

	sshClient, err := xssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to SSH server: %w", err)
	}
	sd.sshClient = sshClient

	sftpClient, err := sftp.NewClient(sshClient,
		sftp.MaxPacketUnchecked(131072),
		sftp.UseConcurrentWrites(true),
	)
	if err != nil {
		sshClient.Close()
		return fmt.Errorf("failed to create SFTP client: %w", err)
	}
	sd.sftpClient = sftpClient

	if err := sd.sftpClient.MkdirAll(sd.config.Path); err != nil {
		sd.Close()
		return fmt.Errorf("failed to create base directory: %w", err)
	}

	logging.L().Info("sftp_connected", "addr", addr, "path", sd.config.Path)
	return nil
}

// Close closes the SFTP and SSH connections.
func (sd *SFTPDestination) Close() error {
	if sd.sftpClient != nil {
		sd.sftpClient.Close()
	}
	if sd.sshClient != nil {
		sd.sshClient.Close()
	}
	return nil
}

// Upload writes an archive to the remote base path.
func (sd *SFTPDestination) Upload(filename string, reader io.Reader, sizeBytes int64) error {
	destPath := path.Join(sd.config.Path, filename)

	file, err := sd.sftpClient.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %w", err)
	}
	defer file.Close()

	written, err := io.Copy(file, reader)
	if err != nil {
		sd.sftpClient.Remove(destPath)
		return fmt.Errorf("failed to write remote file: %w", err)
	}
	if written != sizeBytes {
		sd.sftpClient.Remove(destPath)
		return fmt.Errorf("size mismatch: expected %d bytes, wrote %d bytes", sizeBytes, written)
	}

	logging.L().Info("export_uploaded", "destination", "sftp", "file", destPath, "bytes", written)
	return nil
}

// Download streams a remote archive into writer.
func (sd *SFTPDestination) Download(filename string, writer io.Writer) error {
	file, err := sd.sftpClient.Open(path.Join(sd.config.Path, filename))
	if err != nil {
		return fmt.Errorf("failed to open remote file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(writer, file); err != nil {
		return fmt.Errorf("failed to read remote file: %w", err)
	}
	return nil
}

// Delete removes a remote archive.
func (sd *SFTPDestination) Delete(filename string) error {
	if err := sd.sftpClient.Remove(path.Join(sd.config.Path, filename)); err != nil {
		return fmt.Errorf("failed to delete remote file: %w", err)
	}
	return nil
}

// List returns the archives under the remote base path.
func (sd *SFTPDestination) List() ([]ArchiveFile, error) {
	entries, err := sd.sftpClient.ReadDir(sd.config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read remote directory: %w", err)
	}

	var files []ArchiveFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		files = append(files, ArchiveFile{
			Filename:  entry.Name(),
			SizeBytes: entry.Size(),
			CreatedAt: entry.ModTime().Unix(),
		})
	}
	return files, nil
}

// GetType returns the destination type.
func (sd *SFTPDestination) GetType() string {
	return "sftp"
}
