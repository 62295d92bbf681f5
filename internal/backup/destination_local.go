package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hostwell/guildvault/internal/logging"
)

// LocalDestination stores exported archives on the local filesystem.
type LocalDestination struct {
	basePath string
}

// NewLocalDestination creates a local destination rooted at basePath.
func NewLocalDestination(basePath string) *LocalDestination {
	return &LocalDestination{basePath: basePath}
}

// Upload writes an archive under the base path.
func (ld *LocalDestination) Upload(filename string, reader io.Reader, sizeBytes int64) error {
	if err := os.MkdirAll(ld.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	destPath := filepath.Join(ld.basePath, filename)
	file, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	written, err := io.Copy(file, reader)
	if err != nil {
		os.Remove(destPath)
		return fmt.Errorf("failed to write export file: %w", err)
	}
	if written != sizeBytes {
		os.Remove(destPath)
		return fmt.Errorf("size mismatch: expected %d bytes, wrote %d bytes", sizeBytes, written)
	}

	logging.L().Info("export_uploaded", "destination", "local", "file", destPath, "bytes", written)
	return nil
}

// Download streams an archive from the base path into writer.
func (ld *LocalDestination) Download(filename string, writer io.Writer) error {
	file, err := os.Open(filepath.Join(ld.basePath, filename))
	if err != nil {
		return fmt.Errorf("failed to open export file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(writer, file); err != nil {
		return fmt.Errorf("failed to read export file: %w", err)
	}
	return nil
}

// Delete removes an archive from the base path.
func (ld *LocalDestination) Delete(filename string) error {
	if err := os.Remove(filepath.Join(ld.basePath, filename)); err != nil {
		return fmt.Errorf("failed to delete export file: %w", err)
	}
	return nil
}

// List returns the archives under the base path.
func (ld *LocalDestination) List() ([]ArchiveFile, error) {
	if err := os.MkdirAll(ld.basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to access export directory: %w", err)
	}

	entries, err := os.ReadDir(ld.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read export directory: %w", err)
	}

	var files []ArchiveFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, ArchiveFile{
			Filename:  entry.Name(),
			SizeBytes: info.Size(),
			CreatedAt: info.ModTime().Unix(),
		})
	}
	return files, nil
}

// GetType returns the destination type.
func (ld *LocalDestination) GetType() string {
	return "local"
}
