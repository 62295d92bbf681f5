package backup

import (
	"bytes"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/hostwell/guildvault/internal/logging"
)

// S3Destination stores exported archives in AWS S3 or S3-compatible storage.
type S3Destination struct {
	config   *DestinationConfig
	s3Client *s3.S3
}

// NewS3Destination creates an S3 destination.
func NewS3Destination(config *DestinationConfig) (*S3Destination, error) {
	awsConfig := &aws.Config{
		Region: aws.String(config.S3Region),
		Credentials: credentials.NewStaticCredentials(
			config.S3AccessKey,
			config.S3SecretKey,
			"",
		),
	}

	// Custom endpoint for S3-compatible storage (MinIO, DigitalOcean Spaces).
	if config.S3Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.S3Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Destination{
		config:   config,
		s3Client: s3.New(sess),
	}, nil
}

// Upload uploads an archive to the configured bucket.
func (sd *S3Destination) Upload(filename string, reader io.Reader, sizeBytes int64) error {
	key := path.Join(sd.config.Path, filename)

	// PutObject needs a seekable body, so buffer the archive.
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("failed to read data: %w", err)
	}

	_, err = sd.s3Client.PutObject(&s3.PutObjectInput{
		Bucket:        aws.String(sd.config.S3Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(sizeBytes),
		ContentType:   aws.String("application/gzip"),
		StorageClass:  aws.String("STANDARD"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	logging.L().Info("export_uploaded", "destination", "s3", "bucket", sd.config.S3Bucket, "key", key, "bytes", sizeBytes)
	return nil
}

// Download streams an archive from the bucket into writer.
func (sd *S3Destination) Download(filename string, writer io.Writer) error {
	key := path.Join(sd.config.Path, filename)

	result, err := sd.s3Client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(sd.config.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer result.Body.Close()

	if _, err := io.Copy(writer, result.Body); err != nil {
		return fmt.Errorf("failed to read S3 object: %w", err)
	}
	return nil
}

// Delete removes an archive from the bucket.
func (sd *S3Destination) Delete(filename string) error {
	key := path.Join(sd.config.Path, filename)

	_, err := sd.s3Client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(sd.config.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

// List returns the archives under the configured prefix.
func (sd *S3Destination) List() ([]ArchiveFile, error) {
	prefix := sd.config.Path
	if prefix != "" && !path.IsAbs(prefix) {
		prefix = prefix + "/"
	}

	result, err := sd.s3Client.ListObjectsV2(&s3.ListObjectsV2Input{
		Bucket: aws.String(sd.config.S3Bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list S3 objects: %w", err)
	}

	var files []ArchiveFile
	for _, obj := range result.Contents {
		if *obj.Key == prefix || *obj.Key == prefix+"/" {
			continue
		}
		files = append(files, ArchiveFile{
			Filename:  path.Base(*obj.Key),
			SizeBytes: *obj.Size,
			CreatedAt: obj.LastModified.Unix(),
		})
	}
	return files, nil
}

// GetType returns the destination type.
func (sd *S3Destination) GetType() string {
	return "s3"
}
