// Package s3store provides an archive store adapter backed by an S3 bucket.
//
// The dataset identifier maps to "bucket" or "bucket/prefix"; credentials and
// region resolution follow the standard AWS environment and shared-config
// chain.
package s3store

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/mcdonaldj/stashd/internal/ports"
)

// S3Store implements ports.ArchiveStore against one bucket/prefix namespace.
type S3Store struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
	prefix     string
}

// New creates an S3Store for the given dataset identifier using the default
// AWS credential chain.
func New(ctx context.Context, datasetID string) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return NewWithClient(client, datasetID), nil
}

// NewWithClient creates an S3Store with an existing client, for callers that
// need custom endpoints or credentials.
func NewWithClient(client *s3.Client, datasetID string) *S3Store {
	bucket := datasetID
	prefix := ""
	if idx := strings.Index(datasetID, "/"); idx != -1 {
		bucket = datasetID[:idx]
		prefix = strings.Trim(datasetID[idx+1:], "/")
	}
	return &S3Store{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		bucket:     bucket,
		prefix:     prefix,
	}
}

// key maps an archive name to its object key under the namespace prefix.
func (s *S3Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// List returns archive names in the namespace matching {prefix}*.{extension}.
func (s *S3Store) List(ctx context.Context, prefix, extension string) ([]string, error) {
	listParams := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.key(prefix)),
	}

	var names []string
	paginator := s3.NewListObjectsV2Paginator(s.client, listParams)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing s3://%s/%s: %w", s.bucket, s.prefix, err)
		}
		for _, object := range page.Contents {
			name := path.Base(aws.ToString(object.Key))
			if strings.HasSuffix(name, "."+extension) {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

// Upload stores the file at localPath under remoteName, overwriting any
// object of the same key.
func (s *S3Store) Upload(ctx context.Context, localPath, remoteName string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return &ports.UploadError{Name: remoteName, Err: err}
	}
	defer func() { _ = f.Close() }()

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(remoteName)),
		Body:   f,
	})
	if err != nil {
		return &ports.UploadError{Name: remoteName, Err: err}
	}
	return nil
}

// Download fetches remoteName into destDir and returns the local path.
func (s *S3Store) Download(ctx context.Context, remoteName, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", &ports.DownloadError{Name: remoteName, Err: err}
	}

	dest := filepath.Join(destDir, remoteName)
	f, err := os.Create(dest)
	if err != nil {
		return "", &ports.DownloadError{Name: remoteName, Err: err}
	}

	_, err = s.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(remoteName)),
	})
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dest)
		return "", &ports.DownloadError{Name: remoteName, Err: err}
	}
	return dest, nil
}

// Delete removes remoteName from the namespace.
func (s *S3Store) Delete(ctx context.Context, remoteName string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(remoteName)),
	})
	if err != nil {
		return &ports.DeleteError{Name: remoteName, Err: err}
	}
	return nil
}

// Compile-time check that S3Store implements ports.ArchiveStore.
var _ ports.ArchiveStore = (*S3Store)(nil)
