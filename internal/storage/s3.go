package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config holds the connection settings of an S3 compatible object store
type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Prefix          string
}

// S3ObjectStore implements ObjectStore on an S3 compatible service such as Ceph or MinIO
type S3ObjectStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3ObjectStore creates an object store client. The endpoint may be a bare
// host or a URL; an http:// URL disables TLS.
func NewS3ObjectStore(cfg S3Config) (*S3ObjectStore, error) {
	host, secure, err := parseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	return &S3ObjectStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Connect verifies that the configured bucket is reachable
func (s *S3ObjectStore) Connect(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to reach bucket %s: %w", s.bucket, err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", s.bucket)
	}
	return nil
}

// StoreDocument uploads doc under key, replacing any previous object
func (s *S3ObjectStore) StoreDocument(ctx context.Context, key string, doc []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.objectName(key), bytes.NewReader(doc), int64(len(doc)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

// RetrieveDocument downloads the object under key
func (s *S3ObjectStore) RetrieveDocument(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.objectName(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, mapObjectError(err)
	}
	defer obj.Close()

	// GetObject is lazy; a missing key only surfaces on the first read
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapObjectError(err)
	}
	return data, nil
}

// Describe returns the s3:// URL of key
func (s *S3ObjectStore) Describe(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.objectName(key))
}

func (s *S3ObjectStore) objectName(key string) string {
	return path.Join(s.prefix, key)
}

func mapObjectError(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %v", ErrDocumentNotFound, err)
	}
	return fmt.Errorf("failed to get object: %w", err)
}

func parseEndpoint(endpoint string) (string, bool, error) {
	if endpoint == "" {
		return "", false, fmt.Errorf("object store endpoint is empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		// bare host[:port]
		return endpoint, true, nil
	}
	switch u.Scheme {
	case "https":
		return u.Host, true, nil
	case "http":
		return u.Host, false, nil
	default:
		return "", false, fmt.Errorf("unsupported object store endpoint scheme %q", u.Scheme)
	}
}
