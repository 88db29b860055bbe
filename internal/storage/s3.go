// Package storage keeps raw uploaded documents in an S3 compatible
// object store, keyed by owner and document id.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/arborlabs/arbor/backend/internal/util"
)

func NewS3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(util.GetEnv("AWS_REGION")),
		config.WithBaseEndpoint(util.GetEnv("AWS_ENDPOINT")),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			util.GetEnv("AWS_ACCESS_KEY"),
			util.GetEnv("AWS_SECRET_KEY"),
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	}), nil
}

// S3FileStore implements the ingest file store on a single bucket.
type S3FileStore struct {
	client *s3.Client
	bucket string
}

func NewS3FileStore(client *s3.Client, bucket string) (*S3FileStore, error) {
	if client == nil {
		return nil, fmt.Errorf("file store: s3 client is nil")
	}
	if bucket == "" {
		return nil, fmt.Errorf("file store: bucket is empty")
	}
	return &S3FileStore{client: client, bucket: bucket}, nil
}

func objectKey(ownerID, documentID string) string {
	return fmt.Sprintf("%s/%s", ownerID, documentID)
}

func (s *S3FileStore) Upload(ctx context.Context, ownerID, documentID, fileType string, content io.Reader) error {
	mimeType := mime.TypeByExtension("." + fileType)
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey(ownerID, documentID)),
		Body:        content,
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", documentID, err)
	}
	return nil
}

func (s *S3FileStore) Download(ctx context.Context, ownerID, documentID string) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(ownerID, documentID)),
	})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", documentID, err)
	}
	defer result.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, result.Body); err != nil {
		return nil, fmt.Errorf("read %s: %w", documentID, err)
	}
	return buf.Bytes(), nil
}

func (s *S3FileStore) Delete(ctx context.Context, ownerID, documentID string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(ownerID, documentID)),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", documentID, err)
	}
	return nil
}
