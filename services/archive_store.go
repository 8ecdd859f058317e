package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	appConfig "github.com/kendall-kelly/marketplace-orders/config"
	"github.com/kendall-kelly/marketplace-orders/models"
)

// ArchiveStore keeps snapshots of archived orders in object storage
type ArchiveStore interface {
	PutSnapshot(ctx context.Context, snapshot OrderSnapshot) (string, error)
	PresignURL(ctx context.Context, key string) (string, error)
}

// OrderSnapshot is the document written when an order is archived
type OrderSnapshot struct {
	Order      models.OrderResponse      `json:"order"`
	History    []models.NegotiationEvent `json:"history"`
	ArchivedAt time.Time                 `json:"archived_at"`
	ArchivedBy uint                      `json:"archived_by"`
}

// ArchiveKey returns the object key of an order snapshot
func ArchiveKey(orderID string) string {
	return fmt.Sprintf("archive/orders/%s.json", orderID)
}

// S3ArchiveStore writes snapshots to an S3 bucket
type S3ArchiveStore struct {
	client *s3.Client
	bucket string
}

var archiveStoreInstance ArchiveStore

// InitArchiveStore initializes the S3 archive store from the service configuration
func InitArchiveStore(ctx context.Context, cfg *appConfig.Config) (ArchiveStore, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if cfg.AWSAccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AWSAccessKeyID,
			cfg.AWSSecretAccessKey,
			"",
		)))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	archiveStoreInstance = &S3ArchiveStore{
		client: s3.NewFromConfig(awsConfig),
		bucket: cfg.AWSS3Bucket,
	}
	return archiveStoreInstance, nil
}

// GetArchiveStore returns the initialized archive store, or nil when archiving
// to object storage is disabled
func GetArchiveStore() ArchiveStore {
	return archiveStoreInstance
}

// SetArchiveStore sets the archive store instance (primarily for testing)
func SetArchiveStore(store ArchiveStore) {
	archiveStoreInstance = store
}

// PutSnapshot uploads the snapshot as JSON and returns its key
func (s *S3ArchiveStore) PutSnapshot(ctx context.Context, snapshot OrderSnapshot) (string, error) {
	body, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}

	key := ArchiveKey(snapshot.Order.ID)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload snapshot to S3: %w", err)
	}

	log.Printf("Archived order %s to s3://%s/%s", snapshot.Order.ID, s.bucket, key)
	return key, nil
}

// PresignURL generates a presigned URL for reading a snapshot.
// The URL expires after 1 hour.
func (s *S3ArchiveStore) PresignURL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}

	request, err := s3.NewPresignClient(s.client).PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = time.Hour
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return request.URL, nil
}
