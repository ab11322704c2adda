package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"where2go-events/internal/config"
	"where2go-events/internal/models"
)

// S3API is the part of the S3 client the service uses
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Client uploads day snapshots and run reports
type S3Client struct {
	client     S3API
	bucketName string
	region     string
	prefix     string
}

// S3UploadResult represents the result of an S3 upload operation
type S3UploadResult struct {
	Key         string    `json:"key"`
	ETag        string    `json:"etag"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploaded_at"`
	ContentType string    `json:"content_type"`
	PublicURL   string    `json:"public_url"`
}

// NewS3ClientWithConfig creates an S3 client from the default AWS credential chain
func NewS3ClientWithConfig(ctx context.Context, cfg config.StorageConfig) (*S3Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.Region != "" {
		awsCfg.Region = cfg.Region
	}
	return NewS3ClientWithAPI(s3.NewFromConfig(awsCfg), cfg.Bucket, awsCfg.Region, cfg.Prefix), nil
}

// NewS3ClientWithAPI wraps an existing client
func NewS3ClientWithAPI(client S3API, bucketName, region, prefix string) *S3Client {
	if prefix == "" {
		prefix = "events"
	}
	return &S3Client{
		client:     client,
		bucketName: bucketName,
		region:     region,
		prefix:     strings.Trim(prefix, "/"),
	}
}

// SnapshotKey is the key of the snapshot of a city and day
func (s *S3Client) SnapshotKey(city, date string) string {
	return fmt.Sprintf("%s/%s/%s.json", s.prefix, models.NormalizeCity(city), date)
}

// RunKey is the key of a run report. The run ID keeps concurrent runs apart.
func RunKey(run *models.AggregationRun) string {
	return fmt.Sprintf("runs/%s_%s.json", run.StartedAt.UTC().Format("2006-01-02T15-04-05Z"), run.ID)
}

// UploadSnapshot uploads the merged events of a city and day
func (s *S3Client) UploadSnapshot(ctx context.Context, city, date, runID string, records []models.EventRecord) (*S3UploadResult, error) {
	if records == nil {
		records = []models.EventRecord{}
	}
	output := models.EventsOutput{
		Metadata: models.NewEventsMetadata(city, date, runID, records),
		Events:   records,
	}

	jsonData, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal events to JSON: %w", err)
	}
	return s.uploadJSON(ctx, jsonData, s.SnapshotKey(city, date), "application/json")
}

// UploadRun uploads an aggregation run report
func (s *S3Client) UploadRun(ctx context.Context, run *models.AggregationRun) (*S3UploadResult, error) {
	jsonData, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run to JSON: %w", err)
	}
	return s.uploadJSON(ctx, jsonData, RunKey(run), "application/json")
}

// DownloadSnapshot reads back the snapshot of a city and day
func (s *S3Client) DownloadSnapshot(ctx context.Context, city, date string) (*models.EventsOutput, error) {
	data, err := s.downloadJSON(ctx, s.SnapshotKey(city, date))
	if err != nil {
		return nil, err
	}

	var output models.EventsOutput
	if err := json.Unmarshal(data, &output); err != nil {
		return nil, fmt.Errorf("failed to unmarshal events JSON: %w", err)
	}
	return &output, nil
}

// uploadJSON is a helper method to upload JSON data to S3
func (s *S3Client) uploadJSON(ctx context.Context, data []byte, key, contentType string) (*S3UploadResult, error) {
	key = strings.TrimPrefix(key, "/")

	result, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		// frontends poll the snapshots
		CacheControl: aws.String("public, max-age=300"),
		Metadata: map[string]string{
			"uploaded-by": "where2go-events",
			"upload-time": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s to S3: %w", key, err)
	}

	return &S3UploadResult{
		Key:         key,
		ETag:        strings.Trim(aws.ToString(result.ETag), `"`),
		Size:        int64(len(data)),
		UploadedAt:  time.Now(),
		ContentType: contentType,
		PublicURL:   s.GetPublicURL(key),
	}, nil
}

// downloadJSON is a helper method to download JSON data from S3
func (s *S3Client) downloadJSON(ctx context.Context, key string) ([]byte, error) {
	key = strings.TrimPrefix(key, "/")

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s from S3: %w", key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object body: %w", err)
	}
	return data, nil
}

// GetBucketName returns the configured bucket name
func (s *S3Client) GetBucketName() string {
	return s.bucketName
}

// GetPublicURL generates the public URL for an S3 object
func (s *S3Client) GetPublicURL(key string) string {
	key = strings.TrimPrefix(key, "/")
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucketName, s.region, key)
}
