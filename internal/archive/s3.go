// Package archive stores raw platform pages so a day's ingestion can be
// replayed without calling the platform again.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// objectAPI is the subset of the S3 client used here.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Archive writes one JSON object per (platform, date, business).
type S3Archive struct {
	client objectAPI
	bucket string
	prefix string
}

// rawPayload is the JSON structure stored in S3.
type rawPayload struct {
	BusinessID string                   `json:"business_id"`
	Platform   string                   `json:"platform"`
	Date       string                   `json:"date"`
	FetchedAt  time.Time                `json:"fetched_at"`
	Items      []map[string]interface{} `json:"items"`
}

// NewS3Archive creates an archive using the default AWS credential chain.
func NewS3Archive(ctx context.Context, bucket, region, prefix string) (*S3Archive, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for raw archive: %w", err)
	}
	return &S3Archive{client: s3.NewFromConfig(cfg), bucket: bucket, prefix: prefix}, nil
}

// Key returns the object key for a business's raw items.
func (a *S3Archive) Key(platform, businessID string, date time.Time) string {
	return fmt.Sprintf("%s/%s/%s/%s.json", a.prefix, platform, date.UTC().Format("2006-01-02"), businessID)
}

// Store uploads the raw items. Re-running the same day overwrites the object.
func (a *S3Archive) Store(ctx context.Context, businessID, platform string, date time.Time, items []map[string]interface{}) error {
	body, err := json.Marshal(rawPayload{
		BusinessID: businessID,
		Platform:   platform,
		Date:       date.UTC().Format("2006-01-02"),
		FetchedAt:  time.Now().UTC(),
		Items:      items,
	})
	if err != nil {
		return fmt.Errorf("marshaling raw payload: %w", err)
	}

	key := a.Key(platform, businessID, date)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("S3 PutObject %s/%s: %w", a.bucket, key, err)
	}
	return nil
}

// Load reads back the raw items stored for a business and day.
func (a *S3Archive) Load(ctx context.Context, businessID, platform string, date time.Time) ([]map[string]interface{}, error) {
	key := a.Key(platform, businessID, date)
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("S3 GetObject %s/%s: %w", a.bucket, key, err)
	}
	defer out.Body.Close()

	var payload rawPayload
	if err := json.NewDecoder(out.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding raw payload %s: %w", key, err)
	}
	return payload.Items, nil
}

// Client returns the client for bucket health checks.
func (a *S3Archive) Client() s3.HeadBucketAPIClient { return a.client }
