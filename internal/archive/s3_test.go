package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	key  string
	body []byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.key = *in.Key
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if *in.Key != f.key {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.body))}, nil
}

func (f *fakeS3) HeadBucket(_ context.Context, _ *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func TestS3Archive_Store(t *testing.T) {
	fake := &fakeS3{}
	a := &S3Archive{client: fake, bucket: "raw-pages", prefix: "raw"}
	date := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)

	items := []map[string]interface{}{{"ad_id": "a1", "impressions": "120"}}
	require.NoError(t, a.Store(context.Background(), "biz-1", "meta", date, items))

	assert.Equal(t, "raw/meta/2026-10-17/biz-1.json", fake.key)

	var payload rawPayload
	require.NoError(t, json.Unmarshal(fake.body, &payload))
	assert.Equal(t, "biz-1", payload.BusinessID)
	assert.Equal(t, "2026-10-17", payload.Date)
	require.Len(t, payload.Items, 1)
	assert.Equal(t, "a1", payload.Items[0]["ad_id"])
}

func TestS3Archive_LoadRoundTrip(t *testing.T) {
	fake := &fakeS3{}
	a := &S3Archive{client: fake, bucket: "raw-pages", prefix: "raw"}
	date := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)

	items := []map[string]interface{}{{"ad_id": "a1"}, {"ad_id": "a2"}}
	require.NoError(t, a.Store(context.Background(), "biz-1", "google_ads", date, items))

	got, err := a.Load(context.Background(), "biz-1", "google_ads", date)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a2", got[1]["ad_id"])

	_, err = a.Load(context.Background(), "biz-2", "google_ads", date)
	assert.Error(t, err)
}
