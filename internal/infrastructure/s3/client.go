package s3infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-notify-nosql/internal/config"
	"github.com/go-notify-nosql/internal/infrastructure/awsinfra"
)

// NewClient creates an S3 client. When cfg.AWSEndpointURL is set (LocalStack),
// it overrides the endpoint and enables path-style addressing.
func NewClient(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	awsCfg, err := awsinfra.Load(ctx, cfg, "")
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.AWSEndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
			o.UsePathStyle = true
		}
	}), nil
}

// MediaSigner turns stored media keys (avatars, listing images) into
// time-limited GET URLs for feed responses.
type MediaSigner struct {
	presigner *s3.PresignClient
	bucket    string
	ttl       time.Duration
}

func NewMediaSigner(client *s3.Client, bucket string, ttl time.Duration) *MediaSigner {
	return &MediaSigner{presigner: s3.NewPresignClient(client), bucket: bucket, ttl: ttl}
}

// PresignGet returns a presigned URL for key. Values that are already
// absolute URLs are returned unchanged.
func (m *MediaSigner) PresignGet(ctx context.Context, key string) (string, error) {
	if strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		return key, nil
	}
	req, err := m.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(strings.TrimPrefix(key, "/")),
	}, s3.WithPresignExpires(m.ttl))
	if err != nil {
		return "", fmt.Errorf("presign get object: %w", err)
	}
	return req.URL, nil
}
