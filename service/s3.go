package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ikonrealty/closingdesk/config"
	"github.com/ikonrealty/closingdesk/model"
)

// S3Source lists contracts straight from an S3 bucket
type S3Source struct {
	client  *s3.Client
	presign *s3.PresignClient
	config  *config.S3Config
}

func NewS3Source(ctx context.Context, cfg *config.S3Config) (*S3Source, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return &S3Source{
		client:  client,
		presign: s3.NewPresignClient(client),
		config:  cfg,
	}, nil
}

// FetchTransactions lists every object under the configured prefix as a
// one-file transaction. Keys are taken relative to the prefix.
func (s *S3Source) FetchTransactions(ctx context.Context) ([]model.RawTransaction, error) {
	prefix := strings.TrimLeft(s.config.Prefix, "/")
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.config.Bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var items []model.RawTransaction
	pages := s3.NewListObjectsV2Paginator(s.client, input)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, &NetworkError{Op: "s3 list objects", Err: err}
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			url, err := s.PresignGet(ctx, key)
			if err != nil {
				slog.Warn("presign failed", "key", key, "error", err)
			}
			rel := strings.TrimPrefix(key, prefix)
			rel = strings.TrimLeft(rel, "/")
			items = append(items, RawFromObject(rel, aws.ToInt64(obj.Size), aws.ToTime(obj.LastModified), url, nil))
		}
	}
	return items, nil
}

// PresignGet returns a time-limited download URL for key
func (s *S3Source) PresignGet(ctx context.Context, key string) (string, error) {
	expiry := time.Duration(s.config.ExpireMinutes) * time.Minute
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return req.URL, nil
}
