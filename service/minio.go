package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ikonrealty/closingdesk/config"
	"github.com/ikonrealty/closingdesk/model"
)

// MinioService reads the contract bucket directly. It serves as a snapshot
// source and moves deleted objects under the trash prefix.
type MinioService struct {
	client *minio.Client
	bucket string
	config *config.MinioConfig
}

func NewMinioService(cfg *config.MinioConfig) (*MinioService, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioService{
		client: client,
		bucket: cfg.Bucket,
		config: cfg,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *MinioService) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// FetchTransactions lists every live object as a one-file transaction.
// Grouping merges them back by agent and address.
func (s *MinioService) FetchTransactions(ctx context.Context) ([]model.RawTransaction, error) {
	var items []model.RawTransaction
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: true, WithMetadata: true}) {
		if obj.Err != nil {
			return nil, &NetworkError{Op: "minio list objects", Err: obj.Err}
		}
		if s.isTrash(obj.Key) || strings.HasSuffix(obj.Key, "/") {
			continue
		}
		url, err := s.GetPresignedURL(ctx, obj.Key)
		if err != nil {
			slog.Warn("presign failed", "key", obj.Key, "error", err)
		}
		items = append(items, RawFromObject(obj.Key, obj.Size, obj.LastModified, url, obj.UserMetadata))
	}
	return items, nil
}

func (s *MinioService) isTrash(key string) bool {
	return s.config.TrashPrefix != "" && strings.HasPrefix(key, s.config.TrashPrefix)
}

// UploadFile stores an object
func (s *MinioService) UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}

	return nil
}

// GetPresignedURL generates a presigned download URL for the object
func (s *MinioService) GetPresignedURL(ctx context.Context, objectName string) (string, error) {
	expiry := time.Duration(s.config.ExpireDays) * 24 * time.Hour
	url, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return url.String(), nil
}

// MoveToTrash copies key under the trash prefix and removes the original
func (s *MinioService) MoveToTrash(ctx context.Context, key string) error {
	dst := minio.CopyDestOptions{Bucket: s.bucket, Object: s.config.TrashPrefix + key}
	src := minio.CopySrcOptions{Bucket: s.bucket, Object: key}
	if _, err := s.client.CopyObject(ctx, dst, src); err != nil {
		return &NetworkError{Op: "minio copy to trash", Err: err}
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return &NetworkError{Op: "minio remove", Err: err}
	}
	return nil
}

// TrashBackend routes deletions to the bucket trash and stage changes to the
// REST backend. The commission instructions note is written to the bucket
// before the stage change is sent.
type TrashBackend struct {
	Backend
	Store *MinioService
	now   func() time.Time
}

func NewTrashBackend(rest Backend, store *MinioService) *TrashBackend {
	return &TrashBackend{Backend: rest, Store: store, now: time.Now}
}

func (b *TrashBackend) AdvanceStage(ctx context.Context, req model.StageAdvanceRequest, idempotencyKey string) error {
	if c, ok := req.StageData.(model.ClosingData); ok {
		if note := strings.TrimSpace(c.CommissionInstructions); note != "" {
			g := &model.TransactionGroup{ID: req.ContractID, Agent: agentFromContext(ctx)}
			for _, f := range SupportingFiles(g, c, b.now()) {
				if f.Role != model.RoleCommissionDoc {
					continue
				}
				if err := b.Store.UploadFile(ctx, f.Key, strings.NewReader(note), int64(len(note)), "text/plain"); err != nil {
					return &NetworkError{Op: "minio put commission note", Err: err}
				}
			}
		}
	}
	return b.Backend.AdvanceStage(ctx, req, idempotencyKey)
}

func (b *TrashBackend) DeleteFile(ctx context.Context, key string) error {
	return b.Store.MoveToTrash(ctx, key)
}

func (b *TrashBackend) BulkDelete(ctx context.Context, years float64) error {
	cutoff := Cutoff(years, b.now())
	var keys []string
	for obj := range b.Store.client.ListObjects(ctx, b.Store.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return &NetworkError{Op: "minio list objects", Err: obj.Err}
		}
		if b.Store.isTrash(obj.Key) || !obj.LastModified.Before(cutoff) {
			continue
		}
		keys = append(keys, obj.Key)
	}
	for _, key := range keys {
		if err := b.Store.MoveToTrash(ctx, key); err != nil {
			return err
		}
	}
	slog.Info("bulk delete moved objects to trash", "count", len(keys), "years", years)
	return nil
}

type agentCtxKey struct{}

// WithAgent records the owning agent folder for storage writes
func WithAgent(ctx context.Context, agent string) context.Context {
	return context.WithValue(ctx, agentCtxKey{}, agent)
}

func agentFromContext(ctx context.Context) string {
	a, _ := ctx.Value(agentCtxKey{}).(string)
	return a
}

// Object metadata keys written by the upload flow
const (
	metaContractID      = "contract-id"
	metaTransactionType = "transaction-type"
	metaFileRole        = "file-role"
	metaStage           = "stage"
	metaAddress         = "address"
	metaFilename        = "filename"
)

// RawFromObject converts a listed object into a one-file RawTransaction.
// Keys look like <agent>/<contractId>/<filename>; user metadata may carry
// the address and stage.
func RawFromObject(key string, size int64, modified time.Time, url string, meta map[string]string) model.RawTransaction {
	md := make(map[string]string, len(meta))
	for k, v := range meta {
		k = strings.ToLower(k)
		k = strings.TrimPrefix(k, "x-amz-meta-")
		md[k] = v
	}

	segments := strings.Split(key, "/")
	tx := model.RawTransaction{
		ContractID:      md[metaContractID],
		TransactionType: model.TransactionType(strings.ToUpper(md[metaTransactionType])),
		Stage:           model.Stage(strings.ToUpper(md[metaStage])),
	}
	if len(segments) > 1 {
		tx.Agent = segments[0]
	}
	if tx.ContractID == "" && len(segments) > 2 {
		tx.ContractID = segments[1]
	}
	if raw := md[metaAddress]; raw != "" {
		var a model.Address
		if err := json.Unmarshal([]byte(raw), &a); err == nil {
			tx.Address = &a
		} else {
			slog.Debug("ignoring malformed address metadata", "key", key, "error", err)
		}
	}

	t := modified.UTC()
	tx.UpdatedAt = &t
	tx.Files = []model.RawFile{{
		Key:          key,
		Filename:     md[metaFilename],
		URL:          url,
		Size:         size,
		LastModified: &t,
		FileRole:     model.FileRole(strings.ToUpper(md[metaFileRole])),
	}}
	if tx.Files[0].Filename == "" {
		tx.Files[0].Filename = path.Base(key)
	}
	return tx
}
