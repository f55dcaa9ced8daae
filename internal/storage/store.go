// Package storage はアップロードされた履歴書原本のアーカイブを提供する。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// DocumentStore は履歴書原本の保存先。
type DocumentStore interface {
	// Put は原本を保存し、保存先のオブジェクトキーを返す。
	// アーカイブが無効な場合は空文字列を返す。
	Put(ctx context.Context, userID, filename, contentType string, data []byte) (string, error)
}

// S3Config はS3互換ストレージの接続設定。
type S3Config struct {
	Bucket    string
	Endpoint  string // 空の場合はAWSのデフォルトエンドポイント
	Region    string
	AccessKey string
	SecretKey string
}

// putObjectAPI はs3.ClientのPutObjectを表す。テストで差し替える。
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store はS3互換ストレージ（AWS S3 / Cloudflare R2 / MinIO）に原本を保存する。
type S3Store struct {
	client putObjectAPI
	bucket string
	logger *slog.Logger
	now    func() time.Time
}

var _ DocumentStore = (*S3Store)(nil)

// NewS3Store は静的クレデンシャルでS3クライアントを構築し、S3Storeを生成する。
func NewS3Store(ctx context.Context, cfg S3Config, logger *slog.Logger) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Put は原本を resumes/{userID}/{yyyy}/{mm}/{uuid}{ext} に保存する。
func (s *S3Store) Put(ctx context.Context, userID, filename, contentType string, data []byte) (string, error) {
	now := s.now().UTC()
	key := fmt.Sprintf("resumes/%s/%04d/%02d/%s%s",
		userID, now.Year(), int(now.Month()), uuid.NewString(), path.Ext(filename))

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		s.logger.Error("履歴書原本の保存に失敗しました",
			slog.String("bucket", s.bucket),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("failed to put object: %w", err)
	}

	s.logger.Info("履歴書原本を保存しました",
		slog.String("bucket", s.bucket),
		slog.String("key", key),
		slog.Int("size", len(data)),
	)
	return key, nil
}

// NopStore はアーカイブ無効時のDocumentStore。何も保存しない。
type NopStore struct{}

var _ DocumentStore = NopStore{}

// Put は何もせず空のキーを返す。
func (NopStore) Put(context.Context, string, string, string, []byte) (string, error) {
	return "", nil
}
