package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config はS3互換ストレージの接続設定。
// EndpointにはR2やMinIO等のS3互換エンドポイントを指定できる。
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Store はS3互換サービスを使用するObjectStore実装。
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store はS3Storeを生成する。
// アクセスキーが未指定の場合はSDKのデフォルト認証チェーンを使用する。
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.Endpoint))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// カスタムエンドポイント（R2/MinIO）はバケットのサブドメイン解決を
		// 持たないことが多いため、パス形式でアクセスする
		o.UsePathStyle = cfg.Endpoint != ""
	})

	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

// List はプレフィックス配下のキー一覧を1ページ分返す。
// カーソルはS3のContinuationTokenをそのまま不透明値として使う。
func (s *S3Store) List(ctx context.Context, prefix, cursor string) (*ListPage, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}
	if cursor != "" {
		input.ContinuationToken = aws.String(cursor)
	}

	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	page := &ListPage{
		Keys:      make([]string, 0, len(out.Contents)),
		Truncated: aws.ToBool(out.IsTruncated),
		Cursor:    aws.ToString(out.NextContinuationToken),
	}
	for _, obj := range out.Contents {
		page.Keys = append(page.Keys, aws.ToString(obj.Key))
	}
	return page, nil
}

// Get はオブジェクトを条件付き・レンジ指定で取得する。
func (s *S3Store) Get(ctx context.Context, key string, cond Conditions) (*Object, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if cond.Range != "" {
		input.Range = aws.String(cond.Range)
	}
	if cond.IfMatch != "" {
		input.IfMatch = aws.String(cond.IfMatch)
	}
	if cond.IfNoneMatch != "" {
		input.IfNoneMatch = aws.String(cond.IfNoneMatch)
	}
	if t, ok := parseHTTPTime(cond.IfModifiedSince); ok {
		input.IfModifiedSince = aws.Time(t)
	}
	if t, ok := parseHTTPTime(cond.IfUnmodifiedSince); ok {
		input.IfUnmodifiedSince = aws.Time(t)
	}

	out, err := s.client.GetObject(ctx, input)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		// 304/412は「オブジェクトは存在するがボディは返さない」であり、
		// メタデータだけを取り直してボディなしオブジェクトとして返す
		if status, ok := httpStatus(err); ok &&
			(status == http.StatusNotModified || status == http.StatusPreconditionFailed) {
			return s.Head(ctx, key)
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}

	return &Object{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ETag:         aws.ToString(out.ETag),
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
		ContentRange: aws.ToString(out.ContentRange),
		Body:         out.Body,
	}, nil
}

// Head はオブジェクトのメタデータのみを取得する。
func (s *S3Store) Head(ctx context.Context, key string) (*Object, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to head object: %w", err)
	}

	return &Object{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ETag:         aws.ToString(out.ETag),
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

// Put はオブジェクトを格納し、新しいETagを返す。
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	out, err := s.client.PutObject(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to put object: %w", err)
	}
	return aws.ToString(out.ETag), nil
}

// Delete はオブジェクトを削除する。存在しないキーの削除も成功する。
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// isNotFound はオブジェクト不存在エラーかどうかを判定する。
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	// HeadObjectはモデル化されたエラー型を返さない場合がある
	if status, ok := httpStatus(err); ok && status == http.StatusNotFound {
		return true
	}
	return false
}

// httpStatus はエラーから上流HTTPステータスコードを取り出す。
func httpStatus(err error) (int, bool) {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode(), true
	}
	return 0, false
}

// parseHTTPTime はHTTP日付ヘッダー値をパースする。
func parseHTTPTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := http.ParseTime(value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// インターフェース実装のコンパイル時チェック
var _ ObjectStore = (*S3Store)(nil)
