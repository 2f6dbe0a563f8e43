package cover

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// cacheControl はカバー画像に付与するキャッシュディレクティブ。
// アセットは内容の変わらないページID由来キーで保存されるため長期キャッシュできる。
const cacheControl = "public, max-age=31536000, immutable"

// s3API はS3Storeが使用するS3操作のサブセット。テストダブル差し替え用。
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config はオブジェクトストレージバックエンドの設定を保持する。
type S3Config struct {
	Bucket        string
	Prefix        string
	Region        string
	Endpoint      string // S3互換ストレージ用。空の場合はAWS標準エンドポイント
	PublicBaseURL string // CDN等の公開ベースURL。空の場合はバケットURLを使用

	// AccessKey/SecretKey はS3互換ストレージ用の静的認証情報。
	// 未設定の場合はAWS SDKの標準チェーンで解決する。
	AccessKey string
	SecretKey string
}

// S3Store はS3（またはS3互換）オブジェクトストレージへの保存を行う。
type S3Store struct {
	client s3API
	cfg    S3Config
}

// NewS3Store はS3Storeの新しいインスタンスを生成する。
// 静的認証情報が設定されていればそれを使い、
// 未設定の場合はAWS SDKの標準チェーン（環境変数、共有設定等）から解決される。
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("AWS設定の読み込みに失敗: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, cfg: cfg}, nil
}

// newS3StoreWithClient はテスト用にクライアントを差し替えたS3Storeを生成する。
func newS3StoreWithClient(client s3API, cfg S3Config) *S3Store {
	return &S3Store{client: client, cfg: cfg}
}

// Put はカバー画像をオブジェクトストレージにアップロードし、公開URLを返す。
// 公開読み取り可能・長期キャッシュ可能なオブジェクトとして保存される。
func (s *S3Store) Put(ctx context.Context, filename string, data []byte, contentType string) (string, error) {
	key := path.Join(s.cfg.Prefix, filename)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.cfg.Bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(cacheControl),
		ACL:          types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("オブジェクトストレージへのアップロードに失敗 (key=%s): %w", key, err)
	}

	return s.publicURL(key), nil
}

// publicURL は保存済みオブジェクトの公開URLを導出する。
func (s *S3Store) publicURL(key string) string {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key
	}
	if s.cfg.Endpoint != "" {
		return strings.TrimRight(s.cfg.Endpoint, "/") + "/" + s.cfg.Bucket + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}

// compile-time interface check
var _ ObjectStore = (*S3Store)(nil)
