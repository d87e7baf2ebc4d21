package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// URLSigner は期限付きの読み取りURLを発行する。SignerとS3Presignerが満たす。
type URLSigner interface {
	SignedURL(bucket, path string) (string, time.Time, error)
}

// S3Config はS3互換ストレージの接続設定。
type S3Config struct {
	Bucket string
	// Endpoint はMinIOなどS3互換サービスのURL。空の場合はAWSのエンドポイントを使う。
	Endpoint string
}

// NewS3Client はS3Configに従ってクライアントを生成する。
// Endpoint指定時はパス形式でアクセスする。
func NewS3Client(awsCfg aws.Config, cfg S3Config) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
}

// S3Store はS3の単一バケットにオブジェクトを保存する。
// 配置は<bucket名>/<bucket>/<path>で、論理バケットをキーの先頭に置く。
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store はS3Storeを生成する。
func NewS3Store(client *s3.Client, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

// objectKey は論理バケットとパスを検証し、S3のキーを返す。
func objectKey(bucket, path string) (string, error) {
	if !ValidBucket(bucket) {
		return "", ErrInvalidPath
	}
	if path == "" || strings.HasPrefix(path, "/") || strings.Contains(path, `\`) {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", ErrInvalidPath
		}
	}
	return bucket + "/" + path, nil
}

// Put はオブジェクトを書き込む。
// アップロードは上限サイズ内に収まるため、署名用に全体を読み込んでから送信する。
func (s *S3Store) Put(ctx context.Context, bucket, path string, r io.Reader) error {
	key, err := objectKey(bucket, path)
	if err != nil {
		return err
	}
	body, err := io.ReadAll(&ctxReader{ctx: ctx, r: r})
	if err != nil {
		return fmt.Errorf("failed to read object body: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

// Open はオブジェクトを読み取り用に開く。
func (s *S3Store) Open(ctx context.Context, bucket, path string) (io.ReadCloser, error) {
	key, err := objectKey(bucket, path)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return out.Body, nil
}

// Delete はオブジェクトを削除する。存在しない場合は何もしない。
func (s *S3Store) Delete(ctx context.Context, bucket, path string) error {
	key, err := objectKey(bucket, path)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// DeletePrefix はprefix配下のオブジェクトを一覧して1件ずつ削除する。
func (s *S3Store) DeletePrefix(ctx context.Context, bucket, prefix string) error {
	key, err := objectKey(bucket, strings.TrimSuffix(prefix, "/"))
	if err != nil {
		return err
	}
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(key + "/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    obj.Key,
			})
			if err != nil && !isNotFound(err) {
				return fmt.Errorf("failed to delete object %s: %w", aws.ToString(obj.Key), err)
			}
		}
	}
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}

// S3Presigner はS3の署名付きGET URLを発行する。
type S3Presigner struct {
	presign *s3.PresignClient
	bucket  string
	ttl     time.Duration
	now     func() time.Time
}

// NewS3Presigner はS3Presignerを生成する。
func NewS3Presigner(client *s3.Client, bucket string, ttl time.Duration) *S3Presigner {
	return &S3Presigner{
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
		ttl:     ttl,
		now:     time.Now,
	}
}

// SignedURL はbucketとpathのオブジェクトを期限付きで読み取れるURLを返す。
// 署名はローカルで計算し、ネットワークには接続しない。
func (p *S3Presigner) SignedURL(bucket, path string) (string, time.Time, error) {
	key, err := objectKey(bucket, path)
	if err != nil {
		return "", time.Time{}, err
	}
	expiresAt := p.now().Add(p.ttl)
	req, err := p.presign.PresignGetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(p.ttl))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to presign object: %w", err)
	}
	return req.URL, expiresAt, nil
}

// compile-time interface check
var (
	_ Store     = (*S3Store)(nil)
	_ URLSigner = (*S3Presigner)(nil)
	_ URLSigner = (*Signer)(nil)
)
