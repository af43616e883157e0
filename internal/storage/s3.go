// Package storage は返品の証拠画像をS3に保存する。
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// ObjectPutter はS3のPutObject呼び出しを抽象化する。*s3.S3 が実装する。
type ObjectPutter interface {
	PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
}

// S3Uploader はS3へのアップロードと公開URLの組み立てを行う。
type S3Uploader struct {
	client ObjectPutter
	bucket string
	region string
}

// NewS3Uploader はデフォルトの認証情報チェーンでS3クライアントを生成する。
func NewS3Uploader(region, bucket string) (*S3Uploader, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}
	return NewS3UploaderWithClient(s3.New(sess), region, bucket), nil
}

// NewS3UploaderWithClient は任意のクライアントを使うS3Uploaderを生成する。
func NewS3UploaderWithClient(client ObjectPutter, region, bucket string) *S3Uploader {
	return &S3Uploader{client: client, bucket: bucket, region: region}
}

// Upload はbodyをkeyに保存し、オブジェクトのhttps URLを返す。
func (u *S3Uploader) Upload(ctx context.Context, key string, body io.ReadSeeker, size int64, contentType string) (string, error) {
	key = strings.TrimPrefix(path.Clean("/"+key), "/")

	_, err := u.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return u.ObjectURL(key), nil
}

// ObjectURL は仮想ホスト形式のオブジェクトURLを返す。
func (u *S3Uploader) ObjectURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.bucket, u.region, key)
}
