package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
)

// --- モック ---

type mockPutter struct {
	putFn func(ctx aws.Context, input *s3.PutObjectInput) (*s3.PutObjectOutput, error)
}

func (m *mockPutter) PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	return m.putFn(ctx, input)
}

// --- テスト ---

func TestS3Uploader_Upload(t *testing.T) {
	var got *s3.PutObjectInput
	putter := &mockPutter{
		putFn: func(ctx aws.Context, input *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
			got = input
			return &s3.PutObjectOutput{}, nil
		},
	}
	u := NewS3UploaderWithClient(putter, "eu-central-1", "bijou-returns")

	url, err := u.Upload(context.Background(), "returns/user-1/a.png", strings.NewReader("png-bytes"), 9, "image/png")
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if url != "https://bijou-returns.s3.eu-central-1.amazonaws.com/returns/user-1/a.png" {
		t.Errorf("url = %q", url)
	}
	if aws.StringValue(got.Bucket) != "bijou-returns" {
		t.Errorf("bucket = %q", aws.StringValue(got.Bucket))
	}
	if aws.StringValue(got.ContentType) != "image/png" {
		t.Errorf("content type = %q", aws.StringValue(got.ContentType))
	}
	if aws.Int64Value(got.ContentLength) != 9 {
		t.Errorf("content length = %d", aws.Int64Value(got.ContentLength))
	}
	body, _ := io.ReadAll(got.Body)
	if string(body) != "png-bytes" {
		t.Errorf("body = %q", body)
	}
}

func TestS3Uploader_Upload_NormalizesKey(t *testing.T) {
	var key string
	putter := &mockPutter{
		putFn: func(ctx aws.Context, input *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
			key = aws.StringValue(input.Key)
			return &s3.PutObjectOutput{}, nil
		},
	}
	u := NewS3UploaderWithClient(putter, "eu-central-1", "b")

	if _, err := u.Upload(context.Background(), "/returns/../../etc/x.png", strings.NewReader(""), 0, "image/png"); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if key != "etc/x.png" {
		t.Errorf("key = %q, want %q", key, "etc/x.png")
	}
}

func TestS3Uploader_Upload_Error(t *testing.T) {
	boom := errors.New("access denied")
	putter := &mockPutter{
		putFn: func(ctx aws.Context, input *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
			return nil, boom
		},
	}
	u := NewS3UploaderWithClient(putter, "eu-central-1", "b")

	if _, err := u.Upload(context.Background(), "k", strings.NewReader(""), 0, "image/png"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
