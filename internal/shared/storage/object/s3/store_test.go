package s3

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestApplyPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "raw/abc.txt", want: "raw/abc.txt"},
		{name: "simple prefix", prefix: "medbeauty", key: "raw/abc.txt", want: "medbeauty/raw/abc.txt"},
		{name: "prefix trailing slash", prefix: "medbeauty/", key: "raw/abc.txt", want: "medbeauty/raw/abc.txt"},
		{name: "prefix and key slashes", prefix: "/medbeauty/", key: "/raw/abc.txt", want: "medbeauty/raw/abc.txt"},
		{name: "nested prefix", prefix: "prod/archive", key: "raw/abc.txt", want: "prod/archive/raw/abc.txt"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := applyPrefix(tt.prefix, tt.key); got != tt.want {
				t.Fatalf("applyPrefix(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}

type fakeS3 struct {
	put  *s3.PutObjectInput
	body string
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.put = params
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.body = string(data)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func TestSaveWithKeyEncryption(t *testing.T) {
	tests := []struct {
		name    string
		kmsKey  string
		wantSSE s3types.ServerSideEncryption
	}{
		{name: "kms", kmsKey: "arn:aws:kms:key/1", wantSSE: s3types.ServerSideEncryptionAwsKms},
		{name: "aes256 default", wantSSE: s3types.ServerSideEncryptionAes256},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeS3{}
			store := NewWithClient(fake, "bucket", "archive/", tt.kmsKey)

			n, err := store.SaveWithKey(context.Background(), "raw/a.txt", "text/plain", strings.NewReader("hello"))
			if err != nil {
				t.Fatalf("save: %v", err)
			}
			if n != 5 {
				t.Fatalf("expected 5 bytes counted, got %d", n)
			}
			if aws.ToString(fake.put.Key) != "archive/raw/a.txt" {
				t.Fatalf("unexpected key %q", aws.ToString(fake.put.Key))
			}
			if fake.put.ServerSideEncryption != tt.wantSSE {
				t.Fatalf("expected SSE %q, got %q", tt.wantSSE, fake.put.ServerSideEncryption)
			}
			if tt.kmsKey != "" && aws.ToString(fake.put.SSEKMSKeyId) != tt.kmsKey {
				t.Fatalf("expected kms key id %q", tt.kmsKey)
			}

			rc, err := store.Open(context.Background(), "raw/a.txt")
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			defer rc.Close()
			data, _ := io.ReadAll(rc)
			if string(data) != "hello" {
				t.Fatalf("unexpected body %q", data)
			}
		})
	}
}
