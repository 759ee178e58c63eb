package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = params
	f.body, _ = io.ReadAll(params.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestPublish(t *testing.T) {
	path := filepath.Join(t.TempDir(), "My_Clip_1700000000.mp4")
	if err := os.WriteFile(path, []byte("clip"), 0o644); err != nil {
		t.Fatal(err)
	}

	putter := &fakePutter{}
	client := newSpacesClient(putter, SpacesConfig{Bucket: "clips-bucket", Endpoint: "https://nyc3.example.com/"})

	url, err := client.Publish(context.Background(), "sess-1", path)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	wantKey := "clips/sess-1/My_Clip_1700000000.mp4"
	if aws.ToString(putter.input.Key) != wantKey || aws.ToString(putter.input.Bucket) != "clips-bucket" {
		t.Errorf("unexpected put input key=%s bucket=%s", aws.ToString(putter.input.Key), aws.ToString(putter.input.Bucket))
	}
	if aws.ToString(putter.input.ContentType) != "video/mp4" {
		t.Errorf("unexpected content type %s", aws.ToString(putter.input.ContentType))
	}
	if string(putter.body) != "clip" {
		t.Errorf("unexpected body %q", putter.body)
	}
	if url != "https://nyc3.example.com/clips-bucket/"+wantKey {
		t.Errorf("unexpected url %s", url)
	}
}

func TestPublishErrors(t *testing.T) {
	client := newSpacesClient(&fakePutter{err: fmt.Errorf("denied")}, SpacesConfig{Bucket: "b", PublicBaseURL: "https://cdn.test"})

	if _, err := client.Publish(context.Background(), "s", filepath.Join(t.TempDir(), "missing.mp4")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "a.srt")
	os.WriteFile(path, []byte("1"), 0o644)
	if _, err := client.Publish(context.Background(), "s", path); err == nil {
		t.Error("expected upload error")
	}
}
