package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
)

type SpacesConfig struct {
	AccessKey     string
	SecretKey     string
	Region        string
	Endpoint      string
	Bucket        string
	PublicBaseURL string
}

// objectPutter is the part of *s3.Client the publisher needs.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// SpacesClient uploads finished artifacts to an S3 compatible bucket.
type SpacesClient struct {
	client        objectPutter
	bucket        string
	publicBaseURL string
}

func NewSpacesClient(ctx context.Context, cfg SpacesConfig) (*SpacesClient, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %v", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newSpacesClient(client, cfg), nil
}

func newSpacesClient(client objectPutter, cfg SpacesConfig) *SpacesClient {
	base := cfg.PublicBaseURL
	if base == "" && cfg.Endpoint != "" {
		base = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}
	return &SpacesClient{client: client, bucket: cfg.Bucket, publicBaseURL: strings.TrimRight(base, "/")}
}

var contentTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".srt":  "application/x-subrip",
	".wav":  "audio/wav",
}

func ContentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// ObjectKey is clips/<session id>/<file name>.
func ObjectKey(sessionID, path string) string {
	return fmt.Sprintf("clips/%s/%s", sessionID, filepath.Base(path))
}

// Publish uploads the file at path and returns its public URL.
func (s *SpacesClient) Publish(ctx context.Context, sessionID, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact: %v", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat artifact: %v", err)
	}

	key := ObjectKey(sessionID, path)
	contentType := ContentType(path)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          io.Reader(f),
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to Spaces: %v", err)
	}

	url := s.publicBaseURL + "/" + key
	logrus.WithFields(logrus.Fields{
		"bucket": s.bucket,
		"key":    key,
		"size":   info.Size(),
	}).Info("Artifact published")
	return url, nil
}
