package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/h2non/filetype"
	cfg "github.com/maheshrc27/crosspost/configs"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ObjectStager puts inline media somewhere platforms can pull it from.
type ObjectStager interface {
	Stage(ctx context.Context, data []byte, contentType string) (string, error)
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type R2Service struct {
	client    objectPutter
	bucket    string
	publicURL string
	timeout   time.Duration
}

// NewR2Service returns nil when R2 is not configured. Each upload is bounded by timeout.
func NewR2Service(ctx context.Context, c cfg.R2, timeout time.Duration) (*R2Service, error) {
	if c.AccountID == "" || c.BucketName == "" || c.PublicURL == "" {
		return nil, nil
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.AccountID))
	})

	r2 := newR2Service(client, c.BucketName, c.PublicURL)
	if timeout > 0 {
		r2.timeout = timeout
	}
	return r2, nil
}

func newR2Service(client objectPutter, bucket, publicURL string) *R2Service {
	return &R2Service{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		timeout:   defaultUpstreamTimeout,
	}
}

// Stage uploads data under a random key and returns its public URL.
func (r *R2Service) Stage(ctx context.Context, data []byte, contentType string) (string, error) {
	id, err := gonanoid.New(21)
	if err != nil {
		return "", err
	}

	key := "media/" + id
	if t := filetype.GetType(strings.TrimPrefix(extensionFor(contentType), ".")); t != filetype.Unknown {
		key += "." + t.Extension
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}

	putCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.client.PutObject(putCtx, input); err != nil {
		slog.Info(err.Error())
		if isTimeout(err) {
			return "", &Error{Kind: ErrUpstreamTimeout, Message: "staging media timed out", Err: err}
		}
		return "", &Error{Kind: ErrMediaUploadFailed, Message: "staging media failed", Err: err}
	}

	return r.publicURL + "/" + key, nil
}

func extensionFor(contentType string) string {
	_, sub, ok := strings.Cut(contentType, "/")
	if !ok {
		return ""
	}
	switch sub {
	case "jpeg":
		return "jpg"
	case "quicktime":
		return "mov"
	}
	return sub
}
