package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// Options configures the S3 client. Empty fields fall back to the default
// AWS configuration chain.
type Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// S3Client moves documents in and out of S3, optionally sealed with
// Encrypt.
type S3Client struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
}

// Object is a downloaded object with its stored name.
type Object struct {
	Data             []byte
	Name             string
	ContentType      string
	EncryptionFormat string
}

// NewS3Client creates a new S3 client
func NewS3Client(ctx context.Context, opts Options) (*S3Client, error) {
	var loaders []func(*awscfg.LoadOptions) error
	if opts.Region != "" {
		loaders = append(loaders, awscfg.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loaders = append(loaders, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	cli := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Client{
		client:     cli,
		uploader:   manager.NewUploader(cli),
		downloader: manager.NewDownloader(cli),
		bucket:     opts.Bucket,
	}, nil
}

func (s *S3Client) Bucket() string { return s.bucket }

func (s *S3Client) bucketOr(b string) string {
	if b == "" {
		return s.bucket
	}
	return b
}

// Download fetches bucket/key. Enveloped objects are decrypted with
// password; plain objects are returned as stored.
func (s *S3Client) Download(ctx context.Context, bucket, key, password string) (*Object, error) {
	bucket = s.bucketOr(bucket)
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to stat s3://%s/%s: %w", bucket, key, err)
	}

	buf := manager.NewWriteAtBuffer(nil)
	if _, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}

	obj := &Object{Data: buf.Bytes(), ContentType: aws.ToString(head.ContentType)}
	for k, v := range head.Metadata {
		if strings.EqualFold(k, "name") {
			obj.Name = v
		}
	}
	if IsEncrypted(obj.Data) || head.Metadata["encrypted"] == "true" {
		plain, format, err := Decrypt(obj.Data, password)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt s3://%s/%s: %w", bucket, key, err)
		}
		obj.Data, obj.EncryptionFormat = plain, format
	}

	log.Info().
		Str("bucket", bucket).
		Str("key", key).
		Str("encryption_format", obj.EncryptionFormat).
		Int("size", len(obj.Data)).
		Msg("downloaded object from S3")
	return obj, nil
}

// Upload stores data under key in the default bucket. A non-empty
// password seals the payload first.
func (s *S3Client) Upload(ctx context.Context, key, name, contentType string, data []byte, password string) error {
	meta := map[string]string{"name": name}
	body := data
	if password != "" {
		sealed, err := Encrypt(data, password)
		if err != nil {
			return fmt.Errorf("failed to encrypt data: %w", err)
		}
		body = sealed
		meta["encrypted"] = "true"
		meta["encryption-format"] = FormatGCM
	}

	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		Metadata:    meta,
	})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("upload to S3 failed")
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	log.Info().Str("key", key).Str("location", out.Location).Bool("encrypted", password != "").Msg("uploaded object to S3")
	return nil
}
