package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	apperrors "github.com/jrsteele09/climate-crusade/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	AvatarBucket      = "avatars"
	AvatarContentType = "image/jpeg"
)

var ErrAlreadyExists = errors.New("object already exists")

// Uploader is the slice of the S3 API the store needs.
type Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var _ Uploader = (*s3.Client)(nil)

// ClientConfig locates the S3-compatible storage endpoint.
type ClientConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	HTTPClient      *http.Client
}

// NewS3Client builds a path-style S3 client with static credentials.
func NewS3Client(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("[NewS3Client] storage endpoint is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, awsconfig.WithHTTPClient(cfg.HTTPClient))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "[NewS3Client] load aws config")
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	}), nil
}

// Store uploads objects into one bucket and hands out their public URLs.
type Store struct {
	uploader      Uploader
	bucket        string
	publicBaseURL string
	logger        zerolog.Logger
}

type Option func(*Store)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger.With().Str("component", "blobstore").Str("bucket", s.bucket).Logger()
	}
}

// New returns a store for bucket. publicBaseURL is the backend root; public objects are
// served from {publicBaseURL}/storage/v1/object/public/{bucket}/{key}.
func New(uploader Uploader, bucket, publicBaseURL string, options ...Option) *Store {
	s := &Store{
		uploader:      uploader,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Upload writes data under key and returns its public URL. With overwrite false an
// existing object is left alone and ErrAlreadyExists is returned.
func (s *Store) Upload(ctx context.Context, key string, data []byte, contentType string, overwrite bool) (string, error) {
	if key == "" {
		return "", apperrors.NewValidation("key", "object key is required")
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	}
	if !overwrite {
		input.IfNoneMatch = aws.String("*")
	}

	if _, err := s.uploader.PutObject(ctx, input); err != nil {
		return "", s.uploadError(key, err)
	}
	s.logger.Info().Str("key", key).Int("bytes", len(data)).Msg("object uploaded")
	return s.PublicURL(key), nil
}

func (s *Store) uploadError(key string, err error) error {
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		switch status := re.HTTPStatusCode(); {
		case status == http.StatusPreconditionFailed || status == http.StatusConflict:
			return errors.Wrapf(ErrAlreadyExists, "[Store.Upload] %s/%s", s.bucket, key)
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return &apperrors.AuthError{Message: "storage rejected the upload", Status: status, Err: err}
		case status >= http.StatusInternalServerError:
			return apperrors.NewTransient("upload "+key, err)
		}
		return errors.Wrapf(err, "[Store.Upload] %s/%s", s.bucket, key)
	}
	return apperrors.NewTransient("upload "+key, err)
}

func (s *Store) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.publicBaseURL, url.PathEscape(s.bucket), escapeKey(key))
}

// CacheBusted appends a timestamp so clients refetch an object that was overwritten in place.
func CacheBusted(publicURL string, at time.Time) string {
	sep := "?"
	if strings.Contains(publicURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%st=%d", publicURL, sep, at.UnixMilli())
}

// AvatarKey is the object key of a user's avatar.
func AvatarKey(userID string) string {
	return userID
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
