// Package store implements the per-recipient customization store on top of
// S3-compatible object storage. Customizations are free-text directives a
// recipient previously supplied (e.g., by replying to the newsletter) that
// steer future content generation.
//
// The store is purely additive: any retrieval failure degrades to an empty
// result, so its total absence is indistinguishable from a functioning but
// empty store.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Client abstracts the S3 GetObject operation for testability.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// customizationRecord is the stored object shape: an ordered sequence of
// free-text replies.
type customizationRecord struct {
	Replies []struct {
		Text string `json:"text"`
	} `json:"replies"`
}

// CustomizationStore loads a recipient's prior customization requests from a
// per-recipient object keyed by a derived identifier.
type CustomizationStore struct {
	client S3Client
	bucket string
	logger *slog.Logger
}

// Config holds the settings for constructing a CustomizationStore's S3
// client. Endpoint and static credentials are only set when targeting a
// local S3-compatible stack.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// New constructs a CustomizationStore with an S3 client built from cfg.
// The default AWS credential chain applies unless static credentials are
// provided (local development against MinIO/LocalStack).
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*CustomizationStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, err
	}

	opts := []func(*s3.Options){}
	if cfg.AccessKey != "" {
		opts = append(opts, func(o *s3.Options) {
			o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		})
	}
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return NewWithClient(s3.NewFromConfig(awsCfg, opts...), cfg.Bucket, logger), nil
}

// NewWithClient constructs a CustomizationStore around an existing client.
// Used by tests and by callers that manage their own SDK configuration.
func NewWithClient(client S3Client, bucket string, logger *slog.Logger) *CustomizationStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CustomizationStore{
		client: client,
		bucket: bucket,
		logger: logger,
	}
}

// Key derives the storage key for a recipient's customization record:
// the email with "@" replaced by "_", suffixed ".json".
func Key(email string) string {
	return strings.ReplaceAll(email, "@", "_") + ".json"
}

// Load returns the recipient's customization texts in stored order. On any
// failure (object absent, malformed JSON, transport error) it returns an
// empty slice and never an error; a missing record is the common case, not a
// fault.
func (s *CustomizationStore) Load(ctx context.Context, email string) []string {
	key := Key(email)

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			s.logger.DebugContext(ctx, "no customization record", "key", key)
		} else {
			s.logger.WarnContext(ctx, "customization retrieval failed, defaulting to empty",
				"key", key,
				"error", err.Error(),
			)
		}
		return nil
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		s.logger.WarnContext(ctx, "customization read failed, defaulting to empty",
			"key", key,
			"error", err.Error(),
		)
		return nil
	}

	var record customizationRecord
	if err := json.Unmarshal(body, &record); err != nil {
		s.logger.WarnContext(ctx, "customization record malformed, defaulting to empty",
			"key", key,
			"error", err.Error(),
		)
		return nil
	}

	texts := make([]string, 0, len(record.Replies))
	for _, r := range record.Replies {
		texts = append(texts, r.Text)
	}
	return texts
}
