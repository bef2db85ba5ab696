// Package persistence implements scheduler.PersistencePort against durable
// backends. S3Store is the production backend; memory.go's MemoryStore is the
// in-memory fake used by the admin façade's tests and local development.
package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"go.uber.org/zap"

	"sms-retry-scheduler/internal/scheduler"
)

// S3Config describes how to reach the bucket backing a scheduler's state.
type S3Config struct {
	Bucket         string
	Region         string
	StatePrefix    string
	SuccessPrefix  string
	FailedPrefix   string
	AccessKeyID    string
	SecretAccessKey string
	// EndpointURL overrides the default AWS endpoint, for pointing at
	// LocalStack or another S3-compatible store during development.
	EndpointURL string
}

// S3Store is a scheduler.PersistencePort backed by an S3-compatible object
// store. Pending state lives one object per message under StatePrefix;
// success and failure are append-only logs keyed by an ISO-8601 timestamp
// so a prefix listing naturally sorts oldest-to-newest.
type S3Store struct {
	client *s3.S3
	bucket string
	state  string
	ok     string
	failed string
	logger *zap.Logger
}

// NewS3Store builds a client from cfg, ensuring the bucket exists (mainly
// useful against LocalStack, where buckets are not pre-provisioned).
func NewS3Store(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, ""))
	}
	if cfg.EndpointURL != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.EndpointURL).WithS3ForcePathStyle(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}

	store := &S3Store{
		client: s3.New(sess),
		bucket: cfg.Bucket,
		state:  cfg.StatePrefix,
		ok:     cfg.SuccessPrefix,
		failed: cfg.FailedPrefix,
		logger: logger,
	}

	if err := store.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		s.logger.Info("s3 bucket exists", zap.String("bucket", s.bucket))
		return nil
	}

	aerr, ok := err.(awserr.Error)
	if !ok {
		return fmt.Errorf("head bucket %s: %w", s.bucket, err)
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchBucket, "NotFound", "404":
		if _, cerr := s.client.CreateBucketWithContext(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}); cerr != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, cerr)
		}
		s.logger.Info("created s3 bucket", zap.String("bucket", s.bucket))
		return nil
	default:
		return fmt.Errorf("head bucket %s: %w", s.bucket, err)
	}
}

func (s *S3Store) stateKey(messageID string) string {
	return fmt.Sprintf("%s/%s.json", s.state, messageID)
}

func (s *S3Store) SavePending(ctx context.Context, state scheduler.MessageState) error {
	body, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.stateKey(state.MessageID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put pending state %s: %w", state.MessageID, err)
	}
	return nil
}

func (s *S3Store) LoadPending(ctx context.Context, messageID string) (*scheduler.MessageState, bool, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.stateKey(messageID)),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get pending state %s: %w", messageID, err)
	}
	defer out.Body.Close()

	var state scheduler.MessageState
	if err := json.NewDecoder(out.Body).Decode(&state); err != nil {
		return nil, false, fmt.Errorf("decode pending state %s: %w", messageID, err)
	}
	return &state, true, nil
}

func (s *S3Store) LoadAllPending(ctx context.Context) ([]scheduler.MessageState, error) {
	var states []scheduler.MessageState

	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.state),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				s.logger.Error("failed to load pending object", zap.String("key", aws.StringValue(obj.Key)), zap.Error(err))
				continue
			}
			var state scheduler.MessageState
			decodeErr := json.NewDecoder(out.Body).Decode(&state)
			out.Body.Close()
			if decodeErr != nil {
				s.logger.Error("failed to decode pending object", zap.String("key", aws.StringValue(obj.Key)), zap.Error(decodeErr))
				continue
			}
			if state.Status == scheduler.StatusPending {
				states = append(states, state)
			}
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("list pending objects: %w", err)
	}
	return states, nil
}

func (s *S3Store) DeletePending(ctx context.Context, messageID string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.stateKey(messageID)),
	})
	if err != nil {
		return fmt.Errorf("delete pending state %s: %w", messageID, err)
	}
	return nil
}

func (s *S3Store) WriteSuccess(ctx context.Context, state scheduler.MessageState) error {
	if err := s.writeLog(ctx, s.ok, state); err != nil {
		return err
	}
	if err := s.DeletePending(ctx, state.MessageID); err != nil {
		s.logger.Warn("failed to delete pending state after success", zap.String("message_id", state.MessageID), zap.Error(err))
	}
	return nil
}

func (s *S3Store) WriteFailed(ctx context.Context, state scheduler.MessageState) error {
	if err := s.writeLog(ctx, s.failed, state); err != nil {
		return err
	}
	if err := s.DeletePending(ctx, state.MessageID); err != nil {
		s.logger.Warn("failed to delete pending state after failure", zap.String("message_id", state.MessageID), zap.Error(err))
	}
	return nil
}

func (s *S3Store) writeLog(ctx context.Context, prefix string, state scheduler.MessageState) error {
	body, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	key := fmt.Sprintf("%s/%s_%s.json", prefix, time.Now().UTC().Format("2006-01-02T15:04:05.000000"), state.MessageID)
	_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put log entry %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) RecentSuccess(ctx context.Context, limit int) ([]scheduler.MessageState, error) {
	return s.recentFromPrefix(ctx, s.ok, limit)
}

func (s *S3Store) RecentFailed(ctx context.Context, limit int) ([]scheduler.MessageState, error) {
	return s.recentFromPrefix(ctx, s.failed, limit)
}

func (s *S3Store) recentFromPrefix(ctx context.Context, prefix string, limit int) ([]scheduler.MessageState, error) {
	var contents []*s3.Object
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		contents = append(contents, page.Contents...)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("list objects under %s: %w", prefix, err)
	}

	sort.Slice(contents, func(i, j int) bool {
		return contents[i].LastModified.After(*contents[j].LastModified)
	})
	if len(contents) > limit {
		contents = contents[:limit]
	}

	results := make([]scheduler.MessageState, 0, len(contents))
	for _, obj := range contents {
		res, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: obj.Key})
		if err != nil {
			s.logger.Error("failed to load recent object", zap.String("key", aws.StringValue(obj.Key)), zap.Error(err))
			continue
		}
		var state scheduler.MessageState
		decodeErr := json.NewDecoder(res.Body).Decode(&state)
		res.Body.Close()
		if decodeErr != nil {
			s.logger.Error("failed to decode recent object", zap.String("key", aws.StringValue(obj.Key)), zap.Error(decodeErr))
			continue
		}
		results = append(results, state)
	}
	return results, nil
}
