// Package cache implements the optional local-cache Chunk Source (the
// cache provider): a two-tier store with redis as the hot tier and S3 as
// a durable, append-only cold tier for previously fetched chunks, keyed
// by (file id, chunk index). Eviction is intentionally not implemented:
// the cold tier is append-only and size-bounding is left to an external
// operator.
package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/arifainchtein/librespot-go/internal/chunksource"
	"github.com/arifainchtein/librespot-go/internal/metadata"
	"github.com/arifainchtein/librespot-go/internal/streamerr"
)

// S3API is the subset of *s3.Client the cold tier needs, so tests can
// substitute a fake without a real bucket.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// RedisAPI is the subset of *redis.Client the hot tier needs.
type RedisAPI interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

// Handle is the concrete CacheHandle collaborator: redis hot tier, S3
// cold tier, both keyed by fmt.Sprintf("%s/%d", fileID, index).
type Handle struct {
	redis  RedisAPI
	s3     S3API
	bucket string
	ttl    time.Duration
	log    *logrus.Entry
}

// Option configures a Handle.
type Option func(*Handle)

// WithTTL sets the redis hot-tier entry TTL (default 1 hour).
func WithTTL(ttl time.Duration) Option {
	return func(h *Handle) { h.ttl = ttl }
}

// WithLogger attaches a logger used for cache I/O warnings.
func WithLogger(log *logrus.Entry) Option {
	return func(h *Handle) { h.log = log }
}

// NewHandle builds a Handle. s3Client may be nil to disable the cold tier
// entirely (redis-only deployments).
func NewHandle(redisClient RedisAPI, s3Client S3API, bucket string, opts ...Option) *Handle {
	h := &Handle{
		redis:  redisClient,
		s3:     s3Client,
		bucket: bucket,
		ttl:    time.Hour,
		log:    logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewS3Client builds the cold-tier S3 client: static credentials plus an
// optional non-AWS endpoint override for S3-compatible stores such as
// MinIO in dev. accessKey/secretKey may be empty to fall back to the
// default AWS credential chain (env vars, instance profile, shared
// config file).
func NewS3Client(ctx context.Context, region, endpoint, accessKey, secretKey string) (*s3.Client, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	optFns = append(optFns, awsconfig.WithRegion(region))
	if accessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("cache: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

// NewRedisClient builds the hot-tier redis client from plain connection
// parameters, so callers never need to import go-redis/v9 directly.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func cacheKey(fileID metadata.FileID, index int) string {
	return fmt.Sprintf("%s/%d", fileID, index)
}

// HasCached reports whether a chunk exists in either tier. Redis is
// checked first since it is the common case.
func (h *Handle) HasCached(fileID metadata.FileID, index int) bool {
	ctx := context.Background()
	key := cacheKey(fileID, index)

	if h.redis != nil {
		n, err := h.redis.Exists(ctx, key).Result()
		if err == nil && n > 0 {
			return true
		}
	}
	if h.s3 != nil {
		_, err := h.s3.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(h.bucket),
			Key:    aws.String(key),
		})
		if err == nil {
			return true
		}
	}
	return false
}

// ReadCached reads a chunk from redis, falling back to S3 and repopulating
// redis on a cold-tier hit, then delivers it to sink with cached=true.
func (h *Handle) ReadCached(ctx context.Context, fileID metadata.FileID, index int, sink chunksource.Sink) error {
	key := cacheKey(fileID, index)

	if h.redis != nil {
		data, err := h.redis.Get(ctx, key).Bytes()
		if err == nil {
			return sink.WriteChunk(index, data, true)
		}
		if !errors.Is(err, redis.Nil) {
			h.log.WithError(err).WithField("key", key).Warn("cache: redis read failed, trying cold tier")
		}
	}

	if h.s3 == nil {
		return fmt.Errorf("cache: %s: %w", key, streamerr.ErrCacheIOError)
	}

	out, err := h.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("cache: s3 get %s: %w", key, streamerr.ErrCacheIOError)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return fmt.Errorf("cache: s3 read body %s: %w", key, streamerr.ErrCacheIOError)
	}

	if h.redis != nil {
		if err := h.redis.Set(ctx, key, data, h.ttl).Err(); err != nil {
			h.log.WithError(err).WithField("key", key).Warn("cache: redis repopulate failed")
		}
	}

	return sink.WriteChunk(index, data, true)
}

// WriteBack stores a channel-delivered chunk in both tiers, best-effort.
// The cold tier is append-only: an object that already exists is simply
// overwritten with identical bytes (chunk content is immutable for a
// given file id once published), never deleted or rotated by this
// package.
func (h *Handle) WriteBack(ctx context.Context, fileID metadata.FileID, index int, ciphertext []byte) error {
	key := cacheKey(fileID, index)
	var firstErr error

	if h.redis != nil {
		if err := h.redis.Set(ctx, key, ciphertext, h.ttl).Err(); err != nil {
			firstErr = fmt.Errorf("cache: redis set %s: %w", key, err)
		}
	}

	if h.s3 != nil {
		_, err := h.s3.PutObject(ctx, &s3.PutObjectInput{
			Bucket:       aws.String(h.bucket),
			Key:          aws.String(key),
			Body:         bytes.NewReader(ciphertext),
			StorageClass: types.StorageClassStandard,
		})
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("cache: s3 put %s: %w", key, err)
		}
	}

	return firstErr
}
