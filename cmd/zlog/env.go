package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/zlog"
	"github.com/hupe1980/zlog/backend"
	"github.com/hupe1980/zlog/backend/bolt"
	"github.com/hupe1980/zlog/backend/dynamodb"
	"github.com/hupe1980/zlog/blobstore"
	"github.com/hupe1980/zlog/blobstore/minio"
	"github.com/hupe1980/zlog/blobstore/s3"
	"github.com/hupe1980/zlog/internal/cache"
	"github.com/hupe1980/zlog/internal/compress"
	"github.com/hupe1980/zlog/projection"
	"github.com/hupe1980/zlog/sequencer"
)

// projectionCacheSize bounds the cache of immutable projection blobs.
const projectionCacheSize = 1 << 20

// env holds the services a command runs against.
type env struct {
	cfg         Config
	logger      *zlog.Logger
	backend     backend.Backend
	projections blobstore.ConditionalStore
	budget      *zlog.CacheBudget
}

func openEnv(ctx context.Context, cfg Config) (*env, error) {
	lvl, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	logger := zlog.NewTextLogger(lvl)
	if cfg.LogFormat == "json" {
		logger = zlog.NewJSONLogger(lvl)
	}

	be, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	ps, err := openProjections(ctx, cfg)
	if err != nil {
		_ = be.Close()
		return nil, err
	}

	e := &env{cfg: cfg, logger: logger, backend: be, projections: ps}
	if cfg.CacheMemoryLimit > 0 {
		e.budget = zlog.NewCacheBudget(cfg.CacheMemoryLimit)
	}
	return e, nil
}

func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.Endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return awsCfg, nil
}

func openBackend(ctx context.Context, cfg Config) (backend.Backend, error) {
	ct, err := compress.ParseType(cfg.Compression)
	if err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case "memory":
		return backend.NewMemoryBackend(), nil
	case "bolt":
		b, err := bolt.Open(cfg.Path, bolt.WithCompression(ct))
		if err != nil {
			return nil, err
		}
		return b, nil
	case "dynamodb":
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return dynamodb.NewFromConfig(awsCfg, cfg.Table, dynamodb.WithCompression(ct)), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// splitBucket splits "bucket/prefix" into its parts.
func splitBucket(rest string) (bucket, prefix string, err error) {
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", errors.New("projection location is missing a bucket")
	}
	return bucket, prefix, nil
}

// openProjections opens the projection store named by cfg.Projections.
// Immutable projection blobs are cached; CURRENT always goes to the store.
func openProjections(ctx context.Context, cfg Config) (blobstore.ConditionalStore, error) {
	inner, err := openBlobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c := cache.NewLRU(projectionCacheSize, nil)
	return blobstore.NewCachingStore(inner, c, projection.IsProjectionBlob), nil
}

func openBlobStore(ctx context.Context, cfg Config) (blobstore.ConditionalStore, error) {
	loc := cfg.Projections

	switch {
	case loc == "mem://":
		return blobstore.NewMemoryStore(), nil
	case strings.HasPrefix(loc, "s3://"):
		bucket, prefix, err := splitBucket(strings.TrimPrefix(loc, "s3://"))
		if err != nil {
			return nil, err
		}
		opts := []s3.Option{s3.WithPrefix(prefix)}
		if cfg.Region != "" {
			opts = append(opts, s3.WithRegion(cfg.Region))
		}
		if cfg.Endpoint != "" {
			opts = append(opts, s3.WithEndpoint(cfg.Endpoint))
		}
		store, err := s3.New(ctx, bucket, opts...)
		if err != nil {
			return nil, err
		}
		if cfg.CommitTable == "" {
			return store, nil
		}
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s3.NewDDBCommitStore(store, awsdynamodb.NewFromConfig(awsCfg), cfg.CommitTable, loc), nil
	case strings.HasPrefix(loc, "minio://"):
		bucket, prefix, err := splitBucket(strings.TrimPrefix(loc, "minio://"))
		if err != nil {
			return nil, err
		}
		if cfg.Endpoint == "" {
			return nil, errors.New("minio projections need an endpoint")
		}
		host := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
		client, err := miniogo.New(host, &miniogo.Options{
			Creds:  credentials.NewEnvMinio(),
			Secure: !strings.HasPrefix(cfg.Endpoint, "http://"),
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		return minio.NewStore(client, bucket, prefix), nil
	default:
		store, err := blobstore.NewLocalStore(loc)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

func (e *env) options(extra ...zlog.Option) []zlog.Option {
	opts := []zlog.Option{
		zlog.WithLogger(e.logger),
		zlog.WithCacheSize(e.cfg.CacheSize),
	}
	if e.budget != nil {
		opts = append(opts, zlog.WithCacheBudget(e.budget))
	}
	return append(opts, extra...)
}

func (e *env) cluster(seq sequencer.Client) zlog.Cluster {
	return zlog.Cluster{Backend: e.backend, Projections: e.projections, Sequencer: seq}
}

// createLog creates a log with a fresh sequencer.
func (e *env) createLog(ctx context.Context, name string, width uint32, opts ...zlog.Option) (*zlog.Log, error) {
	return zlog.Create(ctx, e.cluster(sequencer.New()), name, width, e.options(opts...)...)
}

// openLog opens an existing log with a sequencer recovered from the
// backend. Stream backpointers written by earlier processes are not
// recovered.
func (e *env) openLog(ctx context.Context, name string, opts ...zlog.Option) (*zlog.Log, error) {
	p, err := projection.NewStore(e.projections, name).Load(ctx)
	if err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", zlog.ErrNotFound, name)
		}
		return nil, err
	}

	seq := sequencer.New(sequencer.WithEpoch(p.Epoch))
	l, err := zlog.Open(ctx, e.cluster(seq), name, e.options(opts...)...)
	if err != nil {
		return nil, err
	}
	if err := seq.Recover(ctx, e.backend, l.Objects()); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("recover sequencer: %w", err)
	}
	return l, nil
}

func (e *env) Close() error {
	return e.cluster(nil).Close()
}
