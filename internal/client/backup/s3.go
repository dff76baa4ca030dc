// Package backup uploads and restores whole-store snapshots to S3-compatible
// object storage (AWS S3, MinIO). Snapshots are plain JSON dumps of the
// record collections, one object per upload, keyed by timestamp.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/mvoronin-dev/pocketledger/internal/client/store"
	"github.com/mvoronin-dev/pocketledger/internal/logging"
)

// Options configures access to the snapshot bucket. Endpoint is optional and
// only needed for non-AWS deployments such as MinIO.
type Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

const keyPrefix = "snapshots/"

// Service manages snapshot objects in one bucket.
type Service struct {
	client *s3.Client
	bucket string
	log    logging.Logger
	now    func() time.Time
}

// NewService builds an S3-backed snapshot service.
func NewService(ctx context.Context, opts Options, log logging.Logger) (*Service, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("backup bucket is not configured")
	}
	if log == nil {
		log = logging.NopLogger{}
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &Service{client: client, bucket: opts.Bucket, log: log, now: time.Now}, nil
}

// snapshotKey builds a lexically sortable object key, so the newest snapshot
// is also the last one in a listed page.
func (s *Service) snapshotKey() string {
	return keyPrefix + s.now().UTC().Format("20060102T150405Z") + ".json"
}

// Upload dumps the store and writes the snapshot object. Returns the key of
// the stored object.
func (s *Service) Upload(ctx context.Context, st *store.Store) (string, error) {
	snap, err := st.ExportAll(ctx)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}

	key := s.snapshotKey()
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("uploading snapshot: %w", err)
	}
	s.log.Info(ctx, "snapshot uploaded", "bucket", s.bucket, "key", key, "bytes", len(body))
	return key, nil
}

// Restore fetches the snapshot stored under key and imports it, replacing the
// local record collections. An empty key restores the latest snapshot.
func (s *Service) Restore(ctx context.Context, st *store.Store, key string) error {
	if key == "" {
		latest, err := s.latestKey(ctx)
		if err != nil {
			return err
		}
		key = latest
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("downloading snapshot %s: %w", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return fmt.Errorf("reading snapshot %s: %w", key, err)
	}
	var snap store.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return fmt.Errorf("decoding snapshot %s: %w", key, err)
	}

	if err := st.ImportAll(ctx, &snap); err != nil {
		return err
	}
	s.log.Info(ctx, "snapshot restored", "bucket", s.bucket, "key", key)
	return nil
}

// List returns the available snapshot keys, newest first.
func (s *Service) List(ctx context.Context) ([]string, error) {
	var keys []string
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.bucket,
			Prefix:            aws.String(keyPrefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("listing snapshots: %w", err)
		}
		for _, obj := range out.Contents {
			keys = append(keys, *obj.Key)
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	return keys, nil
}

func (s *Service) latestKey(ctx context.Context) (string, error) {
	keys, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "", fmt.Errorf("no snapshots found in bucket %s", s.bucket)
	}
	return keys[0], nil
}
