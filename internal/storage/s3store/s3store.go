// Package s3store stores one object per sample in an S3-compatible bucket.
// Keys sort by timestamp so a range query is a single prefix listing.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/cpp11nullptr/vikki/internal/models"
	"github.com/cpp11nullptr/vikki/internal/storage"
)

// Name is the capability name of this backend.
const Name = "s3"

const (
	defaultPrefix = "vikki"
	defaultRegion = "us-east-1"
	entityMarker  = ".entity"
)

// Storage is the S3 backend. Params: bucket (required), prefix, region,
// endpoint, access_key, secret_key, session_token, path_style.
type Storage struct {
	newClient func(params map[string]string) (s3iface.S3API, error)

	mu     sync.RWMutex
	client s3iface.S3API
	bucket string
	prefix string
}

// New returns a closed backend that connects through an AWS session.
func New() *Storage {
	return &Storage{newClient: sessionClient}
}

func sessionClient(params map[string]string) (s3iface.S3API, error) {
	cfg := &aws.Config{
		Region: aws.String(storage.ParamDefault(params, "region", defaultRegion)),
	}
	if endpoint := params["endpoint"]; endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
	}
	pathStyle, err := storage.ParamBool(params, "path_style", params["endpoint"] != "")
	if err != nil {
		return nil, err
	}
	cfg.S3ForcePathStyle = aws.Bool(pathStyle)
	if ak := params["access_key"]; ak != "" {
		cfg.Credentials = credentials.NewStaticCredentials(ak, params["secret_key"], params["session_token"])
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, err
	}
	return s3.New(sess), nil
}

func (s *Storage) Name() string { return Name }

func (s *Storage) Open(ctx context.Context, params map[string]string) error {
	bucket, err := storage.Param(params, "bucket")
	if err != nil {
		return storage.Wrap("open", "", err)
	}
	client, err := s.newClient(params)
	if err != nil {
		return storage.Wrap("open", "", err)
	}
	if _, err := client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return storage.Wrap("open", "", fmt.Errorf("bucket %s: %w", bucket, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = client
	s.bucket = bucket
	s.prefix = strings.Trim(storage.ParamDefault(params, "prefix", defaultPrefix), "/")
	return nil
}

func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = nil
	return nil
}

type target struct {
	client s3iface.S3API
	bucket string
	dir    string
}

func (s *Storage) target(sensor string) (target, error) {
	if err := storage.ValidateEntity(sensor); err != nil {
		return target{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return target{}, storage.ErrNotOpen
	}
	dir := sensor + "/"
	if s.prefix != "" {
		dir = s.prefix + "/" + dir
	}
	return target{client: s.client, bucket: s.bucket, dir: dir}, nil
}

// sampleKey maps ts onto 20 decimal digits that sort like the signed value.
func sampleKey(ts int64) string {
	return fmt.Sprintf("%020d", uint64(ts)^(1<<63))
}

func parseSampleKey(name string) (int64, bool) {
	if len(name) != 20 {
		return 0, false
	}
	u, err := strconv.ParseUint(name, 10, 64)
	if err != nil {
		return 0, false
	}
	return int64(u ^ (1 << 63)), true
}

func isNotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	var awsErr awserr.Error
	if errors.As(err, &awsErr) {
		switch awsErr.Code() {
		case "NotFound", s3.ErrCodeNoSuchKey:
			return true
		}
	}
	return false
}

func (s *Storage) PrepareEntity(ctx context.Context, sensor string) error {
	t, err := s.target(sensor)
	if err != nil {
		return storage.Wrap("prepare", sensor, err)
	}
	marker := t.dir + entityMarker

	_, err = t.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(marker),
	})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return storage.Wrap("prepare", sensor, err)
	}
	_, err = t.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(marker),
		Body:   bytes.NewReader(nil),
	})
	return storage.Wrap("prepare", sensor, err)
}

func (s *Storage) Put(ctx context.Context, sensor string, ts int64, payload []byte) error {
	t, err := s.target(sensor)
	if err != nil {
		return storage.Wrap("put", sensor, err)
	}
	_, err = t.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(t.bucket),
		Key:         aws.String(t.dir + sampleKey(ts)),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/octet-stream"),
	})
	return storage.Wrap("put", sensor, err)
}

func (s *Storage) Get(ctx context.Context, sensor string, from, to int64) ([]models.Record, error) {
	t, err := s.target(sensor)
	if err != nil {
		return nil, storage.Wrap("get", sensor, err)
	}
	if from > to {
		return nil, nil
	}

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(t.bucket),
		Prefix: aws.String(t.dir),
	}
	if from > math.MinInt64 {
		input.StartAfter = aws.String(t.dir + sampleKey(from-1))
	}

	var keys []string
	last := sampleKey(to)
	err = t.client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.StringValue(obj.Key), t.dir)
			if _, ok := parseSampleKey(name); !ok {
				continue
			}
			if name > last {
				return false
			}
			keys = append(keys, name)
		}
		return true
	})
	if err != nil {
		return nil, storage.Wrap("get", sensor, err)
	}

	records := make([]models.Record, 0, len(keys))
	for _, name := range keys {
		ts, _ := parseSampleKey(name)
		out, err := t.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
			Bucket: aws.String(t.bucket),
			Key:    aws.String(t.dir + name),
		})
		if isNotFound(err) {
			continue
		}
		if err != nil {
			return nil, storage.Wrap("get", sensor, err)
		}
		payload, err := io.ReadAll(out.Body)
		out.Body.Close()
		if err != nil {
			return nil, storage.Wrap("get", sensor, err)
		}
		records = append(records, models.Record{Timestamp: ts, Payload: payload})
	}
	return records, nil
}
