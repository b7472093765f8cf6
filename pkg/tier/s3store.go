package tier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store is a Store backed by objects in an S3 bucket, for the cold/HDD
// tier of a deployment that wants durability without a local disk. It
// follows the getObject/setObject split used by the AWS-backed storage
// layers in the wider ecosystem: one object per write, keyed by prefix and
// a monotonically increasing sequence number, since S3 has no notion of an
// appendable byte stream.
//
// Read needs to find an object from the offset Write returned, so S3Store
// keeps a small in-memory index from offset to object key. That index is
// not persisted: an S3Store is meant to back the HDD tier underneath a
// durable WAL and manifest, not to be the sole record of what's stored, so
// losing the index on restart is the same tradeoff the RAM tier already
// makes.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string

	mu       sync.Mutex
	index    map[int64]string
	total    int64
	capacity int64
}

// S3StoreConfig configures an S3Store.
type S3StoreConfig struct {
	Bucket   string
	Prefix   string
	Capacity int64 // 0 means unbounded
}

// NewS3Store loads the default AWS config (environment, shared config file,
// or instance role, in the usual SDK order) and constructs an S3Store.
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("tier: load aws config: %w", err)
	}
	return NewS3StoreFromClient(s3.NewFromConfig(awsCfg), cfg), nil
}

// NewS3StoreFromClient builds an S3Store around an already-configured
// client, for callers that need custom endpoints or credentials (e.g.
// pointing at a local S3-compatible test server).
func NewS3StoreFromClient(client *s3.Client, cfg S3StoreConfig) *S3Store {
	return &S3Store{
		client:   client,
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		index:    make(map[int64]string),
		capacity: cfg.Capacity,
	}
}

func (s *S3Store) objectKey(offset int64) string {
	if s.prefix == "" {
		return fmt.Sprintf("%020d", offset)
	}
	return fmt.Sprintf("%s/%020d", s.prefix, offset)
}

// Write uploads data as a new object and returns the cumulative byte
// offset preceding it, mirroring MemStore's offset semantics so callers
// that index into a tier don't need to know which Store backs it.
func (s *S3Store) Write(data []byte) (int64, error) {
	s.mu.Lock()
	offset := s.total
	key := s.objectKey(offset)
	s.mu.Unlock()

	_, err := s.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return 0, fmt.Errorf("tier: put object %q: %w", key, err)
	}

	s.mu.Lock()
	s.index[offset] = key
	s.total += int64(len(data))
	s.mu.Unlock()
	atomic.AddInt64(&s3StoreWrites, 1)
	return offset, nil
}

// Read fetches the whole object written at offset. When size is positive
// and the object's length differs from it, Read returns an error.
func (s *S3Store) Read(offset int64, size int) ([]byte, error) {
	s.mu.Lock()
	key, ok := s.index[offset]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("tier: no object recorded at offset %d", offset)
	}

	out, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("tier: get object %q: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("tier: read object %q: %w", key, err)
	}
	if size > 0 && len(data) != size {
		return nil, fmt.Errorf("tier: object %q has %d bytes, want %d", key, len(data), size)
	}
	return data, nil
}

func (s *S3Store) HasSpace(size int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capacity == 0 {
		return true
	}
	return s.total+int64(size) <= s.capacity
}

func (s *S3Store) Bytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// s3StoreWrites counts successful writes across every S3Store in the
// process. It is unexported and nothing reads it.
var s3StoreWrites int64
