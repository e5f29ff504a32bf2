package checkpoint

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"
	bolt "go.etcd.io/bbolt"

	"github.com/flowmesh/dataflow/internal/element"
)

// Handle identifies one persisted snapshot blob so it can be retrieved
// later for restore, or by the coordinator to prune retained snapshots.
type Handle string

// Backend persists checkpoint snapshot blobs. Selected by the
// operator_state_backend / keyed_state_backend configuration keys.
type Backend interface {
	Save(ctx context.Context, operatorID, taskID string, id element.CheckpointId, data []byte) (Handle, error)
	Load(ctx context.Context, handle Handle) ([]byte, error)
	Delete(ctx context.Context, handle Handle) error
}

// --- Memory backend (config value "Memory", the default) ---

type memoryBackend struct {
	mu    sync.RWMutex
	blobs map[Handle][]byte
}

// NewMemoryBackend returns a Backend that keeps snapshots in process
// memory; useful for local/standalone runs and tests, but does not survive
// a task restart.
func NewMemoryBackend() Backend {
	return &memoryBackend{blobs: make(map[Handle][]byte)}
}

func (b *memoryBackend) Save(_ context.Context, operatorID, taskID string, id element.CheckpointId, data []byte) (Handle, error) {
	h := Handle(fmt.Sprintf("mem://%s/%s/%d", operatorID, taskID, id))
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	b.blobs[h] = cp
	return h, nil
}

func (b *memoryBackend) Load(_ context.Context, handle Handle) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.blobs[handle]
	if !ok {
		return nil, fmt.Errorf("checkpoint: memory backend: no such handle %q", handle)
	}
	return data, nil
}

func (b *memoryBackend) Delete(_ context.Context, handle Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, handle)
	return nil
}

// --- Bolt backend (a named external backend) ---

var bucketSnapshots = []byte("snapshots")

type boltBackend struct {
	db *bolt.DB
}

// NewBoltBackend opens (creating if necessary) a bbolt database at path to
// store checkpoint snapshots, in the same bucket-per-concern style the
// coordinator's metadata store uses.
func NewBoltBackend(path string) (Backend, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open bolt backend: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSnapshots)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("checkpoint: init bolt backend: %w", err)
	}
	return &boltBackend{db: db}, nil
}

func (b *boltBackend) Save(_ context.Context, operatorID, taskID string, id element.CheckpointId, data []byte) (Handle, error) {
	h := Handle(fmt.Sprintf("bolt://%s/%s/%d", operatorID, taskID, id))
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Put([]byte(h), data)
	})
	if err != nil {
		return "", fmt.Errorf("checkpoint: bolt backend save: %w", err)
	}
	return h, nil
}

func (b *boltBackend) Load(_ context.Context, handle Handle) ([]byte, error) {
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSnapshots).Get([]byte(handle))
		if v == nil {
			return fmt.Errorf("no such handle %q", handle)
		}
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("checkpoint: bolt backend load: %w", err)
	}
	return data, nil
}

func (b *boltBackend) Delete(_ context.Context, handle Handle) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Delete([]byte(handle))
	})
}

// --- S3 backend (a named external backend) ---

// s3Client is the subset of *s3.Client this backend needs, so tests can
// supply a fake.
type s3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type s3Backend struct {
	client s3Client
	bucket string
	prefix string
	zenc   *zstd.Encoder
	zdec   *zstd.Decoder
}

// NewS3Backend stores checkpoint snapshots as zstd-compressed objects in
// bucket, under prefix. Large keyed-state snapshots compress well (they're
// typically many repeated small accumulator records), so compression is
// applied unconditionally rather than above a size threshold.
func NewS3Backend(client s3Client, bucket, prefix string) (Backend, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: s3 backend: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: s3 backend: zstd decoder: %w", err)
	}
	return &s3Backend{client: client, bucket: bucket, prefix: prefix, zenc: enc, zdec: dec}, nil
}

func (b *s3Backend) key(operatorID, taskID string, id element.CheckpointId) string {
	return fmt.Sprintf("%s/%s/%s/%d.zst", b.prefix, operatorID, taskID, id)
}

func (b *s3Backend) Save(ctx context.Context, operatorID, taskID string, id element.CheckpointId, data []byte) (Handle, error) {
	key := b.key(operatorID, taskID, id)
	compressed := b.zenc.EncodeAll(data, nil)
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(compressed),
	})
	if err != nil {
		return "", fmt.Errorf("checkpoint: s3 backend save: %w", err)
	}
	return Handle(fmt.Sprintf("s3://%s/%s", b.bucket, key)), nil
}

func (b *s3Backend) Load(ctx context.Context, handle Handle) ([]byte, error) {
	bucket, key, err := parseS3Handle(handle)
	if err != nil {
		return nil, err
	}
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("checkpoint: s3 backend load: %w", err)
	}
	defer out.Body.Close()
	compressed, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: s3 backend load: %w", err)
	}
	data, err := b.zdec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: s3 backend decompress: %w", err)
	}
	return data, nil
}

func (b *s3Backend) Delete(ctx context.Context, handle Handle) error {
	bucket, key, err := parseS3Handle(handle)
	if err != nil {
		return err
	}
	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return fmt.Errorf("checkpoint: s3 backend delete: %w", err)
	}
	return nil
}

func parseS3Handle(handle Handle) (bucket, key string, err error) {
	const prefix = "s3://"
	s := string(handle)
	if len(s) <= len(prefix) || s[:len(prefix)] != prefix {
		return "", "", fmt.Errorf("checkpoint: malformed s3 handle %q", handle)
	}
	rest := s[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return rest[:i], rest[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("checkpoint: malformed s3 handle %q", handle)
}
