package checkpoint

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/flowmesh/dataflow/internal/element"
)

func TestMemoryBackendSaveLoad(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()

	h, err := b.Save(ctx, "op1", "task1", 5, []byte("snapshot-bytes"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := b.Load(ctx, h)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(data) != "snapshot-bytes" {
		t.Fatalf("Load = %q", data)
	}

	if err := b.Delete(ctx, h); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := b.Load(ctx, h); err == nil {
		t.Fatalf("expected error loading deleted handle")
	}
}

func TestBoltBackendSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.db")
	b, err := NewBoltBackend(path)
	if err != nil {
		t.Fatalf("NewBoltBackend: %v", err)
	}
	ctx := context.Background()

	h, err := b.Save(ctx, "op1", "task1", element.CheckpointId(1), []byte("state"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := b.Load(ctx, h)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(data) != "state" {
		t.Fatalf("Load = %q", data)
	}
}

type fakeS3Client struct {
	objects map[string][]byte
}

func newFakeS3Client() *fakeS3Client { return &fakeS3Client{objects: make(map[string][]byte)} }

func (f *fakeS3Client) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	buf := make([]byte, 0, 1024)
	tmp := make([]byte, 1024)
	for {
		n, err := in.Body.Read(tmp)
		buf = append(buf, tmp[:n]...)
		if err != nil {
			break
		}
	}
	f.objects[*in.Bucket+"/"+*in.Key] = buf
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3Client) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, errors.New("not found")
	}
	return &s3.GetObjectOutput{Body: newReadCloser(data)}, nil
}

func (f *fakeS3Client) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Bucket+"/"+*in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func newReadCloser(data []byte) *fakeReadCloser { return &fakeReadCloser{r: data} }

type fakeReadCloser struct {
	r   []byte
	pos int
}

func (f *fakeReadCloser) Read(p []byte) (int, error) {
	if f.pos >= len(f.r) {
		return 0, io.EOF
	}
	n := copy(p, f.r[f.pos:])
	f.pos += n
	return n, nil
}

func (f *fakeReadCloser) Close() error { return nil }

func TestS3BackendSaveLoadRoundTripsCompressed(t *testing.T) {
	client := newFakeS3Client()
	backend, err := NewS3Backend(client, "my-bucket", "checkpoints")
	if err != nil {
		t.Fatalf("NewS3Backend: %v", err)
	}
	ctx := context.Background()

	payload := []byte("the quick brown fox jumps over the lazy dog, repeated: the quick brown fox jumps over the lazy dog")
	h, err := backend.Save(ctx, "op1", "task1", element.CheckpointId(7), payload)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := backend.Load(ctx, h)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("Load = %q, want %q", got, payload)
	}
}
