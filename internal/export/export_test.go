package export

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/soulbound/internal/config"
	"github.com/roach88/soulbound/internal/credential"
	"github.com/roach88/soulbound/internal/kv/memory"
)

func seededBackend(t *testing.T) *memory.Backend {
	t.Helper()
	ctx := context.Background()
	backend := memory.New()
	svc := credential.New(backend)
	for _, p := range []string{"a", "b", "c"} {
		_, err := svc.Create(ctx, "alice", []byte(p))
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, "bob", []byte("d"))
	require.NoError(t, err)
	return backend
}

func TestFileSinkExport(t *testing.T) {
	ctx := context.Background()
	backend := seededBackend(t)
	dir := filepath.Join(t.TempDir(), "exports")

	res, err := Snapshot(ctx, backend, FileSink{Dir: dir}, "")
	require.NoError(t, err)

	snap, err := backend.Snapshot(ctx)
	require.NoError(t, err)
	want, err := snap.Canonical()
	require.NoError(t, err)
	digest, err := snap.Digest()
	require.NoError(t, err)

	assert.Equal(t, digest, res.Digest)
	assert.Equal(t, filepath.Join(dir, DefaultKey(digest)), res.Location)
	assert.Equal(t, 4, res.Records)
	assert.Equal(t, 2, res.Owners)
	assert.Equal(t, len(want), res.Size)

	got, err := os.ReadFile(res.Location)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should be renamed away")
}

func TestFileSinkOverwrites(t *testing.T) {
	dir := t.TempDir()
	sink := FileSink{Dir: dir}
	require.NoError(t, sink.Put(context.Background(), "k.json", []byte("one")))
	require.NoError(t, sink.Put(context.Background(), "k.json", []byte("two")))

	got, err := os.ReadFile(filepath.Join(dir, "k.json"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))
}

func TestDefaultKey(t *testing.T) {
	assert.Equal(t, "snapshot-0123456789abcdef.json", DefaultKey("0123456789abcdef0123"))
	assert.Equal(t, "snapshot-abc.json", DefaultKey("abc"))
}

type failingSink struct{}

func (failingSink) Put(context.Context, string, []byte) error { return errors.New("disk full") }
func (failingSink) Location(key string) string { return key }

func TestSnapshotSinkError(t *testing.T) {
	_, err := Snapshot(context.Background(), memory.New(), failingSink{}, "x.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export x.json")
	assert.Contains(t, err.Error(), "disk full")
}

// s3RoundTripper accepts PutObject requests and records their bodies.
type s3RoundTripper struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (m *s3RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodPut {
		return &http.Response{StatusCode: http.StatusMethodNotAllowed, Body: io.NopCloser(strings.NewReader("")), Header: http.Header{}}, nil
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.objects[strings.TrimPrefix(req.URL.Path, "/")] = body
	m.types[strings.TrimPrefix(req.URL.Path, "/")] = req.Header.Get("Content-Type")
	m.mu.Unlock()
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("")),
		Header:     http.Header{"Etag": {`"etag123"`}},
	}, nil
}

func newMockS3(t *testing.T) (*S3Sink, *s3RoundTripper) {
	t.Helper()
	rt := &s3RoundTripper{objects: make(map[string][]byte), types: make(map[string]string)}
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	require.NoError(t, err)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return NewS3SinkWithClient(client, "snapshots"), rt
}

func TestS3SinkExport(t *testing.T) {
	ctx := context.Background()
	backend := seededBackend(t)
	sink, rt := newMockS3(t)

	res, err := Snapshot(ctx, backend, sink, "daily/latest.json")
	require.NoError(t, err)
	assert.Equal(t, "s3://snapshots/daily/latest.json", res.Location)

	snap, err := backend.Snapshot(ctx)
	require.NoError(t, err)
	want, err := snap.Canonical()
	require.NoError(t, err)

	rt.mu.Lock()
	defer rt.mu.Unlock()
	assert.Equal(t, want, rt.objects["snapshots/daily/latest.json"])
	assert.Equal(t, "application/json", rt.types["snapshots/daily/latest.json"])
}

func TestNewS3SinkRequiresBucket(t *testing.T) {
	_, err := NewS3Sink(context.Background(), config.S3Config{Region: "us-east-1"})
	assert.ErrorContains(t, err, "s3 bucket required")
}
