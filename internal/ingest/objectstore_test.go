package ingest

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockS3Client struct {
	objects map[string][]byte
	pages   [][]s3types.Object

	lastPrefix string
	listCalls  int
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := m.objects[aws.ToString(input.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (m *mockS3Client) ListObjectsV2(_ context.Context, input *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.lastPrefix = aws.ToString(input.Prefix)
	page := m.pages[m.listCalls]
	m.listCalls++

	out := &s3.ListObjectsV2Output{Contents: page}
	if m.listCalls < len(m.pages) {
		out.NextContinuationToken = aws.String("next")
	}
	return out, nil
}

func gzipped(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestObjectStoreOpen(t *testing.T) {
	mock := &mockS3Client{
		objects: map[string][]byte{
			"realtime-gzipped/2023-04-01/123.ndjson.gz": gzipped(t, "line one\nline two\n"),
		},
	}
	store, err := NewObjectStore("openaq-fetches", "", WithS3Client(mock))
	require.NoError(t, err)

	rc, err := store.Open(context.Background(), "realtime-gzipped/2023-04-01/123.ndjson.gz")
	require.NoError(t, err)
	defer rc.Close()

	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", string(content))
}

func TestObjectStoreOpenMissingKey(t *testing.T) {
	store, err := NewObjectStore("openaq-fetches", "", WithS3Client(&mockS3Client{}))
	require.NoError(t, err)

	_, err = store.Open(context.Background(), "nope")
	assert.Error(t, err)
}

func TestObjectStoreOpenNotGzip(t *testing.T) {
	mock := &mockS3Client{objects: map[string][]byte{"plain.txt": []byte("not gzip")}}
	store, err := NewObjectStore("openaq-fetches", "", WithS3Client(mock))
	require.NoError(t, err)

	_, err = store.Open(context.Background(), "plain.txt")
	assert.Error(t, err)
}

func TestObjectStoreListPaginates(t *testing.T) {
	modified := time.Date(2023, 4, 1, 6, 0, 0, 0, time.UTC)
	mock := &mockS3Client{
		pages: [][]s3types.Object{
			{
				{Key: aws.String("realtime-gzipped/2023-04-01/1.ndjson.gz"), LastModified: &modified, Size: aws.Int64(100)},
				{Key: aws.String("realtime-gzipped/2023-04-01/2.ndjson.gz"), LastModified: &modified},
			},
			{
				{Key: aws.String("realtime-gzipped/2023-04-01/3.ndjson.gz")},
			},
		},
	}
	store, err := NewObjectStore("openaq-fetches", "us-east-1", WithS3Client(mock))
	require.NoError(t, err)

	objects, err := store.List(context.Background(), "/realtime-gzipped/2023-04-01")
	require.NoError(t, err)

	require.Len(t, objects, 3)
	assert.Equal(t, 2, mock.listCalls)
	assert.Equal(t, "realtime-gzipped/2023-04-01", mock.lastPrefix)
	assert.Equal(t, "realtime-gzipped/2023-04-01/1.ndjson.gz", objects[0].Key)
	assert.Equal(t, int64(100), objects[0].Size)
	assert.True(t, objects[0].LastModified.Equal(modified))
}

func TestObjectStoreRequiresBucket(t *testing.T) {
	_, err := NewObjectStore("", "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "bucket name required")
}

func newTestLineSource(t *testing.T, r io.Reader) *lineSource {
	t.Helper()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &lineSource{scanner: scanner, logger: zap.NewNop().Sugar(), key: "test"}
}

func TestLineSourceSkipsBadLines(t *testing.T) {
	content := `{"parameter": "pm25", "value": 1, "date": {"utc": "2023-04-01T12:00:00Z"}}
not json at all
{"parameter": "pm10", "value": 2, "date": {"utc": "2023-04-01T13:00:00Z"}}
`
	mock := &mockS3Client{objects: map[string][]byte{"day.gz": gzipped(t, content)}}
	store, err := NewObjectStore("openaq-fetches", "", WithS3Client(mock))
	require.NoError(t, err)

	rc, err := store.Open(context.Background(), "day.gz")
	require.NoError(t, err)
	defer rc.Close()

	src := newTestLineSource(t, rc)
	var rows int
	for src.Next() {
		values, err := src.Values()
		require.NoError(t, err)
		require.Len(t, values, len(stagingColumns))
		rows++
	}
	require.NoError(t, src.Err())
	assert.Equal(t, 2, rows)
	assert.Equal(t, int64(2), src.copied)
	assert.Equal(t, int64(1), src.skipped)
}
