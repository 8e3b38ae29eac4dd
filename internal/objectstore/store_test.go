package objectstore_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/objectstore"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

type mockS3 struct {
	ListObjectsV2Func func(context.Context, *s3.ListObjectsV2Input, ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObjectFunc     func(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObjectFunc     func(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

func (m *mockS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	return m.ListObjectsV2Func(ctx, in, opts...)
}

func (m *mockS3) GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return m.GetObjectFunc(ctx, in, opts...)
}

func (m *mockS3) PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return m.PutObjectFunc(ctx, in, opts...)
}

func newStore(t *testing.T, client objectstore.S3API) *objectstore.Store {
	t.Helper()
	store, err := objectstore.New(objectstore.Config{
		Logger:          logger,
		Client:          client,
		Bucket:          "meters",
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
	})
	require.NoError(t, err)
	return store
}

func TestStore_Mirror(t *testing.T) {
	t.Parallel()

	objects := map[string]string{
		"raw/J_B_82_10_27/X01_01_202510BTUREADINGS11MIN.txt":    "01.10.2025 00:00:00 5\n",
		"raw/J_B_82_10_27/X01_01_202510ACCBTUReadingS11MIN.txt": "01.10.2025 00:00:00 1000\n",
		"raw/J_B_83_01_01/X01_01_202510BTUREADINGS11MIN.txt":    "01.10.2025 00:00:00 2\n",
	}
	pages := [][]string{
		{"raw/", "raw/J_B_82_10_27/X01_01_202510BTUREADINGS11MIN.txt", "raw/J_B_82_10_27/X01_01_202510ACCBTUReadingS11MIN.txt"},
		{"raw/J_B_83_01_01/X01_01_202510BTUREADINGS11MIN.txt", "raw/../escape.txt", "raw2/J_B_84_01_01/X01_01_202510BTUREADINGS11MIN.txt"},
	}

	var getCalls sync.Map
	client := &mockS3{
		ListObjectsV2Func: func(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
			assert.Equal(t, "meters", aws.ToString(in.Bucket))
			assert.Equal(t, "raw/", aws.ToString(in.Prefix))
			page := 0
			if in.ContinuationToken != nil {
				page = 1
			}
			out := &s3.ListObjectsV2Output{}
			for _, key := range pages[page] {
				out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
			}
			if page == 0 {
				out.IsTruncated = aws.Bool(true)
				out.NextContinuationToken = aws.String("next")
			}
			return out, nil
		},
		GetObjectFunc: func(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
			key := aws.ToString(in.Key)
			// the first attempt for each key fails
			if _, seen := getCalls.LoadOrStore(key, true); !seen {
				return nil, errors.New("connection reset")
			}
			return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(objects[key]))}, nil
		},
	}

	dir := t.TempDir()
	count, err := newStore(t, client).Mirror(context.Background(), "raw", dir)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	for key, body := range objects {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(key, "raw/"))))
		require.NoError(t, err)
		assert.Equal(t, body, string(data))
	}
	_, err = os.Stat(filepath.Join(filepath.Dir(dir), "escape.txt"))
	assert.True(t, os.IsNotExist(err))
	// a sibling prefix sharing the same leading characters is not mirrored
	_, err = os.Stat(filepath.Join(dir, "2"))
	assert.True(t, os.IsNotExist(err))
	_, seen := getCalls.Load("raw2/J_B_84_01_01/X01_01_202510BTUREADINGS11MIN.txt")
	assert.False(t, seen)
}

func TestStore_MirrorGivesUp(t *testing.T) {
	t.Parallel()

	attempts := 0
	client := &mockS3{
		ListObjectsV2Func: func(context.Context, *s3.ListObjectsV2Input, ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
			return &s3.ListObjectsV2Output{Contents: []types.Object{{Key: aws.String("raw/J_B_82_10_27/a.txt")}}}, nil
		},
		GetObjectFunc: func(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
			attempts++
			return nil, errors.New("access denied")
		},
	}

	_, err := newStore(t, client).Mirror(context.Background(), "raw/", t.TempDir())
	assert.ErrorContains(t, err, "access denied")
	assert.Equal(t, 3, attempts)
}

func TestStore_UploadFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "Block_82.csv")
	txtPath := filepath.Join(dir, "District_Summary.txt")
	require.NoError(t, os.WriteFile(csvPath, []byte("timestamp,date,time\n"), 0o644))
	require.NoError(t, os.WriteFile(txtPath, []byte("summary"), 0o644))

	var mu sync.Mutex
	uploaded := map[string]string{}
	client := &mockS3{
		PutObjectFunc: func(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
			var buf bytes.Buffer
			_, err := io.Copy(&buf, in.Body)
			require.NoError(t, err)
			mu.Lock()
			uploaded[aws.ToString(in.Key)] = buf.String()
			mu.Unlock()
			return &s3.PutObjectOutput{}, nil
		},
	}

	keys, err := newStore(t, client).UploadFiles(context.Background(), "reports/10_2025", []string{csvPath, txtPath})
	require.NoError(t, err)
	assert.Equal(t, []string{"reports/10_2025/Block_82.csv", "reports/10_2025/District_Summary.txt"}, keys)
	assert.Equal(t, "summary", uploaded["reports/10_2025/District_Summary.txt"])
	assert.Equal(t, "timestamp,date,time\n", uploaded["reports/10_2025/Block_82.csv"])
}

func TestStore_UploadMissingFileIsNotRetried(t *testing.T) {
	t.Parallel()

	calls := 0
	client := &mockS3{
		PutObjectFunc: func(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
			calls++
			return &s3.PutObjectOutput{}, nil
		},
	}

	_, err := newStore(t, client).UploadFiles(context.Background(), "reports", []string{filepath.Join(t.TempDir(), "missing.csv")})
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Zero(t, calls)
}

func TestLocalPath(t *testing.T) {
	t.Parallel()

	got, err := objectstore.LocalPath("data", "raw/", "raw/J_B_82_10_27/a.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("data", "J_B_82_10_27", "a.txt"), got)

	got, err = objectstore.LocalPath("data", "raw", "raw/J_B_82_10_27/a.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("data", "J_B_82_10_27", "a.txt"), got)

	_, err = objectstore.LocalPath("data", "raw/", "raw/../../etc/passwd")
	assert.Error(t, err)
	_, err = objectstore.LocalPath("data", "raw/", "raw/")
	assert.Error(t, err)
	_, err = objectstore.LocalPath("data", "raw", "raw2/J_B_82_10_27/a.txt")
	assert.Error(t, err)

	got, err = objectstore.LocalPath("data", "", "J_B_82_10_27/a.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("data", "J_B_82_10_27", "a.txt"), got)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := objectstore.New(objectstore.Config{Client: &mockS3{}, Bucket: "b"})
	assert.ErrorContains(t, err, "logger is required")
	_, err = objectstore.New(objectstore.Config{Logger: logger, Bucket: "b"})
	assert.ErrorContains(t, err, "s3 client is required")
	_, err = objectstore.New(objectstore.Config{Logger: logger, Client: &mockS3{}})
	assert.ErrorContains(t, err, "bucket is required")
}
