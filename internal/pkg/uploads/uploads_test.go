package uploads

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	b, _ := io.ReadAll(params.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{}, f.err
}

func TestS3StorePut(t *testing.T) {
	fake := &fakePutter{}
	store := &S3Store{client: fake, bucket: "intake"}

	require.NoError(t, store.Put(context.Background(), "submissions/north/a.pdf", "application/pdf", strings.NewReader("%PDF"), 4))
	assert.Equal(t, "intake", aws.ToString(fake.input.Bucket))
	assert.Equal(t, "submissions/north/a.pdf", aws.ToString(fake.input.Key))
	assert.Equal(t, "application/pdf", aws.ToString(fake.input.ContentType))
	assert.Equal(t, int64(4), aws.ToInt64(fake.input.ContentLength))
	assert.Equal(t, "%PDF", fake.body)

	fake.err = errors.New("denied")
	assert.ErrorContains(t, store.Put(context.Background(), "k", "application/pdf", strings.NewReader("x"), 1), "denied")
}

func TestNewS3StoreDisabled(t *testing.T) {
	_, err := NewS3Store(context.Background(), &Config{})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestObjectKey(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	key := ObjectKey("north", "Report Card.PDF", at)
	assert.True(t, strings.HasPrefix(key, "submissions/north/2026/03/"))
	assert.True(t, strings.HasSuffix(key, ".pdf"))
	assert.NotEqual(t, key, ObjectKey("north", "Report Card.PDF", at))
}

func TestValidate(t *testing.T) {
	cfg := &Config{MaxFileBytes: 100, AllowedTypes: []string{"application/pdf", "image/png"}}

	tests := []struct {
		name        string
		file        string
		contentType string
		size        int64
		want        string
		err         error
	}{
		{"pdf", "a.pdf", "application/pdf", 10, "application/pdf", nil},
		{"parameters stripped", "a.png", "image/png; charset=binary", 10, "image/png", nil},
		{"sniffed from extension", "a.pdf", "application/octet-stream", 10, "application/pdf", nil},
		{"too large", "a.pdf", "application/pdf", 101, "", ErrTooLarge},
		{"empty", "a.pdf", "application/pdf", 0, "", ErrEmptyUpload},
		{"type not allowed", "a.exe", "application/x-msdownload", 10, "", ErrTypeNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cfg.Validate(tt.file, tt.contentType, tt.size)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("UPLOADS_S3_BUCKET", "")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.IsEnabled())
	assert.Equal(t, []string{"application/pdf", "image/jpeg", "image/png"}, cfg.AllowedTypes)

	t.Setenv("UPLOADS_S3_BUCKET", "intake")
	t.Setenv("UPLOADS_S3_ACCESS_KEY_ID", "")
	_, err = LoadConfig()
	assert.Error(t, err)

	t.Setenv("UPLOADS_S3_ACCESS_KEY_ID", "key")
	t.Setenv("UPLOADS_S3_SECRET_ACCESS_KEY", "secret")
	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsEnabled())
}

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore()
	require.NoError(t, m.Put(context.Background(), "k", "image/png", strings.NewReader("png"), 3))
	data, ct, err := m.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
	assert.Equal(t, "image/png", ct)
	assert.Equal(t, 1, m.Len())

	_, _, err = m.Get("missing")
	assert.Error(t, err)
}
