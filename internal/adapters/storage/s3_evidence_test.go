package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeS3 struct {
	objects   map[string][]byte
	types     map[string]string
	putErr    error
	deleteErr error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = b
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3EvidenceStore_PutAndDelete(t *testing.T) {
	api := newFakeS3()
	store := newS3EvidenceStore(api, "evidence-bucket", "https://files.example.com/", zap.NewNop())
	ctx := context.Background()

	body := "%PDF-1.4"
	url, err := store.Put(ctx, "evidence/d1/2025-W07/tx 1.pdf", strings.NewReader(body), int64(len(body)), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/evidence/d1/2025-W07/tx%201.pdf", url)
	assert.Equal(t, []byte(body), api.objects["evidence/d1/2025-W07/tx 1.pdf"])
	assert.Equal(t, "application/pdf", api.types["evidence/d1/2025-W07/tx 1.pdf"])

	require.NoError(t, store.Delete(ctx, "evidence/d1/2025-W07/tx 1.pdf"))
	assert.Empty(t, api.objects)
}

func TestS3EvidenceStore_Errors(t *testing.T) {
	api := newFakeS3()
	store := newS3EvidenceStore(api, "b", "https://b", zap.NewNop())
	ctx := context.Background()

	api.putErr = errors.New("AccessDenied")
	_, err := store.Put(ctx, "k", strings.NewReader("x"), 1, "image/png")
	assert.ErrorContains(t, err, "AccessDenied")

	api.deleteErr = &s3types.NoSuchKey{}
	assert.NoError(t, store.Delete(ctx, "k"), "missing key is not an error")

	api.deleteErr = errors.New("SlowDown")
	assert.Error(t, store.Delete(ctx, "k"))
}
