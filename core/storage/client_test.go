package storage_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"book-circulation/core/storage"
	"book-circulation/core/storage/mocks"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		client, err := storage.NewClient(storage.Config{
			Endpoint:  "localhost:9000",
			AccessKey: "testkey",
			SecretKey: "testsecret",
			Bucket:    "test-bucket",
			Region:    "us-east-1",
		})
		assert.NoError(t, err)
		assert.NotNil(t, client)
	})

	t.Run("EndpointWithScheme", func(t *testing.T) {
		client, err := storage.NewClient(storage.Config{
			Endpoint:  "https://s3.amazonaws.com",
			AccessKey: "testkey",
			SecretKey: "testsecret",
			UseSSL:    true,
		})
		assert.NoError(t, err)
		assert.NotNil(t, client)
	})
}

type fixtureBook struct {
	Name   string `json:"name"`
	Author string `json:"author"`
}

func TestReadJSON(t *testing.T) {
	ctx := context.Background()

	t.Run("Decodes", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", ctx, "fixtures").Return(true, nil)
		client.On("GetObject", ctx, "fixtures", "books.json", mock.Anything).
			Return(io.NopCloser(strings.NewReader(`[{"name":"Emma","author":"Jane Austen"}]`)), nil)

		var books []fixtureBook
		require.NoError(t, storage.ReadJSON(ctx, client, "fixtures", "books.json", &books))
		assert.Equal(t, []fixtureBook{{Name: "Emma", Author: "Jane Austen"}}, books)
		client.AssertExpectations(t)
	})

	t.Run("MissingBucket", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", ctx, "fixtures").Return(false, nil)

		var books []fixtureBook
		err := storage.ReadJSON(ctx, client, "fixtures", "books.json", &books)
		assert.ErrorIs(t, err, storage.ErrBucketMissing)
		client.AssertNotCalled(t, "GetObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("BadJSON", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", ctx, "fixtures").Return(true, nil)
		client.On("GetObject", ctx, "fixtures", "books.json", mock.Anything).
			Return(io.NopCloser(strings.NewReader(`{`)), nil)

		var books []fixtureBook
		assert.Error(t, storage.ReadJSON(ctx, client, "fixtures", "books.json", &books))
	})

	t.Run("GetFails", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", ctx, "fixtures").Return(true, nil)
		client.On("GetObject", ctx, "fixtures", "books.json", mock.Anything).Return(nil, assert.AnError)

		var books []fixtureBook
		assert.ErrorIs(t, storage.ReadJSON(ctx, client, "fixtures", "books.json", &books), assert.AnError)
	})
}

func TestWriteJSON(t *testing.T) {
	ctx := context.Background()

	t.Run("CreatesBucket", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", ctx, "fixtures").Return(false, nil)
		client.On("MakeBucket", ctx, "fixtures", mock.Anything).Return(nil)
		client.On("PutObject", ctx, "fixtures", "manifest.json", mock.Anything, mock.AnythingOfType("int64"),
			mock.MatchedBy(func(o minio.PutObjectOptions) bool { return o.ContentType == "application/json" })).
			Return(minio.UploadInfo{}, nil)

		require.NoError(t, storage.WriteJSON(ctx, client, "fixtures", "manifest.json", map[string][]string{"books": {"a"}}))
		client.AssertExpectations(t)
	})

	t.Run("UploadFails", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", ctx, "fixtures").Return(true, nil)
		client.On("PutObject", ctx, "fixtures", "manifest.json", mock.Anything, mock.Anything, mock.Anything).
			Return(minio.UploadInfo{}, assert.AnError)

		err := storage.WriteJSON(ctx, client, "fixtures", "manifest.json", []string{})
		assert.ErrorIs(t, err, assert.AnError)
		client.AssertNotCalled(t, "MakeBucket", mock.Anything, mock.Anything, mock.Anything)
	})
}
