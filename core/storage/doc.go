// Package storage reads and writes seed fixtures in S3-compatible object storage.
//
// Client wraps the MinIO Go client behind the four calls the seed command
// needs, so tests can substitute core/storage/mocks.
//
//   - ReadJSON: decodes a fixture object, failing with ErrBucketMissing when the bucket is absent.
//   - WriteJSON: uploads a manifest, creating the bucket on first use.
//
// # Usage
//
//	client, err := storage.NewClient(cfg.Storage)
//	var books []models.CreateBookRequest
//	err = storage.ReadJSON(ctx, client, cfg.Storage.Bucket, "books.json", &books)
package storage
