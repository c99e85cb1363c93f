package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// GCS stores objects in a Google Cloud Storage bucket using application
// default credentials.
type GCS struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
}

func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCS{client: client, bucket: client.Bucket(bucket)}, nil
}

func (s *GCS) Close() error {
	return s.client.Close()
}

// Put returns after the writer is closed, which is when GCS commits the
// object.
func (s *GCS) Put(ctx context.Context, name string, r io.Reader) error {
	w := s.bucket.Object(name).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("write object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("commit object %s: %w", name, err)
	}
	return nil
}

func (s *GCS) Move(ctx context.Context, from, to string) error {
	src := s.bucket.Object(from)
	if _, err := s.bucket.Object(to).CopierFrom(src).Run(ctx); err != nil {
		return notExistGCS(err)
	}
	sourceRemoved(from, to, notExistGCS(src.Delete(ctx)))
	return nil
}

func (s *GCS) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	r, err := s.bucket.Object(name).NewReader(ctx)
	if err != nil {
		return nil, notExistGCS(err)
	}
	return r, nil
}

func (s *GCS) Find(ctx context.Context, prefix string) (string, error) {
	it := s.bucket.Objects(ctx, &gcs.Query{Prefix: prefix})
	attrs, err := it.Next()
	if errors.Is(err, iterator.Done) {
		return "", ErrNotExist
	}
	if err != nil {
		return "", fmt.Errorf("list objects %s: %w", prefix, err)
	}
	return attrs.Name, nil
}

func (s *GCS) Delete(ctx context.Context, name string) error {
	return notExistGCS(s.bucket.Object(name).Delete(ctx))
}

// notExistGCS maps missing objects to ErrNotExist. A rewrite of a missing
// source surfaces as a raw 404 rather than ErrObjectNotExist.
func notExistGCS(err error) error {
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return ErrNotExist
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return ErrNotExist
	}
	return err
}
