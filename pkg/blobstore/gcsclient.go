package blobstore

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"
)

// Client abstracts the top-level *storage.Client so the blob store can be tested
// without a real bucket.
type Client interface {
	Bucket(name string) Bucket
}

// Bucket abstracts a *storage.BucketHandle.
type Bucket interface {
	Object(name string) Object
}

// Object abstracts a *storage.ObjectHandle. NewReader and Delete report a missing
// object as ErrNotFound.
type Object interface {
	NewWriter(ctx context.Context, contentType string) io.WriteCloser
	NewReader(ctx context.Context) (io.ReadCloser, error)
	Delete(ctx context.Context) error
}

// NewGCSClientAdapter makes a *storage.Client conform to Client.
func NewGCSClientAdapter(client *storage.Client) Client {
	if client == nil {
		return nil
	}
	return &gcsClientAdapter{client: client}
}

type gcsClientAdapter struct {
	client *storage.Client
}

func (a *gcsClientAdapter) Bucket(name string) Bucket {
	return &gcsBucketAdapter{handle: a.client.Bucket(name)}
}

type gcsBucketAdapter struct {
	handle *storage.BucketHandle
}

func (a *gcsBucketAdapter) Object(name string) Object {
	return &gcsObjectAdapter{handle: a.handle.Object(name)}
}

type gcsObjectAdapter struct {
	handle *storage.ObjectHandle
}

func (a *gcsObjectAdapter) NewWriter(ctx context.Context, contentType string) io.WriteCloser {
	w := a.handle.NewWriter(ctx)
	w.ContentType = contentType
	return w
}

func (a *gcsObjectAdapter) NewReader(ctx context.Context) (io.ReadCloser, error) {
	r, err := a.handle.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	return r, err
}

func (a *gcsObjectAdapter) Delete(ctx context.Context) error {
	err := a.handle.Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrNotFound
	}
	return err
}
