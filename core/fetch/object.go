package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"midiplayer/storage"
)

// ObjectGetter reads whole objects from a bucket.
type ObjectGetter interface {
	GetObjectBytes(ctx context.Context, bucket, key string) ([]byte, error)
}

// ObjectFetcher reads s3://bucket/key locations from MinIO.
type ObjectFetcher struct {
	store ObjectGetter
}

func NewObjectFetcher(store ObjectGetter) *ObjectFetcher {
	return &ObjectFetcher{store: store}
}

func (f *ObjectFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	bucket, key, err := splitObjectLocation(location)
	if err != nil {
		return nil, err
	}
	data, err := f.store.GetObjectBytes(ctx, bucket, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
		}
		return nil, err
	}
	return data, nil
}

func splitObjectLocation(location string) (bucket, key string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("parse %s: %w", location, err)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("fetch: object location %q needs a bucket and a key", location)
	}
	return u.Host, key, nil
}
