package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// GCS implements StatusChannel on a Google Cloud Storage bucket. Metadata
// calls (Stat, List, Delete) go through a shared rate limiter so a status
// sweep across many variants stays inside API quota.
type GCS struct {
	client  *storage.Client
	project string
	bucket  string
	limiter *rate.Limiter
}

// NewGCS wraps an existing storage client. The project is only needed by
// Ensure when the bucket has to be created.
func NewGCS(client *storage.Client, project, bucket string) *GCS {
	return &GCS{
		client:  client,
		project: project,
		bucket:  bucket,
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
}

// Ensure creates the bucket if it does not exist yet.
func (g *GCS) Ensure(ctx context.Context) error {
	_, err := g.client.Bucket(g.bucket).Attrs(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("stat bucket %s: %w", g.bucket, err)
	}
	if err := g.client.Bucket(g.bucket).Create(ctx, g.project, nil); err != nil {
		// Lost a create race with another invocation; the bucket exists.
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", g.bucket, err)
	}
	return nil
}

func (g *GCS) Put(ctx context.Context, name string, data []byte) error {
	w := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (g *GCS) Get(ctx context.Context, name string) ([]byte, error) {
	r, err := g.client.Bucket(g.bucket).Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func (g *GCS) Stat(ctx context.Context, name string) (ObjectInfo, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return ObjectInfo{}, err
	}

	attrs, err := g.client.Bucket(g.bucket).Object(name).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ObjectInfo{}, ErrNotExist
		}
		return ObjectInfo{}, fmt.Errorf("stat %s: %w", name, err)
	}
	return ObjectInfo{Name: attrs.Name, Size: attrs.Size, Updated: attrs.Updated}, nil
}

func (g *GCS) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var infos []ObjectInfo
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		infos = append(infos, ObjectInfo{Name: attrs.Name, Size: attrs.Size, Updated: attrs.Updated})
	}
	return infos, nil
}

func (g *GCS) Delete(ctx context.Context, name string) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	err := g.client.Bucket(g.bucket).Object(name).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}
