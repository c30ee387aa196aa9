package filestore

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/option"
)

// GCS resolves references to objects in a bucket. Objects are downloaded once into
// CacheDir and the cached copy is returned on later calls. Concurrent calls for
// the same object share one download.
type GCS struct {
	client   *storage.Client
	bucket   string
	cacheDir string

	open    func(ctx context.Context, ref string) (io.ReadCloser, error)
	flights singleflight.Group
}

type GCSConfig struct {
	Bucket          string `mapstructure:"bucket"`
	CacheDir        string `mapstructure:"cache-dir"`
	CredentialsFile string `mapstructure:"credentials-file"`
}

func NewGCS(ctx context.Context, cfg GCSConfig) (*GCS, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}

	cacheDir := strings.TrimSpace(cfg.CacheDir)
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "resume-screener")
	}
	if err := os.MkdirAll(cacheDir, 0o750); err != nil {
		return nil, fmt.Errorf("create gcs cache dir: %w", err)
	}

	var opts []option.ClientOption
	if file := strings.TrimSpace(cfg.CredentialsFile); file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	g := &GCS{client: client, bucket: bucket, cacheDir: cacheDir}
	g.open = func(ctx context.Context, ref string) (io.ReadCloser, error) {
		return client.Bucket(bucket).Object(ref).NewReader(ctx)
	}
	return g, nil
}

func (g *GCS) ResolvePath(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimPrefix(strings.TrimSpace(ref), "/")
	if ref == "" {
		return "", errEmptyRef
	}

	sum := sha256.Sum256([]byte(g.bucket + "/" + ref))
	local := filepath.Join(g.cacheDir, fmt.Sprintf("%x%s", sum[:8], path.Ext(ref)))

	if _, err := os.Stat(local); err == nil {
		return local, nil
	}

	_, err, _ := g.flights.Do(local, func() (any, error) {
		if _, err := os.Stat(local); err == nil {
			return nil, nil
		}
		return nil, g.download(ctx, ref, local)
	})
	if err != nil {
		return "", err
	}
	return local, nil
}

func (g *GCS) download(ctx context.Context, ref, local string) error {
	r, err := g.open(ctx, ref)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("gs://%s/%s: %w", g.bucket, ref, fs.ErrNotExist)
		}
		return fmt.Errorf("open gs://%s/%s: %w", g.bucket, ref, err)
	}
	defer r.Close()

	tmp, err := os.CreateTemp(g.cacheDir, "download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("download gs://%s/%s: %w", g.bucket, ref, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), local)
}

func (g *GCS) Close() error { return g.client.Close() }
