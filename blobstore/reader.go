package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/shouni/go-remote-io/pkg/remoteio"
)

var _ remoteio.InputReader = (*Local)(nil)

// Open opens the blob a public URL points at. URLs outside this store are
// rejected with ErrInvalidPath and missing blobs return ErrNotFound.
func (s *Local) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bucket, objectPath, ok := s.ParsePublicURL(uri)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not served by this store", ErrInvalidPath, uri)
	}
	full, err := s.resolve(bucket, objectPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("blobstore: failed to open blob: %w", err)
	}
	return f, nil
}

// List calls fn with the public URL of every blob under uri, which is the
// public URL of a bucket or of a directory inside one. Dot files, which
// include in-progress writes, are skipped. A missing directory lists nothing.
func (s *Local) List(ctx context.Context, uri string, fn func(string) error) error {
	prefix := s.baseURL + PublicPrefix
	if !strings.HasPrefix(uri, prefix) {
		return fmt.Errorf("%w: %s is not served by this store", ErrInvalidPath, uri)
	}
	rest, err := url.PathUnescape(strings.Trim(strings.TrimPrefix(uri, prefix), "/"))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPath, uri)
	}
	bucket, dir, _ := strings.Cut(rest, "/")
	if !bucketPattern.MatchString(bucket) {
		return fmt.Errorf("%w: bucket %q", ErrInvalidPath, bucket)
	}

	base := filepath.Join(s.root, bucket)
	start := base
	if dir != "" {
		full, err := s.resolve(bucket, dir)
		if err != nil {
			return err
		}
		start = full
	}

	err = filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		return fn(s.PublicURL(bucket, filepath.ToSlash(rel)))
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
