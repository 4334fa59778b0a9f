// Package blobstore keeps uploaded and generated images on the local
// filesystem, grouped into buckets, and maps them to public URLs served by
// the web server under /files/.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// Buckets used by the studio.
const (
	BucketProducts        = "products"
	BucketGeneratedImages = "generated_images"
)

// PublicPrefix is the URL path under which blobs are served.
const PublicPrefix = "/files/"

var (
	// ErrNotFound is returned when a blob does not exist.
	ErrNotFound = errors.New("blobstore: blob not found")
	// ErrInvalidPath is returned for bucket names or object paths that
	// would escape the store root.
	ErrInvalidPath = errors.New("blobstore: invalid blob path")
)

var bucketPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,62}$`)

// Local stores blobs below a root directory: {root}/{bucket}/{path}.
//
// Thread Safety: Local is safe for concurrent use. Writes go to a temp file
// that is renamed into place, so readers never see a partial blob.
type Local struct {
	root    string
	baseURL string
}

// NewLocal creates the root directory if needed. baseURL is the externally
// reachable origin of the web server, e.g. "https://studio.example.com".
func NewLocal(root, baseURL string) (*Local, error) {
	if root == "" {
		return nil, fmt.Errorf("blobstore: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: failed to create root %s: %w", root, err)
	}
	return &Local{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Root returns the directory blobs are stored under.
func (s *Local) Root() string {
	return s.root
}

// Put writes data to bucket/objectPath, replacing any existing blob.
func (s *Local) Put(ctx context.Context, bucket, objectPath string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	full, err := s.resolve(bucket, objectPath)
	if err != nil {
		return err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("blobstore: failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("blobstore: failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("blobstore: failed to write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("blobstore: failed to close blob: %w", err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("blobstore: failed to move blob into place: %w", err)
	}
	return nil
}

// Get reads a blob and returns its bytes and the MIME type implied by its
// extension.
func (s *Local) Get(ctx context.Context, bucket, objectPath string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	full, err := s.resolve(bucket, objectPath)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("blobstore: failed to read blob: %w", err)
	}
	return data, MIMEForPath(objectPath), nil
}

// Delete removes a blob. Deleting a missing blob is not an error.
func (s *Local) Delete(ctx context.Context, bucket, objectPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	full, err := s.resolve(bucket, objectPath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("blobstore: failed to delete blob: %w", err)
	}
	return nil
}

// DeletePrefix removes every blob under bucket/prefix (a user's folder).
func (s *Local) DeletePrefix(ctx context.Context, bucket, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	full, err := s.resolve(bucket, prefix)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(full); err != nil {
		return fmt.Errorf("blobstore: failed to delete %s/%s: %w", bucket, prefix, err)
	}
	return nil
}

// PublicURL returns the URL the web server serves bucket/objectPath under.
func (s *Local) PublicURL(bucket, objectPath string) string {
	segments := strings.Split(objectPath, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.baseURL + PublicPrefix + bucket + "/" + strings.Join(segments, "/")
}

// ParsePublicURL is the inverse of PublicURL. ok is false for URLs that do
// not point into this store.
func (s *Local) ParsePublicURL(rawURL string) (bucket, objectPath string, ok bool) {
	prefix := s.baseURL + PublicPrefix
	if !strings.HasPrefix(rawURL, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(rawURL, prefix)
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	unescaped, err := url.PathUnescape(rest)
	if err != nil {
		return "", "", false
	}
	bucket, objectPath, found := strings.Cut(unescaped, "/")
	if !found || objectPath == "" {
		return "", "", false
	}
	if _, err := s.resolve(bucket, objectPath); err != nil {
		return "", "", false
	}
	return bucket, objectPath, true
}

// resolve maps bucket/objectPath to a file under root, rejecting anything
// that would land outside its bucket.
func (s *Local) resolve(bucket, objectPath string) (string, error) {
	if !bucketPattern.MatchString(bucket) {
		return "", fmt.Errorf("%w: bucket %q", ErrInvalidPath, bucket)
	}
	if objectPath == "" || strings.HasPrefix(objectPath, "/") || strings.Contains(objectPath, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, objectPath)
	}
	cleaned := path.Clean(objectPath)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, objectPath)
	}
	for _, seg := range strings.Split(cleaned, "/") {
		if strings.HasPrefix(seg, ".") {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, objectPath)
		}
	}
	return filepath.Join(s.root, bucket, filepath.FromSlash(cleaned)), nil
}

// ExtensionForMIME returns the file extension for an image MIME type.
// Unknown image types default to ".png"; non-image types return "".
func ExtensionForMIME(contentType string) string {
	media := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(media, ";"); i != -1 {
		media = strings.TrimSpace(media[:i])
	}

	switch media {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	}
	if strings.HasPrefix(media, "image/") {
		return ".png"
	}
	return ""
}

// MIMEForPath returns the MIME type implied by a blob's extension.
func MIMEForPath(objectPath string) string {
	ext := strings.ToLower(path.Ext(objectPath))
	if ext == ".bmp" {
		return "image/bmp"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
