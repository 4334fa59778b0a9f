// fetcher.go implements the Fetcher molecules the Resolver reads remote
// source images through.
//
// This molecule composes:
//   - core.GetHTTPClient: for outbound HTTP with proxy and timeouts
//   - atoms.go: IsRestrictedIP for the private network guard
//   - remoteio.InputReader: for blob store and gs:// or s3:// objects
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/shouni/go-remote-io/pkg/remoteio"

	"productstudio/core"
)

// DefaultMaxFetchBytes caps a single source image download.
const DefaultMaxFetchBytes = 20 * 1024 * 1024

// errRestrictedAddress is returned by the guarded dialer.
var errRestrictedAddress = errors.New("address is in a restricted network")

// Fetcher downloads one URL. Implementations make exactly one attempt.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (data []byte, contentType string, err error)
}

// HTTPFetcher fetches images over HTTP(S).
//
// Thread Safety: HTTPFetcher is safe for concurrent use.
type HTTPFetcher struct {
	client       *http.Client
	maxBytes     int64
	allowPrivate bool
}

// HTTPFetcherConfig holds configuration for the HTTPFetcher.
type HTTPFetcherConfig struct {
	// HTTPClient is used for requests (optional)
	// If nil, core.GetHTTPClient(Timeout) is used
	HTTPClient *http.Client

	// Timeout bounds a whole fetch when HTTPClient is nil
	// Default: 60 seconds
	Timeout time.Duration

	// MaxBytes rejects larger bodies
	// Default: 20 MB
	MaxBytes int64

	// AllowPrivate disables the loopback/private network guard
	AllowPrivate bool
}

// NewHTTPFetcher creates a fetcher. Unless AllowPrivate is set, connections
// to loopback, private and link-local addresses are refused at dial time,
// which also covers hostnames that resolve to such addresses.
func NewHTTPFetcher(config HTTPFetcherConfig) *HTTPFetcher {
	if config.MaxBytes <= 0 {
		config.MaxBytes = DefaultMaxFetchBytes
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	client := config.HTTPClient
	if client == nil {
		client = core.GetHTTPClient(config.Timeout)
	}
	if !config.AllowPrivate {
		client = guardClient(client)
	}

	return &HTTPFetcher{
		client:       client,
		maxBytes:     config.MaxBytes,
		allowPrivate: config.AllowPrivate,
	}
}

// guardClient returns a copy of client whose transport refuses restricted
// addresses.
func guardClient(client *http.Client) *http.Client {
	var transport *http.Transport
	switch t := client.Transport.(type) {
	case *http.Transport:
		transport = t.Clone()
	case nil:
		transport = http.DefaultTransport.(*http.Transport).Clone()
	default:
		// A custom RoundTripper (tests, instrumentation) is trusted as-is.
		return client
	}

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control: func(network, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			if ip := net.ParseIP(host); ip != nil && IsRestrictedIP(ip) {
				return fmt.Errorf("%w: %s", errRestrictedAddress, ip)
			}
			return nil
		},
	}
	transport.DialContext = dialer.DialContext
	// The proxy would be dialed instead of the target; skip it so the guard
	// sees the real address.
	transport.Proxy = nil

	guarded := *client
	guarded.Transport = transport
	return &guarded
}

// Fetch downloads rawURL. Non-2xx responses, transport errors, empty bodies
// and bodies over the size limit all wrap ErrSourceUnavailable.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, "", fmt.Errorf("%w: unsupported URL %q", ErrSourceUnavailable, rawURL)
	}
	if !f.allowPrivate && strings.EqualFold(u.Hostname(), "localhost") {
		return nil, "", fmt.Errorf("%w: %s resolves to a restricted network", ErrSourceUnavailable, u.Host)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to create request: %v", ErrSourceUnavailable, err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("%w: download failed with status %d", ErrSourceUnavailable, resp.StatusCode)
	}
	if resp.ContentLength > f.maxBytes {
		return nil, "", fmt.Errorf("%w: body of %d bytes exceeds limit of %d", ErrSourceUnavailable, resp.ContentLength, f.maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to read body: %v", ErrSourceUnavailable, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, "", fmt.Errorf("%w: body exceeds limit of %d bytes", ErrSourceUnavailable, f.maxBytes)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty body", ErrSourceUnavailable)
	}

	return data, contentTypeOf(resp.Header.Get("Content-Type"), data), nil
}

// contentTypeOf prefers the declared type and sniffs only when the server
// declared nothing useful.
func contentTypeOf(declared string, data []byte) string {
	media := NormalizeMIME(declared)
	if media == "" || media == "application/octet-stream" || media == "binary/octet-stream" {
		return NormalizeMIME(http.DetectContentType(data))
	}
	return media
}

// BlobSource is the read side of the blob store. *blobstore.Local
// implements it.
type BlobSource interface {
	remoteio.InputReader
	ParsePublicURL(rawURL string) (bucket, objectPath string, ok bool)
}

// BlobFetcher serves URLs that point at this service's own blob store
// straight from disk.
type BlobFetcher struct {
	store    BlobSource
	maxBytes int64
}

// NewBlobFetcher creates a BlobFetcher.
func NewBlobFetcher(store BlobSource) *BlobFetcher {
	return &BlobFetcher{store: store, maxBytes: DefaultMaxFetchBytes}
}

// Owns reports whether rawURL points into the blob store.
func (f *BlobFetcher) Owns(rawURL string) bool {
	_, _, ok := f.store.ParsePublicURL(rawURL)
	return ok
}

// Fetch reads the blob rawURL points at.
func (f *BlobFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	_, objectPath, ok := f.store.ParsePublicURL(rawURL)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s is not a stored blob", ErrSourceUnavailable, rawURL)
	}
	data, err := readObject(ctx, f.store, rawURL, f.maxBytes)
	if err != nil {
		return nil, "", err
	}
	return data, contentTypeOf(mime.TypeByExtension(path.Ext(objectPath)), data), nil
}

// ObjectSchemes are the URL schemes ObjectFetcher handles.
var ObjectSchemes = []string{"gs://", "s3://"}

// IsObjectURL reports whether rawURL names a cloud storage object.
func IsObjectURL(rawURL string) bool {
	for _, scheme := range ObjectSchemes {
		if strings.HasPrefix(rawURL, scheme) {
			return true
		}
	}
	return false
}

// ObjectFetcher reads gs:// and s3:// objects through a remoteio reader.
//
// Thread Safety: ObjectFetcher is as safe for concurrent use as its reader.
type ObjectFetcher struct {
	reader   remoteio.InputReader
	maxBytes int64
}

// NewObjectFetcher creates an ObjectFetcher. A non-positive maxBytes
// falls back to DefaultMaxFetchBytes.
func NewObjectFetcher(reader remoteio.InputReader, maxBytes int64) *ObjectFetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFetchBytes
	}
	return &ObjectFetcher{reader: reader, maxBytes: maxBytes}
}

// Fetch reads the object rawURL names. The content type is sniffed.
func (f *ObjectFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	if !IsObjectURL(rawURL) {
		return nil, "", fmt.Errorf("%w: unsupported URL %q", ErrSourceUnavailable, rawURL)
	}
	data, err := readObject(ctx, f.reader, rawURL, f.maxBytes)
	if err != nil {
		return nil, "", err
	}
	return data, contentTypeOf("", data), nil
}

// readObject opens uri once and reads at most maxBytes of it.
func readObject(ctx context.Context, reader remoteio.InputReader, uri string, maxBytes int64) ([]byte, error) {
	rc, err := reader.Open(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read object: %v", ErrSourceUnavailable, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: object exceeds limit of %d bytes", ErrSourceUnavailable, maxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty object", ErrSourceUnavailable)
	}
	return data, nil
}

// RoutingFetcher sends blob store URLs to Local, gs:// and s3:// URLs to
// Objects and everything else to Remote. Either way a URL is fetched once.
type RoutingFetcher struct {
	Local   *BlobFetcher
	Objects Fetcher
	Remote  Fetcher
}

// Fetch implements Fetcher.
func (f *RoutingFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	if f.Local != nil && f.Local.Owns(rawURL) {
		return f.Local.Fetch(ctx, rawURL)
	}
	if IsObjectURL(rawURL) {
		if f.Objects == nil {
			return nil, "", fmt.Errorf("%w: no object store reader for %s", ErrSourceUnavailable, rawURL)
		}
		return f.Objects.Fetch(ctx, rawURL)
	}
	if f.Remote == nil {
		return nil, "", fmt.Errorf("%w: no fetcher for %s", ErrSourceUnavailable, rawURL)
	}
	return f.Remote.Fetch(ctx, rawURL)
}

var (
	_ Fetcher = (*HTTPFetcher)(nil)
	_ Fetcher = (*BlobFetcher)(nil)
	_ Fetcher = (*ObjectFetcher)(nil)
	_ Fetcher = (*RoutingFetcher)(nil)
)
