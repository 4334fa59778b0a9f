package webui

import (
	"io/fs"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"productstudio/webui/static"
)

// StaticAssetHandler serves the embedded studio UI.
type StaticAssetHandler struct {
	fs          fs.FS
	prefix      string
	indexFile   string
	cacheMaxAge int
}

// StaticAssetConfig configures the StaticAssetHandler.
type StaticAssetConfig struct {
	// Prefix is the URL prefix of the assets (default "/static").
	Prefix string
	// IndexFile is served for "/" (default "index.html").
	IndexFile string
	// CacheMaxAge is the max-age of asset responses in seconds. Zero
	// disables caching.
	CacheMaxAge int
}

// DefaultStaticAssetConfig returns the production settings.
func DefaultStaticAssetConfig() StaticAssetConfig {
	return StaticAssetConfig{
		Prefix:      "/static",
		IndexFile:   "index.html",
		CacheMaxAge: 3600,
	}
}

// NewStaticAssetHandler serves the embedded filesystem.
func NewStaticAssetHandler(config StaticAssetConfig) *StaticAssetHandler {
	return NewStaticAssetHandlerWithFS(static.GetFS(), config)
}

// NewStaticAssetHandlerWithFS serves fsys instead of the embedded assets.
func NewStaticAssetHandlerWithFS(fsys fs.FS, config StaticAssetConfig) *StaticAssetHandler {
	if config.Prefix == "" {
		config.Prefix = "/static"
	}
	if config.IndexFile == "" {
		config.IndexFile = "index.html"
	}
	return &StaticAssetHandler{
		fs:          fsys,
		prefix:      strings.TrimRight(config.Prefix, "/"),
		indexFile:   config.IndexFile,
		cacheMaxAge: config.CacheMaxAge,
	}
}

// ServeHTTP serves one asset below the prefix.
func (h *StaticAssetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, h.prefix)
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if name == "" || name == "." {
		name = h.indexFile
	}
	h.serveFile(w, r, name, h.cacheMaxAge)
}

// ServeIndex serves the UI entry page for the exact root path.
func (h *StaticAssetHandler) ServeIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	// The entry page references versioned assets and is never cached.
	h.serveFile(w, r, h.indexFile, 0)
}

func (h *StaticAssetHandler) serveFile(w http.ResponseWriter, r *http.Request, name string, maxAge int) {
	data, err := fs.ReadFile(h.fs, name)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", detectContentType(name))
	if maxAge > 0 {
		w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(maxAge))
	} else {
		w.Header().Set("Cache-Control", "no-cache")
	}
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(data)
	}
}

// RegisterRoutes mounts the assets and the entry page on mux.
func (h *StaticAssetHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET "+h.prefix+"/", h)
	mux.HandleFunc("GET /{$}", h.ServeIndex)
}

// detectContentType maps a file extension to its MIME type.
func detectContentType(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".js":
		return "application/javascript; charset=utf-8"
	case ".json":
		return "application/json; charset=utf-8"
	case ".svg":
		return "image/svg+xml"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
