// Package static holds the studio UI bundled into the binary.
package static

import (
	"embed"
	"io/fs"
)

// StaticFS contains index.html, css/studio.css and js/studio.js.
//
//go:embed index.html css js
var StaticFS embed.FS

// GetFS returns the embedded filesystem.
func GetFS() fs.FS {
	return StaticFS
}

// ReadFile reads a file from the embedded filesystem.
func ReadFile(name string) ([]byte, error) {
	return StaticFS.ReadFile(name)
}
