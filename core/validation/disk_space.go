package validation

import (
	"fmt"
	"os"
	"path/filepath"
)

// MinFreeDiskBytes is the free space below which the data directory check warns.
const MinFreeDiskBytes int64 = 512 * 1024 * 1024

// DiskSpaceInfo contains information about disk space.
type DiskSpaceInfo struct {
	Path  string
	Total int64
	Free  int64
}

// UsedPercent returns the share of the filesystem in use (0-100).
func (d DiskSpaceInfo) UsedPercent() float64 {
	if d.Total <= 0 {
		return 0
	}
	return float64(d.Total-d.Free) / float64(d.Total) * 100
}

// DiskSpaceError indicates the data directory is running out of room for blobs.
type DiskSpaceError struct {
	Path      string
	Required  int64
	Available int64
}

func (e *DiskSpaceError) Error() string {
	return fmt.Sprintf("insufficient disk space at %s: need %s, have %s free",
		e.Path, formatBytes(e.Required), formatBytes(e.Available))
}

// GetDiskSpace returns disk space information for the filesystem containing path.
// Missing paths are resolved against their nearest existing parent.
func GetDiskSpace(path string) (*DiskSpaceInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		parent := filepath.Dir(path)
		if os.IsNotExist(err) && parent != path {
			return GetDiskSpace(parent)
		}
		return nil, fmt.Errorf("cannot access path %s: %w", path, err)
	}
	if !info.IsDir() {
		path = filepath.Dir(path)
	}

	total, free, err := getDiskSpace(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get disk space for %s: %w", path, err)
	}
	return &DiskSpaceInfo{Path: path, Total: total, Free: free}, nil
}

// CheckDiskSpace verifies there is at least requiredBytes free at path.
func CheckDiskSpace(path string, requiredBytes int64) (*DiskSpaceInfo, error) {
	info, err := GetDiskSpace(path)
	if err != nil {
		return nil, err
	}
	if info.Free < requiredBytes {
		return info, &DiskSpaceError{Path: info.Path, Required: requiredBytes, Available: info.Free}
	}
	return info, nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
