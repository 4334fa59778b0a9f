package validation

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestGetDiskSpace(t *testing.T) {
	dir := t.TempDir()

	info, err := GetDiskSpace(filepath.Join(dir, "not", "created", "yet"))
	if err != nil {
		t.Fatalf("GetDiskSpace() error = %v", err)
	}
	if info.Path != dir {
		t.Errorf("Path = %s, want nearest existing parent %s", info.Path, dir)
	}
	if info.Total <= 0 || info.Free < 0 || info.Free > info.Total {
		t.Errorf("implausible sizes: total=%d free=%d", info.Total, info.Free)
	}
	if p := info.UsedPercent(); p < 0 || p > 100 {
		t.Errorf("UsedPercent() = %v", p)
	}
}

func TestCheckDiskSpace(t *testing.T) {
	dir := t.TempDir()

	if _, err := CheckDiskSpace(dir, 1); err != nil {
		t.Errorf("CheckDiskSpace(1 byte) error = %v", err)
	}

	_, err := CheckDiskSpace(dir, 1<<62)
	var spaceErr *DiskSpaceError
	if !errors.As(err, &spaceErr) {
		t.Fatalf("CheckDiskSpace(huge) error = %v, want *DiskSpaceError", err)
	}
	if spaceErr.Required != 1<<62 {
		t.Errorf("Required = %d", spaceErr.Required)
	}
}

func TestFormatBytesDiskSpace(t *testing.T) {
	tests := map[int64]string{
		512:             "512 B",
		2048:            "2.0 KB",
		5 * 1024 * 1024: "5.0 MB",
	}
	for n, want := range tests {
		if got := formatBytes(n); got != want {
			t.Errorf("formatBytes(%d) = %q, want %q", n, got, want)
		}
	}
}
