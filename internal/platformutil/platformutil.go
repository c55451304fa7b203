// Package platformutil collects small platform shims: home-directory
// resolution for ~-expansion of CLI paths, and disk usage for the
// pre-mount host-volume report.
package platformutil

import (
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/shirou/gopsutil/v3/disk"
)

// ExpandHome expands a leading "~" or "~/" in path to the current user's
// home directory, leaving other paths untouched.
func ExpandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	if path != "~" && !strings.HasPrefix(path, "~/") {
		// "~otheruser" form: not resolved, returned as-is.
		return path, nil
	}
	return homedir.Expand(path)
}

// AbsExpand expands ~ and then resolves the result to an absolute path.
func AbsExpand(path string) (string, error) {
	expanded, err := ExpandHome(path)
	if err != nil {
		return "", err
	}
	return filepath.Abs(expanded)
}

// DiskUsage reports free/total bytes for the filesystem backing path,
// logged before mounting so a full host volume is visible up front.
type DiskUsage struct {
	TotalBytes uint64
	FreeBytes  uint64
}

func GetDiskUsage(path string) (DiskUsage, error) {
	u, err := disk.Usage(path)
	if err != nil {
		return DiskUsage{}, err
	}
	return DiskUsage{TotalBytes: u.Total, FreeBytes: u.Free}, nil
}
