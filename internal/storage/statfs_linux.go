//go:build linux

package storage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func (d *DirStore) FreeBytes() (uint64, error) {
	if d == nil {
		return 0, fmt.Errorf("storage: store is nil")
	}
	var st unix.Statfs_t
	if err := unix.Statfs(d.dir, &st); err != nil {
		return 0, fmt.Errorf("storage: statfs %s: %w", d.dir, err)
	}
	return st.Bavail * uint64(st.Bsize), nil
}
