package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirStore keeps session files in one directory on the mounted card.
type DirStore struct {
	dir string
}

// OpenDir verifies the directory exists and is writable-ish (a stat is the
// cheapest detection we have; an unmounted card fails here, which is the
// fatal boot path).
func OpenDir(dir string) (*DirStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: %s is not a directory", dir)
	}
	return &DirStore{dir: dir}, nil
}

func (d *DirStore) Open(name string) (File, error) {
	if d == nil {
		return nil, fmt.Errorf("storage: store is nil")
	}
	f, err := os.OpenFile(filepath.Join(d.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", name, err)
	}
	return &osFile{f: f}, nil
}

type osFile struct {
	f *os.File
}

func (o *osFile) Write(p []byte) error {
	if o == nil || o.f == nil {
		return fmt.Errorf("storage: file is closed")
	}
	n, err := o.f.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return fmt.Errorf("storage: short write %d/%d", n, len(p))
	}
	return nil
}

func (o *osFile) Sync() error {
	if o == nil || o.f == nil {
		return fmt.Errorf("storage: file is closed")
	}
	return o.f.Sync()
}

func (o *osFile) Close() error {
	if o == nil || o.f == nil {
		return nil
	}
	err := o.f.Close()
	o.f = nil
	return err
}
