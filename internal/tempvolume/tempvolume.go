// Package tempvolume implements the Temporary Volume collaborator
// (spec.md §6): a disk location for the rows-sources stream and the
// row-id-map scratch files, deleted on Close unless Keep was called, in
// which case the merge-tmp- directory and its files stay on disk.
package tempvolume

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/graintree/graintree/lib/fs"
)

// Volume is a directory holding one merge task's scratch files.
type Volume struct {
	dir  string
	keep bool
}

// Open creates a fresh scratch directory under base for one merge task.
func Open(base, taskName string) (*Volume, error) {
	dir := filepath.Join(base, "merge-tmp-"+taskName)
	if err := fs.MkdirAllFailIfExist(dir); err != nil {
		return nil, fmt.Errorf("cannot create temporary volume %q: %w", dir, err)
	}
	return &Volume{dir: dir}, nil
}

// Keep marks the volume to survive Close, so its contents remain inspectable.
func (v *Volume) Keep() { v.keep = true }

// CreateFile creates a new scratch file named name inside the volume.
func (v *Volume) CreateFile(name string) (*os.File, string, error) {
	path := filepath.Join(v.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("cannot create scratch file %q: %w", path, err)
	}
	return f, path, nil
}

// Path returns the volume's directory.
func (v *Volume) Path() string { return v.dir }

// Close removes the volume's directory unless Keep was called.
func (v *Volume) Close() {
	if v.keep {
		return
	}
	fs.MustRemoveAll(v.dir)
}
