// Package osfs implements himd.Filesystem over a local directory mounted
// from a HiMD device or disc image, the way local_folder.go in the pack's
// image-copy tooling wraps os.File beneath a small directory-tree
// abstraction.
package osfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gohimd/himd"
)

// FS is a himd.Filesystem backed by a directory on the local filesystem,
// typically a mounted HiMD volume or an extracted disc image.
type FS struct {
	root string
}

// New returns an FS rooted at dir. dir must already exist.
func New(dir string) (*FS, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("osfs: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("osfs: root %q is not a directory", dir)
	}
	return &FS{root: dir}, nil
}

func (f *FS) resolve(path string) string {
	clean := strings.TrimPrefix(filepath.ToSlash(path), "/")
	return filepath.Join(f.root, filepath.FromSlash(clean))
}

type handle struct {
	*os.File
}

func (h handle) Length() (int64, error) {
	info, err := h.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Open implements himd.Filesystem.
func (f *FS) Open(path string, mode himd.OpenMode) (himd.FileHandle, error) {
	flag := os.O_RDONLY
	if mode == himd.ModeReadWrite {
		flag = os.O_RDWR | os.O_CREATE
	}
	file, err := os.OpenFile(f.resolve(path), flag, 0o644)
	if err != nil {
		return nil, fmt.Errorf("osfs: open %s: %w", path, err)
	}
	return handle{file}, nil
}

// List implements himd.Filesystem.
func (f *FS) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(f.resolve(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("osfs: list %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// Rename implements himd.Filesystem.
func (f *FS) Rename(oldPath, newPath string) error {
	if err := os.Rename(f.resolve(oldPath), f.resolve(newPath)); err != nil {
		return fmt.Errorf("osfs: rename %s -> %s: %w", oldPath, newPath, err)
	}
	return nil
}

// GetSize implements himd.Filesystem.
func (f *FS) GetSize(path string) (int64, error) {
	info, err := os.Stat(f.resolve(path))
	if err != nil {
		return 0, fmt.Errorf("osfs: stat %s: %w", path, err)
	}
	return info.Size(), nil
}

// GetTotalSpace reports the sum of file sizes under the mounted root, since
// a plain directory carries no volume-level free-space metadata the way a
// real HiMD block device does.
func (f *FS) GetTotalSpace() (int64, error) {
	var total int64
	err := filepath.WalkDir(f.root, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("osfs: walk root: %w", err)
	}
	return total, nil
}

// FreeFileRegions punches holes in path by shifting trailing bytes down
// over each freed region and truncating, since a plain file on a regular
// filesystem has no sparse-hole-punch primitive HiMD's block allocator can
// rely on the way a real device's FAT-style allocation table would.
func (f *FS) FreeFileRegions(path string, regions []himd.FileRegion) error {
	full := f.resolve(path)
	file, err := os.OpenFile(full, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("osfs: open %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	size := info.Size()

	for _, r := range regions {
		if r.Offset < 0 || r.Length <= 0 || r.Offset+r.Length > size {
			continue
		}
		tailLen := size - (r.Offset + r.Length)
		if tailLen > 0 {
			buf := make([]byte, tailLen)
			if _, err := file.ReadAt(buf, r.Offset+r.Length); err != nil && err != io.EOF {
				return fmt.Errorf("osfs: read tail: %w", err)
			}
			if _, err := file.WriteAt(buf, r.Offset); err != nil {
				return fmt.Errorf("osfs: shift tail: %w", err)
			}
		}
		size -= r.Length
	}
	if err := file.Truncate(size); err != nil {
		return fmt.Errorf("osfs: truncate %s: %w", path, err)
	}
	return nil
}

// Delete implements himd.Filesystem.
func (f *FS) Delete(path string) error {
	if err := os.Remove(f.resolve(path)); err != nil {
		return fmt.Errorf("osfs: delete %s: %w", path, err)
	}
	return nil
}

// Mkdir implements himd.Filesystem.
func (f *FS) Mkdir(path string) error {
	if err := os.MkdirAll(f.resolve(path), 0o755); err != nil {
		return fmt.Errorf("osfs: mkdir %s: %w", path, err)
	}
	return nil
}

// WipeDisc removes every entry under /HMDHIFI. This is a filesystem-level
// wipe, not a device secure-erase; callers wanting the latter should use
// Disc.Wipe with a real himd.DeviceTransport instead.
func (f *FS) WipeDisc() error {
	if err := os.RemoveAll(f.resolve("/HMDHIFI")); err != nil {
		return fmt.Errorf("osfs: wipe: %w", err)
	}
	return nil
}
