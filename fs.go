package himd

import (
	"fmt"
	"io"
	"strings"
)

// OpenMode selects how Filesystem.Open treats a path (spec.md §6).
type OpenMode int

const (
	ModeReadOnly OpenMode = iota
	ModeReadWrite
)

// FileRegion is a byte range within a file, used by Filesystem.FreeFileRegions.
type FileRegion struct {
	Offset int64
	Length int64
}

// FileHandle is a seekable file handle, matching adriagipas-imgcp's
// FileReader/FileWriter split but unified since HiMD's core always needs
// both directions on the same handle.
type FileHandle interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
	Length() (int64, error)
}

// Filesystem is the external storage collaborator spec.md §6 requires.
// Paths are case-insensitive; implementations are expected to canonicalise
// via a case-folding resolver such as resolveCaseInsensitive.
type Filesystem interface {
	Open(path string, mode OpenMode) (FileHandle, error)
	List(dir string) ([]string, error)
	Rename(oldPath, newPath string) error
	GetSize(path string) (int64, error)
	GetTotalSpace() (int64, error)

	// FreeFileRegions, Delete, Mkdir and WipeDisc are optional; drivers
	// that do not support them return ErrUnsupportedOperation.
	FreeFileRegions(path string, regions []FileRegion) error
	Delete(path string) error
	Mkdir(path string) error
	WipeDisc() error
}

// resolveCaseInsensitive finds the actual on-disk name matching want
// (case-insensitively) among the entries returned by list, per spec.md
// §6's case-folding resolver requirement. It returns want unchanged if no
// case-insensitive match is found, so callers creating a new file still
// get a sensible path.
func resolveCaseInsensitive(entries []string, want string) string {
	for _, e := range entries {
		if strings.EqualFold(e, want) {
			return e
		}
	}
	return want
}

// generationPath builds the canonical "/HMDHIFI/<name><NN>.HMA" path for
// one of the three core files at a given generation slot (spec.md §4.7).
// NN is two hex digits, since dataNum ranges over newGen % 16 (0-15).
func generationPath(name string, dataNum uint32) string {
	return fmt.Sprintf("/HMDHIFI/%s%02X.HMA", name, dataNum)
}
