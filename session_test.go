package himd

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memFile and memFS are a tiny in-memory Filesystem, used instead of
// internal/osfs here to avoid this file (package himd) importing a package
// that itself imports himd.
type memFile struct {
	fs   *memFS
	path string
	pos  int64
}

func (f *memFile) Read(p []byte) (int, error) {
	data := f.fs.files[f.path]
	if f.pos >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(p, data[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *memFile) Write(p []byte) (int, error) {
	data := f.fs.files[f.path]
	end := f.pos + int64(len(p))
	if end > int64(len(data)) {
		grown := make([]byte, end)
		copy(grown, data)
		data = grown
	}
	copy(data[f.pos:end], p)
	f.fs.files[f.path] = data
	f.pos = end
	return len(p), nil
}

func (f *memFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case 0:
		f.pos = offset
	case 1:
		f.pos += offset
	case 2:
		f.pos = int64(len(f.fs.files[f.path])) + offset
	}
	return f.pos, nil
}

func (f *memFile) Close() error { return nil }

func (f *memFile) Length() (int64, error) {
	return int64(len(f.fs.files[f.path])), nil
}

type memFS struct {
	files map[string][]byte
}

func newMemFS() *memFS { return &memFS{files: map[string][]byte{}} }

func (m *memFS) Open(path string, mode OpenMode) (FileHandle, error) {
	if _, ok := m.files[path]; !ok {
		if mode != ModeReadWrite {
			return nil, ErrTrackNotFound
		}
		m.files[path] = nil
	}
	return &memFile{fs: m, path: path}, nil
}

func (m *memFS) List(dir string) ([]string, error) {
	prefix := strings.TrimSuffix(dir, "/") + "/"
	var out []string
	for p := range m.files {
		if rest, ok := strings.CutPrefix(p, prefix); ok && !strings.Contains(rest, "/") {
			out = append(out, rest)
		}
	}
	return out, nil
}

func (m *memFS) Rename(oldPath, newPath string) error {
	data, ok := m.files[oldPath]
	if !ok {
		return ErrTrackNotFound
	}
	m.files[newPath] = data
	delete(m.files, oldPath)
	return nil
}

func (m *memFS) GetSize(path string) (int64, error) {
	data, ok := m.files[path]
	if !ok {
		return 0, ErrTrackNotFound
	}
	return int64(len(data)), nil
}

func (m *memFS) GetTotalSpace() (int64, error) {
	var total int64
	for _, d := range m.files {
		total += int64(len(d))
	}
	return total, nil
}

func (m *memFS) FreeFileRegions(path string, regions []FileRegion) error {
	data, ok := m.files[path]
	if !ok {
		return ErrTrackNotFound
	}
	size := int64(len(data))
	for _, r := range regions {
		if r.Offset < 0 || r.Length <= 0 || r.Offset+r.Length > size {
			continue
		}
		tail := append([]byte(nil), data[r.Offset+r.Length:size]...)
		copy(data[r.Offset:], tail)
		size -= r.Length
	}
	m.files[path] = data[:size]
	return nil
}
func (m *memFS) Delete(path string) error {
	if _, ok := m.files[path]; !ok {
		return ErrTrackNotFound
	}
	delete(m.files, path)
	return nil
}
func (m *memFS) Mkdir(path string) error { return nil }
func (m *memFS) WipeDisc() error         { return ErrUnsupportedOperation }

func buildSyntheticMclist(t *testing.T, discID [16]byte) []byte {
	t.Helper()
	buf := make([]byte, mclistOffset+maclistTableSize)
	putBeU32(buf[mclistEkbOffset:], currentEkb)

	root, err := ekbRootFor(currentEkb)
	require.NoError(t, err)
	headCipher, err := tripleDESECBEncrypt(root[:], make([]byte, 16))
	require.NoError(t, err)
	copy(buf[mclistHeadKeyOffset:mclistHeadKeyOffset+16], headCipher)
	bodyCipher, err := tripleDESECBEncrypt(root[:], make([]byte, 16))
	require.NoError(t, err)
	copy(buf[mclistBodyKeyOffset:mclistBodyKeyOffset+16], bodyCipher)

	copy(buf[mclistDiscIDOffset:mclistDiscIDOffset+16], discID[:])
	return buf
}

func TestOpenSessionWithoutTransportLoadsMaclist(t *testing.T) {
	var discID [16]byte
	copy(discID[:], "0123456789ABCDEF")
	mclist := buildSyntheticMclist(t, discID)

	sess, err := OpenSession(context.Background(), nil, discID, mclist)
	require.NoError(t, err)
	assert.False(t, sess.hasDevice)
	assert.Equal(t, [16]byte{}, sess.headKey)
}

func TestOpenSessionRejectsWrongEkb(t *testing.T) {
	var discID [16]byte
	mclist := buildSyntheticMclist(t, discID)
	putBeU32(mclist[mclistEkbOffset:], 0xDEADBEEF)

	_, err := OpenSession(context.Background(), nil, discID, mclist)
	assert.ErrorIs(t, err, ErrEkbMismatch)
}

func TestOpenSessionRejectsShortMaclist(t *testing.T) {
	_, err := OpenSession(context.Background(), nil, [16]byte{}, make([]byte, 10))
	assert.ErrorIs(t, err, ErrInvalidTrackIndex)
}

func TestCreateAndSignNewTrackRecordsMac(t *testing.T) {
	var discID [16]byte
	mclist := buildSyntheticMclist(t, discID)
	sess, err := OpenSession(context.Background(), nil, discID, mclist)
	require.NoError(t, err)

	track, trackKey, err := sess.CreateAndSignNewTrack(TrackSlot{}, 1)
	require.NoError(t, err)
	assert.NotEqual(t, [8]byte{}, trackKey)
	assert.Equal(t, uint16(1), track.TrackNumber)
	assert.Equal(t, currentEkb, track.EkbNumber)

	off := 0
	assert.Equal(t, track.TrackMAC[:], sess.allMacs[off:off+8])
	assert.Equal(t, 1, sess.signedTracks)
}

func TestCreateAndSignNewTrackRejectsOutOfRangeTrackNumber(t *testing.T) {
	var discID [16]byte
	mclist := buildSyntheticMclist(t, discID)
	sess, err := OpenSession(context.Background(), nil, discID, mclist)
	require.NoError(t, err)

	_, _, err = sess.CreateAndSignNewTrack(TrackSlot{}, 0)
	assert.Error(t, err)
}

func TestFinalizeSessionRotatesGenerationAndWritesMclist(t *testing.T) {
	var discID [16]byte
	copy(discID[:], "0123456789ABCDEF")
	mclist := buildSyntheticMclist(t, discID)

	fs := newMemFS()
	fs.files[generationPath("ATDATA", 0)] = []byte("atdata")
	fs.files[generationPath("MCLIST", 0)] = mclist
	fs.files[generationPath("TRKIDX", 0)] = []byte("trkidx")

	sess, err := OpenSession(context.Background(), nil, discID, mclist)
	require.NoError(t, err)

	require.NoError(t, sess.FinalizeSession(context.Background(), fs, 0))

	newMclist, ok := fs.files[generationPath("MCLIST", 1)]
	require.True(t, ok)
	assert.Equal(t, discID[:], newMclist[mclistDiscIDOffset:mclistDiscIDOffset+16])

	_, stillThere := fs.files[generationPath("ATDATA", 0)]
	assert.False(t, stillThere, "rotation should move the old generation file")
}
