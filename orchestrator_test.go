package himd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrchestratorDisc(t *testing.T, discID [16]byte) (*Disc, *memFS) {
	t.Helper()
	fs := newMemFS()

	image := newEmptyTIF().Bytes()
	fs.files[generationPath("TRKIDX", 0)] = image
	fs.files[generationPath("MCLIST", 0)] = buildSyntheticMclist(t, discID)
	fs.files[generationPath("ATDATA", 0)] = []byte{}

	d, err := OpenDisc(fs, nil, nil)
	require.NoError(t, err)
	return d, fs
}

func TestListTracksEmptyDisc(t *testing.T) {
	d, _ := newOrchestratorDisc(t, [16]byte{})
	tracks, err := d.ListTracks()
	require.NoError(t, err)
	assert.Empty(t, tracks)
}

func TestRenameDiscSetsGroupZeroTitle(t *testing.T) {
	d, _ := newOrchestratorDisc(t, [16]byte{})
	require.NoError(t, d.RenameDisc("My Disc"))
	got, err := d.tif.DiscTitle()
	require.NoError(t, err)
	assert.Equal(t, "My Disc", got)
}

func TestUploadMP3ThenListAndRename(t *testing.T) {
	d, _ := newOrchestratorDisc(t, [16]byte{})

	data := append(mp3Header(9, 0), make([]byte, 100)...)
	parser := fakeMP3Parser{frames: []MP3Frame{{Offset: 0, ByteLength: len(data), SampleLength: 1152}}}

	result, err := d.UploadMP3(parser, data, "Title", "Artist", "Album", 0x1)
	require.NoError(t, err)
	assert.Equal(t, 0, result.TrackIndex)

	tracks, err := d.ListTracks()
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "Title", tracks[0].Title)
	assert.Equal(t, "Artist", tracks[0].Artist)
	assert.Equal(t, "Album", tracks[0].Album)
	assert.Equal(t, CodecATRAC3plusOrMPEG, tracks[0].CodecID)

	require.NoError(t, d.RenameTrack(0, FieldTitle, "Renamed"))
	tracks, err = d.ListTracks()
	require.NoError(t, err)
	assert.Equal(t, "Renamed", tracks[0].Title)
}

func TestUploadAudioTrackThenDumpRoundtrip(t *testing.T) {
	var discID [16]byte
	copy(discID[:], "0123456789ABCDEF")
	d, _ := newOrchestratorDisc(t, discID)

	sess, err := d.OpenSession(context.Background())
	require.NoError(t, err)

	_, info, err := GenerateCodecInfo(CodecATRAC3, 384, 2, 44100)
	require.NoError(t, err)
	frameSize := BytesPerFrame(CodecATRAC3, info)
	rawData := make([]byte, frameSize*8)
	for i := range rawData {
		rawData[i] = byte(i)
	}

	result, err := d.UploadAudioTrack(sess, CodecATRAC3, info, rawData, "T", "A", "Al")
	require.NoError(t, err)
	assert.Equal(t, 0, result.TrackIndex)
	assert.NotEqual(t, [8]byte{}, result.TrackKey)

	require.NoError(t, d.Flush())

	var out bytes.Buffer
	require.NoError(t, d.DumpTrack(&out, 0, result.TrackKey, ID3Tags{Title: "T"}))
	assert.NotEmpty(t, out.Bytes())
	// EA3 container header for a non-MPEG, non-LPCM codec.
	assert.Equal(t, "EA3\x01", out.String()[:4])
}

func TestDeleteTracksRemovesAndCompacts(t *testing.T) {
	d, _ := newOrchestratorDisc(t, [16]byte{})

	for i := 0; i < 2; i++ {
		data := append(mp3Header(9, 0), make([]byte, 100)...)
		parser := fakeMP3Parser{frames: []MP3Frame{{Offset: 0, ByteLength: len(data), SampleLength: 1152}}}
		_, err := d.UploadMP3(parser, data, "T", "", "", uint32(i))
		require.NoError(t, err)
	}

	tracks, err := d.ListTracks()
	require.NoError(t, err)
	require.Len(t, tracks, 2)

	require.NoError(t, d.DeleteTracks([]int{0}))

	tracks, err = d.ListTracks()
	require.NoError(t, err)
	require.Len(t, tracks, 1)
}

func TestWipeWithoutTransportIsUnsupported(t *testing.T) {
	d, _ := newOrchestratorDisc(t, [16]byte{})
	err := d.Wipe(context.Background())
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
}
