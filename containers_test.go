package himd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteOMAHeaderStampsCodecAndInfo(t *testing.T) {
	var buf bytes.Buffer
	info := CodecInfo{0xAA, 0xBB, 0xCC}
	require.NoError(t, WriteOMAHeader(&buf, CodecATRAC3, info))

	got := buf.Bytes()
	require.Len(t, got, 96)
	assert.Equal(t, []byte("EA3\x01"), got[0:4])
	assert.Equal(t, byte(CodecATRAC3), got[32])
	assert.Equal(t, info[0:3], got[33:36])
}

func TestWriteWAVHeaderFieldsAndByteSwap(t *testing.T) {
	var buf bytes.Buffer
	// two big-endian 16-bit samples: 0x0102 and 0x0304
	require.NoError(t, WriteWAV(&buf, 44100, []byte{0x01, 0x02, 0x03, 0x04}))

	out := buf.Bytes()
	require.Len(t, out, 44+4)
	assert.Equal(t, "RIFF", string(out[0:4]))
	assert.Equal(t, "WAVE", string(out[8:12]))
	assert.Equal(t, "data", string(out[36:40]))
	// swapped to little-endian
	assert.Equal(t, []byte{0x02, 0x01, 0x04, 0x03}, out[44:48])
}

func TestWriteID3v2SkipsEmptyFields(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteID3v2(&buf, ID3Tags{Title: "Song"}))

	out := buf.Bytes()
	assert.Equal(t, "ID3", string(out[0:3]))
	assert.NotContains(t, string(out), "TALB")
	assert.Contains(t, string(out), "TIT2")
	assert.Contains(t, string(out), "Song")
}

func TestWriteMP3ExportConcatenatesTagsAndFrames(t *testing.T) {
	var buf bytes.Buffer
	frames := []byte{0xFF, 0xFB, 0x90, 0x00}
	require.NoError(t, WriteMP3Export(&buf, ID3Tags{Title: "T"}, frames))

	out := buf.Bytes()
	assert.Equal(t, frames, out[len(out)-len(frames):])
}
