package mp3scan

import (
	"testing"

	"github.com/gohimd/himd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frameHeader returns a standard MPEG-1 Layer III frame header
// for 128kbps/44100Hz/no-padding, matching the ubiquitous "FF FB 90 xx" sync.
func frameHeader(extra byte) []byte {
	return []byte{0xFF, 0xFB, 0x90, extra}
}

func TestFramesFindsSingleFrame(t *testing.T) {
	data := make([]byte, 500)
	copy(data, frameHeader(0x00))

	frames, err := Scanner{}.Frames(data)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, 0, frames[0].Offset)
	assert.Equal(t, 417, frames[0].ByteLength)
	assert.Equal(t, 1152, frames[0].SampleLength)
}

func TestFramesFindsConsecutiveFrames(t *testing.T) {
	data := make([]byte, 900)
	copy(data, frameHeader(0x00))
	copy(data[417:], frameHeader(0x00))

	frames, err := Scanner{}.Frames(data)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, 0, frames[0].Offset)
	assert.Equal(t, 417, frames[1].Offset)
}

func TestFramesSkipsGarbageBeforeSync(t *testing.T) {
	data := make([]byte, 500)
	copy(data[10:], frameHeader(0x00))

	frames, err := Scanner{}.Frames(data)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, 10, frames[0].Offset)
}

func TestFramesRejectsReservedVersion(t *testing.T) {
	data := make([]byte, 500)
	// version bits (b1>>3)&0x3 == 1 is reserved.
	data[0], data[1], data[2], data[3] = 0xFF, 0xE9, 0x90, 0x00
	_, err := Scanner{}.Frames(data)
	assert.Error(t, err)
}

func TestFramesNoSyncReturnsError(t *testing.T) {
	data := make([]byte, 64)
	_, err := Scanner{}.Frames(data)
	assert.Error(t, err)
}

var _ himd.MP3FrameParser = Scanner{}
