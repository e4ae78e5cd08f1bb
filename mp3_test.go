package himd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMP3Parser struct {
	frames []MP3Frame
	err    error
}

func (f fakeMP3Parser) Frames(data []byte) ([]MP3Frame, error) {
	return f.frames, f.err
}

// mp3Header encodes version=MPEG1(3), layer=III(1) and the given bitrate and
// sample-rate indices (9 and 0 give 128kbps at 44100Hz) — same layout
// mp3scan targets.
func mp3Header(bitrateIdx, sampleRateIdx byte) []byte {
	b2 := (bitrateIdx << 4) | (sampleRateIdx << 2)
	return []byte{0xFF, 0xFB, b2, 0x00}
}

func TestIngestMP3SingleFrame(t *testing.T) {
	data := append(mp3Header(9, 0), make([]byte, 6)...)
	parser := fakeMP3Parser{frames: []MP3Frame{{Offset: 0, ByteLength: len(data), SampleLength: 1152}}}

	result, err := IngestMP3(parser, data, 0xAABBCCDD, [4]byte{1, 2, 3, 4}, 5)
	require.NoError(t, err)
	require.Len(t, result.Blocks, 1)
	assert.Equal(t, uint16(1), result.Blocks[0].NFrames)
	assert.Equal(t, uint32(5), result.Blocks[0].Serial)
	assert.Equal(t, uint32(0xAABBCCDD), result.Blocks[0].LowContentID)
	assert.Equal(t, 1, result.TotalFrames)
	assert.Greater(t, result.Duration, 0.0)
}

func TestIngestMP3NoFramesIsError(t *testing.T) {
	parser := fakeMP3Parser{frames: nil}
	_, err := IngestMP3(parser, []byte{0, 0, 0, 0}, 0, [4]byte{}, 0)
	assert.Error(t, err)
}

func TestIngestMP3RejectsOutOfRangeFrame(t *testing.T) {
	data := make([]byte, 10)
	parser := fakeMP3Parser{frames: []MP3Frame{{Offset: 5, ByteLength: 20, SampleLength: 1152}}}
	_, err := IngestMP3(parser, data, 0, [4]byte{}, 0)
	assert.Error(t, err)
}

func TestIngestMP3SetsVariabilityFlagsAndWidensSampleRate(t *testing.T) {
	frame1 := mp3Header(9, 1)  // 48kHz (rank 0, "highest")
	frame2 := mp3Header(10, 0) // 44100Hz (rank 1), different bitrate too
	data := append(append([]byte{}, frame1...), frame2...)
	frames := []MP3Frame{
		{Offset: 0, ByteLength: len(frame1), SampleLength: 1152},
		{Offset: len(frame1), ByteLength: len(frame2), SampleLength: 1152},
	}

	result, err := IngestMP3(fakeMP3Parser{frames: frames}, data, 0, [4]byte{}, 0)
	require.NoError(t, err)

	flags := result.CodecInfo[2]
	assert.NotZero(t, flags&flagBitrate)
	assert.NotZero(t, flags&flagSampleRate)
	assert.NotZero(t, flags&flagAggregated)

	sampleRateIdx := result.CodecInfo[4] >> 6
	assert.Equal(t, byte(1), sampleRateIdx, "48kHz (rank 0) should win over 44100Hz (rank 1)")
}

func TestIngestMP3EmitsMultipleBucketsWhenCapacityExceeded(t *testing.T) {
	frameLen := 100
	nFrames := (HimdAudioSize / frameLen) + 5 // force at least two buckets
	var data []byte
	var frames []MP3Frame
	for i := 0; i < nFrames; i++ {
		h := mp3Header(9, 0)
		frame := append(h, make([]byte, frameLen-len(h))...)
		frames = append(frames, MP3Frame{Offset: len(data), ByteLength: len(frame), SampleLength: 1152})
		data = append(data, frame...)
	}

	result, err := IngestMP3(fakeMP3Parser{frames: frames}, data, 0, [4]byte{}, 1)
	require.NoError(t, err)
	assert.Greater(t, len(result.Blocks), 1)
	for i, b := range result.Blocks {
		assert.Equal(t, uint32(1)+uint32(i), b.Serial)
	}
}
