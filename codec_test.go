package himd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCodecInfoATRAC3RoundtripsFrameSize(t *testing.T) {
	id, info, err := GenerateCodecInfo(CodecATRAC3, 384, 2, 44100)
	require.NoError(t, err)
	assert.Equal(t, CodecATRAC3, id)
	assert.Equal(t, 384, BytesPerFrame(id, info))
	assert.Equal(t, 44100, SampleRate(id, info))
	assert.Equal(t, 1024, SamplesPerFrame(id, info))
}

func TestGenerateCodecInfoATRAC3plusRoundtripsFrameSize(t *testing.T) {
	id, info, err := GenerateCodecInfo(CodecATRAC3plusOrMPEG, 512, 2, 44100)
	require.NoError(t, err)
	assert.Equal(t, CodecATRAC3plusOrMPEG, id)
	assert.Equal(t, 512, BytesPerFrame(id, info))
	assert.False(t, isMpeg(info))
	assert.Equal(t, 2048, SamplesPerFrame(id, info))
}

func TestGenerateCodecInfoLPCM(t *testing.T) {
	id, info, err := GenerateCodecInfo(CodecLPCM, 0, 2, 44100)
	require.NoError(t, err)
	assert.Equal(t, CodecLPCM, id)
	assert.Equal(t, 64, BytesPerFrame(id, info))
	assert.Equal(t, 44100, SampleRate(id, info))
}

func TestGenerateCodecInfoRejectsUnsupportedRate(t *testing.T) {
	_, _, err := GenerateCodecInfo(CodecATRAC3, 384, 2, 12345)
	assert.Error(t, err)
}

func TestFramesPerBlockZeroForMPEG(t *testing.T) {
	var info CodecInfo
	info[0] = 0b11 // marks MPEG
	assert.Equal(t, 0, FramesPerBlock(CodecATRAC3plusOrMPEG, info))
}

func TestFramesPerBlockLPCM(t *testing.T) {
	assert.Equal(t, HimdAudioSize/64, FramesPerBlock(CodecLPCM, CodecInfo{}))
}
