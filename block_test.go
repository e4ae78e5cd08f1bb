package himd

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudioBlockMarshalRoundtrip(t *testing.T) {
	want := AudioBlock{
		Type:         blockTypeA3D,
		NFrames:      12,
		MCode:        mCodeStandard,
		LenData:      HimdAudioSize,
		Serial:       99,
		Key:          [8]byte{1, 2, 3, 4, 5, 6, 7, 8},
		IV:           [8]byte{8, 7, 6, 5, 4, 3, 2, 1},
		BackupType:   blockTypeA3D,
		BackupMCode:  mCodeStandard,
		LowContentID: 0xDEADBEEF,
		BackupSerial: 99,
	}
	for i := range want.Payload {
		want.Payload[i] = byte(i)
	}

	raw := serializeAudioBlock(want)
	got, err := parseAudioBlock(raw)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParseAudioBlockRejectsWrongSize(t *testing.T) {
	_, err := parseAudioBlock(make([]byte, 100))
	assert.ErrorIs(t, err, ErrBlockDataTooLarge)
}

func TestXorObfuscateIsInvolution(t *testing.T) {
	key := [4]byte{0xAA, 0xBB, 0xCC, 0xDD}
	data := make([]byte, 32)
	for i := range data {
		data[i] = byte(i * 7)
	}
	original := append([]byte(nil), data...)

	xorObfuscate(data, key)
	assert.NotEqual(t, original, data)
	xorObfuscate(data, key)
	assert.Equal(t, original, data)
}

func TestBlockTypeForCodecs(t *testing.T) {
	assert.Equal(t, blockTypeLPCM, blockTypeFor(CodecLPCM, CodecInfo{}))
	assert.Equal(t, blockTypeA3D, blockTypeFor(CodecATRAC3, CodecInfo{}))
	assert.Equal(t, blockTypeATX, blockTypeFor(CodecATRAC3plusOrMPEG, CodecInfo{}))

	var mpegInfo CodecInfo
	mpegInfo[0] = 0b11
	assert.Equal(t, blockTypeSMPA, blockTypeFor(CodecATRAC3plusOrMPEG, mpegInfo))
}

func TestFragmentWalkerSingleFragmentTwoBlocks(t *testing.T) {
	tif := newEmptyTIF()
	fragKey := [8]byte{9, 9, 9, 9, 9, 9, 9, 9}
	fragIdx, err := tif.AddFragment(FragmentSlot{
		Key:        fragKey,
		FirstBlock: 0,
		LastBlock:  1,
		FirstFrame: 0,
		LastFrame:  0, // one valid frame in the last block
	})
	require.NoError(t, err)

	block0 := AudioBlock{Type: blockTypeA3D}
	block1 := AudioBlock{Type: blockTypeA3D}
	buf := bytes.NewReader(append(serializeAudioBlock(block0), serializeAudioBlock(block1)...))

	w, err := NewFragmentWalker(tif, buf, uint16(fragIdx), 2, false)
	require.NoError(t, err)

	rec0, err := w.Next()
	require.NoError(t, err)
	assert.Equal(t, fragKey, rec0.Key)
	assert.Equal(t, 0, rec0.FirstFrame)
	assert.Equal(t, 1, rec0.LastFrame)

	rec1, err := w.Next()
	require.NoError(t, err)
	assert.Equal(t, 0, rec1.FirstFrame)
	assert.Equal(t, 0, rec1.LastFrame)

	_, err = w.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFragmentWalkerEmptyChainIsImmediatelyDone(t *testing.T) {
	tif := newEmptyTIF()
	w, err := NewFragmentWalker(tif, bytes.NewReader(nil), 0, 2, false)
	require.NoError(t, err)
	_, err = w.Next()
	assert.ErrorIs(t, err, io.EOF)
}
