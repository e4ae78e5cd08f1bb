package himd

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memBuf is a minimal io.ReadWriteSeeker backed by a growable byte slice,
// standing in for an ATDATA file handle.
type memBuf struct {
	data []byte
	pos  int64
}

func (b *memBuf) Read(p []byte) (int, error) {
	if b.pos >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += int64(n)
	return n, nil
}

func (b *memBuf) Write(p []byte) (int, error) {
	end := b.pos + int64(len(p))
	if end > int64(len(b.data)) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:end], p)
	b.pos = end
	return len(p), nil
}

func (b *memBuf) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		b.pos = offset
	case io.SeekCurrent:
		b.pos += offset
	case io.SeekEnd:
		b.pos = int64(len(b.data)) + offset
	}
	return b.pos, nil
}

func TestTrackAudioWriterThenReaderRoundtrip(t *testing.T) {
	_, info, err := GenerateCodecInfo(CodecATRAC3, 384, 2, 44100)
	require.NoError(t, err)
	framesPerBlock := FramesPerBlock(CodecATRAC3, info)
	require.Greater(t, framesPerBlock, 0)

	var trackKey, fragKey, blockKey, iv [8]byte
	copy(trackKey[:], "trackkey")
	copy(fragKey[:], "fragmnts")
	copy(blockKey[:], "blockkey")
	copy(iv[:], "ivbytes8")

	payload := make([]byte, HimdAudioSize)
	for i := range payload {
		payload[i] = byte(i)
	}

	buf := &memBuf{}
	writer := NewTrackAudioWriter(buf, 0, 1)
	require.NoError(t, writer.WriteAndEncryptAudioBlock(CodecATRAC3, info, trackKey, fragKey, blockKey, iv, payload, uint16(framesPerBlock)))
	first, last := writer.Close()
	assert.Equal(t, uint32(0), first)
	assert.Equal(t, uint32(0), last)

	tif := newEmptyTIF()
	fragIdx, err := tif.AddFragment(FragmentSlot{
		Key:        fragKey,
		FirstBlock: 0,
		LastBlock:  0,
		FirstFrame: 0,
		LastFrame:  byte(framesPerBlock - 1),
	})
	require.NoError(t, err)

	track := TrackSlot{CodecID: CodecATRAC3, CodecInfo: info, FirstFragment: uint16(fragIdx)}
	reader, err := NewTrackAudioReader(tif, buf, track, trackKey, [16]byte{}, 1)
	require.NoError(t, err)

	got, err := reader.NextFrames()
	require.NoError(t, err)

	frameSize := BytesPerFrame(CodecATRAC3, info)
	want := payload[:framesPerBlock*frameSize]
	assert.Equal(t, want, got)

	_, err = reader.NextFrames()
	assert.ErrorIs(t, err, io.EOF)
}

func TestTrackAudioWriterCloseWithNoBlocksReturnsFirstBlockTwice(t *testing.T) {
	buf := &memBuf{}
	w := NewTrackAudioWriter(buf, 5, 1)
	first, last := w.Close()
	assert.Equal(t, uint32(5), first)
	assert.Equal(t, uint32(5), last)
}

func TestWriteAndEncryptAudioBlockRejectsWrongPayloadSize(t *testing.T) {
	buf := &memBuf{}
	w := NewTrackAudioWriter(buf, 0, 1)
	err := w.WriteAndEncryptAudioBlock(CodecATRAC3, CodecInfo{}, [8]byte{}, [8]byte{}, [8]byte{}, [8]byte{}, []byte{1, 2, 3}, 1)
	assert.ErrorIs(t, err, ErrBlockDataTooLarge)
}
