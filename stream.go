package himd

import (
	"fmt"
	"io"
)

// TrackAudioReader streams decoded (decrypted or de-obfuscated) frame
// bytes for one track, backed by a FragmentWalker (spec.md §4.3).
type TrackAudioReader struct {
	walker    *FragmentWalker
	trackKey  [8]byte
	codecID   CodecID
	frameSize int
	mpeg      bool
	mp3Key    [4]byte
}

// NewTrackAudioReader wires a FragmentWalker to the appropriate decode
// path for the track's codec. discID and trackNumber are only consulted
// for MPEG tracks, to rederive the MP3 XOR key (spec.md §4.1).
func NewTrackAudioReader(tif *TIF, atdata io.ReadSeeker, track TrackSlot, trackKey [8]byte, discID [16]byte, trackNumber uint32) (*TrackAudioReader, error) {
	mpeg := track.CodecID == CodecATRAC3plusOrMPEG && isMpeg(track.CodecInfo)
	fpb := FramesPerBlock(track.CodecID, track.CodecInfo)
	w, err := NewFragmentWalker(tif, atdata, track.FirstFragment, fpb, mpeg)
	if err != nil {
		return nil, err
	}
	frameSize := BytesPerFrame(track.CodecID, track.CodecInfo)
	return &TrackAudioReader{
		walker:    w,
		trackKey:  trackKey,
		codecID:   track.CodecID,
		frameSize: frameSize,
		mpeg:      mpeg,
		mp3Key:    getMP3EncryptionKey(discID, trackNumber),
	}, nil
}

// NextFrames returns the decoded bytes of the next block's valid frame
// range, or io.EOF when the stream is exhausted.
func (r *TrackAudioReader) NextFrames() ([]byte, error) {
	rec, err := r.walker.Next()
	if err != nil {
		return nil, err
	}
	if r.mpeg {
		return r.decodeMP3Block(rec)
	}
	return r.decodeCipherBlock(rec)
}

func (r *TrackAudioReader) decodeCipherBlock(rec BlockRecord) ([]byte, error) {
	var blockKey, iv [8]byte
	copy(blockKey[:], rec.Raw[blockKeyOff:blockKeyOff+8])
	copy(iv[:], rec.Raw[blockIVOff:blockIVOff+8])
	payload := rec.Raw[blockPayloadOff : blockPayloadOff+HimdAudioSize]

	plain, err := decryptBlock(r.trackKey, rec.Key, blockKey, iv, payload)
	if err != nil {
		return nil, err
	}
	if r.frameSize <= 0 {
		return nil, fmt.Errorf("himd: unknown frame size for codec 0x%02X", byte(r.codecID))
	}
	start := rec.FirstFrame * r.frameSize
	end := (rec.LastFrame + 1) * r.frameSize
	if start < 0 || end > len(plain) || start > end {
		return nil, ErrFrameOutOfRange
	}
	return plain[start:end], nil
}

func (r *TrackAudioReader) decodeMP3Block(rec BlockRecord) ([]byte, error) {
	dataFrames := int(beU16(rec.Raw[blockNFramesOff : blockNFramesOff+2]))
	dataBytes := int(beU16(rec.Raw[blockLenDataOff : blockLenDataOff+2]))
	if dataBytes > HimdAudioSize {
		return nil, ErrBlockDataTooLarge
	}
	if rec.LastFrame >= dataFrames {
		return nil, ErrFrameOutOfRange
	}
	payload := make([]byte, dataBytes)
	copy(payload, rec.Raw[blockPayloadOff:blockPayloadOff+dataBytes])
	xorObfuscate(payload, r.mp3Key)
	return payload, nil
}

// TrackAudioWriter appends newly encrypted or obfuscated blocks to
// ATDATA, tracking the first/last block numbers for the fragment record
// it will produce on Close (spec.md §4.3).
type TrackAudioWriter struct {
	atdata     io.WriteSeeker
	firstBlock uint32
	blockCount uint32
	serial     uint32
	started    bool
}

// NewTrackAudioWriter opens a writer that appends blocks to atdata; each
// block is written at atdata's current end-of-file, and firstBlock is the
// block number the first appended block occupies.
func NewTrackAudioWriter(atdata io.WriteSeeker, firstBlock uint32, startSerial uint32) *TrackAudioWriter {
	return &TrackAudioWriter{atdata: atdata, firstBlock: firstBlock, serial: startSerial}
}

// WriteAndEncryptAudioBlock encrypts payload under the derived block key
// and appends the serialized block to ATDATA.
func (w *TrackAudioWriter) WriteAndEncryptAudioBlock(codecID CodecID, info CodecInfo, trackKey, fragmentKey [8]byte, blockKey, iv [8]byte, payload []byte, nFrames uint16) error {
	if len(payload) != HimdAudioSize {
		return fmt.Errorf("%w: got %d want %d", ErrBlockDataTooLarge, len(payload), HimdAudioSize)
	}
	cipherText, err := encryptBlock(trackKey, fragmentKey, blockKey, iv, payload)
	if err != nil {
		return err
	}
	var b AudioBlock
	b.Type = blockTypeFor(codecID, info)
	b.NFrames = nFrames
	b.MCode = mCodeFor(codecID)
	b.LenData = HimdAudioSize
	b.Serial = w.serial
	b.Key = blockKey
	b.IV = iv
	copy(b.Payload[:], cipherText)
	b.BackupType = b.Type
	b.BackupMCode = b.MCode
	b.BackupSerial = b.Serial

	return w.appendBlock(b)
}

// WriteBlock appends an already-encoded block, whether an obfuscated SMPA
// block from mp3.go's ingest scanner or an encrypted block assembled by
// the orchestrator from a CryptoProvider's output.
func (w *TrackAudioWriter) WriteBlock(b AudioBlock) error {
	return w.appendBlock(b)
}

func (w *TrackAudioWriter) appendBlock(b AudioBlock) error {
	raw := serializeAudioBlock(b)
	if _, err := w.atdata.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("himd: seek atdata end: %w", err)
	}
	if !w.started {
		w.started = true
	}
	if _, err := w.atdata.Write(raw); err != nil {
		return fmt.Errorf("himd: write atdata block: %w", err)
	}
	w.blockCount++
	w.serial++
	return nil
}

// Close returns the {firstBlock, lastBlock} pair for the fragment record
// describing what was written. With no block written, both values are
// firstBlock.
func (w *TrackAudioWriter) Close() (firstBlock, lastBlock uint32) {
	if w.blockCount == 0 {
		return w.firstBlock, w.firstBlock
	}
	return w.firstBlock, w.firstBlock + w.blockCount - 1
}
