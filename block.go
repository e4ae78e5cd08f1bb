package himd

import (
	"fmt"
	"io"
)

// Physical sizes of an ATDATA block (spec.md §3.3).
const (
	HimdBlockSize = 16384
	HimdAudioSize = 0x3FC0

	blockTypeOff       = 0
	blockNFramesOff    = 4
	blockMCodeOff      = 6
	blockLenDataOff    = 8
	blockSerialOff     = 12
	blockKeyOff        = 16
	blockIVOff         = 24
	blockPayloadOff    = 32
	blockBackupTypeOff = 16368
	blockBackupMCodeOff = 16374
	blockLowContentIDOff = 16376
	blockBackupSerialOff = 16380
)

var (
	blockTypeSMPA  = [4]byte{'S', 'M', 'P', 'A'}
	blockTypeA3D   = [4]byte{'A', '3', 'D', ' '}
	blockTypeATX   = [4]byte{'A', 'T', 'X', ' '}
	blockTypeLPCM  = [4]byte{'L', 'P', 'C', 'M'}
)

const (
	mCodeStandard uint16 = 3
	mCodeLPCM     uint16 = 0x0124
)

// AudioBlock is the logical decoding of one 16384-byte ATDATA block
// (spec.md §3.3).
type AudioBlock struct {
	Type         [4]byte
	NFrames      uint16
	MCode        uint16
	LenData      uint16
	Serial       uint32
	Key          [8]byte
	IV           [8]byte
	Payload      [HimdAudioSize]byte
	BackupType   [4]byte
	BackupMCode  uint16
	LowContentID uint32
	BackupSerial uint32
}

// parseAudioBlock decodes a raw HimdBlockSize-byte block. It uses
// endibuf.Reader the way loadHeader in hca_header.go walks a sequential
// chunk layout, seeking over the small reserved gaps between fields.
func parseAudioBlock(raw []byte) (AudioBlock, error) {
	if len(raw) != HimdBlockSize {
		return AudioBlock{}, fmt.Errorf("%w: block is %d bytes, want %d", ErrBlockDataTooLarge, len(raw), HimdBlockSize)
	}
	r := newBEReader(raw)

	var b AudioBlock
	copy(b.Type[:], raw[blockTypeOff:blockTypeOff+4])
	if _, err := r.Seek(blockNFramesOff, io.SeekStart); err != nil {
		return AudioBlock{}, fmt.Errorf("himd: read block type: %w", err)
	}
	nFrames, err := r.ReadUint16()
	if err != nil {
		return AudioBlock{}, err
	}
	mCode, err := r.ReadUint16()
	if err != nil {
		return AudioBlock{}, err
	}
	lendata, err := r.ReadUint16()
	if err != nil {
		return AudioBlock{}, err
	}
	b.NFrames, b.MCode, b.LenData = nFrames, mCode, lendata

	if _, err := r.Seek(blockSerialOff, io.SeekStart); err != nil {
		return AudioBlock{}, err
	}
	b.Serial = beU32(raw[blockSerialOff : blockSerialOff+4])
	copy(b.Key[:], raw[blockKeyOff:blockKeyOff+8])
	copy(b.IV[:], raw[blockIVOff:blockIVOff+8])
	copy(b.Payload[:], raw[blockPayloadOff:blockPayloadOff+HimdAudioSize])
	copy(b.BackupType[:], raw[blockBackupTypeOff:blockBackupTypeOff+4])
	b.BackupMCode = beU16(raw[blockBackupMCodeOff : blockBackupMCodeOff+2])
	b.LowContentID = beU32(raw[blockLowContentIDOff : blockLowContentIDOff+4])
	b.BackupSerial = beU32(raw[blockBackupSerialOff : blockBackupSerialOff+4])
	return b, nil
}

// serializeAudioBlock renders b into a fresh HimdBlockSize-byte buffer
// using an endibuf.Writer, stamping the mirrored backup fields the way a
// real HiMD block carries redundancy for crash recovery. The reserved gaps
// between the payload and the backup fields are written out as zero bytes
// the same way wave_gen.go pads its sub-chunks between fields.
func serializeAudioBlock(b AudioBlock) []byte {
	buf, w := newBEWriter()
	w.WriteBytes(b.Type[:])
	w.WriteUint16(b.NFrames)
	w.WriteUint16(b.MCode)
	w.WriteUint16(b.LenData)
	w.WriteBytes(make([]byte, blockSerialOff-(blockLenDataOff+2)))
	w.WriteUint32(b.Serial)
	w.WriteBytes(b.Key[:])
	w.WriteBytes(b.IV[:])
	w.WriteBytes(b.Payload[:])
	w.WriteBytes(make([]byte, blockBackupTypeOff-(blockPayloadOff+HimdAudioSize)))
	w.WriteBytes(b.BackupType[:])
	w.WriteBytes(make([]byte, blockBackupMCodeOff-(blockBackupTypeOff+len(b.BackupType))))
	w.WriteUint16(b.BackupMCode)
	w.WriteUint32(b.LowContentID)
	w.WriteUint32(b.BackupSerial)
	return buf.Bytes()
}

// blockTypeFor returns the 4-byte block tag for a codec (spec.md §3.3
// glossary: SMPA/A3D/ATX/LPCM).
func blockTypeFor(codecID CodecID, info CodecInfo) [4]byte {
	switch {
	case codecID == CodecLPCM:
		return blockTypeLPCM
	case codecID == CodecATRAC3:
		return blockTypeA3D
	case codecID == CodecATRAC3plusOrMPEG && isMpeg(info):
		return blockTypeSMPA
	default:
		return blockTypeATX
	}
}

func mCodeFor(codecID CodecID) uint16 {
	if codecID == CodecLPCM {
		return mCodeLPCM
	}
	return mCodeStandard
}

// xorObfuscate XORs data with a repeating 4-byte key over the first
// (n &^ 7) bytes, per spec.md §3.3/§4.3's MP3 payload masking.
func xorObfuscate(data []byte, key [4]byte) {
	n := len(data) &^ 7
	for i := 0; i < n; i++ {
		data[i] ^= key[i%4]
	}
}

// FragmentWalker is a pull-based cursor over the blocks belonging to a
// track's fragment chain (spec.md §4.3, §9's "coroutine/async" note:
// implemented here as an explicit iterator rather than a goroutine, to
// preserve simple single-threaded backpressure).
type FragmentWalker struct {
	tif           *TIF
	atdata        io.ReadSeeker
	fragments     []FragmentSlot
	framesPerBlk  int
	isMpeg        bool

	fragIdx    int
	blockNum   int
	done       bool
}

// BlockRecord is one step of a FragmentWalker: the raw block bytes plus
// the range of valid frames within it.
type BlockRecord struct {
	Raw        []byte
	Key        [8]byte // fragment key in force for this block
	FirstFrame int
	LastFrame  int
}

// NewFragmentWalker builds a walker over the fragments (in chain order)
// of one track (spec.md §4.3).
func NewFragmentWalker(tif *TIF, atdata io.ReadSeeker, firstFragment uint16, framesPerBlock int, mpeg bool) (*FragmentWalker, error) {
	idxs, err := tif.Fragments(firstFragment)
	if err != nil {
		return nil, err
	}
	frags := make([]FragmentSlot, len(idxs))
	for i, idx := range idxs {
		frags[i] = tif.GetFragment(idx)
	}
	w := &FragmentWalker{
		tif:          tif,
		atdata:       atdata,
		fragments:    frags,
		framesPerBlk: framesPerBlock,
		isMpeg:       mpeg,
	}
	if len(frags) == 0 {
		w.done = true
		return w, nil
	}
	w.blockNum = int(frags[0].FirstBlock)
	return w, nil
}

// Next returns the next block record, or io.EOF once every fragment has
// been consumed.
func (w *FragmentWalker) Next() (BlockRecord, error) {
	if w.done {
		return BlockRecord{}, io.EOF
	}
	frag := w.fragments[w.fragIdx]

	firstFrame := 0
	if w.blockNum == int(frag.FirstBlock) {
		firstFrame = int(frag.FirstFrame)
		if _, err := w.atdata.Seek(int64(w.blockNum)*HimdBlockSize, io.SeekStart); err != nil {
			return BlockRecord{}, fmt.Errorf("himd: seek atdata: %w", err)
		}
	}

	raw := make([]byte, HimdBlockSize)
	if _, err := io.ReadFull(w.atdata, raw); err != nil {
		return BlockRecord{}, fmt.Errorf("himd: read atdata block: %w", err)
	}

	lastFrame := w.framesPerBlk - 1
	if w.isMpeg {
		lastFrame = int(beU16(raw[blockNFramesOff:blockNFramesOff+2])) - 1
	}
	atLast := w.blockNum == int(frag.LastBlock)
	if atLast {
		lastFrame = int(frag.LastFrame)
		if w.isMpeg {
			lastFrame--
		}
	}
	if lastFrame < firstFrame {
		return BlockRecord{}, ErrLastFrameBeforeFirstFrame
	}

	rec := BlockRecord{Raw: raw, Key: frag.Key, FirstFrame: firstFrame, LastFrame: lastFrame}

	if atLast {
		w.fragIdx++
		if w.fragIdx >= len(w.fragments) {
			w.done = true
		} else {
			w.blockNum = int(w.fragments[w.fragIdx].FirstBlock)
		}
	} else {
		w.blockNum++
	}
	return rec, nil
}
