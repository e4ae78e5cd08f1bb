package himd

import "fmt"

// MP3Frame is the boundary information the external MP3 frame parser
// hands back per frame (spec.md §6): where the frame starts, how many
// bytes it occupies, and how many PCM samples it decodes to.
type MP3Frame struct {
	Offset       int
	ByteLength   int
	SampleLength int
}

// MP3FrameParser is the external collaborator spec.md §6 requires: real
// frame-boundary detection (free-format bitrates, CRC handling, Xing/VBRI
// header skipping) lives outside this package.
type MP3FrameParser interface {
	// Frames returns every audio frame boundary found in data.
	Frames(data []byte) ([]MP3Frame, error)
}

// mp3VariabilityFlags mirrors spec.md §4.5 step 2's per-field bits.
const (
	flagVersion  byte = 1 << 0
	flagLayer    byte = 1 << 1
	flagBitrate  byte = 1 << 2
	flagSampleRate byte = 1 << 3
	flagChannelMode byte = 1 << 4
	flagPreEmphasis byte = 1 << 5
	// flagAggregated (0x80) marks the descriptor as a scanned aggregate
	// rather than a single frame's literal header; it is always set,
	// which is why spec.md's scenario 3 expects flags == 0x80 even for a
	// single, internally-consistent frame.
	flagAggregated byte = 1 << 7
)

// sampleRateRank implements spec.md §4.5's "1 denotes 48 kHz and is
// considered highest" ordering for the widen-to-min rule: rank 0 sorts
// first (best), so keeping the minimum rank keeps 48 kHz over 44.1 kHz
// over 32 kHz whenever frames disagree.
var sampleRateRank = [4]byte{1, 0, 2, 3}

// mp3IngestResult is the aggregate produced by IngestMP3.
type mp3IngestResult struct {
	Blocks      []AudioBlock
	CodecInfo   CodecInfo
	Duration    float64
	TotalFrames int
}

type mp3HeaderFields struct {
	version       byte
	layer         byte
	bitrateIndex  byte
	sampleRateIdx byte
	channelMode   byte
	preEmphasis   byte
}

func parseMP3HeaderFields(frameHeader []byte) (mp3HeaderFields, error) {
	if len(frameHeader) < 4 {
		return mp3HeaderFields{}, fmt.Errorf("himd: mp3 frame header truncated")
	}
	b1, b2, b3 := frameHeader[1], frameHeader[2], frameHeader[3]
	return mp3HeaderFields{
		version:       (b1 >> 3) & 0x3,
		layer:         (b1 >> 1) & 0x3,
		bitrateIndex:  (b2 >> 4) & 0xF,
		sampleRateIdx: (b2 >> 2) & 0x3,
		channelMode:   (b3 >> 6) & 0x3,
		preEmphasis:   b3 & 0x3,
	}, nil
}

// IngestMP3 scans a complete MP3 byte buffer, packing frames into
// HimdAudioSize (16 320-byte) SMPA buckets (spec.md §4.5). contentIDLow32 becomes the
// lo32ContentId stamped in each emitted block; mp3Key obfuscates the
// payload before it is written, and startSerial seeds the ascending
// per-block serial number.
func IngestMP3(parser MP3FrameParser, data []byte, contentIDLow32 uint32, mp3Key [4]byte, startSerial uint32) (mp3IngestResult, error) {
	frames, err := parser.Frames(data)
	if err != nil {
		return mp3IngestResult{}, fmt.Errorf("himd: mp3 frame scan: %w", err)
	}
	if len(frames) == 0 {
		return mp3IngestResult{}, fmt.Errorf("himd: mp3 data contains no frames")
	}

	var (
		agg        mp3HeaderFields
		flags      = flagAggregated
		haveFirst  bool
		blocks     []AudioBlock
		bucket     []byte
		bucketFrames uint16
		serial     = startSerial
		totalSamples int
	)

	emit := func() {
		if len(bucket) == 0 {
			return
		}
		payload := make([]byte, len(bucket))
		copy(payload, bucket)
		xorObfuscate(payload, mp3Key)

		var b AudioBlock
		b.Type = blockTypeSMPA
		b.NFrames = bucketFrames
		b.MCode = mCodeStandard
		b.LenData = uint16(len(payload))
		b.Serial = serial
		copy(b.Payload[:len(payload)], payload)
		b.BackupType = b.Type
		b.BackupMCode = b.MCode
		b.LowContentID = contentIDLow32
		b.BackupSerial = serial

		blocks = append(blocks, b)
		serial++
		bucket = nil
		bucketFrames = 0
	}

	for _, fr := range frames {
		if fr.Offset < 0 || fr.Offset+4 > len(data) || fr.ByteLength <= 0 || fr.Offset+fr.ByteLength > len(data) {
			return mp3IngestResult{}, fmt.Errorf("himd: mp3 frame at offset %d out of range", fr.Offset)
		}
		fields, err := parseMP3HeaderFields(data[fr.Offset:])
		if err != nil {
			return mp3IngestResult{}, err
		}

		if !haveFirst {
			agg = fields
			haveFirst = true
		} else {
			if fields.version != agg.version {
				flags |= flagVersion
				if fields.version < agg.version {
					agg.version = fields.version
				}
			}
			if fields.layer != agg.layer {
				flags |= flagLayer
				if fields.layer < agg.layer {
					agg.layer = fields.layer
				}
			}
			if fields.bitrateIndex != agg.bitrateIndex {
				flags |= flagBitrate
				if fields.bitrateIndex > agg.bitrateIndex {
					agg.bitrateIndex = fields.bitrateIndex
				}
			}
			if fields.sampleRateIdx != agg.sampleRateIdx {
				flags |= flagSampleRate
				if sampleRateRank[fields.sampleRateIdx] < sampleRateRank[agg.sampleRateIdx] {
					agg.sampleRateIdx = fields.sampleRateIdx
				}
			}
			if fields.channelMode != agg.channelMode {
				flags |= flagChannelMode
			}
			if fields.preEmphasis != agg.preEmphasis {
				flags |= flagPreEmphasis
			}
		}

		raw := data[fr.Offset : fr.Offset+fr.ByteLength]
		if len(raw) >= HimdAudioSize {
			return mp3IngestResult{}, fmt.Errorf("%w: mp3 frame of %d bytes exceeds block capacity", ErrBlockDataTooLarge, len(raw))
		}
		if len(bucket)+len(raw) >= HimdAudioSize {
			emit()
		}
		bucket = append(bucket, raw...)
		bucketFrames++
		totalSamples += fr.SampleLength
	}
	emit()

	var info CodecInfo
	info[0] = 3
	info[1] = 0
	info[2] = flags
	info[3] = agg.version<<6 | agg.layer<<4 | agg.bitrateIndex
	info[4] = agg.sampleRateIdx<<6 | agg.channelMode<<4 | agg.preEmphasis<<2

	rate := mpegSampleRateTable[agg.sampleRateIdx]
	duration := 0.0
	if rate > 0 {
		duration = float64(totalSamples) / float64(rate)
	}

	return mp3IngestResult{
		Blocks:      blocks,
		CodecInfo:   info,
		Duration:    duration,
		TotalFrames: len(frames),
	}, nil
}
