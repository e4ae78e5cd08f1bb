package himd

import "fmt"

// CodecID identifies the audio codec of a track (spec.md §4.4).
type CodecID byte

const (
	CodecATRAC3    CodecID = 0x00
	CodecATRAC3plusOrMPEG CodecID = 0x01
	CodecLPCM      CodecID = 0x80
)

// CodecInfo is the 5-byte descriptor packed alongside CodecID in a track
// slot (spec.md §3.3, §4.4).
type CodecInfo [5]byte

// isMpeg disambiguates CodecID 0x01 between ATRAC3+ and MPEG: the low two
// bits of the first info byte are 0b11 for MPEG.
func isMpeg(info CodecInfo) bool {
	return info[0]&0b11 == 0b11
}

var mpegBitrateTable = [2][3][16]int{
	// MPEG version 1
	{
		{0, 32, 64, 96, 128, 160, 192, 224, 256, 288, 320, 352, 384, 416, 448, 0},   // layer I
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384, 0},      // layer II
		{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0},       // layer III
	},
	// MPEG version 2/2.5
	{
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256, 0}, // layer I
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},      // layer II
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},      // layer III
	},
}

var mpegSampleRateTable = [3]int{44100, 48000, 32000}

var atrac3SampleRateTable = [8]int{32000, 44100, 48000, 88200, 96000, 0, 0, 0}

// mpegKbps returns the bitrate implied by codecInfo per spec.md §4.4: the
// MPEG 1/2 x Layer I/II/III bitrate table indexed by codecInfo[3]&0xF,
// reserved indices returning 0.
func mpegKbps(info CodecInfo) int {
	vers := info[3] >> 6   // 0..3, 3 == MPEG1 (matches BytesPerFrame's layout)
	layer := (info[3] >> 4) & 0x3
	brIdx := info[3] & 0xF
	versRow := 0
	if vers == 3 {
		versRow = 0 // MPEG1
	} else {
		versRow = 1 // MPEG2/2.5
	}
	layerRow := 0
	switch layer {
	case 3:
		layerRow = 0 // layer I
	case 2:
		layerRow = 1 // layer II
	case 1:
		layerRow = 2 // layer III
	default:
		return 0
	}
	return mpegBitrateTable[versRow][layerRow][brIdx]
}

// SamplesPerFrame returns the PCM sample count encoded by a single frame
// of this codec (spec.md §4.4).
func SamplesPerFrame(codecID CodecID, info CodecInfo) int {
	switch {
	case codecID == CodecLPCM:
		return 16
	case codecID == CodecATRAC3:
		return 1024
	case codecID == CodecATRAC3plusOrMPEG && !isMpeg(info):
		return 2048
	default: // MPEG
		layer := (info[3] >> 4) & 0x3
		if layer == 3 { // layer I
			return 384
		}
		return 1152 // layer II/III
	}
}

// SampleRate returns the sampling rate in Hz encoded by codecInfo.
func SampleRate(codecID CodecID, info CodecInfo) int {
	switch {
	case codecID == CodecLPCM:
		return 44100
	case codecID == CodecATRAC3, codecID == CodecATRAC3plusOrMPEG && !isMpeg(info):
		return atrac3SampleRateTable[info[1]>>5]
	default: // MPEG
		base := mpegSampleRateTable[info[4]>>6]
		divisor := 4 - int(info[3]>>6)
		if divisor <= 0 {
			return 0
		}
		return base / divisor
	}
}

// BytesPerFrame returns the size in bytes of a single audio frame.
func BytesPerFrame(codecID CodecID, info CodecInfo) int {
	switch {
	case codecID == CodecLPCM:
		return 64
	case codecID == CodecATRAC3:
		return int(info[2]) * 8
	case codecID == CodecATRAC3plusOrMPEG && !isMpeg(info):
		return (int(beU16(info[1:3]))&0x3FF + 1) * 8
	default: // MPEG
		spf := SamplesPerFrame(codecID, info)
		kbps := mpegKbps(info)
		rate := SampleRate(codecID, info)
		if rate == 0 {
			return 0
		}
		raw := spf * 125 * kbps / rate
		mask := ^0
		if info[3]&0xC0 == 0xC0 {
			mask = ^3
		}
		return raw & mask
	}
}

// FramesPerBlock returns how many audio frames of this codec pack into
// one 16 KiB block, or 0 for MPEG (whose frame count varies per block and
// is instead read from the block header, per spec.md §4.4).
func FramesPerBlock(codecID CodecID, info CodecInfo) int {
	switch {
	case codecID == CodecATRAC3plusOrMPEG && isMpeg(info):
		return 0
	case codecID == CodecLPCM:
		return HimdAudioSize / 64
	default:
		bpf := BytesPerFrame(codecID, info)
		if bpf == 0 {
			return 0
		}
		return 0x3FBF / bpf
	}
}

// GenerateCodecInfo builds a valid CodecID/CodecInfo pair for ATRAC3,
// ATRAC3+ or LPCM at the given frame size / channel count / sample rate.
// MPEG descriptors are produced by the ingest scanner in mp3.go instead,
// since they are derived from observed frame headers rather than chosen
// up front.
func GenerateCodecInfo(codec CodecID, frameSize, channels, sampleRateHz int) (CodecID, CodecInfo, error) {
	switch codec {
	case CodecLPCM:
		return CodecLPCM, CodecInfo{}, nil
	case CodecATRAC3:
		rateIdx, err := findRateIndex(sampleRateHz)
		if err != nil {
			return 0, CodecInfo{}, err
		}
		if frameSize%8 != 0 {
			return 0, CodecInfo{}, fmt.Errorf("himd: atrac3 frame size %d not a multiple of 8", frameSize)
		}
		var info CodecInfo
		info[1] = rateIdx << 5
		info[2] = byte(frameSize / 8)
		return CodecATRAC3, info, nil
	case CodecATRAC3plusOrMPEG:
		rateIdx, err := findRateIndex(sampleRateHz)
		if err != nil {
			return 0, CodecInfo{}, err
		}
		n := frameSize/8 - 1
		if n < 0 || n > 0x3FF {
			return 0, CodecInfo{}, fmt.Errorf("himd: atrac3plus frame size %d out of range", frameSize)
		}
		var info CodecInfo
		packed := uint16(n) & 0x3FF
		putBeU16(info[1:3], packed)
		info[1] |= rateIdx << 5
		return CodecATRAC3plusOrMPEG, info, nil
	default:
		return 0, CodecInfo{}, fmt.Errorf("himd: unsupported codec 0x%02X for GenerateCodecInfo", byte(codec))
	}
}

func findRateIndex(hz int) (byte, error) {
	for i, r := range atrac3SampleRateTable {
		if r == hz {
			return byte(i), nil
		}
	}
	return 0, fmt.Errorf("himd: unsupported sample rate %d Hz", hz)
}
