// Package mp3scan implements himd.MP3FrameParser by walking standard
// MPEG-1/2 Layer III frame sync headers, the default frame-boundary
// detector himdctl wires in since the core package deliberately leaves
// that scanning outside its own scope.
package mp3scan

import (
	"fmt"

	"github.com/gohimd/himd"
)

var bitrateTableV1L3 = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}
var bitrateTableV2L3 = [16]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0}
var sampleRateTable = [4]int{44100, 48000, 32000, 0}

// Scanner is a himd.MP3FrameParser that recognizes MPEG-1/2 Layer III
// frames only, matching the codecs HiMD's SMPA ingest path targets.
type Scanner struct{}

// Frames implements himd.MP3FrameParser.
func (Scanner) Frames(data []byte) ([]himd.MP3Frame, error) {
	var frames []himd.MP3Frame
	for off := 0; off+4 <= len(data); {
		if data[off] != 0xFF || data[off+1]&0xE0 != 0xE0 {
			off++
			continue
		}
		b1, b2 := data[off+1], data[off+2]
		versionBits := (b1 >> 3) & 0x3
		layerBits := (b1 >> 1) & 0x3
		if versionBits == 1 || layerBits != 1 { // reserved version, or not Layer III
			off++
			continue
		}
		bitrateIdx := (b2 >> 4) & 0xF
		sampleRateIdx := (b2 >> 2) & 0x3
		padding := (b2 >> 1) & 0x1
		if bitrateIdx == 0 || bitrateIdx == 0xF || sampleRateIdx == 0x3 {
			off++
			continue
		}

		sampleRate := sampleRateTable[sampleRateIdx]
		switch versionBits {
		case 0x2: // MPEG-2 runs at half the MPEG-1 rates
			sampleRate /= 2
		case 0x0: // MPEG-2.5 runs at a quarter of them
			sampleRate /= 4
		}
		isV1 := versionBits == 0x3
		var bitrate int
		if isV1 {
			bitrate = bitrateTableV1L3[bitrateIdx]
		} else {
			bitrate = bitrateTableV2L3[bitrateIdx]
		}
		samplesPerFrame := 1152
		if !isV1 {
			samplesPerFrame = 576
		}

		frameLen := (samplesPerFrame/8)*bitrate*1000/sampleRate + int(padding)
		if frameLen <= 4 || off+frameLen > len(data) {
			off++
			continue
		}

		frames = append(frames, himd.MP3Frame{
			Offset:       off,
			ByteLength:   frameLen,
			SampleLength: samplesPerFrame,
		})
		off += frameLen
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("mp3scan: no MPEG-1/2 Layer III frames found")
	}
	return frames, nil
}
