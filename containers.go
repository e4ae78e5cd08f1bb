package himd

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WriteOMAHeader writes the 96-byte EA3 header spec.md §6 requires ahead
// of an ATRAC track's decrypted block payloads.
func WriteOMAHeader(w io.Writer, codecID CodecID, info CodecInfo) error {
	var header [96]byte
	copy(header[0:12], []byte{0x45, 0x41, 0x33, 0x01, 0x00, 0x60, 0xFF, 0xFF, 0x00, 0x00, 0x00, 0x00})
	header[32] = byte(codecID)
	copy(header[33:36], info[0:3])
	_, err := w.Write(header[:])
	if err != nil {
		return fmt.Errorf("himd: write oma header: %w", err)
	}
	return nil
}

// createLPCMHeader builds the 44-byte RIFF/WAVE header for one PCM track
// (spec.md §6). sampleRate and numSamples describe the decoded content;
// HiMD LPCM is always 16-bit stereo.
func createLPCMHeader(sampleRate, numSamples int) [44]byte {
	const (
		numChannels   = 2
		bitsPerSample = 16
	)
	dataSize := numSamples * numChannels * bitsPerSample / 8
	byteRate := sampleRate * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8

	var h [44]byte
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], uint32(36+dataSize))
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(h[22:24], numChannels)
	binary.LittleEndian.PutUint32(h[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(h[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:36], bitsPerSample)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], uint32(dataSize))
	return h
}

// WriteWAV writes createLPCMHeader followed by the track's samples,
// byte-swapped from HiMD's big-endian storage to little-endian PCM.
func WriteWAV(w io.Writer, sampleRate int, bigEndianSamples []byte) error {
	numSamples := len(bigEndianSamples) / 4 // one stereo frame is two 16-bit samples
	header := createLPCMHeader(sampleRate, numSamples)
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("himd: write wav header: %w", err)
	}
	out := make([]byte, len(bigEndianSamples)&^1)
	for i := 0; i+1 < len(bigEndianSamples); i += 2 {
		out[i], out[i+1] = bigEndianSamples[i+1], bigEndianSamples[i]
	}
	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("himd: write wav samples: %w", err)
	}
	return nil
}

// ID3Tags is the minimal metadata carried into an exported .mp3 file.
type ID3Tags struct {
	Title  string
	Album  string
	Artist string
}

// WriteID3v2 writes a minimal ID3v2.3 header with TIT2/TALB/TPE1 frames,
// the external ID3v2 writer spec.md §6 names as a collaborator; this is a
// self-contained minimal implementation covering the three fields HiMD
// tracks actually carry.
func WriteID3v2(w io.Writer, tags ID3Tags) error {
	var body []byte
	body = appendID3Frame(body, "TIT2", tags.Title)
	body = appendID3Frame(body, "TALB", tags.Album)
	body = appendID3Frame(body, "TPE1", tags.Artist)

	var header [10]byte
	copy(header[0:3], "ID3")
	header[3], header[4] = 3, 0 // version 2.3.0
	header[5] = 0               // flags
	putSynchsafe(header[6:10], len(body))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("himd: write id3 header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("himd: write id3 frames: %w", err)
	}
	return nil
}

func appendID3Frame(buf []byte, id string, value string) []byte {
	if value == "" {
		return buf
	}
	payload := append([]byte{0x00}, []byte(value)...) // ISO-8859-1 encoding byte
	var frameHeader [10]byte
	copy(frameHeader[0:4], id)
	binary.BigEndian.PutUint32(frameHeader[4:8], uint32(len(payload)))
	buf = append(buf, frameHeader[:]...)
	buf = append(buf, payload...)
	return buf
}

func putSynchsafe(b []byte, n int) {
	b[0] = byte((n >> 21) & 0x7F)
	b[1] = byte((n >> 14) & 0x7F)
	b[2] = byte((n >> 7) & 0x7F)
	b[3] = byte(n & 0x7F)
}

// WriteMP3Export writes ID3 tags followed by the concatenated
// de-obfuscated MP3 frame bytes (spec.md §6).
func WriteMP3Export(w io.Writer, tags ID3Tags, frames []byte) error {
	if err := WriteID3v2(w, tags); err != nil {
		return err
	}
	if _, err := w.Write(frames); err != nil {
		return fmt.Errorf("himd: write mp3 frames: %w", err)
	}
	return nil
}
