package himd

import (
	"bytes"
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
)

// StringEncoding is the HiMDStringEncoding discriminator stored as the
// first content byte of a root string chunk (spec.md §3.3).
type StringEncoding byte

const (
	EncodingLatin1  StringEncoding = 0x05
	EncodingUTF16BE StringEncoding = 0x84
	EncodingShiftJIS StringEncoding = 0x90
)

// encodingOrder is the fixed trial order from spec.md §4.2/§9: always try
// Latin-1, then Shift-JIS, then UTF-16BE, keeping the first one whose
// round trip is exact. Real HiMD devices have been observed to refuse
// mixed content unless this discipline is followed.
var encodingOrder = []struct {
	id  StringEncoding
	enc encoding.Encoding
}{
	{EncodingLatin1, charmap.ISO8859_1},
	{EncodingShiftJIS, japanese.ShiftJIS},
	{EncodingUTF16BE, unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)},
}

func encodingByID(id StringEncoding) (encoding.Encoding, bool) {
	for _, e := range encodingOrder {
		if e.id == id {
			return e.enc, true
		}
	}
	return nil, false
}

// encodeHimdString picks the first encoding (in the fixed trial order)
// whose round trip reproduces s exactly, and returns the discriminator
// byte followed by the encoded bytes.
func encodeHimdString(s string) ([]byte, error) {
	for _, e := range encodingOrder {
		encoded, err := e.enc.NewEncoder().Bytes([]byte(s))
		if err != nil {
			continue
		}
		decoded, err := e.enc.NewDecoder().Bytes(encoded)
		if err != nil || string(decoded) != s {
			continue
		}
		out := make([]byte, 0, len(encoded)+1)
		out = append(out, byte(e.id))
		out = append(out, encoded...)
		return out, nil
	}
	return nil, ErrUnencodable
}

// decodeHimdString reverses encodeHimdString given the discriminator byte
// and the following content bytes.
func decodeHimdString(discriminator byte, content []byte) (string, error) {
	enc, ok := encodingByID(StringEncoding(discriminator))
	if !ok {
		return "", fmt.Errorf("%w: discriminator 0x%02X", ErrInvalidEncoding, discriminator)
	}
	decoded, err := enc.NewDecoder().Bytes(content)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	return string(decoded), nil
}

const stringContentBytes = 14

// ReadString walks the chunk chain starting at rootIndex, decoding the
// discriminator byte plus concatenated content per spec.md §3.3/§8.
func (t *TIF) ReadString(rootIndex int) (string, error) {
	if rootIndex == 0 {
		return "", nil
	}
	var payload []byte
	idx := rootIndex
	for hops := 0; ; hops++ {
		if hops >= 4096 {
			return "", fmt.Errorf("%w: string chain exceeds 4096 chunks", ErrFragmentChainBroken)
		}
		chunk := t.GetStringChunk(idx)
		payload = append(payload, chunk.Content[:]...)
		if chunk.Link == 0 {
			break
		}
		idx = int(chunk.Link)
	}
	if len(payload) == 0 {
		return "", fmt.Errorf("%w: empty string chain", ErrInvalidEncoding)
	}
	payload = bytes.TrimRight(payload, "\x00")
	if len(payload) == 0 {
		return "", fmt.Errorf("%w: empty string chain", ErrInvalidEncoding)
	}
	return decodeHimdString(payload[0], payload[1:])
}

// AddString encodes s, splits it into 14-byte chunks and pops that many
// chunks off the string freelist, linking them root-to-tail with the
// given chunk type on the root (spec.md §4.2). It returns the new root
// chunk index.
func (t *TIF) AddString(s string, rootType byte) (int, error) {
	payload, err := encodeHimdString(s)
	if err != nil {
		return 0, err
	}
	nChunks := (len(payload) + stringContentBytes - 1) / stringContentBytes
	indices := make([]int, 0, nChunks)
	head := t.GetStringChunk(0)
	cur := int(head.Link)
	for i := 0; i < nChunks; i++ {
		if cur == 0 {
			// Not enough slots. Nothing has been popped yet (the head is
			// only rewritten below), so the freelist is left as it was.
			return 0, ErrNotEnoughStringSlots
		}
		next := t.GetStringChunk(cur)
		indices = append(indices, cur)
		cur = int(next.Link)
	}
	head.Link = uint16(cur)
	t.WriteStringChunk(0, head)

	for i, idx := range indices {
		var content [stringContentBytes]byte
		start := i * stringContentBytes
		end := start + stringContentBytes
		if end > len(payload) {
			end = len(payload)
		}
		copy(content[:], payload[start:end])

		chunkType := StringChunkContinuation
		link := uint16(0)
		if i == 0 {
			chunkType = rootType
		}
		if i+1 < len(indices) {
			link = uint16(indices[i+1])
		}
		t.WriteStringChunk(idx, StringChunk{Content: content, Type: chunkType, Link: link})
	}
	return indices[0], nil
}

// RemoveString walks the chain from rootIndex, zeroing each chunk and
// splicing it onto the freelist head (spec.md §4.2, §9 CAN'T PLAY
// hazard).
func (t *TIF) RemoveString(rootIndex int) {
	if rootIndex == 0 {
		return
	}
	idx := rootIndex
	for idx != 0 {
		chunk := t.GetStringChunk(idx)
		next := int(chunk.Link)
		t.freeStringChunk(idx)
		idx = next
	}
}

func (t *TIF) freeStringChunk(idx int) {
	head := t.GetStringChunk(0)
	t.WriteStringChunk(idx, StringChunk{Type: StringChunkFree, Link: head.Link})
	head.Link = uint16(idx)
	t.WriteStringChunk(0, head)
}
