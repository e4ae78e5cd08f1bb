package himd

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/vazrupe/endibuf"
)

// The TIF, MCLIST and ATDATA images are large fixed-layout byte arenas
// addressed by absolute offset (spec.md §3.2/§3.3): tracks, fragments and
// string chunks are mutated in place at a known offset, not appended
// sequentially. endibuf's Reader/Writer are unidirectional stream
// wrappers (block.go's audio-block parse and serialize are where they earn
// their keep); for in-place slice mutation, direct encoding/binary calls on the
// backing []byte are the correct and only tool - there is nothing for a
// stream-oriented library to wrap here.

func beU16(b []byte) uint16 { return binary.BigEndian.Uint16(b) }
func beU32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }

func putBeU16(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }
func putBeU32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }

// newBEReader wraps a byte slice in an endibuf.Reader configured for the
// big-endian sequential fields used by ATDATA blocks, mirroring loadHeader's r.Endian = binary.BigEndian
// setup in hca_header.go.
func newBEReader(data []byte) *endibuf.Reader {
	r := endibuf.NewReader(bytes.NewReader(data))
	r.Endian = binary.BigEndian
	return r
}

// seekBuffer is an in-memory io.WriteSeeker backed by a growable []byte,
// satisfying the interface endibuf.NewWriter requires while still exposing
// Bytes() the way *bytes.Buffer does.
type seekBuffer struct {
	buf []byte
	pos int64
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	end := s.pos + int64(len(p))
	if end > int64(len(s.buf)) {
		grown := make([]byte, end)
		copy(grown, s.buf)
		s.buf = grown
	}
	copy(s.buf[s.pos:end], p)
	s.pos = end
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = s.pos + offset
	case io.SeekEnd:
		newPos = int64(len(s.buf)) + offset
	}
	s.pos = newPos
	return s.pos, nil
}

func (s *seekBuffer) Bytes() []byte {
	return s.buf
}

// newBEWriter creates an endibuf.Writer over a fresh buffer for
// constructing a sequential byte layout (an audio block, a container
// header, ...), the way wave_gen.go builds WAV sub-chunks with a Writer
// before the bytes are ever placed on disk.
func newBEWriter() (*seekBuffer, *endibuf.Writer) {
	buf := &seekBuffer{}
	w := endibuf.NewWriter(buf)
	w.Endian = binary.BigEndian
	return buf, w
}

// dosDateTime packs a time.Time into the 4-byte DOS date/time encoding
// used throughout the track slot (spec.md §3.3): bits 31-25 year-1980,
// 24-21 month, 20-16 day, 15-11 hour, 10-5 minute, 4-0 second/2.
func dosDateTime(t time.Time) uint32 {
	if t.IsZero() {
		return 0
	}
	date := uint32(t.Year()-1980)<<9 | uint32(t.Month())<<5 | uint32(t.Day())
	clock := uint32(t.Hour())<<11 | uint32(t.Minute())<<5 | uint32(t.Second()/2)
	return date<<16 | clock
}

func parseDosDateTime(v uint32) time.Time {
	if v == 0 {
		return time.Time{}
	}
	date := v >> 16
	clock := v & 0xFFFF
	year := int(date>>9) + 1980
	month := time.Month((date >> 5) & 0xF)
	day := int(date & 0x1F)
	hour := int(clock >> 11)
	minute := int((clock >> 5) & 0x3F)
	second := int((clock & 0x1F) * 2)
	return time.Date(year, month, day, hour, minute, second, 0, time.UTC)
}
