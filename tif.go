package himd

import (
	"fmt"
	"time"
)

// Sizes and offsets within the 0x50000-byte TIF image (spec.md §3.2).
const (
	TifImageSize = 0x50000

	tifMagicOffset     = 0x0000
	tifTrackCountOff = 0x0100
	tifTrackOrderOff = 0x0102
	// MaxTrackOrder is the largest number of ordering slots the region
	// between the count and the group table can hold.
	MaxTrackOrder = (tifGroupsOffset - tifTrackOrderOff) / 2

	tifGroupsOffset = 0x2100
	groupRecordSize = 8
	maxGroups       = (tifTrackSlotsOffset - tifGroupsOffset) / groupRecordSize

	tifTrackSlotsOffset = 0x8000
	trackSlotSize       = 0x50
	maxTrackSlots       = (tifFragmentSlotsOffset - tifTrackSlotsOffset) / trackSlotSize

	tifFragmentSlotsOffset = 0x30000
	fragmentSlotSize       = 0x10
	maxFragmentSlots       = (tifStringChunksOffset - tifFragmentSlotsOffset) / fragmentSlotSize

	tifStringChunksOffset = 0x40000
	stringChunkSize       = 0x10
	maxStringChunks       = (TifImageSize - tifStringChunksOffset) / stringChunkSize
)

var tifMagic = [4]byte{'T', 'I', 'F', ' '}

// TrackSlot is the 0x50-byte on-disc record for one track (spec.md §3.3).
// Byte offsets within the slot are fixed by the codec-info split
// (0x21..0x24, 0x2C..0x2E) and by the requirement that createTrackMac
// sign exactly the tail [0x28:0x50); the remaining field placement is an
// internally consistent choice documented in DESIGN.md.
type TrackSlot struct {
	RecordingTime    time.Time
	EkbNumber        uint32
	TitleIndex       uint16
	ArtistIndex      uint16
	AlbumIndex       uint16
	InAlbumIndex     uint16
	EncryptedKey     [8]byte // kek
	TrackMAC         [8]byte
	CodecID          CodecID
	CodecInfo        CodecInfo
	FirstFragment    uint16
	TrackNumber      uint16 // own slot index when live; next-free when free
	Duration         uint16 // seconds
	LicenceType      byte
	LicenceDest      byte
	LicenceXcc       byte
	LicenceCt        byte
	LicenceCc        byte
	LicenceCn        byte
	ContentID        [20]byte
	LicenceStart     time.Time
	LicenceEndDate   time.Time // date granularity only
}

// IsLive reports whether the slot holds a real track rather than a
// freelist node (spec.md §3.3 invariant: firstFragment != 0).
func (t TrackSlot) IsLive() bool { return t.FirstFragment != 0 }

func unmarshalTrackSlot(b []byte) TrackSlot {
	_ = b[trackSlotSize-1]
	var t TrackSlot
	t.RecordingTime = parseDosDateTime(beU32(b[0x00:0x04]))
	t.EkbNumber = beU32(b[0x04:0x08])
	t.TitleIndex = beU16(b[0x08:0x0A])
	t.ArtistIndex = beU16(b[0x0A:0x0C])
	t.AlbumIndex = beU16(b[0x0C:0x0E])
	t.InAlbumIndex = beU16(b[0x0E:0x10])
	copy(t.EncryptedKey[:], b[0x10:0x18])
	copy(t.TrackMAC[:], b[0x18:0x20])
	t.CodecID = CodecID(b[0x20])
	copy(t.CodecInfo[0:3], b[0x21:0x24])
	t.FirstFragment = beU16(b[0x24:0x26])
	t.TrackNumber = beU16(b[0x28:0x2A])
	copy(t.CodecInfo[3:5], b[0x2C:0x2E])
	t.Duration = beU16(b[0x2E:0x30])
	t.LicenceType = b[0x30]
	t.LicenceDest = b[0x31]
	t.LicenceXcc = b[0x32]
	t.LicenceCt = b[0x33]
	t.LicenceCc = b[0x34]
	t.LicenceCn = b[0x35]
	copy(t.ContentID[:], b[0x36:0x4A])
	t.LicenceStart = parseDosDateTime(beU32(b[0x4A:0x4E]))
	t.LicenceEndDate = parseDosDateTime(uint32(beU16(b[0x4E:0x50])) << 16)
	return t
}

func marshalTrackSlot(t TrackSlot) [trackSlotSize]byte {
	var b [trackSlotSize]byte
	putBeU32(b[0x00:0x04], dosDateTime(t.RecordingTime))
	putBeU32(b[0x04:0x08], t.EkbNumber)
	putBeU16(b[0x08:0x0A], t.TitleIndex)
	putBeU16(b[0x0A:0x0C], t.ArtistIndex)
	putBeU16(b[0x0C:0x0E], t.AlbumIndex)
	putBeU16(b[0x0E:0x10], t.InAlbumIndex)
	copy(b[0x10:0x18], t.EncryptedKey[:])
	copy(b[0x18:0x20], t.TrackMAC[:])
	b[0x20] = byte(t.CodecID)
	copy(b[0x21:0x24], t.CodecInfo[0:3])
	putBeU16(b[0x24:0x26], t.FirstFragment)
	putBeU16(b[0x28:0x2A], t.TrackNumber)
	copy(b[0x2C:0x2E], t.CodecInfo[3:5])
	putBeU16(b[0x2E:0x30], t.Duration)
	b[0x30] = t.LicenceType
	b[0x31] = t.LicenceDest
	b[0x32] = t.LicenceXcc
	b[0x33] = t.LicenceCt
	b[0x34] = t.LicenceCc
	b[0x35] = t.LicenceCn
	copy(b[0x36:0x4A], t.ContentID[:])
	putBeU32(b[0x4A:0x4E], dosDateTime(t.LicenceStart))
	putBeU16(b[0x4E:0x50], uint16(dosDateTime(t.LicenceEndDate)>>16))
	return b
}

// signedTail returns the 0x28-byte suffix of a marshalled track slot that
// createTrackMac signs (spec.md §4.6).
func signedTail(raw [trackSlotSize]byte) (tail [0x28]byte) {
	copy(tail[:], raw[0x28:trackSlotSize])
	return tail
}

// FragmentSlot is the 0x10-byte on-disc record for one audio fragment
// (spec.md §3.3).
type FragmentSlot struct {
	Key           [8]byte
	FirstBlock    uint16
	LastBlock     uint16
	FirstFrame    byte
	LastFrame     byte
	Type          byte   // high nibble of the packed field
	NextFragment  uint16 // low 12 bits of the packed field
}

func unmarshalFragmentSlot(b []byte) FragmentSlot {
	_ = b[fragmentSlotSize-1]
	var f FragmentSlot
	copy(f.Key[:], b[0x00:0x08])
	f.FirstBlock = beU16(b[0x08:0x0A])
	f.LastBlock = beU16(b[0x0A:0x0C])
	f.FirstFrame = b[0x0C]
	f.LastFrame = b[0x0D]
	packed := beU16(b[0x0E:0x10])
	f.Type = byte(packed >> 12)
	f.NextFragment = packed & 0x0FFF
	return f
}

func marshalFragmentSlot(f FragmentSlot) [fragmentSlotSize]byte {
	var b [fragmentSlotSize]byte
	copy(b[0x00:0x08], f.Key[:])
	putBeU16(b[0x08:0x0A], f.FirstBlock)
	putBeU16(b[0x0A:0x0C], f.LastBlock)
	b[0x0C] = f.FirstFrame
	b[0x0D] = f.LastFrame
	packed := uint16(f.Type&0xF)<<12 | (f.NextFragment & 0x0FFF)
	putBeU16(b[0x0E:0x10], packed)
	return b
}

// StringChunk is the 0x10-byte on-disc record for one string chunk
// (spec.md §3.3): 14 content bytes plus a packed 4-bit type/12-bit link.
type StringChunk struct {
	Content [14]byte
	Type    byte
	Link    uint16
}

// Chunk type values, spec.md §3.3.
const (
	StringChunkFree         byte = 0x0
	StringChunkContinuation byte = 0x1
	StringChunkRootMin      byte = 0x8
)

func unmarshalStringChunk(b []byte) StringChunk {
	_ = b[stringChunkSize-1]
	var s StringChunk
	copy(s.Content[:], b[0x00:0x0E])
	packed := beU16(b[0x0E:0x10])
	s.Type = byte(packed >> 12)
	s.Link = packed & 0x0FFF
	return s
}

func marshalStringChunk(s StringChunk) [stringChunkSize]byte {
	var b [stringChunkSize]byte
	copy(b[0x00:0x0E], s.Content[:])
	packed := uint16(s.Type&0xF)<<12 | (s.Link & 0x0FFF)
	putBeU16(b[0x0E:0x10], packed)
	return b
}

// GroupRecord is the 8-byte on-disc record describing a contiguous range
// of the track ordering (spec.md §3.3).
type GroupRecord struct {
	StartTrackPlus1  uint16
	EndTrack         uint16
	TitleStringIndex uint16
	Flag             byte
}

const groupFlagLive = 0x10

func (g GroupRecord) IsLive() bool { return g.Flag == groupFlagLive }
func (g GroupRecord) StartTrack() int { return int(g.StartTrackPlus1) - 1 }

func unmarshalGroupRecord(b []byte) GroupRecord {
	_ = b[groupRecordSize-1]
	return GroupRecord{
		StartTrackPlus1:  beU16(b[0x00:0x02]),
		EndTrack:         beU16(b[0x02:0x04]),
		TitleStringIndex: beU16(b[0x04:0x06]),
		Flag:             b[0x06],
	}
}

func marshalGroupRecord(g GroupRecord) [groupRecordSize]byte {
	var b [groupRecordSize]byte
	putBeU16(b[0x00:0x02], g.StartTrackPlus1)
	putBeU16(b[0x02:0x04], g.EndTrack)
	putBeU16(b[0x04:0x06], g.TitleStringIndex)
	b[0x06] = g.Flag
	return b
}

// TIF is the in-memory object store for one TRKIDX image (spec.md §4.2).
// All mutations go through its methods, each of which marks the image
// dirty; Disc.Flush is the only place bytes are written back out.
type TIF struct {
	image []byte
	dirty bool
}

// newTIF wraps a freshly-read TifImageSize-byte image, verifying its
// magic per the boot contract in spec.md §4.2.
func newTIF(image []byte) (*TIF, error) {
	if len(image) != TifImageSize {
		return nil, fmt.Errorf("%w: image is %d bytes, want %d", ErrInvalidTrackIndex, len(image), TifImageSize)
	}
	var magic [4]byte
	copy(magic[:], image[tifMagicOffset:tifMagicOffset+4])
	if magic != tifMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrInvalidTrackIndex, magic)
	}
	return &TIF{image: image}, nil
}

// newEmptyTIF builds a freshly-initialized TIF image with every freelist
// threaded end to end, used when formatting a disc from scratch.
func newEmptyTIF() *TIF {
	image := make([]byte, TifImageSize)
	copy(image[tifMagicOffset:], tifMagic[:])
	t := &TIF{image: image, dirty: true}

	for i := 0; i < maxTrackSlots; i++ {
		next := uint16(0)
		if i+1 < maxTrackSlots {
			next = uint16(i + 1)
		}
		raw := marshalTrackSlot(TrackSlot{TrackNumber: next})
		t.putTrackRaw(i, raw)
	}
	for i := 0; i < maxFragmentSlots; i++ {
		next := uint16(0)
		if i+1 < maxFragmentSlots {
			next = uint16(i + 1)
		}
		raw := marshalFragmentSlot(FragmentSlot{NextFragment: next})
		t.putFragmentRaw(i, raw)
	}
	for i := 0; i < maxStringChunks; i++ {
		next := uint16(0)
		if i+1 < maxStringChunks {
			next = uint16(i + 1)
		}
		raw := marshalStringChunk(StringChunk{Type: StringChunkFree, Link: next})
		t.putStringRaw(i, raw)
	}
	t.WriteTrackCount(0)
	return t
}

func (t *TIF) markDirty() { t.dirty = true }

// Dirty reports whether the image has unflushed mutations.
func (t *TIF) Dirty() bool { return t.dirty }

// Bytes exposes the underlying image for Disc.Flush; callers must not retain
// it across further mutations.
func (t *TIF) Bytes() []byte { return t.image }

func (t *TIF) trackOffset(slot int) int    { return tifTrackSlotsOffset + slot*trackSlotSize }
func (t *TIF) fragmentOffset(i int) int    { return tifFragmentSlotsOffset + i*fragmentSlotSize }
func (t *TIF) stringOffset(i int) int      { return tifStringChunksOffset + i*stringChunkSize }
func (t *TIF) groupOffset(i int) int       { return tifGroupsOffset + i*groupRecordSize }

// GetTrack reads the track slot at the given physical slot index (1..2047).
func (t *TIF) GetTrack(slot int) TrackSlot {
	off := t.trackOffset(slot)
	return unmarshalTrackSlot(t.image[off : off+trackSlotSize])
}

func (t *TIF) putTrackRaw(slot int, raw [trackSlotSize]byte) {
	off := t.trackOffset(slot)
	copy(t.image[off:off+trackSlotSize], raw[:])
}

// WriteTrack stores a track slot in place and marks the image dirty.
func (t *TIF) WriteTrack(slot int, tr TrackSlot) {
	t.putTrackRaw(slot, marshalTrackSlot(tr))
	t.markDirty()
}

// AddTrack pops the freelist head at slot 0, stamps the new slot's own
// track number, writes it, and returns the slot index (spec.md §4.2).
func (t *TIF) AddTrack(tr TrackSlot) (int, error) {
	head := t.GetTrack(0)
	slot := int(head.TrackNumber)
	if slot == 0 {
		return 0, fmt.Errorf("himd: track freelist exhausted")
	}
	next := t.GetTrack(slot)
	head.TrackNumber = next.TrackNumber
	t.WriteTrack(0, head)

	tr.TrackNumber = uint16(slot)
	t.WriteTrack(slot, tr)
	return slot, nil
}

// RemoveTrack prepends slot to the freelist after zeroing it, per the
// CAN'T PLAY hazard in spec.md §9. It returns the removed track's
// firstFragment so the caller can free its fragment chain.
func (t *TIF) RemoveTrack(slot int) uint16 {
	removed := t.GetTrack(slot)
	head := t.GetTrack(0)

	t.WriteTrack(slot, TrackSlot{TrackNumber: head.TrackNumber})
	head.TrackNumber = uint16(slot)
	t.WriteTrack(0, head)

	return removed.FirstFragment
}

// GetFragment reads the fragment slot at index i.
func (t *TIF) GetFragment(i int) FragmentSlot {
	off := t.fragmentOffset(i)
	return unmarshalFragmentSlot(t.image[off : off+fragmentSlotSize])
}

func (t *TIF) putFragmentRaw(i int, raw [fragmentSlotSize]byte) {
	off := t.fragmentOffset(i)
	copy(t.image[off:off+fragmentSlotSize], raw[:])
}

// WriteFragment stores a fragment slot in place.
func (t *TIF) WriteFragment(i int, f FragmentSlot) {
	t.putFragmentRaw(i, marshalFragmentSlot(f))
	t.markDirty()
}

// AddFragment pops the fragment freelist head and writes f into it.
func (t *TIF) AddFragment(f FragmentSlot) (int, error) {
	head := t.GetFragment(0)
	idx := int(head.NextFragment)
	if idx == 0 {
		return 0, fmt.Errorf("himd: fragment freelist exhausted")
	}
	next := t.GetFragment(idx)
	head.NextFragment = next.NextFragment
	t.WriteFragment(0, head)

	f.NextFragment = 0
	t.WriteFragment(idx, f)
	return idx, nil
}

// RemoveFragment zeroes fragment i and prepends it to the freelist.
func (t *TIF) RemoveFragment(i int) {
	head := t.GetFragment(0)
	t.WriteFragment(i, FragmentSlot{NextFragment: head.NextFragment})
	head.NextFragment = uint16(i)
	t.WriteFragment(0, head)
}

// Fragments walks a track's fragment chain starting at first, following
// nextFragment until 0, bounding the walk at 4096 hops per spec.md §8.
func (t *TIF) Fragments(first uint16) ([]int, error) {
	var out []int
	cur := int(first)
	for hops := 0; cur != 0; hops++ {
		if hops >= 4096 {
			return nil, ErrFragmentChainBroken
		}
		out = append(out, cur)
		cur = int(t.GetFragment(cur).NextFragment)
	}
	return out, nil
}

// GetStringChunk reads string chunk i.
func (t *TIF) GetStringChunk(i int) StringChunk {
	off := t.stringOffset(i)
	return unmarshalStringChunk(t.image[off : off+stringChunkSize])
}

func (t *TIF) putStringRaw(i int, raw [stringChunkSize]byte) {
	off := t.stringOffset(i)
	copy(t.image[off:off+stringChunkSize], raw[:])
}

// WriteStringChunk stores a string chunk in place.
func (t *TIF) WriteStringChunk(i int, s StringChunk) {
	t.putStringRaw(i, marshalStringChunk(s))
	t.markDirty()
}

// TrackIndexToTrackSlot resolves a user-visible track index (position in
// the ordering array) to a physical track slot.
func (t *TIF) TrackIndexToTrackSlot(i int) uint16 {
	off := tifTrackOrderOff + i*2
	return beU16(t.image[off : off+2])
}

// WriteTrackIndexToTrackSlot sets the ordering array entry at i.
func (t *TIF) WriteTrackIndexToTrackSlot(i int, slot uint16) {
	off := tifTrackOrderOff + i*2
	putBeU16(t.image[off:off+2], slot)
	t.markDirty()
}

// GetTrackCount returns the number of live tracks in the ordering.
func (t *TIF) GetTrackCount() int {
	return int(beU16(t.image[tifTrackCountOff : tifTrackCountOff+2]))
}

// WriteTrackCount sets the live track count.
func (t *TIF) WriteTrackCount(n int) {
	putBeU16(t.image[tifTrackCountOff:tifTrackCountOff+2], uint16(n))
	t.markDirty()
}

// GetGroup reads group record i (0 = disc title group).
func (t *TIF) GetGroup(i int) GroupRecord {
	off := t.groupOffset(i)
	return unmarshalGroupRecord(t.image[off : off+groupRecordSize])
}

// WriteGroup stores group record i.
func (t *TIF) WriteGroup(i int, g GroupRecord) {
	off := t.groupOffset(i)
	raw := marshalGroupRecord(g)
	copy(t.image[off:off+groupRecordSize], raw[:])
	t.markDirty()
}

// GetGroupCount returns the number of live user groups (1..N), stopping
// at the first all-zero terminator record.
func (t *TIF) GetGroupCount() int {
	n := 0
	for i := 1; i < maxGroups; i++ {
		g := t.GetGroup(i)
		if !g.IsLive() {
			break
		}
		n++
	}
	return n
}
