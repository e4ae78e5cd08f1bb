package himd

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
)

// Track is a friendlier view over a TrackSlot plus its decoded strings,
// returned by ListTracks.
type Track struct {
	Index   int // position in the ordering (0-based)
	Slot    int // physical slot number
	Title   string
	Artist  string
	Album   string
	CodecID CodecID
	Codec   CodecInfo
}

// ListTracks walks the track ordering and decodes each live track's
// strings (spec.md §8 scenario 1).
func (d *Disc) ListTracks() ([]Track, error) {
	n := d.tif.GetTrackCount()
	out := make([]Track, 0, n)
	for i := 0; i < n; i++ {
		slotNum := int(d.tif.TrackIndexToTrackSlot(i))
		slot := d.tif.GetTrack(slotNum)

		title, err := d.tif.ReadString(int(slot.TitleIndex))
		if err != nil {
			return nil, fmt.Errorf("himd: track %d title: %w", i, err)
		}
		artist, err := d.tif.ReadString(int(slot.ArtistIndex))
		if err != nil {
			return nil, fmt.Errorf("himd: track %d artist: %w", i, err)
		}
		album, err := d.tif.ReadString(int(slot.AlbumIndex))
		if err != nil {
			return nil, fmt.Errorf("himd: track %d album: %w", i, err)
		}
		out = append(out, Track{
			Index: i, Slot: slotNum,
			Title: title, Artist: artist, Album: album,
			CodecID: slot.CodecID, Codec: slot.CodecInfo,
		})
	}
	return out, nil
}

// RenameDisc rewrites group 0's title, freeing any previous chain
// (spec.md §8 scenario 2). Pass "" to clear the disc title.
func (d *Disc) RenameDisc(title string) error {
	return d.tif.SetDiscTitle(title)
}

// TrackStringField selects which of a track's three string fields
// RenameTrack rewrites.
type TrackStringField int

const (
	FieldTitle TrackStringField = iota
	FieldArtist
	FieldAlbum
)

// RenameTrack replaces the given string field of the track at ordering
// index i, freeing the previous chain.
func (d *Disc) RenameTrack(index int, field TrackStringField, value string) error {
	slotNum := int(d.tif.TrackIndexToTrackSlot(index))
	slot := d.tif.GetTrack(slotNum)

	var oldIdx *uint16
	switch field {
	case FieldTitle:
		oldIdx = &slot.TitleIndex
	case FieldArtist:
		oldIdx = &slot.ArtistIndex
	case FieldAlbum:
		oldIdx = &slot.AlbumIndex
	default:
		return fmt.Errorf("himd: unknown track string field %d", field)
	}

	old := int(*oldIdx)
	newIdx := 0
	if value != "" {
		idx, err := d.tif.AddString(value, StringChunkRootMin)
		if err != nil {
			return err
		}
		newIdx = idx
	}
	*oldIdx = uint16(newIdx)
	d.tif.WriteTrack(slotNum, slot)
	if old != 0 {
		d.tif.RemoveString(old)
	}
	return nil
}

// UploadMP3Result reports what UploadMP3 produced.
type UploadMP3Result struct {
	TrackIndex int
	Duration   float64
}

// UploadMP3 ingests a complete MP3 file, appends its blocks to ATDATA,
// links a fresh fragment and track slot, and appends the track to the
// ordering (spec.md §4.5, §8 scenario 3). No secure session is required:
// MP3 tracks carry no DRM key.
func (d *Disc) UploadMP3(parser MP3FrameParser, data []byte, title, artist, album string, contentIDLow32 uint32) (UploadMP3Result, error) {
	atdata, err := d.openATDATA(ModeReadWrite)
	if err != nil {
		return UploadMP3Result{}, err
	}
	defer atdata.Close()

	// Reserve the physical slot before ingest: the MP3 XOR key is a
	// function of the track's own slot number (spec.md §4.1), the same
	// number DumpTrack later rederives it from, not of the caller-supplied
	// content id.
	slotNum, err := d.tif.AddTrack(TrackSlot{})
	if err != nil {
		return UploadMP3Result{}, err
	}

	mp3Key := getMP3EncryptionKey(d.discID, uint32(slotNum))
	result, err := IngestMP3(parser, data, contentIDLow32, mp3Key, 0)
	if err != nil {
		d.tif.RemoveTrack(slotNum)
		return UploadMP3Result{}, err
	}
	if len(result.Blocks) == 0 {
		d.tif.RemoveTrack(slotNum)
		return UploadMP3Result{}, fmt.Errorf("himd: mp3 ingest produced no blocks")
	}

	length, err := atdata.Length()
	if err != nil {
		d.tif.RemoveTrack(slotNum)
		return UploadMP3Result{}, err
	}
	firstBlock := uint32(length / HimdBlockSize)
	w := NewTrackAudioWriter(atdata, firstBlock, 0)
	for _, b := range result.Blocks {
		if err := w.WriteBlock(b); err != nil {
			d.tif.RemoveTrack(slotNum)
			return UploadMP3Result{}, err
		}
	}
	fb, lb := w.Close()

	lastFrame := int(result.Blocks[len(result.Blocks)-1].NFrames)
	frag := FragmentSlot{
		FirstBlock: uint16(fb),
		LastBlock:  uint16(lb),
		FirstFrame: 0,
		LastFrame:  byte(lastFrame),
	}
	fragIdx, err := d.tif.AddFragment(frag)
	if err != nil {
		d.tif.RemoveTrack(slotNum)
		return UploadMP3Result{}, err
	}

	titleIdx, artistIdx, albumIdx, err := d.addTrackStrings(title, artist, album)
	if err != nil {
		d.tif.RemoveTrack(slotNum)
		return UploadMP3Result{}, err
	}

	track := TrackSlot{
		TrackNumber:   uint16(slotNum),
		TitleIndex:    uint16(titleIdx),
		ArtistIndex:   uint16(artistIdx),
		AlbumIndex:    uint16(albumIdx),
		CodecID:       CodecATRAC3plusOrMPEG,
		CodecInfo:     result.CodecInfo,
		FirstFragment: uint16(fragIdx),
		Duration:      uint16(result.Duration),
	}
	d.tif.WriteTrack(slotNum, track)

	trackIndex := d.tif.GetTrackCount()
	d.tif.WriteTrackIndexToTrackSlot(trackIndex, uint16(slotNum))
	d.tif.WriteTrackCount(trackIndex + 1)

	return UploadMP3Result{TrackIndex: trackIndex, Duration: result.Duration}, nil
}

func (d *Disc) addTrackStrings(title, artist, album string) (titleIdx, artistIdx, albumIdx int, err error) {
	if title != "" {
		if titleIdx, err = d.tif.AddString(title, StringChunkRootMin); err != nil {
			return
		}
	}
	if artist != "" {
		if artistIdx, err = d.tif.AddString(artist, StringChunkRootMin); err != nil {
			return
		}
	}
	if album != "" {
		if albumIdx, err = d.tif.AddString(album, StringChunkRootMin); err != nil {
			return
		}
	}
	return
}

// UploadAudioTrackResult reports what UploadAudioTrack produced.
type UploadAudioTrackResult struct {
	TrackIndex int
	TrackKey   [8]byte
}

// UploadAudioTrack encrypts and appends a full ATRAC3/ATRAC3+/LPCM track
// under an open secure session, signs it, and appends the track to the
// ordering (spec.md §8 scenario 4). rawData holds concatenated
// frameSize-byte frames in playback order.
func (d *Disc) UploadAudioTrack(sess *Session, codecID CodecID, info CodecInfo, rawData []byte, title, artist, album string) (UploadAudioTrackResult, error) {
	frameSize := BytesPerFrame(codecID, info)
	if frameSize <= 0 {
		return UploadAudioTrackResult{}, fmt.Errorf("himd: unknown frame size for codec 0x%02X", byte(codecID))
	}

	atdata, err := d.openATDATA(ModeReadWrite)
	if err != nil {
		return UploadAudioTrackResult{}, err
	}
	defer atdata.Close()

	length, err := atdata.Length()
	if err != nil {
		return UploadAudioTrackResult{}, err
	}
	firstBlock := uint32(length / HimdBlockSize)

	titleIdx, artistIdx, albumIdx, err := d.addTrackStrings(title, artist, album)
	if err != nil {
		return UploadAudioTrackResult{}, err
	}

	trackIndex := d.tif.GetTrackCount()

	// Reserve the physical slot before signing: TrackSlot.TrackNumber is
	// self-referential (it lives inside the signed tail), so the slot
	// must be known before createTrackMac runs, not assigned afterward.
	slotNum, err := d.tif.AddTrack(TrackSlot{})
	if err != nil {
		return UploadAudioTrackResult{}, err
	}

	track := TrackSlot{
		TitleIndex:  uint16(titleIdx),
		ArtistIndex: uint16(artistIdx),
		AlbumIndex:  uint16(albumIdx),
		CodecID:     codecID,
		CodecInfo:   info,
	}
	signed, trackKey, err := sess.CreateAndSignNewTrack(track, slotNum)
	if err != nil {
		d.tif.RemoveTrack(slotNum)
		return UploadAudioTrackResult{}, err
	}

	var fragmentKey [8]byte
	if _, err := rand.Read(fragmentKey[:]); err != nil {
		d.tif.RemoveTrack(slotNum)
		return UploadAudioTrackResult{}, fmt.Errorf("himd: generate fragment key: %w", err)
	}
	provider := &DefaultCryptoProvider{}
	w := NewTrackAudioWriter(atdata, firstBlock, 0)
	var lastNFrames uint16
	var serial uint32
	err = provider.EncryptStream(trackKey, fragmentKey, rawData, frameSize, func(chunk EncryptedChunk) error {
		var b AudioBlock
		b.Type = blockTypeFor(codecID, info)
		b.NFrames = chunk.NFrames
		b.MCode = mCodeFor(codecID)
		b.LenData = HimdAudioSize
		b.Serial = serial
		b.Key = chunk.BlockKey
		b.IV = chunk.IV
		copy(b.Payload[:], chunk.Payload)
		b.BackupType, b.BackupMCode = b.Type, b.MCode
		b.BackupSerial = serial
		serial++
		lastNFrames = chunk.NFrames
		return w.WriteBlock(b)
	})
	if err != nil {
		return UploadAudioTrackResult{}, err
	}
	fb, lb := w.Close()

	frag := FragmentSlot{
		Key:        fragmentKey,
		FirstBlock: uint16(fb),
		LastBlock:  uint16(lb),
		FirstFrame: 0,
		LastFrame:  byte(lastNFrames - 1),
	}
	fragIdx, err := d.tif.AddFragment(frag)
	if err != nil {
		d.tif.RemoveTrack(slotNum)
		return UploadAudioTrackResult{}, err
	}
	signed.FirstFragment = uint16(fragIdx)
	signed.TrackNumber = uint16(slotNum)
	d.tif.WriteTrack(slotNum, signed)

	d.tif.WriteTrackIndexToTrackSlot(trackIndex, uint16(slotNum))
	d.tif.WriteTrackCount(trackIndex + 1)

	return UploadAudioTrackResult{TrackIndex: trackIndex, TrackKey: trackKey}, nil
}

// DumpTrack streams a track's decoded audio to w, wrapped in the
// appropriate export container (spec.md §6).
func (d *Disc) DumpTrack(w io.Writer, index int, trackKey [8]byte, tags ID3Tags) error {
	slotNum := int(d.tif.TrackIndexToTrackSlot(index))
	slot := d.tif.GetTrack(slotNum)

	atdata, err := d.openATDATA(ModeReadOnly)
	if err != nil {
		return err
	}
	defer atdata.Close()

	reader, err := NewTrackAudioReader(d.tif, atdata, slot, trackKey, d.discID, uint32(slot.TrackNumber))
	if err != nil {
		return err
	}

	mpeg := slot.CodecID == CodecATRAC3plusOrMPEG && isMpeg(slot.CodecInfo)
	if mpeg {
		var frames []byte
		for {
			f, err := reader.NextFrames()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			frames = append(frames, f...)
		}
		return WriteMP3Export(w, tags, frames)
	}

	if slot.CodecID == CodecLPCM {
		var samples []byte
		for {
			f, err := reader.NextFrames()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			samples = append(samples, f...)
		}
		rate := SampleRate(slot.CodecID, slot.CodecInfo)
		return WriteWAV(w, rate, samples)
	}

	if err := WriteOMAHeader(w, slot.CodecID, slot.CodecInfo); err != nil {
		return err
	}
	for {
		f, err := reader.NextFrames()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if _, err := w.Write(f); err != nil {
			return fmt.Errorf("himd: write oma payload: %w", err)
		}
	}
	return nil
}

// DeleteTracks removes the tracks at the given ordering indices, frees
// their fragment chains and string chains, shifts the ordering down, and
// adjusts every surviving fragment past a freed ATDATA region (spec.md
// §4.8, §8 scenario 5). Indices are processed in descending order so
// earlier removals don't invalidate later indices.
//
// This only flushes the TIF; it does not re-sign the maclist. spec.md
// §4.8 requires the maclist to be re-signed through §4.6 after a delete,
// but that needs the per-track signing material a live Session holds,
// which DeleteTracks is never given. Callers that maintain a device
// session must open one and drive Disc.FinalizeSession afterward to
// bring the maclist back in sync with the shortened track table.
func (d *Disc) DeleteTracks(indices []int) error {
	sorted := append([]int(nil), indices...)
	sortDescending(sorted)

	type freedRegion struct{ firstBlock, length uint32 }
	var freed []freedRegion

	for _, idx := range sorted {
		slotNum := int(d.tif.TrackIndexToTrackSlot(idx))
		slot := d.tif.GetTrack(slotNum)

		fragIdxs, err := d.tif.Fragments(slot.FirstFragment)
		if err != nil {
			return err
		}
		for _, fi := range fragIdxs {
			f := d.tif.GetFragment(fi)
			first := uint32(f.FirstBlock) &^ 1
			length := (uint32(f.LastBlock) - uint32(f.FirstBlock) + 1)
			length = (length + 1) &^ 1
			freed = append(freed, freedRegion{first, length})
			d.tif.RemoveFragment(fi)
		}

		d.tif.RemoveString(int(slot.TitleIndex))
		d.tif.RemoveString(int(slot.ArtistIndex))
		d.tif.RemoveString(int(slot.AlbumIndex))
		d.tif.RemoveTrack(slotNum)

		n := d.tif.GetTrackCount()
		for j := idx; j < n-1; j++ {
			d.tif.WriteTrackIndexToTrackSlot(j, d.tif.TrackIndexToTrackSlot(j+1))
		}
		d.tif.WriteTrackCount(n - 1)
	}

	if len(freed) > 0 {
		n := d.tif.GetTrackCount()
		for i := 0; i < n; i++ {
			slotNum := int(d.tif.TrackIndexToTrackSlot(i))
			slot := d.tif.GetTrack(slotNum)
			fragIdxs, err := d.tif.Fragments(slot.FirstFragment)
			if err != nil {
				return err
			}
			for _, fi := range fragIdxs {
				f := d.tif.GetFragment(fi)
				for _, r := range freed {
					if uint32(f.FirstBlock) > r.firstBlock {
						f.FirstBlock -= uint16(r.length)
						f.LastBlock -= uint16(r.length)
					}
				}
				d.tif.WriteFragment(fi, f)
			}
		}
	}

	if len(freed) > 0 {
		var regions []FileRegion
		for _, r := range freed {
			regions = append(regions, FileRegion{
				Offset: int64(r.firstBlock) * HimdBlockSize,
				Length: int64(r.length) * HimdBlockSize,
			})
		}
		if err := d.fs.FreeFileRegions(d.atdataPath, regions); err != nil {
			return err
		}
	}

	return d.Flush()
}

func sortDescending(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] < s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// Wipe erases the disc via the device transport, if it supports it.
func (d *Disc) Wipe(ctx context.Context) error {
	if d.transport == nil {
		return ErrUnsupportedOperation
	}
	return d.transport.Wipe(ctx)
}
