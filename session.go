package himd

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// expected fixed fields in a Stage2Info reply (spec.md §4.6 step 2).
var (
	stage2KeyType  = [4]byte{0x00, 0x00, 0x00, 0x01}
	stage2KeyLevel = [4]byte{0x00, 0x00, 0x00, 0x09}
	stage2EkbID    = [4]byte{0x00, 0x01, 0x00, 0x12}
	stage2Key      = mustHex16("6A7A4C7D5F3F8684286D1A1232982213")
)

func mustHex16(s string) [16]byte {
	b, err := decodeHex(s)
	if err != nil || len(b) != 16 {
		panic("himd: malformed stage2 key literal: " + s)
	}
	var out [16]byte
	copy(out[:], b)
	return out
}

const maclistTableSize = 32000

// Session drives the secure-session state machine of spec.md §4.6: device
// authentication, maclist load, per-track signing and finalization. A
// Session is created fresh for every upload/delete transaction that must
// survive device verification.
type Session struct {
	transport DeviceTransport
	discID    [16]byte

	hasDevice  bool
	deviceMAC  [8]byte
	sessionKey [8]byte
	icvHeader  [8]byte
	generation uint32

	headKey [16]byte
	bodyKey [16]byte
	allMacs [maclistTableSize]byte

	signedTracks int
}

// OpenSession runs authentication (if transport is non-nil and not a
// NullTransport) and always loads the maclist, per spec.md §4.6.
func OpenSession(ctx context.Context, transport DeviceTransport, discID [16]byte, mclist []byte) (*Session, error) {
	s := &Session{transport: transport, discID: discID}

	if transport != nil {
		if err := s.authenticate(ctx); err != nil {
			if errors.Is(err, ErrUnsupportedOperation) {
				s.hasDevice = false
			} else {
				return nil, err
			}
		} else {
			s.hasDevice = true
		}
	}

	if err := s.loadMaclist(mclist); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) authenticate(ctx context.Context) error {
	hostLeafID := [8]byte{0x02, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	var hostNonce [8]byte
	if _, err := rand.Read(hostNonce[:]); err != nil {
		return fmt.Errorf("himd: generate host nonce: %w", err)
	}

	if err := s.transport.WriteHostLeafID(ctx, hostLeafID, hostNonce); err != nil {
		return err
	}

	info, err := s.transport.GetAuthenticationStage2Info(ctx)
	if err != nil {
		return err
	}
	if info.KeyType != stage2KeyType || info.KeyLevel != stage2KeyLevel ||
		info.EkbID != stage2EkbID || info.Key != stage2Key {
		return fmt.Errorf("%w: unexpected stage2 fixed fields", ErrEkbMismatch)
	}

	macMsg := append(append(append([]byte{}, info.DiscID[:]...), hostNonce[:]...), info.DeviceNonce[:]...)
	if retailMac(macMsg, mainKey) != info.MAC {
		return ErrDeviceMacMismatch
	}
	s.discID = info.DiscID
	s.deviceMAC = info.MAC

	hostMacMsg := append(append(append([]byte{}, info.DiscID[:]...), info.DeviceNonce[:]...), hostNonce[:]...)
	hostMac := retailMac(hostMacMsg, mainKey)

	ekbRoot, err := ekbRootFor(currentEkb)
	if err != nil {
		return err
	}
	if err := s.transport.WriteAuthenticationStage3Info(ctx, hostMac, ekbRoot[:]); err != nil {
		return err
	}

	icv, err := s.transport.ReadICV(ctx)
	if err != nil {
		return err
	}
	s.generation = beU32(icv.Header[4:8]) + 1
	header := icv.Header
	header[1] = 0x20
	s.icvHeader = header

	skMsg := append(append(append([]byte{}, info.DiscID[:]...), s.deviceMAC[:]...), hostMac[:]...)
	s.sessionKey = retailMac(skMsg, mainKey)
	return nil
}

// loadMaclist verifies the EKB tag and unwraps the head/body keys and the
// 32000-byte MAC table (spec.md §4.6 "Maclist load").
func (s *Session) loadMaclist(mclist []byte) error {
	if len(mclist) < mclistOffset+maclistTableSize {
		return fmt.Errorf("%w: maclist is %d bytes", ErrInvalidTrackIndex, len(mclist))
	}
	ekb := beU32(mclist[mclistEkbOffset : mclistEkbOffset+4])
	if ekb != currentEkb {
		return fmt.Errorf("%w: maclist ekb 0x%08X", ErrEkbMismatch, ekb)
	}

	var headKeyCipher, bodyKeyCipher [16]byte
	copy(headKeyCipher[:], mclist[mclistHeadKeyOffset:mclistHeadKeyOffset+16])
	copy(bodyKeyCipher[:], mclist[mclistBodyKeyOffset:mclistBodyKeyOffset+16])

	headKey, err := decryptMaclistKey(headKeyCipher)
	if err != nil {
		return err
	}
	bodyKey, err := decryptMaclistKey(bodyKeyCipher)
	if err != nil {
		return err
	}
	s.headKey, s.bodyKey = headKey, bodyKey
	copy(s.allMacs[:], mclist[mclistOffset:mclistOffset+maclistTableSize])
	return nil
}

// Maclist offsets, spec.md §4.6.
const (
	mclistEkbOffset     = 0x38
	mclistHeadKeyOffset = 0x10
	mclistBodyKeyOffset = 0x60
	mclistGenOffset     = 0x20
	mclistDiscIDOffset  = 0x40
	mclistOffset        = 0x70
)

// CreateAndSignNewTrack picks a random track key, wraps it under the
// current EKB, stamps a fresh content id, signs the track's tail, and
// records the MAC at its slot in the in-memory MAC table (spec.md §4.6
// "Per-track signing").
func (s *Session) CreateAndSignNewTrack(track TrackSlot, trackNumber int) (TrackSlot, [8]byte, error) {
	var trackKey [8]byte
	if _, err := rand.Read(trackKey[:]); err != nil {
		return TrackSlot{}, [8]byte{}, fmt.Errorf("himd: generate track key: %w", err)
	}

	track.EncryptedKey = encryptTrackKey(trackKey)
	track.EkbNumber = currentEkb
	track.ContentID = newContentID()
	track.TrackNumber = uint16(trackNumber)

	tail := signedTail(marshalTrackSlot(track))
	mac := createTrackMac(trackKey, tail)
	track.TrackMAC = mac

	off := (trackNumber - 1) * 8
	if off < 0 || off+8 > len(s.allMacs) {
		return TrackSlot{}, [8]byte{}, fmt.Errorf("himd: track number %d out of maclist range", trackNumber)
	}
	copy(s.allMacs[off:off+8], mac[:])
	s.signedTracks++

	return track, trackKey, nil
}

// newContentID stamps the fixed header plus 12 fixed-then-random bytes
// spec.md §4.6 describes for a freshly created track.
func newContentID() [20]byte {
	var id [20]byte
	copy(id[:8], []byte{0x01, 0x0F, 0x50, 0x00, 0x00, 0x04, 0x00, 0x00})
	_, _ = rand.Read(id[8:20])
	return id
}

// FinalizeSession computes the new ICV, advances the generation, rewrites
// MCLIST, and (if a device is attached) sends the ICV via opcode 0x34
// (spec.md §4.6 "Finalization"). currentGen is the generation the disc
// was booted at; when a device authenticated, the new generation is the
// value it agreed to during authenticate(), otherwise it is currentGen+1.
func (s *Session) FinalizeSession(ctx context.Context, fs Filesystem, currentGen uint32) error {
	headICV := retailMac(s.icvHeader[:], s.headKey)
	bodyICV := retailMac(s.allMacs[:], s.bodyKey)
	var icv [16]byte
	copy(icv[:8], headICV[:])
	copy(icv[8:], bodyICV[:])

	newGen := currentGen + 1
	if s.hasDevice {
		newGen = s.generation
	}
	if err := advanceGeneration(fs, newGen, currentGen); err != nil {
		return fmt.Errorf("himd: advance generation: %w", err)
	}

	newDataNum := newGen % 16
	if err := s.writeMclist(fs, newDataNum, newGen); err != nil {
		return err
	}

	if s.hasDevice {
		var headerICV [24]byte
		copy(headerICV[:8], s.icvHeader[:])
		copy(headerICV[8:], icv[:])
		mac := createIcvMac(headerICV, s.sessionKey)
		if err := s.transport.WriteICV(ctx, s.icvHeader, icv, mac); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) writeMclist(fs Filesystem, newDataNum, generation uint32) error {
	path := generationPath("MCLIST", newDataNum)
	f, err := fs.Open(path, ModeReadWrite)
	if err != nil {
		return fmt.Errorf("himd: open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, mclistOffset+maclistTableSize)
	_, _ = io.ReadFull(f, buf) // best-effort: preserve unrelated header bytes if present
	putBeU32(buf[mclistGenOffset:], generation)
	copy(buf[mclistDiscIDOffset:mclistDiscIDOffset+16], s.discID[:])
	copy(buf[mclistOffset:mclistOffset+maclistTableSize], s.allMacs[:])

	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("himd: write %s: %w", path, err)
	}
	return nil
}
