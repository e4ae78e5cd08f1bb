package himd

import (
	"crypto/rand"
	"fmt"
	"sync"
)

// EncryptedChunk is one ready-to-write block produced by a streaming
// CryptoProvider pass, paired with the frame count it carries so the
// caller can build the matching fragment record.
type EncryptedChunk struct {
	Payload  []byte
	BlockKey [8]byte
	IV       [8]byte
	NFrames  uint16
}

// CryptoProvider is the async crypto collaborator spec.md §5 allows work
// to be offloaded to: an encryptor/decryptor pair over the same key
// material as cipher.go's synchronous helpers, plus a streaming variant
// with one-chunk back-pressure. Reentrant use of the same provider is
// forbidden and reported as ErrProviderBusy.
type CryptoProvider interface {
	Encryptor(trackKey, fragmentKey, blockKey, blockIv [8]byte, data []byte) ([]byte, error)
	Decryptor(trackKey, fragmentKey, blockKey, blockIv [8]byte, data []byte) ([]byte, error)

	// EncryptStream slices rawData into HimdAudioSize payloads (assuming
	// frameSize-byte frames packed with no gaps), encrypts each in turn
	// under a freshly derived block key/iv pair, and calls yield with the
	// resulting chunk before proceeding to the next one (one in-flight
	// chunk: yield must return before the next block is produced).
	EncryptStream(trackKey, fragmentKey [8]byte, rawData []byte, frameSize int, yield func(EncryptedChunk) error) error
}

// DefaultCryptoProvider is a synchronous CryptoProvider built directly on
// cipher.go's DES routines. It is safe to share across goroutines only in
// the sense that concurrent calls are rejected outright: HiMD's DRM
// pipeline assumes exactly one in-flight operation per disc handle.
type DefaultCryptoProvider struct {
	mu   sync.Mutex
	busy bool
}

func (p *DefaultCryptoProvider) enter() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.busy {
		return ErrProviderBusy
	}
	p.busy = true
	return nil
}

func (p *DefaultCryptoProvider) leave() {
	p.mu.Lock()
	p.busy = false
	p.mu.Unlock()
}

func (p *DefaultCryptoProvider) Encryptor(trackKey, fragmentKey, blockKey, blockIv [8]byte, data []byte) ([]byte, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	return encryptBlock(trackKey, fragmentKey, blockKey, blockIv, data)
}

func (p *DefaultCryptoProvider) Decryptor(trackKey, fragmentKey, blockKey, blockIv [8]byte, data []byte) ([]byte, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	return decryptBlock(trackKey, fragmentKey, blockKey, blockIv, data)
}

func (p *DefaultCryptoProvider) EncryptStream(trackKey, fragmentKey [8]byte, rawData []byte, frameSize int, yield func(EncryptedChunk) error) error {
	if err := p.enter(); err != nil {
		return err
	}
	defer p.leave()
	if frameSize <= 0 {
		return fmt.Errorf("himd: invalid frame size %d", frameSize)
	}
	framesPerBlock := HimdAudioSize / frameSize

	for off := 0; off < len(rawData); off += HimdAudioSize {
		end := off + HimdAudioSize
		nFrames := framesPerBlock
		if end > len(rawData) {
			end = len(rawData)
			nFrames = (end - off) / frameSize
			if nFrames == 0 {
				nFrames = 1
			}
		}
		payload := make([]byte, HimdAudioSize)
		copy(payload, rawData[off:end])

		var blockKey, iv [8]byte
		if _, err := rand.Read(blockKey[:]); err != nil {
			return fmt.Errorf("himd: generate block key: %w", err)
		}
		if _, err := rand.Read(iv[:]); err != nil {
			return fmt.Errorf("himd: generate block iv: %w", err)
		}
		cipherText, err := encryptBlock(trackKey, fragmentKey, blockKey, iv, payload)
		if err != nil {
			return fmt.Errorf("himd: encrypt stream chunk at %d: %w", off, err)
		}
		chunk := EncryptedChunk{Payload: cipherText, BlockKey: blockKey, IV: iv, NFrames: uint16(nFrames)}
		if err := yield(chunk); err != nil {
			return err
		}
	}
	return nil
}
