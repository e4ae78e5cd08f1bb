package himd

import "errors"

// Sentinel errors returned by the himd package. Callers should compare
// against these with errors.Is; wrapping context is added with fmt.Errorf
// at each call site.
var (
	ErrNoTrackIndex        = errors.New("himd: no track index found")
	ErrInvalidTrackIndex   = errors.New("himd: track index image is malformed")
	ErrUnknownEkb          = errors.New("himd: unknown EKB number")
	ErrInvalidEncoding     = errors.New("himd: string does not decode under a known HiMD encoding")
	ErrUnencodable         = errors.New("himd: string cannot be represented in any HiMD encoding")
	ErrNotEnoughStringSlots = errors.New("himd: string freelist exhausted")
	ErrFragmentChainBroken = errors.New("himd: fragment chain is broken")
	ErrLastFrameBeforeFirstFrame = errors.New("himd: last frame precedes first frame")
	ErrBlockDataTooLarge   = errors.New("himd: block payload exceeds capacity")
	ErrFrameOutOfRange     = errors.New("himd: frame index out of range")
	ErrReadOnlyFile        = errors.New("himd: file is read-only")
	ErrDirectoryAsFile     = errors.New("himd: path refers to a directory")
	ErrDeviceMacMismatch   = errors.New("himd: device MAC verification failed")
	ErrIcvMacMismatch      = errors.New("himd: ICV MAC verification failed")
	ErrEkbMismatch         = errors.New("himd: EKB id mismatch")
	ErrProviderBusy        = errors.New("himd: crypto provider already in use")
	ErrUnsupportedOperation = errors.New("himd: driver does not support this operation")
	ErrTrackNotFound       = errors.New("himd: track index out of range")
	ErrGroupOverlap        = errors.New("himd: group ranges overlap")
)
