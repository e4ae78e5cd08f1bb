package himd

import "context"

// DeviceTransport is the vendor SCSI interface spec.md §6 requires: the
// USB mass-storage plumbing and the actual command/data phases are an
// external collaborator, not part of this package.
type DeviceTransport interface {
	// WriteHostLeafID sends opcode 0x30: the host leaf id and nonce.
	WriteHostLeafID(ctx context.Context, hostLeafID [8]byte, hostNonce [8]byte) error

	// GetAuthenticationStage2Info reads opcode 0x31's fixed-format reply.
	GetAuthenticationStage2Info(ctx context.Context) (Stage2Info, error)

	// WriteAuthenticationStage3Info sends opcode 0x32: the host MAC and
	// the agreed EKB block.
	WriteAuthenticationStage3Info(ctx context.Context, hostMAC [8]byte, ekbBlock []byte) error

	// ReadICV reads opcode 0x33's header/icv/mac triple.
	ReadICV(ctx context.Context) (ICVReply, error)

	// WriteICV sends opcode 0x34: the finalized header, ICV and its MAC.
	WriteICV(ctx context.Context, header [8]byte, icv [16]byte, mac [8]byte) error

	// ReformatHiMD and Wipe are destructive device-level operations,
	// gated by the caller per spec.md §7's UnsupportedOperation.
	ReformatHiMD(ctx context.Context) error
	Wipe(ctx context.Context) error
}

// Stage2Info is the fixed-format payload read from opcode 0x31
// (spec.md §4.6 step 2).
type Stage2Info struct {
	DiscID       [16]byte
	MAC          [8]byte
	DeviceLeafID [8]byte
	DeviceNonce  [8]byte
	KeyType      [4]byte
	KeyLevel     [4]byte
	EkbID        [4]byte
	Key          [16]byte
}

// ICVReply is opcode 0x33's payload.
type ICVReply struct {
	Header [8]byte
	ICV    [16]byte
	MAC    [8]byte
}

// NullTransport is a no-op DeviceTransport used when no physical device
// is attached (spec.md §4.6: maclist load and per-track signing proceed
// "always, even without a device"). Every method reports
// ErrUnsupportedOperation.
type NullTransport struct{}

func (NullTransport) WriteHostLeafID(context.Context, [8]byte, [8]byte) error {
	return ErrUnsupportedOperation
}

func (NullTransport) GetAuthenticationStage2Info(context.Context) (Stage2Info, error) {
	return Stage2Info{}, ErrUnsupportedOperation
}

func (NullTransport) WriteAuthenticationStage3Info(context.Context, [8]byte, []byte) error {
	return ErrUnsupportedOperation
}

func (NullTransport) ReadICV(context.Context) (ICVReply, error) {
	return ICVReply{}, ErrUnsupportedOperation
}

func (NullTransport) WriteICV(context.Context, [8]byte, [16]byte, [8]byte) error {
	return ErrUnsupportedOperation
}

func (NullTransport) ReformatHiMD(context.Context) error { return ErrUnsupportedOperation }
func (NullTransport) Wipe(context.Context) error         { return ErrUnsupportedOperation }
