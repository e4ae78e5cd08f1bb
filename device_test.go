package himd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNullTransportReportsUnsupportedOnEveryMethod(t *testing.T) {
	var tr DeviceTransport = NullTransport{}
	ctx := context.Background()

	assert.ErrorIs(t, tr.WriteHostLeafID(ctx, [8]byte{}, [8]byte{}), ErrUnsupportedOperation)

	_, err := tr.GetAuthenticationStage2Info(ctx)
	assert.ErrorIs(t, err, ErrUnsupportedOperation)

	assert.ErrorIs(t, tr.WriteAuthenticationStage3Info(ctx, [8]byte{}, nil), ErrUnsupportedOperation)

	_, err = tr.ReadICV(ctx)
	assert.ErrorIs(t, err, ErrUnsupportedOperation)

	assert.ErrorIs(t, tr.WriteICV(ctx, [8]byte{}, [16]byte{}, [8]byte{}), ErrUnsupportedOperation)
	assert.ErrorIs(t, tr.ReformatHiMD(ctx), ErrUnsupportedOperation)
	assert.ErrorIs(t, tr.Wipe(ctx), ErrUnsupportedOperation)
}
