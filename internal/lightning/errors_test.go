package lightning

import (
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorKindMatching(t *testing.T) {
	upstream := errors.New("rpc error: code = Unavailable")
	err := NewRPCError(BackendLND, "GetInfo", upstream)

	assert.ErrorIs(t, err, ErrRPC)
	assert.ErrorIs(t, err, upstream)
	assert.NotErrorIs(t, err, ErrCredentialLoad)

	wrapped := pkgerrors.Wrap(err, "payments")
	assert.ErrorIs(t, wrapped, ErrRPC)

	var typed *Error
	assert.True(t, errors.As(wrapped, &typed))
	assert.Equal(t, BackendLND, typed.Backend)
}

func TestErrorMessage(t *testing.T) {
	err := NewRPCError(BackendGreenlight, "Keysend", errors.New("boom"))
	assert.Equal(t, "[RPC] Keysend [backend: greenlight]: boom", err.Error())

	assert.Equal(t, "[WALLET_BUSY] busy", NewError(KindWalletBusy, "busy", nil).Error())
}

func TestParseBackend(t *testing.T) {
	assert.Equal(t, BackendLND, ParseBackend(""))
	assert.Equal(t, BackendLND, ParseBackend("LND"))
	assert.Equal(t, BackendGreenlight, ParseBackend("greenlight"))
	assert.Equal(t, BackendUnknown, ParseBackend("proxy"))
	assert.Equal(t, "proxy", BackendProxy.String())
}
