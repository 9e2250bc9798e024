package keyring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gokeyring "github.com/zalando/go-keyring"
)

func TestTokenRoundTrip(t *testing.T) {
	gokeyring.MockInit()

	require.NoError(t, SetToken("tok-123"))
	got, err := GetToken()
	require.NoError(t, err)
	assert.Equal(t, "tok-123", got)

	require.NoError(t, DeleteToken())
	_, err = GetToken()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetEmptyToken(t *testing.T) {
	gokeyring.MockInit()
	assert.Error(t, SetToken(""))
}

func TestDeleteMissingToken(t *testing.T) {
	gokeyring.MockInit()
	assert.ErrorIs(t, DeleteToken(), ErrNotFound)
}

func TestIsAvailableWithMock(t *testing.T) {
	gokeyring.MockInit()
	assert.True(t, IsAvailable())
}
