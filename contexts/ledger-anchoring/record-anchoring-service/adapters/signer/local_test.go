package signer

import (
	"context"
	"strings"
	"testing"

	domainerrors "notary/contexts/ledger-anchoring/record-anchoring-service/domain/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSeed = "0x9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"

func TestLocalSignerFromSeedIsDeterministic(t *testing.T) {
	first, err := NewLocal(testSeed)
	require.NoError(t, err)
	second, err := NewLocal(strings.TrimPrefix(testSeed, "0x"))
	require.NoError(t, err)

	assert.Equal(t, first.PublicIdentity(), second.PublicIdentity())
	assert.Equal(t, "ed25519:d75a980182b10ab7d54bfed3c964073a0ee172f3daa62325af021a68f707511a", first.PublicIdentity())

	payload := []byte("digest bytes")
	signature, err := first.Sign(context.Background(), payload)
	require.NoError(t, err)
	require.NoError(t, Verify(first.PublicIdentity(), payload, signature))
	assert.Error(t, Verify(first.PublicIdentity(), []byte("tampered"), signature))
}

func TestLocalSignerGeneratesKeyWithoutSeed(t *testing.T) {
	a, err := NewLocal("")
	require.NoError(t, err)
	b, err := NewLocal("")
	require.NoError(t, err)
	assert.NotEqual(t, a.PublicIdentity(), b.PublicIdentity())
}

func TestLocalSignerRejectsBadInput(t *testing.T) {
	_, err := NewLocal("zz")
	assert.Error(t, err)
	_, err = NewLocal("abcd")
	assert.Error(t, err)

	signer, err := NewLocal(testSeed)
	require.NoError(t, err)
	_, err = signer.Sign(context.Background(), nil)
	assert.ErrorIs(t, err, domainerrors.ErrSignerFailure)

	assert.Error(t, Verify("rsa:abcd", []byte("x"), []byte("y")))
}
