package signer

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	domainerrors "notary/contexts/ledger-anchoring/record-anchoring-service/domain/errors"
)

const identityPrefix = "ed25519:"

// Local signs with an in-process ed25519 key. Meant for development; production
// deployments use Remote so the key never enters this process.
type Local struct {
	key ed25519.PrivateKey
}

// NewLocal derives the key from a hex-encoded 32-byte seed, or generates a fresh
// one when seedHex is empty.
func NewLocal(seedHex string) (*Local, error) {
	seedHex = strings.TrimSpace(seedHex)
	if seedHex == "" {
		_, key, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate ed25519 key: %w", err)
		}
		return &Local{key: key}, nil
	}

	seed, err := hex.DecodeString(strings.TrimPrefix(seedHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode signer seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signer seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Local{key: ed25519.NewKeyFromSeed(seed)}, nil
}

func (l *Local) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", domainerrors.ErrSignerFailure)
	}
	return ed25519.Sign(l.key, payload), nil
}

func (l *Local) PublicIdentity() string {
	return identityPrefix + hex.EncodeToString(l.key.Public().(ed25519.PublicKey))
}

// Verify checks a signature against an "ed25519:<hex>" identity.
func Verify(identity string, payload []byte, signature []byte) error {
	if !strings.HasPrefix(identity, identityPrefix) {
		return errors.New("unsupported signer identity")
	}
	pub, err := hex.DecodeString(strings.TrimPrefix(identity, identityPrefix))
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return errors.New("invalid ed25519 public key")
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), payload, signature) {
		return errors.New("signature verification failed")
	}
	return nil
}
