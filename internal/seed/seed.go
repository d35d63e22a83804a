// Package seed derives all swap key material from a single 32-byte root.
package seed

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Length is the number of raw bytes a Seed holds.
const Length = 32

// pemTag is the PEM block type written to seed.pem.
const pemTag = "SEED"

// ErrIncorrectLength is returned when a decoded seed is not exactly Length bytes.
var ErrIncorrectLength = errors.New("seed: incorrect length")

// Seed is an opaque root of trust for a node's swap-related key material.
// It is immutable once loaded.
type Seed [Length]byte

// Random generates a new Seed from a CSPRNG.
func Random() (Seed, error) {
	var s Seed
	if _, err := rand.Read(s[:]); err != nil {
		return Seed{}, fmt.Errorf("seed: generate: %w", err)
	}
	return s, nil
}

// derive computes SHA-256(seed ‖ label_1 ‖ ... ‖ label_n), the one derivation
// primitive every other key and secret in the system is built from.
func derive(s Seed, labels ...string) Seed {
	h := sha256.New()
	h.Write(s[:])
	for _, label := range labels {
		h.Write([]byte(label))
	}
	var out Seed
	copy(out[:], h.Sum(nil))
	return out
}

// SwapSeed derives the per-swap seed from the root and a SwapId.
func SwapSeed(root Seed, swapID string) Seed {
	return derive(root, "SWAP"+swapID)
}

// DeriveRedeemIdentity derives the 32-byte redeem private key material for a swap seed.
func DeriveRedeemIdentity(swapSeed Seed) [32]byte {
	return [32]byte(derive(swapSeed, "REDEEM"))
}

// DeriveRefundIdentity derives the 32-byte refund private key material for a swap seed.
func DeriveRefundIdentity(swapSeed Seed) [32]byte {
	return [32]byte(derive(swapSeed, "REFUND"))
}

// DeriveSecret derives the 32-byte swap secret (whose SHA-256 image is the
// SecretHash sent in the RFC003 request). Only Alice calls this; Bob learns
// the secret by observing Alice's redeem.
func DeriveSecret(swapSeed Seed) [32]byte {
	return [32]byte(derive(swapSeed, "SECRET"))
}

// SecretHash returns SHA-256(secret).
func SecretHash(secret [32]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// Bytes returns the raw 32 bytes of the seed.
func (s Seed) Bytes() []byte {
	out := make([]byte, Length)
	copy(out, s[:])
	return out
}

// LoadOrGenerate reads data.dir/seed.pem, generating and persisting a fresh
// random seed if the file does not exist. The PEM block type is "SEED" and
// its body is the raw 32 bytes (pem.Encode base64-encodes it for us).
func LoadOrGenerate(dataDir string) (Seed, error) {
	path := filepath.Join(dataDir, "seed.pem")

	if data, err := os.ReadFile(path); err == nil {
		return decode(data)
	} else if !os.IsNotExist(err) {
		return Seed{}, fmt.Errorf("seed: read %s: %w", path, err)
	}

	s, err := Random()
	if err != nil {
		return Seed{}, err
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return Seed{}, fmt.Errorf("seed: create data dir: %w", err)
	}
	if err := os.WriteFile(path, encode(s), 0600); err != nil {
		return Seed{}, fmt.Errorf("seed: write %s: %w", path, err)
	}
	return s, nil
}

func encode(s Seed) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: pemTag, Bytes: s[:]})
}

func decode(data []byte) (Seed, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemTag {
		return Seed{}, fmt.Errorf("seed: no %s PEM block found", pemTag)
	}
	if len(block.Bytes) != Length {
		return Seed{}, fmt.Errorf("%w: got %d bytes, want %d", ErrIncorrectLength, len(block.Bytes), Length)
	}
	var s Seed
	copy(s[:], block.Bytes)
	return s, nil
}
