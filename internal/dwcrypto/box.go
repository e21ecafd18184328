// Package dwcrypto wraps a NaCl crypto_box (X25519 key agreement with
// XSalsa20-Poly1305 authenticated encryption) for peer-to-peer messages:
// one sender secret key, one receiver public key, per message.
package dwcrypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

const (
	// KeySize is the length in bytes of both secret and public keys.
	KeySize = 32
	// nonceSize is crypto_box's nonce length.
	nonceSize = 24
)

// SecretKey is a private X25519 key.
type SecretKey [KeySize]byte

// PublicKey is a public X25519 key.
type PublicKey [KeySize]byte

// RandomSecret generates a new random secret key.
func RandomSecret() (SecretKey, error) {
	_, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return SecretKey{}, fmt.Errorf("generate key: %w", err)
	}
	return SecretKey(*priv), nil
}

// SecretToPublic derives the public key matching a secret key.
func SecretToPublic(secret SecretKey) (PublicKey, error) {
	pub, err := curve25519.X25519(secret[:], curve25519.Basepoint)
	if err != nil {
		return PublicKey{}, fmt.Errorf("derive public key: %w", err)
	}
	var out PublicKey
	copy(out[:], pub)
	return out, nil
}

// EncryptSign authenticated-encrypts message for publicDestination, signed
// implicitly by secretOrigin (crypto_box authentication). The result is
// nonce || ciphertext.
func EncryptSign(message []byte, secretOrigin SecretKey, publicDestination PublicKey) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	priv := (*[KeySize]byte)(&secretOrigin)
	pub := (*[KeySize]byte)(&publicDestination)
	sealed := box.Seal(nonce[:], message, &nonce, pub, priv)
	return sealed, nil
}

// DecryptVerify authenticates and decrypts a ciphertext produced by
// EncryptSign. It returns nil, nil (not an error) on authentication
// failure, matching the Python reference's "return None" behavior.
func DecryptVerify(cipher []byte, publicOrigin PublicKey, secretDestination SecretKey) ([]byte, error) {
	if len(cipher) < nonceSize {
		return nil, nil
	}
	var nonce [nonceSize]byte
	copy(nonce[:], cipher[:nonceSize])
	pub := (*[KeySize]byte)(&publicOrigin)
	priv := (*[KeySize]byte)(&secretDestination)
	message, ok := box.Open(nil, cipher[nonceSize:], &nonce, pub, priv)
	if !ok {
		return nil, nil
	}
	return message, nil
}

// NodeID derives the compact u32 node identifier from a public key: the
// first four bytes of SHA-256(public_key), interpreted little-endian.
func NodeID(public PublicKey) uint32 {
	sum := sha256.Sum256(public[:])
	return binary.LittleEndian.Uint32(sum[:4])
}
