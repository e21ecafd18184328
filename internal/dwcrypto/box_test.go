package dwcrypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	senderSecret, err := RandomSecret()
	require.NoError(t, err)
	senderPublic, err := SecretToPublic(senderSecret)
	require.NoError(t, err)

	receiverSecret, err := RandomSecret()
	require.NoError(t, err)
	receiverPublic, err := SecretToPublic(receiverSecret)
	require.NoError(t, err)

	message := bytes.Repeat([]byte("hello darkwiki "), 10)

	cipher, err := EncryptSign(message, senderSecret, receiverPublic)
	require.NoError(t, err)

	plain, err := DecryptVerify(cipher, senderPublic, receiverSecret)
	require.NoError(t, err)
	require.Equal(t, message, plain)
}

func TestDecryptVerifyRejectsTamperedCiphertext(t *testing.T) {
	senderSecret, _ := RandomSecret()
	receiverSecret, _ := RandomSecret()
	senderPublic, _ := SecretToPublic(senderSecret)
	receiverPublic, _ := SecretToPublic(receiverSecret)

	cipher, err := EncryptSign([]byte("payload"), senderSecret, receiverPublic)
	require.NoError(t, err)
	cipher[len(cipher)-1] ^= 0xff

	plain, err := DecryptVerify(cipher, senderPublic, receiverSecret)
	require.NoError(t, err)
	require.Nil(t, plain, "expected nil on tampered ciphertext")
}

func TestNodeIDDeterministic(t *testing.T) {
	secret, _ := RandomSecret()
	public, _ := SecretToPublic(secret)
	id1 := NodeID(public)
	id2 := NodeID(public)
	require.Equal(t, id1, id2, "NodeID not deterministic")
}
