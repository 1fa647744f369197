package vault

import (
	"errors"
	"strings"
	"testing"

	"atstore-api/pkg/apierror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresKey(t *testing.T) {
	_, err := New("")
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestVault_RoundTrip(t *testing.T) {
	v, err := New("unit-test-secret")
	require.NoError(t, err)

	inputs := []string{
		"",
		"player_01",
		"p@ss w0rd!~",
		"Mật khẩu có dấu",
		strings.Repeat("x", 4096),
	}

	for _, in := range inputs {
		ct, err := v.Encrypt(in)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(ct, formatPrefix))
		if in != "" {
			assert.NotContains(t, ct, in)
		}

		out, err := v.Decrypt(ct)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestVault_NonceIsRandom(t *testing.T) {
	v, err := New("unit-test-secret")
	require.NoError(t, err)

	a, err := v.Encrypt("same")
	require.NoError(t, err)
	b, err := v.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVault_DecryptFailures(t *testing.T) {
	v, err := New("unit-test-secret")
	require.NoError(t, err)
	other, err := New("another-secret")
	require.NoError(t, err)

	valid, err := v.Encrypt("hunter2")
	require.NoError(t, err)
	foreign, err := other.Encrypt("hunter2")
	require.NoError(t, err)

	tampered := []byte(valid)
	pos := len(formatPrefix) + 5
	if tampered[pos] == 'A' {
		tampered[pos] = 'B'
	} else {
		tampered[pos] = 'A'
	}

	tests := []struct {
		name       string
		ciphertext string
	}{
		{name: "WrongKey", ciphertext: foreign},
		{name: "Tampered", ciphertext: string(tampered)},
		{name: "NoPrefix", ciphertext: "U2FsdGVkX1+legacy"},
		{name: "BadEncoding", ciphertext: formatPrefix + "!!!"},
		{name: "TooShort", ciphertext: formatPrefix + "AAAA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Decrypt(tt.ciphertext)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDecryption))
			assert.True(t, apierror.HasCode(err, apierror.CodeDecryption))
		})
	}
}

func TestVault_Credential(t *testing.T) {
	v, err := New("unit-test-secret")
	require.NoError(t, err)

	enc, err := v.EncryptCredential(Credential{Username: "alice", Password: "s3cret"})
	require.NoError(t, err)
	assert.NotEqual(t, "alice", enc.Username)

	dec, err := v.DecryptCredential(enc)
	require.NoError(t, err)
	assert.Equal(t, Credential{Username: "alice", Password: "s3cret"}, dec)
}
