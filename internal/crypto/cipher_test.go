package crypto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := NewCipherFromHex(testKey)
	require.NoError(t, err)
	return c
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid", testKey, false},
		{"valid uppercase", strings.ToUpper(testKey), false},
		{"too short", testKey[:62], true},
		{"too long", testKey + "00", true},
		{"not hex", strings.Repeat("zz", 32), true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseKey(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidKey)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCipher_RoundTrip(t *testing.T) {
	c := newTestCipher(t)

	for _, size := range []int{0, 1, 15, 16, 17, 1024, 4099} {
		plain := bytes.Repeat([]byte{'x'}, size)
		sealed, err := c.Encrypt(plain)
		require.NoError(t, err)
		assert.Zero(t, (len(sealed)-IVSize)%16)
		assert.Greater(t, len(sealed), size)

		opened, err := c.Decrypt(sealed)
		require.NoError(t, err)
		assert.Equal(t, plain, opened, "size %d", size)
	}
}

func TestCipher_FreshIV(t *testing.T) {
	c := newTestCipher(t)
	a, err := c.Encrypt([]byte("hello"))
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("hello"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a[:IVSize], b[:IVSize])
}

func TestCipher_DecryptErrors(t *testing.T) {
	c := newTestCipher(t)

	_, err := c.Decrypt([]byte("short"))
	assert.ErrorIs(t, err, ErrPayloadTooShort)

	_, err = c.Decrypt(make([]byte, IVSize))
	assert.ErrorIs(t, err, ErrCorruptPayload)

	_, err = c.Decrypt(make([]byte, IVSize+7))
	assert.ErrorIs(t, err, ErrCorruptPayload)
}

func TestGenerateKey(t *testing.T) {
	k, err := GenerateKey()
	require.NoError(t, err)
	assert.Len(t, k, 64)
	_, err = ParseKey(k)
	assert.NoError(t, err)
}
