// Package crypto implements the symmetric cipher used for every object and
// ref that leaves the workspace: AES-256-CBC with PKCS#7 padding and a fresh
// random IV prepended to each payload.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	KeySize = 32
	IVSize  = aes.BlockSize
)

var (
	ErrInvalidKey      = errors.New("invalid key: expected 64 hex characters")
	ErrPayloadTooShort = errors.New("payload shorter than iv")
	ErrCorruptPayload  = errors.New("corrupt payload")
)

// Encrypter seals and opens opaque payloads.
type Encrypter interface {
	Encrypt(plain []byte) ([]byte, error)
	Decrypt(payload []byte) ([]byte, error)
}

type Key [KeySize]byte

// ParseKey decodes a 64 character hex string into a Key.
func ParseKey(s string) (Key, error) {
	var k Key
	s = strings.TrimSpace(s)
	if len(s) != KeySize*2 {
		return k, ErrInvalidKey
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	copy(k[:], raw)
	return k, nil
}

// GenerateKey returns a random key in its hex form.
func GenerateKey() (string, error) {
	var k Key
	if _, err := io.ReadFull(rand.Reader, k[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(k[:]), nil
}

type Cipher struct {
	block cipher.Block
	rand  io.Reader
}

var _ Encrypter = (*Cipher)(nil)

func NewCipher(key Key) (*Cipher, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return &Cipher{block: block, rand: rand.Reader}, nil
}

// NewCipherFromHex is ParseKey followed by NewCipher.
func NewCipherFromHex(s string) (*Cipher, error) {
	key, err := ParseKey(s)
	if err != nil {
		return nil, err
	}
	return NewCipher(key)
}

// Encrypt returns iv || CBC(pad(plain)).
func (c *Cipher) Encrypt(plain []byte) ([]byte, error) {
	padded := pad(plain)
	out := make([]byte, IVSize+len(padded))
	iv := out[:IVSize]
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return nil, fmt.Errorf("read iv: %w", err)
	}
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out[IVSize:], padded)
	return out, nil
}

func (c *Cipher) Decrypt(payload []byte) ([]byte, error) {
	if len(payload) < IVSize {
		return nil, ErrPayloadTooShort
	}
	body := payload[IVSize:]
	if len(body) == 0 || len(body)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: body is not block aligned", ErrCorruptPayload)
	}
	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(c.block, payload[:IVSize]).CryptBlocks(plain, body)
	return unpad(plain)
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(append(make([]byte, 0, len(b)+n), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, fmt.Errorf("%w: bad padding", ErrCorruptPayload)
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrCorruptPayload)
		}
	}
	return b[:len(b)-n], nil
}
