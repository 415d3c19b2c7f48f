package botclient

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
)

// padBlockSize is the block size of the custom padding scheme. The remote
// service pads to 32 bytes even though the AES-CBC cipher block is 16; both
// sides must agree on this exact scheme, so it is preserved as-is.
const padBlockSize = 32

// Codec encrypts and decrypts bot-service payloads with AES-256-CBC.
//
// The 32-byte key comes from base64-decoding the configured key string with a
// trailing '=' appended, and the IV is deterministically the first 16 bytes of
// the key. Both derivations are fixed by the remote service's wire format.
type Codec struct {
	key []byte
	iv  []byte
}

// NewCodec derives the AES key from the configured base64 key string.
// Returns ErrBadKey when the decoded key is not exactly 32 bytes.
func NewCodec(encodingAESKey string) (*Codec, error) {
	key, err := base64.StdEncoding.DecodeString(encodingAESKey + "=")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadKey, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: decoded to %d bytes, want 32", ErrBadKey, len(key))
	}
	return &Codec{key: key, iv: key[:16]}, nil
}

// Encrypt pads plainText to the 32-byte block size, encrypts it with
// AES-256-CBC, and returns the ciphertext base64-encoded.
func (c *Codec) Encrypt(plainText string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	padded := pkcs5Pad([]byte(plainText))
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, c.iv).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt base64-decodes cipherText, decrypts it, and strips the custom
// padding.
func (c *Codec) Decrypt(cipherText string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(cipherText)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 || len(raw)%block.BlockSize() != 0 {
		return "", fmt.Errorf("ciphertext length %d is not a multiple of the cipher block size", len(raw))
	}
	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, c.iv).CryptBlocks(out, raw)
	return string(pkcs5Unpad(out)), nil
}

// pkcs5Pad appends (32 - len mod 32) bytes, each holding the pad length.
// Input already on a block boundary gains a full block of padding.
func pkcs5Pad(b []byte) []byte {
	n := padBlockSize - len(b)%padBlockSize
	out := make([]byte, len(b), len(b)+n)
	copy(out, b)
	for i := 0; i < n; i++ {
		out = append(out, byte(n))
	}
	return out
}

// pkcs5Unpad strips the trailing pad only when the last byte reads as a pad
// length in [1,32] that fits the buffer; otherwise the buffer is returned
// untouched.
func pkcs5Unpad(b []byte) []byte {
	if len(b) == 0 {
		return b
	}
	n := int(b[len(b)-1])
	if n < 1 || n > padBlockSize || n > len(b) {
		return b
	}
	return b[:len(b)-n]
}
