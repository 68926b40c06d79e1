package cryptoutils

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// EncryptionKeySize is the AES-256 key length in bytes.
const EncryptionKeySize = 32

// GenerateEncryptionKey returns a fresh base64-encoded AES-256 key. This is
// the form the secret management service expects for dataset secrets.
func GenerateEncryptionKey() (string, error) {
	key := make([]byte, EncryptionKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

func decodeKey(encodedKey string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	if len(key) != EncryptionKeySize {
		return nil, fmt.Errorf("invalid key length %d, expected %d", len(key), EncryptionKeySize)
	}
	return key, nil
}

// EncryptDataset encrypts data with AES-256-CBC and PKCS#7 padding.
// Format: [iv (16 bytes)][ciphertext]. This is the layout the enclave-side
// decryptor of the marketplace reads.
func EncryptDataset(data []byte, encodedKey string) ([]byte, error) {
	key, err := decodeKey(encodedKey)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	padded := pkcs7Pad(data, aes.BlockSize)
	result := make([]byte, aes.BlockSize+len(padded))

	iv := result[:aes.BlockSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	cipher.NewCBCEncrypter(block, iv).CryptBlocks(result[aes.BlockSize:], padded)
	return result, nil
}

// DecryptDataset reverses EncryptDataset.
func DecryptDataset(encrypted []byte, encodedKey string) ([]byte, error) {
	key, err := decodeKey(encodedKey)
	if err != nil {
		return nil, err
	}

	if len(encrypted) < 2*aes.BlockSize || len(encrypted)%aes.BlockSize != 0 {
		return nil, errors.New("encrypted data has invalid length")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	iv := encrypted[:aes.BlockSize]
	plaintext := make([]byte, len(encrypted)-aes.BlockSize)
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, encrypted[aes.BlockSize:])

	return pkcs7Unpad(plaintext, aes.BlockSize)
}

// ComputeEncryptedFileChecksum returns the 0x-prefixed sha256 of the encrypted
// file. The registry stores it as the dataset checksum and workers re-check it
// before decrypting.
func ComputeEncryptedFileChecksum(encrypted []byte) string {
	sum := sha256.Sum256(encrypted)
	return "0x" + hex.EncodeToString(sum[:])
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(bytes.Clone(data), bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded data length")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-padding], nil
}
