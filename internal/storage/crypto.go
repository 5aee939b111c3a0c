package storage

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/pbkdf2"
)

// Envelope formats understood by Decrypt.
const (
	FormatGCM       = "GCM3NCR0"
	FormatCBC       = "3NCR0PTD"
	FormatLegacyGCM = "legacy_gcm"
)

const (
	saltSize   = 16
	nonceSize  = 12
	tagSize    = 16
	hashSize   = 32
	kdfRounds  = 100000
	keySize    = 32
	magicSize  = 8
	lengthSize = 8
)

// ErrNoPassword is returned when an envelope operation has no password.
var ErrNoPassword = errors.New("storage: password required")

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, kdfRounds, keySize, sha256.New)
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt seals data in a GCM3NCR0 envelope:
// magic(8) + salt(16) + nonce(12) + ciphertext + tag(16).
func Encrypt(data []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, ErrNoPassword
	}
	head := make([]byte, magicSize+saltSize+nonceSize)
	copy(head, FormatGCM)
	salt := head[magicSize : magicSize+saltSize]
	nonce := head[magicSize+saltSize:]
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(head, nonce, data, nil), nil
}

// IsEncrypted reports whether data starts with a known envelope magic.
func IsEncrypted(data []byte) bool {
	if len(data) < magicSize {
		return false
	}
	m := string(data[:magicSize])
	return m == FormatGCM || m == FormatCBC
}

// Decrypt opens an envelope and reports which format it was in. Data
// without a magic number is tried as the legacy salt+nonce GCM layout.
func Decrypt(data []byte, password string) ([]byte, string, error) {
	if password == "" {
		return nil, "", ErrNoPassword
	}
	if len(data) < magicSize {
		return nil, "", fmt.Errorf("encrypted data too short: %d bytes", len(data))
	}
	switch string(data[:magicSize]) {
	case FormatGCM:
		out, err := openGCM(data[magicSize:], password)
		return out, FormatGCM, err
	case FormatCBC:
		out, err := openCBC(data[magicSize:], password)
		return out, FormatCBC, err
	default:
		log.Debug().Msg("no magic number found, trying legacy GCM layout")
		out, err := openGCM(data, password)
		return out, FormatLegacyGCM, err
	}
}

// openGCM decrypts salt(16) + nonce(12) + ciphertext + tag.
func openGCM(body []byte, password string) ([]byte, error) {
	if len(body) < saltSize+nonceSize+tagSize {
		return nil, fmt.Errorf("GCM data too short: %d bytes", len(body))
	}
	gcm, err := newGCM(password, body[:saltSize])
	if err != nil {
		return nil, err
	}
	nonce := body[saltSize : saltSize+nonceSize]
	out, err := gcm.Open(nil, nonce, body[saltSize+nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("GCM decryption failed: %w", err)
	}
	return out, nil
}

// openCBC decrypts hash(32) + length(8) + salt(16) + iv(16) + ciphertext,
// where hash covers everything after the length field.
func openCBC(body []byte, password string) ([]byte, error) {
	if len(body) < hashSize+lengthSize+saltSize+aes.BlockSize {
		return nil, fmt.Errorf("CBC data too short: %d bytes", len(body))
	}
	stored := body[:hashSize]
	n := binary.BigEndian.Uint64(body[hashSize : hashSize+lengthSize])
	payload := body[hashSize+lengthSize:]
	if uint64(len(payload)) != n {
		return nil, fmt.Errorf("length mismatch: expected %d, got %d", n, len(payload))
	}
	sum := sha256.Sum256(payload)
	if !bytes.Equal(stored, sum[:]) {
		return nil, errors.New("hash verification failed")
	}

	salt, iv, ct := payload[:saltSize], payload[saltSize:saltSize+aes.BlockSize], payload[saltSize+aes.BlockSize:]
	if len(ct)%aes.BlockSize != 0 {
		return nil, errors.New("ciphertext is not a multiple of block size")
	}
	block, err := aes.NewCipher(deriveKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)
	return unpad(plain)
}

func unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty plaintext")
	}
	p := int(data[len(data)-1])
	if p == 0 || p > aes.BlockSize || p > len(data) {
		return nil, fmt.Errorf("invalid padding length: %d", p)
	}
	for _, b := range data[len(data)-p:] {
		if int(b) != p {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-p], nil
}
