package vouchers

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// ShortCodeLength is the length of every code ShortCode produces.
const ShortCodeLength = 13

var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// ShortCode is the public identifier of a voucher: its store id as 8 big-endian
// bytes in unpadded base32. Distinct ids always give distinct codes.
func ShortCode(id uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return codeEncoding.EncodeToString(buf[:])
}

// ParseShortCode recovers the store id from a short code.
func ParseShortCode(code string) (uint64, error) {
	if len(code) != ShortCodeLength {
		return 0, fmt.Errorf("short code must be %d characters, got %d", ShortCodeLength, len(code))
	}
	raw, err := codeEncoding.DecodeString(code)
	if err != nil {
		return 0, fmt.Errorf("decode short code: %w", err)
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("short code decodes to %d bytes", len(raw))
	}
	id := binary.BigEndian.Uint64(raw)
	// 13 base32 chars carry 65 bits; reject codes whose spare bit is set.
	if ShortCode(id) != code {
		return 0, fmt.Errorf("short code %q is not canonical", code)
	}
	return id, nil
}

// Secret is a freshly minted validation code together with its stored hash.
// Code is shown to the customer once and never persisted.
type Secret struct {
	Code string
	Hash string
}

// NewSecret draws a random validation code and hashes it.
func NewSecret() (Secret, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return Secret{}, fmt.Errorf("generate validation code: %w", err)
	}
	code := codeEncoding.EncodeToString([]byte(id.String()))
	return Secret{Code: code, Hash: HashValidationCode(code)}, nil
}

// HashValidationCode is base64(SHA-1(code)).
func HashValidationCode(code string) string {
	sum := sha1.Sum([]byte(code))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// MatchesHash compares a presented code with a stored hash in constant time.
func MatchesHash(code, hash string) bool {
	if code == "" || hash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashValidationCode(code)), []byte(hash)) == 1
}

// Matches reports whether code is this secret's validation code.
func (s Secret) Matches(code string) bool {
	return MatchesHash(code, s.Hash)
}
