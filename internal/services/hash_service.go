package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var checksumPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// HashService computes the SHA-256 digests used by sync: attachment
// checksums and the hashed site password sent to the central server.
type HashService struct{}

// NewHashService creates a new HashService
func NewHashService() *HashService {
	return &HashService{}
}

// ComputeHash returns the hex SHA-256 of everything read from r
func (s *HashService) ComputeHash(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ComputeHashBytes returns the hex SHA-256 of data
func (s *HashService) ComputeHashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SitePassword returns the form of a site password that goes on the wire.
// The plain password never leaves the site.
func (s *HashService) SitePassword(password string) string {
	return s.ComputeHashBytes([]byte(password))
}

// ParseChecksum normalises a checksum received in a request header.
// An empty header is allowed and returns "".
func (s *HashService) ParseChecksum(header string) (string, error) {
	checksum := strings.ToLower(strings.TrimSpace(header))
	checksum = strings.TrimPrefix(checksum, "sha256:")
	if checksum == "" {
		return "", nil
	}
	if !checksumPattern.MatchString(checksum) {
		return "", fmt.Errorf("invalid sha256 checksum %q", header)
	}
	return checksum, nil
}
