package pdf

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/spherical/slide-pipeline/internal/domain"
)

// Checksum returns the hex SHA-256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ChecksumFile streams the file at path through SHA-256.
func ChecksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", domain.IOError("open file for checksum", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", domain.IOError("read file for checksum", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
