package hash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

const bufferSize = 32 * 1024 // 32KB buffer for streaming

const (
	// Size is the length of a Digest in bytes.
	Size = sha256.Size
	// HexLength is the length of a Digest's text form.
	HexLength = Size * 2
)

var (
	// ErrHashLengthInvalid is returned when fingerprint text is not HexLength characters long.
	ErrHashLengthInvalid = errors.New("fingerprint has invalid length")
	// ErrHashMalformed is returned when fingerprint text is not lowercase hex.
	ErrHashMalformed = errors.New("fingerprint is not lowercase hex")
)

// Digest is the SHA-256 fingerprint of a file's content.
type Digest [Size]byte

// ParseDigest validates the 64-character lowercase hex form of a fingerprint.
func ParseDigest(s string) (Digest, error) {
	var d Digest

	if len(s) != HexLength {
		return d, errors.Wrapf(ErrHashLengthInvalid, "got %d characters", len(s))
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return d, errors.Wrapf(ErrHashMalformed, "character %q at offset %d", c, i)
		}
	}

	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return d, errors.Wrap(ErrHashMalformed, err.Error())
	}

	return d, nil
}

// String returns the lowercase hex form.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// HashFile computes the fingerprint of a file using streaming for large files
func HashFile(path string) (Digest, error) {
	file, err := os.Open(path)
	if err != nil {
		return Digest{}, errors.Wrap(err, "failed to open file")
	}
	defer file.Close()

	return HashReader(file)
}

// HashReader streams r through SHA-256 in fixed-size chunks.
func HashReader(r io.Reader) (Digest, error) {
	var d Digest

	h := sha256.New()
	buf := make([]byte, bufferSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return d, errors.Wrap(err, "failed to read file")
		}
	}

	copy(d[:], h.Sum(nil))
	return d, nil
}

// XXHashFunc is a non-cryptographic hash adapter for go-merkletree
// and snapshot checksums. It returns the big-endian xxHash64 of data.
func XXHashFunc(data []byte) ([]byte, error) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, xxhash.Sum64(data))
	return buf, nil
}
