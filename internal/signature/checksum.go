package signature

import (
	"crypto/sha256"
	"io"
	"os"
)

// blockSize is the read buffer size for the checksum I/O loop.
const blockSize = 64 * 1024

// checksumFile computes the whole-file SHA-256 checksum (spec.md §4.2:
// "a cryptographic checksum of the full byte content"). It always
// reads the complete file rather than bailing out early on a partial
// match, since the result is compared across the whole corpus, not
// just within one candidate set.
func checksumFile(path string) ([32]byte, int64, error) {
	var sum [32]byte

	f, err := os.Open(path)
	if err != nil {
		return sum, 0, err
	}
	defer func() { _ = f.Close() }()

	hasher := sha256.New()
	buf := make([]byte, blockSize)
	n, err := io.CopyBuffer(hasher, f, buf)
	if err != nil {
		return sum, n, err
	}

	copy(sum[:], hasher.Sum(nil))
	return sum, n, nil
}
