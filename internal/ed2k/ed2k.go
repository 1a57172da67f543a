// Package ed2k computes the ed2k file hash AniDB keys files by:
// MD4 per 9728000-byte chunk, then MD4 over the concatenated digests.
// A file of at most one chunk hashes to its plain MD4.
package ed2k

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/md4"
)

// ChunkSize is the ed2k block size.
const ChunkSize = 9728000

// Hash reads r to EOF and returns the lowercase hex ed2k hash.
func Hash(r io.Reader) (string, error) {
	var digests []byte
	chunks := 0
	buf := make([]byte, ChunkSize)
	var last []byte
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			h := md4.New()
			h.Write(buf[:n])
			last = h.Sum(nil)
			digests = append(digests, last...)
			chunks++
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	if chunks == 0 {
		h := md4.New()
		return hex.EncodeToString(h.Sum(nil)), nil
	}
	if chunks == 1 {
		return hex.EncodeToString(last), nil
	}
	h := md4.New()
	h.Write(digests)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile hashes the file at path and returns its hash and size.
func HashFile(path string) (hash string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return "", 0, err
	}
	hash, err = Hash(f)
	if err != nil {
		return "", 0, fmt.Errorf("hash %s: %w", path, err)
	}
	return hash, st.Size(), nil
}
