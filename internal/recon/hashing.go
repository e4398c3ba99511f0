package recon

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

const hashBlockSize = 64 << 10

// Digest is the whole-file identity computed before any parsing.
type Digest struct {
	MD5    string
	SHA256 string
	Size   int64
}

// HashFile streams path through MD5 and SHA-256 in fixed-size blocks.
func HashFile(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return HashReader(f)
}

// HashReader is HashFile over an arbitrary stream.
func HashReader(r io.Reader) (Digest, error) {
	m := md5.New()
	s := sha256.New()
	w := io.MultiWriter(m, s)

	var size int64
	buf := make([]byte, hashBlockSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			w.Write(buf[:n])
			size += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Digest{}, fmt.Errorf("failed to hash content: %w", err)
		}
	}
	return Digest{
		MD5:    hex.EncodeToString(m.Sum(nil)),
		SHA256: hex.EncodeToString(s.Sum(nil)),
		Size:   size,
	}, nil
}
