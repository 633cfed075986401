package config

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

const checksumAlgo = "blake3"

// Checksum is a BLAKE3-256 digest, written "blake3:<hex>".
type Checksum [32]byte

func (c Checksum) String() string { return checksumAlgo + ":" + hex.EncodeToString(c[:]) }

// ParseChecksum accepts "blake3:<hex>" or bare hex, case-insensitively.
func ParseChecksum(s string) (Checksum, error) {
	var c Checksum
	s = strings.ToLower(strings.TrimSpace(s))
	if algo, rest, ok := strings.Cut(s, ":"); ok {
		if algo != checksumAlgo {
			return c, fmt.Errorf("unsupported checksum algorithm %q (want %s)", algo, checksumAlgo)
		}
		s = rest
	}
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(c) {
		return c, fmt.Errorf("checksum must be %d hex characters", 2*len(c))
	}
	copy(c[:], raw)
	return c, nil
}

// SumFile streams path through BLAKE3.
func SumFile(path string) (Checksum, error) {
	var c Checksum
	f, err := os.Open(path)
	if err != nil {
		return c, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return c, fmt.Errorf("read %s: %w", path, err)
	}
	copy(c[:], h.Sum(nil))
	return c, nil
}

// VerifyCatalog checks the catalog file against catalog.checksum when one is
// pinned.
func (c *Config) VerifyCatalog() error {
	if c.Catalog.Checksum == "" {
		return nil
	}
	want, err := ParseChecksum(c.Catalog.Checksum)
	if err != nil {
		return fmt.Errorf("catalog.checksum: %w", err)
	}
	got, err := SumFile(c.Catalog.Path)
	if err != nil {
		return fmt.Errorf("catalog verification failed: %w", err)
	}
	if got != want {
		return fmt.Errorf("catalog verification failed: hash mismatch for %s: pinned %s, file is %s\n"+
			"If you edited the catalog intentionally, run: armsd catalog hash", c.Catalog.Path, want, got)
	}
	return nil
}
