package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalogFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestSumFile(t *testing.T) {
	path := writeCatalogFile(t, "arms:\n  - name: a\n")

	s1, err := SumFile(path)
	require.NoError(t, err)
	s2, err := SumFile(path)
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
	assert.True(t, strings.HasPrefix(s1.String(), "blake3:"))
	assert.Len(t, s1.String(), len("blake3:")+64)

	other := writeCatalogFile(t, "arms:\n  - name: b\n")
	s3, err := SumFile(other)
	require.NoError(t, err)
	assert.NotEqual(t, s1, s3)

	_, err = SumFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseChecksum(t *testing.T) {
	sum, err := SumFile(writeCatalogFile(t, "arms: []\n"))
	require.NoError(t, err)
	hexPart := strings.TrimPrefix(sum.String(), "blake3:")

	for _, in := range []string{sum.String(), hexPart, " " + strings.ToUpper(sum.String()) + " "} {
		got, err := ParseChecksum(in)
		require.NoError(t, err, in)
		assert.Equal(t, sum, got, in)
	}

	_, err = ParseChecksum("sha256:" + hexPart)
	assert.ErrorContains(t, err, "unsupported checksum algorithm")
	_, err = ParseChecksum("deadbeef")
	assert.ErrorContains(t, err, "64 hex characters")
	_, err = ParseChecksum(strings.Repeat("zz", 32))
	assert.Error(t, err)
}

func TestVerifyCatalog(t *testing.T) {
	path := writeCatalogFile(t, "arms:\n  - name: a\n")
	sum, err := SumFile(path)
	require.NoError(t, err)

	cfg := Defaults()
	cfg.Catalog.Path = path
	assert.NoError(t, cfg.VerifyCatalog(), "no checksum pinned")

	cfg.Catalog.Checksum = sum.String()
	assert.NoError(t, cfg.VerifyCatalog())

	require.NoError(t, os.WriteFile(path, []byte("arms:\n  - name: b\n"), 0o600))
	err = cfg.VerifyCatalog()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash mismatch")
	assert.Contains(t, err.Error(), "armsd catalog hash")
}
