package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// errProbeUnsupported is returned by statFilesystem on platforms without a
// statfs implementation. Callers treat it as "unknown, assume local".
var errProbeUnsupported = errors.New("filesystem probe unsupported on this platform")

// Filesystem describes the filesystem holding a path.
type Filesystem struct {
	// Path is the nearest existing ancestor that was probed.
	Path string
	// Type is a name such as "ext4" or "nfs", or the raw magic in hex.
	Type string
	// Network is true for filesystems where SQLite's file locks are unreliable.
	Network bool
	// Known is false when the platform could not be probed.
	Known bool
}

var networkTypes = map[string]bool{
	"afpfs":  true,
	"cifs":   true,
	"nfs":    true,
	"nfs4":   true,
	"smbfs":  true,
	"smb2":   true,
	"webdav": true,
}

// ProbeFilesystem reports the filesystem that path lives on, or will live on
// once created.
func ProbeFilesystem(path string) (Filesystem, error) {
	return probeWith(path, statFilesystem)
}

func probeWith(path string, stat func(string) (string, error)) (Filesystem, error) {
	if path == "" {
		return Filesystem{}, fmt.Errorf("sqlite path is empty")
	}
	existing, err := existingAncestor(path)
	if err != nil {
		return Filesystem{}, fmt.Errorf("resolve database path %q: %w", path, err)
	}

	fsType, err := stat(existing)
	if errors.Is(err, errProbeUnsupported) {
		return Filesystem{Path: existing}, nil
	}
	if err != nil {
		return Filesystem{}, fmt.Errorf("probe filesystem for %q: %w", existing, err)
	}

	fsType = strings.ToLower(strings.TrimSpace(fsType))
	return Filesystem{Path: existing, Type: fsType, Network: networkTypes[fsType], Known: true}, nil
}

// requireLocalFilesystem refuses SQLite databases on network mounts: reward
// increments depend on SQLite's locking.
func requireLocalFilesystem(path string, stat func(string) (string, error)) error {
	fs, err := probeWith(path, stat)
	if err != nil {
		return err
	}
	if fs.Network {
		return fmt.Errorf(
			"belief database %q is on network filesystem %q; concurrent reward updates rely on SQLite file locking, which is unreliable there. Point store.path at local disk or use store.driver postgres/redis",
			path, fs.Type,
		)
	}
	return nil
}

// existingAncestor walks up from path to the first component that exists.
func existingAncestor(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}
	for dir := abs; ; {
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %q: %w", dir, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no existing parent for %q", abs)
		}
		dir = parent
	}
}
