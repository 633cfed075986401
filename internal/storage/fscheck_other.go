//go:build !darwin && !linux

package storage

func statFilesystem(string) (string, error) { return "", errProbeUnsupported }
