// Copyright 2025-2026 Mvemba Research Systems

package whatsapp

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// ResolveAuthDir picks a writable directory for the durable session
// credentials. It prefers <preferredBase>/steny-bridge/auth (the persistent
// volume on the usual deployment targets) and falls back to a directory under
// the OS temp dir when the preferred path cannot be created or written.
//
// It never fails: the returned path always exists. Credentials stored under
// the fallback do not survive a host restart, so a warning is logged.
func ResolveAuthDir(preferredBase string, log zerolog.Logger) string {
	if preferredBase == "" {
		preferredBase = "/data"
	}
	preferred := filepath.Join(preferredBase, "steny-bridge", "auth")
	err := ensureWritableDir(preferred)
	if err == nil {
		return preferred
	}
	log.Warn().Err(err).
		Str("path", preferred).
		Msg("Preferred auth dir not writable, falling back to temp dir")

	fallback := filepath.Join(os.TempDir(), "steny-bridge", "auth")
	if err := os.MkdirAll(fallback, 0o700); err != nil {
		log.Error().Err(err).Str("path", fallback).Msg("Failed to create fallback auth dir")
	}
	return fallback
}

// ensureWritableDir creates dir recursively and verifies write access by
// creating and removing a probe file. MkdirAll succeeding is not enough on
// read-only mounts.
func ensureWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".write-probe")
	f, err := os.Create(probe)
	if err != nil {
		return err
	}
	_ = f.Close()
	return os.Remove(probe)
}
