package main

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"

	"github.com/gohimd/himd"
	"github.com/gohimd/himd/internal/osfs"
)

// openDisc mounts mountDir and boots a himd.Disc against it, logging
// generation-selection diagnostics to stderr the way tombatools' verbose
// mode reports processing steps.
func openDisc() (*himd.Disc, error) {
	fs, err := osfs.New(mountDir)
	if err != nil {
		return nil, err
	}
	logger := himd.Logger(func(format string, args ...any) {
		log.Printf(format, args...)
	})
	return himd.OpenDisc(fs, himd.NullTransport{}, logger)
}

func parseTrackKey(s string) ([8]byte, error) {
	var key [8]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("himdctl: invalid --track-key %q: %w", s, err)
	}
	if len(raw) != 8 {
		return key, fmt.Errorf("himdctl: --track-key must be 8 bytes (16 hex chars), got %d bytes", len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

func createOutputFile(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("himdctl: create %s: %w", path, err)
	}
	return f, nil
}
