// Package imagekernel holds the pure, deterministic, CPU-bound operations
// over source image bytes: hashing, dimension probing, grid suggestion,
// and tile rendering.
package imagekernel

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// Hash returns the SHA-256 hex digest of the raw source bytes (not of the
// decoded pixels).
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Probe reads the intrinsic width/height of an encoded image without
// decoding pixel data.
func Probe(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("imagekernel: probe: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
