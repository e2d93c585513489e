package hash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math/bits"
	"os"
	"path/filepath"
	"strings"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultBits is the perceptual fingerprint width.
const DefaultBits = 256

var (
	// ErrUndecodable marks bytes that can never be decoded as an image.
	ErrUndecodable = errors.New("undecodable image")
	// ErrWidthMismatch marks fingerprints of different bit widths.
	ErrWidthMismatch = errors.New("fingerprint width mismatch")
)

// ContentFingerprint computes the SHA-256 digest of a byte stream.
func ContentFingerprint(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ContentFingerprintFile computes the SHA-256 digest of a file.
func ContentFingerprintFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return ContentFingerprint(file)
}

// DecodeImage decodes raster bytes and applies the EXIF orientation, if any.
func DecodeImage(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, "", fmt.Errorf("%w: empty raster", ErrUndecodable)
	}
	return orient(img, exifOrientation(data)), strings.ToLower(format), nil
}

// PerceptualFingerprint computes a DCT perceptual hash of the given width
// and returns its storage form.
func PerceptualFingerprint(img image.Image, width int) (string, error) {
	side, err := sideFor(width)
	if err != nil {
		return "", err
	}
	h, err := goimagehash.ExtPerceptionHash(img, side, side)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return h.ToString(), nil
}

// sideFor returns the square side producing width bits.
func sideFor(width int) (int, error) {
	for side := 8; side*side <= width; side *= 2 {
		if side*side == width {
			return side, nil
		}
	}
	return 0, fmt.Errorf("unsupported fingerprint width %d (want 64, 256, 1024, ...)", width)
}

// ValidWidth reports whether width can be produced by PerceptualFingerprint.
func ValidWidth(width int) bool {
	_, err := sideFor(width)
	return err == nil
}

// IsSupportedImage checks if a file is a supported image format
func IsSupportedImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tiff", ".tif":
		return true
	default:
		return false
	}
}

// HammingDistance calculates the Hamming distance between two 64-bit words
func HammingDistance(hash1, hash2 uint64) int {
	return bits.OnesCount64(hash1 ^ hash2)
}
