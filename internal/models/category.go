package models

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Category is the kind of media a record holds.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryImage
	CategoryVideo
	CategoryAudio
	CategoryDocument
)

var categoryNames = map[Category]string{
	CategoryUnknown:  "unknown",
	CategoryImage:    "image",
	CategoryVideo:    "video",
	CategoryAudio:    "audio",
	CategoryDocument: "document",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "unknown"
}

// ParseCategory parses a category name.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, name := range categoryNames {
		if name == s {
			return c, nil
		}
	}
	return CategoryUnknown, fmt.Errorf("unknown category %q", s)
}

func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// CategoryFromPath guesses the category from a file extension.
func CategoryFromPath(path string) Category {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tiff", ".tif":
		return CategoryImage
	case ".mp4", ".webm", ".mov", ".mkv", ".ogv":
		return CategoryVideo
	case ".mp3", ".ogg", ".oga", ".flac", ".wav", ".opus":
		return CategoryAudio
	case ".pdf", ".djvu", ".svg":
		return CategoryDocument
	default:
		return CategoryUnknown
	}
}

// Traits are the static capabilities of a media category.
type Traits struct {
	ConsidersVariants bool
	Perceptual        bool
}

// Capabilities maps each category to its traits.
type Capabilities map[Category]Traits

// DefaultCapabilities returns the built-in category table: only images
// are perceptually fingerprinted and only images use the variant zone.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		CategoryImage:    {ConsidersVariants: true, Perceptual: true},
		CategoryVideo:    {},
		CategoryAudio:    {},
		CategoryDocument: {},
		CategoryUnknown:  {},
	}
}

// ConsidersVariants reports whether c keeps near matches as variants.
func (caps Capabilities) ConsidersVariants(c Category) bool {
	return caps[c].ConsidersVariants
}

// Perceptual reports whether c gets a perceptual fingerprint.
func (caps Capabilities) Perceptual(c Category) bool {
	return caps[c].Perceptual
}

// With returns a copy of caps with the variant capability of c overridden.
func (caps Capabilities) With(c Category, considersVariants bool) Capabilities {
	out := make(Capabilities, len(caps))
	for k, v := range caps {
		out[k] = v
	}
	t := out[c]
	t.ConsidersVariants = considersVariants
	out[c] = t
	return out
}
