// Package fingerprint fills in the missing fingerprints of a media record.
package fingerprint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mediadedup/internal/fetch"
	"mediadedup/internal/hash"
	"mediadedup/internal/models"
)

// Fetcher retrieves asset bytes.
type Fetcher interface {
	Fetch(ctx context.Context, location string) (*fetch.Result, error)
}

// Computer computes content fingerprints for every active channel and a
// perceptual fingerprint for the primary channel of perceptual categories.
// Fingerprints already present are never recomputed.
type Computer struct {
	fetcher Fetcher
	caps    models.Capabilities
	bits    int
	logger  *slog.Logger
}

// Option configures a Computer
type Option func(*Computer)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Computer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Computer producing perceptual fingerprints of the given width.
func New(fetcher Fetcher, caps models.Capabilities, bits int, opts ...Option) (*Computer, error) {
	if !hash.ValidWidth(bits) {
		return nil, fmt.Errorf("unsupported fingerprint width %d", bits)
	}
	c := &Computer{
		fetcher: fetcher,
		caps:    caps,
		bits:    bits,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Pending reports whether Compute would have work to do for m.
func (c *Computer) Pending(m *models.MediaRecord) bool {
	for _, ch := range m.ActiveChannels() {
		if c.needsContent(m, ch) || c.needsPerceptual(m, ch) {
			return true
		}
	}
	return false
}

func (c *Computer) needsContent(m *models.MediaRecord, ch models.Channel) bool {
	return m.Channels[ch].ContentFingerprint == ""
}

// needsPerceptual is true only for the primary channel of a perceptual
// category that has not been marked unreadable.
func (c *Computer) needsPerceptual(m *models.MediaRecord, ch models.Channel) bool {
	return ch == models.ChannelPrimary &&
		c.caps.Perceptual(m.Category) &&
		m.Readable != models.ReadableNo &&
		m.Channels[ch].PerceptualFingerprint == ""
}

// Compute fills in missing fingerprints on m and reports whether m changed.
// Fetch failures leave the affected channel untouched and are returned;
// channels computed before the failure stay computed. A decode failure is
// not an error: m is marked unreadable and ignored instead.
func (c *Computer) Compute(ctx context.Context, m *models.MediaRecord) (bool, error) {
	changed := false
	for _, ch := range m.ActiveChannels() {
		wantContent := c.needsContent(m, ch)
		wantPerceptual := c.needsPerceptual(m, ch)
		if !wantContent && !wantPerceptual {
			continue
		}

		md := m.Metadata(ch)
		res, err := c.fetcher.Fetch(ctx, md.AssetLocation)
		if err != nil {
			return changed, fmt.Errorf("fetch %s channel of %s: %w", ch, m.ID, err)
		}

		if wantContent {
			fp, err := hash.ContentFingerprint(bytes.NewReader(res.Data))
			if err != nil {
				return changed, fmt.Errorf("content fingerprint of %s: %w", m.ID, err)
			}
			md.ContentFingerprint = fp
			md.Size = int64(len(res.Data))
			if md.MIMEType == "" {
				md.MIMEType = res.MIMEType
			}
			changed = true
		}

		if wantPerceptual {
			ok, err := c.perceptual(m, md, res.Data)
			if err != nil {
				return changed, err
			}
			if ok || m.Readable == models.ReadableNo {
				changed = true
			}
		}
	}
	return changed, nil
}

// perceptual decodes data and stores its perceptual fingerprint on md.
func (c *Computer) perceptual(m *models.MediaRecord, md *models.Metadata, data []byte) (bool, error) {
	img, format, err := hash.DecodeImage(data)
	if err == nil {
		var fp string
		fp, err = hash.PerceptualFingerprint(img, c.bits)
		if err == nil {
			md.PerceptualFingerprint = fp
			m.Readable = models.ReadableYes
			c.logger.Debug("perceptual fingerprint computed",
				"media_id", m.ID, "format", format, "fingerprint", fp)
			return true, nil
		}
	}
	if !errors.Is(err, hash.ErrUndecodable) {
		return false, fmt.Errorf("perceptual fingerprint of %s: %w", m.ID, err)
	}

	m.Readable = models.ReadableNo
	m.Ignore(models.ReasonUnreadable)
	c.logger.Warn("media unreadable",
		"media_id", m.ID, "location", md.AssetLocation, "error", err)
	return false, nil
}
