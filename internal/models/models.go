package models

import (
	"fmt"
	"time"
)

// Ignore reasons recorded on media that must not be published on their own.
const (
	ReasonAlreadyPresent = "already present"
	ReasonUnreadable     = "unreadable"
)

// Readable is the tri-state decode status of a media record.
type Readable int

const (
	ReadableUnknown Readable = iota
	ReadableYes
	ReadableNo
)

func (r Readable) String() string {
	switch r {
	case ReadableYes:
		return "readable"
	case ReadableNo:
		return "unreadable"
	default:
		return "unknown"
	}
}

// Channel names one of the metadata slots a media record owns.
type Channel int

const (
	ChannelPrimary Channel = iota
	ChannelFullRes
	ChannelExtra

	// ChannelCount is the number of metadata channels per record.
	ChannelCount = 3
)

// AllChannels lists every channel in storage order.
var AllChannels = []Channel{ChannelPrimary, ChannelFullRes, ChannelExtra}

func (c Channel) String() string {
	switch c {
	case ChannelPrimary:
		return "primary"
	case ChannelFullRes:
		return "full_res"
	case ChannelExtra:
		return "extra"
	default:
		return "unknown"
	}
}

// Metadata holds the fingerprints of one asset and where to re-fetch it.
type Metadata struct {
	AssetLocation         string `json:"asset_location"`
	ContentFingerprint    string `json:"content_fingerprint,omitempty"`    // hex SHA-256
	PerceptualFingerprint string `json:"perceptual_fingerprint,omitempty"` // p:<hex>
	Size                  int64  `json:"size,omitempty"`
	MIMEType              string `json:"mime_type,omitempty"`
}

// IsEmpty reports whether the channel carries no asset.
func (m Metadata) IsEmpty() bool {
	return m.AssetLocation == ""
}

// Scope restricts repository queries to one partition of the population.
// The zero value is the global population.
type Scope struct {
	Source string
}

// IsGlobal reports whether the scope covers every source.
func (s Scope) IsGlobal() bool {
	return s.Source == ""
}

// Partition selects how the candidate population is split.
type Partition string

const (
	// PartitionGlobal matches every record against the whole population.
	PartitionGlobal Partition = "global"
	// PartitionSource matches records only against records of the same source.
	PartitionSource Partition = "source"
)

// ParsePartition parses "global" or "source". An empty string means global.
func ParsePartition(s string) (Partition, error) {
	switch Partition(s) {
	case "", PartitionGlobal:
		return PartitionGlobal, nil
	case PartitionSource:
		return PartitionSource, nil
	}
	return "", fmt.Errorf("unknown partition %q", s)
}

// ScopeOf returns the scope m is matched within.
func (p Partition) ScopeOf(m *MediaRecord) Scope {
	if p == PartitionSource {
		return Scope{Source: m.Source}
	}
	return Scope{}
}

// MediaRecord is one harvested media item and its relationship edges.
type MediaRecord struct {
	ID            string                 `json:"id"`
	Source        string                 `json:"source"`
	Category      Category               `json:"category"`
	Channels      [ChannelCount]Metadata `json:"channels"`
	Readable      Readable               `json:"readable"`
	Ignored       bool                   `json:"ignored"`
	IgnoredReason string                 `json:"ignored_reason,omitempty"`
	PublicationID string                 `json:"publication_id,omitempty"`
	Duplicates    EdgeSet                `json:"duplicates"`
	Variants      EdgeSet                `json:"variants"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// Metadata returns the metadata slot for channel c.
func (m *MediaRecord) Metadata(c Channel) *Metadata {
	return &m.Channels[c]
}

// Primary returns the primary metadata channel.
func (m *MediaRecord) Primary() *Metadata {
	return &m.Channels[ChannelPrimary]
}

// ActiveChannels returns the channels that carry an asset.
func (m *MediaRecord) ActiveChannels() []Channel {
	var out []Channel
	for _, c := range AllChannels {
		if !m.Channels[c].IsEmpty() {
			out = append(out, c)
		}
	}
	return out
}

// ContentFingerprints returns the distinct content fingerprints over all channels.
func (m *MediaRecord) ContentFingerprints() []string {
	return m.distinct(func(md Metadata) string { return md.ContentFingerprint })
}

// PerceptualFingerprints returns the distinct perceptual fingerprints over all channels.
func (m *MediaRecord) PerceptualFingerprints() []string {
	return m.distinct(func(md Metadata) string { return md.PerceptualFingerprint })
}

func (m *MediaRecord) distinct(field func(Metadata) string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, c := range m.ActiveChannels() {
		v := field(m.Channels[c])
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// Assets returns the channels that should be uploaded on publication:
// every active channel, skipping byte-identical repeats.
func (m *MediaRecord) Assets() []Metadata {
	var out []Metadata
	seen := make(map[string]bool)
	for _, c := range m.ActiveChannels() {
		md := m.Channels[c]
		if md.ContentFingerprint != "" {
			if seen[md.ContentFingerprint] {
				continue
			}
			seen[md.ContentFingerprint] = true
		}
		out = append(out, md)
	}
	return out
}

// Edges returns the edge set of the given kind.
func (m *MediaRecord) Edges(kind EdgeKind) *EdgeSet {
	if kind == EdgeVariant {
		return &m.Variants
	}
	return &m.Duplicates
}

// HasPublication reports whether the record was published independently.
func (m *MediaRecord) HasPublication() bool {
	return m.PublicationID != ""
}

// Ignore marks the record ineligible for publication. An existing reason is kept.
func (m *MediaRecord) Ignore(reason string) bool {
	if m.Ignored {
		return false
	}
	m.Ignored = true
	m.IgnoredReason = reason
	return true
}

// Clone returns a deep copy of the record.
func (m *MediaRecord) Clone() *MediaRecord {
	c := *m
	c.Duplicates = m.Duplicates.Clone()
	c.Variants = m.Variants.Clone()
	return &c
}
