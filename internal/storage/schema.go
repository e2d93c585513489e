package storage

// Current schema version
const schemaVersion = 2

const baseSchema = `
CREATE TABLE IF NOT EXISTS media (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL,
	readable INTEGER NOT NULL DEFAULT 0,
	ignored INTEGER NOT NULL DEFAULT 0,
	ignored_reason TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_media_source ON media(source);

CREATE TABLE IF NOT EXISTS media_channels (
	media_id TEXT NOT NULL REFERENCES media(id),
	channel INTEGER NOT NULL,
	asset_location TEXT NOT NULL,
	content_fp TEXT,
	perceptual_fp TEXT,
	size INTEGER NOT NULL DEFAULT 0,
	mime_type TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (media_id, channel)
);

CREATE INDEX IF NOT EXISTS idx_channels_content_fp ON media_channels(content_fp);
CREATE INDEX IF NOT EXISTS idx_channels_perceptual_fp ON media_channels(perceptual_fp);

CREATE TABLE IF NOT EXISTS media_edges (
	media_id TEXT NOT NULL REFERENCES media(id),
	original_id TEXT NOT NULL,
	kind INTEGER NOT NULL,
	score REAL NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (media_id, original_id)
);

CREATE INDEX IF NOT EXISTS idx_edges_original ON media_edges(original_id, kind);
`

// migrations defines all schema migrations
// Each migration should be idempotent (safe to run multiple times)
var migrations = []struct {
	version     int
	description string
	column      string
	up          string
}{
	{
		version:     1,
		description: "Initial schema",
		up:          "", // Handled by base schema creation
	},
	{
		version:     2,
		description: "Add publication_id for independently published media",
		column:      "publication_id",
		up: `
			ALTER TABLE media ADD COLUMN publication_id TEXT NOT NULL DEFAULT '';
		`,
	},
}
