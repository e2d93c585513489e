package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"mediadedup/internal/models"
)

// Directory walks a local folder and yields one record per media file.
type Directory struct {
	root   string
	source string
}

// NewDirectory creates a connector for root. source defaults to the
// folder's base name.
func NewDirectory(root, source string) *Directory {
	if source == "" {
		source = filepath.Base(filepath.Clean(root))
	}
	return &Directory{root: root, source: source}
}

func (d *Directory) Name() string {
	return d.source
}

// Scan walks the folder recursively. Unreadable entries are skipped, as
// are files whose extension maps to no known category.
func (d *Directory) Scan(ctx context.Context) ([]*models.MediaRecord, error) {
	root, err := filepath.Abs(d.root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", d.root, err)
	}

	var records []*models.MediaRecord
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return nil // Skip errors
		}
		if info.IsDir() {
			return nil
		}
		category := models.CategoryFromPath(path)
		if category == models.CategoryUnknown {
			return nil
		}
		m := newRecord(d.source, path, category)
		m.Primary().Size = info.Size()
		records = append(records, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk folder: %w", err)
	}
	return records, nil
}
