// Package archive stores rendered patterns in a SQLite database.
//
// The layout mirrors an MBTiles file: a name/value metadata table and a blob
// table, with image data gzip-compressed before storage.
package archive

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key is not present in the archive.
var ErrNotFound = errors.New("archive: pattern not found")

// Metadata contains archive-level descriptive fields.
type Metadata struct {
	Name        string // Human-readable archive name
	Description string
	Generator   string // Tool and version that produced the archive
	Version     string
}

// ToMap converts Metadata to a map for database insertion.
func (m Metadata) ToMap() map[string]string {
	result := make(map[string]string)

	if m.Name != "" {
		result["name"] = m.Name
	}
	if m.Description != "" {
		result["description"] = m.Description
	}
	if m.Generator != "" {
		result["generator"] = m.Generator
	}
	if m.Version != "" {
		result["version"] = m.Version
	}

	return result
}

// Entry is one stored pattern.
type Entry struct {
	Key        string // Unique name, used as the file stem on extraction
	Layers     string // Canonical layer definitions (layer.FormatAll)
	Format     string // Image format (png, tiff, bmp)
	Data       []byte // Encoded image (uncompressed)
	Resolution int
}

// Key builds a cache key from canonical layer definitions, resolution,
// render tag and image format. An empty tag is omitted.
func Key(layers string, resolution int, tag, format string) string {
	if tag == "" {
		return fmt.Sprintf("%s@%d.%s", layers, resolution, format)
	}
	return fmt.Sprintf("%s@%d[%s].%s", layers, resolution, tag, format)
}
