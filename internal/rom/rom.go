// Package rom defines the catalog-identified ROM record consumed by the
// download pipeline. Records are produced by the external DAT-matching
// collaborator; this package only carries them.
package rom

import (
	"path/filepath"
	"strings"
)

// Info describes a single ROM entry as identified against a DAT catalog.
// Name is the exact entry filename from the DAT; GameName is the broader
// title used for text search fallbacks. Checksums are lowercase hex and
// any of them may be empty.
type Info struct {
	Name       string
	GameName   string
	SystemName string
	Size       int64
	CRC32      string
	MD5        string
	SHA1       string
}

// HasHash reports whether the record carries at least one checksum.
func (r Info) HasHash() bool {
	return r.SHA1 != "" || r.MD5 != "" || r.CRC32 != ""
}

// SearchTerm returns the best text to search remote sources for: the game
// title when known, otherwise the entry name without its extension, with
// any trailing parenthetical tags (region, revision) stripped.
func (r Info) SearchTerm() string {
	term := r.GameName
	if term == "" {
		term = strings.TrimSuffix(r.Name, filepath.Ext(r.Name))
	}
	if idx := strings.Index(term, "("); idx > 0 {
		term = term[:idx]
	}
	return strings.TrimSpace(term)
}
