// Package catalog maps DAT system names to mirror directory URLs.
//
// The catalog ships as an embedded YAML document so it can be replaced or
// extended without code changes; Load accepts any reader for overrides.
// Resolution never touches the network.
package catalog

import (
	_ "embed"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embedded []byte

// Entry associates one DAT system name with a mirror path relative to Base.
// Multiple entries may share a path (alias names for the same set).
type Entry struct {
	System string `yaml:"system"`
	Path   string `yaml:"path"`
}

// Catalog is an ordered system table. Order is significant: fuzzy
// resolution returns the first entry that matches.
type Catalog struct {
	Base    string  `yaml:"base"`
	Entries []Entry `yaml:"entries"`
}

// System describes one catalog system for display.
type System struct {
	Name     string
	Category string
	Path     string
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the embedded catalog, parsed once.
func Default() *Catalog {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Load(strings.NewReader(string(embedded)))
	})
	if defaultErr != nil {
		// The embedded document is part of the build; failing to parse it
		// is a programming error, not a runtime condition.
		panic(fmt.Sprintf("catalog: embedded table invalid: %v", defaultErr))
	}
	return defaultCatalog
}

// Load parses a catalog document.
func Load(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if c.Base == "" {
		return nil, fmt.Errorf("catalog has no base URL")
	}
	if len(c.Entries) == 0 {
		return nil, fmt.Errorf("catalog has no entries")
	}
	return &c, nil
}

// Resolve finds the mirror root URL for a system name. Matching order:
// exact, case-insensitive exact, then case-insensitive substring in either
// direction. Ties go to the first entry in table order, which keeps the
// fuzzy fallback deterministic. The returned URL ends with a slash.
func (c *Catalog) Resolve(systemName string) (string, bool) {
	for _, e := range c.Entries {
		if e.System == systemName {
			return c.rootURL(e.Path), true
		}
	}

	normalized := strings.TrimSpace(systemName)
	lower := strings.ToLower(normalized)
	for _, e := range c.Entries {
		if strings.ToLower(e.System) == lower {
			return c.rootURL(e.Path), true
		}
	}

	if lower == "" {
		return "", false
	}
	for _, e := range c.Entries {
		key := strings.ToLower(e.System)
		if strings.Contains(key, lower) || strings.Contains(lower, key) {
			return c.rootURL(e.Path), true
		}
	}

	return "", false
}

// Systems returns the deduplicated system list sorted by name.
func (c *Catalog) Systems() []System {
	seen := make(map[string]struct{}, len(c.Entries))
	systems := make([]System, 0, len(c.Entries))
	for _, e := range c.Entries {
		if _, ok := seen[e.System]; ok {
			continue
		}
		seen[e.System] = struct{}{}
		systems = append(systems, System{
			Name:     e.System,
			Category: category(e.Path),
			Path:     e.Path,
		})
	}
	sort.Slice(systems, func(i, j int) bool { return systems[i].Name < systems[j].Name })
	return systems
}

func (c *Catalog) rootURL(path string) string {
	return strings.TrimRight(c.Base, "/") + "/" + path + "/"
}

func category(path string) string {
	switch {
	case strings.HasPrefix(path, "No-Intro"):
		return "No-Intro"
	case strings.HasPrefix(path, "Redump"):
		return "Redump"
	default:
		return "Other"
	}
}
