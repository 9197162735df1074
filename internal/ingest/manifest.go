package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tailscale/hujson"
)

// ManifestName is the optional file in the bundled directory that lists
// which titles to load and in what order.
const ManifestName = "manifest.json"

// Manifest lists bundled titles. Entries are file names, names without an
// extension, or doublestar patterns relative to the bundled directory.
// The file may be a bare JSONC array of entries or an object.
type Manifest struct {
	Books   []string `json:"books"`
	Exclude []string `json:"exclude,omitempty"`
}

// ReadManifest parses the manifest in dir. It returns (nil, nil) when
// the directory has no manifest.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return parseManifest(data)
}

func parseManifest(data []byte) (*Manifest, error) {
	// Standardize JSONC to JSON
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONC: %w", err)
	}

	var list []string
	if err := json.Unmarshal(standardized, &list); err == nil {
		return &Manifest{Books: list}, nil
	}
	var m Manifest
	if err := json.Unmarshal(standardized, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}

// Discover returns the files to load from dir in load order. With a
// manifest, entries are resolved in manifest order; a name that matches
// no file still yields a path so the failure is reported for that title.
// Without one, every supported file under dir is returned in lexical order.
func Discover(dir string) ([]string, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ManifestName, err)
	}
	fsys := os.DirFS(dir)
	if m == nil {
		m = &Manifest{Books: []string{"**/*"}}
	}

	var out []string
	seen := make(map[string]bool)
	add := func(rel string) {
		rel = filepath.ToSlash(rel)
		if seen[rel] || rel == ManifestName || matchesAny(rel, m.Exclude) {
			return
		}
		seen[rel] = true
		out = append(out, filepath.Join(dir, filepath.FromSlash(rel)))
	}

	for _, entry := range m.Books {
		entry = strings.TrimSpace(filepath.ToSlash(entry))
		if entry == "" {
			continue
		}
		if hasMeta(entry) {
			matches, err := doublestar.Glob(fsys, entry, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("pattern %q: %w", entry, err)
			}
			sort.Strings(matches)
			for _, rel := range matches {
				if Supported(rel) {
					add(rel)
				}
			}
			continue
		}
		add(resolveName(fsys, entry))
	}
	return out, nil
}

// resolveName maps a manifest name to a file. Names without a supported
// extension are tried against each registered format, defaulting to .html.
func resolveName(fsys fs.FS, name string) string {
	if Supported(name) {
		return name
	}
	for _, f := range registry {
		for _, ext := range f.Extensions() {
			if _, err := fs.Stat(fsys, name+ext); err == nil {
				return name + ext
			}
		}
	}
	return name + ".html"
}

func hasMeta(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}

// matchesAny checks rel and its base name against the patterns.
func matchesAny(rel string, patterns []string) bool {
	for _, pattern := range patterns {
		pattern = filepath.ToSlash(pattern)
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
		if ok, err := doublestar.Match(pattern, path.Base(rel)); err == nil && ok {
			return true
		}
	}
	return false
}
