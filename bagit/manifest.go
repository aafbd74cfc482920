package bagit

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Entry is one manifest line: a hex digest and the path it covers. Paths are
// bag-relative with forward slashes and are kept verbatim; no
// percent-decoding is ever applied.
type Entry struct {
	Digest string
	Path   string
}

// Manifest is the set of digest entries for one (role, algorithm) pair.
// Entries are keyed by path; render order is always lexical by path so that
// identical contents produce byte-identical files.
type Manifest struct {
	Role      Role
	Algorithm Algorithm
	entries   map[string]string // path -> hex digest
}

// NewManifest returns an empty manifest.
func NewManifest(role Role, a Algorithm) *Manifest {
	return &Manifest{
		Role:      role,
		Algorithm: a,
		entries:   make(map[string]string),
	}
}

// Set records the digest for a path, replacing any previous value.
func (m *Manifest) Set(path, digest string) {
	m.entries[path] = digest
}

// Digest returns the digest recorded for a path.
func (m *Manifest) Digest(path string) (string, bool) {
	d, ok := m.entries[path]
	return d, ok
}

// Delete removes the entry for a path, if present.
func (m *Manifest) Delete(path string) {
	delete(m.entries, path)
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	return len(m.entries)
}

// Paths returns every path in the manifest, sorted bytewise.
func (m *Manifest) Paths() []string {
	paths := make([]string, 0, len(m.entries))
	for p := range m.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Entries returns the manifest's entries sorted bytewise by path.
func (m *Manifest) Entries() []Entry {
	entries := make([]Entry, 0, len(m.entries))
	for _, p := range m.Paths() {
		entries = append(entries, Entry{Digest: m.entries[p], Path: p})
	}
	return entries
}

// Render writes the manifest in its canonical text form: one
// "<digest> <path>" line per entry, LF endings, sorted by path.
func (m *Manifest) Render(w io.Writer) error {
	for _, e := range m.Entries() {
		if _, err := fmt.Fprintf(w, "%s %s\n", e.Digest, e.Path); err != nil {
			return err
		}
	}
	return nil
}

// ParseManifest reads a manifest file. Each line is split on the first run
// of spaces or tabs; everything after that run is the path, taken verbatim.
// Malformed or duplicate lines produce a *ParseError naming the 1-based line
// number. Digest values are not validated against the algorithm's expected
// length here; comparisons happen case-insensitively at diff time.
func ParseManifest(r io.Reader, role Role, a Algorithm, name string) (*Manifest, error) {
	m := NewManifest(role, a)
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSuffix(scanner.Text(), "\r")
		i := strings.IndexAny(text, " \t")
		if i <= 0 {
			return nil, &ParseError{File: name, Line: line, Msg: `expected "<digest> <path>"`}
		}
		digest := text[:i]
		path := strings.TrimLeft(text[i:], " \t")
		if path == "" {
			return nil, &ParseError{File: name, Line: line, Msg: "missing path after digest"}
		}
		if _, ok := m.entries[path]; ok {
			return nil, &ParseError{File: name, Line: line, Msg: fmt.Sprintf("duplicate path %q", path)}
		}
		m.entries[path] = digest
	}
	if err := scanner.Err(); err != nil {
		return nil, &ParseError{File: name, Line: line + 1, Msg: err.Error()}
	}
	return m, nil
}
