package bagit

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	// Version is the BagIt specification version this package implements.
	Version = "1.0"

	// Encoding is the only tag-file character encoding supported.
	Encoding = "UTF-8"

	// DeclarationFile is the name of the bag declaration file.
	DeclarationFile = "bagit.txt"

	// BagInfoFile is the name of the bag metadata file.
	BagInfoFile = "bag-info.txt"

	// FetchFile is recognized as a reserved tag file name. Fetch files are
	// never generated.
	FetchFile = "fetch.txt"

	// DataDir is the name of the payload directory.
	DataDir = "data"
)

var (
	payloadManifestPattern = regexp.MustCompile(`^manifest-([a-z0-9]+)\.txt$`)
	tagManifestPattern     = regexp.MustCompile(`^tagmanifest-([a-z0-9]+)\.txt$`)
)

// Role distinguishes payload manifests from tag manifests.
type Role int

const (
	// PayloadRole marks manifests listing files under data/.
	PayloadRole Role = iota
	// TagRole marks manifests listing tag files at the bag root.
	TagRole
)

func (r Role) String() string {
	if r == TagRole {
		return "tagmanifest"
	}
	return "manifest"
}

// Layout computes the canonical file locations of a version 1.0 bag rooted
// at a base directory. It performs no I/O other than DiscoverAlgorithms.
type Layout struct {
	Base string
}

// NewLayout returns a layout rooted at base.
func NewLayout(base string) Layout {
	return Layout{Base: base}
}

// Declaration returns the path of bagit.txt.
func (l Layout) Declaration() string {
	return filepath.Join(l.Base, DeclarationFile)
}

// BagInfo returns the path of bag-info.txt.
func (l Layout) BagInfo() string {
	return filepath.Join(l.Base, BagInfoFile)
}

// Data returns the path of the payload directory.
func (l Layout) Data() string {
	return filepath.Join(l.Base, DataDir)
}

// ManifestName returns the file name of the manifest for a role and
// algorithm, e.g. "manifest-sha256.txt".
func ManifestName(role Role, a Algorithm) string {
	return role.String() + "-" + string(a) + ".txt"
}

// Manifest returns the path of the manifest for a role and algorithm.
func (l Layout) Manifest(role Role, a Algorithm) string {
	return filepath.Join(l.Base, ManifestName(role, a))
}

// IsManifestName reports whether name is a payload or tag manifest file
// name.
func IsManifestName(name string) bool {
	return payloadManifestPattern.MatchString(name) || tagManifestPattern.MatchString(name)
}

// IsTagManifestName reports whether name is a tag manifest file name.
func IsTagManifestName(name string) bool {
	return tagManifestPattern.MatchString(name)
}

// ParseManifestName decomposes a manifest file name into its role and
// algorithm. The third result is false when the name is not a manifest of a
// supported algorithm.
func ParseManifestName(name string) (Role, Algorithm, bool) {
	if m := payloadManifestPattern.FindStringSubmatch(name); m != nil {
		if a, err := ParseAlgorithm(m[1]); err == nil {
			return PayloadRole, a, true
		}
	}
	if m := tagManifestPattern.FindStringSubmatch(name); m != nil {
		if a, err := ParseAlgorithm(m[1]); err == nil {
			return TagRole, a, true
		}
	}
	return PayloadRole, "", false
}

// DiscoverAlgorithms infers the algorithms in use from the payload manifest
// files present in the base directory. The result is computed fresh on every
// call; it is a derived view, never cached. Manifest files naming an
// unsupported algorithm are skipped with a warning, matching the behavior of
// other BagIt tools that must tolerate foreign manifests.
func (l Layout) DiscoverAlgorithms() ([]Algorithm, error) {
	entries, err := os.ReadDir(l.Base)
	if err != nil {
		return nil, errors.Wrapf(err, "reading directory %s", l.Base)
	}
	var algorithms []Algorithm
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := payloadManifestPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		a, err := ParseAlgorithm(m[1])
		if err != nil {
			log.WithField("file", e.Name()).Warn("skipping manifest with unsupported digest algorithm")
			continue
		}
		algorithms = append(algorithms, a)
	}
	sort.Slice(algorithms, func(i, j int) bool { return algorithms[i] < algorithms[j] })
	return algorithms, nil
}

// ManifestFiles lists the payload and tag manifest files present in the base
// directory.
func (l Layout) ManifestFiles() ([]string, error) {
	entries, err := os.ReadDir(l.Base)
	if err != nil {
		return nil, errors.Wrapf(err, "reading directory %s", l.Base)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && IsManifestName(e.Name()) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
