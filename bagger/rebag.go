package bagger

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ndlib/bagger/bagit"
	"github.com/ndlib/bagger/fileutil"
)

// RebagOptions control manifest recomputation.
type RebagOptions struct {
	// Algorithms overrides the bag's algorithm set. Empty means reuse the
	// set discovered from the existing payload manifest file names.
	Algorithms []bagit.Algorithm

	// Workers bounds the digest worker pool. Zero means the available
	// parallelism.
	Workers int
}

// Rebag recomputes the manifests of the bag at base after its payload has
// changed. Digests are always recomputed from file contents; modification
// times are never trusted as a signal of change. Files gone from disk are
// dropped from the manifests, and nothing is written until every digest and
// parse has succeeded, so a failed rebag leaves the bag exactly as it was.
func Rebag(ctx context.Context, base string, opts RebagOptions) (*bagit.Bag, error) {
	base, err := filepath.Abs(base)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %s", base)
	}
	layout := bagit.NewLayout(base)
	log.WithField("bag", base).Info("rebagging")

	decl, err := readDeclaration(layout)
	if err != nil {
		return nil, err
	}
	if fi, err := os.Stat(layout.Data()); err != nil || !fi.IsDir() {
		return nil, errors.Wrapf(bagit.ErrUnrecognizedBag, "%s has no payload directory", base)
	}

	discovered, err := layout.DiscoverAlgorithms()
	if err != nil {
		return nil, err
	}
	if len(discovered) == 0 {
		return nil, errors.Wrapf(bagit.ErrUnrecognizedBag, "%s has no payload manifests", base)
	}
	algorithms := discovered
	if len(opts.Algorithms) > 0 {
		if algorithms, err = bagit.NormalizeAlgorithms(opts.Algorithms); err != nil {
			return nil, err
		}
	}

	// Parse every existing manifest up front. A manifest that does not
	// parse is presumed corrupt and aborts the rebag before anything on
	// disk is touched.
	before, err := parseManifests(layout, discovered)
	if err != nil {
		return nil, err
	}

	info, err := readBagInfo(layout)
	if err != nil {
		return nil, err
	}

	// Re-collect and re-digest the current payload in full.
	payload, err := digestAll(ctx, &collector{root: layout.Data(), hidden: keepHidden}, algorithms, opts.Workers)
	if err != nil {
		return nil, err
	}

	manifests, totalBytes := buildManifests(bagit.PayloadRole, bagit.DataDir+"/", payload, algorithms)
	logDiff(before, manifests)

	// Writing phase. Each file is replaced atomically, so an error part way
	// through leaves every not-yet-reached manifest intact.
	for _, a := range algorithms {
		if err := fileutil.WriteAtomic(layout.Manifest(bagit.PayloadRole, a), manifests[a].Render); err != nil {
			return nil, err
		}
	}

	// Payload manifests for algorithms dropped from the set go away now,
	// before the tag manifests are computed, so no tag manifest ends up
	// referencing a file about to be deleted.
	if err := removeStaleManifests(layout, bagit.PayloadRole, algorithms); err != nil {
		return nil, err
	}

	info.SetBaggingDate(time.Now())
	info.SetSoftwareAgent(SoftwareAgent)
	info.SetPayloadOxum(totalBytes, len(payload))
	info.SetBagSize(totalBytes)
	if err := fileutil.WriteAtomic(layout.BagInfo(), info.Render); err != nil {
		return nil, err
	}

	if err := writeTagManifests(ctx, layout, algorithms, opts.Workers, nil); err != nil {
		return nil, err
	}

	if err := removeStaleManifests(layout, bagit.TagRole, algorithms); err != nil {
		return nil, err
	}

	return &bagit.Bag{Base: base, Declaration: decl, Info: info, Algorithms: algorithms}, nil
}

func readDeclaration(layout bagit.Layout) (bagit.Declaration, error) {
	f, err := os.Open(layout.Declaration())
	if err != nil {
		if os.IsNotExist(err) {
			return bagit.Declaration{}, errors.Wrapf(bagit.ErrUnrecognizedBag, "%s has no %s", layout.Base, bagit.DeclarationFile)
		}
		return bagit.Declaration{}, errors.Wrapf(err, "opening %s", layout.Declaration())
	}
	defer f.Close()
	return bagit.ParseDeclaration(f, bagit.DeclarationFile)
}

// readBagInfo loads the existing bag-info.txt so caller-provided tags
// survive a rebag. A missing file is an empty tag list.
func readBagInfo(layout bagit.Layout) (*bagit.BagInfo, error) {
	info := new(bagit.BagInfo)
	f, err := os.Open(layout.BagInfo())
	if err != nil {
		if os.IsNotExist(err) {
			return info, nil
		}
		return nil, errors.Wrapf(err, "opening %s", layout.BagInfo())
	}
	defer f.Close()
	tags, err := bagit.ParseTags(f, bagit.BagInfoFile)
	if err != nil {
		return nil, err
	}
	for _, t := range tags.Tags() {
		info.Add(t.Label, t.Value)
	}
	return info, nil
}

// parseManifests loads the "before" state: every payload and tag manifest
// currently present for the discovered algorithms.
func parseManifests(layout bagit.Layout, discovered []bagit.Algorithm) (map[bagit.Algorithm]*bagit.Manifest, error) {
	before := make(map[bagit.Algorithm]*bagit.Manifest, len(discovered))
	names, err := layout.ManifestFiles()
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		role, a, ok := bagit.ParseManifestName(name)
		if !ok {
			continue
		}
		m, err := parseManifestFile(filepath.Join(layout.Base, name), name, role, a)
		if err != nil {
			return nil, err
		}
		if role == bagit.PayloadRole {
			before[a] = m
		}
	}
	return before, nil
}

func parseManifestFile(path, name string, role bagit.Role, a bagit.Algorithm) (*bagit.Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	return bagit.ParseManifest(f, role, a, name)
}

// logDiff reports what changed between the prior payload manifests and the
// freshly computed ones. Digest comparison is case-insensitive.
func logDiff(before, after map[bagit.Algorithm]*bagit.Manifest) {
	for a, next := range after {
		prev, ok := before[a]
		if !ok {
			log.WithField("algorithm", a).Info("computing manifest for new algorithm")
			continue
		}
		for _, e := range next.Entries() {
			old, ok := prev.Digest(e.Path)
			switch {
			case !ok:
				log.WithField("path", e.Path).Debug("new payload file")
			case !bagit.SameDigest(old, e.Digest):
				log.WithField("path", e.Path).Debug("payload file changed")
			}
		}
		for _, path := range prev.Paths() {
			if _, ok := next.Digest(path); !ok {
				log.WithField("path", path).Info("dropping deleted payload file")
			}
		}
	}
}

// removeStaleManifests deletes manifest files of the given role whose
// algorithm is no longer in the active set.
func removeStaleManifests(layout bagit.Layout, role bagit.Role, algorithms []bagit.Algorithm) error {
	active := make(map[bagit.Algorithm]bool, len(algorithms))
	for _, a := range algorithms {
		active[a] = true
	}
	names, err := layout.ManifestFiles()
	if err != nil {
		return err
	}
	for _, name := range names {
		r, a, ok := bagit.ParseManifestName(name)
		if !ok || r != role || active[a] {
			continue
		}
		path := filepath.Join(layout.Base, name)
		log.WithField("file", path).Info("removing stale manifest")
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "deleting %s", path)
		}
	}
	return nil
}
