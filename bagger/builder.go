// Package bagger builds BagIt bags from directory trees and recomputes the
// manifests of existing bags after their contents change.
//
// A bag is operated on by one invocation at a time. No inter-process lock is
// taken; running two builds or rebags against the same path concurrently is
// the caller's responsibility to prevent.
package bagger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ndlib/bagger/bagit"
	"github.com/ndlib/bagger/fileutil"
	"github.com/ndlib/bagger/util"
)

// SoftwareAgent is the default Bag-Software-Agent value.
const SoftwareAgent = "bagger v1.0 <https://github.com/ndlib/bagger>"

// Options control bag creation.
type Options struct {
	// Algorithms are the digest algorithms to build manifests with. Empty
	// means the default (sha512).
	Algorithms []bagit.Algorithm

	// ExcludeHidden causes dotfiles to be left out of the bag. In-place
	// builds DELETE matching files from the source tree; this is not undone
	// on failure. Copy-mode builds merely skip them.
	ExcludeHidden bool

	// Info holds seed tags for bag-info.txt. Bagging-Date and
	// Bag-Software-Agent are filled in when absent; Payload-Oxum and
	// Bag-Size are always computed.
	Info bagit.BagInfo

	// Workers bounds the digest worker pool and concurrent copies.
	// Zero means the available parallelism.
	Workers int
}

// Create builds a bag at dst from the files under src. When src and dst are
// the same directory the bag is created in place: the directory's contents
// are moved into data/ and the tag files grow up around them. Otherwise the
// payload is copied byte-for-byte to dst first, and a failed build removes
// what it placed there and nothing that was already present. A failed
// in-place build never deletes payload: files already moved into the
// staging directory stay on disk for recovery.
func Create(ctx context.Context, src, dst string, opts Options) (*bagit.Bag, error) {
	algorithms, err := bagit.NormalizeAlgorithms(opts.Algorithms)
	if err != nil {
		return nil, err
	}
	src, err = filepath.Abs(src)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %s", src)
	}
	dst, err = filepath.Abs(dst)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %s", dst)
	}
	inPlace := src == dst

	log.WithFields(log.Fields{"src": src, "dst": dst, "in_place": inPlace}).Info("creating bag")

	createdDst := false
	if !inPlace {
		if _, err := os.Stat(dst); os.IsNotExist(err) {
			createdDst = true
		}
		if err := os.MkdirAll(dst, 0755); err != nil {
			return nil, errors.Wrapf(err, "creating %s", dst)
		}
	}

	var trace *buildTrace
	if !inPlace && !createdDst {
		trace = new(buildTrace)
	}

	bag, err := create(ctx, src, dst, inPlace, algorithms, opts, trace)
	if err != nil && !inPlace {
		// Remove what this run added and nothing else: a destination this
		// run created goes away entirely, while a pre-existing one keeps
		// every path that predates the build.
		if createdDst {
			os.RemoveAll(dst)
		} else {
			trace.removeAll()
		}
		return nil, err
	}
	return bag, err
}

// buildTrace records which paths a build creates inside a destination
// directory that already existed, so failure cleanup can remove exactly
// those. A nil trace records and removes nothing.
type buildTrace struct {
	paths []string
}

// add marks path for removal on failure, unless something already exists
// there: a pre-existing file or directory predates the build and must
// survive cleanup.
func (t *buildTrace) add(path string) {
	if t == nil {
		return
	}
	if _, err := os.Lstat(path); err == nil {
		return
	}
	t.paths = append(t.paths, path)
}

// removeAll deletes the recorded paths, newest first.
func (t *buildTrace) removeAll() {
	if t == nil {
		return
	}
	for i := len(t.paths) - 1; i >= 0; i-- {
		os.RemoveAll(t.paths[i])
	}
}

func create(ctx context.Context, src, dst string, inPlace bool, algorithms []bagit.Algorithm, opts Options, trace *buildTrace) (*bagit.Bag, error) {
	layout := bagit.NewLayout(dst)

	// Stage the payload into a temp directory first so a crash mid-move
	// never leaves a partial data/ directory pretending to be complete.
	tempName := fmt.Sprintf("temp-%d", time.Now().Unix())
	tempDir := filepath.Join(dst, tempName)
	if err := os.Mkdir(tempDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating %s", tempDir)
	}
	staged := false
	defer func() {
		if staged {
			return
		}
		if inPlace {
			// In-place staging holds the user's moved files, so only an
			// empty staging directory is removed. Anything inside stays on
			// disk, recoverable by hand.
			if os.Remove(tempDir) != nil {
				log.WithField("dir", tempDir).Error("payload files remain in the staging directory")
			}
		} else {
			os.RemoveAll(tempDir)
		}
	}()

	if inPlace {
		if err := moveEntries(ctx, src, tempDir, tempName, opts.ExcludeHidden); err != nil {
			return nil, err
		}
	} else {
		if err := copyTree(ctx, src, tempDir, opts); err != nil {
			return nil, err
		}
	}
	trace.add(layout.Data())
	if err := os.Rename(tempDir, layout.Data()); err != nil {
		return nil, errors.Wrapf(err, "renaming %s to %s", tempDir, layout.Data())
	}
	staged = true

	// Collect and digest the payload. Hidden deletion only applies in
	// place: copy mode never brought the dotfiles over.
	hidden := keepHidden
	if inPlace && opts.ExcludeHidden {
		hidden = deleteHidden
	}
	payload, err := digestAll(ctx, &collector{root: layout.Data(), hidden: hidden}, algorithms, opts.Workers)
	if err != nil {
		return nil, err
	}

	// Nothing is written until every payload digest has succeeded.
	manifests, totalBytes := buildManifests(bagit.PayloadRole, bagit.DataDir+"/", payload, algorithms)
	for _, a := range algorithms {
		path := layout.Manifest(bagit.PayloadRole, a)
		trace.add(path)
		if err := fileutil.WriteAtomic(path, manifests[a].Render); err != nil {
			return nil, err
		}
	}

	decl := bagit.NewDeclaration()
	trace.add(layout.Declaration())
	if err := fileutil.WriteAtomic(layout.Declaration(), decl.Render); err != nil {
		return nil, err
	}

	info := seedInfo(opts.Info)
	info.SetPayloadOxum(totalBytes, len(payload))
	info.SetBagSize(totalBytes)
	trace.add(layout.BagInfo())
	if err := fileutil.WriteAtomic(layout.BagInfo(), info.Render); err != nil {
		return nil, err
	}

	// Tag manifests are computed last so they cover the final bytes of
	// bagit.txt, bag-info.txt, and the payload manifests.
	if err := writeTagManifests(ctx, layout, algorithms, opts.Workers, trace); err != nil {
		return nil, err
	}

	return &bagit.Bag{Base: dst, Declaration: decl, Info: info, Algorithms: algorithms}, nil
}

// moveEntries moves the contents of src into tempDir, skipping tempDir
// itself and deleting hidden entries when asked to.
func moveEntries(ctx context.Context, src, tempDir, tempName string, excludeHidden bool) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return errors.Wrapf(err, "reading directory %s", src)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := e.Name()
		if name == tempName {
			continue
		}
		path := filepath.Join(src, name)
		if excludeHidden && bagit.IsHidden(name) {
			log.WithField("path", path).Info("deleting hidden file")
			if err := os.RemoveAll(path); err != nil {
				return errors.Wrapf(err, "deleting %s", path)
			}
			continue
		}
		if err := os.Rename(path, filepath.Join(tempDir, name)); err != nil {
			return errors.Wrapf(err, "moving %s into %s", path, tempDir)
		}
	}
	return nil
}

// copyTree copies every payload file under src into dst. The collector
// provides name checking and cycle detection; copies run concurrently,
// bounded by a Gate.
func copyTree(ctx context.Context, src, dst string, opts Options) error {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	hidden := keepHidden
	if opts.ExcludeHidden {
		hidden = skipHidden
	}

	g, ctx := errgroup.WithContext(ctx)
	gate := util.NewGate(workers)
	files := make(chan File)
	g.Go(func() error {
		defer close(files)
		c := &collector{root: src, hidden: hidden}
		return c.run(ctx, files)
	})
	g.Go(func() error {
		for f := range files {
			f := f
			gate.Enter()
			g.Go(func() error {
				defer gate.Leave()
				if err := ctx.Err(); err != nil {
					return err
				}
				return fileutil.CopyFile(filepath.Join(dst, filepath.FromSlash(f.Rel)), f.Abs)
			})
		}
		return nil
	})
	return g.Wait()
}

// buildManifests turns digest results into one manifest per algorithm,
// prefixing each path with prefix ("data/" for payload manifests). It also
// returns the total byte count for the Payload-Oxum.
func buildManifests(role bagit.Role, prefix string, results []result, algorithms []bagit.Algorithm) (map[bagit.Algorithm]*bagit.Manifest, int64) {
	manifests := make(map[bagit.Algorithm]*bagit.Manifest, len(algorithms))
	for _, a := range algorithms {
		manifests[a] = bagit.NewManifest(role, a)
	}
	var totalBytes int64
	for _, r := range results {
		totalBytes += r.Size
		for _, a := range algorithms {
			manifests[a].Set(prefix+r.Rel, r.sums[a])
		}
	}
	return manifests, totalBytes
}

// writeTagManifests digests every tag file in the bag (everything at or
// below the base directory except data/ and the tag manifests themselves)
// and writes one tagmanifest per algorithm.
func writeTagManifests(ctx context.Context, layout bagit.Layout, algorithms []bagit.Algorithm, workers int, trace *buildTrace) error {
	c := &collector{
		root: layout.Base,
		skipRoot: func(name string) bool {
			return name == bagit.DataDir || bagit.IsTagManifestName(name)
		},
	}
	tags, err := digestAll(ctx, c, algorithms, workers)
	if err != nil {
		return err
	}
	manifests, _ := buildManifests(bagit.TagRole, "", tags, algorithms)
	for _, a := range algorithms {
		path := layout.Manifest(bagit.TagRole, a)
		trace.add(path)
		if err := fileutil.WriteAtomic(path, manifests[a].Render); err != nil {
			return err
		}
	}
	return nil
}

// seedInfo copies the caller's tags and fills in the defaulted ones.
func seedInfo(seed bagit.BagInfo) *bagit.BagInfo {
	info := new(bagit.BagInfo)
	for _, t := range seed.Tags() {
		info.Add(t.Label, t.Value)
	}
	if _, ok := info.Value(bagit.LabelBaggingDate); !ok {
		info.SetBaggingDate(time.Now())
	}
	if _, ok := info.Value(bagit.LabelSoftwareAgent); !ok {
		info.SetSoftwareAgent(SoftwareAgent)
	}
	return info
}
