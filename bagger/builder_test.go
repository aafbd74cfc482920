package bagger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndlib/bagger/bagit"
)

func digestOf(t *testing.T, content string, a bagit.Algorithm) string {
	t.Helper()
	sums, err := bagit.DigestReader(strings.NewReader(content), []bagit.Algorithm{a})
	require.NoError(t, err)
	return sums[a]
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func parseManifestAt(t *testing.T, path string, role bagit.Role, a bagit.Algorithm) *bagit.Manifest {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	m, err := bagit.ParseManifest(f, role, a, filepath.Base(path))
	require.NoError(t, err)
	return m
}

// sourceTree lays down the fixture payload used by most builder tests.
func sourceTree(t *testing.T) string {
	t.Helper()
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "hello.txt"), "hello world\n")
	writeFile(t, filepath.Join(src, "sub", "data.bin"), "12345")
	return src
}

func TestCreateCopyMode(t *testing.T) {
	src := sourceTree(t)
	dst := filepath.Join(t.TempDir(), "bag")

	bag, err := Create(context.Background(), src, dst, Options{
		Algorithms: []bagit.Algorithm{bagit.SHA256},
	})
	require.NoError(t, err)
	assert.Equal(t, []bagit.Algorithm{bagit.SHA256}, bag.Algorithms)

	// payload was copied, source untouched
	assert.FileExists(t, filepath.Join(src, "hello.txt"))
	assert.Equal(t, "hello world\n", readFile(t, filepath.Join(dst, "data", "hello.txt")))
	assert.Equal(t, "12345", readFile(t, filepath.Join(dst, "data", "sub", "data.bin")))

	assert.Equal(t, "BagIt-Version: 1.0\nTag-File-Character-Encoding: UTF-8\n",
		readFile(t, filepath.Join(dst, "bagit.txt")))

	want := digestOf(t, "hello world\n", bagit.SHA256) + " data/hello.txt\n" +
		digestOf(t, "12345", bagit.SHA256) + " data/sub/data.bin\n"
	assert.Equal(t, want, readFile(t, filepath.Join(dst, "manifest-sha256.txt")))

	// tag manifest covers the declaration, bag-info, and payload manifest
	tm := parseManifestAt(t, filepath.Join(dst, "tagmanifest-sha256.txt"), bagit.TagRole, bagit.SHA256)
	assert.Equal(t, []string{"bag-info.txt", "bagit.txt", "manifest-sha256.txt"}, tm.Paths())

	// the tag manifest reflects the final bytes of the other tag files
	d, ok := tm.Digest("bag-info.txt")
	require.True(t, ok)
	assert.Equal(t, digestOf(t, readFile(t, filepath.Join(dst, "bag-info.txt")), bagit.SHA256), d)

	info, err := bagit.ParseTags(strings.NewReader(readFile(t, filepath.Join(dst, "bag-info.txt"))), bagit.BagInfoFile)
	require.NoError(t, err)
	oxum, _ := info.Value(bagit.LabelPayloadOxum)
	assert.Equal(t, "17.2", oxum)
	_, hasDate := info.Value(bagit.LabelBaggingDate)
	assert.True(t, hasDate)
	agent, _ := info.Value(bagit.LabelSoftwareAgent)
	assert.Equal(t, SoftwareAgent, agent)
}

func TestCreateInPlace(t *testing.T) {
	dir := sourceTree(t)

	_, err := Create(context.Background(), dir, dir, Options{})
	require.NoError(t, err)

	// contents were moved under data/ and the default algorithm was used
	assert.NoFileExists(t, filepath.Join(dir, "hello.txt"))
	assert.FileExists(t, filepath.Join(dir, "data", "hello.txt"))
	assert.FileExists(t, filepath.Join(dir, "data", "sub", "data.bin"))
	assert.FileExists(t, filepath.Join(dir, "manifest-sha512.txt"))
	assert.FileExists(t, filepath.Join(dir, "tagmanifest-sha512.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "manifest-sha256.txt"))
}

func TestCreateDeterministic(t *testing.T) {
	src := sourceTree(t)
	dst1 := filepath.Join(t.TempDir(), "bag1")
	dst2 := filepath.Join(t.TempDir(), "bag2")

	opts := Options{Algorithms: []bagit.Algorithm{bagit.MD5, bagit.SHA512}}
	_, err := Create(context.Background(), src, dst1, opts)
	require.NoError(t, err)
	_, err = Create(context.Background(), src, dst2, opts)
	require.NoError(t, err)

	for _, name := range []string{
		"bagit.txt",
		"manifest-md5.txt", "manifest-sha512.txt",
		"tagmanifest-md5.txt", "tagmanifest-sha512.txt",
	} {
		assert.Equal(t, readFile(t, filepath.Join(dst1, name)), readFile(t, filepath.Join(dst2, name)), name)
	}
}

func TestCreateRejectsUnsafeName(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "fine.txt"), "ok")
	writeFile(t, filepath.Join(src, "sub", "100%bad"), "nope")
	dst := filepath.Join(t.TempDir(), "bag")

	_, err := Create(context.Background(), src, dst, Options{})
	var rejected *bagit.PathRejectedError
	require.ErrorAs(t, err, &rejected)

	// a failed copy-mode build leaves nothing at the destination
	assert.NoDirExists(t, dst)
}

func TestCreateCopyModeSkipsHidden(t *testing.T) {
	src := sourceTree(t)
	writeFile(t, filepath.Join(src, ".DS_Store"), "junk")
	dst := filepath.Join(t.TempDir(), "bag")

	_, err := Create(context.Background(), src, dst, Options{ExcludeHidden: true})
	require.NoError(t, err)

	// skipped from the bag, left alone in the source
	assert.NoFileExists(t, filepath.Join(dst, "data", ".DS_Store"))
	assert.FileExists(t, filepath.Join(src, ".DS_Store"))
}

func TestCreateInPlaceDeletesHidden(t *testing.T) {
	dir := sourceTree(t)
	writeFile(t, filepath.Join(dir, ".DS_Store"), "junk")
	writeFile(t, filepath.Join(dir, "sub", ".nested"), "junk")

	_, err := Create(context.Background(), dir, dir, Options{
		Algorithms:    []bagit.Algorithm{bagit.SHA256},
		ExcludeHidden: true,
	})
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(dir, ".DS_Store"))
	assert.NoFileExists(t, filepath.Join(dir, "data", ".DS_Store"))
	assert.NoFileExists(t, filepath.Join(dir, "data", "sub", ".nested"))

	m := parseManifestAt(t, filepath.Join(dir, "manifest-sha256.txt"), bagit.PayloadRole, bagit.SHA256)
	assert.Equal(t, []string{"data/hello.txt", "data/sub/data.bin"}, m.Paths())
}

func TestCreateFailureKeepsExistingDestinationFiles(t *testing.T) {
	src := sourceTree(t)
	dst := t.TempDir()
	writeFile(t, filepath.Join(dst, "notes.txt"), "mine")
	writeFile(t, filepath.Join(dst, "data", "precious.txt"), "irreplaceable")

	// the pre-existing data/ directory makes the staging rename fail
	_, err := Create(context.Background(), src, dst, Options{})
	require.Error(t, err)

	assert.Equal(t, "irreplaceable", readFile(t, filepath.Join(dst, "data", "precious.txt")))
	assert.Equal(t, "mine", readFile(t, filepath.Join(dst, "notes.txt")))

	// no staging directory or half-written tag files left behind
	entries, err := os.ReadDir(dst)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"data", "notes.txt"}, names)
}

func TestCreateRejectionKeepsExistingDestinationFiles(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "bad%name"), "nope")
	dst := t.TempDir()
	writeFile(t, filepath.Join(dst, "notes.txt"), "mine")

	_, err := Create(context.Background(), src, dst, Options{})
	var rejected *bagit.PathRejectedError
	require.ErrorAs(t, err, &rejected)

	entries, err := os.ReadDir(dst)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "notes.txt", entries[0].Name())
}

func TestCreateWriteFailureRemovesOnlyItsFiles(t *testing.T) {
	src := sourceTree(t)
	dst := t.TempDir()
	// a directory squatting on a manifest path makes that manifest's write
	// fail after the sha256 manifest has already been written
	require.NoError(t, os.Mkdir(filepath.Join(dst, "manifest-sha512.txt"), 0755))

	_, err := Create(context.Background(), src, dst, Options{
		Algorithms: []bagit.Algorithm{bagit.SHA256, bagit.SHA512},
	})
	require.Error(t, err)

	// the partial build was undone: data/ and manifest-sha256.txt are gone,
	// while the pre-existing entry is untouched
	entries, readErr := os.ReadDir(dst)
	require.NoError(t, readErr)
	require.Len(t, entries, 1)
	assert.Equal(t, "manifest-sha512.txt", entries[0].Name())
}

func TestCreateInPlaceFailureKeepsPayload(t *testing.T) {
	dir := sourceTree(t)
	require.NoError(t, os.Symlink(dir, filepath.Join(dir, "sub", "loop")))

	_, err := Create(context.Background(), dir, dir, Options{})
	var cycle *LinkCycleError
	require.ErrorAs(t, err, &cycle)

	// the moved payload survives the failed build
	assert.Equal(t, "hello world\n", readFile(t, filepath.Join(dir, "data", "hello.txt")))
	assert.Equal(t, "12345", readFile(t, filepath.Join(dir, "data", "sub", "data.bin")))
}

func TestCreateInPlaceCanceledLeavesSource(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dir := sourceTree(t)
	_, err := Create(ctx, dir, dir, Options{})
	require.ErrorIs(t, err, context.Canceled)

	// nothing was moved and the empty staging directory was removed
	assert.FileExists(t, filepath.Join(dir, "hello.txt"))
	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"hello.txt", "sub"}, names)
}

func TestCreateCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := sourceTree(t)
	dst := filepath.Join(t.TempDir(), "bag")
	_, err := Create(ctx, src, dst, Options{})
	require.Error(t, err)
	assert.NoDirExists(t, dst)
}
