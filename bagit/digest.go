package bagit

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"io"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
)

// Algorithm names a digest algorithm supported for manifests. The value is
// the lowercase token used in manifest file names, e.g. "manifest-sha256.txt".
type Algorithm string

const (
	MD5        Algorithm = "md5"
	SHA1       Algorithm = "sha1"
	SHA256     Algorithm = "sha256"
	SHA512     Algorithm = "sha512"
	Blake2b512 Algorithm = "blake2b512"
	Blake3     Algorithm = "blake3"
)

// DefaultAlgorithm is used when the caller requests no algorithms.
const DefaultAlgorithm = SHA512

// ParseAlgorithm maps a user-supplied name, case-insensitively, to an
// Algorithm. Unknown names return an *AlgorithmError.
func ParseAlgorithm(name string) (Algorithm, error) {
	a := Algorithm(strings.ToLower(name))
	switch a {
	case MD5, SHA1, SHA256, SHA512, Blake2b512, Blake3:
		return a, nil
	}
	return "", &AlgorithmError{Name: name}
}

// New returns a fresh hash state for the algorithm.
func (a Algorithm) New() (hash.Hash, error) {
	switch a {
	case MD5:
		return md5.New(), nil
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	case Blake2b512:
		return blake2b.New512(nil)
	case Blake3:
		return blake3.New(), nil
	}
	return nil, &AlgorithmError{Name: string(a)}
}

// NormalizeAlgorithms sorts and dedupes the given set. An empty set becomes
// {DefaultAlgorithm}. An unknown algorithm returns an *AlgorithmError.
func NormalizeAlgorithms(algorithms []Algorithm) ([]Algorithm, error) {
	if len(algorithms) == 0 {
		return []Algorithm{DefaultAlgorithm}, nil
	}
	seen := make(map[Algorithm]bool, len(algorithms))
	out := make([]Algorithm, 0, len(algorithms))
	for _, a := range algorithms {
		if _, err := ParseAlgorithm(string(a)); err != nil {
			return nil, err
		}
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// A Digester is an io.Writer that feeds every byte written to it into one
// hash state per requested algorithm. Writing a file through a Digester
// computes all of its digests in a single read pass.
type Digester struct {
	io.Writer // the underlying io.MultiWriter
	hashes    map[Algorithm]hash.Hash
}

// NewDigester returns a Digester for the given algorithm set. Duplicates are
// collapsed. At least one algorithm is required.
func NewDigester(algorithms []Algorithm) (*Digester, error) {
	if len(algorithms) == 0 {
		return nil, &AlgorithmError{Name: ""}
	}
	d := &Digester{hashes: make(map[Algorithm]hash.Hash, len(algorithms))}
	writers := make([]io.Writer, 0, len(algorithms))
	for _, a := range algorithms {
		if _, ok := d.hashes[a]; ok {
			continue
		}
		h, err := a.New()
		if err != nil {
			return nil, err
		}
		d.hashes[a] = h
		writers = append(writers, h)
	}
	d.Writer = io.MultiWriter(writers...)
	return d, nil
}

// Sums returns the lowercase hex digest for each algorithm over everything
// written so far.
func (d *Digester) Sums() map[Algorithm]string {
	sums := make(map[Algorithm]string, len(d.hashes))
	for a, h := range d.hashes {
		sums[a] = hex.EncodeToString(h.Sum(nil))
	}
	return sums
}

// DigestReader consumes r to EOF exactly once and returns the hex digest for
// each requested algorithm.
func DigestReader(r io.Reader, algorithms []Algorithm) (map[Algorithm]string, error) {
	d, err := NewDigester(algorithms)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(d, r); err != nil {
		return nil, err
	}
	return d.Sums(), nil
}

// SameDigest compares two hex digest values case-insensitively.
func SameDigest(a, b string) bool {
	return strings.EqualFold(a, b)
}
