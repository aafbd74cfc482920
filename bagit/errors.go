package bagit

import (
	"errors"
	"fmt"
)

var (
	// ErrUnrecognizedBag indicates a rebag target with no payload manifests
	// or no bag declaration.
	ErrUnrecognizedBag = errors.New("directory is not a recognizable bag")
)

// PathRejectedError reports a file name the bag refuses to carry.
type PathRejectedError struct {
	Path   string // the offending path, relative when known
	Reason string
}

func (e *PathRejectedError) Error() string {
	return fmt.Sprintf("unsafe file name %q: %s", e.Path, e.Reason)
}

// ParseError reports a malformed line in a manifest or tag file.
type ParseError struct {
	File string
	Line int // 1-based
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: line %d: %s", e.File, e.Line, e.Msg)
}

// EncodingError reports tag-file content that is not valid UTF-8, or a bag
// declaring an encoding other than UTF-8.
type EncodingError struct {
	File string
	Msg  string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Msg)
}

// AlgorithmError reports a digest algorithm this package does not support.
type AlgorithmError struct {
	Name string
}

func (e *AlgorithmError) Error() string {
	if e.Name == "" {
		return "no digest algorithm given"
	}
	return fmt.Sprintf("unsupported digest algorithm %q", e.Name)
}
