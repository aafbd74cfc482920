package bagit

import "strings"

// File name policy. The BagIt spec percent-encodes CR, LF, and "%" in
// manifest paths, but implementations disagree on decoding, so rather than
// write manifests other tools may misread we refuse the names entirely.
// Everything else passes through as opaque text.

// CheckName classifies a single path component. It returns a
// *PathRejectedError if the name cannot appear in a manifest safely.
func CheckName(name string) error {
	switch {
	case strings.ContainsRune(name, '\r'):
		return &PathRejectedError{Path: name, Reason: "name contains a carriage return"}
	case strings.ContainsRune(name, '\n'):
		return &PathRejectedError{Path: name, Reason: "name contains a line feed"}
	case strings.ContainsRune(name, '%'):
		return &PathRejectedError{Path: name, Reason: "name contains a percent sign"}
	}
	return nil
}

// CheckPath applies CheckName to every component of a slash-separated
// relative path. The returned error identifies the full path.
func CheckPath(rel string) error {
	for _, name := range strings.Split(rel, "/") {
		if err := CheckName(name); err != nil {
			e := err.(*PathRejectedError)
			e.Path = rel
			return e
		}
	}
	return nil
}

// IsHidden reports whether name is hidden by platform convention, that is,
// it begins with a dot and is not "." or "..".
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
