// Package bagit implements the pieces of the BagIt 1.0 specification needed
// to build and maintain bags on a file system: digest algorithms, payload and
// tag manifests, tag files (bagit.txt and bag-info.txt), and the fixed
// directory layout of a bag.
//
// Manifest paths are treated as opaque text. They are never percent-encoded
// on write nor percent-decoded on read; instead, file names that would
// require encoding (raw CR, LF, or a literal percent sign) are rejected
// outright. See CheckName.
//
// Specific items not implemented are fetch files and holey bags, bag
// validation, and tag-file encodings other than UTF-8.
//
// The BagIt spec can be found at https://datatracker.ietf.org/doc/html/rfc8493.
package bagit

// Bag describes a bag on disk after a successful build or rebag.
type Bag struct {
	// Base is the bag's base directory.
	Base string

	// Declaration is the content of bagit.txt.
	Declaration Declaration

	// Info holds the tags written to bag-info.txt, in file order.
	Info *BagInfo

	// Algorithms are the digest algorithms the manifests were built with.
	Algorithms []Algorithm
}
