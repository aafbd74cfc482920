package bagit

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
)

// Reserved bag-info.txt labels this package maintains automatically.
const (
	LabelBaggingDate   = "Bagging-Date"
	LabelPayloadOxum   = "Payload-Oxum"
	LabelSoftwareAgent = "Bag-Software-Agent"
	LabelBagSize       = "Bag-Size"
)

// bagit.txt labels.
const (
	labelVersion  = "BagIt-Version"
	labelEncoding = "Tag-File-Character-Encoding"
)

// Tag is one label/value pair in a tag file.
type Tag struct {
	Label string
	Value string
}

// TagList is an ordered list of tags. Labels may repeat; file order is
// preserved across a read/write cycle.
type TagList struct {
	tags []Tag
}

// Add appends a tag, keeping any existing tags with the same label.
func (t *TagList) Add(label, value string) {
	t.tags = append(t.tags, Tag{Label: label, Value: value})
}

// Set replaces the first tag with the given label and drops any other
// repetitions. If the label is absent the tag is appended.
func (t *TagList) Set(label, value string) {
	out := t.tags[:0]
	replaced := false
	for _, tag := range t.tags {
		if tag.Label == label {
			if !replaced {
				out = append(out, Tag{Label: label, Value: value})
				replaced = true
			}
			continue
		}
		out = append(out, tag)
	}
	t.tags = out
	if !replaced {
		t.Add(label, value)
	}
}

// Value returns the value of the first tag with the given label.
func (t *TagList) Value(label string) (string, bool) {
	for _, tag := range t.tags {
		if tag.Label == label {
			return tag.Value, true
		}
	}
	return "", false
}

// Tags returns the tags in order.
func (t *TagList) Tags() []Tag {
	return t.tags
}

// Len returns the number of tags.
func (t *TagList) Len() int {
	return len(t.tags)
}

// Render writes the tags as "Label: value" lines with LF endings. Long
// values are not wrapped at column 79 in this implementation.
func (t *TagList) Render(w io.Writer) error {
	for _, tag := range t.tags {
		if _, err := fmt.Fprintf(w, "%s: %s\n", tag.Label, tag.Value); err != nil {
			return err
		}
	}
	return nil
}

// ParseTags reads a tag file. Lines may end in CR, LF, or CRLF. A line
// beginning with a space or tab continues the previous tag's value; the
// leading whitespace run is replaced with a single joining space. Content
// must be valid UTF-8.
func ParseTags(r io.Reader, name string) (*TagList, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, &EncodingError{File: name, Msg: "content is not valid UTF-8"}
	}

	list := new(TagList)
	last := -1 // index into list.tags of the tag being continued
	for i, line := range splitLines(data) {
		if line == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			if last < 0 {
				return nil, &ParseError{File: name, Line: i + 1, Msg: "continuation line with no preceding tag"}
			}
			list.tags[last].Value += " " + strings.TrimLeft(line, " \t")
			continue
		}
		label, value, ok := strings.Cut(line, ":")
		if !ok || label == "" {
			return nil, &ParseError{File: name, Line: i + 1, Msg: `expected "Label: value"`}
		}
		list.Add(label, strings.TrimLeft(value, " \t"))
		last = list.Len() - 1
	}
	return list, nil
}

// splitLines splits on CR, LF, or CRLF, keeping empty lines so parse errors
// can report accurate line numbers.
func splitLines(data []byte) []string {
	var lines []string
	var cur []byte
	for i := 0; i < len(data); i++ {
		switch data[i] {
		case '\r':
			if i+1 < len(data) && data[i+1] == '\n' {
				i++
			}
			lines = append(lines, string(cur))
			cur = cur[:0]
		case '\n':
			lines = append(lines, string(cur))
			cur = cur[:0]
		default:
			cur = append(cur, data[i])
		}
	}
	if len(cur) > 0 {
		lines = append(lines, string(cur))
	}
	return lines
}

// Declaration is the content of bagit.txt. It is written once at build time
// and is read-only afterwards.
type Declaration struct {
	Version  string
	Encoding string
}

// NewDeclaration returns the declaration for the bag version this package
// writes.
func NewDeclaration() Declaration {
	return Declaration{Version: Version, Encoding: Encoding}
}

// Render writes the declaration's two fixed lines.
func (d Declaration) Render(w io.Writer) error {
	list := new(TagList)
	list.Add(labelVersion, d.Version)
	list.Add(labelEncoding, d.Encoding)
	return list.Render(w)
}

// ParseDeclaration reads and validates a bagit.txt. Only version 1.0 with
// UTF-8 tag encoding is accepted.
func ParseDeclaration(r io.Reader, name string) (Declaration, error) {
	list, err := ParseTags(r, name)
	if err != nil {
		return Declaration{}, err
	}
	version, ok := list.Value(labelVersion)
	if !ok {
		return Declaration{}, &ParseError{File: name, Line: 1, Msg: "missing " + labelVersion + " tag"}
	}
	encoding, ok := list.Value(labelEncoding)
	if !ok {
		return Declaration{}, &ParseError{File: name, Line: 1, Msg: "missing " + labelEncoding + " tag"}
	}
	if version != Version {
		return Declaration{}, &ParseError{File: name, Line: 1, Msg: fmt.Sprintf("unsupported BagIt version %q", version)}
	}
	if !strings.EqualFold(encoding, Encoding) {
		return Declaration{}, &EncodingError{File: name, Msg: fmt.Sprintf("unsupported tag file encoding %q", encoding)}
	}
	return Declaration{Version: version, Encoding: encoding}, nil
}

// BagInfo is the ordered tag list written to bag-info.txt.
type BagInfo struct {
	TagList
}

// SetPayloadOxum records the payload byte and file counts in the
// "<bytes>.<count>" form the spec requires.
func (b *BagInfo) SetPayloadOxum(totalBytes int64, fileCount int) {
	b.Set(LabelPayloadOxum, fmt.Sprintf("%d.%d", totalBytes, fileCount))
}

// SetBagSize records an approximate human-readable payload size.
func (b *BagInfo) SetBagSize(totalBytes int64) {
	b.Set(LabelBagSize, humanize.Bytes(uint64(totalBytes)))
}

// SetBaggingDate records the bagging date as YYYY-MM-DD.
func (b *BagInfo) SetBaggingDate(t time.Time) {
	b.Set(LabelBaggingDate, t.Format("2006-01-02"))
}

// SetSoftwareAgent records the producing software.
func (b *BagInfo) SetSoftwareAgent(agent string) {
	b.Set(LabelSoftwareAgent, agent)
}
