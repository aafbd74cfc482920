package bagit

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestRenderSortsByPath(t *testing.T) {
	m := NewManifest(PayloadRole, SHA256)
	m.Set("data/zebra.txt", "bbbb")
	m.Set("data/alpha.txt", "aaaa")
	m.Set("data/middle/x", "cccc")

	var buf bytes.Buffer
	require.NoError(t, m.Render(&buf))
	assert.Equal(t,
		"aaaa data/alpha.txt\n"+
			"cccc data/middle/x\n"+
			"bbbb data/zebra.txt\n",
		buf.String())
}

func TestManifestRoundTrip(t *testing.T) {
	m := NewManifest(PayloadRole, SHA512)
	m.Set("data/a", "1111")
	m.Set("data/name with spaces.txt", "2222")
	m.Set("data/%6eot-decoded", "3333")

	var buf bytes.Buffer
	require.NoError(t, m.Render(&buf))

	parsed, err := ParseManifest(&buf, PayloadRole, SHA512, "manifest-sha512.txt")
	require.NoError(t, err)
	assert.Equal(t, m.Entries(), parsed.Entries())
}

func TestManifestRenderDeterministic(t *testing.T) {
	first := NewManifest(PayloadRole, SHA256)
	second := NewManifest(PayloadRole, SHA256)
	entries := []Entry{
		{Digest: "00", Path: "data/c"},
		{Digest: "01", Path: "data/a"},
		{Digest: "02", Path: "data/b"},
	}
	for _, e := range entries {
		first.Set(e.Path, e.Digest)
	}
	for i := len(entries) - 1; i >= 0; i-- {
		second.Set(entries[i].Path, entries[i].Digest)
	}

	var b1, b2 bytes.Buffer
	require.NoError(t, first.Render(&b1))
	require.NoError(t, second.Render(&b2))
	assert.Equal(t, b1.String(), b2.String())
}

func TestParseManifest(t *testing.T) {
	input := "aaaa data/one\n" +
		"bbbb\t data/two spaced name\r\n" +
		"cccc data/%0Averbatim\n"
	m, err := ParseManifest(strings.NewReader(input), PayloadRole, MD5, "manifest-md5.txt")
	require.NoError(t, err)
	require.Equal(t, 3, m.Len())

	d, ok := m.Digest("data/two spaced name")
	require.True(t, ok)
	assert.Equal(t, "bbbb", d)

	// percent sequences are opaque text, never decoded
	_, ok = m.Digest("data/%0Averbatim")
	assert.True(t, ok)
}

func TestParseManifestErrors(t *testing.T) {
	var table = []struct {
		name  string
		input string
		line  int
	}{
		{"no separator", "aaaa data/ok\njustonetoken\n", 2},
		{"leading space", " aaaa data/x\n", 1},
		{"missing path", "aaaa   \n", 1},
		{"blank line", "aaaa data/ok\n\nbbbb data/x\n", 2},
		{"duplicate path", "aaaa data/x\nbbbb data/x\n", 2},
	}

	for _, test := range table {
		_, err := ParseManifest(strings.NewReader(test.input), PayloadRole, SHA256, "manifest-sha256.txt")
		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr, test.name)
		assert.Equal(t, test.line, parseErr.Line, test.name)
		assert.Equal(t, "manifest-sha256.txt", parseErr.File, test.name)
	}
}
