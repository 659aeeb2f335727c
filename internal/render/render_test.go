package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	Kind   string `json:"kind" yaml:"kind"`
	Source int    `json:"source" yaml:"source"`
}

func sample() Table {
	return Table{
		Headers: []string{"KIND", "SOURCE"},
		Rows:    [][]string{{"card", "1"}, {"dashboard", "12"}},
		Data:    []row{{"card", 1}, {"dashboard", 12}},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatTable, "JSON": FormatJSON, " yaml ": FormatYAML, "tsv": FormatTSV} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestAlignedTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(&buf, FormatTable).Table(sample()))

	assert.Equal(t, strings.Join([]string{
		"KIND       SOURCE",
		"---------  ------",
		"card       1",
		"dashboard  12",
		"",
	}, "\n"), buf.String())
}

func TestStructuredFormats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(&buf, FormatJSON).Table(sample()))
	assert.JSONEq(t, `[{"kind":"card","source":1},{"kind":"dashboard","source":12}]`, buf.String())

	buf.Reset()
	require.NoError(t, New(&buf, FormatYAML).Table(sample()))
	assert.Equal(t, "- kind: card\n  source: 1\n- kind: dashboard\n  source: 12\n", buf.String())

	buf.Reset()
	require.NoError(t, New(&buf, FormatTSV).Table(sample()))
	assert.Equal(t, "KIND\tSOURCE\ncard\t1\ndashboard\t12\n", buf.String())
}
