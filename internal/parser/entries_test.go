package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readEntries(t *testing.T, input string) ([]EntryRecord, []Malformed) {
	t.Helper()
	var skipped []Malformed
	r := NewEntryReader(strings.NewReader(input), OnMalformed(func(m Malformed) {
		skipped = append(skipped, m)
	}))
	var out []EntryRecord
	for r.Next() {
		out = append(out, r.Record())
	}
	require.NoError(t, r.Err())
	return out, skipped
}

func TestEntries_HeaderIsSkipped(t *testing.T) {
	t.Parallel()
	input := "ENTRY_AC\tENTRY_TYPE\tENTRY_NAME\n" +
		"IPR000008\tDomain\tC2 domain\n" +
		"IPR000003\tFamily\tRetinoid X receptor/HNF4\n"

	recs, skipped := readEntries(t, input)
	assert.Empty(t, skipped)
	require.Len(t, recs, 2)
	assert.Equal(t, EntryRecord{Accession: "IPR000008", Type: "Domain", Name: "C2 domain", Line: 2}, recs[0])
	assert.Equal(t, "Family", recs[1].Type)
}

func TestEntries_HeaderOnly(t *testing.T) {
	t.Parallel()
	recs, skipped := readEntries(t, "ENTRY_AC\tENTRY_TYPE\tENTRY_NAME\n")
	assert.Empty(t, recs)
	assert.Empty(t, skipped)
}

func TestEntries_MalformedRows(t *testing.T) {
	t.Parallel()
	input := strings.Join([]string{
		"ENTRY_AC\tENTRY_TYPE\tENTRY_NAME",
		"IPR000001\tDomain",
		"\tDomain\tNo accession",
		"IPR000002\t\tNo type",
		"IPR000003\tFamily\t ",
		"",
		"IPR000004\tRepeat\tKringle",
	}, "\n")

	recs, skipped := readEntries(t, input)
	require.Len(t, recs, 1)
	assert.Equal(t, "IPR000004", recs[0].Accession)
	assert.Equal(t, 7, recs[0].Line)

	require.Len(t, skipped, 4)
	reasons := make([]string, 0, len(skipped))
	for _, m := range skipped {
		assert.Equal(t, "entries", m.File)
		reasons = append(reasons, m.Reason)
	}
	assert.Equal(t, []string{
		"expected 3 tab-separated columns",
		"empty accession",
		"empty type",
		"empty name",
	}, reasons)
}

func TestEntries_NameMayContainTabs(t *testing.T) {
	t.Parallel()
	recs, _ := readEntries(t, "header\nIPR000010\tDomain\tCystatin\tprotease inhibitor\n")
	require.Len(t, recs, 1)
	assert.Equal(t, "Cystatin\tprotease inhibitor", recs[0].Name)
}
