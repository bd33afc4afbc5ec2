package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ironswallow/ironswallow/pkg/darwin"
)

func TestTitleCase(t *testing.T) {
	caser := cases.Title(language.BritishEnglish)
	tests := []struct {
		in       string
		expected string
	}{
		{"CLAPHAM JUNCTION", "Clapham Junction"},
		{"GLASGOW (CENTRAL)", "Glasgow (Central)"},
		{"WORKSOP SIGNAL WP621", "Worksop Signal Wp621"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, titleCase(tt.in, caser))
	}
}

func TestExpandName(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"Clapham Jcn", "Clapham Junction"},
		{"Bescot Jn", "Bescot Junction"},
		{"London Rd", "London Road"},
		{"Stansted Airport Intl", "Stansted Airport International"},
		{"Tamworth Hl", "Tamworth High Level"},
		{"Somewhere (Tps Indic. Only)", "Somewhere"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, expandName(tt.in))
	}
}

func TestMergeLocation(t *testing.T) {
	s := New(nil)
	s.SetCorpus([]CorpusEntry{
		{Tiploc: "PADTON", ThreeAlpha: "PAD", NLCDesc: "LONDON PADDINGTON  "},
	})
	caser := cases.Title(language.BritishEnglish)

	loc := s.mergeLocation(node("LocationRef", map[string]string{
		"tpl": "PADTON", "crs": "PAD", "toc": "GW", "locname": "London Paddington",
	}), caser)

	assert.Equal(t, "PADTON", loc.Tiploc)
	require.NotNil(t, loc.CRSDarwin)
	assert.Equal(t, "PAD", *loc.CRSDarwin)
	require.NotNil(t, loc.CRSCorpus)
	assert.Equal(t, "PAD", *loc.CRSCorpus)
	require.NotNil(t, loc.NameCorpus)
	assert.Equal(t, "London Paddington", *loc.NameCorpus, "corpus name is cased and stripped")
	require.NotNil(t, loc.NameShort)
	assert.Equal(t, "London Paddington", *loc.NameShort)
}

func TestMergeLocationDarwinNameEqualToTiplocIsDropped(t *testing.T) {
	s := New(nil)
	caser := cases.Title(language.BritishEnglish)

	loc := s.mergeLocation(node("LocationRef", map[string]string{
		"tpl": "WLOE", "locname": "WLOE",
	}), caser)

	assert.Nil(t, loc.NameDarwin)
	assert.Nil(t, loc.NameShort, "no fallback name available")
}

func TestReferenceOpsSwapsSnapshot(t *testing.T) {
	s := New(nil)
	reasons := listNode("CancellationReasons", nil,
		node("Reason", map[string]string{"code": "100", "reasontext": "a broken down train"}),
	)
	doc := listNode("PportTimetableRef", nil,
		node("LocationRef", map[string]string{"tpl": "PADTON", "crs": "PAD", "toc": "GW", "locname": "London Paddington"}),
		node("TocRef", map[string]string{"toc": "GW", "tocname": "Great Western Railway"}),
		reasons,
	)

	ops, err := s.referenceOps(doc)
	require.NoError(t, err)
	require.Len(t, ops, 4)

	assert.Equal(t, ModeTask, ops[0].Mode, "location upserts classify against the known tiplocs")
	assert.Equal(t, upsertOperatorSQL, ops[1].SQL)
	assert.Equal(t, upsertReasonSQL, ops[2].SQL)
	assert.Equal(t, [][]any{{"100", "C", "a broken down train"}}, ops[2].Batch)

	conn := &fakeConn{results: map[string][][]any{
		knownTiplocsSQL: {{"PADTON"}},
	}}
	require.NoError(t, ops[0].Task(t.Context(), conn))

	calls := conn.calls()
	require.Len(t, calls, 2, "tiploc query plus one upsert")
	assert.Equal(t, upsertLocationSQL, calls[1].sql)
	require.Len(t, calls[1].args, 8)
	assert.Equal(t, "PADTON", calls[1].args[0])
	require.NotNil(t, calls[1].args[6])
	assert.Equal(t, "S", *(calls[1].args[6].(*string)), "a served location with CRS and name is a station")

	// The snapshot swap is queued behind the row upserts.
	assert.Equal(t, ModeTask, ops[3].Mode)
	_, ok := s.Reference().Location("PADTON")
	assert.False(t, ok, "snapshot unchanged until the task runs")

	require.NoError(t, ops[3].Task(t.Context(), nil))
	loc, ok := s.Reference().Location("PADTON")
	require.True(t, ok)
	assert.Equal(t, "PADTON", loc.Tiploc)
	require.NotNil(t, loc.Category)
	assert.Equal(t, "S", *loc.Category)
	assert.Equal(t, "a broken down train", s.Reference().Reason("100", "C"))
}

func TestBuildReasonUsesSnapshot(t *testing.T) {
	ref := darwin.NewReference()
	name := "Crewe"
	ref.Locations["CREWE"] = darwin.Location{Tiploc: "CREWE", NameShort: &name}
	ref.Reasons[darwin.ReasonKey{Code: "100", Type: "C"}] = "a broken down train"

	n := node("cancelReason", map[string]string{"tiploc": "CREWE", "near": "true"})
	n.Set("$", "100")

	reason := darwin.BuildReason(ref, n)
	assert.Equal(t, "100", reason.Code)
	assert.Equal(t, "a broken down train", reason.Message)
	assert.True(t, reason.Near)
	require.NotNil(t, reason.Location)
	assert.Equal(t, "CREWE", reason.Location.Tiploc)
}
