package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssociationOpsStoresDirectly(t *testing.T) {
	s := New(nil)
	record := node("association", map[string]string{"category": "VV", "tiploc": "CREWE"})
	record.Set("main", node("main", map[string]string{"rid": "MAIN1", "wta": "10:05", "wtd": "10:07"}))
	record.Set("assoc", node("assoc", map[string]string{"rid": "ASSOC1", "wtp": "10:06"}))

	ops, err := s.associationOps(record)
	require.NoError(t, err)
	require.Len(t, ops, 2)

	insert := ops[0]
	assert.Equal(t, ModeSingle, insert.Mode)
	require.Len(t, insert.Args, 12)
	assert.Equal(t, "VV", insert.Args[0])
	assert.Equal(t, "CREWE", insert.Args[1])
	assert.Equal(t, "MAIN1", insert.Args[2])
	assert.Equal(t, "100500      100700", insert.Args[3])
	assert.Equal(t, "ASSOC1", insert.Args[4])
	assert.Equal(t, "      100600      ", insert.Args[5])

	// Existence guards reference the same call points.
	assert.Equal(t, []any{"CREWE", "MAIN1", "100500      100700"}, insert.Args[6:9])
	assert.Equal(t, []any{"CREWE", "ASSOC1", "      100600      "}, insert.Args[9:12])

	assert.Equal(t, ModeTask, ops[1].Mode)
}

func TestAssociationOpsInvertsJoins(t *testing.T) {
	s := New(nil)
	record := node("association", map[string]string{"category": "JJ", "tiploc": "CREWE"})
	record.Set("main", node("main", map[string]string{"rid": "MAIN1", "wta": "10:05"}))
	record.Set("assoc", node("assoc", map[string]string{"rid": "ASSOC1", "wtd": "10:07"}))

	ops, err := s.associationOps(record)
	require.NoError(t, err)

	insert := ops[0]
	assert.Equal(t, "JN", insert.Args[0], "JJ is stored as JN")
	assert.Equal(t, "ASSOC1", insert.Args[2], "sides swap so the link points at the next service")
	assert.Equal(t, "            100700", insert.Args[3])
	assert.Equal(t, "MAIN1", insert.Args[4])
	assert.Equal(t, "100500            ", insert.Args[5])
}

func TestAssociationOpsMissingSide(t *testing.T) {
	s := New(nil)
	record := node("association", map[string]string{"category": "VV", "tiploc": "CREWE"})
	record.Set("main", node("main", map[string]string{"rid": "MAIN1"}))

	_, err := s.associationOps(record)
	assert.Error(t, err)
}

func TestRenewAssociationMetaPropagates(t *testing.T) {
	dest := `{"source":"SC","type":"DT","activity":"TF","cancelled":false,"tiploc":"BRSTLTM","crs_darwin":null,"crs_corpus":null,"operator":null,"name_darwin":null,"name_corpus":null,"name_short":null,"name_full":null}`
	origin := `{"source":"SC","type":"OR","activity":"TB","cancelled":false,"tiploc":"PADTON","crs_darwin":null,"crs_corpus":null,"operator":null,"name_darwin":null,"name_corpus":null,"name_short":null,"name_full":null}`

	conn := &fakeConn{results: map[string][][]any{
		selectAssociationPairSQL: {{
			"JN", "CREWE",
			"MAIN1", [][]byte{[]byte(origin)}, [][]byte{},
			"ASSOC1", [][]byte{}, [][]byte{[]byte(dest)},
		}},
	}}

	err := RenewAssociationMeta(context.Background(), conn, "MAIN1", "ASSOC1")
	require.NoError(t, err)

	calls := conn.calls()
	require.Len(t, calls, 3)

	assert.Equal(t, appendDestinationsSQL, calls[1].sql)
	assert.Equal(t, "MAIN1", calls[1].args[1])
	appended := calls[1].args[0].([]string)
	require.Len(t, appended, 1)
	assert.Contains(t, appended[0], `"source":"JN"`)
	assert.Contains(t, appended[0], `"association_tiploc":"CREWE"`)

	assert.Equal(t, appendOriginsSQL, calls[2].sql)
	assert.Equal(t, "ASSOC1", calls[2].args[1])
}

func TestRenewAssociationMetaSkipsExisting(t *testing.T) {
	// The main service already carries an entry for this association.
	existing := `{"source":"JN","type":"DT","activity":"","cancelled":false,"tiploc":"BRSTLTM","crs_darwin":null,"crs_corpus":null,"operator":null,"name_darwin":null,"name_corpus":null,"name_short":null,"name_full":null,"association_tiploc":"CREWE"}`

	conn := &fakeConn{results: map[string][][]any{
		selectAssociationPairSQL: {{
			"JN", "CREWE",
			"MAIN1", [][]byte{}, [][]byte{[]byte(existing)},
			"ASSOC1", [][]byte{[]byte(existing)}, [][]byte{},
		}},
	}}

	err := RenewAssociationMeta(context.Background(), conn, "MAIN1", "ASSOC1")
	require.NoError(t, err)

	// Only the SELECT ran; both sides already annotated.
	assert.Len(t, conn.calls(), 1)
}
