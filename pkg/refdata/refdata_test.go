package refdata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCorpus(t *testing.T) {
	dir := t.TempDir()

	raw := []byte(`{"TIPLOCDATA":[
		{"TIPLOC":"MOSEDYD","3ALPHA":" ","NLCDESC":"MOSSEND DOWN YARD ","UIC":"    ","STANOX":"65783"},
		{"TIPLOC":"PADTON","3ALPHA":"PAD","NLCDESC":"LONDON PADDINGTON","UIC":"7015400","STANOX":"72410"}
	]}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "corpus.json"), raw, 0o644))

	entries, err := LoadCorpus(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "MOSEDYD", entries[0].Tiploc)
	assert.Equal(t, "PAD", entries[1].ThreeAlpha)
	assert.Equal(t, "LONDON PADDINGTON", entries[1].NLCDesc)
}

func TestLoadCorpusLatin1(t *testing.T) {
	dir := t.TempDir()

	raw := []byte(`{"TIPLOCDATA":[{"TIPLOC":"X","3ALPHA":"","NLCDESC":"COST _50","UIC":"","STANOX":""}]}`)
	for i, b := range raw {
		if b == '_' {
			raw[i] = 0xa3 // Latin-1 pound sign, invalid as bare UTF-8
		}
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "corpus.json"), raw, 0o644))

	entries, err := LoadCorpus(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "COST £50", entries[0].NLCDesc)
}

func TestLoadCorpusMissingFile(t *testing.T) {
	_, err := LoadCorpus(t.TempDir())
	assert.Error(t, err)
}
